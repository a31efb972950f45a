package stepping

import "stepcore/pkg/stepping/queue"

// StepEvQueue is the SPSC ring of tick-domain step events (StepEvQ in
// spec.md §3), written by the Move-ISR's merger and drained by the
// Step-ISR dispatcher.
type StepEvQueue struct {
	ring *queue.Ring[Event]
}

// NewStepEvQueue creates a step event queue with the given capacity.
func NewStepEvQueue(capacity int) *StepEvQueue {
	return &StepEvQueue{ring: queue.New[Event](capacity)}
}

// FreeSlots returns how many more events can be pushed before the queue is
// full.
func (q *StepEvQueue) FreeSlots() int { return q.ring.FreeSlots() }

// Full reports whether the queue has no room for another event.
func (q *StepEvQueue) Full() bool { return q.ring.Full() }

// Push appends an event. Returns false if the queue is full.
func (q *StepEvQueue) Push(ev Event) bool { return q.ring.Push(ev) }

// Current returns the event at the head of the queue (the one the Step-ISR
// is currently acting on), or nil if the queue is empty.
func (q *StepEvQueue) Current() *Event { return q.ring.Peek() }

// Discard removes the head event once the Step-ISR has fully processed it.
func (q *StepEvQueue) Discard() { q.ring.Pop() }

// Len returns the number of queued events.
func (q *StepEvQueue) Len() int { return q.ring.Len() }

// Clear empties the queue unconditionally.
func (q *StepEvQueue) Clear() { q.ring.Clear() }
