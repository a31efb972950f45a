package stepping

import "stepcore/pkg/stepping/queue"

// MoveSegQueue is the SPSC ring of move segments (MoveSegQ in spec.md §3).
// It layers two extra cursors on top of queue.Ring[Move]:
//
//   - unprocessed: the oldest segment no generator has started consuming
//     yet (advanced by the Move-ISR side as step generators attach to
//     segments).
//   - the ring's own tail: the oldest segment still referenced by any
//     generator or not yet passed by the Step-ISR side. A segment is only
//     actually freed (Pop'd) once both reference_cnt == 0 and the
//     Step-ISR's consumer cursor has moved past it.
//
// Both cursors only ever move forward from the Move-ISR goroutine; nothing
// here needs its own locking beyond what queue.Ring already provides.
type MoveSegQueue struct {
	ring         *queue.Ring[Move]
	unprocessedN int // count of segments, from ring tail, not yet unprocessed-consumed
}

// NewMoveSegQueue creates a move segment queue with the given capacity.
func NewMoveSegQueue(capacity int) *MoveSegQueue {
	return &MoveSegQueue{ring: queue.New[Move](capacity)}
}

// FreeSlots returns the number of segments that can still be appended.
func (q *MoveSegQueue) FreeSlots() int { return q.ring.FreeSlots() }

// Append pushes a new segment. Returns false on back-pressure.
func (q *MoveSegQueue) Append(m Move) bool {
	if !q.ring.Push(m) {
		return false
	}
	q.unprocessedN++
	return true
}

// HasUnprocessed reports whether there is at least one segment no generator
// has attached to yet.
func (q *MoveSegQueue) HasUnprocessed() bool { return q.unprocessedN > 0 }

// CurrentUnprocessed returns the oldest segment no generator has attached to
// yet, or nil if there is none.
func (q *MoveSegQueue) CurrentUnprocessed() *Move {
	if q.unprocessedN <= 0 {
		return nil
	}
	return q.ring.PeekAt(q.ring.Len() - q.unprocessedN)
}

// DiscardCurrentUnprocessed marks the oldest unprocessed segment as attached
// (a generator has taken ownership of it, or it is being skipped outright).
func (q *MoveSegQueue) DiscardCurrentUnprocessed() {
	if q.unprocessedN > 0 {
		q.unprocessedN--
	}
}

// NextAfter returns the segment immediately following m in queue order, or
// nil if m is the newest segment in the queue. Used by generators advancing
// from one fully-consumed segment to the next.
func (q *MoveSegQueue) NextAfter(m *Move) *Move {
	for i := 0; i < q.ring.Len(); i++ {
		cur := q.ring.PeekAt(i)
		if cur == m {
			return q.ring.PeekAt(i + 1)
		}
	}
	return nil
}

// Current returns the oldest segment still in the queue (the one the
// Step-ISR side is currently consuming events from), or nil if empty.
func (q *MoveSegQueue) Current() *Move { return q.ring.Peek() }

// ReleaseOneProcessed frees the oldest segment once its reference count has
// dropped to zero and it has been fully discarded by both the generator
// side and the Step-ISR consumer cursor. Returns false if the oldest segment
// is still referenced.
func (q *MoveSegQueue) ReleaseOneProcessed() bool {
	head := q.ring.Peek()
	if head == nil || head.ReferenceCnt != 0 {
		return false
	}
	q.ring.Pop()
	return true
}

// Len returns the number of segments currently queued.
func (q *MoveSegQueue) Len() int { return q.ring.Len() }

// Clear drops every queued segment unconditionally. Only safe while both
// dispatch goroutines are suspended (see ResetQueues).
func (q *MoveSegQueue) Clear() {
	q.ring.Clear()
	q.unprocessedN = 0
}
