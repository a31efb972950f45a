// Package queue implements the single-producer/single-consumer bounded ring
// buffers that carry data across the Move-ISR / Step-ISR boundary.
//
// Klipper's C firmware (and Prusa's precise_stepping.cpp, from which this
// engine is ported) protects these rings with nothing but careful ordering
// of a head index (written only by the producer) and a tail index (written
// only by the consumer). There is no lock: the producer may run concurrently
// with the consumer as long as neither index is read-modify-written by both
// sides. atomic.Uint32 gives us that guarantee in Go without introducing a
// mutex the real-time side can block on.
package queue

import "sync/atomic"

// Ring is a fixed-capacity SPSC ring buffer. The zero value is not usable;
// construct with New. Capacity must be a power of two so index wrap can be
// done with a mask instead of a modulo.
type Ring[T any] struct {
	mask uint32
	buf  []T

	head atomic.Uint32 // next free slot to write (producer-owned)
	tail atomic.Uint32 // oldest occupied slot (consumer-owned)
}

// New creates a Ring with room for capacity elements. capacity is rounded up
// to the next power of two.
func New[T any](capacity int) *Ring[T] {
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Ring[T]{
		mask: uint32(n - 1),
		buf:  make([]T, n),
	}
}

// Cap returns the usable capacity (a power of two, possibly larger than the
// capacity requested at construction).
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of occupied slots. Safe to call from either side;
// the result may be stale by the time the caller acts on it.
func (r *Ring[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// FreeSlots returns the number of slots available for Push.
func (r *Ring[T]) FreeSlots() int {
	return len(r.buf) - r.Len()
}

// Full reports whether the ring has no free slots.
func (r *Ring[T]) Full() bool {
	return r.Len() >= len(r.buf)
}

// Empty reports whether the ring has no occupied slots.
func (r *Ring[T]) Empty() bool {
	return r.Len() <= 0
}

// Push appends v to the ring. Only the producer may call this. Returns false
// if the ring is full (back-pressure; the caller must retry later).
func (r *Ring[T]) Push(v T) bool {
	if r.Full() {
		return false
	}
	h := r.head.Load()
	r.buf[h&r.mask] = v
	r.head.Store(h + 1)
	return true
}

// Peek returns a pointer to the oldest occupied slot without removing it, or
// nil if the ring is empty. Only the consumer may call this; the returned
// pointer is only valid for the consumer's exclusive use until the next Pop.
func (r *Ring[T]) Peek() *T {
	if r.Empty() {
		return nil
	}
	t := r.tail.Load()
	return &r.buf[t&r.mask]
}

// PeekAt returns a pointer to the element at logical offset i from the
// oldest occupied slot (0 == Peek()), or nil if i is out of range. Only the
// consumer may call this.
func (r *Ring[T]) PeekAt(i int) *T {
	if i < 0 || i >= r.Len() {
		return nil
	}
	t := r.tail.Load()
	return &r.buf[(t+uint32(i))&r.mask]
}

// Pop discards the oldest occupied slot. Only the consumer may call this.
// It is a no-op on an empty ring.
func (r *Ring[T]) Pop() {
	if r.Empty() {
		return
	}
	r.tail.Store(r.tail.Load() + 1)
}

// Clear discards all occupied slots. Only safe to call when neither the
// producer nor the consumer is concurrently active (e.g. during
// ResetQueues with both ISRs suspended).
func (r *Ring[T]) Clear() {
	r.tail.Store(r.head.Load())
}
