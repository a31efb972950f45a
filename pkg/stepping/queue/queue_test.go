package queue

import "testing"

func TestNewRoundsCapacityToPowerOfTwo(t *testing.T) {
	r := New[int](5)
	if r.Cap() != 8 {
		t.Fatalf("Cap() = %d, want 8", r.Cap())
	}
}

func TestPushPeekPop(t *testing.T) {
	r := New[int](4)
	for i := 1; i <= 4; i++ {
		if !r.Push(i) {
			t.Fatalf("Push(%d) failed, ring should not be full yet", i)
		}
	}
	if r.Push(5) {
		t.Fatal("Push succeeded on a full ring")
	}
	if !r.Full() {
		t.Fatal("Full() = false, want true")
	}

	if got := *r.Peek(); got != 1 {
		t.Fatalf("Peek() = %d, want 1", got)
	}
	if got := *r.PeekAt(2); got != 3 {
		t.Fatalf("PeekAt(2) = %d, want 3", got)
	}
	if r.PeekAt(4) != nil {
		t.Fatal("PeekAt(4) should be out of range")
	}

	r.Pop()
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if got := *r.Peek(); got != 2 {
		t.Fatalf("Peek() after Pop = %d, want 2", got)
	}

	// Wrap around: ring should still behave correctly once head/tail cross
	// the buffer boundary.
	if !r.Push(6) {
		t.Fatal("Push(6) failed after freeing a slot")
	}
	if got := *r.PeekAt(3); got != 6 {
		t.Fatalf("PeekAt(3) = %d, want 6 (wrapped slot)", got)
	}
}

func TestEmptyRing(t *testing.T) {
	r := New[int](4)
	if !r.Empty() {
		t.Fatal("Empty() = false on a fresh ring")
	}
	if r.Peek() != nil {
		t.Fatal("Peek() on empty ring should return nil")
	}
	r.Pop() // must not panic
}

func TestClear(t *testing.T) {
	r := New[int](4)
	r.Push(1)
	r.Push(2)
	r.Clear()
	if !r.Empty() {
		t.Fatal("Clear() did not empty the ring")
	}
	if !r.Push(3) {
		t.Fatal("Push after Clear should succeed")
	}
	if got := *r.Peek(); got != 3 {
		t.Fatalf("Peek() after Clear+Push = %d, want 3", got)
	}
}

func TestFreeSlots(t *testing.T) {
	r := New[int](4)
	if r.FreeSlots() != 4 {
		t.Fatalf("FreeSlots() = %d, want 4", r.FreeSlots())
	}
	r.Push(1)
	if r.FreeSlots() != 3 {
		t.Fatalf("FreeSlots() = %d, want 3", r.FreeSlots())
	}
}
