package stepping

import "testing"

func TestMoveSegQueueAppendAndUnprocessedCursor(t *testing.T) {
	q := NewMoveSegQueue(4)
	if q.HasUnprocessed() {
		t.Fatal("HasUnprocessed() = true on an empty queue")
	}

	if !q.Append(Move{Duration: 1}) {
		t.Fatal("Append failed on an empty queue")
	}
	if !q.HasUnprocessed() {
		t.Fatal("HasUnprocessed() = false after Append")
	}
	first := q.CurrentUnprocessed()
	if first == nil || first.Duration != 1 {
		t.Fatalf("CurrentUnprocessed() = %+v, want Duration 1", first)
	}

	q.Append(Move{Duration: 2})
	q.DiscardCurrentUnprocessed()
	second := q.CurrentUnprocessed()
	if second == nil || second.Duration != 2 {
		t.Fatalf("CurrentUnprocessed() after discard = %+v, want Duration 2", second)
	}
}

func TestMoveSegQueueBackpressure(t *testing.T) {
	q := NewMoveSegQueue(2)
	if !q.Append(Move{}) || !q.Append(Move{}) {
		t.Fatal("Append should succeed while under capacity")
	}
	if q.Append(Move{}) {
		t.Fatal("Append should fail once the ring is full")
	}
	if q.FreeSlots() != 0 {
		t.Fatalf("FreeSlots() = %d, want 0", q.FreeSlots())
	}
}

func TestMoveSegQueueNextAfter(t *testing.T) {
	q := NewMoveSegQueue(4)
	q.Append(Move{Duration: 1})
	q.Append(Move{Duration: 2})
	q.Append(Move{Duration: 3})

	first := q.Current()
	second := q.NextAfter(first)
	if second == nil || second.Duration != 2 {
		t.Fatalf("NextAfter(first) = %+v, want Duration 2", second)
	}
	third := q.NextAfter(second)
	if third == nil || third.Duration != 3 {
		t.Fatalf("NextAfter(second) = %+v, want Duration 3", third)
	}
	if q.NextAfter(third) != nil {
		t.Fatal("NextAfter(third) should be nil: no newer segment queued")
	}
}

func TestMoveSegQueueReleaseOneProcessedRespectsReferenceCount(t *testing.T) {
	q := NewMoveSegQueue(2)
	q.Append(Move{Duration: 1, ReferenceCnt: 1})

	if q.ReleaseOneProcessed() {
		t.Fatal("ReleaseOneProcessed() should refuse a still-referenced head")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (segment must not have been popped)", q.Len())
	}

	q.Current().ReferenceCnt = 0
	if !q.ReleaseOneProcessed() {
		t.Fatal("ReleaseOneProcessed() should succeed once reference_cnt hits zero")
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after release", q.Len())
	}
}

func TestMoveSegQueueClear(t *testing.T) {
	q := NewMoveSegQueue(4)
	q.Append(Move{Duration: 1})
	q.Append(Move{Duration: 2})
	q.Clear()

	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after Clear", q.Len())
	}
	if q.HasUnprocessed() {
		t.Fatal("HasUnprocessed() = true after Clear")
	}
	if q.CurrentUnprocessed() != nil {
		t.Fatal("CurrentUnprocessed() should be nil after Clear")
	}
}
