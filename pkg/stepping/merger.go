package stepping

import "math"

// MergerState is the per-axis bookkeeping the merger carries across calls:
// step_generator_state_t in spec.md §3. CurrentDistance is in whole steps,
// signed so a direction reversal doesn't need its own counter. Flags holds
// the last-known direction/active bits for each axis, reused verbatim on
// ticks where that axis doesn't step.
type MergerState struct {
	Generators      [numAxes]Generator
	CurrentDistance StepVec4
	Flags           StepEventFlag

	// pending holds a step already computed for an axis this round but not
	// yet queued, because generate_next_step_event only ever emits the
	// single earliest event per call (the "heap-of-4" selection). The
	// cache avoids re-deriving the same root on the next call.
	pending    [numAxes]EventInfo
	hasPending [numAxes]bool
}

// NewMergerState creates merger bookkeeping with no generators attached.
func NewMergerState() *MergerState {
	return &MergerState{}
}

// Reset clears per-axis distance/flag/pending state, used by ResetQueues.
func (s *MergerState) Reset() {
	*s = MergerState{}
}

// nextCandidate returns axis a's next pending event, computing it from the
// generator if not already cached, without advancing past flushTime.
func (s *MergerState) nextCandidate(a Axis, flushTime float64) EventInfo {
	if s.hasPending[a] {
		return s.pending[a]
	}
	gen := s.Generators[a]
	if gen == nil {
		return NoEvent
	}
	ev := gen.NextStep(s, flushTime)
	s.pending[a] = ev
	s.hasPending[a] = ev.Time != math.Inf(1)
	return ev
}

// consume drops axis a's cached candidate after it has been folded into a
// queued event, forcing the next nextCandidate call to pull a fresh one.
func (s *MergerState) consume(a Axis) {
	s.hasPending[a] = false
	s.pending[a] = EventInfo{}
}

// generateNextStepEvent is the merger proper: generate_next_step_event in
// original_source. It finds the earliest of the four axes' next candidate
// step times (ties broken by axis order, lowest first, matching the
// original's "heap of 4" scan), coalesces any other axis whose candidate
// falls at the exact same time and moves in a way that doesn't conflict
// (the spec's "same tick, same direction, non-overlapping" coalescing
// rule), and returns the merged info plus the time it occurred at.
//
// lastTime is the absolute time of the previously queued event; the
// returned time is guaranteed >= lastTime (monotonic clamp), matching the
// original's tolerance for a negative time delta caused by floating-point
// error at a segment boundary.
func (s *MergerState) generateNextStepEvent(lastTime, flushTime float64) (EventInfo, bool) {
	bestAxis := -1
	bestTime := math.Inf(1)

	for a := Axis(0); a < numAxes; a++ {
		ev := s.nextCandidate(a, flushTime)
		if ev.Time < bestTime {
			bestTime = ev.Time
			bestAxis = int(a)
		}
	}

	if bestAxis < 0 {
		return EventInfo{}, false
	}

	merged := s.pending[bestAxis]
	s.consume(Axis(bestAxis))

	for a := Axis(0); a < numAxes; a++ {
		if int(a) == bestAxis {
			continue
		}
		ev := s.nextCandidate(a, flushTime)
		if ev.Time != bestTime {
			continue
		}
		merged.Flags |= ev.Flags & (stepFlag(a) | dirEventFlag(a) | activeEventFlag(a))
		s.consume(a)
	}

	if merged.Time < lastTime {
		merged.Time = lastTime
	}

	return merged, true
}
