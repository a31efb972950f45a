package stepping

import "testing"

func newTestEngineForStepISR(queueSize int) *Engine {
	return NewEngine(
		EngineConfig{
			Kinematic:                KinematicCartesian,
			MMPerStep:                Vec4{0.01, 0.01, 0.01, 0.01},
			StepperTimerRateHz:       1000000,
			MoveSegQueueSize:         8,
			StepEventQueueSize:       queueSize,
			MoveSegQueueMinFreeSlots: 1,
		},
		&testPlannerStub{}, NewSimPins(), nil, nil,
	)
}

// With the event queue empty, runStepISR must fall back to the idle period
// and leave leftTicksToNextStepEvent at zero.
func TestRunStepISRIdlesOnEmptyQueue(t *testing.T) {
	e := newTestEngineForStepISR(8)

	ticks := e.runStepISR()

	want := e.stepISRDefaultPeriodTicks()
	if ticks != want {
		t.Fatalf("runStepISR() = %d, want %d (idle period)", ticks, want)
	}
	if e.leftTicksToNextStepEvent != 0 {
		t.Fatalf("leftTicksToNextStepEvent = %d, want 0", e.leftTicksToNextStepEvent)
	}
}

// A single event with no follow-up counts a step event miss (the queue
// drained with motion still implied) but not a deadline miss: the returned
// interval falls back to the idle period, well above min_reserve.
func TestRunStepISRCountsStepEventMiss(t *testing.T) {
	e := newTestEngineForStepISR(8)
	e.evQueue.Push(Event{TimeTicks: 50})

	e.runStepISR()

	if got := e.StepEventMisses(); got != 1 {
		t.Fatalf("StepEventMisses() = %d, want 1", got)
	}
	if got := e.StepDeadlineMisses(); got != 0 {
		t.Fatalf("StepDeadlineMisses() = %d, want 0", got)
	}
}

// A run of events spaced closer together than min_delay gets fused into a
// single dispatch via the busy-wait path: leftTicksToNextStepEvent carries
// the remainder across calls rather than losing it. Once max_steps worth of
// 1-tick gaps have been fused, the total time this dispatch asks to wait
// before its next firing (4 ticks) is less than min_reserve (5 ticks at a
// 1MHz tick rate) — exactly the interval step_isr treats as unsafe to
// re-arm against, so it must be counted as a deadline miss and clamped up
// to min_reserve.
func TestRunStepISRFusesSubMinDelayGapsAndCountsDeadlineMiss(t *testing.T) {
	e := newTestEngineForStepISR(8)
	for i := 0; i < 5; i++ {
		e.evQueue.Push(Event{TimeTicks: 1})
	}

	ticks := e.runStepISR()

	if got := e.StepDeadlineMisses(); got != 1 {
		t.Fatalf("StepDeadlineMisses() = %d, want 1", got)
	}
	wantReserve := e.usToTicks(stepISRMinReserveUS)
	if ticks != wantReserve {
		t.Fatalf("runStepISR() = %d, want %d (clamped to min_reserve)", ticks, wantReserve)
	}
	if e.evQueue.Len() != 1 {
		t.Fatalf("evQueue.Len() = %d, want 1: 4 events consumed, the 5th only peeked as lookahead", e.evQueue.Len())
	}
}

// stopPending must be observed even mid-fusion-loop: once set, runStepISR
// falls back to the idle period instead of continuing to drain events.
func TestRunStepISRHonorsStopPending(t *testing.T) {
	e := newTestEngineForStepISR(8)
	e.evQueue.Push(Event{TimeTicks: 1})
	e.evQueue.Push(Event{TimeTicks: 1})
	e.RequestStop()

	ticks := e.runStepISR()

	if got := e.stepISRDefaultPeriodTicks(); ticks != got {
		t.Fatalf("runStepISR() = %d, want %d (idle period) once stopPending is set", ticks, got)
	}
	if e.evQueue.Len() != 2 {
		t.Fatalf("evQueue.Len() = %d, want 2: stopPending must stop event consumption", e.evQueue.Len())
	}
}
