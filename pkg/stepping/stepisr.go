package stepping

import "time"

// Step-ISR dispatcher tuning, ported from PreciseStepping::step_isr.
// min_delay fuses a step event that lands very soon into the current
// dispatch (spin-waiting for it) rather than paying the cost of a fresh
// timer rearm; min_reserve is the shortest interval the next dispatch can
// safely be scheduled at; max_ticks bounds an interval so the 16-bit
// wraparound deadline check can't be fooled by a wrapped counter.
const (
	stepISRMinDelayUS   = 6
	stepISRMinReserveUS = 5
	stepISRMaxSteps     = 4
	stepISRMaxTicks     = 0xFFFF / 2
)

// stepISRDefaultPeriodTicks is how long the Step-ISR waits before its next
// dispatch when the event queue is empty, ported from
// PreciseStepping::stepper_isr_period_in_ticks (1ms at the configured tick
// rate in original_source).
func (e *Engine) stepISRDefaultPeriodTicks() uint32 {
	return e.Config.StepperTimerRateHz / 1000
}

// usToTicks converts a microsecond threshold to this engine's tick rate,
// the same STEPPER_TIMER_RATE-relative conversion original_source's
// min_delay/min_reserve constants assume. Never rounds to zero: even a slow
// configured tick rate must keep some fusion/reserve margin.
func (e *Engine) usToTicks(us uint32) uint32 {
	ticks := e.Config.StepperTimerRateHz / 1000000 * us
	if ticks == 0 {
		ticks = 1
	}
	return ticks
}

// processOneStepEvent ports PreciseStepping::process_one_step_event_from_queue:
// it pops the current step event (if any), applies direction and step
// pulses through Pins, releases the move segment the event closed out (when
// it carries StepEventBeginningOfMoveSegment), and returns the tick delay
// until the next event should be dispatched.
func (e *Engine) processOneStepEvent() uint32 {
	ticksToNextISR := e.stepISRDefaultPeriodTicks()

	ev := e.evQueue.Current()
	if ev == nil {
		return ticksToNextISR
	}

	flags := ev.Flags
	dir := flags & StepEventDirMask
	dirInv := dir ^ e.invertedDirs
	activeMask := (flags & StepEventActiveMask) >> 9

	if flags&StepEventBeginningOfMoveSegment != 0 {
		if seg := e.segQueue.Current(); seg != nil && seg.Flags&FlagLastSegOfBlock != 0 {
			if block := e.planner.CurrentProcessedBlock(); block != nil {
				if block.SyncPosition {
					e.syncPinsPosition(block.SetPositionMM)
				}
				e.planner.DiscardCurrentBlock()
			}
		}
		for e.segQueue.ReleaseOneProcessed() {
		}
	}

	e.evQueue.Discard()

	if changed := dir ^ e.lastDirBits; changed != 0 {
		e.lastDirBits = dir
		e.pins.SetDir(changed, dirInv)
	}

	for a := Axis(0); a < numAxes; a++ {
		if flags&stepFlag(a) != 0 {
			e.pins.Step(a)
		}
	}
	e.axisDidMove = activeMask

	if next := e.evQueue.Current(); next != nil {
		ticksToNextISR = uint32(next.TimeTicks)
	} else if flags&StepEventEndOfMotion == 0 {
		e.stepEventMisses.Add(1)
		if e.metrics != nil {
			e.metrics.StepEventMisses.Inc(nil)
		}
	}

	return ticksToNextISR
}

// syncPinsPosition is the Go analog of Stepper::_set_position: forcing the
// counted step position to a known absolute value after a sync block,
// without moving any motor. Pins implementations that care about absolute
// position (like SerialPins) can use this to stay aligned with the planner.
func (e *Engine) syncPinsPosition(mm Vec4) {
	if sp, ok := e.pins.(interface{ SetPosition(Vec4, Vec4) }); ok {
		sp.SetPosition(mm, e.Config.MMPerStep)
	}
}

// runStepISR ports PreciseStepping::step_isr. Each iteration either
// consumes a fresh step event (persisting whatever tick remainder it left
// in leftTicksToNextStepEvent) or spends down what's left of the current
// one; a gap larger than min_delay, or hitting max_steps, breaks out of the
// fusion loop and returns control to the caller's timer. A gap smaller than
// min_delay is instead spin-waited inline, fusing what would otherwise be a
// separate near-immediate ISR firing into this one. Returns the tick delay
// the caller (the reactor timer driving this engine) should wait before
// calling again.
func (e *Engine) runStepISR() uint32 {
	minDelay := e.usToTicks(stepISRMinDelayUS)
	minReserve := e.usToTicks(stepISRMinReserveUS)

	var timeIncrement uint32
	for steps := 0; steps < stepISRMaxSteps; {
		if e.stopPending.Load() {
			timeIncrement = e.stepISRDefaultPeriodTicks()
			e.axisDidMove = 0
			break
		}

		if e.leftTicksToNextStepEvent == 0 {
			e.leftTicksToNextStepEvent = e.processOneStepEvent()
			steps++
		}

		// Limit the interval so a wrapped counter can't hide an overflow.
		ticksToNextStepEvent := e.leftTicksToNextStepEvent
		if ticksToNextStepEvent > stepISRMaxTicks {
			ticksToNextStepEvent = stepISRMaxTicks
		}
		e.leftTicksToNextStepEvent -= ticksToNextStepEvent
		timeIncrement += ticksToNextStepEvent

		if ticksToNextStepEvent > minDelay || steps >= stepISRMaxSteps {
			break
		}

		// The next event is too close to justify a fresh ISR but still
		// within margin: spin for the remainder instead of returning.
		if e.leftTicksToNextStepEvent > 0 {
			e.spinWait(e.leftTicksToNextStepEvent)
		}
	}

	return e.reserveNextDispatch(timeIncrement, minReserve)
}

// spinWait busy-waits for the given number of ticks, this engine's
// equivalent of original_source's delay_us_precise: it's what lets
// runStepISR fuse a sub-min_delay gap into the current dispatch instead of
// paying for another timer rearm.
func (e *Engine) spinWait(ticks uint32) {
	time.Sleep(time.Duration(ticks) * time.Second / time.Duration(e.Config.StepperTimerRateHz))
}

// reserveNextDispatch is the software analog of step_isr's compare-register
// rearm at the end of the dispatch loop: a deadline is missed when the next
// dispatch would need to fire sooner than min_reserve ticks away, the
// minimum margin this engine needs to safely reschedule. On a miss the
// reschedule is clamped to min_reserve and the miss is counted. The 16-bit
// wraparound comparison is kept even though there's no literal hardware
// counter here, so an interval that underflows past the reserve is caught
// exactly the way original_source catches it.
func (e *Engine) reserveNextDispatch(timeIncrement, minReserve uint32) uint32 {
	if uint16(timeIncrement-minReserve) > stepISRMaxTicks {
		e.stepDeadlineMisses.Add(1)
		if e.metrics != nil {
			e.metrics.StepDeadlineMisses.Inc(nil)
		}
		return minReserve
	}
	return timeIncrement
}
