package stepping

import "stepcore/pkg/reactor"

// moveISRPeriod is how often the Move-ISR timer re-fires while motion is
// active, expressed in reactor seconds. original_source runs this off a
// free-running hardware timer (MOVE_TIMER_FREQUENCY); a reactor timer is
// this engine's Go-idiomatic equivalent of that periodic interrupt.
const moveISRPeriod = 500e-6

// Init brings the engine up from a cold start: it clears both queues,
// resets the halt-state counters, computes the lookback window, and
// registers the two dispatch timers on r. Ports PreciseStepping::init.
func (e *Engine) Init(r *reactor.Reactor) {
	e.segQueue.Clear()
	e.evQueue.Clear()
	e.ResetFromHalt()
	e.UpdateMaxLookbackTime()

	e.lastDirBits = e.invertedDirs

	now := r.Monotonic()
	r.RegisterTimer(e.moveISRCallback, now+moveISRPeriod)
	r.RegisterTimer(e.stepISRCallback, now+float64(e.stepISRDefaultPeriodTicks())/float64(e.Config.StepperTimerRateHz))
}

func (e *Engine) moveISRCallback(eventtime float64) float64 {
	if e.stopPending.Load() {
		return reactor.NEVER
	}
	e.runMoveISR(int64(eventtime * 1000))
	if e.metrics != nil {
		e.metrics.MoveSegQueueDepth.Set(nil, float64(e.segQueue.Len()))
		e.metrics.StepEventQueueDepth.Set(nil, float64(e.evQueue.Len()))
	}
	return eventtime + moveISRPeriod
}

func (e *Engine) stepISRCallback(eventtime float64) float64 {
	if e.stopPending.Load() {
		e.ResetQueues()
		return reactor.NEVER
	}
	ticks := e.runStepISR()
	return eventtime + float64(ticks)/float64(e.Config.StepperTimerRateHz)
}

// ResetFromHalt clears the per-axis generator/merger state and rewinds the
// virtual timeline back to zero. Ports PreciseStepping::reset_from_halt.
func (e *Engine) ResetFromHalt() {
	e.merger.Reset()
	e.initialized = false
	e.totalPrintTime = 0
	e.totalStartPos = Vec4{}
	e.totalStartPosSteps = StepVec4{}
	e.hasBufferedStep = false
	e.bufferedStep = Event{}
	e.leftInsertStartOfSegment = 0
	e.lastMergedTime = 0
	if e.printTimeMgr != nil {
		e.printTimeMgr.Reset()
	}
}

// UpdateMaxLookbackTime recomputes the lookback window shaped generators
// need from neighboring segments. The classic generator needs none; a
// shaped generator reports its own contribution through its LookbackTime
// method, and the largest one wins. Ports PreciseStepping::update_maximum_lookback_time.
func (e *Engine) UpdateMaxLookbackTime() {
	max := 0.0
	for a := Axis(0); a < numAxes; a++ {
		if lb, ok := e.generators[a].(interface{ LookbackTime() float64 }); ok {
			if t := lb.LookbackTime(); t > max {
				max = t
			}
		}
	}
	e.maxLookbackTime = max
}

// RequestStop asks both dispatch timers to suspend at their next
// invocation and flush queue state once stopped. Ports setting
// PreciseStepping::stop_pending from an external caller (e.g. an emergency
// stop or a pause request).
func (e *Engine) RequestStop() {
	e.stopPending.Store(true)
}

// ResetQueues performs the actual suspend-and-clear original_source does in
// PreciseStepping::reset_queues once stop_pending has been observed by both
// dispatch loops: drop both queues, rewind to a halt, flush whatever the
// planner still had queued, and clear the stop flag so Init (or a
// subsequent Resume) can bring the engine back up.
func (e *Engine) ResetQueues() {
	e.evQueue.Clear()
	e.segQueue.Clear()
	e.ResetFromHalt()
	e.planner.ClearBlockBuffer()

	e.stepDeadlineMisses.Store(0)
	e.stepEventMisses.Store(0)
	e.leftTicksToNextStepEvent = 0
	e.axisDidMove = 0
	e.stopPending.Store(false)
}

// Resume re-registers both dispatch timers after a RequestStop/ResetQueues
// cycle, without repeating Init's one-time lookback/direction setup.
func (e *Engine) Resume(r *reactor.Reactor) {
	now := r.Monotonic()
	r.RegisterTimer(e.moveISRCallback, now+moveISRPeriod)
	r.RegisterTimer(e.stepISRCallback, now+float64(e.stepISRDefaultPeriodTicks())/float64(e.Config.StepperTimerRateHz))
}

// StepDeadlineMisses returns the count of ISR deadline misses observed so
// far (telemetry only; this Go engine has no real hardware deadline to
// miss, but the counter is wired for parity with original_source's
// step_dl_miss and for cmd/stepcore-sim to report).
func (e *Engine) StepDeadlineMisses() uint32 { return e.stepDeadlineMisses.Load() }

// StepEventMisses returns the count of times the Step-ISR found the event
// queue drained with motion still active (step_ev_miss in original_source).
func (e *Engine) StepEventMisses() uint32 { return e.stepEventMisses.Load() }
