package stepping

// moveGeneratorStatus mirrors StepGeneratorStatus from original_source: the
// three outcomes a single Move-ISR iteration can report back to its caller,
// used to decide whether to keep compiling blocks or to pause.
type moveGeneratorStatus int

const (
	statusOK moveGeneratorStatus = iota
	statusFullStepEventQueue
	statusNoStepEventProduced
)

// isWaitingBeforeDelivering ports PreciseStepping::is_waiting_before_delivering:
// a short warm-up delay (requested by the planner after a pause/resume or
// at print start) during which the engine holds off draining blocks even
// though some are queued, plus back-pressure relief when the planner has a
// lot of already-processed blocks still waiting to be discarded and every
// generator is stuck at the end of the move queue.
func (e *Engine) isWaitingBeforeDelivering(nowMS int64) bool {
	if delay := e.planner.DelayBeforeDeliveringMS(); delay > 0 {
		if e.waitingBeforeDeliveringStart == 0 {
			e.waitingBeforeDeliveringStart = nowMS
			return true
		}
		if e.planner.MovesPlanned()-e.planner.MovesPlannedProcessed() >= 3 ||
			nowMS-e.waitingBeforeDeliveringStart >= int64(delay) {
			e.waitingBeforeDeliveringStart = 0
		} else {
			return true
		}
	}

	waitingForDiscard := e.planner.MovesPlannedProcessed()
	if waitingForDiscard >= 4 {
		return !e.allGeneratorsReachedEndOfQueue()
	}
	return false
}

func (e *Engine) allGeneratorsReachedEndOfQueue() bool {
	return e.segQueue.Len() == 0 && !e.segQueue.HasUnprocessed()
}

// processQueueOfBlocks ports PreciseStepping::process_queue_of_blocks: it
// drains sync blocks directly, compiles regular blocks into move segments,
// and appends the beginning/ending empty-move sentinels at the start and
// drain-end of a motion stream.
func (e *Engine) processQueueOfBlocks(nowMS int64) {
	if e.isWaitingBeforeDelivering(nowMS) {
		return
	}

	if e.totalPrintTime >= maxPrintTime {
		if e.segQueue.Len() > 0 {
			return
		}
		e.ResetFromHalt()
	}

	for {
		block := e.planner.CurrentUnprocessedBlock()
		if block == nil {
			break
		}
		if block.IsMove {
			break
		}

		if e.totalPrintTime == 0 {
			if block.SyncPosition {
				e.syncPinsPosition(block.SetPositionMM)
			}
			e.planner.DiscardCurrentUnprocessedBlock()
			e.planner.DiscardCurrentBlock()
			continue
		}

		if !e.appendBlockDiscardingMove() {
			return
		}
		e.planner.DiscardCurrentUnprocessedBlock()
	}

	block := e.planner.CurrentUnprocessedBlock()
	if block == nil {
		if e.totalPrintTime != 0 && e.allGeneratorsReachedEndOfQueue() {
			e.appendEndingEmptyMove()
		}
		return
	}

	if e.totalPrintTime == 0 {
		if !e.appendBeginningEmptyMove() {
			return
		}
	}

	pt, sp, steps, ok := compileBlock(e.segQueue, e.Config.MoveSegQueueMinFreeSlots, block.Kinematics, e.totalPrintTime, e.totalStartPos, e.totalStartPosSteps, e.Config.MMPerStep)
	if !ok {
		return
	}
	e.totalPrintTime = pt
	e.totalStartPos = sp
	e.totalStartPosSteps = steps
	e.planner.DiscardCurrentUnprocessedBlock()
	if e.printTimeMgr != nil {
		e.printTimeMgr.AdvanceMoveTime(e.totalPrintTime)
	}
}

func (e *Engine) appendBeginningEmptyMove() bool {
	duration := e.maxLookbackTime + 0.001
	ok := e.segQueue.Append(Move{
		Duration: duration,
		StartPos: e.totalStartPos,
		Flags:    FlagBeginningEmpty,
	})
	if ok {
		e.totalPrintTime = duration
	}
	return ok
}

func (e *Engine) appendBlockDiscardingMove() bool {
	return e.segQueue.Append(Move{
		Duration:  0,
		PrintTime: e.totalPrintTime,
		StartPos:  e.totalStartPos,
		Flags:     FlagFirstSegOfBlock | FlagLastSegOfBlock,
	})
}

func (e *Engine) appendEndingEmptyMove() bool {
	ok := e.segQueue.Append(Move{
		Duration:  maxPrintTime,
		PrintTime: e.totalPrintTime,
		StartPos:  e.totalStartPos,
		Flags:     FlagEndingEmpty,
	})
	if ok {
		e.totalPrintTime += maxPrintTime
	}
	return ok
}

// initGeneratorsOnBeginningMove attaches one generator per axis to the
// beginning-empty sentinel, the first time the engine ever has a segment to
// consume. Ports PreciseStepping::step_generator_state_init.
func (e *Engine) initGeneratorsOnBeginningMove(seg *Move) {
	for a := Axis(0); a < numAxes; a++ {
		e.merger.Generators[a] = e.generators[a]
		e.generators[a].Init(seg, a, e.merger)
	}
	e.initialized = true
}

// processOneMoveSegment ports PreciseStepping::process_one_move_segment_from_queue:
// it drives the merger until either MaxStepEventsPerCall events have been
// queued, the step event queue is full, or every generator has run out of
// move segments to consume.
func (e *Engine) processOneMoveSegment() moveGeneratorStatus {
	produced := 0

	if seg := e.segQueue.CurrentUnprocessed(); seg != nil {
		if !e.initialized {
			e.initGeneratorsOnBeginningMove(seg)
		}

		flushTime := e.totalPrintTime - e.maxLookbackTime

		for ; produced < e.Config.MaxStepEventsPerCall; produced++ {
			if e.hasBufferedStep && e.evQueue.Full() {
				return statusFullStepEventQueue
			}

			ev, ok := e.merger.generateNextStepEvent(e.lastMergedTime, flushTime)
			if !ok {
				break
			}
			e.accumulateStep(ev)
		}
	}

	if produced == 0 {
		if seg := e.segQueue.CurrentUnprocessed(); seg != nil && seg.IsEndingEmpty() {
			if e.hasBufferedStep {
				if e.evQueue.Full() {
					return statusFullStepEventQueue
				}
				e.evQueue.Push(e.bufferedStep)
				e.hasBufferedStep = false
			}

			for e.leftInsertStartOfSegment > 0 && e.pushDiscardEvent(0) {
				e.leftInsertStartOfSegment--
			}

			if e.leftInsertStartOfSegment == 0 {
				if !e.evQueue.Full() {
					e.segQueue.DiscardCurrentUnprocessed()
					e.pushDiscardEvent(StepEventEndOfMotion)
				}
			}
		}
	}

	if produced == 0 {
		return statusNoStepEventProduced
	}
	return statusOK
}

// accumulateStep folds a freshly merged event into the buffered-step slot,
// flushing the existing buffer to the queue first if the new event can't be
// coalesced with it. Ports the accumulate/flush logic inside
// process_one_move_segment_from_queue: events at the same absolute time, on
// axes that don't both step and that agree on every shared direction bit,
// are merged into a single queued event instead of two back-to-back ones.
func (e *Engine) accumulateStep(ev EventInfo) {
	deltaTicks := int32((ev.Time - e.lastMergedTime) * float64(e.Config.StepperTimerRateHz))
	if deltaTicks < 0 {
		deltaTicks = 0
	}
	e.lastMergedTime = ev.Time
	newEvent := Event{TimeTicks: deltaTicks, Flags: ev.Flags}

	if !e.hasBufferedStep {
		e.bufferedStep = newEvent
		e.hasBufferedStep = true
		return
	}

	sameTime := newEvent.TimeTicks == 0
	noOverlap := e.bufferedStep.Flags&newEvent.Flags&(StepEventStepMask|StepEventBeginningOfMoveSegment|StepEventEndOfMotion) == 0
	sameDir := e.bufferedStep.Flags&StepEventDirMask == newEvent.Flags&StepEventDirMask

	if sameTime && noOverlap && sameDir {
		e.bufferedStep.Flags |= newEvent.Flags
		return
	}

	e.evQueue.Push(e.bufferedStep)
	e.bufferedStep = newEvent
}

func (e *Engine) pushDiscardEvent(extra StepEventFlag) bool {
	return e.evQueue.Push(Event{
		TimeTicks: 0,
		Flags:     e.merger.Flags | StepEventBeginningOfMoveSegment | extra,
	})
}

// runMoveISR is the Move-ISR producer: one invocation either advances the
// block compiler or pulls one round of merged steps into the queue, then
// falls back to retrying block compilation for up to MovesPlanned()+2
// rounds if nothing was produced, matching original_source's starvation
// guard against a long run of very short segments.
func (e *Engine) runMoveISR(nowMS int64) {
	if e.stopPending.Load() {
		return
	}

	status := e.processOneMoveSegment()
	switch status {
	case statusOK:
		return
	case statusFullStepEventQueue:
		e.processQueueOfBlocks(nowMS)
		return
	}

	limit := e.planner.MovesPlanned() + 1
	for i := 0; i <= limit; i++ {
		e.processQueueOfBlocks(nowMS)
		if !e.segQueue.HasUnprocessed() {
			break
		}
		status = e.processOneMoveSegment()
		if status != statusNoStepEventProduced {
			break
		}
	}
}
