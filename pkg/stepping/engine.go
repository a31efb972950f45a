package stepping

import (
	"sync/atomic"

	"stepcore/pkg/clocksync"
	"stepcore/pkg/errors"
	"stepcore/pkg/inputshaper"
	"stepcore/pkg/log"
	"stepcore/pkg/metrics"
	"stepcore/pkg/printtime"
)

// maxPrintTime is the sentinel value total_print_time is pushed past once
// the ending empty move has been appended, signalling "motion has been
// told to drain and halt". Ported from original_source's MAX_PRINT_TIME.
const maxPrintTime = 1e9

// defaultMaxStepEventsPerCall bounds how many step events a single
// Move-ISR iteration will push into the queue before yielding, matching
// original_source's MAX_STEP_EVENTS_PRODUCED_PER_ONE_CALL.
const defaultMaxStepEventsPerCall = 8

// EngineConfig is the fixed, boot-time configuration of an Engine: the Go
// analog of the compile-time constants (STEPPER_TIMER_RATE,
// Planner::mm_per_step, INVERT_*_DIR, ...) original_source reads from
// board-specific headers. Resolved from pkg/config's motion section.
type EngineConfig struct {
	Kinematic KinematicType

	MMPerStep Vec4

	StepperTimerRateHz uint32

	MoveSegQueueSize         int
	StepEventQueueSize       int
	MoveSegQueueMinFreeSlots int
	MaxStepEventsPerCall     int

	// InvertDir holds the Dir{X,Y,Z,E} bits that should read as "inverted"
	// relative to the raw direction sense, same role as INVERT_*_DIR.
	InvertDir StepEventFlag

	// Shaper configures per-axis input shaping (X/Y/Z). Axes whose shaper is
	// nil, disabled, or absent fall back to the classic generator. Grounded
	// on pkg/inputshaper's InputShaper/AxisInputShaper.
	Shaper *inputshaper.InputShaper

	// MCUFrequencyHz, when nonzero, gives the Engine its own
	// pkg/clocksync.ClockSync (host print-time <-> MCU clock tick
	// translation) and pkg/printtime.Manager (buffer/stall bookkeeping),
	// the way original_source's toolhead keeps print_time synchronized
	// with the MCU it drives. Leave zero for a pure host-time engine (e.g.
	// SimPins, which has no MCU clock to synchronize with).
	MCUFrequencyHz float64
}

// Engine is the Go-native stand-in for PreciseStepping's C++ static
// singleton: it owns both queues, the merger state, the two dispatch
// goroutines, and the halt/stop/reset lifecycle. One Engine instance per
// toolhead.
type Engine struct {
	Config EngineConfig

	planner Planner
	pins    Pins
	logger  *log.Logger
	metrics *metrics.KlipperMetrics

	segQueue     *MoveSegQueue
	evQueue      *StepEvQueue
	merger       *MergerState
	generators   [numAxes]Generator
	printTimeMgr *printtime.Manager

	invertedDirs StepEventFlag
	lastDirBits  StepEventFlag
	axisDidMove  StepEventFlag

	totalPrintTime float64
	totalStartPos  Vec4

	// totalStartPosSteps is the exact integer step-domain twin of
	// totalStartPos, accumulated per block from BlockKinematics.Steps.
	// totalStartPos is re-derived from it after every block so that
	// per-block mm-domain rounding in compileBlock's segment math can't
	// accumulate into position drift over a long print.
	totalStartPosSteps StepVec4

	maxLookbackTime float64

	waitingBeforeDeliveringStart int64 // ms, 0 == not waiting

	bufferedStep             Event
	hasBufferedStep          bool
	leftInsertStartOfSegment int
	lastMergedTime           float64

	leftTicksToNextStepEvent uint32

	stepDeadlineMisses atomic.Uint32
	stepEventMisses    atomic.Uint32

	stopPending atomic.Bool

	initialized bool
}

// NewEngine constructs an Engine wired to planner and pins, grounded on
// PreciseStepping's static member layout but expressed as an ordinary
// value instead of globals.
func NewEngine(cfg EngineConfig, planner Planner, pins Pins, logger *log.Logger, m *metrics.KlipperMetrics) *Engine {
	if cfg.MaxStepEventsPerCall == 0 {
		cfg.MaxStepEventsPerCall = defaultMaxStepEventsPerCall
	}
	e := &Engine{
		Config:   cfg,
		planner:  planner,
		pins:     pins,
		logger:   logger,
		metrics:  m,
		segQueue: NewMoveSegQueue(cfg.MoveSegQueueSize),
		evQueue:  NewStepEvQueue(cfg.StepEventQueueSize),
		merger:   NewMergerState(),
	}
	for a := Axis(0); a < numAxes; a++ {
		e.generators[a] = newClassicGenerator(e, a)
	}
	installShapers(e, cfg.Shaper)
	e.invertedDirs = cfg.InvertDir
	if cfg.MCUFrequencyHz > 0 {
		cs := clocksync.New(cfg.MCUFrequencyHz)
		cs.Initialize(0, 0)
		e.printTimeMgr = printtime.New(cs)
	}
	return e
}

// installShapers replaces the classic generator on X/Y/Z with a
// shapedGenerator wherever shaper names an enabled axis shaper. The E axis
// is never shaped (pressure advance, not input shaping, is what smooths
// extrusion, and this engine does not model it).
func installShapers(e *Engine, shaper *inputshaper.InputShaper) {
	if shaper == nil {
		return
	}
	axisByName := map[string]Axis{"x": AxisX, "y": AxisY, "z": AxisZ}
	for _, s := range shaper.GetShapers() {
		axis, ok := axisByName[s.Axis]
		if !ok || !s.IsEnabled() {
			continue
		}
		n, a, t := s.GetShaper()
		e.generators[axis] = newShapedGenerator(e, axis, n, a, t)
	}
}

// moveSegmentProcessed is invoked by a generator when it advances off a
// segment whose reference_cnt it just decremented to (potentially) zero.
// Ports PreciseStepping::move_segment_processed_handler: if the oldest
// unprocessed segment is now unreferenced, it's moved from "unprocessed"
// to "awaiting a BeginningOfMoveSegment marker in the event stream".
func (e *Engine) moveSegmentProcessed() {
	seg := e.segQueue.CurrentUnprocessed()
	if seg != nil && seg.ReferenceCnt == 0 {
		e.segQueue.DiscardCurrentUnprocessed()
		e.leftInsertStartOfSegment++
	}
}

func (e *Engine) newFatalError(detail string) error {
	return errors.SteppingError(detail)
}

// MoveSegQueueLen reports how many move segments are currently queued, for
// telemetry (e.g. cmd/stepcore-sim's dashboard feed).
func (e *Engine) MoveSegQueueLen() int { return e.segQueue.Len() }

// StepEventQueueLen reports how many tick-domain step events are currently
// queued, for telemetry.
func (e *Engine) StepEventQueueLen() int { return e.evQueue.Len() }

// RunMoveISRForTest drives one Move-ISR iteration directly, without a live
// reactor timer. Exported for pkg/stepping_test's black-box engine tests.
func (e *Engine) RunMoveISRForTest(nowMS int64) { e.runMoveISR(nowMS) }

// RunStepISRForTest drives one Step-ISR iteration directly, without a live
// reactor timer. Exported for pkg/stepping_test's black-box engine tests.
func (e *Engine) RunStepISRForTest() uint32 { return e.runStepISR() }

// EstimatedPrintTime reports the Engine's notion of print time: the print
// time held by printTimeMgr (advanced to totalPrintTime after each committed
// block) when the Engine was configured with an MCUFrequencyHz, otherwise
// the raw host-time totalPrintTime.
func (e *Engine) EstimatedPrintTime() float64 {
	if e.printTimeMgr != nil {
		return e.printTimeMgr.GetPrintTime()
	}
	return e.totalPrintTime
}

// DisableMotors implements pkg/safety's MotorDisabler: an emergency stop
// must stop the Move-ISR/Step-ISR dispatch loops as fast as RequestStop
// already does for an ordinary end-of-print drain.
func (e *Engine) DisableMotors() error {
	e.RequestStop()
	return nil
}
