package stepping_test

import (
	"testing"

	applog "stepcore/pkg/log"
	"stepcore/pkg/metrics"
	"stepcore/pkg/stepping"
	"stepcore/pkg/stepping/testplanner"
)

func newTestEngine(t *testing.T) (*stepping.Engine, *testplanner.Planner, *stepping.SimPins) {
	t.Helper()
	planner := testplanner.New()
	pins := stepping.NewSimPins()
	logger := applog.New("test")
	cfg := stepping.EngineConfig{
		Kinematic:                stepping.KinematicCartesian,
		MMPerStep:                stepping.Vec4{0.0125, 0.0125, 0.0025, 0.0352},
		StepperTimerRateHz:       1000000,
		MoveSegQueueSize:         16,
		StepEventQueueSize:       64,
		MoveSegQueueMinFreeSlots: 1,
		MaxStepEventsPerCall:     4,
	}
	engine := stepping.NewEngine(cfg, planner, pins, logger, metrics.NewKlipperMetrics())
	return engine, planner, pins
}

// runUntilDrained manually pumps the Move-ISR/Step-ISR functions the way
// Init's reactor timers would, without needing a live reactor: each
// iteration compiles whatever the planner has queued, then drains step
// events until the queue is empty, stopping once nothing moved for a full
// round.
func runUntilDrained(e *stepping.Engine, maxRounds int) {
	for i := 0; i < maxRounds; i++ {
		e.RunMoveISRForTest(int64(i))
		for j := 0; j < 100000 && e.StepEventQueueLen() > 0; j++ {
			e.RunStepISRForTest()
		}
	}
}

// A single X-only trapezoidal move should advance SimPins' X step counter
// by exactly Millimeters/MMPerStep steps, and touch no other axis.
func TestEngineDrivesSimPinsThroughTrapezoid(t *testing.T) {
	engine, planner, pins := newTestEngine(t)

	planner.Push(stepping.Block{
		IsMove: true,
		Kinematics: stepping.BlockKinematics{
			Millimeters:     10,
			Acceleration:    200,
			NominalSpeed:    20,
			AxesR:           stepping.Vec4{1, 0, 0, 0},
			ActiveAxisFlags: stepping.FlagActiveX,
		},
	})

	runUntilDrained(engine, 2000)

	wantSteps := int(10 / 0.0125)
	if pins.StepPulses[stepping.AxisX] < wantSteps-1 || pins.StepPulses[stepping.AxisX] > wantSteps+1 {
		t.Fatalf("StepPulses[X] = %d, want ~%d", pins.StepPulses[stepping.AxisX], wantSteps)
	}
	for _, axis := range []stepping.Axis{stepping.AxisY, stepping.AxisZ, stepping.AxisE} {
		if pins.StepPulses[axis] != 0 {
			t.Fatalf("StepPulses[%v] = %d, want 0: only X should move", axis, pins.StepPulses[axis])
		}
	}
}

// A sync block (home position set) must not produce any step pulses.
func TestEngineSyncBlockDoesNotStep(t *testing.T) {
	engine, planner, pins := newTestEngine(t)

	planner.Push(stepping.Block{SyncPosition: true, SetPositionMM: stepping.Vec4{5, 0, 0, 0}})

	runUntilDrained(engine, 2000)

	for _, axis := range []stepping.Axis{stepping.AxisX, stepping.AxisY, stepping.AxisZ, stepping.AxisE} {
		if pins.StepPulses[axis] != 0 {
			t.Fatalf("StepPulses[%v] = %d, want 0: a sync block must not step", axis, pins.StepPulses[axis])
		}
	}
}

// A move too short to reach NominalSpeed collapses to a pure triangle
// (compiler_test.go verifies the segment shape directly); end to end, the
// engine must still land on the correct total step count for X.
func TestEngineDrivesSimPinsThroughPureTriangle(t *testing.T) {
	engine, planner, pins := newTestEngine(t)

	planner.Push(stepping.Block{
		IsMove: true,
		Kinematics: stepping.BlockKinematics{
			Millimeters:     0.5,
			Acceleration:    200,
			NominalSpeed:    20,
			AxesR:           stepping.Vec4{1, 0, 0, 0},
			ActiveAxisFlags: stepping.FlagActiveX,
		},
	})

	runUntilDrained(engine, 2000)

	wantSteps := int(0.5 / 0.0125)
	if pins.StepPulses[stepping.AxisX] < wantSteps-1 || pins.StepPulses[stepping.AxisX] > wantSteps+1 {
		t.Fatalf("StepPulses[X] = %d, want ~%d", pins.StepPulses[stepping.AxisX], wantSteps)
	}
}

// A diagonal XY move must step both axes in proportion to their share of
// the direction vector, and the merger must coalesce same-tick events from
// both axes rather than dropping either one.
func TestEngineDrivesSimPinsThroughXYDiagonal(t *testing.T) {
	engine, planner, pins := newTestEngine(t)

	planner.Push(stepping.Block{
		IsMove: true,
		Kinematics: stepping.BlockKinematics{
			Millimeters:     10,
			Acceleration:    200,
			NominalSpeed:    20,
			AxesR:           stepping.Vec4{0.6, 0.8, 0, 0},
			ActiveAxisFlags: stepping.FlagActiveX | stepping.FlagActiveY,
		},
	})

	runUntilDrained(engine, 2000)

	wantX := int(10 * 0.6 / 0.0125)
	wantY := int(10 * 0.8 / 0.0125)
	if pins.StepPulses[stepping.AxisX] < wantX-2 || pins.StepPulses[stepping.AxisX] > wantX+2 {
		t.Fatalf("StepPulses[X] = %d, want ~%d", pins.StepPulses[stepping.AxisX], wantX)
	}
	if pins.StepPulses[stepping.AxisY] < wantY-2 || pins.StepPulses[stepping.AxisY] > wantY+2 {
		t.Fatalf("StepPulses[Y] = %d, want ~%d", pins.StepPulses[stepping.AxisY], wantY)
	}
}

// RequestStop must halt step production: after it is observed, no further
// step events should be dispatched even if the planner still has moves
// queued.
func TestEngineRequestStopHaltsDispatch(t *testing.T) {
	engine, planner, pins := newTestEngine(t)

	planner.Push(stepping.Block{
		IsMove: true,
		Kinematics: stepping.BlockKinematics{
			Millimeters:     100,
			Acceleration:    200,
			NominalSpeed:    20,
			AxesR:           stepping.Vec4{1, 0, 0, 0},
			ActiveAxisFlags: stepping.FlagActiveX,
		},
	})

	// Run a handful of rounds so some steps land, then request a stop.
	for i := 0; i < 5; i++ {
		engine.RunMoveISRForTest(int64(i))
		for j := 0; j < 1000 && engine.StepEventQueueLen() > 0; j++ {
			engine.RunStepISRForTest()
		}
	}
	engine.RequestStop()
	stepsAtStop := pins.StepPulses[stepping.AxisX]

	engine.ResetQueues()
	for i := 5; i < 200; i++ {
		engine.RunMoveISRForTest(int64(i))
	}

	if pins.StepPulses[stepping.AxisX] != stepsAtStop {
		t.Fatalf("steps advanced after RequestStop+ResetQueues: %d -> %d",
			stepsAtStop, pins.StepPulses[stepping.AxisX])
	}
}
