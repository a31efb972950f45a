package stepping

import (
	"math"
	"testing"
)

func newTestEngineForGenerator(mmPerStep Vec4) *Engine {
	return NewEngine(
		EngineConfig{
			Kinematic:                KinematicCartesian,
			MMPerStep:                mmPerStep,
			StepperTimerRateHz:       1000000,
			MoveSegQueueSize:         8,
			StepEventQueueSize:       8,
			MoveSegQueueMinFreeSlots: 1,
		},
		nil, nil, nil, nil,
	)
}

// A constant-velocity segment (HalfAccel == 0) must produce evenly spaced
// steps whose count matches Duration*StartV/mmPerStep.
func TestClassicGeneratorConstantVelocity(t *testing.T) {
	e := newTestEngineForGenerator(Vec4{0.01, 0, 0, 0})
	move := &Move{
		Duration: 1,
		StartV:   10,
		AxesR:    Vec4{1, 0, 0, 0},
		Flags:    FlagActiveX,
	}
	e.segQueue.Append(*move)
	seg := e.segQueue.Current()

	state := &MergerState{}
	gen := newClassicGenerator(e, AxisX)
	gen.Init(seg, AxisX, state)

	count := 0
	lastTime := -math.MaxFloat64
	for {
		ev := gen.NextStep(state, 1.0)
		if ev.Time == math.Inf(1) {
			break
		}
		if ev.Time < lastTime {
			t.Fatalf("step time went backwards: %v after %v", ev.Time, lastTime)
		}
		lastTime = ev.Time
		count++
		if count > 10000 {
			t.Fatal("generator did not terminate: producing unbounded steps")
		}
	}

	want := int(1 * 10 / 0.01)
	if count < want-1 || count > want+1 {
		t.Fatalf("produced %d steps, want ~%d", count, want)
	}
}

// A segment with Flags&dirFlag(axis) set steps in the negative direction,
// decrementing state.CurrentDistance instead of incrementing it.
func TestClassicGeneratorNegativeDirection(t *testing.T) {
	e := newTestEngineForGenerator(Vec4{0.01, 0, 0, 0})
	move := &Move{
		Duration: 1,
		StartV:   -10,
		AxesR:    Vec4{1, 0, 0, 0},
		Flags:    FlagActiveX | dirFlag(AxisX),
	}
	e.segQueue.Append(*move)
	seg := e.segQueue.Current()

	state := &MergerState{}
	gen := newClassicGenerator(e, AxisX)
	gen.Init(seg, AxisX, state)

	ev := gen.NextStep(state, 1.0)
	if ev.Time == math.Inf(1) {
		t.Fatal("expected at least one step from a moving segment")
	}
	if state.CurrentDistance[AxisX] != -1 {
		t.Fatalf("CurrentDistance[X] = %d, want -1 after one negative-direction step", state.CurrentDistance[AxisX])
	}
}

// Once a segment runs out, the generator must roll onto the next queued
// segment, decrementing the old one's ReferenceCnt and incrementing the
// new one's, and updating the cached direction bit in state.Flags.
func TestClassicGeneratorRollsToNextSegment(t *testing.T) {
	e := newTestEngineForGenerator(Vec4{0.01, 0, 0, 0})
	e.segQueue.Append(Move{Duration: 0.01, StartV: 10, AxesR: Vec4{1, 0, 0, 0}, Flags: FlagActiveX})
	e.segQueue.Append(Move{Duration: 1, StartV: 10, AxesR: Vec4{1, 0, 0, 0}, Flags: FlagActiveX, PrintTime: 0.01})

	first := e.segQueue.Current()
	state := &MergerState{}
	gen := newClassicGenerator(e, AxisX)
	gen.Init(first, AxisX, state)
	if first.ReferenceCnt != 1 {
		t.Fatalf("ReferenceCnt on first segment = %d, want 1 after Init", first.ReferenceCnt)
	}

	sawRollover := false
	for i := 0; i < 1000; i++ {
		ev := gen.NextStep(state, 0.05)
		if ev.Time == math.Inf(1) {
			break
		}
		if gen.currentMove != first {
			sawRollover = true
			break
		}
	}
	if !sawRollover {
		t.Fatal("generator never rolled onto the second queued segment")
	}
	if first.ReferenceCnt != 0 {
		t.Fatalf("ReferenceCnt on first segment after rollover = %d, want 0", first.ReferenceCnt)
	}
}

// axisProjection must apply the CoreXY A/B linear transform, not a bare
// pass-through, whenever the engine's kinematic type is CoreXY.
func TestAxisProjectionCoreXY(t *testing.T) {
	seg := &Move{AxesR: Vec4{0.6, 0.8, 0, 0}}
	gotA := axisProjection(KinematicCoreXY, seg, AxisX)
	gotB := axisProjection(KinematicCoreXY, seg, AxisY)
	if !almostEqual(gotA, 0.6+0.8) {
		t.Fatalf("A motor projection = %v, want %v", gotA, 0.6+0.8)
	}
	if !almostEqual(gotB, 0.6-0.8) {
		t.Fatalf("B motor projection = %v, want %v", gotB, 0.6-0.8)
	}
	// Z is untouched by the CoreXY transform.
	if got := axisProjection(KinematicCoreXY, seg, AxisZ); got != seg.AxesR[AxisZ] {
		t.Fatalf("Z projection = %v, want pass-through %v", got, seg.AxesR[AxisZ])
	}
}

func TestTimeForDistanceConstantVelocity(t *testing.T) {
	got := timeForDistance(10, 0, 5)
	if !almostEqual(got, 0.5) {
		t.Fatalf("timeForDistance(10, 0, 5) = %v, want 0.5", got)
	}
}

func TestTimeForDistanceUnreachableReturnsNaN(t *testing.T) {
	// Decelerating to a stop well before reaching dist: no real positive root.
	got := timeForDistance(1, -10, 1000)
	if !math.IsNaN(got) {
		t.Fatalf("timeForDistance = %v, want NaN for an unreachable distance", got)
	}
}
