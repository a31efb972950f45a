package stepping

import "math"

// halfStepEpsilon bounds how far past a segment's own duration we'll still
// accept a root as "within this segment" before treating it as having run
// past the end (mirrors original_source's EPSILON guard around move_t).
const halfStepEpsilon = 1e-9

// Generator is the step generator contract of spec.md §4.2. Every concrete
// generator (classic, shaped) implements this; the
// merger holds one per axis and never type-switches on the concrete type.
type Generator interface {
	// Init attaches the generator to seg (incrementing seg.ReferenceCnt),
	// publishes the axis's direction/active bits into state.Flags, and
	// primes the generator's cached kinematic coefficients.
	Init(seg *Move, axis Axis, state *MergerState)

	// NextStep produces the next step on this axis strictly after the one
	// last returned, with absolute time <= flushTime. Returns NoEvent with
	// no side effect on state.CurrentDistance when no event is available
	// yet (either because the segment ran out before producing one, or
	// the next event would be beyond flushTime).
	NextStep(state *MergerState, flushTime float64) EventInfo
}

// axisProjection returns the axis's unit-direction component of seg,
// applying the CoreXY/CoreXZ A/B linear transform when the engine is
// configured for that kinematic type. Grounded on get_move_axis_r in
// original_source, and on the A = x+y / B = x-y transform used at the
// toolhead level in pkg/kinematics/corexy.go (adapted here from cartesian
// position space to the unit-direction axes_r space the generator needs).
func axisProjection(kind KinematicType, seg *Move, axis Axis) float64 {
	switch kind {
	case KinematicCoreXY:
		switch axis {
		case AxisX: // A motor
			return seg.AxesR[AxisX] + seg.AxesR[AxisY]
		case AxisY: // B motor
			return seg.AxesR[AxisX] - seg.AxesR[AxisY]
		}
	case KinematicCoreXZ:
		switch axis {
		case AxisX:
			return seg.AxesR[AxisX] + seg.AxesR[AxisZ]
		case AxisZ:
			return seg.AxesR[AxisX] - seg.AxesR[AxisZ]
		}
	}
	return seg.AxesR[axis]
}

// classicGenerator is the closed-form, no-lookahead generator of spec.md
// §4.2: it inverts start_pos + v*t + 1/2*a*t^2 = target directly, with no
// knowledge of neighboring segments beyond "what comes next in the queue".
type classicGenerator struct {
	axis Axis
	kind KinematicType

	mmPerStep     float64
	mmPerHalfStep float64

	currentMove *Move

	startV   float64
	accel    float64
	startPos float64
	stepDir  bool // true == positive direction

	engine *Engine
}

func newClassicGenerator(eng *Engine, axis Axis) *classicGenerator {
	return &classicGenerator{
		axis:          axis,
		kind:          eng.Config.Kinematic,
		mmPerStep:     eng.Config.MMPerStep[axis],
		mmPerHalfStep: eng.Config.MMPerStep[axis] / 2,
		engine:        eng,
	}
}

func (g *classicGenerator) Init(seg *Move, axis Axis, state *MergerState) {
	g.axis = axis
	g.currentMove = seg
	seg.ReferenceCnt++

	state.Flags |= StepEventFlag(seg.Flags) & dirEventFlag(axis)
	state.Flags |= StepEventFlag(seg.Flags) & activeEventFlag(axis)

	g.update()
}

func (g *classicGenerator) update() {
	axisR := axisProjection(g.kind, g.currentMove, g.axis)
	if axisR == 0 {
		g.startV = 0
		g.accel = 0
	} else {
		g.startV = g.currentMove.StartV * axisR
		g.accel = 2 * g.currentMove.HalfAccel * axisR
	}

	switch {
	case g.kind == KinematicCoreXY && g.axis == AxisX:
		g.startPos = g.currentMove.StartPos[AxisX] + g.currentMove.StartPos[AxisY]
		g.stepDir = g.startV >= 0
	case g.kind == KinematicCoreXY && g.axis == AxisY:
		g.startPos = g.currentMove.StartPos[AxisX] - g.currentMove.StartPos[AxisY]
		g.stepDir = g.startV >= 0
	case g.kind == KinematicCoreXZ && g.axis == AxisX:
		g.startPos = g.currentMove.StartPos[AxisX] + g.currentMove.StartPos[AxisZ]
		g.stepDir = g.startV >= 0
	case g.kind == KinematicCoreXZ && g.axis == AxisZ:
		g.startPos = g.currentMove.StartPos[AxisX] - g.currentMove.StartPos[AxisZ]
		g.stepDir = g.startV >= 0
	default:
		g.startPos = g.currentMove.StartPos[g.axis]
		g.stepDir = g.currentMove.Flags&dirFlag(g.axis) == 0
	}
}

// timeForDistance solves start_v*t + half_accel... for t, returning the
// smallest positive real root, or NaN if distance is unreachable from this
// segment's kinematics (decelerating to zero/negative velocity before
// reaching it).
func timeForDistance(startV, accel, dist float64) float64 {
	if accel == 0 {
		if startV == 0 {
			if dist == 0 {
				return 0
			}
			return math.NaN()
		}
		t := dist / startV
		if t < 0 {
			return math.NaN()
		}
		return t
	}
	// dist = v0*t + 0.5*a*t^2  =>  0.5*a*t^2 + v0*t - dist = 0
	a := 0.5 * accel
	b := startV
	c := -dist
	disc := b*b - 4*a*c
	if disc < 0 {
		return math.NaN()
	}
	sq := math.Sqrt(disc)
	t1 := (-b + sq) / (2 * a)
	t2 := (-b - sq) / (2 * a)
	best := math.NaN()
	for _, t := range []float64{t1, t2} {
		if t >= 0 && (math.IsNaN(best) || t < best) {
			best = t
		}
	}
	return best
}

// NextStep implements classic_step_generator_next_step_event.
func (g *classicGenerator) NextStep(state *MergerState, flushTime float64) EventInfo {
	for {
		currentDistance := float64(state.CurrentDistance[g.axis]) * g.mmPerStep
		var nextTarget float64
		if g.stepDir {
			nextTarget = currentDistance + g.mmPerHalfStep
		} else {
			nextTarget = currentDistance - g.mmPerHalfStep
		}
		nextDistance := nextTarget - g.startPos
		stepTime := timeForDistance(g.startV, g.accel, nextDistance)

		if math.IsNaN(stepTime) || stepTime > g.currentMove.Duration+halfStepEpsilon {
			next := g.engine.segQueue.NextAfter(g.currentMove)
			if next == nil {
				return NoEvent
			}
			g.currentMove.ReferenceCnt--
			g.currentMove = next
			g.currentMove.ReferenceCnt++
			g.update()

			state.Flags &^= dirEventFlag(g.axis)
			if !g.stepDir {
				state.Flags |= dirEventFlag(g.axis)
			}
			state.Flags &^= activeEventFlag(g.axis)
			state.Flags |= StepEventFlag(g.currentMove.Flags) & activeEventFlag(g.axis)

			g.engine.moveSegmentProcessed()
			continue
		}

		elapsed := stepTime + g.currentMove.PrintTime
		if elapsed > flushTime {
			return NoEvent
		}

		ev := EventInfo{Time: elapsed, Flags: stepFlag(g.axis) | state.Flags}
		if g.stepDir {
			state.CurrentDistance[g.axis]++
		} else {
			state.CurrentDistance[g.axis]--
		}
		return ev
	}
}

