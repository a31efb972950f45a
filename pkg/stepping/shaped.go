package stepping

import "math"

// shapedTap is one impulse of an input-shaper's convolution: a weight A and
// a time offset T (usually <= 0, i.e. a look-back sample) relative to the
// step time being queried. Grounded on AxisInputShaper.GetShaper() in
// pkg/inputshaper, which returns exactly this (n, A[], T[]) triple for a
// configured shaper (ZV, MZV, EI, ...).
type shapedTap struct {
	weight float64
	offset float64
}

// shapedGenerator produces step events for a shaped axis by evaluating the
// weighted sum of the unshaped trajectory sampled at each tap's offset,
// instead of classicGenerator's direct closed-form inversion. This mirrors
// the role of input_shaper_step_generator_next_step_event in
// original_source's ADVANCED_STEP_GENERATORS path, scaled down to bisection
// over each move segment's duration instead of a full analytic multi-copy
// root solve: within one accel/cruise/decel phase the weighted sum of
// quadratics is itself monotonic (taps share the same sign of velocity),
// so bisecting for the half-step crossing is safe and cheap.
type shapedGenerator struct {
	axis Axis
	kind KinematicType
	taps []shapedTap

	mmPerStep     float64
	mmPerHalfStep float64

	currentMove *Move
	engine      *Engine
}

// newShapedGenerator builds a generator from an AxisInputShaper's raw (n, A,
// T) coefficients. T as returned by GetShaper is non-negative, each entry
// the delay (seconds) of that impulse relative to the shaper's reference
// point; the shaped trajectory at time t is the weighted sum of the
// unshaped trajectory sampled at t-T_i, so the tap offsets stored here are
// negated up front.
func newShapedGenerator(eng *Engine, axis Axis, n int, a, t []float64) *shapedGenerator {
	taps := make([]shapedTap, n)
	for i := 0; i < n; i++ {
		taps[i] = shapedTap{weight: a[i], offset: -t[i]}
	}
	return &shapedGenerator{
		axis:          axis,
		kind:          eng.Config.Kinematic,
		taps:          taps,
		mmPerStep:     eng.Config.MMPerStep[axis],
		mmPerHalfStep: eng.Config.MMPerStep[axis] / 2,
		engine:        eng,
	}
}

// LookbackTime returns how far back in time this generator needs segment
// history available, i.e. the most negative tap offset. Consulted by
// Engine.UpdateMaxLookbackTime.
func (g *shapedGenerator) LookbackTime() float64 {
	max := 0.0
	for _, tap := range g.taps {
		if -tap.offset > max {
			max = -tap.offset
		}
	}
	return max
}

func (g *shapedGenerator) Init(seg *Move, axis Axis, state *MergerState) {
	g.axis = axis
	g.currentMove = seg
	seg.ReferenceCnt++
	state.Flags |= StepEventFlag(seg.Flags) & dirEventFlag(axis)
	state.Flags |= StepEventFlag(seg.Flags) & activeEventFlag(axis)
}

// positionAt returns this axis's unit-projected position at absolute time
// absTime, walking forward from hint through the move segment queue until
// the segment containing absTime is found. Returns the hint segment's own
// start position (clamped) if absTime falls before the queue's earliest
// retained history — which should only happen if LookbackTime was
// under-reported.
func (g *shapedGenerator) positionAt(hint *Move, absTime float64) (float64, *Move) {
	seg := hint
	for seg != nil {
		end := seg.PrintTime + seg.Duration
		if absTime < seg.PrintTime {
			break
		}
		if absTime <= end+halfStepEpsilon {
			break
		}
		next := g.engine.segQueue.NextAfter(seg)
		if next == nil {
			break
		}
		seg = next
	}
	if seg == nil {
		return 0, nil
	}

	axisR := axisProjection(g.kind, seg, g.axis)
	dt := absTime - seg.PrintTime
	if dt < 0 {
		dt = 0
	}
	dist := seg.StartV*dt + seg.HalfAccel*dt*dt
	start := coreAxisStartPos(g.kind, seg, g.axis)
	return start + axisR*dist, seg
}

// coreAxisStartPos returns the axis's projected starting position for seg,
// applying the same CoreXY/CoreXZ A/B transform axisProjection applies to
// velocity/acceleration.
func coreAxisStartPos(kind KinematicType, seg *Move, axis Axis) float64 {
	switch {
	case kind == KinematicCoreXY && axis == AxisX:
		return seg.StartPos[AxisX] + seg.StartPos[AxisY]
	case kind == KinematicCoreXY && axis == AxisY:
		return seg.StartPos[AxisX] - seg.StartPos[AxisY]
	case kind == KinematicCoreXZ && axis == AxisX:
		return seg.StartPos[AxisX] + seg.StartPos[AxisZ]
	case kind == KinematicCoreXZ && axis == AxisZ:
		return seg.StartPos[AxisX] - seg.StartPos[AxisZ]
	default:
		return seg.StartPos[axis]
	}
}

// shapedPosition evaluates the weighted convolution sum at absTime.
func (g *shapedGenerator) shapedPosition(absTime float64) float64 {
	sum := 0.0
	hint := g.currentMove
	for _, tap := range g.taps {
		pos, seg := g.positionAt(hint, absTime+tap.offset)
		if seg != nil {
			hint = seg
		}
		sum += tap.weight * pos
	}
	return sum
}

// NextStep bisects within the current move segment's duration for the next
// half-step crossing of the shaped position, advancing currentMove forward
// (same reference-count handoff as classicGenerator) when the segment is
// exhausted.
func (g *shapedGenerator) NextStep(state *MergerState, flushTime float64) EventInfo {
	for {
		targetDist := float64(state.CurrentDistance[g.axis]) * g.mmPerStep
		lo := g.currentMove.PrintTime
		hi := g.currentMove.PrintTime + g.currentMove.Duration
		if hi > flushTime {
			hi = flushTime
		}
		if hi <= lo {
			if hi < g.currentMove.PrintTime+g.currentMove.Duration {
				return NoEvent
			}
			if !g.advance(state) {
				return NoEvent
			}
			continue
		}

		posLo := g.shapedPosition(lo)
		posHi := g.shapedPosition(hi)

		forward := posHi >= posLo
		var target float64
		if forward {
			target = targetDist + g.mmPerHalfStep
		} else {
			target = targetDist - g.mmPerHalfStep
		}

		reached := (forward && target <= posHi) || (!forward && target >= posHi)
		if !reached {
			if !g.advance(state) {
				return NoEvent
			}
			continue
		}

		t := bisectCrossing(lo, hi, target, forward, g.shapedPosition)

		ev := EventInfo{Time: t, Flags: stepFlag(g.axis) | state.Flags}
		if forward {
			state.CurrentDistance[g.axis]++
		} else {
			state.CurrentDistance[g.axis]--
		}
		return ev
	}
}

func (g *shapedGenerator) advance(state *MergerState) bool {
	next := g.engine.segQueue.NextAfter(g.currentMove)
	if next == nil {
		return false
	}
	g.currentMove.ReferenceCnt--
	g.currentMove = next
	g.currentMove.ReferenceCnt++

	state.Flags &^= dirEventFlag(g.axis)
	state.Flags &^= activeEventFlag(g.axis)
	state.Flags |= StepEventFlag(g.currentMove.Flags) & (dirEventFlag(g.axis) | activeEventFlag(g.axis))

	g.engine.moveSegmentProcessed()
	return true
}

// bisectCrossing finds t in [lo, hi] where f(t) crosses target, assuming f
// is monotonic over the interval in the direction forward indicates.
func bisectCrossing(lo, hi, target float64, forward bool, f func(float64) float64) float64 {
	for i := 0; i < 40; i++ {
		mid := (lo + hi) / 2
		v := f(mid)
		cross := v >= target
		if !forward {
			cross = v <= target
		}
		if cross {
			hi = mid
		} else {
			lo = mid
		}
		if hi-lo < 1e-12 {
			break
		}
	}
	return math.Max(lo, hi)
}
