package stepping

import "math"

// epsilonDistance below this is treated as zero, matching original_source's
// EPSILON_DISTANCE guard against producing degenerate accel/decel phases
// out of floating-point noise at a block's boundary.
const epsilonDistance = 1e-10

// BlockKinematics is the trapezoidal motion block handed to the compiler:
// the fields of block_t in original_source that the stepping engine
// actually needs (distance, accel, corner velocities, direction/active
// bits, and the per-axis unit-direction vector already resolved by the
// planner). The planner interface (planner.go) is what actually supplies
// these, one block at a time.
type BlockKinematics struct {
	Millimeters     float64
	Acceleration    float64
	InitialSpeed    float64
	NominalSpeed    float64
	FinalSpeed      float64
	AxesR           Vec4
	DirectionBits   MoveFlag // only the Dir{X,Y,Z,E} bits are read
	ActiveAxisFlags MoveFlag // only the Active{X,Y,Z,E} bits are read

	// Steps is the block's exact per-axis integer step count, signed and
	// oriented the same way AxesR is, resolved by the planner ahead of
	// compilation. compileBlock folds this into the engine's running
	// step-domain position and re-derives start_pos from the integer
	// total after every block, rather than trusting the mm-domain
	// floating-point segment accumulation alone: the same correction
	// original_source applies so per-block rounding in the float path
	// can't accumulate into position drift over a long print.
	Steps StepVec4
}

// stepsToMM converts an absolute integer step-domain position back to mm,
// the inverse of the per-step distance every generator advances by.
func stepsToMM(steps StepVec4, mmPerStep Vec4) Vec4 {
	var out Vec4
	for i := range out {
		out[i] = float64(steps[i]) * mmPerStep[i]
	}
	return out
}

func calcVelocityAfterAcceleration(startV, accel, dist float64) float64 {
	return math.Sqrt(2*dist*accel + startV*startV)
}

func calcDistanceToReachCruiseVelocity(startV, cruiseV, accel float64) float64 {
	return (cruiseV*cruiseV - startV*startV) / (2 * accel)
}

func calcDistanceToReachCruiseVelocityClamped(startV, cruiseV, accel float64) float64 {
	d := calcDistanceToReachCruiseVelocity(startV, cruiseV, accel)
	if d < epsilonDistance {
		return 0
	}
	return d
}

// calcDistanceInWhichWeStartDecelerating assumes there is no cruise-velocity
// segment: the whole block is accel then decel, meeting at a peak velocity
// v_c solved by substitution (see original_source for the derivation).
func calcDistanceInWhichWeStartDecelerating(startV, endV, accel, dist float64) float64 {
	return (2*dist*accel + endV*endV - startV*startV) / (4 * accel)
}

func calcDistanceInWhichWeStartDeceleratingClamped(startV, endV, accel, dist float64) float64 {
	d := calcDistanceInWhichWeStartDecelerating(startV, endV, accel, dist)
	if d <= epsilonDistance {
		return 0
	}
	if d > dist-epsilonDistance {
		return dist
	}
	return d
}

// compileBlock decomposes one trapezoidal block into up to three Move
// segments (accel/cruise/decel phases), appending them to q starting at
// printTime/startPos. Ports append_move_segments_to_queue. Returns the
// advanced printTime, a startPos re-derived from the accumulated integer
// step counts (startPosSteps plus this block's own Steps) rather than the
// raw mm-domain accumulation used to place the segments themselves, the
// advanced startPosSteps, and false if the queue didn't have room for all
// of this block's segments, in which case nothing was appended and the
// caller should retry once the queue drains.
func compileBlock(q *MoveSegQueue, minFreeSlots int, block BlockKinematics, printTime float64, startPos Vec4, startPosSteps StepVec4, mmPerStep Vec4) (float64, Vec4, StepVec4, bool) {
	millimeters := block.Millimeters
	accel := block.Acceleration
	startV := block.InitialSpeed
	endV := block.FinalSpeed
	cruiseV := block.NominalSpeed

	accelDist := calcDistanceToReachCruiseVelocityClamped(startV, cruiseV, accel)
	decelDist := calcDistanceToReachCruiseVelocityClamped(endV, cruiseV, accel)
	cruiseDist := millimeters - accelDist - decelDist

	if cruiseDist < epsilonDistance {
		accelDist = calcDistanceInWhichWeStartDeceleratingClamped(startV, endV, accel, millimeters)
		decelDist = math.Max(millimeters-accelDist, 0)
		cruiseDist = 0
		cruiseV = calcVelocityAfterAcceleration(startV, accel, accelDist)
	}

	blocksRequired := 0
	if accelDist != 0 {
		blocksRequired++
	}
	if cruiseDist != 0 {
		blocksRequired++
	}
	if decelDist != 0 {
		blocksRequired++
	}
	if q.FreeSlots() < blocksRequired+minFreeSlots {
		return printTime, startPos, startPosSteps, false
	}

	dirBits := block.DirectionBits & (dirFlag(AxisX) | dirFlag(AxisY) | dirFlag(AxisZ) | dirFlag(AxisE))
	activeBits := block.ActiveAxisFlags
	halfAccel := 0.5 * accel
	axesR := block.AxesR

	endPos := func(pos Vec4, dist float64) Vec4 {
		var out Vec4
		for i := range out {
			out[i] = pos[i] + axesR[i]*dist
		}
		return out
	}

	if accelDist != 0 {
		accelT := (cruiseV - startV) / accel
		flags := FlagAccelPhase | FlagFirstSegOfBlock | dirBits | activeBits
		if cruiseDist == 0 && decelDist == 0 {
			flags |= FlagLastSegOfBlock
		}
		q.Append(Move{
			Duration: accelT, StartV: startV, HalfAccel: halfAccel,
			PrintTime: printTime, AxesR: axesR, StartPos: startPos, Flags: flags,
		})
		printTime += accelT
		startPos = endPos(startPos, accelDist)
	}

	if cruiseDist != 0 {
		cruiseT := cruiseDist / cruiseV
		flags := FlagCruisePhase | dirBits | activeBits
		if accelDist == 0 {
			flags |= FlagFirstSegOfBlock
		}
		if decelDist == 0 {
			flags |= FlagLastSegOfBlock
		}
		q.Append(Move{
			Duration: cruiseT, StartV: cruiseV, HalfAccel: 0,
			PrintTime: printTime, AxesR: axesR, StartPos: startPos, Flags: flags,
		})
		printTime += cruiseT
		startPos = endPos(startPos, cruiseDist)
	}

	if decelDist != 0 {
		decelT := (cruiseV - endV) / accel
		flags := FlagDecelPhase | FlagLastSegOfBlock | dirBits | activeBits
		if accelDist == 0 && cruiseDist == 0 {
			flags |= FlagFirstSegOfBlock
		}
		q.Append(Move{
			Duration: decelT, StartV: cruiseV, HalfAccel: -halfAccel,
			PrintTime: printTime, AxesR: axesR, StartPos: startPos, Flags: flags,
		})
		printTime += decelT
	}

	for i := range startPosSteps {
		startPosSteps[i] += block.Steps[i]
	}
	startPos = stepsToMM(startPosSteps, mmPerStep)

	return printTime, startPos, startPosSteps, true
}
