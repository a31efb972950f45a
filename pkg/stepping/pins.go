package stepping

// Pins is the hardware boundary the Step-ISR writes through: direction and
// step pin toggling, and the running signed position counters original_source
// keeps in Stepper::count_position / count_position_from_startup. Swappable
// for a SimPins test double or for a real serial-backed SerialPins.
type Pins interface {
	// SetDir applies the direction pins for every axis whose bit is set in
	// changed, using dir (already XORed against the engine's inverted-dir
	// mask) to choose the physical level.
	SetDir(changed, dir StepEventFlag)

	// Step pulses the given axis's step pin high then low.
	Step(axis Axis)
}

// SimPins is an in-memory Pins implementation used by tests and by
// cmd/stepcore-sim's headless simulation mode: it doesn't touch real
// hardware, it just records what would have happened.
type SimPins struct {
	Position     StepVec4 // absolute step position, signed
	Dir          [numAxes]bool
	StepPulses   [numAxes]int
	DirToggles   int
}

// NewSimPins creates a SimPins with all counters zeroed.
func NewSimPins() *SimPins { return &SimPins{} }

func (p *SimPins) SetDir(changed, dir StepEventFlag) {
	for a := Axis(0); a < numAxes; a++ {
		bit := dirEventFlag(a)
		if changed&bit == 0 {
			continue
		}
		p.Dir[a] = dir&bit != 0
		p.DirToggles++
	}
}

func (p *SimPins) Step(axis Axis) {
	p.StepPulses[axis]++
	if p.Dir[axis] {
		p.Position[axis]--
	} else {
		p.Position[axis]++
	}
}
