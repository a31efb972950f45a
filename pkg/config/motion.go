package config

// MotionConfig holds the [stepping] section settings the precise stepping
// engine needs at boot: queue sizing, the tick rate its Step-ISR timer runs
// at, and per-axis mm/step plus direction-invert flags. Kept independent of
// package stepping so config has no import-time dependency on it; callers
// translate this into stepping.EngineConfig.
type MotionConfig struct {
	Kinematics string // "cartesian", "corexy", or "corexz"

	StepperTimerRateHz int

	MoveSegmentQueueSize         int
	StepEventQueueSize           int
	MoveSegmentQueueMinFreeSlots int
	MaxStepEventsPerCall         int

	MMPerStepX, MMPerStepY, MMPerStepZ, MMPerStepE float64

	InvertDirX, InvertDirY, InvertDirZ, InvertDirE bool

	ShaperFreqX, ShaperFreqY, ShaperFreqZ float64
	ShaperTypeX, ShaperTypeY, ShaperTypeZ string
	ShaperDampingRatio                    float64
}

// ParseMotionConfig resolves the [stepping] section the same way Klipper's
// own modules pull their settings out of ConfigWrapper: every option has an
// explicit default so a bare [stepping] section is enough to boot.
func ParseMotionConfig(cfg *Config) (*MotionConfig, error) {
	sec, err := cfg.GetSection("stepping")
	if err != nil {
		sec = newSection("stepping", nil)
	}

	mc := &MotionConfig{}

	mc.Kinematics, err = sec.GetChoice("kinematics", []string{"cartesian", "corexy", "corexz"}, "cartesian")
	if err != nil {
		return nil, err
	}

	rate, err := sec.GetIntWithBounds("stepper_timer_rate", intPtr(1000), nil, 1000000)
	if err != nil {
		return nil, err
	}
	mc.StepperTimerRateHz = rate

	if mc.MoveSegmentQueueSize, err = sec.GetIntWithBounds("move_segment_queue_size", intPtr(8), nil, 64); err != nil {
		return nil, err
	}
	if mc.StepEventQueueSize, err = sec.GetIntWithBounds("step_event_queue_size", intPtr(8), nil, 256); err != nil {
		return nil, err
	}
	if mc.MoveSegmentQueueMinFreeSlots, err = sec.GetIntWithBounds("move_segment_queue_min_free_slots", intPtr(1), nil, 3); err != nil {
		return nil, err
	}
	if mc.MaxStepEventsPerCall, err = sec.GetIntWithBounds("max_step_events_per_call", intPtr(1), nil, 8); err != nil {
		return nil, err
	}

	above := 0.0
	bounds := FloatBounds{Above: &above}
	if mc.MMPerStepX, err = sec.GetFloatWithBounds("mm_per_step_x", bounds, 0.0125); err != nil {
		return nil, err
	}
	if mc.MMPerStepY, err = sec.GetFloatWithBounds("mm_per_step_y", bounds, 0.0125); err != nil {
		return nil, err
	}
	if mc.MMPerStepZ, err = sec.GetFloatWithBounds("mm_per_step_z", bounds, 0.0025); err != nil {
		return nil, err
	}
	if mc.MMPerStepE, err = sec.GetFloatWithBounds("mm_per_step_e", bounds, 0.0352); err != nil {
		return nil, err
	}

	if mc.InvertDirX, err = sec.GetBool("invert_dir_x", false); err != nil {
		return nil, err
	}
	if mc.InvertDirY, err = sec.GetBool("invert_dir_y", false); err != nil {
		return nil, err
	}
	if mc.InvertDirZ, err = sec.GetBool("invert_dir_z", false); err != nil {
		return nil, err
	}
	if mc.InvertDirE, err = sec.GetBool("invert_dir_e", false); err != nil {
		return nil, err
	}

	if mc.ShaperFreqX, err = sec.GetFloat("shaper_freq_x", 0); err != nil {
		return nil, err
	}
	if mc.ShaperFreqY, err = sec.GetFloat("shaper_freq_y", 0); err != nil {
		return nil, err
	}
	if mc.ShaperFreqZ, err = sec.GetFloat("shaper_freq_z", 0); err != nil {
		return nil, err
	}
	if mc.ShaperTypeX, err = sec.Get("shaper_type_x", "mzv"); err != nil {
		return nil, err
	}
	if mc.ShaperTypeY, err = sec.Get("shaper_type_y", "mzv"); err != nil {
		return nil, err
	}
	if mc.ShaperTypeZ, err = sec.Get("shaper_type_z", "mzv"); err != nil {
		return nil, err
	}
	if mc.ShaperDampingRatio, err = sec.GetFloat("shaper_damping_ratio", 0.1); err != nil {
		return nil, err
	}

	return mc, nil
}

func intPtr(v int) *int { return &v }
