// stepcore-sim drives the precise stepping engine against a small
// synthetic G-code-shaped move sequence, either against an in-memory pin
// simulator or a real serial-connected MCU.
//
// Usage:
//
//	stepcore-sim [options]
//
// Options:
//
//	-config string   Printer configuration file (optional; defaults apply)
//	-device string   Serial device to drive instead of the in-memory simulator
//	-baud int        Baud rate for -device (default 250000)
//	-watch string    Address for a live WebSocket telemetry feed (e.g. :8787)
//	-duration float  Seconds of synthetic motion to queue (default 2.0)
package main

import (
	stdlog "log"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stepcore/pkg/config"
	"stepcore/pkg/endstop"
	"stepcore/pkg/inputshaper"
	applog "stepcore/pkg/log"
	"stepcore/pkg/metrics"
	"stepcore/pkg/reactor"
	"stepcore/pkg/safety"
	"stepcore/pkg/serial"
	"stepcore/pkg/stepping"
	"stepcore/pkg/stepping/dashboard"
	"stepcore/pkg/stepping/testplanner"
)

func main() {
	configFile := flag.String("config", "", "Printer configuration file (optional)")
	device := flag.String("device", "", "Serial device to drive instead of the in-memory simulator")
	baud := flag.Int("baud", 250000, "Baud rate for -device")
	watch := flag.String("watch", "", "Address for a live WebSocket telemetry feed (e.g. :8787)")
	duration := flag.Float64("duration", 2.0, "Seconds of synthetic motion to queue")
	flag.Parse()

	mc := defaultMotionConfig()
	if *configFile != "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			stdlog.Fatalf("loading config: %v", err)
		}
		parsed, err := config.ParseMotionConfig(cfg)
		if err != nil {
			stdlog.Fatalf("parsing [stepping] section: %v", err)
		}
		mc = parsed
	}

	logger := applog.New("stepcore-sim")
	logger.WithField("kinematics", mc.Kinematics).Info("starting")

	shaper, err := buildShaper(mc)
	if err != nil {
		stdlog.Fatalf("building input shaper: %v", err)
	}

	econf := stepping.EngineConfig{
		Kinematic:                kinematicFromString(mc.Kinematics),
		MMPerStep:                stepping.Vec4{mc.MMPerStepX, mc.MMPerStepY, mc.MMPerStepZ, mc.MMPerStepE},
		StepperTimerRateHz:       uint32(mc.StepperTimerRateHz),
		MoveSegQueueSize:         mc.MoveSegmentQueueSize,
		StepEventQueueSize:       mc.StepEventQueueSize,
		MoveSegQueueMinFreeSlots: mc.MoveSegmentQueueMinFreeSlots,
		MaxStepEventsPerCall:     mc.MaxStepEventsPerCall,
		InvertDir:                invertDirFlags(mc),
		Shaper:                   shaper,
	}

	var pins stepping.Pins
	var simPins *stepping.SimPins
	var serialPins *stepping.SerialPins
	if *device != "" {
		scfg := serial.DefaultConfig()
		scfg.Device = *device
		scfg.BaudRate = *baud
		port, err := serial.Open(scfg)
		if err != nil {
			stdlog.Fatalf("opening %s: %v", *device, err)
		}
		defer port.Close()
		serialPins = stepping.NewSerialPins(port)
		pins = serialPins
		econf.MCUFrequencyHz = 16000000
		logger.Info("driving real MCU")
	} else {
		simPins = stepping.NewSimPins()
		pins = simPins
	}

	homeAxes(logger)

	planner := testplanner.New()
	queueDemoPrint(planner, *duration)

	km := metrics.NewKlipperMetrics()

	engine := stepping.NewEngine(econf, planner, pins, logger, km)

	safetyMgr := safety.New()
	safetyMgr.RegisterMotor(engine)
	if serialPins != nil {
		safetyMgr.RegisterMCU(serialPins)
	}
	safetyMgr.OnShutdown(func(reason safety.ShutdownReason, msg string) {
		logger.WithField("reason", string(reason)).Warn(msg)
	})

	var dash *dashboard.Server
	if *watch != "" {
		dash = dashboard.New(*watch, 200*time.Millisecond, func() dashboard.Snapshot {
			snap := dashboard.Snapshot{
				Time:                engine.EstimatedPrintTime(),
				MoveSegQueueDepth:   engine.MoveSegQueueLen(),
				StepEventQueueDepth: engine.StepEventQueueLen(),
				StepDeadlineMisses:  engine.StepDeadlineMisses(),
				StepEventMisses:     engine.StepEventMisses(),
			}
			switch {
			case simPins != nil:
				for i, v := range simPins.Position {
					snap.PositionMM[i] = float64(v) * econf.MMPerStep[i]
				}
			case serialPins != nil:
				for i, v := range serialPins.Position() {
					snap.PositionMM[i] = float64(v) * econf.MMPerStep[i]
				}
			}
			return snap
		})
		if err := dash.Start(); err != nil {
			stdlog.Fatalf("starting dashboard on %s: %v", *watch, err)
		}
		logger.Info("telemetry dashboard listening")
		defer dash.Stop()
	}

	r := reactor.New()
	engine.Init(r)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		safetyMgr.EmergencyStop("operator interrupt")
		r.End()
	}()

	go func() {
		time.Sleep(time.Duration(*duration*1000)*time.Millisecond + 2*time.Second)
		engine.RequestStop()
		r.End()
	}()

	fmt.Printf("stepcore-sim: queued %.2fs of motion, running...\n", *duration)
	r.Run()
	fmt.Println("stepcore-sim: done")
}

func defaultMotionConfig() *config.MotionConfig {
	return &config.MotionConfig{
		Kinematics:                   "cartesian",
		StepperTimerRateHz:           1000000,
		MoveSegmentQueueSize:         64,
		StepEventQueueSize:           256,
		MoveSegmentQueueMinFreeSlots: 3,
		MaxStepEventsPerCall:         8,
		MMPerStepX:                   0.0125,
		MMPerStepY:                   0.0125,
		MMPerStepZ:                   0.0025,
		MMPerStepE:                   0.0352,
		ShaperTypeX:                  "mzv",
		ShaperTypeY:                  "mzv",
		ShaperTypeZ:                  "mzv",
		ShaperDampingRatio:           0.1,
	}
}

func kinematicFromString(s string) stepping.KinematicType {
	switch s {
	case "corexy":
		return stepping.KinematicCoreXY
	case "corexz":
		return stepping.KinematicCoreXZ
	default:
		return stepping.KinematicCartesian
	}
}

func invertDirFlags(mc *config.MotionConfig) stepping.StepEventFlag {
	var f stepping.StepEventFlag
	if mc.InvertDirX {
		f |= stepping.StepEventDirX
	}
	if mc.InvertDirY {
		f |= stepping.StepEventDirY
	}
	if mc.InvertDirZ {
		f |= stepping.StepEventDirZ
	}
	if mc.InvertDirE {
		f |= stepping.StepEventDirE
	}
	return f
}

func buildShaper(mc *config.MotionConfig) (*inputshaper.InputShaper, error) {
	if mc.ShaperFreqX == 0 && mc.ShaperFreqY == 0 && mc.ShaperFreqZ == 0 {
		return nil, nil
	}
	return inputshaper.NewInputShaper(
		inputshaper.ShaperType(mc.ShaperTypeX),
		inputshaper.ShaperType(mc.ShaperTypeY),
		inputshaper.ShaperType(mc.ShaperTypeZ),
		mc.ShaperFreqX, mc.ShaperFreqY, mc.ShaperFreqZ,
		mc.ShaperDampingRatio,
	)
}

// homeAxes runs a trivial simulated homing pass over X and Y before the
// demo print is queued, exercising pkg/endstop's query/trigger/homing state
// machine the way a real toolhead driver would ahead of the first move.
func homeAxes(logger *applog.Logger) {
	for _, axis := range []string{"x", "y"} {
		cfg := endstop.DefaultEndstopConfig()
		cfg.Name = axis + "_min"
		es := endstop.New(cfg)

		es.SetQueryCallback(func() (bool, error) { return true, nil })

		if err := es.StartHoming(-1); err != nil {
			logger.WithField("axis", axis).Warn("homing start failed")
			continue
		}
		state, err := es.Query()
		if err != nil || state != endstop.StateTriggered {
			logger.WithField("axis", axis).Warn("homing switch never triggered")
		}
		es.StopHoming()
		logger.WithField("axis", axis).Info("homed")
	}
}

// queueDemoPrint pushes a simple two-axis print onto planner: a home sync,
// an X trapezoid move, then a diagonal XY move.
func queueDemoPrint(planner *testplanner.Planner, seconds float64) {
	planner.Push(stepping.Block{SyncPosition: true, SetPositionMM: stepping.Vec4{0, 0, 0, 0}})

	dist := 20.0 * seconds
	planner.Push(stepping.Block{
		IsMove: true,
		Kinematics: stepping.BlockKinematics{
			Millimeters:     dist,
			Acceleration:    500,
			InitialSpeed:    0,
			NominalSpeed:    80,
			FinalSpeed:      0,
			AxesR:           stepping.Vec4{1, 0, 0, 0},
			DirectionBits:   0,
			ActiveAxisFlags: stepping.FlagActiveX,
			Steps:           stepping.StepVec4{int64(dist / 0.0125), 0, 0, 0},
		},
	})

	diag := dist / 2
	planner.Push(stepping.Block{
		IsMove: true,
		Kinematics: stepping.BlockKinematics{
			Millimeters:     diag,
			Acceleration:    500,
			InitialSpeed:    0,
			NominalSpeed:    60,
			FinalSpeed:      0,
			AxesR:           stepping.Vec4{0.70710678, 0.70710678, 0, 0},
			DirectionBits:   0,
			ActiveAxisFlags: stepping.FlagActiveX | stepping.FlagActiveY,
			Steps: stepping.StepVec4{
				int64(diag * 0.70710678 / 0.0125),
				int64(diag * 0.70710678 / 0.0125),
				0, 0,
			},
		},
	})
}
