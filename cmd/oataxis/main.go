package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/config"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/hw/gpio"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/hw/stepper"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/logic/axis"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/logic/motion"
)

// newGPIODriver opens the configured GPIO backend.
var newGPIODriver = gpio.NewDriver

// commandFlags holds the single motion command given on the command line.
// NaN means "not given".
type commandFlags struct {
	gotoDeg  float64
	byDeg    float64
	speed    float64
	position float64
	duration time.Duration
}

func main() {
	cf := commandFlags{gotoDeg: math.NaN(), byDeg: math.NaN(), speed: math.NaN(), position: math.NaN()}
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	flag.Var(floatFlag{&cf.gotoDeg}, "goto", "move to this absolute position in degrees")
	flag.Var(floatFlag{&cf.byDeg}, "by", "move by this many degrees")
	flag.Var(floatFlag{&cf.speed}, "speed", "free-run at this speed in deg/s (negative = reverse)")
	flag.Var(floatFlag{&cf.position}, "position", "set the current position in degrees before moving")
	flag.DurationVar(&cf.duration, "duration", 0, "stop a -speed free-run after this long (0 = until interrupted)")
	flag.Parse()

	if err := validateCommand(cf); err != nil {
		log.Fatalf("invalid command: %v", err)
	}

	if err := execute(*cfgPath, cf); err != nil {
		log.Fatal(err)
	}
}

// execute builds the hardware and the axis and runs the command. It returns
// only after the stepper is disabled and GPIO is closed.
func execute(cfgPath string, cf commandFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", debug.Level())

	// Initialize GPIO driver
	debug.Value("GPIO backend", cfg.GPIO.Backend)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := newGPIODriver(cfg.GPIO.Backend, cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing stepper driver")
	motor := stepper.NewStepper(gpioDriver, stepper.Config{
		StepPin:       cfg.Stepper.StepPin,
		DirPin:        cfg.Stepper.DirPin,
		EnablePin:     cfg.Stepper.EnablePin,
		StepsPerRev:   cfg.Stepper.StepsPerRev,
		Microstepping: cfg.Stepper.Microstepping,
		PulseWidth:    cfg.PulseWidth(),
		InvertDir:     cfg.Stepper.InvertDir,
	})
	debug.PrintStruct("Stepper config", cfg.Stepper)
	defer func() {
		if err := motor.Disable(); err != nil {
			log.Printf("disabling stepper failed: %v", err)
		}
	}()

	debug.Step(3, "Initializing axis")
	ax, err := newAxisFromConfig(cfg, motor)
	if err != nil {
		return fmt.Errorf("init axis failed: %w", err)
	}

	if err := run(ctx, ax, cf); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("axis run failed: %w", err)
	}
	debug.Summary(fmt.Sprintf("Axis %s at %.4f°", ax.Name(), ax.CurrentDegrees()))
	return nil
}

// newAxisFromConfig builds and sets up the axis. The motor must outlive it.
func newAxisFromConfig(cfg *config.Config, d axis.Driver) (*axis.Axis, error) {
	opts := []axis.Option{
		axis.WithName(cfg.Axis.Name),
		axis.WithMaxSpeed(cfg.Axis.MaxSpeedDegPerSec),
		axis.WithMaxStepsPerLoop(cfg.Axis.MaxStepsPerLoop),
		axis.WithTargetHandler(axis.TargetHandlerFunc(func(a *axis.Axis) {
			log.Printf("%s: target reached at %.4f°", a.Name(), a.CurrentDegrees())
		})),
	}
	if cfg.Axis.RampDeg > 0 {
		opts = append(opts, axis.WithDecelRamp(cfg.Axis.RampDeg, cfg.Axis.MinSpeedDegPerSec))
	}
	ax, err := axis.New(cfg.Axis.Transmission, d, opts...)
	if err != nil {
		return nil, err
	}
	if err := ax.Setup(); err != nil {
		return nil, err
	}
	return ax, nil
}

// run queues the requested command and drives the axis. Target moves and
// timed free-runs end when the axis is idle again; an untimed free-run ends
// with ctx.
func run(ctx context.Context, ax *axis.Axis, cf commandFlags) error {
	runner := motion.NewRunner(ax, 4)
	for _, c := range commandsFor(cf) {
		if err := runner.Submit(c); err != nil {
			return err
		}
	}

	var err error
	if !math.IsNaN(cf.speed) && cf.duration <= 0 {
		err = runner.Run(ctx)
	} else {
		if cf.duration > 0 {
			timer := time.AfterFunc(cf.duration, func() {
				if err := runner.Submit(motion.Stop()); err != nil {
					debug.Error(err)
				}
			})
			defer timer.Stop()
		}
		err = runner.RunUntilIdle(ctx)
	}

	if errors.Is(err, context.Canceled) {
		// Interrupted: the runner has returned, so the axis is ours again.
		ax.Stop()
	}
	if stepErr := ax.Err(); stepErr != nil {
		debug.Error(stepErr)
	}
	return err
}

// commandsFor translates the command line into queued axis commands.
func commandsFor(cf commandFlags) []motion.Command {
	var cmds []motion.Command
	if !math.IsNaN(cf.position) {
		cmds = append(cmds, motion.SetPosition(cf.position))
	}
	switch {
	case !math.IsNaN(cf.gotoDeg):
		cmds = append(cmds, motion.MoveTo(cf.gotoDeg))
	case !math.IsNaN(cf.byDeg):
		cmds = append(cmds, motion.MoveBy(cf.byDeg))
	case !math.IsNaN(cf.speed):
		cmds = append(cmds, motion.SetSpeed(cf.speed))
	}
	return cmds
}

// validateCommand checks that at most one of -goto, -by and -speed is given
// and that every given value is finite.
func validateCommand(cf commandFlags) error {
	given := 0
	for name, v := range map[string]float64{"goto": cf.gotoDeg, "by": cf.byDeg, "speed": cf.speed} {
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) {
			return fmt.Errorf("-%s must be finite", name)
		}
		given++
	}
	if given > 1 {
		return errors.New("only one of -goto, -by and -speed may be given")
	}
	if math.IsInf(cf.position, 0) {
		return errors.New("-position must be finite")
	}
	if cf.duration < 0 {
		return fmt.Errorf("-duration must be >= 0, got %v", cf.duration)
	}
	if cf.duration > 0 && math.IsNaN(cf.speed) {
		return errors.New("-duration only applies to -speed")
	}
	return nil
}

// floatFlag implements flag.Value for a float that stays NaN until set.
type floatFlag struct {
	v *float64
}

func (f floatFlag) String() string {
	if f.v == nil || math.IsNaN(*f.v) {
		return ""
	}
	return fmt.Sprintf("%g", *f.v)
}

func (f floatFlag) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return fmt.Errorf("invalid number %q", s)
	}
	*f.v = v
	return nil
}
