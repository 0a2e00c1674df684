package stepper

import (
	"errors"
	"fmt"
	"time"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/hw/gpio"
)

// Config holds the hardware configuration for a STEP/DIR stepper driver.
type Config struct {
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev   int
	Microstepping int
	PulseWidth    time.Duration // STEP high time. The low time is the same.
	InvertDir     bool          // swap DIR polarity when the motor is mounted reversed
}

// Stepper issues single steps on a STEP/DIR driver chip. It satisfies the
// axis driver contract: Setup once, then Step one physical step per call.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	pulse time.Duration

	ready   bool
	dirSet  bool
	forward bool
}

// NewStepper creates a new stepper motor driver. No pin is touched until Setup.
// cfg.PulseWidth: if 0, defaults to 2µs, above the 1µs minimum of A4988/TMC2209.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	pulse := cfg.PulseWidth
	if pulse <= 0 {
		pulse = 2 * time.Microsecond
	}
	return &Stepper{
		gpio:  g,
		cfg:   cfg,
		pulse: pulse,
	}
}

// Setup configures STEP, DIR and ENABLE as outputs and enables the driver.
func (s *Stepper) Setup() error {
	if s.cfg.StepsPerRev <= 0 || s.cfg.Microstepping <= 0 {
		return fmt.Errorf("stepper: invalid resolution %d steps/rev x%d", s.cfg.StepsPerRev, s.cfg.Microstepping)
	}
	if err := s.gpio.SetupPin(s.cfg.StepPin, gpio.Output); err != nil {
		return fmt.Errorf("stepper: setup step pin %d: %w", s.cfg.StepPin, err)
	}
	if err := s.gpio.SetupPin(s.cfg.DirPin, gpio.Output); err != nil {
		return fmt.Errorf("stepper: setup dir pin %d: %w", s.cfg.DirPin, err)
	}
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return fmt.Errorf("stepper: reset step pin %d: %w", s.cfg.StepPin, err)
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if s.cfg.EnablePin > 0 {
		if err := s.gpio.SetupPin(s.cfg.EnablePin, gpio.Output); err != nil {
			return fmt.Errorf("stepper: setup enable pin %d: %w", s.cfg.EnablePin, err)
		}
		if err := s.gpio.WritePin(s.cfg.EnablePin, gpio.Low); err != nil {
			return fmt.Errorf("stepper: enable driver: %w", err)
		}
	}

	debug.Verbose("Stepper: ready on step=%d dir=%d enable=%d, %.5f°/step",
		s.cfg.StepPin, s.cfg.DirPin, s.cfg.EnablePin, s.StepAngle())
	s.ready = true
	s.dirSet = false
	return nil
}

// StepAngle returns the motor shaft angle of one (micro)step in degrees.
func (s *Stepper) StepAngle() float64 {
	if s.cfg.StepsPerRev <= 0 || s.cfg.Microstepping <= 0 {
		return 0
	}
	return 360.0 / float64(s.cfg.StepsPerRev*s.cfg.Microstepping)
}

// Step issues one physical step. DIR is only rewritten when the direction
// changes. The pulse is complete when Step returns.
func (s *Stepper) Step(forward bool) error {
	if !s.ready {
		return errors.New("stepper: step before setup")
	}
	if !s.dirSet || s.forward != forward {
		dirLevel := gpio.Level(forward != s.cfg.InvertDir)
		if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
			s.dirSet = false
			return fmt.Errorf("stepper: set direction: %w", err)
		}
		s.forward = forward
		s.dirSet = true
	}
	return s.stepPulse()
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return fmt.Errorf("stepper: pulse high: %w", err)
	}
	time.Sleep(s.pulse)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return fmt.Errorf("stepper: pulse low: %w", err)
	}
	time.Sleep(s.pulse)
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel, no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
