// Package axis implements the motion-control kernel of one rotation axis of
// a tracking mount: degrees to steps conversion, free-run velocity control
// and target seeking, driven by a non-blocking Loop.
//
// An Axis is not safe for concurrent use. Every method must be called from
// the goroutine running Loop; other goroutines go through motion.Runner.
package axis

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/logic/geometry"
)

var (
	ErrInvalidTransmission = errors.New("axis: transmission must be > 0")
	ErrInvalidStepAngle    = errors.New("axis: driver step angle must be > 0")
	ErrNilDriver           = errors.New("axis: driver is nil")
	ErrInvalidOption       = errors.New("axis: invalid option")
	ErrDriverSetup         = errors.New("axis: driver setup failed")
)

const (
	DefaultMaxSpeed        = 2.0 // deg/s
	DefaultMaxStepsPerLoop = 64
)

// State is the motion state of an axis.
type State int

const (
	Idle    State = iota // stopped, no target
	FreeRun              // rotating at the commanded speed, no target
	Seeking              // rotating towards a target
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FreeRun:
		return "free-run"
	case Seeking:
		return "seeking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures an Axis at construction.
type Option func(*Axis)

// WithName sets the name used in log output.
func WithName(name string) Option {
	return func(a *Axis) { a.name = name }
}

// WithMaxSpeed sets the speed magnitude used by MoveTo and MoveBy.
func WithMaxSpeed(degPerSec float64) Option {
	return func(a *Axis) { a.maxSpeed = degPerSec }
}

// WithDecelRamp slows target moves down linearly over the last distanceDeg
// degrees, never below minSpeedDegPerSec. Without it the axis stops abruptly
// at full speed.
func WithDecelRamp(distanceDeg, minSpeedDegPerSec float64) Option {
	return func(a *Axis) {
		a.rampDeg = distanceDeg
		a.minSpeed = minSpeedDegPerSec
	}
}

// WithMaxStepsPerLoop bounds the number of steps a single Loop call issues.
// Steps still due are issued by the following calls.
func WithMaxStepsPerLoop(n int) Option {
	return func(a *Axis) { a.maxStepsPerLoop = n }
}

// WithClock replaces the system clock, e.g. with a manual clock in tests.
func WithClock(c Clock) Option {
	return func(a *Axis) { a.clock = c }
}

// WithTargetHandler sets the handler notified when a target is reached.
func WithTargetHandler(h TargetHandler) Option {
	return func(a *Axis) { a.handler = h }
}

// Axis is a single rotation axis.
type Axis struct {
	name         string
	transmission float64
	driver       Driver
	clock        Clock
	handler      TargetHandler

	maxSpeed        float64
	rampDeg         float64
	minSpeed        float64
	maxStepsPerLoop int

	conv    *geometry.Converter
	stepDeg float64 // axis degrees per step, valid after Setup
	ready   bool
	last    time.Time

	// Executed position is originDeg + stepCount*stepDeg. It only moves
	// when the driver accepts a step.
	originDeg float64
	stepCount int64

	speed     float64 // commanded deg/s, signed
	acc       float64 // fractional steps due, signed
	remaining float64 // signed degrees left to the target
	seeking   bool

	notifyPending bool // target settled by MoveTo, handler not called yet

	err error
}

// New creates an axis with the given transmission ratio (e.g. ring
// circumference / pulley circumference) stepping through d.
// d must outlive the axis; see Driver.
func New(transmission float64, d Driver, opts ...Option) (*Axis, error) {
	if math.IsNaN(transmission) || math.IsInf(transmission, 0) || transmission <= 0 {
		return nil, fmt.Errorf("%w, got %g", ErrInvalidTransmission, transmission)
	}
	if d == nil {
		return nil, ErrNilDriver
	}

	a := &Axis{
		name:            "axis",
		transmission:    transmission,
		driver:          d,
		clock:           SystemClock{},
		maxSpeed:        DefaultMaxSpeed,
		maxStepsPerLoop: DefaultMaxStepsPerLoop,
	}
	for _, opt := range opts {
		opt(a)
	}

	switch {
	case !finite(a.maxSpeed) || a.maxSpeed <= 0:
		return nil, fmt.Errorf("%w: max speed must be > 0, got %g", ErrInvalidOption, a.maxSpeed)
	case !finite(a.rampDeg) || a.rampDeg < 0:
		return nil, fmt.Errorf("%w: ramp distance must be >= 0, got %g", ErrInvalidOption, a.rampDeg)
	case !finite(a.minSpeed) || a.minSpeed < 0 || a.minSpeed > a.maxSpeed:
		return nil, fmt.Errorf("%w: ramp min speed must be between 0 and %g, got %g", ErrInvalidOption, a.maxSpeed, a.minSpeed)
	case a.maxStepsPerLoop < 1:
		return nil, fmt.Errorf("%w: max steps per loop must be >= 1, got %d", ErrInvalidOption, a.maxStepsPerLoop)
	case a.clock == nil:
		return nil, fmt.Errorf("%w: clock is nil", ErrInvalidOption)
	}
	return a, nil
}

// Setup initializes the driver hardware and validates its resolution.
// An error is fatal for the axis: Loop stays inert until Setup succeeds.
// Calling Setup again after success is a no-op.
func (a *Axis) Setup() error {
	if a.ready {
		return nil
	}
	if err := a.driver.Setup(); err != nil {
		return fmt.Errorf("%w (%s): %w", ErrDriverSetup, a.name, err)
	}
	conv, err := geometry.NewConverter(a.transmission, a.driver.StepAngle())
	if err != nil {
		return fmt.Errorf("%w (%s): %w", ErrInvalidStepAngle, a.name, err)
	}

	a.conv = conv
	a.stepDeg = conv.AxisStepAngle()
	a.last = a.clock.Now()
	a.ready = true

	debug.PrintStruct("Axis "+a.name, struct {
		Transmission   float64
		StepAngle      float64
		AxisStepAngle  float64
		StepsPerDegree float64
		MaxSpeed       float64
	}{a.transmission, conv.StepAngle(), a.stepDeg, conv.StepsPerDegree(), a.maxSpeed})
	return nil
}

// Loop advances the axis by the time elapsed since the previous call,
// issuing the steps that are due. It never blocks beyond the steps it
// issues and must be called at least once per step interval.
func (a *Axis) Loop() {
	if !a.ready {
		return
	}
	now := a.clock.Now()
	dt := now.Sub(a.last).Seconds()
	a.last = now
	if dt < 0 {
		dt = 0
	}

	if a.notifyPending {
		a.notify()
		return
	}
	if a.seeking {
		if a.arrived() {
			a.reachTarget()
			return
		}
		a.speed = a.seekSpeed()
	}
	if a.speed == 0 {
		return
	}

	due := a.conv.StepsFor(a.speed * dt)
	a.acc += due
	a.issueSteps(due)
}

// CurrentDegrees returns the executed axis position in degrees.
func (a *Axis) CurrentDegrees() float64 {
	return a.originDeg + float64(a.stepCount)*a.stepDeg
}

// SetCurrentPosition redefines the current position, e.g. after
// calibration. No motion happens. An active target keeps its remaining
// distance.
func (a *Axis) SetCurrentPosition(degrees float64) {
	if !finite(degrees) {
		debug.Error(fmt.Errorf("axis %s: ignoring position %g", a.name, degrees))
		return
	}
	a.originDeg = degrees
	a.stepCount = 0
	debug.Live("Axis %s: position set to %.4f°", a.name, degrees)
}

// Speed returns the commanded speed in deg/s (0 when stopped).
func (a *Axis) Speed() float64 { return a.speed }

// RemainingDegrees returns the signed distance to the active target, or 0.
func (a *Axis) RemainingDegrees() float64 { return a.remaining }

// State returns the current motion state.
func (a *Axis) State() State {
	switch {
	case a.seeking:
		return Seeking
	case a.speed != 0:
		return FreeRun
	default:
		return Idle
	}
}

// StepAngle returns the axis angle of one step, 0 before Setup.
func (a *Axis) StepAngle() float64 { return a.stepDeg }

func (a *Axis) Name() string { return a.name }

// Ready reports whether Setup succeeded.
func (a *Axis) Ready() bool { return a.ready }

// Err returns the most recent driver step failure, if any.
func (a *Axis) Err() error { return a.err }

// SetTargetHandler replaces the handler notified on arrival.
func (a *Axis) SetTargetHandler(h TargetHandler) { a.handler = h }

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
