package motion

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/hw/gpio"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/hw/stepper"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/logic/axis"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func newMockStepper() (*stepper.Stepper, *gpio.MockDriver) {
	drv := &gpio.MockDriver{}
	s := stepper.NewStepper(drv, stepper.Config{
		StepPin:       1,
		DirPin:        2,
		EnablePin:     3,
		StepsPerRev:   200,
		Microstepping: 16,
		PulseWidth:    1 * time.Microsecond,
	})
	return s, drv
}

// newTestRunner builds an axis on a mock stepper (0.1125°/motor step,
// transmission 4.5 => 0.025°/axis step) whose clock advances 1ms per loop.
func newTestRunner(t *testing.T, opts ...axis.Option) (*Runner, *axis.Axis) {
	t.Helper()
	s, _ := newMockStepper()
	clk := &manualClock{now: time.Unix(0, 0)}
	opts = append([]axis.Option{axis.WithClock(clk), axis.WithMaxSpeed(10)}, opts...)
	a, err := axis.New(4.5, s, opts...)
	if err != nil {
		t.Fatalf("axis.New: %v", err)
	}
	if err := a.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	r := NewRunner(a, 8, WithTick(func() { clk.now = clk.now.Add(time.Millisecond) }))
	return r, a
}

func TestRunner_NotReady(t *testing.T) {
	s, _ := newMockStepper()
	a, err := axis.New(4.5, s)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(a, 1)
	if err := r.Run(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestRunner_MoveToUntilIdle(t *testing.T) {
	r, a := newTestRunner(t)
	if err := r.Submit(MoveTo(2.5)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.RunUntilIdle(ctx); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	if math.Abs(a.CurrentDegrees()-2.5) > a.StepAngle() {
		t.Errorf("position = %v, want 2.5", a.CurrentDegrees())
	}
}

func TestRunner_CommandsAppliedInOrder(t *testing.T) {
	r, a := newTestRunner(t)
	r.Submit(SetPosition(100))
	r.Submit(MoveBy(-1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.RunUntilIdle(ctx); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	if math.Abs(a.CurrentDegrees()-99) > a.StepAngle() {
		t.Errorf("position = %v, want 99", a.CurrentDegrees())
	}
}

func TestRunner_StopEndsFreeRun(t *testing.T) {
	r, a := newTestRunner(t)
	r.Submit(SetSpeed(-5))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Submit(Stop())
	}()
	if err := r.RunUntilIdle(ctx); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	if a.State() != axis.Idle {
		t.Errorf("state = %v, want idle", a.State())
	}
	if a.CurrentDegrees() >= 0 {
		t.Errorf("reverse free-run should have moved below 0, got %v", a.CurrentDegrees())
	}
}

func TestRunner_ContextCancel(t *testing.T) {
	r, _ := newTestRunner(t)
	r.Submit(SetSpeed(1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRunner_QueueFull(t *testing.T) {
	r, _ := newTestRunner(t)
	for i := 0; i < 8; i++ {
		if err := r.Submit(MoveBy(1)); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := r.Submit(Stop()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindMoveTo:      "moveTo",
		KindMoveBy:      "moveBy",
		KindSetSpeed:    "setSpeed",
		KindStop:        "stop",
		KindSetPosition: "setPosition",
		Kind(42):        "Kind(42)",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestRunner_ResumeAfterIdle(t *testing.T) {
	s, _ := newMockStepper()
	clk := &manualClock{now: time.Unix(0, 0)}
	a, err := axis.New(4.5, s, axis.WithClock(clk), axis.WithMaxSpeed(10))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Setup(); err != nil {
		t.Fatal(err)
	}

	var r *Runner
	stopAfter := 0
	r = NewRunner(a, 8, WithTick(func() {
		clk.now = clk.now.Add(time.Millisecond)
		if stopAfter > 0 {
			stopAfter--
			if stopAfter == 0 {
				r.Submit(Stop())
			}
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.Submit(MoveTo(1))
	if err := r.RunUntilIdle(ctx); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	start := a.CurrentDegrees()

	// The runner is gone for a minute, then free-runs for 100 loops.
	clk.now = clk.now.Add(time.Minute)
	stopAfter = 100
	r.Submit(SetSpeed(1))
	if err := r.RunUntilIdle(ctx); err != nil {
		t.Fatalf("RunUntilIdle: %v", err)
	}
	if moved := a.CurrentDegrees() - start; math.Abs(moved-0.1) > 2*a.StepAngle() {
		t.Errorf("moved %v° in 100 ms at 1°/s, want about 0.1", moved)
	}
}
