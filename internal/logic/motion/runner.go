package motion

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
	"github.com/M3larry/OpenAstroTracker-Firmware/internal/logic/axis"
)

var (
	ErrQueueFull = errors.New("motion: command queue full")
	ErrNotReady  = errors.New("motion: axis not set up")
)

// Kind identifies a queued axis command.
type Kind int

const (
	KindMoveTo Kind = iota
	KindMoveBy
	KindSetSpeed
	KindStop
	KindSetPosition
)

func (k Kind) String() string {
	switch k {
	case KindMoveTo:
		return "moveTo"
	case KindMoveBy:
		return "moveBy"
	case KindSetSpeed:
		return "setSpeed"
	case KindStop:
		return "stop"
	case KindSetPosition:
		return "setPosition"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is an axis command funneled to the loop goroutine.
// Value is in degrees, or deg/s for KindSetSpeed.
type Command struct {
	Kind  Kind
	Value float64
}

func MoveTo(deg float64) Command { return Command{Kind: KindMoveTo, Value: deg} }
func MoveBy(deg float64) Command { return Command{Kind: KindMoveBy, Value: deg} }
func SetSpeed(degPerSec float64) Command { return Command{Kind: KindSetSpeed, Value: degPerSec} }
func Stop() Command { return Command{Kind: KindStop} }
func SetPosition(deg float64) Command { return Command{Kind: KindSetPosition, Value: deg} }

// Runner owns an axis and calls its Loop as fast as possible. It is the only
// goroutine touching the axis; other goroutines send commands with Submit,
// which are applied at the top of the next iteration.
type Runner struct {
	axis *axis.Axis
	cmds chan Command
	tick func()
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTick replaces the function called after every Loop, runtime.Gosched
// by default. Tests use it to advance a manual clock.
func WithTick(f func()) RunnerOption {
	return func(r *Runner) { r.tick = f }
}

// NewRunner creates a runner for a, buffering up to queueSize commands.
func NewRunner(a *axis.Axis, queueSize int, opts ...RunnerOption) *Runner {
	if queueSize < 1 {
		queueSize = 1
	}
	r := &Runner{
		axis: a,
		cmds: make(chan Command, queueSize),
		tick: runtime.Gosched,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit queues c without blocking. It is safe for concurrent use.
func (r *Runner) Submit(c Command) error {
	select {
	case r.cmds <- c:
		return nil
	default:
		return fmt.Errorf("%w: dropping %v", ErrQueueFull, c.Kind)
	}
}

// Run drives the axis until ctx is done and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	return r.run(ctx, false)
}

// RunUntilIdle drives the axis until it is idle with no command pending,
// e.g. after a target is reached or a Stop is applied.
func (r *Runner) RunUntilIdle(ctx context.Context) error {
	return r.run(ctx, true)
}

func (r *Runner) run(ctx context.Context, untilIdle bool) error {
	if !r.axis.Ready() {
		return ErrNotReady
	}
	debug.Live("Runner: driving axis %s", r.axis.Name())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.drain()
		r.axis.Loop()
		if untilIdle && r.axis.State() == axis.Idle && len(r.cmds) == 0 {
			return nil
		}
		r.tick()
	}
}

// drain applies every pending command in submission order.
func (r *Runner) drain() {
	for {
		select {
		case c := <-r.cmds:
			r.apply(c)
		default:
			return
		}
	}
}

func (r *Runner) apply(c Command) {
	debug.Verbose("Runner: %v %.4f", c.Kind, c.Value)
	switch c.Kind {
	case KindMoveTo:
		r.axis.MoveTo(c.Value)
	case KindMoveBy:
		r.axis.MoveBy(c.Value)
	case KindSetSpeed:
		r.axis.SetSpeed(c.Value)
	case KindStop:
		r.axis.Stop()
	case KindSetPosition:
		r.axis.SetCurrentPosition(c.Value)
	default:
		debug.Error(fmt.Errorf("runner: unknown command %v", c.Kind))
	}
}
