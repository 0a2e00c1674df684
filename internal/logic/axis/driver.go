package axis

import "time"

// Driver is the hardware capability an axis steps through.
//
// The axis borrows the Driver: the caller creates it, keeps it alive for at
// least as long as the axis and releases it afterwards. The axis never
// copies, closes or re-creates it.
type Driver interface {
	// Setup performs one-time hardware initialization.
	Setup() error
	// Step issues exactly one physical step. The step must be complete,
	// from the caller's point of view, when Step returns.
	Step(forward bool) error
	// StepAngle returns the motor shaft angle of one step in degrees.
	StepAngle() float64
}

// Clock is the time source used to measure elapsed time between loop calls.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock (monotonic reading included).
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TargetHandler is notified when a MoveTo/MoveBy target is reached.
// OnTargetReached runs inside the Loop call that reached the target, after
// the axis has stopped and cleared the target. It may issue new commands;
// they take effect on the next Loop call.
type TargetHandler interface {
	OnTargetReached(a *Axis)
}

// TargetHandlerFunc adapts a function to TargetHandler.
type TargetHandlerFunc func(a *Axis)

func (f TargetHandlerFunc) OnTargetReached(a *Axis) { f(a) }
