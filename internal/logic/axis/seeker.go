package axis

import (
	"fmt"
	"math"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
)

// MoveTo rotates the axis at max speed to the absolute position degrees and
// stops there. The Loop call that reaches it notifies the TargetHandler.
// A previous target or free-run speed is replaced. A target within one step
// of the current position is settled at once; the next Loop call notifies.
func (a *Axis) MoveTo(degrees float64) {
	if !finite(degrees) {
		debug.Error(fmt.Errorf("axis %s: ignoring target %g", a.name, degrees))
		return
	}
	a.resume()
	a.remaining = degrees - a.CurrentDegrees()
	a.acc = 0
	a.notifyPending = false
	if a.arrived() {
		a.speed = 0
		a.remaining = 0
		a.seeking = false
		a.notifyPending = true
		debug.Live("Axis %s: already at %.4f°", a.name, degrees)
		return
	}
	a.seeking = true
	a.speed = a.seekSpeed()
	debug.Move(a.name, a.remaining, a.speed)
}

// MoveBy rotates the axis by degrees relative to the current position.
func (a *Axis) MoveBy(degrees float64) {
	a.MoveTo(a.CurrentDegrees() + degrees)
}

func (a *Axis) arrived() bool {
	return math.Abs(a.remaining) <= a.stepDeg
}

// seekSpeed returns the signed speed towards the target, ramped down near
// it when a deceleration ramp is configured.
func (a *Axis) seekSpeed() float64 {
	if a.remaining == 0 {
		return 0
	}
	mag := a.maxSpeed
	if dist := math.Abs(a.remaining); a.rampDeg > 0 && dist < a.rampDeg {
		mag = math.Max(a.minSpeed, a.maxSpeed*dist/a.rampDeg)
	}
	return math.Copysign(mag, a.remaining)
}

// reachTarget stops the axis, clears the target and notifies the handler.
func (a *Axis) reachTarget() {
	a.speed = 0
	a.acc = 0
	a.remaining = 0
	a.seeking = false
	a.notify()
}

func (a *Axis) notify() {
	a.notifyPending = false
	debug.Arrived(a.name, a.CurrentDegrees())
	if a.handler != nil {
		a.handler.OnTargetReached(a)
	}
}
