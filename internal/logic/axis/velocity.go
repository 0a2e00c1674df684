package axis

import (
	"fmt"
	"math"

	"github.com/M3larry/OpenAstroTracker-Firmware/internal/debug"
)

// SetSpeed rotates the axis at degPerSecond, negative for reverse, zero to
// stop. Any active target is cancelled.
func (a *Axis) SetSpeed(degPerSecond float64) {
	if !finite(degPerSecond) {
		debug.Error(fmt.Errorf("axis %s: ignoring speed %g", a.name, degPerSecond))
		return
	}
	if a.seeking {
		debug.Live("Axis %s: target cancelled with %.4f° remaining", a.name, a.remaining)
	}
	if degPerSecond != 0 {
		a.resume()
	}
	a.seeking = false
	a.notifyPending = false
	a.remaining = 0
	a.speed = degPerSecond
	if degPerSecond == 0 {
		// Discard the fraction so no late step follows a stop.
		a.acc = 0
	}
	debug.Live("Axis %s: speed %.4f°/s", a.name, degPerSecond)
}

// Stop halts the axis and cancels any target.
func (a *Axis) Stop() {
	a.SetSpeed(0)
}

// issueSteps issues the whole steps held in the accumulator, at most
// maxStepsPerLoop of them. While seeking, arrival is checked after every
// step so the target is never passed. due is the step count this Loop call
// added to the accumulator.
func (a *Axis) issueSteps(due float64) {
	for n := 0; n < a.maxStepsPerLoop; n++ {
		var forward bool
		switch {
		case a.acc >= 1:
			forward = true
		case a.acc <= -1:
			forward = false
		default:
			return
		}

		if a.seeking && forward != (a.remaining > 0) {
			a.acc = 0
			return
		}

		if err := a.driver.Step(forward); err != nil {
			// Not executed: position unchanged, the step stays due. The
			// backlog is capped at one call's worth so a recovered driver
			// does not race to catch up.
			a.acc = capBacklog(a.acc, due)
			a.err = fmt.Errorf("axis %s: step: %w", a.name, err)
			debug.Error(a.err)
			return
		}

		delta := a.stepDeg
		if forward {
			a.acc--
			a.stepCount++
		} else {
			a.acc++
			a.stepCount--
			delta = -delta
		}
		if debug.IsEnabled(debug.LevelTrace) {
			debug.Trace("Axis %s: step forward=%t pos=%.5f°", a.name, forward, a.CurrentDegrees())
		}

		if a.seeking {
			a.remaining -= delta
			if a.arrived() {
				a.reachTarget()
				return
			}
		}
	}
}

// resume restarts elapsed time measurement when a command takes the axis
// out of Idle, so time spent idle without Loop calls is not integrated.
func (a *Axis) resume() {
	if a.State() == Idle {
		a.last = a.clock.Now()
	}
}

// capBacklog limits acc to max(1, |due|) steps, keeping its sign.
func capBacklog(acc, due float64) float64 {
	limit := math.Max(1, math.Abs(due))
	if math.Abs(acc) <= limit {
		return acc
	}
	return math.Copysign(limit, acc)
}
