package geometry

import (
	"fmt"
	"math"
)

// Converter converts axis angles to motor step counts and back.
// It is stateless once built: the transmission ratio and the driver's step
// angle are fixed for the lifetime of the axis.
type Converter struct {
	transmission   float64
	stepAngle      float64 // motor degrees per step
	stepsPerDegree float64 // motor steps per axis degree
}

// NewConverter creates a converter for an axis whose ring turns once every
// transmission turns of the motor, driven by a driver moving stepAngleDeg
// motor degrees per step. Both values must be finite and strictly positive.
func NewConverter(transmission, stepAngleDeg float64) (*Converter, error) {
	if math.IsNaN(transmission) || math.IsInf(transmission, 0) || transmission <= 0 {
		return nil, fmt.Errorf("transmission must be > 0, got %g", transmission)
	}
	if math.IsNaN(stepAngleDeg) || math.IsInf(stepAngleDeg, 0) || stepAngleDeg <= 0 {
		return nil, fmt.Errorf("driver step angle must be > 0, got %g", stepAngleDeg)
	}
	return &Converter{
		transmission:   transmission,
		stepAngle:      stepAngleDeg,
		stepsPerDegree: transmission / stepAngleDeg,
	}, nil
}

// StepsFor converts an axis angle (in degrees) to fractional motor steps.
func (c *Converter) StepsFor(degrees float64) float64 {
	return degrees * c.stepsPerDegree
}

// WholeSteps converts an axis angle to the nearest whole number of steps.
// Halves round away from zero, so WholeSteps(-d) == -WholeSteps(d).
func (c *Converter) WholeSteps(degrees float64) int64 {
	return int64(math.Round(c.StepsFor(degrees)))
}

// DegreesFor converts motor steps to an axis angle in degrees.
func (c *Converter) DegreesFor(steps float64) float64 {
	return steps / c.stepsPerDegree
}

// AxisStepAngle returns the axis angle covered by one motor step.
func (c *Converter) AxisStepAngle() float64 {
	return c.stepAngle / c.transmission
}

// StepsPerDegree returns motor steps per axis degree.
func (c *Converter) StepsPerDegree() float64 {
	return c.stepsPerDegree
}

func (c *Converter) Transmission() float64 { return c.transmission }

// StepAngle returns the driver's motor step angle in degrees.
func (c *Converter) StepAngle() float64 { return c.stepAngle }
