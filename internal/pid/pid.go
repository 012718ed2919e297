// Package pid implements the PID algorithm driving the heater and a relay
// autotuner that derives gains from an observed oscillation.
//
// Gains are per second. The controller is evaluated once per sample period
// (one duty-cycle window); the sample time scales the integral and derivative
// contributions so gains stay meaningful when the window size changes.
package pid

import "time"

// Terms holds the individual contributions of the last evaluation.
type Terms struct {
	P     float64
	I     float64
	D     float64
	Error float64
}

// Controller is a positional-form PID with derivative on measurement,
// integral clamping, and a manual override mode.
type Controller struct {
	kp, ki, kd float64
	sample     time.Duration

	setpoint       float64
	outMin, outMax float64

	manual       bool
	manualOutput float64

	integral    float64
	lastInput   float64
	lastOutput  float64
	initialized bool
	terms       Terms
}

// New creates a controller in automatic mode.
func New(kp, ki, kd float64, sample time.Duration, outMin, outMax float64) *Controller {
	return &Controller{
		kp:     kp,
		ki:     ki,
		kd:     kd,
		sample: sample,
		outMin: outMin,
		outMax: outMax,
	}
}

// Compute evaluates the controller for the measured input and returns the
// new output. In manual mode the override value is returned as-is, without
// clamping, so that a misconfigured override is visible to the caller.
func (c *Controller) Compute(input float64) float64 {
	if c.manual {
		c.lastInput = input
		c.lastOutput = c.manualOutput
		return c.manualOutput
	}
	if !c.initialized {
		c.lastInput = input
		c.initialized = true
	}

	st := c.sample.Seconds()
	if st <= 0 {
		st = 1
	}

	e := c.setpoint - input
	c.integral = clamp(c.integral+c.ki*st*e, c.outMin, c.outMax)
	p := c.kp * e
	d := -c.kd / st * (input - c.lastInput)

	out := clamp(p+c.integral+d, c.outMin, c.outMax)

	c.terms = Terms{P: p, I: c.integral, D: d, Error: e}
	c.lastInput = input
	c.lastOutput = out
	return out
}

// ManualOverride bypasses the algorithm and pins the output.
func (c *Controller) ManualOverride(output float64) {
	c.manual = true
	c.manualOutput = output
}

// Automatic leaves manual mode. The integral is seeded with the last output
// so the transfer is bumpless.
func (c *Controller) Automatic() {
	if !c.manual {
		return
	}
	c.manual = false
	c.integral = clamp(c.lastOutput, c.outMin, c.outMax)
	c.initialized = false
}

// Manual reports whether the manual override is active.
func (c *Controller) Manual() bool { return c.manual }

// SetSetpoint changes the target.
func (c *Controller) SetSetpoint(sp float64) { c.setpoint = sp }

// Gains returns the tuning constants.
func (c *Controller) Gains() (kp, ki, kd float64) {
	return c.kp, c.ki, c.kd
}

// Terms returns the contributions of the last automatic evaluation.
func (c *Controller) Terms() Terms { return c.terms }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
