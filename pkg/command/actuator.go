package command

import "github.com/open-teleop/console/pkg/config"

// Actuator tracks the commanded position of the secondary actuator.
// Each Raise or Lower moves one step and the result is clamped to the range.
type Actuator struct {
	min, max, step float64
	position       float64
}

// NewActuator creates an actuator at the configured initial position.
func NewActuator(cfg config.ActuatorConfig) *Actuator {
	a := &Actuator{
		min:  cfg.MinPosition,
		max:  cfg.MaxPosition,
		step: cfg.Step,
	}
	a.position = a.clamp(cfg.InitialPosition)
	return a
}

// Raise steps the position up and returns it.
func (a *Actuator) Raise() float64 {
	a.position = a.clamp(a.position + a.step)
	return a.position
}

// Lower steps the position down and returns it.
func (a *Actuator) Lower() float64 {
	a.position = a.clamp(a.position - a.step)
	return a.position
}

// Position returns the current commanded position.
func (a *Actuator) Position() float64 {
	return a.position
}

func (a *Actuator) clamp(v float64) float64 {
	if v < a.min {
		return a.min
	}
	if v > a.max {
		return a.max
	}
	return v
}
