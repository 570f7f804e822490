// Package motor models brushed and brushless DC motors driving the mechanisms.
package motor

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
)

const (
	// NominalVoltage is the voltage motor specs are measured at
	NominalVoltage = 12.0
)

// Motor is a DC motor model.
type Motor struct {
	// Name is motor name
	Name string
	// StallTorque is stall torque in N*m
	StallTorque float64
	// StallCurrent is stall current in A
	StallCurrent float64
	// FreeSpeed is free speed in rad/s
	FreeSpeed float64
	// FreeCurrent is free current in A
	FreeCurrent float64
	// Inertia is rotor moment of inertia in kg*m^2
	Inertia float64
	// Resistance is winding resistance in Ohm
	Resistance float64
	// Kt is torque constant in N*m/A
	Kt float64
	// Kv is velocity constant in rad/s/V
	Kv float64
}

// New creates a motor from its datasheet values. freeSpeedRPM is in revolutions per minute.
// Resistance, Kv and Kt are derived from the remaining values at NominalVoltage.
func New(name string, stallTorque, stallCurrent, freeSpeedRPM, freeCurrent, inertia float64) Motor {
	freeSpeed := freeSpeedRPM / 60.0 * 2.0 * math.Pi
	r := NominalVoltage / stallCurrent

	return Motor{
		Name:         name,
		StallTorque:  stallTorque,
		StallCurrent: stallCurrent,
		FreeSpeed:    freeSpeed,
		FreeCurrent:  freeCurrent,
		Inertia:      inertia,
		Resistance:   r,
		Kt:           stallTorque / stallCurrent,
		Kv:           freeSpeed / (NominalVoltage - r*freeCurrent),
	}
}

// N returns a motor equivalent to n identical motors m geared together.
// Torque and current scale with n while Kt, Kv and free speed do not change.
func N(m Motor, n int) Motor {
	if n == 1 {
		return m
	}

	k := float64(n)
	out := m
	out.Name = fmt.Sprintf("%d x %s", n, m.Name)
	out.StallTorque = m.StallTorque * k
	out.StallCurrent = m.StallCurrent * k
	out.FreeCurrent = m.FreeCurrent * k
	out.Inertia = m.Inertia * k
	out.Resistance = m.Resistance / k

	return out
}

// Validate checks the motor constants are physically meaningful.
// It returns error wrapping control.ErrConfig naming the first invalid constant.
func (m Motor) Validate() error {
	for _, c := range []struct {
		name string
		val  float64
	}{
		{"resistance", m.Resistance},
		{"Kt", m.Kt},
		{"Kv", m.Kv},
	} {
		if !(c.val > 0) || math.IsInf(c.val, 0) {
			return errors.Wrapf(control.ErrConfig, "motor %q: %s must be positive: %v", m.Name, c.name, c.val)
		}
	}

	if m.Inertia < 0 || math.IsNaN(m.Inertia) {
		return errors.Wrapf(control.ErrConfig, "motor %q: inertia must not be negative: %v", m.Name, m.Inertia)
	}

	return nil
}

// StallAcceleration returns the angular acceleration at stall for the load inertia j in kg*m^2
func (m Motor) StallAcceleration(j float64) float64 {
	return m.StallTorque / j
}

// String implements the Stringer interface.
func (m Motor) String() string {
	return fmt.Sprintf("Motor{Name=%s R=%.4g Kt=%.4g Kv=%.4g FreeSpeed=%.4g}", m.Name, m.Resistance, m.Kt, m.Kv, m.FreeSpeed)
}
