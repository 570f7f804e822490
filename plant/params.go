package plant

import (
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/motor"
	"github.com/pkg/errors"
)

const (
	// DefaultDt is the default control loop sample interval in seconds
	DefaultDt = 0.00505
	// DefaultVoltageLimit is the default input voltage limit
	DefaultVoltageLimit = 12.0
	// DefaultQPosFF is the default feed-forward position tolerance
	DefaultQPosFF = 0.005
	// DefaultQVelFF is the default feed-forward velocity tolerance
	DefaultQVelFF = 1.0
)

// Params are the physical and tuning parameters of a single-axis system.
type Params struct {
	// Name is the emitted loop name
	Name string
	// Motor drives the system
	Motor motor.Motor
	// G is the gear ratio: less than 1 means the output moves slower than the motor
	G float64
	// J is the angular load moment of inertia in kg*m^2
	J float64
	// Mass is the linear load mass in kg
	Mass float64
	// Radius is the pulley radius of a linear system or the lever arm of an angular one in m
	Radius float64
	// QPos and QVel are the LQR position and velocity tolerances
	QPos, QVel float64
	// KalmanQPos, KalmanQVel and KalmanQVoltage are process noise standard deviations
	KalmanQPos, KalmanQVel, KalmanQVoltage float64
	// KalmanRPosition is the position measurement noise standard deviation
	KalmanRPosition float64
	// Dt is the sample interval in seconds
	Dt float64
	// VoltageLimit is the symmetric input limit in V
	VoltageLimit float64
	// EnableVoltageError feeds the estimated voltage error back
	EnableVoltageError bool
	// DelayedU is the number of samples the input is delayed by
	DelayedU int
	// WrapPoint is the position wrap point; 0 means no wrapping
	WrapPoint float64
	// QPosFF and QVelFF are the feed-forward tolerances
	QPosFF, QVelFF float64
}

type check struct {
	name string
	val  float64
}

func positive(checks ...check) error {
	for _, c := range checks {
		if !(c.val > 0) || math.IsInf(c.val, 0) {
			return errors.Wrapf(control.ErrConfig, "%s must be positive: %v", c.name, c.val)
		}
	}

	return nil
}

// validate checks the parameters shared by angular and linear systems.
func (p Params) validate() error {
	if err := p.Motor.Validate(); err != nil {
		return errors.Wrapf(err, "system %q", p.Name)
	}

	if err := positive(
		check{"G", p.G},
		check{"dt", p.Dt},
		check{"q_pos", p.QPos},
		check{"q_vel", p.QVel},
		check{"kalman_q_pos", p.KalmanQPos},
		check{"kalman_q_vel", p.KalmanQVel},
		check{"kalman_q_voltage", p.KalmanQVoltage},
		check{"kalman_r_position", p.KalmanRPosition},
		check{"voltage_limit", p.VoltageLimit},
		check{"q_pos_ff", p.QPosFF},
		check{"q_vel_ff", p.QVelFF},
	); err != nil {
		return errors.Wrapf(err, "system %q", p.Name)
	}

	if p.DelayedU < 0 {
		return errors.Wrapf(control.ErrConfig, "system %q: delayed_u must not be negative: %d", p.Name, p.DelayedU)
	}

	if p.WrapPoint < 0 || math.IsNaN(p.WrapPoint) {
		return errors.Wrapf(control.ErrConfig, "system %q: wrap_point must not be negative: %v", p.Name, p.WrapPoint)
	}

	return nil
}
