package plant

import (
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/lqr"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/motor"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// DefaultQVelFFFlywheel is the default flywheel feed-forward velocity tolerance
const DefaultQVelFFFlywheel = 8.0

// FlywheelParams are the physical and tuning parameters of a velocity controlled flywheel.
type FlywheelParams struct {
	// Name is the emitted loop name
	Name string
	// Motor drives the flywheel
	Motor motor.Motor
	// G is the gear ratio
	G float64
	// J is the flywheel moment of inertia in kg*m^2
	J float64
	// QPos, QVel and QVoltage are continuous process noise standard deviations
	QPos, QVel, QVoltage float64
	// RPos is the continuous position measurement noise standard deviation
	RPos float64
	// Pole is the discrete closed loop velocity pole
	Pole float64
	// Dt is the sample interval in seconds
	Dt float64
	// VoltageLimit is the symmetric input limit in V
	VoltageLimit float64
	// QVelFF is the feed-forward velocity tolerance
	QVelFF float64
}

func (p FlywheelParams) validate() error {
	if err := p.Motor.Validate(); err != nil {
		return errors.Wrapf(err, "flywheel %q", p.Name)
	}

	if err := positive(
		check{"G", p.G},
		check{"J", p.J},
		check{"q_pos", p.QPos},
		check{"q_vel", p.QVel},
		check{"q_voltage", p.QVoltage},
		check{"r_pos", p.RPos},
		check{"dt", p.Dt},
		check{"voltage_limit", p.VoltageLimit},
		check{"q_vel_ff", p.QVelFF},
	); err != nil {
		return errors.Wrapf(err, "flywheel %q", p.Name)
	}

	if !(math.Abs(p.Pole) < 1) {
		return errors.Wrapf(control.ErrConfig, "flywheel %q: pole must lie inside the unit circle: %v", p.Name, p.Pole)
	}

	return nil
}

// Flywheel returns the design of a flywheel whose velocity is controlled through a voltage driven motor.
// The state is [position, velocity] in rad and rad/s but only the velocity is controlled:
// the feedback gain places the velocity pole and ignores the position. The position is
// measured and the observer noise is specified in continuous time.
//
// It returns error wrapping control.ErrConfig if any parameter is invalid
// and control.ErrSynthesis if the velocity pole can not be placed.
func Flywheel(p FlywheelParams, opts ...Option) (*Design, error) {
	o := newOptions(opts...)

	if err := p.validate(); err != nil {
		return nil, err
	}

	m := p.Motor
	c1 := m.Kt / m.Kv / (p.J * p.G * p.G * m.Resistance)
	c2 := m.Kt / (p.J * p.G * m.Resistance)

	av, bv, err := sim.C2D(mat.NewDense(1, 1, []float64{-c1}), mat.NewDense(1, 1, []float64{c2}), p.Dt)
	if err != nil {
		return nil, errors.Wrapf(err, "flywheel %q", p.Name)
	}

	kv, err := lqr.Place(av, bv, []complex128{complex(p.Pole, 0)})
	if err != nil {
		return nil, errors.Wrapf(err, "flywheel %q", p.Name)
	}

	umin, umax := limits(1, p.VoltageLimit)
	qp, qv, qu := p.QPos*p.QPos, p.QVel*p.QVel, p.QVoltage*p.QVoltage

	d := &Design{
		Name:               p.Name,
		A:                  mat.NewDense(2, 2, []float64{0, 1, 0, -c1}),
		B:                  mat.NewDense(2, 1, []float64{0, c2}),
		C:                  mat.NewDense(1, 2, []float64{1, 0}),
		D:                  mat.NewDense(1, 1, nil),
		Dt:                 p.Dt,
		Gain:               mat.NewDense(1, 2, []float64{0, kv.At(0, 0)}),
		Qff:                matrix.DiagSym(0, 1/(p.QVelFF*p.QVelFF)),
		KalmanQ:            matrix.DiagSym(qp, qv),
		KalmanR:            matrix.DiagSym(p.RPos * p.RPos),
		AugKalmanQ:         matrix.DiagSym(qp, qv, qu),
		ContinuousNoise:    true,
		UMin:               umin,
		UMax:               umax,
		EnableVoltageError: true,
		Motor:              m,
		OutputRatio:        p.G,
		Constants: []Constant{
			{Name: "kOutputRatio", Format: "%f", Value: p.G},
			{Name: "kFreeSpeed", Format: "%f", Value: m.FreeSpeed},
			{Name: "kBemf", Format: "%f", Value: m.Kv * p.G},
			{Name: "kResistance", Format: "%f", Value: m.Resistance},
		},
	}

	o.logger.Debug("flywheel",
		zap.String("name", p.Name),
		zap.Float64("J", p.J),
		zap.Float64("free_speed", c2/c1*p.VoltageLimit),
		zap.Float64("velocity_gain", kv.At(0, 0)),
		zap.Float64("pole", p.Pole),
	)

	return d, nil
}
