package plant

import (
	"math"

	"github.com/milosgajdos/go-control/matrix"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// lbfPerNewton converts newtons to pounds of force
const lbfPerNewton = 0.224809

// Angular returns the design of a motor driven rotating mechanism.
// The state is [position, velocity] in rad and rad/s, the input is voltage.
//
// It returns error wrapping control.ErrConfig if any parameter is invalid.
func Angular(p Params, opts ...Option) (*Design, error) {
	o := newOptions(opts...)

	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := positive(check{"J", p.J}); err != nil {
		return nil, errors.Wrapf(err, "system %q", p.Name)
	}

	m := p.Motor
	jMotor := m.Inertia / (p.G * p.G)
	j := p.J + jMotor

	c1 := m.Kt / (p.G * p.G * m.Resistance * j * m.Kv)
	c2 := m.Kt / (p.G * j * m.Resistance)

	d := singleAxis(p, c1, c2)
	d.OutputRatio = p.G
	d.Constants = []Constant{
		{Name: "kOutputRatio", Format: "%f", Value: p.G},
		{Name: "kFreeSpeed", Format: "%f", Value: m.FreeSpeed},
	}

	fields := []zap.Field{
		zap.String("name", p.Name),
		zap.Float64("J", j),
		zap.Float64("stall_torque", m.StallTorque/p.G),
		zap.Float64("stall_acceleration", m.StallTorque/p.G/j),
		zap.Float64("free_speed", c2/c1*p.VoltageLimit),
	}
	if p.Radius > 0 {
		force := m.StallTorque / p.G / p.Radius
		fields = append(fields, zap.Float64("stall_force_n", force), zap.Float64("stall_force_lbf", force*lbfPerNewton))
	}
	o.logger.Debug("angular system", fields...)

	return d, nil
}

// Linear returns the design of a motor driven mechanism moving along a line,
// e.g. an elevator driven through a pulley of the given radius.
// The state is [position, velocity] in m and m/s, the input is voltage.
//
// It returns error wrapping control.ErrConfig if any parameter is invalid.
func Linear(p Params, opts ...Option) (*Design, error) {
	o := newOptions(opts...)

	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := positive(check{"mass", p.Mass}, check{"radius", p.Radius}); err != nil {
		return nil, errors.Wrapf(err, "system %q", p.Name)
	}

	m := p.Motor
	r := p.Radius
	mMotor := m.Inertia / math.Pow(p.G*r, 2)
	mass := p.Mass + mMotor

	c1 := m.Kt / (p.G * p.G * r * r * m.Resistance * mass * m.Kv)
	c2 := m.Kt / (p.G * r * m.Resistance * mass)

	d := singleAxis(p, c1, c2)
	d.OutputRatio = p.G * r
	d.Constants = []Constant{
		{Name: "kOutputRatio", Format: "%f", Value: p.G * r},
		{Name: "kFreeSpeed", Format: "%f", Value: m.FreeSpeed},
		{Name: "kRadius", Format: "%f", Value: r},
	}

	o.logger.Debug("linear system",
		zap.String("name", p.Name),
		zap.Float64("mass", mass),
		zap.Float64("stall_force", m.StallTorque/p.G/r),
		zap.Float64("stall_acceleration", m.StallTorque/p.G/r/mass),
		zap.Float64("free_speed", c2/c1*p.VoltageLimit),
	)

	return d, nil
}

// singleAxis assembles the [position, velocity] design shared by angular and linear systems:
//
//	A = [[0, 1], [0, -c1]], B = [[0], [c2]], C = [[1, 0]], D = [[0]]
func singleAxis(p Params, c1, c2 float64) *Design {
	A := mat.NewDense(2, 2, []float64{0, 1, 0, -c1})
	B := mat.NewDense(2, 1, []float64{0, c2})
	C := mat.NewDense(1, 2, []float64{1, 0})
	D := mat.NewDense(1, 1, nil)

	umin, umax := limits(1, p.VoltageLimit)

	return &Design{
		Name:               p.Name,
		A:                  A,
		B:                  B,
		C:                  C,
		D:                  D,
		Dt:                 p.Dt,
		Q:                  matrix.DiagSym(1/(p.QPos*p.QPos), 1/(p.QVel*p.QVel)),
		R:                  matrix.DiagSym(1 / (p.VoltageLimit * p.VoltageLimit)),
		Qff:                matrix.DiagSym(1/(p.QPosFF*p.QPosFF), 1/(p.QVelFF*p.QVelFF)),
		KalmanQ:            matrix.DiagSym(p.KalmanQPos*p.KalmanQPos, p.KalmanQVel*p.KalmanQVel),
		KalmanR:            matrix.DiagSym(p.KalmanRPosition * p.KalmanRPosition),
		AugKalmanQ:         matrix.DiagSym(p.KalmanQPos*p.KalmanQPos, p.KalmanQVel*p.KalmanQVel, p.KalmanQVoltage*p.KalmanQVoltage),
		UMin:               umin,
		UMax:               umax,
		WrapPoint:          p.WrapPoint,
		DelayedU:           p.DelayedU,
		EnableVoltageError: p.EnableVoltageError,
		Motor:              p.Motor,
	}
}
