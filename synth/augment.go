package synth

import (
	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/kalman"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// IntegralPrefix is prepended to the names of augmented loops by default
const IntegralPrefix = "Integral"

// Transform describes how a base loop was augmented.
type Transform struct {
	// States is the number of voltage error states appended to the base state
	States int
	// Extra is the number of error states appended after the voltage errors
	Extra int
	// VoltageFeedback is the gain the estimated voltage error is fed back with: 1 or 0.
	// Models whose error states are forces scale it per input.
	VoltageFeedback float64
}

// Augmented is a loop whose state is extended with one voltage error state per input
// and possibly further error states.
// The voltage error is an unmodelled input disturbance estimated by the observer.
type Augmented struct {
	loop
	base      *Base
	transform Transform
}

// Augment extends the base loop with a persistent voltage error state per input:
//
//	Ac' = [[Ac, Bc], [0, 0]], Bc' = [[Bc], [0]], C' = [C, 0]
//
// The augmented system is discretized anew and its Kalman filter is synthesized
// with the augmented process noise covariance, discretized first if the design
// specifies noise in continuous time. The LQR gain is not recomputed:
// the voltage error states can not be controlled, so K' = [K, f*I] where f is 1
// if the design enables voltage error feedback and 0 otherwise. Kff' = [Kff, 0].
//
// The base loop is not modified.
// It returns error wrapping control.ErrSynthesis if the augmented observer can not be synthesized.
func Augment(b *Base, opts ...Option) (*Augmented, error) {
	o := newOptions(opts...)

	if b == nil {
		return nil, errors.Wrap(control.ErrConfig, "nil base loop")
	}

	d := b.design
	n, m, _ := b.SystemDims()
	na := n + m

	if d.AugKalmanQ == nil || d.AugKalmanQ.SymmetricDim() != na {
		return nil, errors.Wrapf(control.ErrConfig, "design %q: augmented process noise must be %d x %d", d.Name, na, na)
	}

	A := matrix.Block(b.ct.A, b.ct.B, nil, mat.NewDense(m, m, nil))
	B := matrix.PadRows(b.ct.B, na)
	C := matrix.PadCols(b.ct.C, na)
	D := mat.DenseCopyOf(b.ct.D)

	ct, err := sim.NewContinuous(A, B, C, D)
	if err != nil {
		return nil, errors.Wrapf(control.ErrConfig, "design %q: %v", d.Name, err)
	}

	dt, err := ct.ToDiscrete(d.Dt)
	if err != nil {
		return nil, errors.Wrapf(err, "design %q", d.Name)
	}

	nc, err := noiseCov(d, ct.A, d.AugKalmanQ, d.KalmanR)
	if err != nil {
		return nil, err
	}

	kal, err := kalman.Steady(dt.A, dt.C, nc.q, nc.r)
	if err != nil {
		return nil, errors.Wrapf(err, "augmented design %q", d.Name)
	}

	f := 0.0
	if d.EnableVoltageError {
		f = 1.0
	}

	k := matrix.PadCols(b.k, na)
	for i := 0; i < m; i++ {
		k.Set(i, n+i, f)
	}

	kff := matrix.PadCols(b.kff, na)

	a := &Augmented{
		loop: loop{
			name:   o.prefix + d.Name,
			design: d,
			ct:     ct,
			dt:     dt,
			k:      k,
			kff:    kff,
			kal:    kal,
			q:      nc.q,
			r:      nc.r,
			qc:     nc.qc,
			rc:     nc.rc,
		},
		base:      b,
		transform: Transform{States: m, VoltageFeedback: f},
	}

	o.logger.Debug("augmented", zap.String("name", a.name), zap.Int("states", na), zap.Float64("voltage_feedback", f))
	logLoop(o.logger, &a.loop)

	return a, nil
}

// Base returns the loop the augmented loop was derived from
func (a *Augmented) Base() *Base {
	return a.base
}

// Transform returns the augmentation applied to the base loop
func (a *Augmented) Transform() Transform {
	return a.transform
}

// VoltageError returns the voltage error part of the augmented state x
func (a *Augmented) VoltageError(x mat.Vector) mat.Vector {
	n, _, _ := a.base.SystemDims()
	out := mat.NewVecDense(a.transform.States, nil)
	for i := 0; i < a.transform.States; i++ {
		out.SetVec(i, x.AtVec(n+i))
	}

	return out
}
