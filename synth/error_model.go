package synth

import (
	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/kalman"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/plant"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// AugmentModel extends the base loop with the error states of the model m.
// The first states of m must be the base state and its first error states the
// voltage errors of the base inputs.
//
// The observer is the steady-state Kalman filter of the discretized model corrected
// with the measured outputs only; the gains of the unmeasured outputs are zero.
// The LQR gain is not recomputed: K' = [K, diag(m.Feedback), 0] and Kff' = [Kff, 0].
//
// The base loop is not modified.
// It returns error wrapping control.ErrConfig if the model does not extend the base loop
// and control.ErrSynthesis if its observer can not be synthesized.
func AugmentModel(b *Base, m *plant.ErrorModel, opts ...Option) (*Augmented, error) {
	o := newOptions(opts...)

	if b == nil || m == nil || m.Design == nil {
		return nil, errors.Wrap(control.ErrConfig, "nil base loop or error model")
	}

	d := m.Design
	n, nu, _ := b.SystemDims()
	na := n + m.ErrorStates

	ct, err := d.Continuous()
	if err != nil {
		return nil, errors.Wrapf(control.ErrConfig, "design %q: %v", d.Name, err)
	}

	nx, mu, ny := ct.SystemDims()
	switch {
	case nx != na || mu != nu:
		return nil, errors.Wrapf(control.ErrConfig, "design %q: %d x %d model does not extend %d x %d base by %d states",
			d.Name, nx, mu, n, nu, m.ErrorStates)
	case len(m.Feedback) != nu || m.ErrorStates < nu:
		return nil, errors.Wrapf(control.ErrConfig, "design %q: need %d voltage error states", d.Name, nu)
	case m.Measured < 1 || m.Measured > ny:
		return nil, errors.Wrapf(control.ErrConfig, "design %q: invalid number of measured outputs: %d", d.Name, m.Measured)
	}

	dt, err := ct.ToDiscrete(d.Dt)
	if err != nil {
		return nil, errors.Wrapf(err, "design %q", d.Name)
	}

	nc, err := noiseCov(d, ct.A, d.KalmanQ, d.KalmanR)
	if err != nil {
		return nil, err
	}

	if nc.r.SymmetricDim() != m.Measured {
		return nil, errors.Wrapf(control.ErrConfig, "design %q: measurement noise must be %d x %d", d.Name, m.Measured, m.Measured)
	}

	kal, err := kalman.Steady(dt.A, dt.C.Slice(0, m.Measured, 0, na), nc.q, nc.r)
	if err != nil {
		return nil, errors.Wrapf(err, "error model %q", d.Name)
	}
	kal.K = matrix.PadCols(kal.K, ny)
	kal.L = matrix.PadCols(kal.L, ny)

	k := matrix.PadCols(b.k, na)
	for i, f := range m.Feedback {
		k.Set(i, n+i, f)
	}

	a := &Augmented{
		loop: loop{
			name:   o.prefix + d.Name,
			design: d,
			ct:     ct,
			dt:     dt,
			k:      k,
			kff:    matrix.PadCols(b.kff, na),
			kal:    kal,
			q:      nc.q,
			r:      symPad(nc.r, ny),
			qc:     nc.qc,
			rc:     symPad(nc.rc, ny),
		},
		base: b,
		transform: Transform{
			States:          nu,
			Extra:           m.ErrorStates - nu,
			VoltageFeedback: 1,
		},
	}

	o.logger.Debug("augmented",
		zap.String("name", a.name),
		zap.Int("states", na),
		zap.Int("measured", m.Measured),
		zap.Float64s("feedback", m.Feedback),
	)
	logLoop(o.logger, &a.loop)

	return a, nil
}

// symPad returns a copy of s with zero rows and columns appended so it is n x n.
func symPad(s *mat.SymDense, n int) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < s.SymmetricDim(); i++ {
		for j := i; j < s.SymmetricDim(); j++ {
			out.SetSym(i, j, s.At(i, j))
		}
	}

	return out
}
