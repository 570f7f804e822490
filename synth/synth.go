package synth

import (
	"fmt"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/kalman"
	"github.com/milosgajdos/go-control/lqr"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/plant"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Base is a loop synthesized directly from a plant design.
type Base struct {
	loop
}

// Synthesize discretizes the design and synthesizes its LQR controller,
// feed-forward gain and steady-state Kalman filter.
//
// It returns error wrapping control.ErrConfig for invalid designs and
// control.ErrSynthesis if either gain can not be synthesized.
func Synthesize(d *plant.Design, opts ...Option) (*Base, error) {
	o := newOptions(opts...)

	if d == nil {
		return nil, errors.Wrap(control.ErrConfig, "nil design")
	}

	ct, err := d.Continuous()
	if err != nil {
		return nil, errors.Wrapf(control.ErrConfig, "design %q: %v", d.Name, err)
	}

	dt, err := ct.ToDiscrete(d.Dt)
	if err != nil {
		return nil, errors.Wrapf(err, "design %q", d.Name)
	}

	rank, err := sim.CtrbRank(dt.A, dt.B)
	if err != nil {
		return nil, errors.Wrapf(control.ErrSynthesis, "design %q: %v", d.Name, err)
	}
	o.logger.Debug("discretized", zap.String("name", d.Name), zap.Int("controllability_rank", rank))

	k, err := gain(d, dt)
	if err != nil {
		return nil, err
	}

	kff, err := lqr.FeedForward(dt.B, d.Qff)
	if err != nil {
		return nil, errors.Wrapf(err, "design %q", d.Name)
	}

	n, err := noiseCov(d, ct.A, d.KalmanQ, d.KalmanR)
	if err != nil {
		return nil, err
	}

	kal, err := kalman.Steady(dt.A, dt.C, n.q, n.r)
	if err != nil {
		return nil, errors.Wrapf(err, "design %q", d.Name)
	}

	b := &Base{
		loop: loop{
			name:   d.Name,
			design: d,
			ct:     ct,
			dt:     dt,
			k:      k,
			kff:    kff,
			kal:    kal,
			q:      n.q,
			r:      n.r,
			qc:     n.qc,
			rc:     n.rc,
		},
	}

	logLoop(o.logger, &b.loop)

	return b, nil
}

// gain returns the fixed gain of the design if it has one and the LQR gain otherwise.
func gain(d *plant.Design, dt *sim.Discrete) (*mat.Dense, error) {
	if d.Gain == nil {
		k, _, err := lqr.DLQR(dt.A, dt.B, d.Q, d.R)
		if err != nil {
			return nil, errors.Wrapf(err, "design %q", d.Name)
		}
		return k, nil
	}

	nx, nu, _ := dt.SystemDims()
	if r, c := d.Gain.Dims(); r != nu || c != nx {
		return nil, errors.Wrapf(control.ErrConfig, "design %q: gain must be %d x %d, got %d x %d", d.Name, nu, nx, r, c)
	}

	return mat.DenseCopyOf(d.Gain), nil
}

// noise holds matching discrete and continuous noise covariances.
type noise struct {
	q, r   *mat.SymDense
	qc, rc *mat.SymDense
}

// noiseCov completes the noise covariances q and r of the design with their counterparts
// in the other time domain. Continuous covariances are discretized for the sample interval
// of the design, discrete ones are mapped to the continuous covariances which discretize to them.
func noiseCov(d *plant.Design, A mat.Matrix, q, r *mat.SymDense) (*noise, error) {
	if q == nil || r == nil {
		return nil, errors.Wrapf(control.ErrConfig, "design %q: missing noise covariances", d.Name)
	}

	if d.ContinuousNoise {
		qd, rd, err := kalman.DiscretizeNoise(A, q, r, d.Dt)
		if err != nil {
			return nil, errors.Wrapf(err, "design %q", d.Name)
		}
		return &noise{q: qd, r: rd, qc: q, rc: r}, nil
	}

	qc, rc, err := kalman.ContinuousNoise(A, q, r, d.Dt)
	if err != nil {
		return nil, errors.Wrapf(err, "design %q", d.Name)
	}

	return &noise{q: q, r: r, qc: qc, rc: rc}, nil
}

func logLoop(l *zap.Logger, lp *loop) {
	if ce := l.Check(zap.DebugLevel, "synthesized"); ce != nil {
		ctrl, _ := matrix.Eigenvalues(lqr.ClosedLoop(lp.dt.A, lp.dt.B, lp.k))
		obs, _ := matrix.Eigenvalues(lqr.ClosedLoop(lp.dt.A, lp.kal.L, lp.dt.C))
		ce.Write(
			zap.String("name", lp.name),
			zap.Float64s("K", matrix.Flatten(lp.k)),
			zap.Float64s("Kff", matrix.Flatten(lp.kff)),
			zap.Float64s("KalmanGain", matrix.Flatten(lp.kal.K)),
			zap.String("controller_poles", formatPoles(ctrl)),
			zap.String("observer_poles", formatPoles(obs)),
		)
	}
}

func formatPoles(poles []complex128) string {
	return fmt.Sprintf("%.6g", poles)
}
