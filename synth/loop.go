// Package synth synthesizes controllers and observers for plant designs
// and augments them with voltage error estimation.
package synth

import (
	"github.com/milosgajdos/go-control/kalman"
	"github.com/milosgajdos/go-control/motor"
	"github.com/milosgajdos/go-control/plant"
	"github.com/milosgajdos/go-control/sim"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// loop holds a synthesized model, controller and observer. It implements control.Loop.
type loop struct {
	name   string
	design *plant.Design
	ct     *sim.Continuous
	dt     *sim.Discrete
	k      *mat.Dense
	kff    *mat.Dense
	kal    *kalman.Gain
	q, r   *mat.SymDense
	qc, rc *mat.SymDense
}

// Name returns the loop name
func (l *loop) Name() string { return l.name }

// Dt returns the sample interval
func (l *loop) Dt() float64 { return l.dt.Dt }

// SystemDims returns state, input and output vector lengths
func (l *loop) SystemDims() (nx, nu, ny int) { return l.dt.SystemDims() }

// ContinuousStateMatrix returns continuous-time state matrix
func (l *loop) ContinuousStateMatrix() mat.Matrix { return mat.DenseCopyOf(l.ct.A) }

// ContinuousCtlMatrix returns continuous-time control matrix
func (l *loop) ContinuousCtlMatrix() mat.Matrix { return mat.DenseCopyOf(l.ct.B) }

// StateMatrix returns discrete state propagation matrix
func (l *loop) StateMatrix() mat.Matrix { return mat.DenseCopyOf(l.dt.A) }

// StateCtlMatrix returns discrete state propagation control matrix
func (l *loop) StateCtlMatrix() mat.Matrix { return mat.DenseCopyOf(l.dt.B) }

// OutputMatrix returns observation matrix
func (l *loop) OutputMatrix() mat.Matrix { return mat.DenseCopyOf(l.dt.C) }

// OutputCtlMatrix returns observation feedthrough matrix
func (l *loop) OutputCtlMatrix() mat.Matrix { return mat.DenseCopyOf(l.dt.D) }

// Gain returns LQR gain
func (l *loop) Gain() mat.Matrix { return mat.DenseCopyOf(l.k) }

// FeedForwardGain returns feed-forward gain
func (l *loop) FeedForwardGain() mat.Matrix { return mat.DenseCopyOf(l.kff) }

// KalmanGain returns steady-state Kalman gain
func (l *loop) KalmanGain() mat.Matrix { return mat.DenseCopyOf(l.kal.K) }

// PredictorGain returns the observer gain A*KalmanGain
func (l *loop) PredictorGain() mat.Matrix { return mat.DenseCopyOf(l.kal.L) }

// Cov returns steady-state a posteriori estimate covariance
func (l *loop) Cov() mat.Symmetric { return symCopy(l.kal.P) }

// NoiseCov returns the discrete process and measurement noise covariances
func (l *loop) NoiseCov() (q, r mat.Symmetric) { return symCopy(l.q), symCopy(l.r) }

// ContinuousNoiseCov returns the continuous-time covariances NoiseCov is the discretization of
func (l *loop) ContinuousNoiseCov() (q, r mat.Symmetric) { return symCopy(l.qc), symCopy(l.rc) }

// InputLimits returns input limits
func (l *loop) InputLimits() (min, max mat.Vector) {
	return mat.VecDenseCopyOf(l.design.UMin), mat.VecDenseCopyOf(l.design.UMax)
}

// WrapPoint returns position wrap point
func (l *loop) WrapPoint() float64 { return l.design.WrapPoint }

// DelayedU returns input delay in samples
func (l *loop) DelayedU() int { return l.design.DelayedU }

// Design returns the design the loop was synthesized from.
// The design is shared with the loop and must not be modified.
func (l *loop) Design() *plant.Design { return l.design }

// Motor returns the motor driving the plant
func (l *loop) Motor() motor.Motor { return l.design.Motor }

// OutputRatio returns the ratio between motor and output speed
func (l *loop) OutputRatio() float64 { return l.design.OutputRatio }

// Continuous returns the continuous-time system.
// The system is shared with the loop and must not be modified.
func (l *loop) Continuous() *sim.Continuous { return l.ct }

// Discrete returns the discrete-time system.
// The system is shared with the loop and must not be modified.
func (l *loop) Discrete() *sim.Discrete { return l.dt }

func symCopy(s *mat.SymDense) *mat.SymDense {
	c := mat.NewSymDense(s.SymmetricDim(), nil)
	c.CopySym(s)

	return c
}

type options struct {
	logger *zap.Logger
	prefix string
}

// Option configures synthesis.
type Option func(*options)

// WithLogger sets the logger synthesis reports its diagnostics to.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPrefix sets the prefix Augment prepends to the name of the augmented loop.
func WithPrefix(p string) Option {
	return func(o *options) {
		o.prefix = p
	}
}

func newOptions(opts ...Option) *options {
	o := &options{logger: zap.NewNop(), prefix: IntegralPrefix}
	for _, apply := range opts {
		apply(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return o
}
