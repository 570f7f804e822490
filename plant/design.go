// Package plant builds continuous-time state-space models of motor driven mechanisms
// together with the tuning needed to synthesize their controllers and observers.
package plant

import (
	"github.com/milosgajdos/go-control/motor"
	"github.com/milosgajdos/go-control/sim"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Constant is a named scalar emitted alongside the generated loop coefficients.
type Constant struct {
	// Name is the emitted identifier
	Name string
	// Format is a printf verb the value is formatted with
	Format string
	// Value is the constant value
	Value float64
	// JSONName is the sidecar key; empty means the constant is not emitted to JSON
	JSONName string
	// JSONScale scales the value in the sidecar; 0 means 1
	JSONScale float64
	// JSONInt emits the scaled value as an integer
	JSONInt bool
}

// Design is a continuous-time plant model plus everything needed to synthesize its loop.
type Design struct {
	// Name is the emitted loop name
	Name string
	// A, B, C, D is the continuous-time system
	A, B, C, D *mat.Dense
	// Dt is the sample interval in seconds
	Dt float64
	// Q and R weigh the LQR cost
	Q, R *mat.SymDense
	// Gain is a fixed feedback gain used instead of the LQR gain when set
	Gain *mat.Dense
	// Qff weighs the feed-forward fit
	Qff *mat.SymDense
	// KalmanQ and KalmanR are the discrete process and measurement noise covariances
	KalmanQ, KalmanR *mat.SymDense
	// AugKalmanQ is the process noise covariance of the voltage error augmented system
	AugKalmanQ *mat.SymDense
	// ContinuousNoise marks KalmanQ, KalmanR and AugKalmanQ as continuous-time covariances
	ContinuousNoise bool
	// UMin and UMax are the input limits
	UMin, UMax *mat.VecDense
	// WrapPoint is the position wrap point; 0 means no wrapping
	WrapPoint float64
	// DelayedU is the number of samples the input is delayed by
	DelayedU int
	// EnableVoltageError feeds the estimated voltage error back into the input
	EnableVoltageError bool
	// Motor drives the plant
	Motor motor.Motor
	// OutputRatio converts motor speed to output speed
	OutputRatio float64
	// Constants are emitted with the loop
	Constants []Constant
}

// Continuous returns the continuous-time system of the design.
func (d *Design) Continuous() (*sim.Continuous, error) {
	return sim.NewContinuous(d.A, d.B, d.C, d.D)
}

type options struct {
	logger *zap.Logger
}

// Option configures model building.
type Option func(*options)

// WithLogger sets the logger model building reports its diagnostics to.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts ...Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, apply := range opts {
		apply(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return o
}

func limits(n int, v float64) (min, max *mat.VecDense) {
	min = mat.NewVecDense(n, nil)
	max = mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		min.SetVec(i, -v)
		max.SetVec(i, v)
	}

	return min, max
}
