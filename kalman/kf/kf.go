// Package kf implements a steady-state Kalman filter: a linear observer
// running with a gain synthesized offline.
package kf

import (
	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/estimate"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// KF is steady-state Kalman Filter
type KF struct {
	// m is KF system model
	m control.Model
	// k is Kalman gain
	k *mat.Dense
	// p is the steady-state covariance matrix
	p *mat.SymDense
	// x is the current state estimate
	x *mat.VecDense
	// inn is innovation vector
	inn *mat.VecDense
	// np is the number of leading plant states
	np int
}

// Option configures KF.
type Option func(*KF)

// WithPlantStates marks the first n estimated states as plant states.
// The rest are disturbances tracked by the observer. All states belong to the plant by default.
func WithPlantStates(n int) Option {
	return func(k *KF) {
		k.np = n
	}
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - m:      discrete-time system model
//   - o:      observer providing the steady-state Kalman gain and covariance
//   - init:   initial condition of the filter; only its state is used
//   - opts:   filter options
//
// It returns error if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - the Kalman gain dimensions do not match the model dimensions
//   - initial state dimension does not match the model state dimension
//   - the number of plant states is out of range
func New(m control.Model, o control.Observer, init control.InitCond, opts ...Option) (*KF, error) {
	nx, nu, ny := m.SystemDims()
	if nx <= 0 || nu <= 0 || ny <= 0 {
		return nil, errors.Wrapf(control.ErrInterface, "invalid model dimensions: [%d x %d x %d]", nx, nu, ny)
	}

	rows, cols := m.StateMatrix().Dims()
	if rows != nx || cols != nx {
		return nil, errors.Wrapf(control.ErrInterface, "invalid propagation matrix dimensions: [%d x %d]", rows, cols)
	}

	rows, cols = m.OutputMatrix().Dims()
	if rows != ny || cols != nx {
		return nil, errors.Wrapf(control.ErrInterface, "invalid observation matrix dimensions: [%d x %d]", rows, cols)
	}

	rows, cols = o.KalmanGain().Dims()
	if rows != nx || cols != ny {
		return nil, errors.Wrapf(control.ErrInterface, "invalid kalman gain dimensions: [%d x %d]", rows, cols)
	}

	if init.State().Len() != nx {
		return nil, errors.Wrapf(control.ErrInterface, "invalid initial state dimension: %d", init.State().Len())
	}

	x := &mat.VecDense{}
	x.CloneFromVec(init.State())

	p := mat.NewSymDense(nx, nil)
	p.CopySym(o.Cov())

	k := &KF{
		m:   m,
		k:   mat.DenseCopyOf(o.KalmanGain()),
		p:   p,
		x:   x,
		inn: mat.NewVecDense(ny, nil),
		np:  nx,
	}

	for _, apply := range opts {
		apply(k)
	}

	if k.np < 1 || k.np > nx {
		return nil, errors.Wrapf(control.ErrInterface, "invalid number of plant states: %d", k.np)
	}

	return k, nil
}

// Predict propagates the current state estimate to the next step given the input u
// and returns the new estimate.
//
//	x[n+1|n] = A*x[n|n] + B*u[n]
func (k *KF) Predict(u mat.Vector) (*estimate.State, error) {
	_, nu, _ := k.m.SystemDims()
	if u.Len() != nu {
		return nil, errors.Wrapf(control.ErrInterface, "invalid input vector: %d", u.Len())
	}

	xNext := &mat.VecDense{}
	xNext.MulVec(k.m.StateMatrix(), k.x)

	bu := &mat.VecDense{}
	bu.MulVec(k.m.StateCtlMatrix(), u)
	xNext.AddVec(xNext, bu)

	k.x.CopyVec(xNext)

	return estimate.New(k.x, k.p, k.np)
}

// Update corrects the current state estimate using the measurement y, given control input u
// and returns the corrected estimate.
//
//	x[n|n] = x[n|n-1] + K*(y[n] - C*x[n|n-1] - D*u[n])
func (k *KF) Update(u, y mat.Vector) (*estimate.State, error) {
	_, nu, ny := k.m.SystemDims()
	if y.Len() != ny {
		return nil, errors.Wrapf(control.ErrInterface, "invalid measurement supplied: %d", y.Len())
	}
	if u.Len() != nu {
		return nil, errors.Wrapf(control.ErrInterface, "invalid input vector: %d", u.Len())
	}

	yHat := &mat.VecDense{}
	yHat.MulVec(k.m.OutputMatrix(), k.x)
	du := &mat.VecDense{}
	du.MulVec(k.m.OutputCtlMatrix(), u)
	yHat.AddVec(yHat, du)

	k.inn.SubVec(y, yHat)

	corr := &mat.VecDense{}
	corr.MulVec(k.k, k.inn)
	k.x.AddVec(k.x, corr)

	return estimate.New(k.x, k.p, k.np)
}

// Run runs one step of KF for input u and measurement y.
// It propagates the current estimate and then corrects it using y.
func (k *KF) Run(u, y mat.Vector) (*estimate.State, error) {
	if _, err := k.Predict(u); err != nil {
		return nil, err
	}

	return k.Update(u, y)
}

// State returns the current state estimate
func (k *KF) State() mat.Vector {
	x := &mat.VecDense{}
	x.CloneFromVec(k.x)

	return x
}

// SetState resets the current state estimate to x.
func (k *KF) SetState(x mat.Vector) error {
	if x == nil || x.Len() != k.x.Len() {
		return errors.Wrap(control.ErrInterface, "invalid state vector")
	}
	k.x.CopyVec(x)

	return nil
}

// Innovation returns the innovation computed by the last Update
func (k *KF) Innovation() mat.Vector {
	inn := &mat.VecDense{}
	inn.CloneFromVec(k.inn)

	return inn
}

// Model returns KF model
func (k *KF) Model() control.Model {
	return k.m
}

// Cov returns KF covariance
func (k *KF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// Gain returns Kalman gain
func (k *KF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}
