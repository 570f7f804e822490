package sim

import (
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Discrete is a linear time-invariant system sampled every Dt seconds.
type Discrete struct {
	System
	// Dt is the sample interval in seconds
	Dt float64
}

// NewDiscrete returns the discrete-time system
//
//	x[n+1] = A*x[n] + B*u[n]
//	y[n] = C*x[n] + D*u[n]
//
// sampled every dt seconds.
// It returns error wrapping control.ErrConfig if dt is not a positive number.
func NewDiscrete(A, B, C, D *mat.Dense, dt float64) (*Discrete, error) {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return nil, errors.Wrapf(control.ErrConfig, "invalid sample interval: %v", dt)
	}

	sys := newSystem(A, B, C, D)
	if err := sys.validate(); err != nil {
		return nil, err
	}

	return &Discrete{System: sys, Dt: dt}, nil
}

// Propagate returns the state following x given input u.
// wd is added to the state as process noise. Nil u and wd are ignored.
// It returns error wrapping control.ErrInterface if x or u have invalid length.
func (d *Discrete) Propagate(x, u, wd mat.Vector) (mat.Vector, error) {
	if err := d.checkVecs(x, u); err != nil {
		return nil, err
	}

	nx, _, _ := d.SystemDims()

	next := mat.NewVecDense(nx, nil)
	next.MulVec(d.A, x)

	if u != nil && d.B != nil {
		bu := &mat.VecDense{}
		bu.MulVec(d.B, u)
		next.AddVec(next, bu)
	}

	if wd != nil && wd.Len() == nx {
		next.AddVec(next, wd)
	}

	return next, nil
}
