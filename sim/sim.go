// Package sim models linear time-invariant systems in continuous and discrete time.
package sim

import (
	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var _ control.InitCond = (*InitCond)(nil)

// InitCond is the state an observer starts from. It implements control.InitCond.
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond returns the initial condition given state and its covariance.
// It returns error wrapping control.ErrInterface if the dimensions do not match.
func NewInitCond(state mat.Vector, cov mat.Symmetric) (*InitCond, error) {
	if state == nil || cov == nil {
		return nil, errors.Wrap(control.ErrInterface, "nil initial condition")
	}

	if n := cov.SymmetricDim(); state.Len() != n {
		return nil, errors.Wrapf(control.ErrInterface, "initial state length %d, covariance %d x %d", state.Len(), n, n)
	}

	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{state: s, cov: c}, nil
}

// ZeroInitCond returns an n-dimensional initial condition at rest with zero covariance.
func ZeroInitCond(n int) *InitCond {
	return &InitCond{
		state: mat.NewVecDense(n, nil),
		cov:   mat.NewSymDense(n, nil),
	}
}

// State returns a copy of the initial state
func (c *InitCond) State() mat.Vector {
	state := &mat.VecDense{}
	state.CloneFromVec(c.state)

	return state
}

// Cov returns a copy of the initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}
