// Package estimate holds observer state estimates.
package estimate

import (
	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var _ control.Estimate = (*State)(nil)

// State is an observer state estimate. It implements control.Estimate.
//
// The leading states describe the plant. Any trailing states are
// disturbances the observer tracks on top of it, e.g. voltage error.
type State struct {
	val *mat.VecDense
	cov *mat.SymDense
	np  int
}

// New returns the estimate val with covariance cov whose first np states belong to the plant.
// It returns error wrapping control.ErrInterface if the dimensions do not match.
func New(val mat.Vector, cov mat.Symmetric, np int) (*State, error) {
	if val == nil || cov == nil {
		return nil, errors.Wrap(control.ErrInterface, "nil estimate")
	}

	n := val.Len()
	if cov.SymmetricDim() != n {
		return nil, errors.Wrapf(control.ErrInterface, "estimate length %d, covariance %d x %d", n, cov.SymmetricDim(), cov.SymmetricDim())
	}

	if np < 1 || np > n {
		return nil, errors.Wrapf(control.ErrInterface, "plant states %d out of [1, %d]", np, n)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(n, nil)
	c.CopySym(cov)

	return &State{val: v, cov: c, np: np}, nil
}

// Val returns a copy of the full estimate
func (s *State) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(s.val)

	return v
}

// Cov returns a copy of the estimate covariance
func (s *State) Cov() mat.Symmetric {
	cov := mat.NewSymDense(s.cov.SymmetricDim(), nil)
	cov.CopySym(s.cov)

	return cov
}

// Plant returns a copy of the plant states.
func (s *State) Plant() mat.Vector {
	return mat.VecDenseCopyOf(s.val.SliceVec(0, s.np))
}

// Disturbance returns the tracked disturbance states.
// It returns nil if the observer tracks none.
func (s *State) Disturbance() mat.Vector {
	if s.np == s.val.Len() {
		return nil
	}

	return mat.VecDenseCopyOf(s.val.SliceVec(s.np, s.val.Len()))
}
