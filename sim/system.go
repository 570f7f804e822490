package sim

import (
	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// System defines a linear model of a plant using
// traditional matrices of modern control theory.
//
// It contains the System (A), input (B), Observation/Output (C)
// and Feedthrough (D) matrices.
type System struct {
	// System/State matrix A
	A *mat.Dense
	// Control/Input Matrix B
	B *mat.Dense
	// Observation/Output Matrix C
	C *mat.Dense
	// Feedthrough matrix D
	D *mat.Dense
}

func newSystem(A, B, C, D *mat.Dense) System {
	return System{A: clone(A), B: clone(B), C: clone(C), D: clone(D)}
}

func clone(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	return mat.DenseCopyOf(m)
}

func (s System) validate() error {
	if s.A == nil {
		return errors.Wrap(control.ErrInterface, "system matrix must be defined for a model")
	}
	nx, nc := s.A.Dims()
	if nx != nc {
		return errors.Wrapf(control.ErrInterface, "invalid system matrix dimensions: [%d x %d]", nx, nc)
	}
	if s.B != nil {
		if r, c := s.B.Dims(); r != nx {
			return errors.Wrapf(control.ErrInterface, "invalid control matrix dimensions: [%d x %d]", r, c)
		}
	}
	if s.C != nil {
		if r, c := s.C.Dims(); c != nx {
			return errors.Wrapf(control.ErrInterface, "invalid output matrix dimensions: [%d x %d]", r, c)
		}
	}
	if s.D != nil && s.B != nil && s.C != nil {
		_, nu := s.B.Dims()
		ny, _ := s.C.Dims()
		if r, c := s.D.Dims(); r != ny || c != nu {
			return errors.Wrapf(control.ErrInterface, "invalid feedthrough matrix dimensions: [%d x %d]", r, c)
		}
	}
	return nil
}

// SystemDims returns internal state length (nx), input vector length (nu)
// and external/observable/output state length (ny).
func (s System) SystemDims() (nx, nu, ny int) {
	nx, _ = s.A.Dims()
	if s.B != nil {
		_, nu = s.B.Dims()
	}
	if s.C != nil {
		ny, _ = s.C.Dims()
	}
	return nx, nu, ny
}

// SystemMatrix returns state propagation matrix `A`.
func (s System) SystemMatrix() (A mat.Matrix) { return s.A }

// ControlMatrix returns state propagation control matrix `B`
func (s System) ControlMatrix() (B mat.Matrix) {
	if s.B == nil {
		return nil
	}
	return s.B
}

// OutputMatrix returns observation matrix `C`
func (s System) OutputMatrix() (C mat.Matrix) {
	if s.C == nil {
		return nil
	}
	return s.C
}

// FeedForwardMatrix returns observation control matrix `D`
func (s System) FeedForwardMatrix() (D mat.Matrix) {
	if s.D == nil {
		return nil
	}
	return s.D
}

// Controllable returns true if the pair (A, B) is controllable.
func (s System) Controllable() (bool, error) {
	if s.B == nil {
		return false, nil
	}
	nx, _, _ := s.SystemDims()
	rank, err := CtrbRank(s.A, s.B)
	if err != nil {
		return false, err
	}
	return rank == nx, nil
}

// Observable returns true if the pair (A, C) is observable.
func (s System) Observable() (bool, error) {
	if s.C == nil {
		return false, nil
	}
	nx, _, _ := s.SystemDims()
	rank, err := CtrbRank(s.A.T(), s.C.T())
	if err != nil {
		return false, err
	}
	return rank == nx, nil
}

// Observe returns the output y = C*x + D*u given internal state x and input u.
// wn is added to the output as measurement noise. Nil u and wn are ignored.
// It returns error wrapping control.ErrInterface if x or u have invalid length.
func (s System) Observe(x, u, wn mat.Vector) (mat.Vector, error) {
	if err := s.checkVecs(x, u); err != nil {
		return nil, err
	}

	_, _, ny := s.SystemDims()

	y := mat.NewVecDense(ny, nil)
	y.MulVec(s.C, x)

	if u != nil && s.D != nil {
		du := &mat.VecDense{}
		du.MulVec(s.D, u)
		y.AddVec(y, du)
	}

	if wn != nil && wn.Len() == ny {
		y.AddVec(y, wn)
	}

	return y, nil
}

func (s System) checkVecs(x, u mat.Vector) error {
	nx, nu, _ := s.SystemDims()

	if x == nil || x.Len() != nx {
		return errors.Wrap(control.ErrInterface, "invalid state vector")
	}

	if u != nil && u.Len() != nu {
		return errors.Wrapf(control.ErrInterface, "invalid input vector: %d", u.Len())
	}

	return nil
}
