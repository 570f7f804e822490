package kalman

import (
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Kalmd discretizes the continuous-time system (A, B) driven by white process noise
// with covariance Qc and measured with white noise of covariance Rc.
// Ad and Bd assume the input is held constant between samples.
// See DiscretizeNoise for Qd and Rd.
//
// It returns error wrapping control.ErrConfig if dt is not positive or the dimensions do not match.
func Kalmd(A, B mat.Matrix, Qc, Rc mat.Symmetric, dt float64) (Ad, Bd *mat.Dense, Qd, Rd *mat.SymDense, err error) {
	Ad, Bd, err = sim.C2D(A, B, dt)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	Qd, Rd, err = DiscretizeNoise(A, Qc, Rc, dt)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return Ad, Bd, Qd, Rd, nil
}

// DiscretizeNoise returns the discrete process and measurement noise covariances
// equivalent to continuous white noise of covariances Qc and Rc sampled every dt seconds:
//
//	Qd = integral(exp(A*t)*Qc*exp(A'*t), t = 0..dt)
//	Rd = Rc/dt
//
// Qd is taken from the matrix exponential
//
//	exp([[-A, Qc], [0, A']] * dt) = [[., F12], [0, F22]],  Qd = F22'*F12
//
// It returns error wrapping control.ErrConfig if dt is not positive or the dimensions do not match.
func DiscretizeNoise(A mat.Matrix, Qc, Rc mat.Symmetric, dt float64) (Qd, Rd *mat.SymDense, err error) {
	if err := checkNoise(A, Qc, Rc, dt); err != nil {
		return nil, nil, err
	}

	Qd = discreteProcess(A, Qc, dt)
	if !matrix.IsFinite(Qd) {
		return nil, nil, errors.Wrap(control.ErrSynthesis, "discrete process noise is not finite")
	}

	Rd = mat.NewSymDense(Rc.SymmetricDim(), nil)
	Rd.ScaleSym(1/dt, matrix.Sym(Rc))

	return Qd, Rd, nil
}

// ContinuousNoise inverts DiscretizeNoise: it returns the continuous-time covariances
// Qc and Rc which DiscretizeNoise maps to Qd and Rd for the system matrix A and sample interval dt.
//
// Qd depends linearly on Qc, so Qc is found by solving the linear system
// the map induces on the independent entries of symmetric matrices.
//
// It returns error wrapping control.ErrConfig if dt is not positive or the dimensions do not match
// and control.ErrSynthesis if the map can not be inverted.
func ContinuousNoise(A mat.Matrix, Qd, Rd mat.Symmetric, dt float64) (Qc, Rc *mat.SymDense, err error) {
	if err := checkNoise(A, Qd, Rd, dt); err != nil {
		return nil, nil, err
	}

	n := Qd.SymmetricDim()
	idx := symIndex(n)

	// column k holds the image of the k-th symmetric basis matrix
	op := mat.NewDense(len(idx), len(idx), nil)
	basis := mat.NewSymDense(n, nil)
	for k, ij := range idx {
		basis.Zero()
		basis.SetSym(ij[0], ij[1], 1)
		img := discreteProcess(A, basis, dt)
		for r, rc := range idx {
			op.Set(r, k, img.At(rc[0], rc[1]))
		}
	}

	rhs := mat.NewVecDense(len(idx), nil)
	for r, rc := range idx {
		rhs.SetVec(r, 0.5*(Qd.At(rc[0], rc[1])+Qd.At(rc[1], rc[0])))
	}

	sol := &mat.VecDense{}
	if err := sol.SolveVec(op, rhs); err != nil {
		return nil, nil, errors.Wrapf(control.ErrSynthesis, "failed to invert noise discretization: %v", err)
	}

	Qc = mat.NewSymDense(n, nil)
	for k, ij := range idx {
		Qc.SetSym(ij[0], ij[1], sol.AtVec(k))
	}

	if !matrix.IsFinite(Qc) {
		return nil, nil, errors.Wrap(control.ErrSynthesis, "continuous process noise is not finite")
	}

	Rc = mat.NewSymDense(Rd.SymmetricDim(), nil)
	Rc.ScaleSym(dt, matrix.Sym(Rd))

	return Qc, Rc, nil
}

func checkNoise(A mat.Matrix, Q, R mat.Symmetric, dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return errors.Wrapf(control.ErrConfig, "invalid sample interval: %v", dt)
	}

	if A == nil || Q == nil || R == nil {
		return errors.Wrap(control.ErrConfig, "nil noise model")
	}

	r, c := A.Dims()
	if r != c || Q.SymmetricDim() != r {
		return errors.Wrapf(control.ErrConfig, "process noise %d x %d does not match state matrix %d x %d",
			Q.SymmetricDim(), Q.SymmetricDim(), r, c)
	}

	return nil
}

func discreteProcess(A mat.Matrix, Qc mat.Symmetric, dt float64) *mat.SymDense {
	n, _ := A.Dims()

	na := &mat.Dense{}
	na.Scale(-1, A)

	em := matrix.Block(na, matrix.Sym(Qc), nil, A.T())
	em.Scale(dt, em)

	phi := &mat.Dense{}
	phi.Exp(em)

	f12 := phi.Slice(0, n, n, 2*n)
	f22 := phi.Slice(n, 2*n, n, 2*n)

	qd := &mat.Dense{}
	qd.Mul(f22.T(), f12)

	return matrix.Sym(qd)
}

// symIndex lists the upper triangle entries of an n x n symmetric matrix.
func symIndex(n int) [][2]int {
	idx := make([][2]int, 0, n*(n+1)/2)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			idx = append(idx, [2]int{i, j})
		}
	}

	return idx
}
