package sim

import (
	"math/cmplx"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// unitCircleTol is how far inside the unit circle an eigenvalue must be to count as stable.
const unitCircleTol = 1e-9

// Ctrb returns the controllability matrix [B A*B A^2*B ... A^(n-1)*B].
// The pair (A, B) is controllable if it has full row rank.
func Ctrb(A, B mat.Matrix) *mat.Dense {
	nx, _ := A.Dims()
	_, nu := B.Dims()

	out := mat.NewDense(nx, nx*nu, nil)
	block := mat.DenseCopyOf(B)
	for i := 0; i < nx; i++ {
		out.Slice(0, nx, i*nu, (i+1)*nu).(*mat.Dense).Copy(block)
		next := &mat.Dense{}
		next.Mul(A, block)
		block = next
	}

	return out
}

// Obsv returns the observability matrix [C; C*A; C*A^2; ... C*A^(n-1)].
// The pair (A, C) is observable if it has full column rank.
func Obsv(A, C mat.Matrix) *mat.Dense {
	o := Ctrb(A.T(), C.T())
	return mat.DenseCopyOf(o.T())
}

// CtrbRank returns rank of the controllability matrix of (A, B).
func CtrbRank(A, B mat.Matrix) (int, error) {
	return matrix.Rank(Ctrb(A, B))
}

// Stabilizable returns true if all uncontrollable modes of the discrete-time
// pair (A, B) lie strictly inside the unit circle.
//
// The state space is split into controllable and uncontrollable subspaces using
// the left singular vectors of the controllability matrix. The pair is
// stabilizable if the system matrix restricted to the uncontrollable subspace is stable.
func Stabilizable(A, B mat.Matrix) (bool, error) {
	nx, _ := A.Dims()
	co := Ctrb(A, B)

	rank, err := matrix.Rank(co)
	if err != nil {
		return false, err
	}
	if rank == nx {
		return true, nil
	}

	var svd mat.SVD
	if ok := svd.Factorize(co, mat.SVDFull); !ok {
		return false, errors.Wrap(control.ErrSynthesis, "SVD factorization failed")
	}
	U := &mat.Dense{}
	svd.UTo(U)

	// A in the controllable/uncontrollable basis: U' * A * U
	ua := &mat.Dense{}
	ua.Mul(U.T(), A)
	at := &mat.Dense{}
	at.Mul(ua, U)

	auc := at.Slice(rank, nx, rank, nx)
	vals, err := matrix.Eigenvalues(auc)
	if err != nil {
		return false, err
	}

	for _, v := range vals {
		if cmplx.Abs(v) >= 1-unitCircleTol {
			return false, nil
		}
	}

	return true, nil
}

// Detectable returns true if all unobservable modes of the discrete-time
// pair (A, C) lie strictly inside the unit circle.
func Detectable(A, C mat.Matrix) (bool, error) {
	return Stabilizable(A.T(), C.T())
}

// SchurStable returns true if all eigenvalues of discrete-time system matrix A
// lie strictly inside the unit circle.
func SchurStable(A mat.Matrix) (bool, error) {
	rho, err := matrix.SpectralRadius(A)
	if err != nil {
		return false, err
	}
	return rho < 1-unitCircleTol, nil
}
