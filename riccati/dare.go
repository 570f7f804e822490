// Package riccati solves discrete-time algebraic Riccati equations.
package riccati

import (
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// maxIter bounds the number of doubling steps.
	// The iteration converges quadratically so this is never reached for well posed problems.
	maxIter = 100
	// tol is the relative convergence tolerance
	tol = 1e-11
)

// Solve returns the stabilizing solution X of the discrete-time algebraic Riccati equation
//
//	X = A'*X*A - A'*X*B*inv(R + B'*X*B)*B'*X*A + Q
//
// It uses the structure-preserving doubling algorithm:
//
//	W[k]   = I + G[k]*H[k]
//	A[k+1] = A[k]*inv(W[k])*A[k]
//	G[k+1] = G[k] + A[k]*inv(W[k])*G[k]*A[k]'
//	H[k+1] = H[k] + A[k]'*H[k]*inv(W[k])*A[k]
//
// with A[0] = A, G[0] = B*inv(R)*B' and H[0] = Q. H[k] converges to X.
//
// The caller is responsible for checking (A, B) is stabilizable and (A, Q) is detectable.
// It returns error wrapping control.ErrSynthesis if the iteration does not converge
// or produces a non-finite solution.
func Solve(A, B mat.Matrix, Q, R mat.Symmetric) (*mat.SymDense, error) {
	nx, nc := A.Dims()
	if nx != nc {
		return nil, errors.Wrapf(control.ErrSynthesis, "invalid state matrix dimensions: [%d x %d]", nx, nc)
	}

	br, nu := B.Dims()
	if br != nx {
		return nil, errors.Wrapf(control.ErrSynthesis, "invalid input matrix dimensions: [%d x %d]", br, nu)
	}

	if Q.SymmetricDim() != nx {
		return nil, errors.Wrapf(control.ErrSynthesis, "invalid state cost dimension: %d", Q.SymmetricDim())
	}

	if R.SymmetricDim() != nu {
		return nil, errors.Wrapf(control.ErrSynthesis, "invalid input cost dimension: %d", R.SymmetricDim())
	}

	rInv := &mat.Dense{}
	if err := rInv.Inverse(R); err != nil {
		return nil, errors.Wrapf(control.ErrSynthesis, "input cost is not invertible: %v", err)
	}

	// B*inv(R)*B'
	bri := &mat.Dense{}
	bri.Mul(B, rInv)
	g := &mat.Dense{}
	g.Mul(bri, B.T())

	a := mat.DenseCopyOf(A)
	h := mat.DenseCopyOf(Q)
	eye := matrix.Identity(nx)

	for i := 0; i < maxIter; i++ {
		w := &mat.Dense{}
		w.Mul(g, h)
		w.Add(eye, w)

		var lu mat.LU
		lu.Factorize(w)
		if lu.Det() == 0 {
			return nil, errors.Wrap(control.ErrSynthesis, "riccati iteration became singular")
		}

		// inv(W)*A and inv(W)*G
		wa := &mat.Dense{}
		if err := lu.SolveTo(wa, false, a); err != nil {
			return nil, errors.Wrapf(control.ErrSynthesis, "riccati iteration failed: %v", err)
		}
		wg := &mat.Dense{}
		if err := lu.SolveTo(wg, false, g); err != nil {
			return nil, errors.Wrapf(control.ErrSynthesis, "riccati iteration failed: %v", err)
		}

		ah := &mat.Dense{}
		ah.Mul(a.T(), h)
		hNext := &mat.Dense{}
		hNext.Mul(ah, wa)
		hNext.Add(h, hNext)

		awg := &mat.Dense{}
		awg.Mul(a, wg)
		gNext := &mat.Dense{}
		gNext.Mul(awg, a.T())
		gNext.Add(g, gNext)

		aNext := &mat.Dense{}
		aNext.Mul(a, wa)

		diff := &mat.Dense{}
		diff.Sub(hNext, h)

		a, g, h = aNext, gNext, hNext

		if !matrix.IsFinite(h) {
			return nil, errors.Wrap(control.ErrSynthesis, "riccati iteration diverged")
		}

		if mat.Norm(diff, 2) <= tol*math.Max(1, mat.Norm(h, 2)) {
			return matrix.Sym(h), nil
		}
	}

	return nil, errors.Wrapf(control.ErrSynthesis, "riccati iteration did not converge in %d steps", maxIter)
}

// Residual returns the Frobenius norm of the residual of the Riccati equation for X.
// It is zero for an exact solution.
func Residual(A, B mat.Matrix, Q, R mat.Symmetric, X mat.Symmetric) float64 {
	ax := &mat.Dense{}
	ax.Mul(A.T(), X)

	// A'XA
	axa := &mat.Dense{}
	axa.Mul(ax, A)

	// A'XB
	axb := &mat.Dense{}
	axb.Mul(ax, B)

	// R + B'XB
	bx := &mat.Dense{}
	bx.Mul(B.T(), X)
	s := &mat.Dense{}
	s.Mul(bx, B)
	s.Add(R, s)

	sInvBxa := &mat.Dense{}
	if err := sInvBxa.Solve(s, axb.T()); err != nil {
		return math.Inf(1)
	}

	corr := &mat.Dense{}
	corr.Mul(axb, sInvBxa)

	res := &mat.Dense{}
	res.Sub(axa, corr)
	res.Add(res, Q)
	res.Sub(res, X)

	return mat.Norm(res, 2)
}
