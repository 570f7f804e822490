package lqr

import (
	"math"
	"math/cmplx"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// conjTol is the largest imaginary part tolerated in the characteristic polynomial coefficients
const conjTol = 1e-9

// Place returns the feedback gain K which moves the eigenvalues of A - B*K to poles.
// Complex poles must come in conjugate pairs.
//
// K is computed with Ackermann's formula which only handles systems with a single input:
//
//	K = [0 ... 0 1] * inv(Ctrb(A, B)) * p(A)
//
// where p is the characteristic polynomial with roots poles.
//
// It returns error wrapping control.ErrConfig if B has more than one column, the number
// of poles does not match the number of states or the poles are not closed under conjugation,
// and control.ErrSynthesis if (A, B) is not controllable.
func Place(A, B mat.Matrix, poles []complex128) (*mat.Dense, error) {
	nx, _ := A.Dims()
	br, nu := B.Dims()
	if nu != 1 || br != nx {
		return nil, errors.Wrapf(control.ErrConfig, "pole placement needs a single input, got %d x %d input matrix", br, nu)
	}

	if len(poles) != nx {
		return nil, errors.Wrapf(control.ErrConfig, "need %d poles, got %d", nx, len(poles))
	}

	coeffs, err := charPoly(poles)
	if err != nil {
		return nil, err
	}

	// p(A) = A^n + c[n-1]*A^(n-1) + ... + c[0]*I by Horner's rule
	pa := matrix.Identity(nx)
	for i := nx - 1; i >= 0; i-- {
		next := &mat.Dense{}
		next.Mul(pa, A)
		ci := matrix.Identity(nx)
		ci.Scale(coeffs[i], ci)
		next.Add(next, ci)
		pa = next
	}

	ctrb := sim.Ctrb(A, B)

	// solve Ctrb' * z = e_n so K = z' * p(A)
	en := mat.NewVecDense(nx, nil)
	en.SetVec(nx-1, 1)

	z := &mat.VecDense{}
	if err := z.SolveVec(ctrb.T(), en); err != nil {
		return nil, errors.Wrapf(control.ErrSynthesis, "system is not controllable: %v", err)
	}

	k := &mat.Dense{}
	k.Mul(z.T(), pa)

	if !matrix.IsFinite(k) {
		return nil, errors.Wrap(control.ErrSynthesis, "feedback gain is not finite")
	}

	return k, nil
}

// charPoly returns the coefficients c[0..n-1] of the monic polynomial
// z^n + c[n-1]*z^(n-1) + ... + c[0] with roots poles.
func charPoly(poles []complex128) ([]float64, error) {
	// poly[i] is the coefficient of z^i
	poly := []complex128{1}
	for _, p := range poles {
		next := make([]complex128, len(poly)+1)
		for i, c := range poly {
			next[i+1] += c
			next[i] -= c * p
		}
		poly = next
	}

	coeffs := make([]float64, len(poles))
	for i := range coeffs {
		c := poly[i]
		if math.Abs(imag(c)) > conjTol*math.Max(1, cmplx.Abs(c)) {
			return nil, errors.Wrapf(control.ErrConfig, "poles are not closed under conjugation: %v", poles)
		}
		coeffs[i] = real(c)
	}

	return coeffs, nil
}
