// Package kalman synthesizes steady-state Kalman filter gains for discrete-time linear systems.
package kalman

import (
	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/lqr"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/riccati"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Gain is a steady-state Kalman filter gain
type Gain struct {
	// K is the measurement update gain a.k.a. Kalman gain
	K *mat.Dense
	// L is the predictor observer gain A*K
	L *mat.Dense
	// P is the steady-state a posteriori estimate covariance
	P *mat.SymDense
	// PPrior is the steady-state a priori estimate covariance
	PPrior *mat.SymDense
}

// Steady returns the steady-state Kalman filter gain for the discrete-time system
//
//	x[n+1] = A*x[n] + B*u[n] + w[n],  w ~ N(0, Q)
//	y[n]   = C*x[n] + v[n],           v ~ N(0, R)
//
// The a priori covariance P- solves the Riccati equation of the dual system (A', C').
// The Kalman gain is K = P-*C'*inv(C*P-*C' + R) and the a posteriori covariance is
// P = (I - K*C)*P-.
//
// It returns error wrapping control.ErrSynthesis if either of the following conditions is met:
//   - (A, C) is not detectable
//   - the Riccati equation can not be solved
//   - the observer error dynamics A - L*C are not Schur stable
func Steady(A, C mat.Matrix, Q, R mat.Symmetric) (*Gain, error) {
	ok, err := sim.Detectable(A, C)
	if err != nil {
		return nil, errors.Wrapf(control.ErrSynthesis, "detectability check failed: %v", err)
	}
	if !ok {
		return nil, errors.Wrap(control.ErrSynthesis, "system is not detectable")
	}

	pPrior, err := riccati.Solve(A.T(), C.T(), Q, R)
	if err != nil {
		return nil, err
	}

	// S = C*P-*C' + R
	cp := &mat.Dense{}
	cp.Mul(C, pPrior)
	s := &mat.Dense{}
	s.Mul(cp, C.T())
	s.Add(s, R)

	// K' = inv(S)*C*P- since both S and P- are symmetric
	kt := &mat.Dense{}
	if err := kt.Solve(s, cp); err != nil {
		return nil, errors.Wrapf(control.ErrSynthesis, "failed to compute kalman gain: %v", err)
	}
	k := mat.DenseCopyOf(kt.T())

	if !matrix.IsFinite(k) {
		return nil, errors.Wrap(control.ErrSynthesis, "kalman gain is not finite")
	}

	nx, _ := A.Dims()
	kc := &mat.Dense{}
	kc.Mul(k, C)
	ikc := &mat.Dense{}
	ikc.Sub(matrix.Identity(nx), kc)
	p := &mat.Dense{}
	p.Mul(ikc, pPrior)

	l := &mat.Dense{}
	l.Mul(A, k)

	stable, err := sim.SchurStable(lqr.ClosedLoop(A, l, C))
	if err != nil {
		return nil, errors.Wrapf(control.ErrSynthesis, "observer eigenvalues: %v", err)
	}
	if !stable {
		return nil, errors.Wrap(control.ErrSynthesis, "observer is not stable")
	}

	return &Gain{
		K:      k,
		L:      l,
		P:      matrix.Sym(p),
		PPrior: pPrior,
	}, nil
}
