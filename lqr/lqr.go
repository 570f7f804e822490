// Package lqr synthesizes linear quadratic regulator and feed-forward gains
// for discrete-time linear systems.
package lqr

import (
	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/riccati"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DLQR returns the optimal steady-state feedback gain K for the discrete-time system
//
//	x[n+1] = A*x[n] + B*u[n],  u[n] = -K*x[n]
//
// which minimizes the cost J = sum(x'*Q*x + u'*R*u), together with the cost-to-go matrix P.
// K is computed as inv(R + B'*P*B)*B'*P*A where P solves the discrete algebraic Riccati equation.
//
// It returns error wrapping control.ErrSynthesis if either of the following conditions is met:
//   - (A, B) is not stabilizable
//   - the Riccati equation can not be solved
//   - the resulting closed loop A - B*K is not Schur stable
func DLQR(A, B mat.Matrix, Q, R mat.Symmetric) (*mat.Dense, *mat.SymDense, error) {
	ok, err := sim.Stabilizable(A, B)
	if err != nil {
		return nil, nil, errors.Wrapf(control.ErrSynthesis, "stabilizability check failed: %v", err)
	}
	if !ok {
		return nil, nil, errors.Wrap(control.ErrSynthesis, "system is not stabilizable")
	}

	P, err := riccati.Solve(A, B, Q, R)
	if err != nil {
		return nil, nil, err
	}

	bp := &mat.Dense{}
	bp.Mul(B.T(), P)

	// R + B'*P*B
	s := &mat.Dense{}
	s.Mul(bp, B)
	s.Add(R, s)

	// B'*P*A
	bpa := &mat.Dense{}
	bpa.Mul(bp, A)

	K := &mat.Dense{}
	if err := K.Solve(s, bpa); err != nil {
		return nil, nil, errors.Wrapf(control.ErrSynthesis, "failed to compute feedback gain: %v", err)
	}

	if !matrix.IsFinite(K) {
		return nil, nil, errors.Wrap(control.ErrSynthesis, "feedback gain is not finite")
	}

	stable, err := sim.SchurStable(ClosedLoop(A, B, K))
	if err != nil {
		return nil, nil, errors.Wrapf(control.ErrSynthesis, "closed loop eigenvalues: %v", err)
	}
	if !stable {
		return nil, nil, errors.Wrap(control.ErrSynthesis, "closed loop is not stable")
	}

	return K, P, nil
}

// ClosedLoop returns A - B*K.
func ClosedLoop(A, B, K mat.Matrix) *mat.Dense {
	bk := &mat.Dense{}
	bk.Mul(B, K)

	cl := &mat.Dense{}
	cl.Sub(A, bk)

	return cl
}

// FeedForward computes the feed-forward gain Kff of the discrete-time system with input matrix B.
//
// The feed-forward input takes the form u = Kff*(r[n+1] - A*r[n]) where r is the reference.
// Kff minimizes the tracking cost
//
//	(B*u - (r[n+1] - A*r[n]))' * Qff * (B*u - (r[n+1] - A*r[n]))
//
// which gives Kff = inv(B'*Qff*B)*B'*Qff. Kff depends only on the reference
// and is independent of the feedback cost.
//
// It returns error wrapping control.ErrSynthesis if B'*Qff*B is singular.
func FeedForward(B mat.Matrix, Qff mat.Symmetric) (*mat.Dense, error) {
	nx, _ := B.Dims()
	if Qff.SymmetricDim() != nx {
		return nil, errors.Wrapf(control.ErrSynthesis, "invalid feed-forward cost dimension: %d", Qff.SymmetricDim())
	}

	// B'*Qff
	bq := &mat.Dense{}
	bq.Mul(B.T(), Qff)

	// B'*Qff*B
	bqb := &mat.Dense{}
	bqb.Mul(bq, B)

	kff := &mat.Dense{}
	if err := kff.Solve(bqb, bq); err != nil {
		return nil, errors.Wrapf(control.ErrSynthesis, "failed to compute feed-forward gain: %v", err)
	}

	if !matrix.IsFinite(kff) {
		return nil, errors.Wrap(control.ErrSynthesis, "feed-forward gain is not finite")
	}

	return kff, nil
}
