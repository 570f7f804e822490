package sim

import (
	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// rk4Steps is the number of Runge-Kutta sub-steps Propagate takes per call.
const rk4Steps = 20

// Continuous is a basic model of a linear, continuous-time, dynamical system
type Continuous struct {
	System
}

// NewContinuous creates a linear continuous-time model based on the control theory equations.
//
//	dx/dt = A*x + B*u
//	y = C*x + D*u
func NewContinuous(A, B, C, D *mat.Dense) (*Continuous, error) {
	sys := newSystem(A, B, C, D)
	if err := sys.validate(); err != nil {
		return nil, err
	}
	return &Continuous{System: sys}, nil
}

// ToDiscrete creates a discrete-time model from a continuous time model
// using dt as the sampling time. Output matrices are copied unchanged.
//
// The input is assumed to be held constant between samples (zero-order hold).
func (ct *Continuous) ToDiscrete(dt float64) (*Discrete, error) {
	A, B, err := C2D(ct.A, ct.B, dt)
	if err != nil {
		return nil, err
	}

	sys := newSystem(A, B, ct.C, ct.D)
	return &Discrete{System: sys, Dt: dt}, nil
}

// C2D converts continuous-time pair (A, B) to discrete time with sampling time dt.
//
// It computes the matrix exponential of the augmented block matrix:
//
//	exp([A B; 0 0] * dt) = [Ad Bd; 0 I]
//
// It returns error wrapping control.ErrConfig if dt is not positive.
func C2D(A, B mat.Matrix, dt float64) (Ad, Bd *mat.Dense, err error) {
	if !(dt > 0) {
		return nil, nil, errors.Wrapf(control.ErrConfig, "invalid sample interval: %v", dt)
	}

	nx, _ := A.Dims()
	_, nu := B.Dims()

	em := matrix.Block(A, B, nil, mat.NewDense(nu, nu, nil))
	em.Scale(dt, em)

	ms := &mat.Dense{}
	ms.Exp(em)

	Ad = mat.DenseCopyOf(ms.Slice(0, nx, 0, nx))
	Bd = mat.DenseCopyOf(ms.Slice(0, nx, nx, nx+nu))

	if !matrix.IsFinite(Ad) || !matrix.IsFinite(Bd) {
		return nil, nil, errors.Wrap(control.ErrSynthesis, "discretization produced non-finite matrices")
	}

	return Ad, Bd, nil
}

// Derivative returns dx/dt = A*x + B*u.
func (ct *Continuous) Derivative(x, u mat.Vector) *mat.VecDense {
	dx := &mat.VecDense{}
	dx.MulVec(ct.A, x)
	if u != nil && ct.B != nil {
		bu := &mat.VecDense{}
		bu.MulVec(ct.B, u)
		dx.AddVec(dx, bu)
	}
	return dx
}

// Propagate returns the internal state x of a linear, continuous-time system
// after dt seconds given an input vector u held constant over the interval.
// wd is a process disturbance added to the state derivative.
// The solution is integrated with a fixed step 4th order Runge-Kutta method.
// It returns error wrapping control.ErrInterface if x or u have invalid length.
func (ct *Continuous) Propagate(x, u, wd mat.Vector, dt float64) (mat.Vector, error) {
	if err := ct.checkVecs(x, u); err != nil {
		return nil, err
	}

	nx, _, _ := ct.SystemDims()

	f := func(s mat.Vector) *mat.VecDense {
		dx := ct.Derivative(s, u)
		if wd != nil && wd.Len() == nx {
			dx.AddVec(dx, wd)
		}
		return dx
	}

	h := dt / rk4Steps
	out := mat.VecDenseCopyOf(x)
	tmp := mat.NewVecDense(nx, nil)
	for i := 0; i < rk4Steps; i++ {
		k1 := f(out)
		tmp.AddScaledVec(out, h/2, k1)
		k2 := f(tmp)
		tmp.AddScaledVec(out, h/2, k2)
		k3 := f(tmp)
		tmp.AddScaledVec(out, h, k3)
		k4 := f(tmp)

		out.AddScaledVec(out, h/6, k1)
		out.AddScaledVec(out, h/3, k2)
		out.AddScaledVec(out, h/3, k3)
		out.AddScaledVec(out, h/6, k4)
	}

	return out, nil
}
