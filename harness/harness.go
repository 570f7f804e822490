// Package harness validates synthesized loops by simulating them in closed loop
// against a plant integrated in continuous time.
package harness

import (
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/kalman/kf"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/motor"
	"github.com/milosgajdos/go-control/profile"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultDuration is the default simulated time in seconds
	DefaultDuration = 1.0
	// DefaultMaxVelocity is the default profile velocity limit
	DefaultMaxVelocity = 10.0
	// DefaultMaxAcceleration is the default profile acceleration limit
	DefaultMaxAcceleration = 70.0
	// batteryVoltage is the supply voltage used to compute battery current
	batteryVoltage = 12.0
)

// Options configure a simulation run.
type Options struct {
	// Goal is the end goal. Missing trailing states are zero.
	Goal mat.Vector
	// Duration is the simulated time in seconds
	Duration float64
	// UseProfile drives the goal through a trapezoid profile on the first two states
	UseProfile bool
	// KickTime is the time from which KickMagnitude volts are added to every plant input.
	// Zero kicks from the start, a negative time never kicks.
	KickTime float64
	// KickMagnitude is the input disturbance in volts
	KickMagnitude float64
	// MaxVelocity and MaxAcceleration limit the profile
	MaxVelocity, MaxAcceleration float64
	// Noise corrupts the plant measurements; nil means no noise
	Noise control.Noise
	// Logger receives the run summary; nil means no logging
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Duration == 0 {
		o.Duration = DefaultDuration
	}
	if o.MaxVelocity == 0 {
		o.MaxVelocity = DefaultMaxVelocity
	}
	if o.MaxAcceleration == 0 {
		o.MaxAcceleration = DefaultMaxAcceleration
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return o
}

// Trace records a simulation run sample by sample.
type Trace struct {
	// T is the sample time
	T []float64
	// X and V are the true plant position and velocity
	X, V []float64
	// XHat and VHat are the estimated position and velocity
	XHat, VHat []float64
	// XGoal and VGoal are the goal position and velocity
	XGoal, VGoal []float64
	// U is the first saturated input
	U []float64
	// VoltageOffset is the estimated voltage error of the first input
	VoltageOffset []float64
	// MotorCurrent and BatteryCurrent are computed for plants exposing their motor
	MotorCurrent, BatteryCurrent []float64
	// Acceleration is the instantaneous plant acceleration
	Acceleration []float64
	// Saturated counts the samples the input was saturated for
	Saturated int
	// GoalError is the end goal minus the final goal state
	GoalError *mat.VecDense
	// EstimateError is the final state estimate minus the end goal
	EstimateError *mat.VecDense
}

// Len returns the number of samples in the trace
func (t *Trace) Len() int {
	return len(t.T)
}

// motorPlant is a plant that exposes the motor driving it.
type motorPlant interface {
	Motor() motor.Motor
	OutputRatio() float64
}

// Run simulates the plant in closed loop with the controller and observer.
// The plant is integrated in continuous time; controller and observer run at the observer sample interval.
//
// Every step the observer is corrected with the previous input and the plant output,
// the profile advances the goal and the input is computed from the feedback and feed-forward
// terms and clipped to the controller input limits. When clipping changes the input the goal
// is propagated with the reduced feed-forward and the profile is moved onto it so the
// goal never runs away from the plant.
//
// It returns error wrapping control.ErrInterface if the loops have incompatible dimensions.
func Run(plant, controller, observer control.Loop, o Options) (*Trace, error) {
	o = o.withDefaults()

	np, nu, ny := plant.SystemDims()
	nc, ncu, _ := controller.SystemDims()
	no, nou, noy := observer.SystemDims()

	if nu != ncu || nu != nou || ny != noy || nc != no || nc < np || np < 2 {
		return nil, errors.Wrapf(control.ErrInterface, "incompatible loop dimensions: plant %d/%d, controller %d/%d, observer %d/%d",
			np, nu, nc, ncu, no, nou)
	}

	if o.Goal == nil || o.Goal.Len() == 0 || o.Goal.Len() > nc {
		return nil, errors.Wrap(control.ErrInterface, "invalid goal")
	}

	if o.Noise != nil && o.Noise.Cov().SymmetricDim() != ny {
		return nil, errors.Wrapf(control.ErrInterface, "invalid measurement noise dimension: %d", o.Noise.Cov().SymmetricDim())
	}

	ct, err := sim.NewContinuous(
		mat.DenseCopyOf(plant.ContinuousStateMatrix()),
		mat.DenseCopyOf(plant.ContinuousCtlMatrix()),
		mat.DenseCopyOf(plant.OutputMatrix()),
		mat.DenseCopyOf(plant.OutputCtlMatrix()),
	)
	if err != nil {
		return nil, errors.Wrapf(control.ErrInterface, "plant: %v", err)
	}

	est, err := kf.New(observer, observer, sim.ZeroInitCond(no), kf.WithPlantStates(np))
	if err != nil {
		return nil, err
	}

	dt := observer.Dt()
	prof, err := profile.New(dt)
	if err != nil {
		return nil, err
	}
	if err := prof.SetMaximumVelocity(o.MaxVelocity); err != nil {
		return nil, err
	}
	if err := prof.SetMaximumAcceleration(o.MaxAcceleration); err != nil {
		return nil, err
	}

	end := mat.NewVecDense(nc, nil)
	for i := 0; i < o.Goal.Len(); i++ {
		end.SetVec(i, o.Goal.AtVec(i))
	}

	x := mat.NewVecDense(np, nil)
	goal := mat.NewVecDense(nc, nil)
	prof.SetGoal(goal.AtVec(0))

	umin, umax := controller.InputLimits()
	uLast := mat.NewVecDense(nu, nil)
	mp, hasMotor := plant.(motorPlant)

	tr := &Trace{}
	iterations := int(o.Duration / dt)
	for i := 0; i < iterations; i++ {
		t := float64(i) * dt

		obs, err := ct.Observe(x, uLast, nil)
		if err != nil {
			return nil, err
		}
		y := mat.VecDenseCopyOf(obs)
		if o.Noise != nil {
			y.AddVec(y, o.Noise.Sample())
		}

		xHat, err := est.Update(uLast, y)
		if err != nil {
			return nil, err
		}

		offset := 0.0
		if d := xHat.Disturbance(); d != nil {
			offset = d.AtVec(0)
		}
		tr.VoltageOffset = append(tr.VoltageOffset, offset)
		xp := xHat.Plant()
		tr.XHat = append(tr.XHat, xp.AtVec(0))
		tr.VHat = append(tr.VHat, xp.AtVec(1))

		// ff = Kff*(r[n+1] - A*r[n]), a constant goal holds r at the end goal
		ref, nextGoal := end, end
		if o.UseProfile {
			next := prof.Update(end.AtVec(0), end.AtVec(1))
			ref = goal
			nextGoal = mat.NewVecDense(nc, nil)
			nextGoal.SetVec(0, next[0])
			nextGoal.SetVec(1, next[1])
		}

		ag := &mat.VecDense{}
		ag.MulVec(observer.StateMatrix(), ref)
		diff := &mat.VecDense{}
		diff.SubVec(nextGoal, ag)
		ff := &mat.VecDense{}
		ff.MulVec(controller.FeedForwardGain(), diff)

		e := &mat.VecDense{}
		e.SubVec(ref, xHat.Val())
		uUncapped := &mat.VecDense{}
		uUncapped.MulVec(controller.Gain(), e)
		uUncapped.AddVec(uUncapped, ff)
		tr.XGoal = append(tr.XGoal, ref.AtVec(0))
		tr.VGoal = append(tr.VGoal, ref.AtVec(1))

		u := mat.VecDenseCopyOf(uUncapped)
		saturated := false
		for j := 0; j < nu; j++ {
			c := math.Max(umin.AtVec(j), math.Min(umax.AtVec(j), u.AtVec(j)))
			if c != u.AtVec(j) {
				saturated = true
			}
			u.SetVec(j, c)
		}
		if saturated {
			tr.Saturated++
		}

		if hasMotor {
			m := mp.Motor()
			current := (u.AtVec(0) - x.AtVec(1)/mp.OutputRatio()/m.Kv) / m.Resistance
			tr.MotorCurrent = append(tr.MotorCurrent, current)
			tr.BatteryCurrent = append(tr.BatteryCurrent, u.AtVec(0)*current/batteryVoltage)
		}

		xDot := ct.Derivative(x, u)
		tr.Acceleration = append(tr.Acceleration, xDot.AtVec(1))
		tr.X = append(tr.X, x.AtVec(0))
		tr.V = append(tr.V, x.AtVec(1))

		uPlant := mat.VecDenseCopyOf(u)
		if o.KickTime >= 0 && t >= o.KickTime {
			for j := 0; j < nu; j++ {
				uPlant.SetVec(j, uPlant.AtVec(j)+o.KickMagnitude)
			}
		}

		xNext, err := ct.Propagate(x, uPlant, nil, dt)
		if err != nil {
			return nil, err
		}
		x.CopyVec(xNext)

		if _, err := est.Predict(u); err != nil {
			return nil, err
		}

		tr.T = append(tr.T, t)
		tr.U = append(tr.U, u.AtVec(0))

		// fold the saturation error into the feed-forward and propagate the goal
		satErr := &mat.VecDense{}
		satErr.SubVec(uUncapped, u)
		ff.SubVec(ff, satErr)

		gNext := &mat.VecDense{}
		gNext.MulVec(controller.StateMatrix(), goal)
		bff := &mat.VecDense{}
		bff.MulVec(controller.StateCtlMatrix(), ff)
		gNext.AddVec(gNext, bff)
		goal.CopyVec(gNext)

		if saturated {
			prof.MoveCurrentState(goal.AtVec(0), goal.AtVec(1))
		}

		uLast.CopyVec(u)
	}

	tr.GoalError = &mat.VecDense{}
	tr.GoalError.SubVec(end, goal)
	tr.EstimateError = &mat.VecDense{}
	tr.EstimateError.SubVec(est.State(), end)

	if !matrix.IsFinite(tr.EstimateError) {
		return nil, errors.Wrap(control.ErrSynthesis, "simulation diverged")
	}

	o.Logger.Debug("simulation finished",
		zap.String("plant", plant.Name()),
		zap.Int("samples", tr.Len()),
		zap.Int("saturated", tr.Saturated),
		zap.Float64s("goal_error", tr.GoalError.RawVector().Data),
		zap.Float64s("estimate_error", tr.EstimateError.RawVector().Data),
	)

	return tr, nil
}
