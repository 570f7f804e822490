// Package profile generates bounded acceleration and velocity reference trajectories.
package profile

import (
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
)

// Trapezoid is a trapezoidal motion profile: it accelerates at the maximum acceleration
// until it reaches the maximum velocity, cruises and then decelerates to arrive at the goal.
// The profile state is advanced by a fixed time step on every Update.
type Trapezoid struct {
	dt     float64
	maxAcc float64
	maxVel float64
	// pos and vel are the current profile output
	pos, vel float64
	// phase durations and accelerations of the current plan
	accTime, constTime, decTime float64
	acc, dec                    float64
}

// New creates new trapezoid profile advancing by dt seconds per Update.
// The maximum velocity and acceleration default to 1.
// It returns error wrapping control.ErrConfig if dt is not positive.
func New(dt float64) (*Trapezoid, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, errors.Wrapf(control.ErrConfig, "invalid profile time step: %v", dt)
	}

	return &Trapezoid{
		dt:     dt,
		maxAcc: 1.0,
		maxVel: 1.0,
	}, nil
}

// SetMaximumVelocity sets the cruise velocity.
// It returns error wrapping control.ErrConfig if v is not positive.
func (t *Trapezoid) SetMaximumVelocity(v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return errors.Wrapf(control.ErrConfig, "invalid maximum velocity: %v", v)
	}
	t.maxVel = v

	return nil
}

// SetMaximumAcceleration sets the acceleration used to speed up and slow down.
// It returns error wrapping control.ErrConfig if a is not positive.
func (t *Trapezoid) SetMaximumAcceleration(a float64) error {
	if !(a > 0) || math.IsInf(a, 0) {
		return errors.Wrapf(control.ErrConfig, "invalid maximum acceleration: %v", a)
	}
	t.maxAcc = a

	return nil
}

// MoveCurrentState resets the profile output to the given state.
func (t *Trapezoid) MoveCurrentState(pos, vel float64) {
	t.pos = pos
	t.vel = vel
}

// MoveGoal shifts the current profile position by dx.
func (t *Trapezoid) MoveGoal(dx float64) {
	t.pos += dx
}

// SetGoal sets the current profile position to x.
func (t *Trapezoid) SetGoal(x float64) {
	t.pos = x
}

// Position returns the current profile position
func (t *Trapezoid) Position() float64 {
	return t.pos
}

// Velocity returns the current profile velocity
func (t *Trapezoid) Velocity() float64 {
	return t.vel
}

// Update plans a trajectory from the current state to the goal and advances
// the profile by one time step along it. It returns the new [position, velocity].
// Once the plan completes within the step and the goal velocity is zero, the
// output lands on the goal exactly.
func (t *Trapezoid) Update(goalPos, goalVel float64) [2]float64 {
	t.plan(goalPos-t.pos, goalVel)

	left := t.dt
	for _, phase := range []struct {
		acc, time float64
	}{
		{t.acc, t.accTime},
		{0, t.constTime},
		{t.dec, t.decTime},
	} {
		if phase.time > left {
			t.advance(phase.acc, left)
			return [2]float64{t.pos, t.vel}
		}
		t.advance(phase.acc, phase.time)
		left -= phase.time
	}

	t.advance(0, left)
	if left >= 0 && goalVel == 0 {
		t.pos = goalPos
		t.vel = goalVel
	}

	return [2]float64{t.pos, t.vel}
}

func (t *Trapezoid) advance(acc, dt float64) {
	t.pos += t.vel*dt + 0.5*acc*dt*dt
	t.vel += acc * dt
}

// plan computes the phase durations needed to travel distance and arrive at goalVel.
func (t *Trapezoid) plan(distance, goalVel float64) {
	if distance == 0 {
		t.accTime, t.constTime, t.decTime = 0, 0, 0
		t.acc, t.dec = 0, 0
		return
	}

	if distance < 0 {
		// plan the mirrored move
		t.vel = -t.vel
		t.plan(-distance, -goalVel)
		t.vel = -t.vel
		t.acc = -t.acc
		t.dec = -t.dec
		return
	}

	t.constTime = 0
	t.acc = t.maxAcc

	// velocity reached accelerating all the way to the target
	v2 := distance*2*math.Abs(t.acc) + t.vel*t.vel
	maxAccVel := math.Copysign(math.Sqrt(math.Abs(v2)), v2)

	if maxAccVel > goalVel {
		t.dec = -t.maxAcc
	} else {
		t.dec = t.maxAcc
	}

	top2 := (distance + t.vel*t.vel/(2*t.acc) + goalVel*goalVel/(2*t.dec)) /
		(-1/(2*t.dec) + 1/(2*t.acc))
	if math.IsNaN(top2) {
		top2 = 0
	}
	top := math.Sqrt(math.Max(top2, 0))

	if top > t.maxVel {
		t.accTime = (t.maxVel - t.vel) / t.maxAcc
		t.constTime = (distance + (goalVel*goalVel-t.maxVel*t.maxVel)/(2*t.maxAcc)) / t.maxVel
		top = t.maxVel
	} else {
		t.accTime = (top - t.vel) / t.acc
	}

	if t.vel > t.maxVel {
		t.constTime = 0
		t.accTime = 0
	}

	t.decTime = (goalVel - top) / t.dec

	// negative durations mean the phase is skipped
	t.accTime = math.Max(t.accTime, 0)
	t.constTime = math.Max(t.constTime, 0)
	t.decTime = math.Max(t.decTime, 0)
}
