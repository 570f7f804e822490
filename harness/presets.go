package harness

import (
	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	presetDuration = 2.0
	presetKickTime = 1.0
	// KickVoltage is the disturbance PlotKick applies
	KickVoltage = 2.0
)

func (o Options) withPresetDuration() Options {
	if o.Duration == 0 {
		o.Duration = presetDuration
	}
	return o
}

// PlotStep moves the plant to goal in a single step without a profile.
// The loop is used as both controller and observer.
// Options duration defaults to 2 seconds.
func PlotStep(plant, loop control.Loop, goal mat.Vector, o Options) (*Trace, error) {
	o = o.withPresetDuration()
	o.Goal = goal
	o.UseProfile = false
	o.KickTime = presetKickTime
	o.KickMagnitude = 0

	return Run(plant, loop, loop, o)
}

// PlotKick moves the plant to goal in a single step and kicks it after a second.
// The kick is the options kick magnitude, KickVoltage if unset.
func PlotKick(plant, loop control.Loop, goal mat.Vector, o Options) (*Trace, error) {
	o = o.withPresetDuration()
	o.Goal = goal
	o.UseProfile = false
	o.KickTime = presetKickTime
	if o.KickMagnitude == 0 {
		o.KickMagnitude = KickVoltage
	}

	return Run(plant, loop, loop, o)
}

// PlotMotion moves the plant to goal along a trapezoid profile limited by
// the options maximum velocity and acceleration.
func PlotMotion(plant, loop control.Loop, goal mat.Vector, o Options) (*Trace, error) {
	o = o.withPresetDuration()
	o.Goal = goal
	o.UseProfile = true
	o.KickMagnitude = 0

	return Run(plant, loop, loop, o)
}

// PlotSpinup drives the plant velocity to the second state of goal and kicks it after a second.
// The position is left free and the feed-forward holds the goal velocity.
// The kick is the options kick magnitude, KickVoltage if unset.
func PlotSpinup(plant, loop control.Loop, goal mat.Vector, o Options) (*Trace, error) {
	if goal == nil || goal.Len() < 2 {
		return nil, errors.Wrap(control.ErrInterface, "spinup goal needs a velocity")
	}

	g := mat.VecDenseCopyOf(goal)
	g.SetVec(0, 0)

	return PlotKick(plant, loop, g, o)
}
