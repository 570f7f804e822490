package main

import (
	"fmt"
	"os"

	"github.com/guptarohit/asciigraph"
	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/codegen"
	"github.com/milosgajdos/go-control/config"
	"github.com/milosgajdos/go-control/harness"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/noise"
	"github.com/milosgajdos/go-control/synth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const (
	scenarioStep   = "step"
	scenarioKick   = "kick"
	scenarioMotion = "motion"
	scenarioSpinup = "spinup"
)

var scenarios = []string{scenarioStep, scenarioKick, scenarioMotion, scenarioSpinup}

// loops returns the plant and the voltage error augmented loop of the first target system
// and the goal state the scenario drives the plant to.
// Drivetrains are simulated with the voltage error augmented position loop: the plant
// has no gyro or accelerometer output the KF observer could be corrected with.
func loops(c *config.Config, l *zap.Logger) (plant, loop control.Loop, goal mat.Vector, err error) {
	opts := []codegen.Option{codegen.WithLogger(l)}
	g := *c.Plot.Goal

	switch c.Kind {
	case config.KindDrivetrain:
		p, err := c.DrivetrainParams()
		if err != nil {
			return nil, nil, nil, err
		}
		ws, err := codegen.Drivetrain(p, c.Namespaces, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		b, ok := ws[0].Loops[0].(*synth.Base)
		if !ok {
			return nil, nil, nil, errors.Wrapf(control.ErrInterface, "unexpected drivetrain loop %T", ws[0].Loops[0])
		}
		a, err := synth.Augment(b, synth.WithLogger(l))
		if err != nil {
			return nil, nil, nil, err
		}
		return b, a, mat.NewVecDense(4, []float64{g, 0, g, 0}), nil
	case config.KindFlywheel:
		fp, err := c.FlywheelParams()
		if err != nil {
			return nil, nil, nil, err
		}
		base, augm, err := codegen.Flywheel(fp[:1], c.Namespaces, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		return base.Loops[0], augm.Loops[0], mat.NewVecDense(2, []float64{0, g}), nil
	}

	params, err := c.Params()
	if err != nil {
		return nil, nil, nil, err
	}
	base, augm, err := codegen.SingleAxis(params[:1], codegen.Kind(c.Kind), c.Namespaces, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	return base.Loops[0], augm.Loops[0], mat.NewVecDense(2, []float64{g, 0}), nil
}

func (a *app) plot(cmd *cobra.Command, c *config.Config) error {
	plant, loop, goal, err := loops(c, a.logger)
	if err != nil {
		return err
	}

	o := harness.Options{
		Duration:        *c.Plot.Duration,
		KickMagnitude:   *c.Plot.Kick,
		MaxVelocity:     *c.Plot.MaxVelocity,
		MaxAcceleration: *c.Plot.MaxAcceleration,
		Logger:          a.logger,
	}

	if c.Plot.Noise > 0 {
		_, _, ny := plant.SystemDims()
		variance := make([]float64, ny)
		for i := range variance {
			variance[i] = c.Plot.Noise * c.Plot.Noise
		}
		wn, err := noise.NewGaussianWithSeed(make([]float64, ny), matrix.DiagSym(variance...), c.Plot.Seed)
		if err != nil {
			return err
		}
		o.Noise = wn
	}

	flywheel := c.Kind == config.KindFlywheel

	var tr *harness.Trace
	switch a.scenario {
	case scenarioStep:
		tr, err = harness.PlotStep(plant, loop, goal, o)
	case scenarioKick:
		tr, err = harness.PlotKick(plant, loop, goal, o)
	case scenarioMotion:
		if c.Kind == config.KindDrivetrain || flywheel {
			return errors.Wrapf(control.ErrInterface, "motion scenario is not supported for %s targets", c.Kind)
		}
		tr, err = harness.PlotMotion(plant, loop, goal, o)
	case scenarioSpinup:
		if !flywheel {
			return errors.Wrapf(control.ErrInterface, "spinup scenario is only supported for %s targets", config.KindFlywheel)
		}
		tr, err = harness.PlotSpinup(plant, loop, goal, o)
	default:
		return errors.Wrapf(control.ErrInterface, "unknown scenario %q, expected one of %v", a.scenario, scenarios)
	}
	if err != nil {
		return err
	}

	a.logger.Info("simulated",
		zap.String("loop", loop.Name()),
		zap.String("scenario", a.scenario),
		zap.Int("saturated", tr.Saturated),
		zap.Float64s("estimate_error", tr.EstimateError.RawVector().Data),
	)

	title := fmt.Sprintf("%s %s", loop.Name(), a.scenario)

	if a.ascii {
		printASCII(cmd, title, tr)
	}

	if a.plotFile != "" {
		if err := savePNG(a.plotFile, title, tr); err != nil {
			return err
		}
		a.logger.Info("wrote", zap.String("file", a.plotFile))
	}

	return nil
}

func savePNG(path, title string, tr *harness.Trace) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(control.ErrIO, "create %s: %v", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(control.ErrIO, "close %s: %v", path, cerr)
		}
	}()

	if err := harness.WritePNG(f, title, tr); err != nil {
		return errors.Wrapf(control.ErrIO, "render %s: %v", path, err)
	}

	return nil
}

func printASCII(cmd *cobra.Command, title string, tr *harness.Trace) {
	w := cmd.OutOrStdout()

	for _, s := range []struct {
		caption string
		data    []float64
	}{
		{"position", tr.X},
		{"goal position", tr.XGoal},
		{"velocity", tr.V},
		{"voltage", tr.U},
		{"voltage offset", tr.VoltageOffset},
	} {
		graph := asciigraph.Plot(s.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(title+": "+s.caption),
		)
		fmt.Fprintln(w, graph)
		fmt.Fprintln(w)
	}
}
