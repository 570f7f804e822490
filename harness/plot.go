package harness

import (
	"io"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/sim"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

// Plots returns the position, velocity, voltage and current plots of the trace.
// It returns error wrapping control.ErrInterface if the trace is empty.
func Plots(title string, tr *Trace) ([]*plot.Plot, error) {
	if tr == nil || tr.Len() == 0 {
		return nil, errors.Wrap(control.ErrInterface, "empty trace")
	}

	pos, err := sim.NewTimePlot(title, "position", tr.T,
		sim.Series{Name: "x", Y: tr.X},
		sim.Series{Name: "x_hat", Y: tr.XHat},
		sim.Series{Name: "x_goal", Y: tr.XGoal},
	)
	if err != nil {
		return nil, err
	}

	vel, err := sim.NewTimePlot("", "velocity", tr.T,
		sim.Series{Name: "v", Y: tr.V},
		sim.Series{Name: "v_hat", Y: tr.VHat},
		sim.Series{Name: "v_goal", Y: tr.VGoal},
	)
	if err != nil {
		return nil, err
	}

	volts, err := sim.NewTimePlot("", "voltage (V)", tr.T,
		sim.Series{Name: "u", Y: tr.U},
		sim.Series{Name: "voltage_offset", Y: tr.VoltageOffset},
	)
	if err != nil {
		return nil, err
	}

	plots := []*plot.Plot{pos, vel, volts}

	series := []sim.Series{{Name: "acceleration", Y: tr.Acceleration}}
	if len(tr.MotorCurrent) == tr.Len() {
		series = append(series,
			sim.Series{Name: "battery", Y: tr.BatteryCurrent},
			sim.Series{Name: "motor", Y: tr.MotorCurrent},
		)
	}
	accel, err := sim.NewTimePlot("", "acceleration, current (A)", tr.T, series...)
	if err != nil {
		return nil, err
	}

	return append(plots, accel), nil
}

// WritePNG renders the trace plots stacked into a PNG image written to w.
func WritePNG(w io.Writer, title string, tr *Trace) error {
	plots, err := Plots(title, tr)
	if err != nil {
		return err
	}

	return sim.SavePlots(w, 8*vg.Inch, 3*vg.Inch, plots...)
}
