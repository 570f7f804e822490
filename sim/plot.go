package sim

import (
	"image/color"
	"io"

	"github.com/milosgajdos/go-control"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Series is a named sequence of samples plotted against time.
type Series struct {
	// Name is the legend label
	Name string
	// Y contains the samples
	Y []float64
}

// NewTimePlot creates new line plot of the supplied series sampled at times t.
// It returns error wrapping control.ErrInterface if the plot fails to be created. This can be due to either of the following conditions:
// * t is empty or no series is given
// * either of the series has a different length than t
// * gonum plot fails to create a line plotter
func NewTimePlot(title, yLabel string, t []float64, series ...Series) (*plot.Plot, error) {
	if len(t) == 0 || len(series) == 0 {
		return nil, errors.Wrap(control.ErrInterface, "invalid data supplied")
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = yLabel

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	for i, s := range series {
		if len(s.Y) != len(t) {
			return nil, errors.Wrapf(control.ErrInterface, "invalid data dimensions for %q: %d != %d", s.Name, len(s.Y), len(t))
		}

		line, err := plotter.NewLine(makePoints(t, s.Y))
		if err != nil {
			return nil, errors.Wrapf(control.ErrInterface, "failed to create line: %v", err)
		}
		line.LineStyle.Color = seriesColor(i)
		line.LineStyle.Width = vg.Points(1)

		p.Add(line)
		p.Legend.Add(s.Name, line)
	}

	p.Add(plotter.NewGrid())

	return p, nil
}

// SavePlots stacks plots vertically into a single PNG image and writes it to w.
// Each plot is rendered width wide and height tall.
// It returns error wrapping control.ErrIO if the image can not be written.
func SavePlots(w io.Writer, width, height vg.Length, plots ...*plot.Plot) error {
	if len(plots) == 0 {
		return errors.Wrap(control.ErrInterface, "no plots to save")
	}

	grid := make([][]*plot.Plot, len(plots))
	for i, p := range plots {
		grid[i] = []*plot.Plot{p}
	}

	img := vgimg.New(width, height*vg.Length(len(plots)))
	dc := draw.New(img)

	tiles := draw.Tiles{Rows: len(plots), Cols: 1}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		grid[i][0].Draw(canvases[i][0])
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return errors.Wrapf(control.ErrIO, "failed to encode plot: %v", err)
	}

	return nil
}

func seriesColor(i int) color.Color {
	return plotutil.Color(i)
}

func makePoints(t, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(t))
	for i := range t {
		pts[i].X = t[i]
		pts[i].Y = y[i]
	}

	return pts
}
