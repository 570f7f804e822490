package codegen

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/plant"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultPlantType is the runtime plant the generated loop is built with
	DefaultPlantType = "StateFeedbackPlant"
	// DefaultObserverType is the runtime observer the generated loop is built with
	DefaultObserverType = "StateFeedbackObserver"
	// DefaultScalarType is the scalar type of the generated matrices
	DefaultScalarType = "double"
	// HybridObserverType is the runtime observer which consumes continuous noise covariances
	HybridObserverType = "HybridKalman"
)

// File is a rendered artifact and the path it is written to.
type File struct {
	Path string
	Data []byte
}

// Writer renders a bundle of loops sharing the same dimensions.
// Each loop gets its own plant, controller and observer coefficient factory and
// the bundle gets a plant, controller, observer and loop factory holding all of them.
type Writer struct {
	// Name is the bundle name
	Name string
	// Namespaces is the C++ namespace path, outermost first
	Namespaces []string
	// Loops are the bundled loops
	Loops []control.Loop
	// Constants are emitted in the header and the JSON sidecar
	Constants []plant.Constant
	// PlantType is the runtime plant type, DefaultPlantType if empty
	PlantType string
	// ObserverType is the runtime observer type, DefaultObserverType if empty
	ObserverType string
	// ScalarType is the matrix scalar type, DefaultScalarType if empty
	ScalarType string
}

type matrixData struct {
	Rows, Cols int
	Values     []float64
}

type loopData struct {
	Name       string
	A, B, C, D matrixData
	UMax, UMin matrixData
	ULimitCoef matrixData
	ULimitCst  matrixData
	WrapPoint  matrixData
	K, Kff     matrixData
	KalmanGain matrixData
	Q, R       matrixData
	DtNs       int64
	DelayedU   int
}

type headerData struct {
	Guard        string
	Include      string
	Name         string
	Namespaces   []string
	Constants    []string
	Loops        []loopData
	Scalar       string
	Dims         string
	PlantType    string
	ObserverType string
}

func newMatrix(m mat.Matrix) matrixData {
	r, c := m.Dims()
	md := matrixData{Rows: r, Cols: c, Values: make([]float64, 0, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			md.Values = append(md.Values, m.At(i, j))
		}
	}

	return md
}

func newVector(v mat.Vector) matrixData {
	return newMatrix(v)
}

func filled(rows, cols int, v float64) matrixData {
	md := matrixData{Rows: rows, Cols: cols, Values: make([]float64, rows*cols)}
	for i := range md.Values {
		md.Values[i] = v
	}

	return md
}

func (w *Writer) scalar() string {
	if w.ScalarType == "" {
		return DefaultScalarType
	}
	return w.ScalarType
}

func (w *Writer) plantType() string {
	if w.PlantType == "" {
		return DefaultPlantType
	}
	return w.PlantType
}

func (w *Writer) observerType() string {
	if w.ObserverType == "" {
		return DefaultObserverType
	}
	return w.ObserverType
}

// validate checks the bundle can be rendered.
func (w *Writer) validate() error {
	if !validName(w.Name) {
		return errors.Wrapf(control.ErrInterface, "invalid bundle name: %q", w.Name)
	}

	if len(w.Loops) == 0 {
		return errors.Wrapf(control.ErrInterface, "bundle %s: no loops", w.Name)
	}

	for _, ns := range w.Namespaces {
		if !validName(ns) {
			return errors.Wrapf(control.ErrInterface, "bundle %s: invalid namespace: %q", w.Name, ns)
		}
	}

	nx, nu, ny := w.Loops[0].SystemDims()
	seen := make(map[string]bool, len(w.Loops))
	for _, l := range w.Loops {
		if !validName(l.Name()) {
			return errors.Wrapf(control.ErrInterface, "bundle %s: invalid loop name: %q", w.Name, l.Name())
		}
		if seen[l.Name()] {
			return errors.Wrapf(control.ErrInterface, "bundle %s: duplicate loop name: %s", w.Name, l.Name())
		}
		seen[l.Name()] = true

		if x, u, y := l.SystemDims(); x != nx || u != nu || y != ny {
			return errors.Wrapf(control.ErrInterface, "bundle %s: loop %s dimensions %dx%dx%d differ from %dx%dx%d",
				w.Name, l.Name(), x, u, y, nx, nu, ny)
		}
	}

	for _, c := range w.Constants {
		if !validName(c.Name) {
			return errors.Wrapf(control.ErrInterface, "bundle %s: invalid constant name: %q", w.Name, c.Name)
		}
	}

	return nil
}

func (w *Writer) loopData(l control.Loop) loopData {
	nx, nu, ny := l.SystemDims()
	umin, umax := l.InputLimits()

	q, r := l.NoiseCov()
	if w.observerType() == HybridObserverType {
		q, r = l.ContinuousNoiseCov()
	}

	return loopData{
		Name:       l.Name(),
		A:          newMatrix(l.StateMatrix()),
		B:          newMatrix(l.StateCtlMatrix()),
		C:          newMatrix(l.OutputMatrix()),
		D:          newMatrix(l.OutputCtlMatrix()),
		UMax:       newVector(umax),
		UMin:       newVector(umin),
		ULimitCoef: filled(nu, nx, 0),
		ULimitCst:  filled(nu, 1, 0),
		WrapPoint:  filled(ny, 1, l.WrapPoint()),
		K:          newMatrix(l.Gain()),
		Kff:        newMatrix(l.FeedForwardGain()),
		KalmanGain: newMatrix(l.KalmanGain()),
		Q:          newMatrix(q),
		R:          newMatrix(r),
		DtNs:       int64(math.Round(l.Dt() * 1e9)),
		DelayedU:   l.DelayedU(),
	}
}

func (w *Writer) data(header string) headerData {
	nx, nu, ny := w.Loops[0].SystemDims()

	include := filepath.ToSlash(header)
	if filepath.IsAbs(header) {
		include = filepath.Base(header)
	}

	d := headerData{
		Guard:        guard(include),
		Include:      include,
		Name:         w.Name,
		Namespaces:   w.Namespaces,
		Scalar:       w.scalar(),
		Dims:         fmt.Sprintf("%d, %d, %d", nx, nu, ny),
		PlantType:    w.plantType(),
		ObserverType: w.observerType(),
	}

	for _, c := range w.Constants {
		format := c.Format
		if format == "" {
			format = "%f"
		}
		d.Constants = append(d.Constants, fmt.Sprintf("static constexpr %s %s = %s;", d.Scalar, c.Name, fmt.Sprintf(format, c.Value)))
	}

	for _, l := range w.Loops {
		d.Loops = append(d.Loops, w.loopData(l))
	}

	return d
}

// Header renders the C++ header declaring the bundle factories.
func (w *Writer) Header(header string) ([]byte, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	return render(headerTmpl, w.data(header))
}

// Source renders the C++ source defining the bundle factories declared in header.
func (w *Writer) Source(header string) ([]byte, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	return render(sourceTmpl, w.data(header))
}

// Files renders the bundle into the given files: header, source and an optional JSON sidecar.
// It returns error wrapping control.ErrInterface if there are not 2 or 3 files.
func (w *Writer) Files(paths []string) ([]File, error) {
	if len(paths) != 2 && len(paths) != 3 {
		return nil, errors.Wrapf(control.ErrInterface, "bundle %s: expected 2 or 3 files, got %d", w.Name, len(paths))
	}

	h, err := w.Header(paths[0])
	if err != nil {
		return nil, err
	}

	s, err := w.Source(paths[0])
	if err != nil {
		return nil, err
	}

	files := []File{{Path: paths[0], Data: h}, {Path: paths[1], Data: s}}

	if len(paths) == 3 {
		j, err := w.JSON()
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: paths[2], Data: j})
	}

	return files, nil
}

func render(t *template.Template, data headerData) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, errors.Wrapf(control.ErrInterface, "render %s: %v", t.Name(), err)
	}

	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}

	return s
}

// declare renders an Eigen fixed-size matrix declaration initialized with all of its entries.
func declare(scalar, name string, m matrixData) string {
	vals := make([]string, len(m.Values))
	for i, v := range m.Values {
		vals[i] = formatFloat(v)
	}

	return fmt.Sprintf("Eigen::Matrix<%s, %d, %d> %s;\n  %s << %s;", scalar, m.Rows, m.Cols, name, name, strings.Join(vals, ", "))
}

var funcs = template.FuncMap{
	"declare": declare,
	"reverse": func(s []string) []string {
		out := make([]string, len(s))
		for i := range s {
			out[i] = s[len(s)-1-i]
		}
		return out
	},
}

var headerTmpl = template.Must(template.New("header").Funcs(funcs).Parse(`#ifndef {{.Guard}}
#define {{.Guard}}

#include "frc/control_loops/state_feedback_loop.h"

{{range .Namespaces}}namespace {{.}} {
{{end}}
{{range .Constants}}{{.}}
{{end}}
{{- range .Loops}}
StateFeedbackPlantCoefficients<{{$.Dims}}, {{$.Scalar}}>
Make{{.Name}}PlantCoefficients();

StateFeedbackControllerCoefficients<{{$.Dims}}, {{$.Scalar}}>
Make{{.Name}}ControllerCoefficients();

StateFeedbackObserverCoefficients<{{$.Dims}}, {{$.Scalar}}>
Make{{.Name}}ObserverCoefficients();
{{end}}
{{.PlantType}}<{{.Dims}}, {{.Scalar}}> Make{{.Name}}Plant();

StateFeedbackController<{{.Dims}}, {{.Scalar}}> Make{{.Name}}Controller();

{{.ObserverType}}<{{.Dims}}, {{.Scalar}}> Make{{.Name}}Observer();

StateFeedbackLoop<{{.Dims}}, {{.Scalar}}, {{.PlantType}}<{{.Dims}}, {{.Scalar}}>,
                  {{.ObserverType}}<{{.Dims}}, {{.Scalar}}>>
Make{{.Name}}Loop();

{{range reverse .Namespaces}}}  // namespace {{.}}
{{end}}
#endif  // {{.Guard}}
`))

var sourceTmpl = template.Must(template.New("source").Funcs(funcs).Parse(`#include "{{.Include}}"

#include <chrono>

#include "Eigen/Dense"

#include "frc/control_loops/state_feedback_loop.h"

{{range .Namespaces}}namespace {{.}} {
{{end}}
{{- range .Loops}}
StateFeedbackPlantCoefficients<{{$.Dims}}, {{$.Scalar}}>
Make{{.Name}}PlantCoefficients() {
  {{declare $.Scalar "A" .A}}
  {{declare $.Scalar "B" .B}}
  {{declare $.Scalar "C" .C}}
  {{declare $.Scalar "D" .D}}
  {{declare $.Scalar "U_max" .UMax}}
  {{declare $.Scalar "U_min" .UMin}}
  {{declare $.Scalar "U_limit_coefficient" .ULimitCoef}}
  {{declare $.Scalar "U_limit_constant" .ULimitCst}}
  {{declare $.Scalar "wrap_point" .WrapPoint}}
  const std::chrono::nanoseconds dt({{.DtNs}});
  return StateFeedbackPlantCoefficients<{{$.Dims}}, {{$.Scalar}}>(
      A, B, C, D, U_max, U_min, U_limit_coefficient, U_limit_constant, dt,
      {{.DelayedU}}, wrap_point);
}

StateFeedbackControllerCoefficients<{{$.Dims}}, {{$.Scalar}}>
Make{{.Name}}ControllerCoefficients() {
  {{declare $.Scalar "K" .K}}
  {{declare $.Scalar "Kff" .Kff}}
  return StateFeedbackControllerCoefficients<{{$.Dims}}, {{$.Scalar}}>(K, Kff);
}

StateFeedbackObserverCoefficients<{{$.Dims}}, {{$.Scalar}}>
Make{{.Name}}ObserverCoefficients() {
  {{declare $.Scalar "KalmanGain" .KalmanGain}}
  {{declare $.Scalar "Q" .Q}}
  {{declare $.Scalar "R" .R}}
  return StateFeedbackObserverCoefficients<{{$.Dims}}, {{$.Scalar}}>(
      KalmanGain, Q, R, {{.DelayedU}});
}
{{end}}
{{.PlantType}}<{{.Dims}}, {{.Scalar}}> Make{{.Name}}Plant() {
  ::std::vector<::std::unique_ptr<StateFeedbackPlantCoefficients<{{.Dims}}, {{.Scalar}}>>> plants({{len .Loops}});
{{- range $i, $l := .Loops}}
  plants[{{$i}}] = ::std::unique_ptr<StateFeedbackPlantCoefficients<{{$.Dims}}, {{$.Scalar}}>>(
      new StateFeedbackPlantCoefficients<{{$.Dims}}, {{$.Scalar}}>(Make{{$l.Name}}PlantCoefficients()));
{{- end}}
  return {{.PlantType}}<{{.Dims}}, {{.Scalar}}>(std::move(plants));
}

StateFeedbackController<{{.Dims}}, {{.Scalar}}> Make{{.Name}}Controller() {
  ::std::vector<::std::unique_ptr<StateFeedbackControllerCoefficients<{{.Dims}}, {{.Scalar}}>>> controllers({{len .Loops}});
{{- range $i, $l := .Loops}}
  controllers[{{$i}}] = ::std::unique_ptr<StateFeedbackControllerCoefficients<{{$.Dims}}, {{$.Scalar}}>>(
      new StateFeedbackControllerCoefficients<{{$.Dims}}, {{$.Scalar}}>(Make{{$l.Name}}ControllerCoefficients()));
{{- end}}
  return StateFeedbackController<{{.Dims}}, {{.Scalar}}>(std::move(controllers));
}

{{.ObserverType}}<{{.Dims}}, {{.Scalar}}> Make{{.Name}}Observer() {
  ::std::vector<::std::unique_ptr<StateFeedbackObserverCoefficients<{{.Dims}}, {{.Scalar}}>>> observers({{len .Loops}});
{{- range $i, $l := .Loops}}
  observers[{{$i}}] = ::std::unique_ptr<StateFeedbackObserverCoefficients<{{$.Dims}}, {{$.Scalar}}>>(
      new StateFeedbackObserverCoefficients<{{$.Dims}}, {{$.Scalar}}>(Make{{$l.Name}}ObserverCoefficients()));
{{- end}}
  return {{.ObserverType}}<{{.Dims}}, {{.Scalar}}>(std::move(observers));
}

StateFeedbackLoop<{{.Dims}}, {{.Scalar}}, {{.PlantType}}<{{.Dims}}, {{.Scalar}}>,
                  {{.ObserverType}}<{{.Dims}}, {{.Scalar}}>>
Make{{.Name}}Loop() {
  return StateFeedbackLoop<{{.Dims}}, {{.Scalar}}, {{.PlantType}}<{{.Dims}}, {{.Scalar}}>,
                           {{.ObserverType}}<{{.Dims}}, {{.Scalar}}>>(
      Make{{.Name}}Plant(), Make{{.Name}}Controller(), Make{{.Name}}Observer());
}

{{range reverse .Namespaces}}}  // namespace {{.}}
{{end}}`))
