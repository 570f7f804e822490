package codegen

import (
	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/plant"
	"github.com/milosgajdos/go-control/synth"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Kind is the kind of single-axis system.
type Kind string

const (
	// Angular is a rotating mechanism, e.g. an arm
	Angular Kind = "angular"
	// Linear is a mechanism moving along a line, e.g. an elevator
	Linear Kind = "linear"
)

// KFPrefix is prepended to the names of voltage error augmented drivetrain loops
const KFPrefix = "KF"

type options struct {
	logger       *zap.Logger
	plantType    string
	observerType string
	scalarType   string
}

// Option configures generation.
type Option func(*options)

// WithLogger sets the logger generation reports its progress to.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPlantType sets the runtime plant type of the generated loops.
func WithPlantType(t string) Option {
	return func(o *options) {
		o.plantType = t
	}
}

// WithObserverType sets the runtime observer type of the generated loops.
func WithObserverType(t string) Option {
	return func(o *options) {
		o.observerType = t
	}
}

// WithScalarType sets the scalar type of the generated matrices.
func WithScalarType(t string) Option {
	return func(o *options) {
		o.scalarType = t
	}
}

func newOptions(opts ...Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, apply := range opts {
		apply(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return o
}

func (o *options) writer(name string, namespaces []string, loops []control.Loop, constants []plant.Constant) *Writer {
	return &Writer{
		Name:         name,
		Namespaces:   namespaces,
		Loops:        loops,
		Constants:    constants,
		PlantType:    o.plantType,
		ObserverType: o.observerType,
		ScalarType:   o.scalarType,
	}
}

// SingleAxis synthesizes one loop per params and returns the plant and the
// voltage error augmented bundle writers. Multiple params produce indexed loops
// which share the name of the first params.
func SingleAxis(params []plant.Params, kind Kind, namespaces []string, opts ...Option) (*Writer, *Writer, error) {
	o := newOptions(opts...)

	if len(params) == 0 {
		return nil, nil, errors.Wrap(control.ErrInterface, "no systems")
	}

	build := plant.Angular
	switch kind {
	case Angular:
	case Linear:
		build = plant.Linear
	default:
		return nil, nil, errors.Wrapf(control.ErrConfig, "unknown system kind: %q", kind)
	}

	name := params[0].Name
	names := Names(name, len(params), "")

	var (
		constants  []plant.Constant
		base, augm []control.Loop
	)

	for i, p := range params {
		p.Name = names[i]

		d, err := build(p, plant.WithLogger(o.logger))
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			constants = d.Constants
		}

		b, err := synth.Synthesize(d, synth.WithLogger(o.logger))
		if err != nil {
			return nil, nil, err
		}

		a, err := synth.Augment(b, synth.WithLogger(o.logger))
		if err != nil {
			return nil, nil, err
		}

		base = append(base, b)
		augm = append(augm, a)
	}

	return o.writer(name, namespaces, base, constants),
		o.writer(synth.IntegralPrefix+name, namespaces, augm, nil),
		nil
}

// WriteSingleAxis writes the plant bundle into the first half of files and the voltage
// error augmented bundle into the second half. Each half is a header, a source and an
// optional JSON sidecar. Nothing is written unless every file is written.
//
// It returns error wrapping control.ErrInterface if files can not be split in two bundles.
func WriteSingleAxis(params []plant.Params, kind Kind, files, namespaces []string, opts ...Option) error {
	split, err := SplitFiles(files, 2)
	if err != nil {
		return err
	}

	base, augm, err := SingleAxis(params, kind, namespaces, opts...)
	if err != nil {
		return err
	}

	return write(newOptions(opts...).logger, []*Writer{base, augm}, split)
}

// Flywheel synthesizes one loop per params and returns the plant and the voltage error
// augmented bundle writers. The augmented bundle carries continuous noise covariances
// for the HybridKalman observer. Multiple params produce indexed loops which share
// the name of the first params.
func Flywheel(params []plant.FlywheelParams, namespaces []string, opts ...Option) (*Writer, *Writer, error) {
	o := newOptions(opts...)

	if len(params) == 0 {
		return nil, nil, errors.Wrap(control.ErrInterface, "no flywheels")
	}

	name := params[0].Name
	names := Names(name, len(params), "")

	var (
		constants  []plant.Constant
		base, augm []control.Loop
	)

	for i, p := range params {
		p.Name = names[i]

		d, err := plant.Flywheel(p, plant.WithLogger(o.logger))
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			constants = d.Constants
		}

		b, err := synth.Synthesize(d, synth.WithLogger(o.logger))
		if err != nil {
			return nil, nil, err
		}

		a, err := synth.Augment(b, synth.WithLogger(o.logger))
		if err != nil {
			return nil, nil, err
		}

		base = append(base, b)
		augm = append(augm, a)
	}

	integral := o.writer(synth.IntegralPrefix+name, namespaces, augm, nil)
	integral.ObserverType = HybridObserverType

	return o.writer(name, namespaces, base, constants), integral, nil
}

// WriteFlywheel writes the plant bundle into the first half of files and the voltage
// error augmented bundle into the second half. Nothing is written unless every file is written.
//
// It returns error wrapping control.ErrInterface if files can not be split in two bundles.
func WriteFlywheel(params []plant.FlywheelParams, files, namespaces []string, opts ...Option) error {
	split, err := SplitFiles(files, 2)
	if err != nil {
		return err
	}

	base, augm, err := Flywheel(params, namespaces, opts...)
	if err != nil {
		return err
	}

	return write(newOptions(opts...).logger, []*Writer{base, augm}, split)
}

// gears lists gear combinations in the order the runtime indexes them.
var gears = []struct{ left, right bool }{
	{true, true},
	{true, false},
	{false, true},
	{false, false},
}

// Drivetrain synthesizes all four gear combinations of the drivetrain and returns the
// position bundle, the voltage error augmented bundle and the velocity bundle writers.
func Drivetrain(p plant.DrivetrainParams, namespaces []string, opts ...Option) ([]*Writer, error) {
	o := newOptions(opts...)

	var (
		constants     []plant.Constant
		dog, kf, poly []control.Loop
	)

	for i, g := range gears {
		d, err := plant.Drivetrain(p, g.left, g.right, plant.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		if i == 0 {
			constants = d.Constants
		}

		b, err := synth.Synthesize(d, synth.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}

		em, err := plant.KFDrivetrain(p, g.left, g.right, plant.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}

		a, err := synth.AugmentModel(b, em, synth.WithLogger(o.logger), synth.WithPrefix(KFPrefix))
		if err != nil {
			return nil, err
		}

		pd, err := plant.PolyDrivetrain(p, g.left, g.right, plant.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}

		pb, err := synth.Synthesize(pd, synth.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}

		dog = append(dog, b)
		kf = append(kf, a)
		poly = append(poly, pb)
	}

	return []*Writer{
		o.writer(p.Name, namespaces, dog, constants),
		o.writer(KFPrefix+p.Name, namespaces, kf, nil),
		o.writer("Poly"+p.Name, namespaces, poly, nil),
	}, nil
}

// WriteDrivetrain writes the position, voltage error augmented and velocity drivetrain
// bundles into three equal slices of files. Nothing is written unless every file is written.
//
// It returns error wrapping control.ErrInterface if files can not be split in three bundles.
func WriteDrivetrain(p plant.DrivetrainParams, files, namespaces []string, opts ...Option) error {
	split, err := SplitFiles(files, 3)
	if err != nil {
		return err
	}

	ws, err := Drivetrain(p, namespaces, opts...)
	if err != nil {
		return err
	}

	return write(newOptions(opts...).logger, ws, split)
}

func write(l *zap.Logger, ws []*Writer, split [][]string) error {
	var files []File
	for i, w := range ws {
		fs, err := w.Files(split[i])
		if err != nil {
			return err
		}
		files = append(files, fs...)
	}

	if err := WriteBundle(files); err != nil {
		return err
	}

	for _, f := range files {
		l.Info("wrote", zap.String("file", f.Path), zap.Int("bytes", len(f.Data)))
	}

	return nil
}
