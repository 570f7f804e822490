package harness

import (
	"bytes"
	"math"
	"os"
	"testing"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/motor"
	"github.com/milosgajdos/go-control/noise"
	"github.com/milosgajdos/go-control/plant"
	"github.com/milosgajdos/go-control/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

var (
	base *synth.Base
	aug  *synth.Augmented
	goal *mat.VecDense

	// testDt is a variable so step indices truncate at runtime like the harness does
	testDt = plant.DefaultDt
)

func setup() {
	p := plant.Params{
		Name:               "Arm",
		Motor:              motor.Motor{Name: "scenario", Resistance: 0.1, Kt: 0.02, Kv: 7, FreeSpeed: 500},
		G:                  0.2917,
		J:                  0.01,
		QPos:               0.1,
		QVel:               5.5,
		KalmanQPos:         0.12,
		KalmanQVel:         2.0,
		KalmanQVoltage:     4.0,
		KalmanRPosition:    0.05,
		Dt:                 plant.DefaultDt,
		VoltageLimit:       plant.DefaultVoltageLimit,
		EnableVoltageError: true,
		QPosFF:             plant.DefaultQPosFF,
		QVelFF:             plant.DefaultQVelFF,
	}

	d, err := plant.Angular(p)
	if err != nil {
		panic(err)
	}

	base, err = synth.Synthesize(d)
	if err != nil {
		panic(err)
	}

	aug, err = synth.Augment(base)
	if err != nil {
		panic(err)
	}

	goal = mat.NewVecDense(2, []float64{1.0, 0.0})
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func maxAbsDiff(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}
	return d
}

func TestPlotStep(t *testing.T) {
	assert := assert.New(t)

	tr, err := PlotStep(base, aug, goal, Options{})
	require.NoError(t, err)

	n := tr.Len()
	assert.Equal(int(presetDuration/testDt), n)
	for _, s := range [][]float64{tr.X, tr.V, tr.XHat, tr.VHat, tr.XGoal, tr.VGoal, tr.U, tr.VoltageOffset,
		tr.MotorCurrent, tr.BatteryCurrent, tr.Acceleration} {
		assert.Len(s, n)
	}

	assert.InDelta(1.0, tr.X[n-1], 1e-3)
	assert.InDelta(0.0, tr.V[n-1], 1e-2)
	assert.InDelta(0.0, tr.EstimateError.AtVec(0), 1e-3)

	// a 1 rad step saturates the input
	assert.Greater(tr.Saturated, 0)
	for _, u := range tr.U {
		assert.LessOrEqual(math.Abs(u), 12.0)
	}
}

func TestPlotKick(t *testing.T) {
	assert := assert.New(t)

	tr, err := PlotKick(base, aug, goal, Options{})
	require.NoError(t, err)

	n := tr.Len()
	// the observer learns the disturbance and the controller cancels it
	assert.InDelta(KickVoltage, tr.VoltageOffset[n-1], 0.25)
	assert.InDelta(1.0, tr.X[n-1], 0.02)
	assert.InDelta(-KickVoltage, tr.U[n-1], 0.25)

	// no disturbance before the kick
	assert.InDelta(0.0, tr.VoltageOffset[int(presetKickTime/testDt)-1], 0.05)
}

func TestPlotMotion(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zap.DebugLevel)
	tr, err := PlotMotion(base, aug, goal, Options{Logger: zap.New(core)})
	require.NoError(t, err)
	assert.Equal(1, logs.FilterMessage("simulation finished").Len())

	n := tr.Len()
	assert.InDelta(1.0, tr.XGoal[n-1], 1e-6)
	assert.InDelta(1.0, tr.X[n-1], 1e-3)

	// the profile keeps the goal within its limits
	for i := range tr.VGoal {
		assert.LessOrEqual(math.Abs(tr.VGoal[i]), DefaultMaxVelocity+1e-6)
	}
	// and the plant follows it closely
	assert.Less(maxAbsDiff(tr.X, tr.XGoal), 0.05)
}

func TestAntiWindup(t *testing.T) {
	assert := assert.New(t)

	// the profile asks for far more acceleration than the motor can deliver
	tr, err := Run(base, aug, aug, Options{
		Goal:            goal,
		Duration:        2.0,
		UseProfile:      true,
		MaxVelocity:     20,
		MaxAcceleration: 5000,
	})
	require.NoError(t, err)

	assert.Greater(tr.Saturated, 0)
	// the goal is pulled back onto what the plant can follow
	assert.Less(maxAbsDiff(tr.X, tr.XGoal), 0.1)

	n := tr.Len()
	assert.InDelta(1.0, tr.X[n-1], 1e-2)
	assert.InDelta(0.0, tr.GoalError.AtVec(0), 1e-3)
}

func TestRunNoise(t *testing.T) {
	assert := assert.New(t)

	wn, err := noise.NewGaussianWithSeed([]float64{0}, matrix.DiagSym(0.001*0.001), 7)
	require.NoError(t, err)

	tr, err := PlotMotion(base, aug, goal, Options{Noise: wn})
	require.NoError(t, err)

	n := tr.Len()
	assert.InDelta(1.0, tr.X[n-1], 0.01)
}

func TestRunInvalid(t *testing.T) {
	assert := assert.New(t)

	// controller and observer disagree on the state dimension
	_, err := Run(base, aug, base, Options{Goal: goal})
	assert.ErrorIs(err, control.ErrInterface)

	_, err = Run(base, aug, aug, Options{})
	assert.ErrorIs(err, control.ErrInterface)

	_, err = Run(base, aug, aug, Options{Goal: mat.NewVecDense(4, nil)})
	assert.ErrorIs(err, control.ErrInterface)

	wn, err := noise.NewGaussian([]float64{0, 0}, matrix.DiagSym(1, 1))
	require.NoError(t, err)
	_, err = Run(base, aug, aug, Options{Goal: goal, Noise: wn})
	assert.ErrorIs(err, control.ErrInterface)
}

func TestWritePNG(t *testing.T) {
	assert := assert.New(t)

	tr, err := PlotStep(base, aug, goal, Options{})
	require.NoError(t, err)

	plots, err := Plots("Arm", tr)
	assert.NoError(err)
	assert.Len(plots, 4)

	var buf bytes.Buffer
	assert.NoError(WritePNG(&buf, "Arm", tr))
	assert.Equal([]byte("\x89PNG"), buf.Bytes()[:4])

	_, err = Plots("empty", &Trace{})
	assert.ErrorIs(err, control.ErrInterface)
}

func TestKickTime(t *testing.T) {
	assert := assert.New(t)

	// a kick from the start is learned by the observer while the plant settles
	tr, err := Run(base, aug, aug, Options{Goal: goal, Duration: 2.0, KickMagnitude: KickVoltage})
	require.NoError(t, err)
	n := tr.Len()
	assert.Greater(tr.VoltageOffset[int(0.5/testDt)], 1.0)
	assert.InDelta(KickVoltage, tr.VoltageOffset[n-1], 0.25)
	assert.InDelta(1.0, tr.X[n-1], 0.02)

	// a negative kick time never kicks
	tr, err = Run(base, aug, aug, Options{Goal: goal, Duration: 2.0, KickTime: -1, KickMagnitude: KickVoltage})
	require.NoError(t, err)
	n = tr.Len()
	assert.InDelta(0.0, tr.VoltageOffset[n-1], 0.05)
	assert.InDelta(0.0, tr.U[n-1], 0.05)
}

func TestPlotSpinup(t *testing.T) {
	assert := assert.New(t)

	d, err := plant.Flywheel(plant.FlywheelParams{
		Name:         "Flywheel",
		Motor:        motor.Falcon(),
		G:            60.0 / 48.0,
		J:            0.0035,
		QPos:         0.01,
		QVel:         10.0,
		QVoltage:     4.0,
		RPos:         0.01,
		Pole:         0.95,
		Dt:           plant.DefaultDt,
		VoltageLimit: plant.DefaultVoltageLimit,
		QVelFF:       plant.DefaultQVelFFFlywheel,
	})
	require.NoError(t, err)

	fb, err := synth.Synthesize(d)
	require.NoError(t, err)
	fa, err := synth.Augment(fb)
	require.NoError(t, err)

	w := 500.0
	tr, err := PlotSpinup(fb, fa, mat.NewVecDense(2, []float64{5, w}), Options{})
	require.NoError(t, err)

	n := tr.Len()
	// up to speed before the kick
	assert.InEpsilon(w, tr.V[int(presetKickTime/testDt)-1], 0.02)
	// the kick is rejected
	assert.InEpsilon(w, tr.V[n-1], 0.02)
	assert.InDelta(KickVoltage, tr.VoltageOffset[n-1], 0.5)
	assert.InEpsilon(w, tr.VHat[n-1], 0.02)
	for _, g := range tr.VGoal {
		assert.Equal(w, g)
	}

	_, err = PlotSpinup(fb, fa, mat.NewVecDense(1, []float64{w}), Options{})
	assert.ErrorIs(err, control.ErrInterface)
}
