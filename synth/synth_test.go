package synth

import (
	"os"
	"testing"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/kalman"
	"github.com/milosgajdos/go-control/lqr"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/motor"
	"github.com/milosgajdos/go-control/plant"
	"github.com/milosgajdos/go-control/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

var (
	_ control.Loop = (*Base)(nil)
	_ control.Loop = (*Augmented)(nil)
)

var (
	scenario plant.Params
	dtParams plant.DrivetrainParams
	fwParams plant.FlywheelParams
)

func setup() {
	scenario = plant.Params{
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

	dtParams = plant.DrivetrainParams{
		Name:            "Drivetrain",
		J:               6.0,
		Mass:            58.0,
		RobotRadius:     0.39,
		WheelRadius:     0.0508,
		GLow:            11.0 / 60.0,
		GHigh:           14.0 / 40.0,
		QPosLow:         0.12,
		QPosHigh:        0.14,
		QVelLow:         1.0,
		QVelHigh:        0.95,
		Efficiency:      plant.DefaultEfficiency,
		Motor:           motor.CIM(),
		NumMotors:       plant.DefaultNumMotors,
		Dt:              plant.DefaultDt,
		KalmanQPos:      0.05,
		KalmanQVel:      1.0,
		KalmanQVoltage:  10.0,
		KalmanRPosition: 0.001,
		VoltageLimit:    plant.DefaultVoltageLimit,
		QPosFF:          plant.DefaultQPosFF,
		QVelFF:          plant.DefaultQVelFF,
	}

	fwParams = plant.FlywheelParams{
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
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func synthesize(t *testing.T, p plant.Params) (*Base, *Augmented) {
	d, err := plant.Angular(p)
	require.NoError(t, err)

	b, err := Synthesize(d)
	require.NoError(t, err)

	a, err := Augment(b)
	require.NoError(t, err)

	return b, a
}

func spectralRadius(t *testing.T, m mat.Matrix) float64 {
	rho, err := matrix.SpectralRadius(m)
	require.NoError(t, err)
	return rho
}

func TestSynthesize(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zap.DebugLevel)
	d, err := plant.Angular(scenario)
	require.NoError(t, err)

	b, err := Synthesize(d, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Equal(1, logs.FilterMessage("synthesized").Len())

	assert.Equal("Arm", b.Name())
	assert.Equal(plant.DefaultDt, b.Dt())
	nx, nu, ny := b.SystemDims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)
	assert.Equal(1, ny)

	r, c := b.Gain().Dims()
	assert.Equal(1, r)
	assert.Equal(2, c)
	assert.Greater(b.Gain().At(0, 0), 0.0)
	assert.Greater(b.Gain().At(0, 1), 0.0)

	r, c = b.KalmanGain().Dims()
	assert.Equal(2, r)
	assert.Equal(1, c)

	assert.Less(spectralRadius(t, lqr.ClosedLoop(b.StateMatrix(), b.StateCtlMatrix(), b.Gain())), 1.0)
	assert.Less(spectralRadius(t, lqr.ClosedLoop(b.StateMatrix(), b.PredictorGain(), b.OutputMatrix())), 1.0)

	// Kff*B = I for a single input
	kb := &mat.Dense{}
	kb.Mul(b.FeedForwardGain(), b.StateCtlMatrix())
	assert.InDelta(1.0, kb.At(0, 0), 1e-9)

	// continuous covariances discretize back to the design ones
	q, rr := b.NoiseCov()
	qc, rc := b.ContinuousNoiseCov()
	qd, rd, err := kalman.DiscretizeNoise(b.ContinuousStateMatrix(), qc, rc, plant.DefaultDt)
	require.NoError(t, err)
	assert.True(mat.EqualApprox(q, qd, 1e-9))
	assert.True(mat.EqualApprox(rr, rd, 1e-12))
	assert.InDelta(rr.At(0, 0)*plant.DefaultDt, rc.At(0, 0), 1e-15)

	umin, umax := b.InputLimits()
	assert.Equal(-12.0, umin.AtVec(0))
	assert.Equal(12.0, umax.AtVec(0))
	assert.Equal(0, b.DelayedU())
	assert.Equal(0.0, b.WrapPoint())
	assert.Equal(d, b.Design())
}

func TestSynthesizeIdempotent(t *testing.T) {
	assert := assert.New(t)

	b1, a1 := synthesize(t, scenario)
	b2, a2 := synthesize(t, scenario)

	for _, pair := range [][2]mat.Matrix{
		{b1.Gain(), b2.Gain()},
		{b1.FeedForwardGain(), b2.FeedForwardGain()},
		{b1.KalmanGain(), b2.KalmanGain()},
		{a1.Gain(), a2.Gain()},
		{a1.KalmanGain(), a2.KalmanGain()},
	} {
		assert.True(mat.EqualApprox(pair[0], pair[1], 1e-12))
	}
}

func TestControllableAcrossSampleIntervals(t *testing.T) {
	assert := assert.New(t)

	for _, dt := range []float64{0.001, 0.002, 0.005, 0.00505, 0.01, 0.02} {
		p := scenario
		p.Dt = dt

		d, err := plant.Angular(p)
		require.NoError(t, err)

		ct, err := d.Continuous()
		require.NoError(t, err)
		rank, err := sim.CtrbRank(ct.A, ct.B)
		assert.NoError(err)
		assert.Equal(2, rank)

		b, err := Synthesize(d)
		require.NoError(t, err, "dt %v", dt)

		rank, err = sim.CtrbRank(b.StateMatrix(), b.StateCtlMatrix())
		assert.NoError(err)
		assert.Equal(2, rank)

		assert.Less(spectralRadius(t, lqr.ClosedLoop(b.StateMatrix(), b.StateCtlMatrix(), b.Gain())), 1.0)
	}
}

func TestAugment(t *testing.T) {
	assert := assert.New(t)

	for _, enable := range []bool{true, false} {
		p := scenario
		p.EnableVoltageError = enable
		b, a := synthesize(t, p)

		assert.Equal("IntegralArm", a.Name())
		assert.Equal(b, a.Base())

		nx, nu, ny := a.SystemDims()
		assert.Equal(3, nx)
		assert.Equal(1, nu)
		assert.Equal(1, ny)

		k := a.Gain()
		r, c := k.Dims()
		assert.Equal(1, r)
		assert.Equal(3, c)
		assert.Equal(b.Gain().At(0, 0), k.At(0, 0))
		assert.Equal(b.Gain().At(0, 1), k.At(0, 1))

		want := 0.0
		if enable {
			want = 1.0
		}
		assert.Equal(want, k.At(0, 2))
		assert.Equal(Transform{States: 1, VoltageFeedback: want}, a.Transform())

		kff := a.FeedForwardGain()
		assert.Equal(b.FeedForwardGain().At(0, 0), kff.At(0, 0))
		assert.Equal(b.FeedForwardGain().At(0, 1), kff.At(0, 1))
		assert.Equal(0.0, kff.At(0, 2))

		// the voltage error enters exactly like the input
		A := a.ContinuousStateMatrix()
		B := a.ContinuousCtlMatrix()
		assert.Equal(B.At(1, 0), A.At(1, 2))
		assert.Equal(0.0, A.At(2, 2))
		assert.Equal(0.0, B.At(2, 0))
		assert.Equal(0.0, a.OutputMatrix().At(0, 2))

		assert.Less(spectralRadius(t, lqr.ClosedLoop(a.StateMatrix(), a.PredictorGain(), a.OutputMatrix())), 1.0)

		// base loop is left untouched
		r, c = b.Gain().Dims()
		assert.Equal(1, r)
		assert.Equal(2, c)
	}
}

func TestAugmentVoltageError(t *testing.T) {
	assert := assert.New(t)

	_, a := synthesize(t, scenario)
	v := a.VoltageError(mat.NewVecDense(3, []float64{1, 2, 3}))
	assert.Equal(1, v.Len())
	assert.Equal(3.0, v.AtVec(0))
}

func TestAugmentDrivetrain(t *testing.T) {
	assert := assert.New(t)

	d, err := plant.Drivetrain(dtParams, true, true)
	require.NoError(t, err)

	b, err := Synthesize(d)
	require.NoError(t, err)

	a, err := Augment(b, WithPrefix("KF"))
	require.NoError(t, err)
	assert.Equal("KFDrivetrainLowLow", a.Name())

	nx, nu, ny := a.SystemDims()
	assert.Equal(6, nx)
	assert.Equal(2, nu)
	assert.Equal(2, ny)

	k := a.Gain()
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			assert.Equal(b.Gain().At(i, j), k.At(i, j))
		}
	}
	assert.Equal(1.0, k.At(0, 4))
	assert.Equal(1.0, k.At(1, 5))
	assert.Equal(0.0, k.At(0, 5))
	assert.Equal(0.0, k.At(1, 4))

	assert.Less(spectralRadius(t, lqr.ClosedLoop(b.StateMatrix(), b.StateCtlMatrix(), b.Gain())), 1.0)
	assert.Less(spectralRadius(t, lqr.ClosedLoop(a.StateMatrix(), a.PredictorGain(), a.OutputMatrix())), 1.0)

	poly, err := plant.PolyDrivetrain(dtParams, true, true)
	require.NoError(t, err)
	pb, err := Synthesize(poly)
	require.NoError(t, err)
	_, err = Augment(pb)
	assert.NoError(err)
}

func TestAugmentModel(t *testing.T) {
	assert := assert.New(t)

	d, err := plant.Drivetrain(dtParams, true, false)
	require.NoError(t, err)

	b, err := Synthesize(d)
	require.NoError(t, err)

	em, err := plant.KFDrivetrain(dtParams, true, false)
	require.NoError(t, err)

	a, err := AugmentModel(b, em, WithPrefix("KF"))
	require.NoError(t, err)
	assert.Equal("KFDrivetrainLowHigh", a.Name())
	assert.Equal(Transform{States: 2, Extra: 1, VoltageFeedback: 1}, a.Transform())

	nx, nu, ny := a.SystemDims()
	assert.Equal([]int{7, 2, 4}, []int{nx, nu, ny})

	k := a.Gain()
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			assert.Equal(b.Gain().At(i, j), k.At(i, j))
		}
		assert.Equal(1.0, k.At(i, 4+i))
		assert.Zero(k.At(i, 6))
	}

	// the voltage errors enter where the inputs do
	ab := a.StateCtlMatrix()
	bb := b.StateCtlMatrix()
	for i := 0; i < 4; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(bb.At(i, j), ab.At(i, j), 1e-12)
		}
	}

	kff := a.FeedForwardGain()
	assert.True(mat.Equal(b.FeedForwardGain(), kff.(*mat.Dense).Slice(0, 2, 0, 4)))

	// the accelerometer output is not measured
	kal := a.KalmanGain()
	for i := 0; i < nx; i++ {
		assert.Zero(kal.At(i, 3))
	}
	q, r := a.NoiseCov()
	assert.Equal(7, q.SymmetricDim())
	assert.Equal(4, r.SymmetricDim())
	assert.Zero(r.At(3, 3))
	assert.InDelta(1e-12, r.At(2, 2), 1e-18)

	assert.Less(spectralRadius(t, lqr.ClosedLoop(a.StateMatrix(), a.PredictorGain(), a.OutputMatrix())), 1.0)

	v := a.VoltageError(mat.NewVecDense(7, []float64{0, 0, 0, 0, 1.5, -2, 7}))
	assert.Equal(2, v.Len())
	assert.Equal(-2.0, v.AtVec(1))

	_, err = AugmentModel(b, nil)
	assert.ErrorIs(err, control.ErrConfig)

	short := *em
	short.Feedback = []float64{1}
	_, err = AugmentModel(b, &short)
	assert.ErrorIs(err, control.ErrConfig)

	unmeasured := *em
	unmeasured.Measured = 5
	_, err = AugmentModel(b, &unmeasured)
	assert.ErrorIs(err, control.ErrConfig)

	pd, err := plant.PolyDrivetrain(dtParams, true, false)
	require.NoError(t, err)
	pb, err := Synthesize(pd)
	require.NoError(t, err)
	_, err = AugmentModel(pb, em)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestSynthesizeInvalid(t *testing.T) {
	assert := assert.New(t)

	_, err := Synthesize(nil)
	assert.ErrorIs(err, control.ErrConfig)

	d, err := plant.Angular(scenario)
	require.NoError(t, err)

	bad := *d
	bad.Dt = 0
	_, err = Synthesize(&bad)
	assert.ErrorIs(err, control.ErrConfig)

	// output does not see the position integrator
	bad = *d
	bad.C = mat.NewDense(1, 2, []float64{0, 1})
	_, err = Synthesize(&bad)
	assert.ErrorIs(err, control.ErrSynthesis)

	b, err := Synthesize(d)
	require.NoError(t, err)
	b.design = &bad
	bad.AugKalmanQ = matrix.DiagSym(1, 1)
	_, err = Augment(b)
	assert.ErrorIs(err, control.ErrConfig)

	_, err = Augment(nil)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestLoopReturnsCopies(t *testing.T) {
	assert := assert.New(t)

	b, a := synthesize(t, scenario)

	for _, l := range []control.Loop{b, a} {
		k := l.Gain()
		want := k.At(0, 0)
		k.(*mat.Dense).Set(0, 0, want+100)
		assert.Equal(want, l.Gain().At(0, 0))

		A := l.StateMatrix()
		want = A.At(0, 0)
		A.(*mat.Dense).Set(0, 0, want+1)
		assert.Equal(want, l.StateMatrix().At(0, 0))

		kal := l.KalmanGain()
		want = kal.At(0, 0)
		kal.(*mat.Dense).Set(0, 0, want+1)
		assert.Equal(want, l.KalmanGain().At(0, 0))

		q, _ := l.NoiseCov()
		want = q.At(0, 0)
		q.(*mat.SymDense).SetSym(0, 0, want+1)
		q, _ = l.NoiseCov()
		assert.Equal(want, q.At(0, 0))

		umin, _ := l.InputLimits()
		umin.(*mat.VecDense).SetVec(0, 0)
		umin, _ = l.InputLimits()
		assert.Equal(-12.0, umin.AtVec(0))
	}

	// edits to returned values leave the loop unchanged
	_, a2 := synthesize(t, scenario)
	assert.True(mat.EqualApprox(a.Gain(), a2.Gain(), 1e-12))
}

func TestSynthesizeFlywheel(t *testing.T) {
	assert := assert.New(t)

	d, err := plant.Flywheel(fwParams)
	require.NoError(t, err)

	b, err := Synthesize(d)
	require.NoError(t, err)

	nx, nu, ny := b.SystemDims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)
	assert.Equal(1, ny)

	// fixed gain ignores position and places the velocity pole
	assert.Equal(0.0, b.Gain().At(0, 0))
	cl := lqr.ClosedLoop(b.StateMatrix(), b.StateCtlMatrix(), b.Gain())
	assert.InDelta(fwParams.Pole, cl.At(1, 1), 1e-9)
	assert.Equal(0.0, b.FeedForwardGain().At(0, 0))

	// design noise is continuous and is discretized with kalmd
	qc, rc := b.ContinuousNoiseCov()
	assert.True(mat.EqualApprox(d.KalmanQ, qc, 1e-15))
	assert.True(mat.EqualApprox(d.KalmanR, rc, 1e-15))

	q, r := b.NoiseCov()
	qd, rd, err := kalman.DiscretizeNoise(d.A, d.KalmanQ, d.KalmanR, d.Dt)
	require.NoError(t, err)
	assert.True(mat.EqualApprox(qd, q, 1e-12))
	assert.True(mat.EqualApprox(rd, r, 1e-12))

	a, err := Augment(b)
	require.NoError(t, err)
	assert.Equal("IntegralFlywheel", a.Name())
	assert.Equal(1.0, a.Gain().At(0, 2))
	assert.Equal(b.Gain().At(0, 1), a.Gain().At(0, 1))

	qc, _ = a.ContinuousNoiseCov()
	assert.True(mat.EqualApprox(d.AugKalmanQ, qc, 1e-15))

	assert.Less(spectralRadius(t, lqr.ClosedLoop(a.StateMatrix(), a.PredictorGain(), a.OutputMatrix())), 1.0)
}

func TestSynthesizeFixedGainInvalid(t *testing.T) {
	assert := assert.New(t)

	d, err := plant.Flywheel(fwParams)
	require.NoError(t, err)

	bad := *d
	bad.Gain = mat.NewDense(1, 3, nil)
	b, err := Synthesize(&bad)
	assert.Nil(b)
	assert.ErrorIs(err, control.ErrConfig)

	bad = *d
	bad.KalmanR = nil
	b, err = Synthesize(&bad)
	assert.Nil(b)
	assert.ErrorIs(err, control.ErrConfig)
}
