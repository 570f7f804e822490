package codegen

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/motor"
	"github.com/milosgajdos/go-control/plant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	arm        plant.Params
	drivetrain plant.DrivetrainParams
	flywheel   plant.FlywheelParams
	namespaces = []string{"frc", "control_loops", "arm"}
)

func setup() {
	arm = plant.Params{
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

	drivetrain = plant.DrivetrainParams{
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

	flywheel = plant.FlywheelParams{
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

func paths(dir string, names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out
}

func entries(t *testing.T, dir string) []string {
	des, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

func TestNames(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		base   string
		count  int
		prefix string
		exp    []string
	}{
		{"Arm", 0, "", nil},
		{"Arm", 1, "", []string{"Arm"}},
		{"Arm", 1, "Integral", []string{"IntegralArm"}},
		{"Shooter", 3, "", []string{"Shooter0", "Shooter1", "Shooter2"}},
		{"Shooter", 2, "Integral", []string{"IntegralShooter0", "IntegralShooter1"}},
	}

	for _, tc := range testCases {
		names := Names(tc.base, tc.count, tc.prefix)
		assert.Equal(tc.exp, names)

		seen := make(map[string]bool)
		for _, n := range names {
			assert.False(seen[n])
			seen[n] = true
		}
	}

	// base and augmented names never collide
	for _, b := range Names("Arm", 12, "") {
		for _, a := range Names("Arm", 12, "Integral") {
			assert.NotEqual(b, a)
		}
	}
}

func TestSplitFiles(t *testing.T) {
	assert := assert.New(t)

	split, err := SplitFiles([]string{"a.h", "a.cc", "b.h", "b.cc"}, 2)
	assert.NoError(err)
	assert.Equal([][]string{{"a.h", "a.cc"}, {"b.h", "b.cc"}}, split)

	split, err = SplitFiles([]string{"a.h", "a.cc", "a.json", "b.h", "b.cc", "b.json"}, 2)
	assert.NoError(err)
	assert.Equal([][]string{{"a.h", "a.cc", "a.json"}, {"b.h", "b.cc", "b.json"}}, split)

	testCases := []struct {
		files   []string
		systems int
	}{
		{[]string{"a.h", "a.cc", "b.h"}, 2},
		{[]string{"a.h", "a.cc", "b.h", "b.cc", "c.h"}, 2},
		{[]string{"a.h", "a.cc", "b.h", "b.cc", "c.h", "c.cc", "d.h", "d.cc"}, 2},
		{nil, 2},
		{[]string{"a.h", "a.cc"}, 0},
		{[]string{"a.h", "a.h", "b.h", "b.cc"}, 2},
		{[]string{"a.h", "", "b.h", "b.cc"}, 2},
	}

	for _, tc := range testCases {
		_, err := SplitFiles(tc.files, tc.systems)
		assert.ErrorIs(err, control.ErrInterface, "%v", tc.files)
	}
}

func TestSnake(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("drivetrain", snake("Drivetrain"))
	assert.Equal("kf_drivetrain", snake("KFDrivetrain"))
	assert.Equal("integral_arm", snake("IntegralArm"))
	assert.Equal("poly_drivetrain", snake("PolyDrivetrain"))
	assert.Equal("shooter0", snake("Shooter0"))
}

func TestGuard(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("FRC_CONTROL_LOOPS_ARM_ARM_PLANT_H_", guard("frc/control_loops/arm/arm_plant.h"))
	assert.Equal("ARM_PLANT_H_", guard("./arm_plant.h"))
}

func TestSingleAxisRender(t *testing.T) {
	assert := assert.New(t)

	base, augm, err := SingleAxis([]plant.Params{arm}, Angular, namespaces)
	require.NoError(t, err)

	h, err := base.Header("frc/control_loops/arm/arm_plant.h")
	require.NoError(t, err)
	header := string(h)

	assert.True(strings.HasPrefix(header, "#ifndef FRC_CONTROL_LOOPS_ARM_ARM_PLANT_H_\n#define FRC_CONTROL_LOOPS_ARM_ARM_PLANT_H_\n"))
	assert.Contains(header, "namespace frc {\nnamespace control_loops {\nnamespace arm {\n")
	assert.Contains(header, "}  // namespace arm\n}  // namespace control_loops\n}  // namespace frc\n")
	assert.Contains(header, "static constexpr double kOutputRatio = 0.291700;")
	assert.Contains(header, "static constexpr double kFreeSpeed = 500.000000;")
	assert.Contains(header, "StateFeedbackPlantCoefficients<2, 1, 1, double>\nMakeArmPlantCoefficients();")
	assert.Contains(header, "MakeArmControllerCoefficients();")
	assert.Contains(header, "MakeArmObserverCoefficients();")
	assert.Contains(header, "StateFeedbackPlant<2, 1, 1, double> MakeArmPlant();")
	assert.Contains(header, "StateFeedbackController<2, 1, 1, double> MakeArmController();")
	assert.Contains(header, "StateFeedbackObserver<2, 1, 1, double> MakeArmObserver();")
	assert.Contains(header, "MakeArmLoop();")

	s, err := base.Source("frc/control_loops/arm/arm_plant.h")
	require.NoError(t, err)
	source := string(s)

	assert.True(strings.HasPrefix(source, "#include \"frc/control_loops/arm/arm_plant.h\"\n"))
	for _, decl := range []string{
		"Eigen::Matrix<double, 2, 2> A;",
		"Eigen::Matrix<double, 2, 1> B;",
		"Eigen::Matrix<double, 1, 2> C;",
		"Eigen::Matrix<double, 1, 1> D;",
		"Eigen::Matrix<double, 1, 1> U_max;\n  U_max << 12.0;",
		"Eigen::Matrix<double, 1, 1> U_min;\n  U_min << -12.0;",
		"Eigen::Matrix<double, 1, 2> U_limit_coefficient;\n  U_limit_coefficient << 0.0, 0.0;",
		"Eigen::Matrix<double, 1, 1> wrap_point;\n  wrap_point << 0.0;",
		"const std::chrono::nanoseconds dt(5050000);",
		"Eigen::Matrix<double, 1, 2> K;",
		"Eigen::Matrix<double, 1, 2> Kff;",
		"Eigen::Matrix<double, 2, 1> KalmanGain;",
		"Eigen::Matrix<double, 2, 2> Q;",
		"Eigen::Matrix<double, 1, 1> R;",
		"plants[0] = ",
		"return StateFeedbackLoop<2, 1, 1, double, StateFeedbackPlant<2, 1, 1, double>,",
	} {
		assert.Contains(source, decl)
	}
	assert.Equal(strings.Count(source, "namespace frc {"), 1)

	ah, err := augm.Header("frc/control_loops/arm/integral_arm_plant.h")
	require.NoError(t, err)
	assert.Contains(string(ah), "StateFeedbackPlantCoefficients<3, 1, 1, double>\nMakeIntegralArmPlantCoefficients();")
	assert.Contains(string(ah), "MakeIntegralArmLoop();")
	assert.NotContains(string(ah), "kOutputRatio")
}

func TestSingleAxisMultiple(t *testing.T) {
	assert := assert.New(t)

	second := arm
	second.J = 0.02

	base, augm, err := SingleAxis([]plant.Params{arm, second}, Angular, namespaces)
	require.NoError(t, err)

	assert.Equal("Arm", base.Name)
	assert.Equal("IntegralArm", augm.Name)
	require.Len(t, base.Loops, 2)
	assert.Equal("Arm0", base.Loops[0].Name())
	assert.Equal("Arm1", base.Loops[1].Name())
	assert.Equal("IntegralArm0", augm.Loops[0].Name())
	assert.Equal("IntegralArm1", augm.Loops[1].Name())

	s, err := base.Source("arm_plant.h")
	require.NoError(t, err)
	assert.Contains(string(s), "plants[1] = ")
	assert.Contains(string(s), "MakeArm1PlantCoefficients()")
}

func TestWriterInvalid(t *testing.T) {
	assert := assert.New(t)

	base, _, err := SingleAxis([]plant.Params{arm}, Angular, namespaces)
	require.NoError(t, err)

	aug, _, err := SingleAxis([]plant.Params{arm}, Linear, namespaces)
	assert.ErrorIs(err, control.ErrConfig)
	assert.Nil(aug)

	testCases := []*Writer{
		{Name: "", Loops: base.Loops},
		{Name: "Arm"},
		{Name: "Arm", Loops: append(base.Loops, base.Loops...)},
		{Name: "Arm", Loops: base.Loops, Namespaces: []string{"frc-2024"}},
		{Name: "Arm", Loops: base.Loops, Constants: []plant.Constant{{Name: "k Bad"}}},
	}

	for _, w := range testCases {
		_, err := w.Header("arm.h")
		assert.ErrorIs(err, control.ErrInterface)
		_, err = w.JSON()
		assert.ErrorIs(err, control.ErrInterface)
	}

	_, augm, err := SingleAxis([]plant.Params{arm}, Angular, namespaces)
	require.NoError(t, err)
	mixed := &Writer{Name: "Arm", Loops: append(base.Loops, augm.Loops...)}
	_, err = mixed.Source("arm.h")
	assert.ErrorIs(err, control.ErrInterface)

	_, err = base.Files([]string{"arm.h"})
	assert.ErrorIs(err, control.ErrInterface)

	_, _, err = SingleAxis(nil, Angular, namespaces)
	assert.ErrorIs(err, control.ErrInterface)

	_, _, err = SingleAxis([]plant.Params{arm}, Kind("wrist"), namespaces)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestJSON(t *testing.T) {
	assert := assert.New(t)

	ws, err := Drivetrain(drivetrain, []string{"frc", "control_loops", "drivetrain"})
	require.NoError(t, err)
	require.Len(t, ws, 3)

	assert.Equal("drivetrain_loop", ws[0].LoopKey())
	assert.Equal("kf_drivetrain_loop", ws[1].LoopKey())
	assert.Equal("poly_drivetrain_loop", ws[2].LoopKey())

	data, err := ws[0].JSON()
	require.NoError(t, err)

	var doc struct {
		Loops []struct {
			Name  string `json:"name"`
			Plant struct {
				A struct {
					Rows         int       `json:"rows"`
					Cols         int       `json:"cols"`
					StorageOrder string    `json:"storage_order"`
					Data         []float64 `json:"data"`
				} `json:"a"`
				UMax struct {
					Data []float64 `json:"data"`
				} `json:"u_max"`
				Dt       int64 `json:"dt"`
				DelayedU int   `json:"delayed_u"`
			} `json:"plant"`
			Controller struct {
				K struct {
					Rows int       `json:"rows"`
					Cols int       `json:"cols"`
					Data []float64 `json:"data"`
				} `json:"k"`
				Poles []struct {
					Re float64 `json:"re"`
					Im float64 `json:"im"`
				} `json:"poles"`
			} `json:"controller"`
			Observer struct {
				KalmanGain struct {
					Rows int `json:"rows"`
					Cols int `json:"cols"`
				} `json:"kalman_gain"`
				Poles []struct {
					Re float64 `json:"re"`
					Im float64 `json:"im"`
				} `json:"poles"`
			} `json:"observer"`
		} `json:"drivetrain_loop"`
		Dt           int64   `json:"dt"`
		Mass         float64 `json:"mass"`
		J            float64 `json:"moment_of_inertia"`
		RobotRadius  float64 `json:"robot_radius"`
		WheelRadius  float64 `json:"wheel_radius"`
		MotorKv      float64 `json:"motor_kv"`
		LowGearRatio float64 `json:"low_gear_ratio"`
		HighGear     float64 `json:"high_gear_ratio"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(int64(5050000), doc.Dt)
	assert.Equal(58.0, doc.Mass)
	assert.Equal(6.0, doc.J)
	assert.Equal(0.39, doc.RobotRadius)
	assert.Equal(0.0508, doc.WheelRadius)
	assert.Equal(11.0/60.0, doc.LowGearRatio)
	assert.Equal(14.0/40.0, doc.HighGear)
	assert.Greater(doc.MotorKv, 0.0)

	require.Len(t, doc.Loops, 4)
	names := []string{"DrivetrainLowLow", "DrivetrainLowHigh", "DrivetrainHighLow", "DrivetrainHighHigh"}
	for i, l := range doc.Loops {
		assert.Equal(names[i], l.Name)
		assert.Equal(4, l.Plant.A.Rows)
		assert.Equal(4, l.Plant.A.Cols)
		assert.Equal("ColMajor", l.Plant.A.StorageOrder)
		assert.Len(l.Plant.A.Data, 16)
		assert.Equal([]float64{12, 12}, l.Plant.UMax.Data)
		assert.Equal(int64(5050000), l.Plant.Dt)
		assert.Equal(2, l.Controller.K.Rows)
		assert.Equal(4, l.Controller.K.Cols)
		assert.Len(l.Controller.Poles, 4)
		assert.Equal(4, l.Observer.KalmanGain.Rows)
		assert.Equal(2, l.Observer.KalmanGain.Cols)
		assert.Len(l.Observer.Poles, 4)

		// column-major layout
		a := ws[0].Loops[i].StateMatrix()
		assert.Equal(a.At(1, 0), l.Plant.A.Data[1])
		assert.Equal(a.At(0, 1), l.Plant.A.Data[4])
		k := ws[0].Loops[i].Gain()
		assert.Equal(k.At(1, 0), l.Controller.K.Data[1])
		assert.Equal(k.At(0, 1), l.Controller.K.Data[2])
	}

	kf, err := ws[1].JSON()
	require.NoError(t, err)
	var kfDoc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(kf, &kfDoc))
	assert.Contains(kfDoc, "kf_drivetrain_loop")
	assert.NotContains(kfDoc, "mass")
}

func TestWriteSingleAxis(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	files := paths(dir, "arm_plant.h", "arm_plant.cc", "arm_plant.json",
		"integral_arm_plant.h", "integral_arm_plant.cc", "integral_arm_plant.json")

	core, logs := observer.New(zap.InfoLevel)
	err := WriteSingleAxis([]plant.Params{arm}, Angular, files, namespaces, WithLogger(zap.New(core)))
	require.NoError(t, err)

	for _, f := range files {
		data, err := os.ReadFile(f)
		assert.NoError(err)
		assert.NotEmpty(data)
	}
	assert.Len(entries(t, dir), 6)
	assert.Equal(6, logs.FilterMessage("wrote").Len())

	h, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(string(h), "#ifndef ARM_PLANT_H_")

	ih, err := os.ReadFile(files[3])
	require.NoError(t, err)
	assert.Contains(string(ih), "MakeIntegralArmLoop();")

	var doc map[string]json.RawMessage
	j, err := os.ReadFile(files[5])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(j, &doc))
	assert.Contains(doc, "integral_arm_loop")

	// without JSON sidecars
	dir = t.TempDir()
	files = paths(dir, "arm_plant.h", "arm_plant.cc", "integral_arm_plant.h", "integral_arm_plant.cc")
	assert.NoError(WriteSingleAxis([]plant.Params{arm}, Angular, files, namespaces))
	assert.Len(entries(t, dir), 4)
}

func TestWriteWrongFileCount(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()

	for _, n := range []int{0, 1, 3, 5, 7} {
		names := make([]string, n)
		for i := range names {
			names[i] = filepath.Join(dir, "f"+string(rune('a'+i)))
		}
		err := WriteSingleAxis([]plant.Params{arm}, Angular, names, namespaces)
		assert.ErrorIs(err, control.ErrInterface, "%d files", n)
	}

	for _, n := range []int{4, 5, 7, 8} {
		names := make([]string, n)
		for i := range names {
			names[i] = filepath.Join(dir, "f"+string(rune('a'+i)))
		}
		err := WriteDrivetrain(drivetrain, names, namespaces)
		assert.ErrorIs(err, control.ErrInterface, "%d files", n)
	}

	assert.Empty(entries(t, dir))
}

func TestWriteDrivetrain(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	files := paths(dir,
		"drivetrain_dog_motor_plant.h", "drivetrain_dog_motor_plant.cc", "drivetrain_dog_motor_plant.json",
		"kalman_drivetrain_motor_plant.h", "kalman_drivetrain_motor_plant.cc", "kalman_drivetrain_motor_plant.json",
		"polydrivetrain_dog_motor_plant.h", "polydrivetrain_dog_motor_plant.cc", "polydrivetrain_dog_motor_plant.json",
	)

	err := WriteDrivetrain(drivetrain, files, []string{"frc", "control_loops", "drivetrain"})
	require.NoError(t, err)
	assert.Len(entries(t, dir), 9)

	h, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(string(h), "static constexpr double kDt = 0.005050;")
	assert.Contains(string(h), "MakeDrivetrainLowHighPlantCoefficients();")
	assert.Contains(string(h), "StateFeedbackLoop<4, 2, 2, double,")

	kh, err := os.ReadFile(files[3])
	require.NoError(t, err)
	assert.Contains(string(kh), "StateFeedbackPlantCoefficients<7, 2, 4, double>\nMakeKFDrivetrainHighHighPlantCoefficients();")

	ph, err := os.ReadFile(files[6])
	require.NoError(t, err)
	assert.Contains(string(ph), "StateFeedbackPlantCoefficients<2, 2, 2, double>\nMakePolyDrivetrainLowLowPlantCoefficients();")
	assert.Contains(string(ph), "MakePolyDrivetrainLoop();")
}

func TestKFDrivetrain(t *testing.T) {
	assert := assert.New(t)

	imu := drivetrain
	imu.HasIMU = true
	force := drivetrain
	force.Force = true

	testCases := map[string]struct {
		p        plant.DrivetrainParams
		measured int
	}{
		"encoders and gyro": {drivetrain, 3},
		"imu":               {imu, 4},
		"force":             {force, 3},
	}

	for name, tc := range testCases {
		ws, err := Drivetrain(tc.p, []string{"frc", "control_loops", "drivetrain"})
		require.NoError(t, err, name)

		kf := ws[1]
		require.Len(t, kf.Loops, 4, name)
		assert.Equal("KFDrivetrainLowLow", kf.Loops[0].Name(), name)
		assert.Equal("KFDrivetrainHighHigh", kf.Loops[3].Name(), name)

		for i, l := range kf.Loops {
			nx, nu, ny := l.SystemDims()
			assert.Equal([]int{7, 2, 4}, []int{nx, nu, ny}, name)

			k := l.Gain()
			base := ws[0].Loops[i].Gain()
			for r := 0; r < 2; r++ {
				for c := 0; c < 4; c++ {
					assert.Equal(base.At(r, c), k.At(r, c), name)
				}
				assert.Zero(k.At(r, 6), name)
			}
			assert.Zero(k.At(0, 5), name)
			assert.Zero(k.At(1, 4), name)
			if tc.p.Force {
				assert.Greater(k.At(0, 4), 0.0, name)
				assert.NotEqual(1.0, k.At(0, 4), name)
			} else {
				assert.Equal(1.0, k.At(0, 4), name)
				assert.Equal(1.0, k.At(1, 5), name)
			}

			// heading error drives the positions apart
			a := l.ContinuousStateMatrix()
			assert.Equal(1.0, a.At(0, 6), name)
			assert.Equal(-1.0, a.At(2, 6), name)

			kal := l.KalmanGain()
			_, r := l.NoiseCov()
			for row := 0; row < 7; row++ {
				if tc.measured < 4 {
					assert.Zero(kal.At(row, 3), name)
				}
			}
			if tc.measured < 4 {
				assert.Zero(r.At(3, 3), name)
				assert.Zero(l.OutputMatrix().At(3, 1), name)
			} else {
				assert.Greater(r.At(3, 3), 0.0, name)
				assert.NotZero(l.OutputMatrix().At(3, 1), name)
			}
		}
	}
}

func TestFlywheel(t *testing.T) {
	assert := assert.New(t)

	ns := []string{"frc", "control_loops", "flywheel"}
	base, integral, err := Flywheel([]plant.FlywheelParams{flywheel}, ns)
	require.NoError(t, err)

	assert.Equal("flywheel_loop", base.LoopKey())
	assert.Equal("integral_flywheel_loop", integral.LoopKey())
	assert.Equal(HybridObserverType, integral.ObserverType)

	h, err := base.Header("frc/control_loops/flywheel/flywheel_plant.h")
	require.NoError(t, err)
	assert.Contains(string(h), "static constexpr double kOutputRatio = 1.250000;")
	assert.Contains(string(h), "kBemf")
	assert.Contains(string(h), "kResistance")
	assert.Contains(string(h), "StateFeedbackObserver<2, 1, 1, double> MakeFlywheelObserver();")

	ih, err := integral.Header("frc/control_loops/flywheel/integral_flywheel_plant.h")
	require.NoError(t, err)
	assert.Contains(string(ih), "HybridKalman<3, 1, 1, double> MakeIntegralFlywheelObserver();")
	assert.NotContains(string(ih), "kBemf")

	// the hybrid observer consumes continuous covariances
	l := integral.Loops[0]
	qc, rc := l.ContinuousNoiseCov()
	ld := integral.loopData(l)
	assert.Equal(qc.At(2, 2), ld.Q.Values[8])
	assert.Equal(rc.At(0, 0), ld.R.Values[0])
	assert.InDelta(4.0*4.0, ld.Q.Values[8], 1e-9)

	q, _ := base.Loops[0].NoiseCov()
	bd := base.loopData(base.Loops[0])
	assert.Equal(q.At(1, 1), bd.Q.Values[3])

	dir := t.TempDir()
	files := paths(dir,
		"flywheel_plant.h", "flywheel_plant.cc", "flywheel_plant.json",
		"integral_flywheel_plant.h", "integral_flywheel_plant.cc", "integral_flywheel_plant.json",
	)
	require.NoError(t, WriteFlywheel([]plant.FlywheelParams{flywheel}, files, ns))
	assert.Len(entries(t, dir), 6)

	_, _, err = Flywheel(nil, ns)
	assert.ErrorIs(err, control.ErrInterface)

	bad := flywheel
	bad.Pole = 1.0
	_, _, err = Flywheel([]plant.FlywheelParams{bad}, ns)
	assert.ErrorIs(err, control.ErrConfig)
}

func TestWriteBundle(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	existing := filepath.Join(dir, "a.h")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	files := []File{
		{Path: existing, Data: []byte("new a")},
		{Path: filepath.Join(dir, "a.cc"), Data: []byte("new b")},
	}
	require.NoError(t, WriteBundle(files))

	data, err := os.ReadFile(existing)
	assert.NoError(err)
	assert.Equal("new a", string(data))
	assert.ElementsMatch([]string{"a.h", "a.cc"}, entries(t, dir))

	err = WriteBundle(nil)
	assert.ErrorIs(err, control.ErrInterface)

	err = WriteBundle([]File{{Path: existing}, {Path: existing}})
	assert.ErrorIs(err, control.ErrInterface)
}

func TestWriteBundleMissingDir(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	files := []File{
		{Path: filepath.Join(dir, "a.h"), Data: []byte("a")},
		{Path: filepath.Join(dir, "missing", "a.cc"), Data: []byte("b")},
	}

	err := WriteBundle(files)
	assert.ErrorIs(err, control.ErrIO)
	assert.Empty(entries(t, dir))
}

func TestWriteBundleDirTarget(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "b.cc"), 0o755))

	files := []File{
		{Path: filepath.Join(dir, "a.h"), Data: []byte("a")},
		{Path: filepath.Join(dir, "b.cc"), Data: []byte("b")},
	}

	err := WriteBundle(files)
	assert.ErrorIs(err, control.ErrIO)
	assert.Equal([]string{"b.cc"}, entries(t, dir))
}

func TestWriteBundleRenameFailure(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	existing := filepath.Join(dir, "a.h")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	calls := 0
	rename = func(from, to string) error {
		calls++
		// backup a.h, rename a.h, rename a.cc, fail on a.json
		if calls == 4 {
			return errors.New("disk full")
		}
		return os.Rename(from, to)
	}
	defer func() { rename = os.Rename }()

	files := []File{
		{Path: existing, Data: []byte("new")},
		{Path: filepath.Join(dir, "a.cc"), Data: []byte("b")},
		{Path: filepath.Join(dir, "a.json"), Data: []byte("{}")},
	}

	err := WriteBundle(files)
	assert.ErrorIs(err, control.ErrIO)
	assert.Equal(4, calls)

	assert.Equal([]string{"a.h"}, entries(t, dir))
	data, err := os.ReadFile(existing)
	assert.NoError(err)
	assert.Equal("old", string(data))
}
