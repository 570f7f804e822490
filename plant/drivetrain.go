package plant

import (
	"math"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/matrix"
	"github.com/milosgajdos/go-control/motor"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultEfficiency is the default drivetrain gearbox efficiency
	DefaultEfficiency = 0.60
	// DefaultNumMotors is the default number of motors per drivetrain side
	DefaultNumMotors = 2
)

// DrivetrainParams are the physical and tuning parameters of a two sided differential drivetrain
// with a two speed gearbox on each side.
type DrivetrainParams struct {
	// Name is the emitted loop name prefix
	Name string
	// J is the robot moment of inertia about its center in kg*m^2
	J float64
	// Mass is the robot mass in kg
	Mass float64
	// RobotRadius is half the track width in m
	RobotRadius float64
	// WheelRadius is the wheel radius in m
	WheelRadius float64
	// GLow and GHigh are the low and high gear ratios
	GLow, GHigh float64
	// QPosLow, QPosHigh, QVelLow and QVelHigh are the per gear LQR tolerances
	QPosLow, QPosHigh, QVelLow, QVelHigh float64
	// Efficiency is the gearbox efficiency
	Efficiency float64
	// Motor is the motor used on both sides
	Motor motor.Motor
	// NumMotors is the number of motors per side
	NumMotors int
	// Dt is the sample interval in seconds
	Dt float64
	// RobotCGOffset is the offset of the center of gravity towards the left side in m
	RobotCGOffset float64
	// KalmanQPos, KalmanQVel and KalmanQVoltage are process noise standard deviations
	KalmanQPos, KalmanQVel, KalmanQVoltage float64
	// KalmanRPosition is the encoder measurement noise standard deviation
	KalmanRPosition float64
	// VoltageLimit is the symmetric input limit in V
	VoltageLimit float64
	// QPosFF and QVelFF are the feed-forward tolerances
	QPosFF, QVelFF float64
	// HasIMU adds an accelerometer measurement to the KF observer
	HasIMU bool
	// Force makes the KF voltage error states forces acting on each side
	Force bool
}

func (p DrivetrainParams) validate() error {
	if err := p.Motor.Validate(); err != nil {
		return errors.Wrapf(err, "drivetrain %q", p.Name)
	}

	if err := positive(
		check{"J", p.J},
		check{"mass", p.Mass},
		check{"robot_radius", p.RobotRadius},
		check{"wheel_radius", p.WheelRadius},
		check{"g_low", p.GLow},
		check{"g_high", p.GHigh},
		check{"q_pos_low", p.QPosLow},
		check{"q_pos_high", p.QPosHigh},
		check{"q_vel_low", p.QVelLow},
		check{"q_vel_high", p.QVelHigh},
		check{"efficiency", p.Efficiency},
		check{"dt", p.Dt},
		check{"kalman_q_pos", p.KalmanQPos},
		check{"kalman_q_vel", p.KalmanQVel},
		check{"kalman_q_voltage", p.KalmanQVoltage},
		check{"kalman_r_position", p.KalmanRPosition},
		check{"voltage_limit", p.VoltageLimit},
		check{"q_pos_ff", p.QPosFF},
		check{"q_vel_ff", p.QVelFF},
	); err != nil {
		return errors.Wrapf(err, "drivetrain %q", p.Name)
	}

	if p.Efficiency > 1 {
		return errors.Wrapf(control.ErrConfig, "drivetrain %q: efficiency must not exceed 1: %v", p.Name, p.Efficiency)
	}

	if p.NumMotors < 1 {
		return errors.Wrapf(control.ErrConfig, "drivetrain %q: num_motors must be positive: %d", p.Name, p.NumMotors)
	}

	if math.Abs(p.RobotCGOffset) >= p.RobotRadius {
		return errors.Wrapf(control.ErrConfig, "drivetrain %q: cg offset %v outside of robot radius", p.Name, p.RobotCGOffset)
	}

	return nil
}

// GearName returns the gear variant name, e.g. LowHigh for low gear on the left and high on the right.
func GearName(leftLow, rightLow bool) string {
	gear := func(low bool) string {
		if low {
			return "Low"
		}
		return "High"
	}

	return gear(leftLow) + gear(rightLow)
}

// sides holds the per side coefficients of the drivetrain dynamics.
type sides struct {
	// motor constants of one side with efficiency applied
	stallTorque, stallCurrent, freeCurrent float64
	resistance, kt, kv                     float64
	// mspl, mspr, msnl and msnr describe how a force on one side accelerates either side in 1/kg
	mspl, mspr, msnl, msnr float64
	// tcl, tcr are the back-EMF terms and mpl, mpr the voltage to force terms
	tcl, tcr, mpl, mpr float64
	// gl, gr are the selected gear ratios
	gl, gr float64
}

func newSides(p DrivetrainParams, leftLow, rightLow bool) sides {
	m := motor.N(p.Motor, p.NumMotors)

	var s sides
	s.stallTorque = m.StallTorque * p.Efficiency
	s.stallCurrent = m.StallCurrent
	s.freeCurrent = m.FreeCurrent
	s.resistance = motor.NominalVoltage / s.stallCurrent
	s.kv = m.FreeSpeed / (motor.NominalVoltage - s.resistance*s.freeCurrent)
	s.kt = s.stallTorque / s.stallCurrent

	s.gl, s.gr = p.GHigh, p.GHigh
	if leftLow {
		s.gl = p.GLow
	}
	if rightLow {
		s.gr = p.GLow
	}

	rl := p.RobotRadius - p.RobotCGOffset
	rr := p.RobotRadius + p.RobotCGOffset
	s.mspl = 1/p.Mass + rl*rl/p.J
	s.mspr = 1/p.Mass + rr*rr/p.J
	s.msnl = rr/(rl*p.Mass) - rl*rr/p.J
	s.msnr = rl/(rr*p.Mass) - rl*rr/p.J

	r := p.WheelRadius
	s.tcl = s.kt / s.kv / (s.gl * s.gl * s.resistance * r * r)
	s.tcr = s.kt / s.kv / (s.gr * s.gr * s.resistance * r * r)
	s.mpl = s.kt / (s.gl * s.resistance * r)
	s.mpr = s.kt / (s.gr * s.resistance * r)

	return s
}

// model returns the continuous [left position, left velocity, right position, right velocity] system
// driven by left and right voltages.
func (s sides) model() (A, B *mat.Dense) {
	A = mat.NewDense(4, 4, []float64{
		0, 1, 0, 0,
		0, -s.mspl * s.tcl, 0, -s.msnr * s.tcr,
		0, 0, 0, 1,
		0, -s.msnl * s.tcl, 0, -s.mspr * s.tcr,
	})
	B = mat.NewDense(4, 2, []float64{
		0, 0,
		s.mspl * s.mpl, s.msnr * s.mpr,
		0, 0,
		s.msnl * s.mpl, s.mspr * s.mpr,
	})

	return A, B
}

// Drivetrain returns the design of a differential drivetrain in the given gear combination.
// The state is [left position, left velocity, right position, right velocity] in m and m/s,
// the inputs are left and right voltages and the outputs are the two side positions.
//
// It returns error wrapping control.ErrConfig if any parameter is invalid.
func Drivetrain(p DrivetrainParams, leftLow, rightLow bool, opts ...Option) (*Design, error) {
	o := newOptions(opts...)

	if err := p.validate(); err != nil {
		return nil, err
	}

	s := newSides(p, leftLow, rightLow)
	A, B := s.model()
	C := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 0, 1, 0,
	})
	D := mat.NewDense(2, 2, nil)

	qPos, qVel := p.QPosHigh, p.QVelHigh
	if leftLow || rightLow {
		qPos, qVel = p.QPosLow, p.QVelLow
	}

	kq, kv, kvolt := sq(p.KalmanQPos), sq(p.KalmanQVel), sq(p.KalmanQVoltage)
	umin, umax := limits(2, p.VoltageLimit)

	d := &Design{
		Name:               p.Name + GearName(leftLow, rightLow),
		A:                  A,
		B:                  B,
		C:                  C,
		D:                  D,
		Dt:                 p.Dt,
		Q:                  matrix.DiagSym(1/sq(qPos), 1/sq(qVel), 1/sq(qPos), 1/sq(qVel)),
		R:                  matrix.DiagSym(1/sq(p.VoltageLimit), 1/sq(p.VoltageLimit)),
		Qff:                matrix.DiagSym(1/sq(p.QPosFF), 1/sq(p.QVelFF), 1/sq(p.QPosFF), 1/sq(p.QVelFF)),
		KalmanQ:            matrix.DiagSym(kq, kv, kq, kv),
		KalmanR:            matrix.DiagSym(sq(p.KalmanRPosition), sq(p.KalmanRPosition)),
		AugKalmanQ:         matrix.DiagSym(kq, kv, kq, kv, kvolt, kvolt),
		UMin:               umin,
		UMax:               umax,
		EnableVoltageError: true,
		Motor:              p.Motor,
		OutputRatio:        s.gl * p.WheelRadius,
		Constants:          drivetrainConstants(p, s),
	}

	o.logger.Debug("drivetrain",
		zap.String("name", d.Name),
		zap.Float64("q_pos", qPos),
		zap.Float64("q_vel", qVel),
		zap.Float64("max_speed", -(B.At(1, 1)+B.At(1, 0))/(A.At(1, 1)+A.At(1, 3))*p.VoltageLimit),
	)

	return d, nil
}

// PolyDrivetrain returns the velocity only reduction of the drivetrain design.
// The state is [left velocity, right velocity] in m/s and both velocities are measured.
//
// It returns error wrapping control.ErrConfig if any parameter is invalid.
func PolyDrivetrain(p DrivetrainParams, leftLow, rightLow bool, opts ...Option) (*Design, error) {
	o := newOptions(opts...)

	if err := p.validate(); err != nil {
		return nil, err
	}

	s := newSides(p, leftLow, rightLow)

	A := mat.NewDense(2, 2, []float64{
		-s.mspl * s.tcl, -s.msnr * s.tcr,
		-s.msnl * s.tcl, -s.mspr * s.tcr,
	})
	B := mat.NewDense(2, 2, []float64{
		s.mspl * s.mpl, s.msnr * s.mpr,
		s.msnl * s.mpl, s.mspr * s.mpr,
	})

	qVel := p.QVelHigh
	if leftLow || rightLow {
		qVel = p.QVelLow
	}

	kv, kvolt := sq(p.KalmanQVel), sq(p.KalmanQVoltage)
	umin, umax := limits(2, p.VoltageLimit)

	d := &Design{
		Name:               "Poly" + p.Name + GearName(leftLow, rightLow),
		A:                  A,
		B:                  B,
		C:                  matrix.Identity(2),
		D:                  mat.NewDense(2, 2, nil),
		Dt:                 p.Dt,
		Q:                  matrix.DiagSym(1/sq(qVel), 1/sq(qVel)),
		R:                  matrix.DiagSym(1/sq(p.VoltageLimit), 1/sq(p.VoltageLimit)),
		Qff:                matrix.DiagSym(1/sq(p.QVelFF), 1/sq(p.QVelFF)),
		KalmanQ:            matrix.DiagSym(kv, kv),
		KalmanR:            matrix.DiagSym(sq(p.KalmanRPosition), sq(p.KalmanRPosition)),
		AugKalmanQ:         matrix.DiagSym(kv, kv, kvolt, kvolt),
		UMin:               umin,
		UMax:               umax,
		EnableVoltageError: true,
		Motor:              p.Motor,
		OutputRatio:        s.gl * p.WheelRadius,
	}

	o.logger.Debug("polydrivetrain", zap.String("name", d.Name), zap.Float64("q_vel", qVel))

	return d, nil
}

func drivetrainConstants(p DrivetrainParams, s sides) []Constant {
	return []Constant{
		{Name: "kDt", Format: "%f", Value: p.Dt, JSONName: "dt", JSONScale: 1e9, JSONInt: true},
		{Name: "kStallTorque", Format: "%f", Value: s.stallTorque},
		{Name: "kStallCurrent", Format: "%f", Value: s.stallCurrent},
		{Name: "kFreeSpeed", Format: "%f", Value: p.Motor.FreeSpeed},
		{Name: "kFreeCurrent", Format: "%f", Value: s.freeCurrent},
		{Name: "kJ", Format: "%f", Value: p.J, JSONName: "moment_of_inertia"},
		{Name: "kMass", Format: "%f", Value: p.Mass, JSONName: "mass"},
		{Name: "kRobotRadius", Format: "%f", Value: p.RobotRadius, JSONName: "robot_radius"},
		{Name: "kWheelRadius", Format: "%f", Value: p.WheelRadius, JSONName: "wheel_radius"},
		{Name: "kR", Format: "%f", Value: s.resistance},
		{Name: "kV", Format: "%f", Value: s.kv, JSONName: "motor_kv"},
		{Name: "kT", Format: "%f", Value: s.kt},
		{Name: "kLowGearRatio", Format: "%f", Value: p.GLow, JSONName: "low_gear_ratio"},
		{Name: "kHighGearRatio", Format: "%f", Value: p.GHigh, JSONName: "high_gear_ratio"},
		{Name: "kHighOutputRatio", Format: "%f", Value: p.GHigh * p.WheelRadius},
	}
}

func sq(v float64) float64 { return v * v }
