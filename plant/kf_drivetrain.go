package plant

import (
	"github.com/milosgajdos/go-control/matrix"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const (
	// kfQEncoderUncertainty is the heading error process noise standard deviation in m/s
	kfQEncoderUncertainty = 2.0
	// kfRGyro is the gyro measurement noise standard deviation in rad/s
	kfRGyro = 1e-6
	// kfRAccelerometer is the accelerometer measurement noise standard deviation in g
	kfRAccelerometer = 7.0
	// gravity is the standard gravity in m/s^2
	gravity = 9.8
	// kfOutputs is the number of observer outputs, unmeasured outputs are zero rows
	kfOutputs = 4
)

// ErrorModel is a base design extended with unmodelled error states which an observer
// estimates from more measurements than the base design has.
type ErrorModel struct {
	// Design holds the extended continuous system and its discrete noise covariances.
	// Its controller tuning is unused: the base loop gain is extended instead.
	Design *Design
	// ErrorStates is the number of states appended to the base state
	ErrorStates int
	// Feedback is the gain the i-th error state is fed back to the i-th input with
	Feedback []float64
	// Measured is the number of leading rows of C the observer is corrected with.
	// The remaining rows are zero so the loop keeps a fixed number of outputs.
	Measured int
}

// KFDrivetrain returns the error model of the drivetrain observer in the given gear combination.
// The state is
//
//	[left position, left velocity, right position, right velocity,
//	 left voltage error, right voltage error, angular error]
//
// where the angular error is the difference between the turn rate the wheels report and
// the gyro turn rate. The positions are encoder positions not corrected for the heading error.
// The measurements are both encoder positions, the gyro turn rate and the forward acceleration
// if the robot has an IMU. Without an IMU the acceleration row is zero.
//
// In force mode the voltage error states are forces acting on each side and are fed back
// scaled by the force each side produces per volt.
//
// It returns error wrapping control.ErrConfig if any parameter is invalid.
func KFDrivetrain(p DrivetrainParams, leftLow, rightLow bool, opts ...Option) (*ErrorModel, error) {
	o := newOptions(opts...)

	if err := p.validate(); err != nil {
		return nil, err
	}

	s := newSides(p, leftLow, rightLow)
	a4, b4 := s.model()

	A := mat.NewDense(7, 7, nil)
	A.Slice(0, 4, 0, 4).(*mat.Dense).Copy(a4)
	qVoltage := p.KalmanQVoltage
	feedback := []float64{1, 1}
	if p.Force {
		A.Slice(0, 4, 4, 6).(*mat.Dense).Copy(mat.NewDense(4, 2, []float64{
			0, 0,
			s.mspl, s.msnl,
			0, 0,
			s.msnr, s.mspr,
		}))
		qVoltage *= s.mpl
		feedback = []float64{1 / s.mpl, 1 / s.mpr}
	} else {
		A.Slice(0, 4, 4, 6).(*mat.Dense).Copy(b4)
	}
	A.Set(0, 6, 1)
	A.Set(2, 6, -1)

	B := matrix.PadRows(b4, 7)

	rb := p.RobotRadius
	C := mat.NewDense(kfOutputs, 7, nil)
	C.Set(0, 0, 1)
	C.Set(1, 2, 1)
	C.Set(2, 1, -0.5/rb)
	C.Set(2, 3, 0.5/rb)
	D := mat.NewDense(kfOutputs, 2, nil)

	measured := 3
	R := matrix.DiagSym(sq(p.KalmanRPosition), sq(p.KalmanRPosition), sq(kfRGyro))
	if p.HasIMU {
		measured = kfOutputs
		for j := 0; j < 6; j++ {
			C.Set(3, j, 0.5*(A.At(1, j)+A.At(3, j))/gravity)
		}
		for j := 0; j < 2; j++ {
			D.Set(3, j, 0.5*(B.At(1, j)+B.At(3, j))/gravity)
		}
		R = matrix.DiagSym(sq(p.KalmanRPosition), sq(p.KalmanRPosition), sq(kfRGyro), sq(kfRAccelerometer))
	}

	kq, kv, kvolt := sq(p.KalmanQPos), sq(p.KalmanQVel), sq(qVoltage)
	umin, umax := limits(2, p.VoltageLimit)

	d := &Design{
		Name:               p.Name + GearName(leftLow, rightLow),
		A:                  A,
		B:                  B,
		C:                  C,
		D:                  D,
		Dt:                 p.Dt,
		KalmanQ:            matrix.DiagSym(kq, kv, kq, kv, kvolt, kvolt, sq(kfQEncoderUncertainty)),
		KalmanR:            R,
		UMin:               umin,
		UMax:               umax,
		EnableVoltageError: true,
		Motor:              p.Motor,
		OutputRatio:        s.gl * p.WheelRadius,
	}

	o.logger.Debug("kf drivetrain",
		zap.String("name", d.Name),
		zap.Bool("imu", p.HasIMU),
		zap.Bool("force", p.Force),
		zap.Float64s("feedback", feedback),
	)

	return &ErrorModel{
		Design:      d,
		ErrorStates: 3,
		Feedback:    feedback,
		Measured:    measured,
	}, nil
}
