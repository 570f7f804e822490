package control

import "gonum.org/v1/gonum/mat"

// Model is a linear time-invariant model of a plant sampled at a fixed interval.
type Model interface {
	// Name returns the model name
	Name() string
	// Dt returns the sample interval in seconds
	Dt() float64
	// SystemDims returns state, input and output vector lengths
	SystemDims() (nx, nu, ny int)
	// ContinuousStateMatrix returns continuous-time state matrix
	ContinuousStateMatrix() mat.Matrix
	// ContinuousCtlMatrix returns continuous-time control matrix
	ContinuousCtlMatrix() mat.Matrix
	// StateMatrix returns discrete state propagation matrix
	StateMatrix() mat.Matrix
	// StateCtlMatrix returns discrete state propagation control matrix
	StateCtlMatrix() mat.Matrix
	// OutputMatrix returns observation matrix
	OutputMatrix() mat.Matrix
	// OutputCtlMatrix returns observation control (feedthrough) matrix
	OutputCtlMatrix() mat.Matrix
}

// Controller is a state feedback controller.
type Controller interface {
	// Gain returns the feedback gain K
	Gain() mat.Matrix
	// FeedForwardGain returns the open-loop feed-forward gain Kff
	FeedForwardGain() mat.Matrix
}

// Observer is a steady-state state estimator.
type Observer interface {
	// KalmanGain returns the measurement update gain
	KalmanGain() mat.Matrix
	// PredictorGain returns the observer gain L = A*KalmanGain
	PredictorGain() mat.Matrix
	// Cov returns steady-state estimate covariance
	Cov() mat.Symmetric
	// NoiseCov returns the process and measurement noise covariances
	NoiseCov() (q, r mat.Symmetric)
	// ContinuousNoiseCov returns the continuous-time equivalents of NoiseCov
	ContinuousNoiseCov() (q, r mat.Symmetric)
}

// Loop is a synthesized control loop: a model together with its
// controller, observer and actuator limits.
type Loop interface {
	Model
	Controller
	Observer
	// InputLimits returns the minimum and maximum allowed input
	InputLimits() (min, max mat.Vector)
	// WrapPoint returns the position wrap point or 0 if position does not wrap
	WrapPoint() float64
	// DelayedU returns the number of samples the input is delayed by
	DelayedU() int
}

// Noise is a source of random noise.
type Noise interface {
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Cov returns noise covariance matrix
	Cov() mat.Symmetric
	// Mean returns noise mean
	Mean() []float64
	// Reset resets the noise source
	Reset() error
}

// Estimate is a state estimate.
type Estimate interface {
	// Val returns estimated value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// InitCond is an initial condition of an observer.
type InitCond interface {
	// State returns initial state
	State() mat.Vector
	// Cov returns initial state covariance
	Cov() mat.Symmetric
}
