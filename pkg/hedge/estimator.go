// Package hedge estimates the linear relation price_Y ≈ slope*price_X + intercept
// between two correlated instruments and normalizes the residual into a
// z-score for the pair state machine.
package hedge

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is returned for out-of-range estimator parameters
var ErrInvalidParameter = errors.New("invalid hedge parameter")

// Mode selects the estimator variant.
type Mode string

const (
	ModeKalman Mode = "kalman"
	ModeFixed  Mode = "fixed"
)

// Estimate is the output of one estimator step.
type Estimate struct {
	Slope     float64 // hedge ratio after the update
	Intercept float64
	Predicted float64 // fair value of Y given X, before the update
	Residual  float64 // observed Y minus Predicted
}

// Estimator turns (x, y) mid-price observations into a fair value for Y.
// Implementations are deterministic: the same observation sequence from the
// same initial state yields bit-identical estimates.
type Estimator interface {
	Step(x, y float64) Estimate
	State() State
	Restore(State) error
	Mode() Mode
}

// State is the checkpointable estimator state.
type State struct {
	Slope      float64       `json:"slope"`
	Intercept  float64       `json:"intercept"`
	Covariance [2][2]float64 `json:"covariance"`
}

// Params configures an estimator.
type Params struct {
	Mode             Mode
	Delta            float64 // process drift, Q = Delta/(1-Delta)*I
	MeasurementNoise float64 // R
	FixedRatio       float64
	FixedIntercept   float64
}

// New builds the estimator selected by p.Mode.
func New(p Params) (Estimator, error) {
	switch p.Mode {
	case ModeKalman, "":
		return NewKalmanFilter(p.Delta, p.MeasurementNoise)
	case ModeFixed:
		return NewFixedRatio(p.FixedRatio, p.FixedIntercept)
	default:
		return nil, fmt.Errorf("unknown hedge mode %q: %w", p.Mode, ErrInvalidParameter)
	}
}
