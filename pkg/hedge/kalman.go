package hedge

import (
	"fmt"
	"math"
)

// KalmanFilter tracks (slope, intercept) as a random walk observed through
// y = [x, 1]·state + noise.
type KalmanFilter struct {
	q float64 // diagonal of Q
	r float64

	slope     float64
	intercept float64
	p         [2][2]float64
}

// NewKalmanFilter creates a filter with zero initial state and covariance.
func NewKalmanFilter(delta, measurementNoise float64) (*KalmanFilter, error) {
	if !(delta > 0 && delta < 1) {
		return nil, fmt.Errorf("delta %v must be in (0, 1): %w", delta, ErrInvalidParameter)
	}
	if !(measurementNoise > 0) || math.IsInf(measurementNoise, 0) {
		return nil, fmt.Errorf("measurement noise %v must be positive: %w", measurementNoise, ErrInvalidParameter)
	}
	return &KalmanFilter{
		q: delta / (1 - delta),
		r: measurementNoise,
	}, nil
}

// Mode implements Estimator.
func (k *KalmanFilter) Mode() Mode { return ModeKalman }

// Step runs one predict/update cycle.
func (k *KalmanFilter) Step(x, y float64) Estimate {
	// predict: state unchanged, covariance inflated by Q
	p00 := k.p[0][0] + k.q
	p01 := k.p[0][1]
	p10 := k.p[1][0]
	p11 := k.p[1][1] + k.q

	// H = [x, 1]
	predicted := x*k.slope + k.intercept
	innovation := y - predicted

	// P̂·Hᵀ
	ph0 := p00*x + p01
	ph1 := p10*x + p11
	// H·P̂·Hᵀ + R
	s := x*ph0 + ph1 + k.r

	k0 := ph0 / s
	k1 := ph1 / s

	k.slope += k0 * innovation
	k.intercept += k1 * innovation

	// (I - K·H)·P̂
	k.p[0][0] = (1-k0*x)*p00 - k0*p10
	k.p[0][1] = (1-k0*x)*p01 - k0*p11
	k.p[1][0] = -k1*x*p00 + (1-k1)*p10
	k.p[1][1] = -k1*x*p01 + (1-k1)*p11

	return Estimate{
		Slope:     k.slope,
		Intercept: k.intercept,
		Predicted: predicted,
		Residual:  innovation,
	}
}

// State implements Estimator.
func (k *KalmanFilter) State() State {
	return State{Slope: k.slope, Intercept: k.intercept, Covariance: k.p}
}

// Restore implements Estimator.
func (k *KalmanFilter) Restore(s State) error {
	for _, row := range s.Covariance {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("covariance is not finite: %w", ErrInvalidParameter)
			}
		}
	}
	k.slope = s.Slope
	k.intercept = s.Intercept
	k.p = s.Covariance
	return nil
}
