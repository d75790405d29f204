package hedge

import (
	"fmt"
	"math"
)

// FixedRatio uses a pre-calibrated hedge ratio: ŷ = ratio*x + intercept.
type FixedRatio struct {
	ratio     float64
	intercept float64
}

// NewFixedRatio creates a fixed-ratio estimator. The ratio must be positive.
func NewFixedRatio(ratio, intercept float64) (*FixedRatio, error) {
	if !(ratio > 0) || math.IsInf(ratio, 0) {
		return nil, fmt.Errorf("fixed ratio %v must be positive: %w", ratio, ErrInvalidParameter)
	}
	return &FixedRatio{ratio: ratio, intercept: intercept}, nil
}

// Mode implements Estimator.
func (f *FixedRatio) Mode() Mode { return ModeFixed }

// Step implements Estimator.
func (f *FixedRatio) Step(x, y float64) Estimate {
	predicted := f.ratio*x + f.intercept
	return Estimate{
		Slope:     f.ratio,
		Intercept: f.intercept,
		Predicted: predicted,
		Residual:  y - predicted,
	}
}

// State implements Estimator.
func (f *FixedRatio) State() State {
	return State{Slope: f.ratio, Intercept: f.intercept}
}

// Restore implements Estimator. The calibrated ratio comes from
// configuration, so a checkpoint that disagrees with it is rejected.
func (f *FixedRatio) Restore(s State) error {
	if s.Slope != f.ratio || s.Intercept != f.intercept {
		return fmt.Errorf("checkpoint ratio %v/%v does not match configured %v/%v: %w",
			s.Slope, s.Intercept, f.ratio, f.intercept, ErrInvalidParameter)
	}
	return nil
}
