package hedge

import (
	"fmt"

	"github.com/yourusername/quantlink-pairs-engine/pkg/stats"
)

// Reading is the pair signal produced on one tick.
type Reading struct {
	Estimate
	ZScore       float64
	Ready        bool
	ResidualMean float64
	ResidualStd  float64
	Samples      int
}

// UnitsPerLeg returns how many units of Y hedge one unit of X. ok is false
// while the slope is non-positive or too small to invert.
func (r Reading) UnitsPerLeg() (float64, bool) {
	if !(r.Slope > stats.Epsilon) {
		return 0, false
	}
	return 1 / r.Slope, true
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Params
	Window     int
	MinSamples int
}

// Tracker runs an Estimator and feeds its residuals into a ResidualWindow.
// The downstream contract is the same for both estimator modes.
type Tracker struct {
	estimator Estimator
	residuals *ResidualWindow
	last      Reading
	steps     int64
}

// NewTracker builds the estimator and residual window from cfg.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	est, err := New(cfg.Params)
	if err != nil {
		return nil, err
	}
	win, err := NewResidualWindow(cfg.Window, cfg.MinSamples)
	if err != nil {
		return nil, err
	}
	return &Tracker{estimator: est, residuals: win}, nil
}

// Update steps the estimator with mid prices x and y, records the residual
// and returns the normalized reading. The current residual is part of the
// window it is normalized against.
func (t *Tracker) Update(x, y float64) Reading {
	est := t.estimator.Step(x, y)
	t.residuals.Push(est.Residual)
	t.steps++

	r := Reading{Estimate: est, Samples: t.residuals.Len()}
	s := t.residuals.Stats()
	r.ResidualMean = s.Mean
	r.ResidualStd = s.Std
	r.ZScore, r.Ready = t.residuals.ZScore(est.Residual)

	t.last = r
	return r
}

// Last returns the most recent reading.
func (t *Tracker) Last() Reading { return t.last }

// Steps returns how many observations the tracker has consumed.
func (t *Tracker) Steps() int64 { return t.steps }

// Snapshot is the checkpointable tracker state.
type Snapshot struct {
	Mode      Mode      `json:"mode"`
	State     State     `json:"state"`
	Residuals []float64 `json:"residuals"`
	Steps     int64     `json:"steps"`
}

// Snapshot captures estimator state and residual window contents.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Mode:      t.estimator.Mode(),
		State:     t.estimator.State(),
		Residuals: t.residuals.Values(),
		Steps:     t.steps,
	}
}

// Restore loads a snapshot taken from a tracker of the same mode.
func (t *Tracker) Restore(s Snapshot) error {
	if s.Mode != t.estimator.Mode() {
		return fmt.Errorf("snapshot mode %q does not match %q: %w", s.Mode, t.estimator.Mode(), ErrInvalidParameter)
	}
	if err := t.estimator.Restore(s.State); err != nil {
		return err
	}
	t.residuals.Restore(s.Residuals)
	t.steps = s.Steps
	t.last = Reading{}
	return nil
}
