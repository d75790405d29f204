package hedge

import (
	"fmt"

	"github.com/yourusername/quantlink-pairs-engine/pkg/stats"
)

// ResidualWindow keeps recent residuals and normalizes the latest one.
type ResidualWindow struct {
	history    *stats.RollingHistory[float64]
	minSamples int
}

// NewResidualWindow creates a window of the given capacity that reports a
// z-score once it holds at least minSamples residuals.
func NewResidualWindow(capacity, minSamples int) (*ResidualWindow, error) {
	if minSamples <= 0 {
		minSamples = capacity
	}
	if minSamples < 2 || minSamples > capacity {
		return nil, fmt.Errorf("min samples %d must be in [2, %d]: %w", minSamples, capacity, ErrInvalidParameter)
	}
	h, err := stats.NewRollingHistory[float64](capacity)
	if err != nil {
		return nil, fmt.Errorf("residual window: %w", err)
	}
	return &ResidualWindow{history: h, minSamples: minSamples}, nil
}

// Push records a residual.
func (w *ResidualWindow) Push(residual float64) { w.history.Push(residual) }

// Len returns the number of stored residuals.
func (w *ResidualWindow) Len() int { return w.history.Len() }

// MinSamples returns the readiness threshold.
func (w *ResidualWindow) MinSamples() int { return w.minSamples }

// Ready reports whether enough residuals have been collected.
func (w *ResidualWindow) Ready() bool { return w.history.Len() >= w.minSamples }

// Stats returns mean and dispersion over every stored residual.
func (w *ResidualWindow) Stats() stats.RollingWindowStats {
	return stats.CalculateRollingStats(w.history.Values())
}

// ZScore normalizes residual against the window. ok is false until the
// window is ready and while its standard deviation is degenerate.
func (w *ResidualWindow) ZScore(residual float64) (float64, bool) {
	if !w.Ready() {
		return 0, false
	}
	return stats.ZScore(residual, w.Stats())
}

// Values returns the stored residuals, oldest first.
func (w *ResidualWindow) Values() []float64 { return w.history.Values() }

// Restore replaces the stored residuals.
func (w *ResidualWindow) Restore(values []float64) { w.history.Restore(values) }
