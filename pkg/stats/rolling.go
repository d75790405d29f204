// Package stats provides statistical functions and bounded rolling
// histories used by the signal and hedge components.
package stats

import (
	"math"
)

// Epsilon is the smallest standard deviation treated as non-degenerate.
const Epsilon = 1e-10

// RollingWindowStats holds the mean and dispersion of one window.
type RollingWindowStats struct {
	Mean     float64
	Std      float64
	Variance float64
	Count    int
}

// Degenerate reports whether the window cannot be used as a denominator.
func (s RollingWindowStats) Degenerate() bool {
	return s.Count < 2 || s.Std < Epsilon || math.IsNaN(s.Std)
}

// CalculateRollingStats computes population mean, variance and standard
// deviation of data in two passes.
func CalculateRollingStats(data []float64) RollingWindowStats {
	if len(data) == 0 {
		return RollingWindowStats{}
	}

	mean := Mean(data)

	var variance float64
	for _, val := range data {
		diff := val - mean
		variance += diff * diff
	}
	variance /= float64(len(data))

	return RollingWindowStats{
		Mean:     mean,
		Std:      math.Sqrt(variance),
		Variance: variance,
		Count:    len(data),
	}
}

// Mean returns the arithmetic mean, zero for empty input.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	var sum float64
	for _, val := range data {
		sum += val
	}
	return sum / float64(len(data))
}

// ZScore normalizes value against a window. ok is false when the window is
// degenerate, never ±Inf.
// z = (x - μ) / σ
func ZScore(value float64, s RollingWindowStats) (z float64, ok bool) {
	if s.Degenerate() {
		return 0, false
	}
	return (value - s.Mean) / s.Std, true
}

// LinearRegression fits y = slope*x + intercept by ordinary least squares.
// ok is false when x has no spread.
func LinearRegression(x, y []float64) (slope, intercept float64, ok bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, 0, false
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, denominator float64
	for i := range x {
		diffX := x[i] - meanX
		numerator += diffX * (y[i] - meanY)
		denominator += diffX * diffX
	}

	if denominator < Epsilon {
		return 0, meanY, false
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX
	return slope, intercept, true
}

// TrendLine regresses y against its sequential index 0..n-1.
func TrendLine(y []float64) (slope, intercept float64, ok bool) {
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	return LinearRegression(x, y)
}
