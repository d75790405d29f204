package indicators

// AroonReading is one evaluation of the Aroon indicator.
//
// Aroon identifies trend strength and direction by measuring the time
// elapsed since the highest high and lowest low of the window:
//
//	Aroon Up   = 100 × (period - periods since highest high) / period
//	Aroon Down = 100 × (period - periods since lowest low) / period
//	Oscillator = Aroon Up - Aroon Down
//
// Up and Down are bounded to [0, 100], the oscillator to [-100, 100].
type AroonReading struct {
	Up         float64
	Down       float64
	Oscillator float64
}

// Bullish reports whether the up component dominates.
func (a AroonReading) Bullish() bool { return a.Oscillator > 0 }

// Bearish reports whether the down component dominates.
func (a AroonReading) Bearish() bool { return a.Oscillator < 0 }

// Aroon evaluates the indicator over prices (oldest first). Ties resolve to
// the most recent extreme.
func Aroon(prices []float64) (AroonReading, error) {
	period := len(prices)
	if period == 0 {
		return AroonReading{}, ErrInsufficientData
	}

	highestIdx, lowestIdx := 0, 0
	for i := 1; i < period; i++ {
		if prices[i] >= prices[highestIdx] {
			highestIdx = i
		}
		if prices[i] <= prices[lowestIdx] {
			lowestIdx = i
		}
	}
	periodsSinceHigh := period - 1 - highestIdx
	periodsSinceLow := period - 1 - lowestIdx

	up := 100.0 * float64(period-periodsSinceHigh) / float64(period)
	down := 100.0 * float64(period-periodsSinceLow) / float64(period)

	return AroonReading{Up: up, Down: down, Oscillator: up - down}, nil
}
