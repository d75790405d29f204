// Package indicators derives single-instrument trading signals from rolling
// quote histories: moving average crossover, linear trend and Aroon.
package indicators

import (
	"fmt"

	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
	"github.com/yourusername/quantlink-pairs-engine/pkg/stats"
)

// Bias is the directional call of the crossover signal.
type Bias int

const (
	BiasNone Bias = iota
	BiasBuy
	BiasSell
)

func (b Bias) String() string {
	switch b {
	case BiasBuy:
		return "buy"
	case BiasSell:
		return "sell"
	default:
		return "none"
	}
}

// SignalConfig holds the window lengths and confirmation switches.
type SignalConfig struct {
	SlowWindow   int
	FastWindow   int
	ConfirmTrend bool // linear forecast must agree with the bias
	ConfirmAroon bool // Aroon oscillator must agree with the bias
}

// Validate checks window lengths.
func (c SignalConfig) Validate() error {
	if c.SlowWindow <= 0 || c.FastWindow <= 0 {
		return fmt.Errorf("windows must be positive (slow=%d, fast=%d): %w", c.SlowWindow, c.FastWindow, ErrInvalidParameter)
	}
	if c.FastWindow > c.SlowWindow {
		return fmt.Errorf("fast window %d exceeds slow window %d: %w", c.FastWindow, c.SlowWindow, ErrInvalidParameter)
	}
	return nil
}

// Signal is the full single-instrument reading for one tick.
type Signal struct {
	SlowAverage float64
	FastAverage float64
	Bias        Bias

	// Auxiliary readings, not authoritative on their own.
	TrendSlope    float64
	TrendForecast float64
	TrendOK       bool
	Aroon         AroonReading
}

// SignalEngine computes Signals from a QuoteHistory.
type SignalEngine struct {
	cfg SignalConfig
}

// NewSignalEngine validates cfg and returns an engine.
func NewSignalEngine(cfg SignalConfig) (*SignalEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SignalEngine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *SignalEngine) Config() SignalConfig { return e.cfg }

// Evaluate reads the history against the current top of book. It returns
// ErrInsufficientData until both sides hold SlowWindow samples, and
// ErrNoQuote when the current book is one-sided.
func (e *SignalEngine) Evaluate(h *QuoteHistory, top market.BookTop) (Signal, error) {
	var sig Signal

	slow, err := h.CombinedMean(e.cfg.SlowWindow)
	if err != nil {
		return sig, err
	}
	fast, err := h.CombinedMean(e.cfg.FastWindow)
	if err != nil {
		return sig, err
	}
	if !top.TwoSided() {
		return sig, ErrNoQuote
	}
	sig.SlowAverage = slow
	sig.FastAverage = fast

	mids, err := h.MidPrices(e.cfg.SlowWindow)
	if err != nil {
		return sig, err
	}
	if slope, intercept, ok := stats.TrendLine(mids); ok {
		sig.TrendSlope = slope
		sig.TrendForecast = intercept + slope*float64(len(mids))
		sig.TrendOK = true
	}

	asks, err := h.AskPrices(e.cfg.SlowWindow)
	if err != nil {
		return sig, err
	}
	if sig.Aroon, err = Aroon(asks); err != nil {
		return sig, err
	}

	switch {
	case fast > float64(top.Ask.Price):
		sig.Bias = BiasBuy
	case fast < float64(top.Bid.Price):
		sig.Bias = BiasSell
	}
	sig.Bias = e.confirm(sig)

	return sig, nil
}

func (e *SignalEngine) confirm(sig Signal) Bias {
	if sig.Bias == BiasNone {
		return BiasNone
	}
	if e.cfg.ConfirmTrend {
		if !sig.TrendOK {
			return BiasNone
		}
		if sig.Bias == BiasBuy && sig.TrendSlope <= 0 {
			return BiasNone
		}
		if sig.Bias == BiasSell && sig.TrendSlope >= 0 {
			return BiasNone
		}
	}
	if e.cfg.ConfirmAroon {
		if sig.Bias == BiasBuy && !sig.Aroon.Bullish() {
			return BiasNone
		}
		if sig.Bias == BiasSell && !sig.Aroon.Bearish() {
			return BiasNone
		}
	}
	return sig.Bias
}
