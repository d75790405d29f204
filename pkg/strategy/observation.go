package strategy

import (
	"go.uber.org/zap"

	"github.com/yourusername/quantlink-pairs-engine/pkg/config"
	"github.com/yourusername/quantlink-pairs-engine/pkg/indicators"
	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
)

// observationLatch trades an instrument on jumps in an external series. A
// change of at least the threshold latches a direction, and the latch keeps
// sweeping the book on later ticks until a sweep comes back empty.
type observationLatch struct {
	cfg  config.ObservationConfig
	last float64
	seen bool
	bias indicators.Bias
}

// ObservationSnapshot is the carried state of an observation latch.
type ObservationSnapshot struct {
	Last float64         `json:"last"`
	Seen bool            `json:"seen"`
	Bias indicators.Bias `json:"bias"`
}

func newObservationLatch(cfg config.ObservationConfig) *observationLatch {
	return &observationLatch{cfg: cfg}
}

// observe folds in this tick's value. The first value only sets the
// baseline.
func (l *observationLatch) observe(v float64) {
	if l.seen {
		switch delta := v - l.last; {
		case delta >= l.cfg.Threshold:
			l.bias = indicators.BiasBuy
		case delta <= -l.cfg.Threshold:
			l.bias = indicators.BiasSell
		}
	}
	l.last, l.seen = v, true
}

func (l *observationLatch) step(symbol string, in market.TickInput, p *Planner, log *zap.Logger) {
	if v, ok := in.Observations[l.cfg.Signal]; ok {
		l.observe(v)
	}
	if l.bias == indicators.BiasNone {
		return
	}

	orders := p.Sweep(symbol, l.bias == indicators.BiasBuy, l.cfg.Levels)
	if len(orders) == 0 {
		log.Info("observation latch released", zap.Stringer("bias", l.bias), zap.Float64("last", l.last))
		l.bias = indicators.BiasNone
		return
	}
	log.Info("observation sweep",
		zap.Stringer("bias", l.bias),
		zap.String("signal", l.cfg.Signal),
		zap.Float64("value", l.last),
		zap.Int("orders", len(orders)))
}

func (l *observationLatch) snapshot() *ObservationSnapshot {
	return &ObservationSnapshot{Last: l.last, Seen: l.seen, Bias: l.bias}
}

func (l *observationLatch) restore(s *ObservationSnapshot) {
	if s == nil {
		return
	}
	l.last, l.seen, l.bias = s.Last, s.Seen, s.Bias
}
