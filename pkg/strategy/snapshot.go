package strategy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-pairs-engine/pkg/hedge"
	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
)

// EngineSnapshot is the full carried state of an Engine: quote histories,
// hedge estimator and residual windows, and pair states.
type EngineSnapshot struct {
	Tick        int64                         `json:"tick"`
	Instruments map[string]InstrumentSnapshot `json:"instruments"`
	Pairs       map[string]PairSnapshot       `json:"pairs"`
}

// InstrumentSnapshot holds one quote history, oldest first, and the
// observation latch when the instrument runs one.
type InstrumentSnapshot struct {
	Asks        []market.Level       `json:"asks"`
	Bids        []market.Level       `json:"bids"`
	Mids        []float64            `json:"mids,omitempty"`
	Observation *ObservationSnapshot `json:"observation,omitempty"`
}

// PairSnapshot holds the estimator and state machine of one pair.
type PairSnapshot struct {
	Hedge   hedge.Snapshot  `json:"hedge"`
	Machine MachineSnapshot `json:"machine"`
}

// Snapshot captures the engine state between ticks.
func (e *Engine) Snapshot() EngineSnapshot {
	s := EngineSnapshot{
		Tick:        e.tick,
		Instruments: make(map[string]InstrumentSnapshot, len(e.instruments)),
		Pairs:       make(map[string]PairSnapshot, len(e.pairs)),
	}
	for _, inst := range e.instruments {
		is := InstrumentSnapshot{
			Asks: inst.history.Asks.Values(),
			Bids: inst.history.Bids.Values(),
			Mids: inst.history.Mids.Values(),
		}
		if inst.latch != nil {
			is.Observation = inst.latch.snapshot()
		}
		s.Instruments[inst.cfg.Symbol] = is
	}
	for _, p := range e.pairs {
		s.Pairs[p.cfg.ID] = PairSnapshot{
			Hedge:   p.tracker.Snapshot(),
			Machine: p.machine.Snapshot(),
		}
	}
	return s
}

// Restore loads a snapshot. Instruments and pairs absent from the snapshot
// keep their fresh state; entries for unknown symbols or ids are skipped.
// Every pair is restored into fresh state first, so a rejected snapshot
// leaves the engine untouched.
func (e *Engine) Restore(s EngineSnapshot) error {
	type staged struct {
		target  *pair
		tracker *hedge.Tracker
		machine *PairStateMachine
	}
	pairs := make([]staged, 0, len(s.Pairs))
	for id, ps := range s.Pairs {
		target := e.pair(id)
		if target == nil {
			e.log.Warn("[Engine] snapshot pair not configured", zap.String("pair", id))
			continue
		}
		tr, m, err := newPairState(target.cfg)
		if err != nil {
			return fmt.Errorf("restore pair %s: %w", id, err)
		}
		if err := tr.Restore(ps.Hedge); err != nil {
			return fmt.Errorf("restore pair %s: %w", id, err)
		}
		if err := m.Restore(ps.Machine); err != nil {
			return fmt.Errorf("restore pair %s: %w", id, err)
		}
		pairs = append(pairs, staged{target: target, tracker: tr, machine: m})
	}

	for symbol, is := range s.Instruments {
		inst, ok := e.bySymbol[symbol]
		if !ok {
			e.log.Warn("[Engine] snapshot instrument not configured", zap.String("symbol", symbol))
			continue
		}
		inst.history.Asks.Restore(is.Asks)
		inst.history.Bids.Restore(is.Bids)
		inst.history.Mids.Restore(is.Mids)
		if inst.latch != nil {
			inst.latch.restore(is.Observation)
		}
	}
	for _, st := range pairs {
		st.target.tracker = st.tracker
		st.target.machine = st.machine
	}

	e.tick = s.Tick
	e.log.Info("[Engine] state restored",
		zap.Int64("tick", e.tick),
		zap.Int("instruments", len(s.Instruments)),
		zap.Int("pairs", len(pairs)))
	return nil
}
