package config

import (
	"fmt"
	"math"
)

// Validate fills defaults and checks the whole configuration.
func (c *Config) Validate() error {
	if c.System.Mode == "" {
		c.System.Mode = "replay"
	}
	if c.System.Mode != "live" && c.System.Mode != "replay" {
		return invalid("system.mode", "must be 'live' or 'replay', got %q", c.System.Mode)
	}

	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", "unknown level %q", c.Logging.Level)
	}
	return nil
}

func (f *FeedConfig) validate() error {
	switch f.Kind {
	case "":
		return nil
	case FeedKindNATS:
		if f.URL == "" {
			f.URL = DefaultNATSURL
		}
		if f.Subject == "" {
			return invalid("feed.subject", "required for nats feed")
		}
	case FeedKindWebSocket:
		if f.URL == "" {
			return invalid("feed.url", "required for websocket feed")
		}
	case FeedKindFile:
		if f.Path == "" {
			return invalid("feed.path", "required for file feed")
		}
	default:
		return invalid("feed.kind", "unknown feed %q", f.Kind)
	}
	return nil
}

// Validate fills engine defaults and rejects inconsistent settings. The
// returned error names the offending field and wraps ErrInvalidConfig.
func (ec *EngineConfig) Validate() error {
	if len(ec.Instruments) == 0 {
		return invalid("engine.instruments", "at least one instrument is required")
	}

	known := make(map[string]bool, len(ec.Instruments))
	for i := range ec.Instruments {
		ic := &ec.Instruments[i]
		path := fmt.Sprintf("engine.instruments[%d]", i)
		if ic.Symbol == "" {
			return invalid(path+".symbol", "required")
		}
		if known[ic.Symbol] {
			return invalid(path+".symbol", "duplicate symbol %q", ic.Symbol)
		}
		known[ic.Symbol] = true
		if err := ic.validate(path); err != nil {
			return err
		}
	}

	ids := make(map[string]bool, len(ec.Pairs)+len(ec.Baskets))
	for i := range ec.Pairs {
		pc := &ec.Pairs[i]
		path := fmt.Sprintf("engine.pairs[%d]", i)
		if pc.ID == "" {
			pc.ID = pc.Y + "/" + pc.X
		}
		if ids[pc.ID] {
			return invalid(path+".id", "duplicate id %q", pc.ID)
		}
		ids[pc.ID] = true
		if err := pc.validate(path, known); err != nil {
			return err
		}
	}

	for i := range ec.Baskets {
		bc := &ec.Baskets[i]
		path := fmt.Sprintf("engine.baskets[%d]", i)
		if bc.ID == "" {
			bc.ID = bc.Basket
		}
		if ids[bc.ID] {
			return invalid(path+".id", "duplicate id %q", bc.ID)
		}
		ids[bc.ID] = true
		if err := bc.validate(path, known); err != nil {
			return err
		}
	}
	return nil
}

func (ic *InstrumentConfig) validate(path string) error {
	if ic.Limit <= 0 {
		return invalid(path+".limit", "must be positive, got %d", ic.Limit)
	}
	if ic.SlowWindow <= 0 || ic.FastWindow <= 0 {
		return invalid(path, "windows must be positive (slow=%d, fast=%d)", ic.SlowWindow, ic.FastWindow)
	}
	if ic.FastWindow > ic.SlowWindow {
		return invalid(path+".fast_window", "%d exceeds slow_window %d", ic.FastWindow, ic.SlowWindow)
	}

	seen := make(map[string]bool, len(ic.Strategies))
	for j, s := range ic.Strategies {
		sp := fmt.Sprintf("%s.strategies[%d]", path, j)
		if seen[s] {
			return invalid(sp, "duplicate strategy %q", s)
		}
		seen[s] = true
		switch s {
		case StrategyTrend:
			tc := ic.Trend
			if tc.MaxSpread < 0 {
				return invalid(path+".trend.max_spread", "must not be negative")
			}
			if tc.ActiveFrom < 0 || tc.ActiveUntil < 0 {
				return invalid(path+".trend", "active_from and active_until must not be negative")
			}
			if tc.ActiveFrom > 0 && tc.ActiveUntil > 0 && tc.ActiveUntil <= tc.ActiveFrom {
				return invalid(path+".trend.active_until", "must be after active_from %d, got %d", tc.ActiveFrom, tc.ActiveUntil)
			}
		case StrategyMarketMaking:
			mm := ic.MarketMaking
			if mm.BaseSize <= 0 {
				return invalid(path+".market_making.base_size", "must be positive, got %d", mm.BaseSize)
			}
			if mm.SpreadThreshold < 0 || mm.Improve < 0 {
				return invalid(path+".market_making", "spread_threshold and improve must not be negative")
			}
		case StrategyFairValue:
			fv := ic.FairValue
			if !(fv.Price > 0) || math.IsInf(fv.Price, 0) {
				return invalid(path+".fair_value.price", "must be positive, got %v", fv.Price)
			}
			if !(fv.Edge >= 0) {
				return invalid(path+".fair_value.edge", "must not be negative, got %v", fv.Edge)
			}
		case StrategyObservation:
			oc := &ic.Observation
			if oc.Signal == "" {
				return invalid(path+".observation.signal", "required")
			}
			if !(oc.Threshold > 0) || math.IsInf(oc.Threshold, 0) {
				return invalid(path+".observation.threshold", "must be positive, got %v", oc.Threshold)
			}
			if oc.Levels == 0 {
				oc.Levels = DefaultSweepLevels
			}
			if oc.Levels < 1 {
				return invalid(path+".observation.levels", "must be at least 1, got %d", oc.Levels)
			}
		default:
			return invalid(sp, "unknown strategy %q", s)
		}
	}
	return nil
}

func (pc *PairConfig) validate(path string, known map[string]bool) error {
	if !known[pc.X] {
		return invalid(path+".x", "unknown symbol %q", pc.X)
	}
	if !known[pc.Y] {
		return invalid(path+".y", "unknown symbol %q", pc.Y)
	}
	if pc.X == pc.Y {
		return invalid(path, "x and y must differ")
	}

	if pc.Mode == "" {
		pc.Mode = HedgeModeKalman
	}
	switch pc.Mode {
	case HedgeModeKalman:
		if pc.Delta == 0 {
			pc.Delta = DefaultDelta
		}
		if pc.MeasurementNoise == 0 {
			pc.MeasurementNoise = DefaultMeasurementVar
		}
		if !(pc.Delta > 0 && pc.Delta < 1) {
			return invalid(path+".delta", "must be in (0, 1), got %v", pc.Delta)
		}
		if !(pc.MeasurementNoise > 0) {
			return invalid(path+".measurement_noise", "must be positive, got %v", pc.MeasurementNoise)
		}
	case HedgeModeFixed:
		if !(pc.FixedRatio > 0) {
			return invalid(path+".fixed_ratio", "must be positive, got %v", pc.FixedRatio)
		}
	default:
		return invalid(path+".mode", "unknown mode %q", pc.Mode)
	}

	if pc.ResidualWindow == 0 {
		pc.ResidualWindow = DefaultResidualWindow
	}
	if pc.ResidualWindow < 2 {
		return invalid(path+".residual_window", "must be at least 2, got %d", pc.ResidualWindow)
	}
	if pc.MinSamples == 0 {
		pc.MinSamples = pc.ResidualWindow
	}
	if pc.MinSamples < 2 || pc.MinSamples > pc.ResidualWindow {
		return invalid(path+".min_samples", "must be in [2, %d], got %d", pc.ResidualWindow, pc.MinSamples)
	}

	if !(pc.EntryZ > 0) {
		return invalid(path+".entry_z", "must be positive, got %v", pc.EntryZ)
	}
	if pc.ExitZ < 0 || pc.ExitZ >= pc.EntryZ {
		return invalid(path+".exit_z", "must be in [0, entry_z), got %v", pc.ExitZ)
	}
	if pc.MaxHoldTicks < 0 || pc.StopLoss < 0 || pc.TakeProfit < 0 {
		return invalid(path, "max_hold_ticks, stop_loss and take_profit must not be negative")
	}
	if pc.MaxOrderSize < 0 || pc.MaxLegSpread < 0 {
		return invalid(path, "max_order_size and max_leg_spread must not be negative")
	}
	return nil
}

func (bc *BasketConfig) validate(path string, known map[string]bool) error {
	if !known[bc.Basket] {
		return invalid(path+".basket", "unknown symbol %q", bc.Basket)
	}
	if len(bc.Components) == 0 {
		return invalid(path+".components", "at least one component is required")
	}
	seen := map[string]bool{bc.Basket: true}
	for j, c := range bc.Components {
		cp := fmt.Sprintf("%s.components[%d]", path, j)
		if !known[c.Symbol] {
			return invalid(cp+".symbol", "unknown symbol %q", c.Symbol)
		}
		if seen[c.Symbol] {
			return invalid(cp+".symbol", "symbol %q used twice", c.Symbol)
		}
		seen[c.Symbol] = true
		if c.Weight <= 0 {
			return invalid(cp+".weight", "must be positive, got %d", c.Weight)
		}
	}
	if bc.MaxSpread < 0 {
		return invalid(path+".max_spread", "must not be negative")
	}
	return nil
}
