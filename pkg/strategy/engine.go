// Package strategy turns per-tick order book snapshots into order batches:
// single-instrument signals, pair and basket arbitrage, passive quoting,
// all bounded by a shared per-tick exposure ledger.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourusername/quantlink-pairs-engine/pkg/config"
	"github.com/yourusername/quantlink-pairs-engine/pkg/hedge"
	"github.com/yourusername/quantlink-pairs-engine/pkg/indicators"
	"github.com/yourusername/quantlink-pairs-engine/pkg/logging"
	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
)

// Engine owns every instrument, pair and basket and processes ticks in
// configuration order. It is not safe for concurrent use.
type Engine struct {
	cfg         config.EngineConfig
	instruments []*instrument
	bySymbol    map[string]*instrument
	pairs       []*pair
	baskets     []*basket
	limits      map[string]int64

	tick   int64
	report Report

	log      *zap.Logger
	recorder Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine validates cfg and builds all per-instrument and per-pair state.
func NewEngine(cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		bySymbol: make(map[string]*instrument, len(cfg.Instruments)),
		limits:   make(map[string]int64, len(cfg.Instruments)),
		log:      zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, ic := range cfg.Instruments {
		inst, err := newInstrument(ic, e.log)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", ic.Symbol, err)
		}
		e.instruments = append(e.instruments, inst)
		e.bySymbol[ic.Symbol] = inst
		e.limits[ic.Symbol] = ic.Limit
	}
	for _, pc := range cfg.Pairs {
		p, err := newPair(pc, e.log)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", pc.ID, err)
		}
		e.pairs = append(e.pairs, p)
	}
	for _, bc := range cfg.Baskets {
		e.baskets = append(e.baskets, newBasket(bc, e.log))
	}

	e.log.Info("[Engine] initialized",
		zap.Int("instruments", len(e.instruments)),
		zap.Int("pairs", len(e.pairs)),
		zap.Int("baskets", len(e.baskets)))
	return e, nil
}

// Config returns the validated configuration.
func (e *Engine) Config() config.EngineConfig { return e.cfg }

// Tick returns the number of ticks processed.
func (e *Engine) Tick() int64 { return e.tick }

// LastReport returns diagnostics for the most recent tick.
func (e *Engine) LastReport() Report { return e.report }

// PairState returns the committed state of a pair.
func (e *Engine) PairState(id string) (PairState, bool) {
	if p := e.pair(id); p != nil {
		return p.machine.State(), true
	}
	return PairFlat, false
}

func (e *Engine) pair(id string) *pair {
	for _, p := range e.pairs {
		if p.cfg.ID == id {
			return p
		}
	}
	return nil
}

// OnTick records the snapshot into every history, runs all strategies and
// returns the orders for this tick. An empty batch is a valid result.
func (e *Engine) OnTick(in market.TickInput) market.OrderBatch {
	e.tick++
	e.recorder.Tick()
	e.report = Report{
		Tick:      e.tick,
		Timestamp: in.Timestamp,
		Signals:   make(map[string]indicators.Signal),
		Pairs:     make(map[string]PairReport),
	}

	tops := make(map[string]market.BookTop, len(e.instruments))
	for _, inst := range e.instruments {
		depth, ok := in.Depths[inst.cfg.Symbol]
		if !ok {
			continue
		}
		top := depth.Top()
		tops[inst.cfg.Symbol] = top
		inst.history.Update(top)
	}

	planner := NewPlanner(in, e.limits)

	for _, inst := range e.instruments {
		top, ok := tops[inst.cfg.Symbol]
		if !ok {
			continue
		}
		inst.step(in, planner, top, &e.report)
	}
	for _, p := range e.pairs {
		p.step(e.tick, planner, tops, e.recorder, &e.report)
	}
	for _, b := range e.baskets {
		b.step(planner, tops)
	}

	batch := planner.Orders()
	for _, inst := range e.instruments {
		for _, o := range batch[inst.cfg.Symbol] {
			e.recorder.Order(o.Symbol, o.Side(), o.Quantity)
			e.log.Debug("[Engine] order", zap.Int64("tick", e.tick), zap.Stringer("order", o))
		}
	}
	e.report.Orders = batch.Count()
	return batch
}

// Report is the per-tick diagnostic view of the engine.
type Report struct {
	Tick      int64
	Timestamp int64
	Signals   map[string]indicators.Signal
	Pairs     map[string]PairReport
	Orders    int
}

// PairReport is the per-tick diagnostic view of one pair.
type PairReport struct {
	hedge.Reading
	Tradable bool // z ready and slope invertible
	State    PairState
	Decision Decision
	PnL      decimal.Decimal
}

type instrument struct {
	cfg     config.InstrumentConfig
	history *indicators.QuoteHistory
	signals *indicators.SignalEngine
	latch   *observationLatch // nil unless the observation strategy is on
	log     *zap.Logger
}

func newInstrument(ic config.InstrumentConfig, base *zap.Logger) (*instrument, error) {
	h, err := indicators.NewQuoteHistory(ic.SlowWindow)
	if err != nil {
		return nil, err
	}
	se, err := indicators.NewSignalEngine(indicators.SignalConfig{
		SlowWindow:   ic.SlowWindow,
		FastWindow:   ic.FastWindow,
		ConfirmTrend: ic.Trend.ConfirmTrend,
		ConfirmAroon: ic.Trend.ConfirmAroon,
	})
	if err != nil {
		return nil, err
	}
	inst := &instrument{
		cfg:     ic,
		history: h,
		signals: se,
		log:     logging.Component(base, "Instrument", ic.Symbol),
	}
	if ic.HasStrategy(config.StrategyObservation) {
		inst.latch = newObservationLatch(ic.Observation)
	}
	return inst, nil
}

func (inst *instrument) step(in market.TickInput, p *Planner, top market.BookTop, report *Report) {
	symbol := inst.cfg.Symbol
	for _, name := range inst.cfg.Strategies {
		switch name {
		case config.StrategyTrend:
			inst.trend(in.Timestamp, p, top, report)
		case config.StrategyMarketMaking:
			mm := inst.cfg.MarketMaking
			p.Quote(symbol, QuoteParams{
				SpreadThreshold: mm.SpreadThreshold,
				BaseSize:        mm.BaseSize,
				Improve:         mm.Improve,
				MinClip:         mm.MinClip,
			})
		case config.StrategyFairValue:
			p.FairValue(symbol, inst.cfg.FairValue.Price, inst.cfg.FairValue.Edge)
		case config.StrategyObservation:
			inst.latch.step(symbol, in, p, inst.log)
		}
	}
}

func (inst *instrument) trend(ts int64, p *Planner, top market.BookTop, report *Report) {
	sig, err := inst.signals.Evaluate(inst.history, top)
	if err != nil {
		inst.log.Debug("signal unavailable", zap.Error(err), zap.Int("history", inst.history.Len()))
		return
	}
	report.Signals[inst.cfg.Symbol] = sig
	if sig.Bias == indicators.BiasNone {
		return
	}
	if !inst.cfg.Trend.Active(ts) {
		inst.log.Debug("outside trading window", zap.Int64("timestamp", ts), zap.Error(ErrGateClosed))
		return
	}
	if limit := inst.cfg.Trend.MaxSpread; limit > 0 {
		if spread, ok := top.Spread(); !ok || spread > limit {
			inst.log.Debug("directional order gated", zap.Int64("spread", spread), zap.Error(ErrGateClosed))
			return
		}
	}

	o, err := p.Directional(inst.cfg.Symbol, sig.Bias == indicators.BiasBuy)
	if err != nil {
		inst.log.Debug("no directional order", zap.Stringer("bias", sig.Bias), zap.Error(err))
		return
	}
	inst.log.Info("directional order",
		zap.Stringer("order", o),
		zap.Float64("fast", sig.FastAverage),
		zap.Float64("slow", sig.SlowAverage))
}

type pair struct {
	cfg     config.PairConfig
	tracker *hedge.Tracker
	machine *PairStateMachine
	log     *zap.Logger
}

func newPair(pc config.PairConfig, base *zap.Logger) (*pair, error) {
	tr, m, err := newPairState(pc)
	if err != nil {
		return nil, err
	}
	log := logging.Component(base, "Pair", pc.ID)
	log.Info("initialized",
		zap.String("x", pc.X), zap.String("y", pc.Y), zap.String("mode", pc.Mode),
		zap.Float64("entry_z", pc.EntryZ), zap.Float64("exit_z", pc.ExitZ))
	return &pair{cfg: pc, tracker: tr, machine: m, log: log}, nil
}

// newPairState builds a fresh tracker and state machine for pc.
func newPairState(pc config.PairConfig) (*hedge.Tracker, *PairStateMachine, error) {
	tr, err := hedge.NewTracker(hedge.TrackerConfig{
		Params: hedge.Params{
			Mode:             hedge.Mode(pc.Mode),
			Delta:            pc.Delta,
			MeasurementNoise: pc.MeasurementNoise,
			FixedRatio:       pc.FixedRatio,
			FixedIntercept:   pc.FixedIntercept,
		},
		Window:     pc.ResidualWindow,
		MinSamples: pc.MinSamples,
	})
	if err != nil {
		return nil, nil, err
	}
	m, err := NewPairStateMachine(PairThresholds{
		EntryZ:       pc.EntryZ,
		ExitZ:        pc.ExitZ,
		MaxHoldTicks: pc.MaxHoldTicks,
		StopLoss:     decimal.NewFromFloat(pc.StopLoss),
		TakeProfit:   decimal.NewFromFloat(pc.TakeProfit),
		AllowScaleIn: pc.AllowScaleIn,
	})
	if err != nil {
		return nil, nil, err
	}
	return tr, m, nil
}

func (pr *pair) step(tick int64, p *Planner, tops map[string]market.BookTop, rec Recorder, report *Report) {
	id := pr.cfg.ID
	midX, okX := tops[pr.cfg.X].Mid()
	midY, okY := tops[pr.cfg.Y].Mid()
	if !okX || !okY {
		rec.PairReading(id, 0, false)
		report.Pairs[id] = PairReport{State: pr.machine.State()}
		return
	}

	r := pr.tracker.Update(midX, midY)
	units, slopeOK := r.UnitsPerLeg()
	rec.PairReading(id, r.ZScore, r.Ready)

	// Exits only need a z-score; a non-invertible slope blocks sizing new
	// exposure, never flattening the old one.
	exp := p.Exposure()
	pnl := pr.machine.UnrealizedPnL(exp.Position(pr.cfg.X), exp.Position(pr.cfg.Y), midX, midY)
	d := pr.machine.Evaluate(tick, r.ZScore, r.Ready, pnl)
	report.Pairs[id] = PairReport{Reading: r, Tradable: r.Ready && slopeOK, State: pr.machine.State(), Decision: d, PnL: pnl}

	switch d.Action {
	case ActionEnter, ActionScaleIn:
		if !slopeOK {
			pr.log.Debug("entry not sized", zap.Float64("z", r.ZScore), zap.Float64("slope", r.Slope), zap.Error(ErrSlopeNotInvertible))
			return
		}
		if err := pr.checkLegSpreads(tops); err != nil {
			pr.log.Debug("entry gated", zap.Float64("z", r.ZScore), zap.Error(err))
			return
		}
		orders, err := p.PairEntry(PairOrder{
			X:         pr.cfg.X,
			Y:         pr.cfg.Y,
			Direction: d.Target,
			UnitsPerX: units,
			MaxY:      pr.cfg.MaxOrderSize,
		})
		if err != nil {
			pr.log.Debug("entry not sized", zap.Float64("z", r.ZScore), zap.Error(err))
			return
		}
		if d.Action == ActionEnter {
			from := pr.machine.State()
			if err := pr.machine.Enter(d.Target, tick, midX, midY); err != nil {
				pr.log.Error("enter failed", zap.Error(err))
				return
			}
			rec.Transition(id, from.String(), d.Target.String(), d.Reason.String())
		}
		pr.log.Info("entering spread",
			zap.Stringer("direction", d.Target),
			zap.Stringer("action", d.Action),
			zap.Float64("z", r.ZScore),
			zap.Float64("slope", r.Slope),
			zap.Stringer("leg_y", orders[0]),
			zap.Stringer("leg_x", orders[1]))

	case ActionExit:
		_, _, remX := p.Flatten(pr.cfg.X)
		_, _, remY := p.Flatten(pr.cfg.Y)
		from := pr.machine.State()
		held := pr.machine.HeldTicks(tick)
		if remX == 0 && remY == 0 {
			pr.machine.Exit()
			rec.Transition(id, from.String(), PairFlat.String(), d.Reason.String())
			pr.log.Info("exiting spread",
				zap.Stringer("reason", d.Reason),
				zap.Float64("z", r.ZScore),
				zap.String("pnl", pnl.String()),
				zap.Int64("held", held))
			return
		}
		pr.machine.BeginExit(d.Reason)
		pr.log.Info("partial flatten",
			zap.Stringer("reason", d.Reason),
			zap.Int64("remaining_x", remX),
			zap.Int64("remaining_y", remY))
	}
}

func (pr *pair) checkLegSpreads(tops map[string]market.BookTop) error {
	limit := pr.cfg.MaxLegSpread
	if limit <= 0 {
		return nil
	}
	for _, sym := range []string{pr.cfg.X, pr.cfg.Y} {
		spread, ok := tops[sym].Spread()
		if !ok || spread > limit {
			return fmt.Errorf("%s spread %d above %d: %w", sym, spread, limit, ErrGateClosed)
		}
	}
	return nil
}

type basket struct {
	cfg  config.BasketConfig
	legs []BasketLeg
	log  *zap.Logger
}

func newBasket(bc config.BasketConfig, base *zap.Logger) *basket {
	legs := make([]BasketLeg, len(bc.Components))
	for i, c := range bc.Components {
		legs[i] = BasketLeg{Symbol: c.Symbol, Weight: c.Weight}
	}
	return &basket{cfg: bc, legs: legs, log: logging.Component(base, "Basket", bc.ID)}
}

// step compares the basket against its weighted components:
// sell when bid(basket) - Σw·ask(leg) > sell threshold,
// buy when ask(basket) - Σw·bid(leg) < buy threshold.
func (b *basket) step(p *Planner, tops map[string]market.BookTop) {
	top, ok := tops[b.cfg.Basket]
	if !ok || !top.TwoSided() {
		return
	}
	if b.cfg.MaxSpread > 0 {
		if spread, _ := top.Spread(); spread > b.cfg.MaxSpread {
			b.log.Debug("basket gated", zap.Int64("spread", spread), zap.Error(ErrGateClosed))
			return
		}
	}

	var askSum, bidSum int64
	for _, leg := range b.legs {
		lt, ok := tops[leg.Symbol]
		if !ok || !lt.TwoSided() {
			return
		}
		askSum += leg.Weight * lt.Ask.Price
		bidSum += leg.Weight * lt.Bid.Price
	}

	premium := float64(top.Bid.Price - askSum)
	discount := float64(top.Ask.Price - bidSum)

	var sell bool
	switch {
	case premium > b.cfg.SellThreshold:
		sell = true
	case discount < b.cfg.BuyThreshold:
		sell = false
	default:
		return
	}

	orders, err := p.Basket(BasketOrder{Basket: b.cfg.Basket, Legs: b.legs, SellBasket: sell})
	if err != nil {
		b.log.Debug("basket not sized", zap.Bool("sell", sell), zap.Error(err))
		return
	}
	b.log.Info("basket trade",
		zap.Bool("sell_basket", sell),
		zap.Float64("premium", premium),
		zap.Float64("discount", discount),
		zap.Int64("units", abs64(orders[0].Quantity)))
}
