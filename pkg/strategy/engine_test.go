package strategy

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yourusername/quantlink-pairs-engine/pkg/config"
	"github.com/yourusername/quantlink-pairs-engine/pkg/hedge"
	"github.com/yourusername/quantlink-pairs-engine/pkg/indicators"
	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
)

type fakeRecorder struct {
	ticks       int
	orders      int
	transitions []string
	notReady    int
}

func (f *fakeRecorder) Tick()                       { f.ticks++ }
func (f *fakeRecorder) Order(string, string, int64) { f.orders++ }
func (f *fakeRecorder) Transition(pair, from, to, reason string) {
	f.transitions = append(f.transitions, from+">"+to+":"+reason)
}
func (f *fakeRecorder) PairReading(_ string, _ float64, ready bool) {
	if !ready {
		f.notReady++
	}
}

// quote builds a one-level book around mid with the given volume per side.
func quote(bid, ask, vol int64) market.OrderDepth {
	return market.OrderDepth{
		BuyOrders:  map[int64]int64{bid: vol},
		SellOrders: map[int64]int64{ask: -vol},
	}
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	_, err := NewEngine(config.EngineConfig{
		Instruments: []config.InstrumentConfig{{Symbol: "A", Limit: 0, SlowWindow: 10, FastWindow: 3}},
	})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestEngine_DirectionalScenario(t *testing.T) {
	cfg := config.EngineConfig{Instruments: []config.InstrumentConfig{{
		Symbol: "A", Limit: 20, SlowWindow: 10, FastWindow: 3,
		Strategies: []string{config.StrategyTrend},
	}}}
	rec := &fakeRecorder{}
	e, err := NewEngine(cfg, WithLogger(zaptest.NewLogger(t)), WithRecorder(rec))
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		batch := e.OnTick(market.TickInput{
			Timestamp: int64(i * 100),
			Depths:    map[string]market.OrderDepth{"A": quote(10100, 10102, 5)},
		})
		assert.Empty(t, batch, "history too short at tick %d", i+1)
	}

	batch := e.OnTick(market.TickInput{
		Timestamp: 900,
		Depths: map[string]market.OrderDepth{"A": {
			BuyOrders:  map[int64]int64{9998: 4},
			SellOrders: map[int64]int64{10000: -15},
		}},
	})
	assert.Equal(t, market.OrderBatch{"A": {{Symbol: "A", Price: 10000, Quantity: 15}}}, batch)
	assert.Equal(t, 10, rec.ticks)
	assert.Equal(t, 1, rec.orders)

	report := e.LastReport()
	assert.Equal(t, int64(10), report.Tick)
	assert.Greater(t, report.Signals["A"].FastAverage, 10000.0)
}

func TestEngine_DirectionalRespectsLimit(t *testing.T) {
	cfg := config.EngineConfig{Instruments: []config.InstrumentConfig{{
		Symbol: "A", Limit: 20, SlowWindow: 2, FastWindow: 2,
		Strategies: []string{config.StrategyTrend},
	}}}
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	e.OnTick(market.TickInput{Depths: map[string]market.OrderDepth{"A": quote(10100, 10102, 5)}})
	batch := e.OnTick(market.TickInput{
		Depths:    map[string]market.OrderDepth{"A": quote(9998, 10000, 15)},
		Positions: map[string]int64{"A": 20},
	})
	assert.Empty(t, batch)
}

func TestEngine_MissingBookSideDoesNotPoisonHistory(t *testing.T) {
	cfg := config.EngineConfig{Instruments: []config.InstrumentConfig{{
		Symbol: "A", Limit: 20, SlowWindow: 3, FastWindow: 1,
		Strategies: []string{config.StrategyTrend},
	}}}
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	e.OnTick(market.TickInput{Depths: map[string]market.OrderDepth{"A": quote(100, 102, 5)}})
	e.OnTick(market.TickInput{Depths: map[string]market.OrderDepth{"A": {SellOrders: map[int64]int64{102: -5}}}})
	e.OnTick(market.TickInput{})

	snap := e.Snapshot()
	assert.Len(t, snap.Instruments["A"].Asks, 2)
	assert.Len(t, snap.Instruments["A"].Bids, 1)
}

func pairConfig() config.EngineConfig {
	return config.EngineConfig{
		Instruments: []config.InstrumentConfig{
			{Symbol: "X", Limit: 100, SlowWindow: 5, FastWindow: 5},
			{Symbol: "Y", Limit: 100, SlowWindow: 5, FastWindow: 5},
		},
		Pairs: []config.PairConfig{{
			ID: "xy", X: "X", Y: "Y", Mode: config.HedgeModeFixed, FixedRatio: 2,
			ResidualWindow: 5, MinSamples: 5, EntryZ: 1.5, ExitZ: 0.5,
		}},
	}
}

func pairTick(yMid int64, vol int64, positions map[string]int64) market.TickInput {
	return market.TickInput{
		Depths: map[string]market.OrderDepth{
			"X": quote(99, 101, vol),
			"Y": quote(yMid-1, yMid+1, vol),
		},
		Positions: positions,
	}
}

func TestEngine_PairEntryAndExit(t *testing.T) {
	rec := &fakeRecorder{}
	e, err := NewEngine(pairConfig(), WithRecorder(rec))
	require.NoError(t, err)

	for _, y := range []int64{200, 201, 199, 200, 201} {
		assert.Empty(t, e.OnTick(pairTick(y, 20, nil)))
	}
	assert.Equal(t, 4, rec.notReady)

	// residual spikes: short the spread, sell Y and buy X at 0.5 Y per X
	batch := e.OnTick(pairTick(210, 20, nil))
	assert.Equal(t, market.OrderBatch{
		"Y": {{Symbol: "Y", Price: 209, Quantity: -10}},
		"X": {{Symbol: "X", Price: 101, Quantity: 20}},
	}, batch)
	state, ok := e.PairState("xy")
	require.True(t, ok)
	assert.Equal(t, PairShortSpread, state)

	// reverted: flatten both legs
	batch = e.OnTick(pairTick(200, 20, map[string]int64{"X": 20, "Y": -10}))
	assert.Equal(t, market.OrderBatch{
		"X": {{Symbol: "X", Price: 99, Quantity: -20}},
		"Y": {{Symbol: "Y", Price: 201, Quantity: 10}},
	}, batch)
	state, _ = e.PairState("xy")
	assert.Equal(t, PairFlat, state)
	assert.Equal(t, []string{"FLAT>SHORT_SPREAD:entry", "SHORT_SPREAD>FLAT:exit_threshold"}, rec.transitions)
}

func TestEngine_PairEntryNeedsBothLegs(t *testing.T) {
	e, err := NewEngine(pairConfig())
	require.NoError(t, err)
	for _, y := range []int64{200, 201, 199, 200, 201} {
		e.OnTick(pairTick(y, 20, nil))
	}

	// X at its long limit: the buy leg has no headroom so neither leg goes
	batch := e.OnTick(pairTick(210, 20, map[string]int64{"X": 100}))
	assert.Empty(t, batch)
	state, _ := e.PairState("xy")
	assert.Equal(t, PairFlat, state)
}

func TestEngine_PartialFlattenKeepsExiting(t *testing.T) {
	e, err := NewEngine(pairConfig())
	require.NoError(t, err)
	for _, y := range []int64{200, 201, 199, 200, 201, 210} {
		e.OnTick(pairTick(y, 20, nil))
	}
	state, _ := e.PairState("xy")
	require.Equal(t, PairShortSpread, state)

	batch := e.OnTick(pairTick(200, 5, map[string]int64{"X": 20, "Y": -10}))
	assert.Equal(t, int64(-5), batch.NetQuantity("X"))
	assert.Equal(t, int64(5), batch.NetQuantity("Y"))
	state, _ = e.PairState("xy")
	assert.Equal(t, PairShortSpread, state, "inventory left, still exiting")

	// the residual is back above the exit band, the latched exit still runs
	batch = e.OnTick(pairTick(210, 20, map[string]int64{"X": 15, "Y": -5}))
	assert.Equal(t, int64(-15), batch.NetQuantity("X"))
	assert.Equal(t, int64(5), batch.NetQuantity("Y"))
	state, _ = e.PairState("xy")
	assert.Equal(t, PairFlat, state)
}

// A negative hedge slope cannot size an entry, but an open position still
// exits on z reversion.
func TestEngine_ExitWithNonInvertibleSlope(t *testing.T) {
	cfg := pairConfig()
	cfg.Pairs[0].Mode = config.HedgeModeKalman
	cfg.Pairs[0].ResidualWindow = 10
	cfg.Pairs[0].MinSamples = 4
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	require.NoError(t, e.Restore(EngineSnapshot{
		Tick: 7,
		Pairs: map[string]PairSnapshot{"xy": {
			Hedge: hedge.Snapshot{
				Mode:      hedge.Mode(config.HedgeModeKalman),
				State:     hedge.State{Slope: -2, Intercept: 300},
				Residuals: []float64{-1, 1, -1, 1},
				Steps:     4,
			},
			Machine: MachineSnapshot{State: PairShortSpread, EntryTick: 3},
		}},
	}))

	// y = -2*100 + 300 exactly, so the innovation and z are both zero
	batch := e.OnTick(market.TickInput{
		Depths: map[string]market.OrderDepth{
			"X": quote(99, 101, 20),
			"Y": quote(99, 101, 20),
		},
		Positions: map[string]int64{"X": 20, "Y": -10},
	})
	assert.Equal(t, market.OrderBatch{
		"X": {{Symbol: "X", Price: 99, Quantity: -20}},
		"Y": {{Symbol: "Y", Price: 101, Quantity: 10}},
	}, batch)

	state, _ := e.PairState("xy")
	assert.Equal(t, PairFlat, state)
	pr := e.LastReport().Pairs["xy"]
	assert.InDelta(t, -2.0, pr.Slope, 1e-9)
	assert.True(t, pr.Ready)
	assert.False(t, pr.Tradable)
	assert.Equal(t, ActionExit, pr.Decision.Action)
}

func TestEngine_RestoreIsAllOrNothing(t *testing.T) {
	cfg := pairConfig()
	cfg.Instruments = append(cfg.Instruments, config.InstrumentConfig{Symbol: "Z", Limit: 100, SlowWindow: 5, FastWindow: 5})
	cfg.Pairs = append(cfg.Pairs, config.PairConfig{
		ID: "zy", X: "Z", Y: "Y", Mode: config.HedgeModeFixed, FixedRatio: 1,
		ResidualWindow: 5, MinSamples: 5, EntryZ: 1.5, ExitZ: 0.5,
	})
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	for _, y := range []int64{200, 201, 199} {
		e.OnTick(pairTick(y, 20, nil))
	}
	before := e.Snapshot()

	good := PairSnapshot{Hedge: hedge.Snapshot{
		Mode:      hedge.Mode(config.HedgeModeFixed),
		State:     hedge.State{Slope: 2},
		Residuals: []float64{1, 2},
	}}
	tests := []struct {
		name string
		bad  PairSnapshot
	}{
		{"mode mismatch", PairSnapshot{Hedge: hedge.Snapshot{Mode: hedge.Mode(config.HedgeModeKalman)}}},
		{"unknown state", PairSnapshot{
			Hedge:   hedge.Snapshot{Mode: hedge.Mode(config.HedgeModeFixed), State: hedge.State{Slope: 1}},
			Machine: MachineSnapshot{State: PairState(9)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Restore(EngineSnapshot{
				Tick: 99,
				Instruments: map[string]InstrumentSnapshot{
					"X": {Asks: []market.Level{{Price: 1, Volume: -1}}},
				},
				Pairs: map[string]PairSnapshot{"xy": good, "zy": tt.bad},
			})
			require.Error(t, err)
			assert.Equal(t, before, e.Snapshot())
		})
	}
}

func TestEngine_ObservationLatch(t *testing.T) {
	cfg := config.EngineConfig{Instruments: []config.InstrumentConfig{{
		Symbol: "GEAR", Limit: 50, SlowWindow: 5, FastWindow: 5,
		Strategies:  []string{config.StrategyObservation},
		Observation: config.ObservationConfig{Signal: "SIGHTINGS", Threshold: 5},
	}}}
	e, err := NewEngine(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	depth := market.OrderDepth{
		BuyOrders:  map[int64]int64{998: 10, 997: 15, 996: 40},
		SellOrders: map[int64]int64{1000: -10, 1001: -15, 1002: -40},
	}
	tick := func(sightings float64, pos int64) market.OrderBatch {
		return e.OnTick(market.TickInput{
			Depths:       map[string]market.OrderDepth{"GEAR": depth},
			Positions:    map[string]int64{"GEAR": pos},
			Observations: map[string]float64{"SIGHTINGS": sightings},
		})
	}

	assert.Empty(t, tick(100, 0), "first value is the baseline")
	assert.Empty(t, tick(103, 0), "below threshold")

	buys := []market.Order{
		{Symbol: "GEAR", Price: 1000, Quantity: 10},
		{Symbol: "GEAR", Price: 1001, Quantity: 15},
	}
	assert.Equal(t, buys, tick(108, 0)["GEAR"], "jump of 5 sweeps two ask levels")
	assert.Equal(t, buys, tick(108, 25)["GEAR"], "latched with no new jump")
	assert.Empty(t, tick(108, 50), "limit reached releases the latch")
	assert.Empty(t, tick(108, 40), "released latch stays quiet")

	assert.Equal(t, []market.Order{
		{Symbol: "GEAR", Price: 998, Quantity: -10},
		{Symbol: "GEAR", Price: 997, Quantity: -15},
	}, tick(101, 40)["GEAR"])
	assert.Equal(t, &ObservationSnapshot{Last: 101, Seen: true, Bias: indicators.BiasSell},
		e.Snapshot().Instruments["GEAR"].Observation)
}

func TestEngine_TrendTimeWindow(t *testing.T) {
	tests := []struct {
		name        string
		from, until int64
		want        bool
	}{
		{"open", 0, 0, true},
		{"inside", 100, 1000, true},
		{"at upper bound", 100, 900, false},
		{"before start", 900, 2000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.EngineConfig{Instruments: []config.InstrumentConfig{{
				Symbol: "A", Limit: 20, SlowWindow: 10, FastWindow: 3,
				Strategies: []string{config.StrategyTrend},
				Trend:      config.TrendConfig{ActiveFrom: tt.from, ActiveUntil: tt.until},
			}}}
			e, err := NewEngine(cfg)
			require.NoError(t, err)
			for i := 0; i < 9; i++ {
				e.OnTick(market.TickInput{
					Timestamp: int64(i * 100),
					Depths:    map[string]market.OrderDepth{"A": quote(10100, 10102, 5)},
				})
			}
			batch := e.OnTick(market.TickInput{
				Timestamp: 900,
				Depths: map[string]market.OrderDepth{"A": {
					BuyOrders:  map[int64]int64{9998: 4},
					SellOrders: map[int64]int64{10000: -15},
				}},
			})
			assert.Equal(t, tt.want, len(batch) > 0)
		})
	}
}

func TestEngine_MaxLegSpreadGate(t *testing.T) {
	cfg := pairConfig()
	cfg.Pairs[0].MaxLegSpread = 1
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	for _, y := range []int64{200, 201, 199, 200, 201, 210} {
		assert.Empty(t, e.OnTick(pairTick(y, 20, nil)))
	}
	state, _ := e.PairState("xy")
	assert.Equal(t, PairFlat, state)
}

func TestEngine_Basket(t *testing.T) {
	cfg := config.EngineConfig{
		Instruments: []config.InstrumentConfig{
			{Symbol: "BAGUETTE", Limit: 150, SlowWindow: 10, FastWindow: 10},
			{Symbol: "DIP", Limit: 300, SlowWindow: 10, FastWindow: 10},
			{Symbol: "UKULELE", Limit: 70, SlowWindow: 10, FastWindow: 10},
			{Symbol: "PICNIC_BASKET", Limit: 70, SlowWindow: 10, FastWindow: 10},
		},
		Baskets: []config.BasketConfig{{
			ID: "picnic", Basket: "PICNIC_BASKET",
			Components: []config.BasketComponent{
				{Symbol: "BAGUETTE", Weight: 2}, {Symbol: "DIP", Weight: 4}, {Symbol: "UKULELE", Weight: 1},
			},
			SellThreshold: 400, BuyThreshold: -400, MaxSpread: 6,
		}},
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	depths := map[string]market.OrderDepth{
		"BAGUETTE":      quote(12000, 12002, 30),
		"DIP":           quote(7000, 7001, 50),
		"UKULELE":       quote(20000, 20002, 10),
		"PICNIC_BASKET": quote(73000, 73005, 3),
	}
	batch := e.OnTick(market.TickInput{Depths: depths})
	assert.Equal(t, int64(-3), batch.NetQuantity("PICNIC_BASKET"))
	assert.Equal(t, int64(6), batch.NetQuantity("BAGUETTE"))
	assert.Equal(t, int64(12), batch.NetQuantity("DIP"))
	assert.Equal(t, int64(3), batch.NetQuantity("UKULELE"))

	// premium inside the band
	depths["PICNIC_BASKET"] = quote(72300, 72305, 3)
	assert.Empty(t, e.OnTick(market.TickInput{Depths: depths}))

	// basket spread wider than the gate
	depths["PICNIC_BASKET"] = quote(73000, 73010, 3)
	assert.Empty(t, e.OnTick(market.TickInput{Depths: depths}))
}

func TestEngine_SnapshotRestoreContinuesIdentically(t *testing.T) {
	cfg := pairConfig()
	cfg.Pairs[0].Mode = config.HedgeModeKalman
	cfg.Pairs[0].ResidualWindow = 20
	cfg.Pairs[0].MinSamples = 10
	cfg.Instruments[0].Strategies = []string{config.StrategyTrend, config.StrategyMarketMaking}
	cfg.Instruments[0].MarketMaking = config.MarketMakingConfig{SpreadThreshold: 2, BaseSize: 5, Improve: 0}

	rng := rand.New(rand.NewSource(21))
	ticks := make([]market.TickInput, 80)
	for i := range ticks {
		xm := int64(100 + rng.Intn(5))
		ym := 2*xm + int64(rng.Intn(9)) - 4
		ticks[i] = market.TickInput{Depths: map[string]market.OrderDepth{
			"X": quote(xm-1, xm+1, 10),
			"Y": quote(ym-1, ym+1, 10),
		}}
	}

	a, err := NewEngine(cfg)
	require.NoError(t, err)
	for _, in := range ticks[:50] {
		a.OnTick(in)
	}

	data, err := json.Marshal(a.Snapshot())
	require.NoError(t, err)
	var snap EngineSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	b, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Restore(snap))
	assert.Equal(t, a.Tick(), b.Tick())

	for i, in := range ticks[50:] {
		require.Equal(t, a.OnTick(in), b.OnTick(in), "tick %d", 50+i)
	}
	sa, _ := a.PairState("xy")
	sb, _ := b.PairState("xy")
	assert.Equal(t, sa, sb)
}

// Random books and inventories over every strategy kind: the worst-case
// post-fill position never breaches a limit.
func TestEngine_NeverBreachesLimits(t *testing.T) {
	cfg := config.EngineConfig{
		Instruments: []config.InstrumentConfig{
			{Symbol: "A", Limit: 20, SlowWindow: 5, FastWindow: 2,
				Strategies:   []string{config.StrategyTrend, config.StrategyMarketMaking, config.StrategyFairValue},
				MarketMaking: config.MarketMakingConfig{SpreadThreshold: 2, BaseSize: 8, Improve: 1, MinClip: true},
				FairValue:    config.FairValueConfig{Price: 1000, Edge: 1}},
			{Symbol: "B", Limit: 40, SlowWindow: 5, FastWindow: 2, Strategies: []string{config.StrategyTrend}},
			{Symbol: "C", Limit: 10, SlowWindow: 5, FastWindow: 2},
		},
		Pairs: []config.PairConfig{{
			ID: "ab", X: "A", Y: "B", ResidualWindow: 10, MinSamples: 5, EntryZ: 1, ExitZ: 0.2,
			AllowScaleIn: true,
		}},
		Baskets: []config.BasketConfig{{
			Basket: "C", Components: []config.BasketComponent{{Symbol: "A", Weight: 1}, {Symbol: "B", Weight: 1}},
			SellThreshold: -5000, BuyThreshold: 5000,
		}},
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(99))
	limits := map[string]int64{"A": 20, "B": 40, "C": 10}
	for iter := 0; iter < 3000; iter++ {
		in := market.TickInput{Depths: map[string]market.OrderDepth{}, Positions: map[string]int64{}}
		for sym, lim := range limits {
			mid := int64(1000 + rng.Intn(20))
			if sym == "C" {
				mid = 2000 + int64(rng.Intn(40))
			}
			d := market.OrderDepth{BuyOrders: map[int64]int64{}, SellOrders: map[int64]int64{}}
			for l := int64(1); l <= 3; l++ {
				d.BuyOrders[mid-l] = int64(1 + rng.Intn(25))
				d.SellOrders[mid+l] = -int64(1 + rng.Intn(25))
			}
			in.Depths[sym] = d
			in.Positions[sym] = int64(rng.Intn(int(2*lim+1))) - lim
		}

		batch := e.OnTick(in)
		for sym, lim := range limits {
			var buys, sells int64
			for _, o := range batch[sym] {
				if o.Quantity > 0 {
					buys += o.Quantity
				} else {
					sells -= o.Quantity
				}
			}
			require.LessOrEqual(t, in.Positions[sym]+buys, lim, "iter %d %s", iter, sym)
			require.GreaterOrEqual(t, in.Positions[sym]-sells, -lim, "iter %d %s", iter, sym)
		}
	}
}
