package strategy

import (
	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
)

// Exposure tracks per-tick position headroom. Orders planned earlier in the
// tick reduce the headroom left for later strategies on the same symbol, so
// the worst-case fill of the whole batch stays within every limit.
type Exposure struct {
	limits      map[string]int64
	positions   map[string]int64
	pendingBuy  map[string]int64
	pendingSell map[string]int64
}

// NewExposure starts a tick from the reported inventory.
func NewExposure(limits, positions map[string]int64) *Exposure {
	return &Exposure{
		limits:      limits,
		positions:   positions,
		pendingBuy:  make(map[string]int64),
		pendingSell: make(map[string]int64),
	}
}

// Limit returns the absolute position limit of symbol.
func (e *Exposure) Limit(symbol string) int64 { return e.limits[symbol] }

// Position returns the inventory reported at the start of the tick.
func (e *Exposure) Position(symbol string) int64 { return e.positions[symbol] }

// BuyHeadroom is limit - position - pending buys, never negative.
func (e *Exposure) BuyHeadroom(symbol string) int64 {
	return nonNegative(e.limits[symbol] - e.positions[symbol] - e.pendingBuy[symbol])
}

// SellHeadroom is limit + position - pending sells, never negative.
func (e *Exposure) SellHeadroom(symbol string) int64 {
	return nonNegative(e.limits[symbol] + e.positions[symbol] - e.pendingSell[symbol])
}

// Reserve books an order against the headroom.
func (e *Exposure) Reserve(o market.Order) {
	if o.Quantity > 0 {
		e.pendingBuy[o.Symbol] += o.Quantity
	} else {
		e.pendingSell[o.Symbol] -= o.Quantity
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
