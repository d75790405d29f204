// Package market defines the order book snapshot, inventory and order
// instruction types exchanged with the engine on every tick.
package market

import (
	"fmt"
	"sort"
)

// Level is one price level of the book. Volume keeps the sign convention of
// the feed: buy volumes are positive, sell volumes are negative.
type Level struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
}

// Available returns the unsigned quantity a counterparty offers at this level.
func (l Level) Available() int64 {
	if l.Volume < 0 {
		return -l.Volume
	}
	return l.Volume
}

// OrderDepth is the outstanding book for one instrument.
// BuyOrders maps price to available buy volume (positive),
// SellOrders maps price to available sell volume (negative).
type OrderDepth struct {
	BuyOrders  map[int64]int64 `json:"buy_orders"`
	SellOrders map[int64]int64 `json:"sell_orders"`
}

// BestAsk returns the lowest sell level.
func (d OrderDepth) BestAsk() (Level, bool) {
	if len(d.SellOrders) == 0 {
		return Level{}, false
	}
	first := true
	var best int64
	for price := range d.SellOrders {
		if first || price < best {
			best = price
			first = false
		}
	}
	return Level{Price: best, Volume: d.SellOrders[best]}, true
}

// BestBid returns the highest buy level.
func (d OrderDepth) BestBid() (Level, bool) {
	if len(d.BuyOrders) == 0 {
		return Level{}, false
	}
	first := true
	var best int64
	for price := range d.BuyOrders {
		if first || price > best {
			best = price
			first = false
		}
	}
	return Level{Price: best, Volume: d.BuyOrders[best]}, true
}

// Asks returns all sell levels, best (lowest) first.
func (d OrderDepth) Asks() []Level {
	levels := make([]Level, 0, len(d.SellOrders))
	for price, vol := range d.SellOrders {
		levels = append(levels, Level{Price: price, Volume: vol})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

// Bids returns all buy levels, best (highest) first.
func (d OrderDepth) Bids() []Level {
	levels := make([]Level, 0, len(d.BuyOrders))
	for price, vol := range d.BuyOrders {
		levels = append(levels, Level{Price: price, Volume: vol})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels
}

// Top returns the top of book. Each side is reported independently.
func (d OrderDepth) Top() BookTop {
	var top BookTop
	top.Ask, top.HasAsk = d.BestAsk()
	top.Bid, top.HasBid = d.BestBid()
	return top
}

// BookTop is the best bid and ask of one instrument for one tick.
type BookTop struct {
	Bid    Level
	Ask    Level
	HasBid bool
	HasAsk bool
}

// TwoSided reports whether both sides of the book are present.
func (t BookTop) TwoSided() bool {
	return t.HasBid && t.HasAsk
}

// Mid returns the average of best bid and best ask. It is only defined when
// both sides are present.
func (t BookTop) Mid() (float64, bool) {
	if !t.TwoSided() {
		return 0, false
	}
	return float64(t.Bid.Price+t.Ask.Price) / 2.0, true
}

// Spread returns best ask minus best bid.
func (t BookTop) Spread() (int64, bool) {
	if !t.TwoSided() {
		return 0, false
	}
	return t.Ask.Price - t.Bid.Price, true
}

// TickInput is everything the engine sees on one tick.
type TickInput struct {
	Timestamp    int64                 `json:"timestamp"`
	Depths       map[string]OrderDepth `json:"order_depths"`
	Positions    map[string]int64      `json:"position"`
	Observations map[string]float64    `json:"observations,omitempty"`
}

// Position returns the signed inventory for a symbol, zero when absent.
func (in TickInput) Position(symbol string) int64 {
	return in.Positions[symbol]
}

// Order is a limit order instruction. Positive quantity buys, negative sells.
type Order struct {
	Symbol   string `json:"symbol"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// Side returns "BUY" or "SELL".
func (o Order) Side() string {
	if o.Quantity < 0 {
		return "SELL"
	}
	return "BUY"
}

func (o Order) String() string {
	qty := o.Quantity
	if qty < 0 {
		qty = -qty
	}
	return fmt.Sprintf("%s %s %dx%d", o.Side(), o.Symbol, qty, o.Price)
}

// OrderBatch maps instrument symbol to the orders planned for it on one tick.
type OrderBatch map[string][]Order

// Add appends an order under its symbol.
func (b OrderBatch) Add(o Order) {
	b[o.Symbol] = append(b[o.Symbol], o)
}

// Count returns the total number of orders in the batch.
func (b OrderBatch) Count() int {
	n := 0
	for _, orders := range b {
		n += len(orders)
	}
	return n
}

// NetQuantity returns the signed sum of quantities planned for a symbol.
func (b OrderBatch) NetQuantity(symbol string) int64 {
	var net int64
	for _, o := range b[symbol] {
		net += o.Quantity
	}
	return net
}
