package indicators

import (
	"fmt"

	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
	"github.com/yourusername/quantlink-pairs-engine/pkg/stats"
)

// QuoteHistory holds the rolling best-ask and best-bid observations of one
// instrument. Each side is pushed only on ticks where that side of the book
// is present, so a missing side never borrows the other side's price. Mids
// only advances on two-sided ticks, so every mid comes from a single tick.
type QuoteHistory struct {
	Asks *stats.RollingHistory[market.Level]
	Bids *stats.RollingHistory[market.Level]
	Mids *stats.RollingHistory[float64]
}

// NewQuoteHistory creates both sides with the same capacity.
func NewQuoteHistory(capacity int) (*QuoteHistory, error) {
	asks, err := stats.NewRollingHistory[market.Level](capacity)
	if err != nil {
		return nil, fmt.Errorf("ask history: %w", err)
	}
	bids, err := stats.NewRollingHistory[market.Level](capacity)
	if err != nil {
		return nil, fmt.Errorf("bid history: %w", err)
	}
	mids, err := stats.NewRollingHistory[float64](capacity)
	if err != nil {
		return nil, fmt.Errorf("mid history: %w", err)
	}
	return &QuoteHistory{Asks: asks, Bids: bids, Mids: mids}, nil
}

// Update records the sides present in top.
func (q *QuoteHistory) Update(top market.BookTop) {
	if top.HasAsk {
		q.Asks.Push(top.Ask)
	}
	if top.HasBid {
		q.Bids.Push(top.Bid)
	}
	if mid, ok := top.Mid(); ok {
		q.Mids.Push(mid)
	}
}

// Len returns the number of samples available on both sides.
func (q *QuoteHistory) Len() int {
	if q.Asks.Len() < q.Bids.Len() {
		return q.Asks.Len()
	}
	return q.Bids.Len()
}

// AskPrices returns the k most recent best-ask prices.
func (q *QuoteHistory) AskPrices(k int) ([]float64, error) {
	return prices(q.Asks, k)
}

// BidPrices returns the k most recent best-bid prices.
func (q *QuoteHistory) BidPrices(k int) ([]float64, error) {
	return prices(q.Bids, k)
}

// CombinedMean is the mean of the k most recent ask and bid prices taken
// together. Both sides need k samples.
func (q *QuoteHistory) CombinedMean(k int) (float64, error) {
	asks, err := q.AskPrices(k)
	if err != nil {
		return 0, err
	}
	bids, err := q.BidPrices(k)
	if err != nil {
		return 0, err
	}
	return (stats.Mean(asks) + stats.Mean(bids)) / 2.0, nil
}

// MidPrices returns the k most recent two-sided mid prices.
func (q *QuoteHistory) MidPrices(k int) ([]float64, error) {
	return q.Mids.Window(k)
}

func prices(h *stats.RollingHistory[market.Level], k int) ([]float64, error) {
	levels, err := h.Window(k)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(levels))
	for i, l := range levels {
		out[i] = float64(l.Price)
	}
	return out, nil
}
