package strategy

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
)

// Planner turns decisions into concrete orders for one tick. Every order it
// emits is capped by the remaining exposure headroom and by the book
// liquidity not yet taken by an earlier order in the same tick.
type Planner struct {
	depths   map[string]market.OrderDepth
	exposure *Exposure
	askTaken map[string]map[int64]int64
	bidTaken map[string]map[int64]int64
	batch    market.OrderBatch
}

// NewPlanner starts planning a tick.
func NewPlanner(in market.TickInput, limits map[string]int64) *Planner {
	positions := in.Positions
	if positions == nil {
		positions = map[string]int64{}
	}
	return &Planner{
		depths:   in.Depths,
		exposure: NewExposure(limits, positions),
		askTaken: make(map[string]map[int64]int64),
		bidTaken: make(map[string]map[int64]int64),
		batch:    make(market.OrderBatch),
	}
}

// Orders returns the batch planned so far.
func (p *Planner) Orders() market.OrderBatch { return p.batch }

// Exposure returns the tick's exposure ledger.
func (p *Planner) Exposure() *Exposure { return p.exposure }

// Top returns the current top of book for symbol.
func (p *Planner) Top(symbol string) market.BookTop {
	return p.depths[symbol].Top()
}

// askAvailable is the volume left at an ask level after earlier orders.
func (p *Planner) askAvailable(symbol string, l market.Level) int64 {
	return nonNegative(l.Available() - p.askTaken[symbol][l.Price])
}

func (p *Planner) bidAvailable(symbol string, l market.Level) int64 {
	return nonNegative(l.Available() - p.bidTaken[symbol][l.Price])
}

func (p *Planner) emit(o market.Order) {
	depth := p.depths[o.Symbol]
	if o.Quantity > 0 {
		if _, ok := depth.SellOrders[o.Price]; ok {
			take(p.askTaken, o.Symbol, o.Price, o.Quantity)
		}
	} else if _, ok := depth.BuyOrders[o.Price]; ok {
		take(p.bidTaken, o.Symbol, o.Price, -o.Quantity)
	}
	p.exposure.Reserve(o)
	p.batch.Add(o)
}

func take(m map[string]map[int64]int64, symbol string, price, qty int64) {
	levels := m[symbol]
	if levels == nil {
		levels = make(map[int64]int64)
		m[symbol] = levels
	}
	levels[price] += qty
}

// maxBuy is the quantity that can be bought at the best ask.
func (p *Planner) maxBuy(symbol string) (market.Level, int64) {
	ask, ok := p.depths[symbol].BestAsk()
	if !ok {
		return market.Level{}, 0
	}
	return ask, min64(p.askAvailable(symbol, ask), p.exposure.BuyHeadroom(symbol))
}

// maxSell is the quantity that can be sold at the best bid.
func (p *Planner) maxSell(symbol string) (market.Level, int64) {
	bid, ok := p.depths[symbol].BestBid()
	if !ok {
		return market.Level{}, 0
	}
	return bid, min64(p.bidAvailable(symbol, bid), p.exposure.SellHeadroom(symbol))
}

// Directional takes the best level in the direction of the bias:
// size = min(available volume, headroom).
func (p *Planner) Directional(symbol string, buy bool) (market.Order, error) {
	if buy {
		ask, qty := p.maxBuy(symbol)
		if qty <= 0 {
			return market.Order{}, fmt.Errorf("buy %s: %w", symbol, ErrLiquidityExhausted)
		}
		o := market.Order{Symbol: symbol, Price: ask.Price, Quantity: qty}
		p.emit(o)
		return o, nil
	}

	bid, qty := p.maxSell(symbol)
	if qty <= 0 {
		return market.Order{}, fmt.Errorf("sell %s: %w", symbol, ErrLiquidityExhausted)
	}
	o := market.Order{Symbol: symbol, Price: bid.Price, Quantity: -qty}
	p.emit(o)
	return o, nil
}

// PairOrder describes a two-leg spread entry.
type PairOrder struct {
	X, Y      string
	Direction PairState // long spread buys Y and sells X
	UnitsPerX float64   // Y units hedging one X unit
	MaxY      int64     // optional clip on the Y leg, 0 disables
}

// PairEntry sizes both legs so the executed ratio follows UnitsPerX and
// emits both or neither. With r = UnitsPerX, y = min(yMax, floor(xMax*r))
// and x = ceil(y/r) capped at xMax, so the X leg never hedges less than y
// needs unless xMax itself binds.
func (p *Planner) PairEntry(req PairOrder) ([]market.Order, error) {
	r := req.UnitsPerX
	if !(r > 0) || math.IsInf(r, 0) {
		return nil, fmt.Errorf("pair %s/%s ratio %v: %w", req.Y, req.X, r, ErrLiquidityExhausted)
	}

	var (
		yLevel, xLevel market.Level
		yMax, xMax     int64
	)
	switch req.Direction {
	case PairLongSpread:
		yLevel, yMax = p.maxBuy(req.Y)
		xLevel, xMax = p.maxSell(req.X)
	case PairShortSpread:
		yLevel, yMax = p.maxSell(req.Y)
		xLevel, xMax = p.maxBuy(req.X)
	default:
		return nil, fmt.Errorf("pair entry direction %s", req.Direction)
	}
	if req.MaxY > 0 {
		yMax = min64(yMax, req.MaxY)
	}

	y := min64(yMax, int64(math.Floor(float64(xMax)*r)))
	x := min64(int64(math.Ceil(float64(y)/r-1e-9)), xMax)
	if y <= 0 || x <= 0 {
		return nil, fmt.Errorf("pair %s/%s (x max %d, y max %d): %w", req.Y, req.X, xMax, yMax, ErrLiquidityExhausted)
	}

	var yOrder, xOrder market.Order
	if req.Direction == PairLongSpread {
		yOrder = market.Order{Symbol: req.Y, Price: yLevel.Price, Quantity: y}
		xOrder = market.Order{Symbol: req.X, Price: xLevel.Price, Quantity: -x}
	} else {
		yOrder = market.Order{Symbol: req.Y, Price: yLevel.Price, Quantity: -y}
		xOrder = market.Order{Symbol: req.X, Price: xLevel.Price, Quantity: x}
	}
	p.emit(yOrder)
	p.emit(xOrder)
	return []market.Order{yOrder, xOrder}, nil
}

// Flatten trades the symbol's inventory back toward zero at the touch,
// capped by available volume. It returns the planned order, if any, and the
// inventory that will remain even if it fills.
func (p *Planner) Flatten(symbol string) (market.Order, bool, int64) {
	pos := p.exposure.Position(symbol)
	if pos == 0 {
		return market.Order{}, false, 0
	}

	if pos > 0 {
		bid, qty := p.maxSell(symbol)
		qty = min64(qty, pos)
		if qty <= 0 {
			return market.Order{}, false, pos
		}
		o := market.Order{Symbol: symbol, Price: bid.Price, Quantity: -qty}
		p.emit(o)
		return o, true, pos - qty
	}

	ask, qty := p.maxBuy(symbol)
	qty = min64(qty, -pos)
	if qty <= 0 {
		return market.Order{}, false, -pos
	}
	o := market.Order{Symbol: symbol, Price: ask.Price, Quantity: qty}
	p.emit(o)
	return o, true, -pos - qty
}

// QuoteParams configures passive two-sided quoting.
type QuoteParams struct {
	SpreadThreshold int64
	BaseSize        int64
	Improve         int64
	MinClip         bool
}

// Quote places a bid and an ask inside the spread when the spread is at
// least the threshold. Sizes skew against inventory:
// buy = floor(base*(1 - pos/limit)), sell = floor(base*(1 + pos/limit)).
func (p *Planner) Quote(symbol string, qp QuoteParams) []market.Order {
	top := p.Top(symbol)
	spread, ok := top.Spread()
	if !ok || spread < qp.SpreadThreshold {
		return nil
	}
	bidPx := top.Bid.Price + qp.Improve
	askPx := top.Ask.Price - qp.Improve
	if bidPx >= askPx {
		return nil
	}

	limit := p.exposure.Limit(symbol)
	if limit <= 0 {
		return nil
	}
	pos := p.exposure.Position(symbol)

	var out []market.Order
	buyRoom := p.exposure.BuyHeadroom(symbol)
	buyQty := min64(floorDiv(qp.BaseSize*(limit-pos), limit), buyRoom)
	if qp.MinClip && buyQty < 1 && buyRoom > 0 {
		buyQty = 1
	}
	if buyQty > 0 {
		o := market.Order{Symbol: symbol, Price: bidPx, Quantity: buyQty}
		p.emit(o)
		out = append(out, o)
	}

	sellRoom := p.exposure.SellHeadroom(symbol)
	sellQty := min64(floorDiv(qp.BaseSize*(limit+pos), limit), sellRoom)
	if qp.MinClip && sellQty < 1 && sellRoom > 0 {
		sellQty = 1
	}
	if sellQty > 0 {
		o := market.Order{Symbol: symbol, Price: askPx, Quantity: -sellQty}
		p.emit(o)
		out = append(out, o)
	}
	return out
}

// FairValue sweeps every ask strictly below fair-edge and every bid
// strictly above fair+edge, best level first, while headroom remains.
func (p *Planner) FairValue(symbol string, fair, edge float64) []market.Order {
	depth := p.depths[symbol]
	var out []market.Order

	for _, ask := range depth.Asks() {
		if !(float64(ask.Price) < fair-edge) {
			break
		}
		qty := min64(p.askAvailable(symbol, ask), p.exposure.BuyHeadroom(symbol))
		if qty <= 0 {
			continue
		}
		o := market.Order{Symbol: symbol, Price: ask.Price, Quantity: qty}
		p.emit(o)
		out = append(out, o)
	}

	for _, bid := range depth.Bids() {
		if !(float64(bid.Price) > fair+edge) {
			break
		}
		qty := min64(p.bidAvailable(symbol, bid), p.exposure.SellHeadroom(symbol))
		if qty <= 0 {
			continue
		}
		o := market.Order{Symbol: symbol, Price: bid.Price, Quantity: -qty}
		p.emit(o)
		out = append(out, o)
	}
	return out
}

// Sweep takes up to levels book levels on one side, best first, each capped
// by what is left of the level and of the headroom.
func (p *Planner) Sweep(symbol string, buy bool, levels int) []market.Order {
	depth := p.depths[symbol]
	book := depth.Bids()
	if buy {
		book = depth.Asks()
	}

	var out []market.Order
	for i, l := range book {
		if i >= levels {
			break
		}
		var o market.Order
		if buy {
			qty := min64(p.askAvailable(symbol, l), p.exposure.BuyHeadroom(symbol))
			if qty <= 0 {
				continue
			}
			o = market.Order{Symbol: symbol, Price: l.Price, Quantity: qty}
		} else {
			qty := min64(p.bidAvailable(symbol, l), p.exposure.SellHeadroom(symbol))
			if qty <= 0 {
				continue
			}
			o = market.Order{Symbol: symbol, Price: l.Price, Quantity: -qty}
		}
		p.emit(o)
		out = append(out, o)
	}
	return out
}

// BasketLeg is a weighted basket component.
type BasketLeg struct {
	Symbol string
	Weight int64
}

// BasketOrder trades one basket against its components.
type BasketOrder struct {
	Basket     string
	Legs       []BasketLeg
	SellBasket bool // sell basket, buy components; otherwise the reverse
}

// Basket sizes the trade in basket units: the number of units every leg can
// carry given its weight, liquidity and headroom. All legs or none.
func (p *Planner) Basket(req BasketOrder) ([]market.Order, error) {
	var (
		basketLevel market.Level
		units       int64
	)
	if req.SellBasket {
		basketLevel, units = p.maxSell(req.Basket)
	} else {
		basketLevel, units = p.maxBuy(req.Basket)
	}

	levels := make([]market.Level, len(req.Legs))
	for i, leg := range req.Legs {
		var legMax int64
		if req.SellBasket {
			levels[i], legMax = p.maxBuy(leg.Symbol)
		} else {
			levels[i], legMax = p.maxSell(leg.Symbol)
		}
		units = min64(units, floorDiv(legMax, leg.Weight))
	}
	if units <= 0 {
		return nil, fmt.Errorf("basket %s: %w", req.Basket, ErrLiquidityExhausted)
	}

	out := make([]market.Order, 0, len(req.Legs)+1)
	sign := int64(1)
	if req.SellBasket {
		sign = -1
	}
	out = append(out, market.Order{Symbol: req.Basket, Price: basketLevel.Price, Quantity: sign * units})
	for i, leg := range req.Legs {
		out = append(out, market.Order{Symbol: leg.Symbol, Price: levels[i].Price, Quantity: -sign * leg.Weight * units})
	}
	for _, o := range out {
		p.emit(o)
	}
	return out, nil
}
