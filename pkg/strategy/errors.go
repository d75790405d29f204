package strategy

import "errors"

var (
	// ErrLiquidityExhausted means no quantity could be planned: the book side
	// is empty, already consumed this tick, or position headroom is gone.
	ErrLiquidityExhausted = errors.New("liquidity exhausted")
	// ErrGateClosed means a spread or time gate blocked the order.
	ErrGateClosed = errors.New("gate closed")
	// ErrSlopeNotInvertible means the hedge slope cannot size a new entry.
	ErrSlopeNotInvertible = errors.New("hedge slope not invertible")
)
