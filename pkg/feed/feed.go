// Package feed connects the engine to tick sources and order sinks.
//
// Every Source calls its handler from a single goroutine, one tick at a
// time, so the engine never sees concurrent OnTick calls.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
)

// ErrClosed is returned by a Source that stopped before its context ended.
var ErrClosed = errors.New("feed closed")

// Handler consumes one tick. Returning an error stops the source.
type Handler func(market.TickInput) error

// Source delivers ticks until ctx is done or the feed ends.
type Source interface {
	Run(ctx context.Context, handle Handler) error
	Name() string
}

// Sink receives the orders planned for a tick.
type Sink interface {
	Publish(msg OrderMessage) error
}

// OrderMessage is the wire form of one tick's orders.
type OrderMessage struct {
	Tick      int64             `json:"tick"`
	Timestamp int64             `json:"timestamp"`
	Orders    market.OrderBatch `json:"orders"`
}

// DecodeTick parses one JSON tick.
func DecodeTick(data []byte) (market.TickInput, error) {
	var in market.TickInput
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("failed to decode tick: %w", err)
	}
	return in, nil
}

// EncodeOrders serializes an order message.
func EncodeOrders(msg OrderMessage) ([]byte, error) {
	if msg.Orders == nil {
		msg.Orders = market.OrderBatch{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode orders: %w", err)
	}
	return data, nil
}

// LogSink writes orders to a logger. Used when the feed has no return path.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

// Publish implements Sink. Each symbol logs its orders and the net
// quantity the batch would add if every order filled.
func (s *LogSink) Publish(msg OrderMessage) error {
	for symbol, orders := range msg.Orders {
		for _, o := range orders {
			s.log.Info("order",
				zap.Int64("tick", msg.Tick),
				zap.String("symbol", symbol),
				zap.Stringer("order", o))
		}
		if len(orders) > 0 {
			s.log.Debug("net",
				zap.Int64("tick", msg.Tick),
				zap.String("symbol", symbol),
				zap.Int64("quantity", msg.Orders.NetQuantity(symbol)))
		}
	}
	return nil
}
