package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
)

var errStop = errors.New("stop")

func TestDecodeTick(t *testing.T) {
	in, err := DecodeTick([]byte(`{"timestamp":7,"order_depths":{"A":{"buy_orders":{"99":3},"sell_orders":{"101":-2}}},"position":{"A":-4}}`))
	require.NoError(t, err)

	assert.Equal(t, int64(7), in.Timestamp)
	assert.Equal(t, int64(-4), in.Position("A"))
	ask, ok := in.Depths["A"].BestAsk()
	require.True(t, ok)
	assert.Equal(t, market.Level{Price: 101, Volume: -2}, ask)

	_, err = DecodeTick([]byte(`{"timestamp":`))
	assert.Error(t, err)
}

func TestEncodeOrders(t *testing.T) {
	batch := market.OrderBatch{}
	batch.Add(market.Order{Symbol: "A", Price: 100, Quantity: 5})

	data, err := EncodeOrders(OrderMessage{Tick: 3, Timestamp: 300, Orders: batch})
	require.NoError(t, err)

	var decoded OrderMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(3), decoded.Tick)
	assert.Equal(t, []market.Order{{Symbol: "A", Price: 100, Quantity: 5}}, decoded.Orders["A"])

	data, err = EncodeOrders(OrderMessage{Tick: 4})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"orders":{}`)
}

func TestFileSource_Replay(t *testing.T) {
	var ticks []market.TickInput
	src := NewFileSource("testdata/ticks.jsonl", nil)
	assert.Equal(t, "file:testdata/ticks.jsonl", src.Name())

	err := src.Run(context.Background(), func(in market.TickInput) error {
		ticks = append(ticks, in)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	assert.Equal(t, []int64{0, 100, 200}, []int64{ticks[0].Timestamp, ticks[1].Timestamp, ticks[2].Timestamp})
	assert.Equal(t, int64(4), ticks[1].Position("PEARLS"))
	_, ok := ticks[2].Depths["PEARLS"].BestBid()
	assert.False(t, ok)
}

func TestFileSource_MissingFile(t *testing.T) {
	err := NewFileSource("testdata/absent.jsonl", nil).Run(context.Background(), func(market.TickInput) error { return nil })
	assert.Error(t, err)
}

func TestReadTicks_Errors(t *testing.T) {
	t.Run("malformed line reports line number", func(t *testing.T) {
		r := strings.NewReader("{\"timestamp\":1}\nnot json\n")
		n, err := ReadTicks(context.Background(), r, func(market.TickInput) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
		assert.Equal(t, 1, n)
	})

	t.Run("handler error stops replay", func(t *testing.T) {
		r := strings.NewReader("{\"timestamp\":1}\n{\"timestamp\":2}\n")
		n, err := ReadTicks(context.Background(), r, func(market.TickInput) error { return errStop })
		assert.ErrorIs(t, err, errStop)
		assert.Equal(t, 0, n)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ReadTicks(ctx, strings.NewReader("{\"timestamp\":1}\n"), func(market.TickInput) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLogSink_Publish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	batch := market.OrderBatch{}
	batch.Add(market.Order{Symbol: "A", Price: 100, Quantity: 5})
	batch.Add(market.Order{Symbol: "B", Price: 50, Quantity: -2})
	require.NoError(t, sink.Publish(OrderMessage{Tick: 9, Orders: batch}))

	assert.Equal(t, 2, logs.FilterMessage("order").Len())
	assert.Equal(t, 1, logs.FilterField(zap.String("symbol", "B")).Len())
}

func TestLogSink_NetQuantity(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	batch := market.OrderBatch{}
	batch.Add(market.Order{Symbol: "A", Price: 99, Quantity: 7})
	batch.Add(market.Order{Symbol: "A", Price: 101, Quantity: -3})
	require.NoError(t, sink.Publish(OrderMessage{Tick: 4, Orders: batch}))

	net := logs.FilterMessage("net").All()
	require.Len(t, net, 1)
	assert.Equal(t, int64(4), net[0].ContextMap()["quantity"])
}

// tickServer sends perConn ticks on every connection and then drops it.
func tickServer(t *testing.T, perConn int) (*httptest.Server, *int32) {
	t.Helper()
	var conns int32
	var seq int64
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&conns, 1)
		for i := 0; i < perConn; i++ {
			ts := atomic.AddInt64(&seq, 1)
			msg := market.TickInput{Timestamp: ts}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSource_ReadsInOrder(t *testing.T) {
	srv, _ := tickServer(t, 3)
	src := NewWebSocketSource(WebSocketConfig{URL: wsURL(srv), ReconnectDelay: time.Millisecond})

	var got []int64
	err := src.Run(context.Background(), func(in market.TickInput) error {
		got = append(got, in.Timestamp)
		if len(got) == 3 {
			return errStop
		}
		return nil
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestWebSocketSource_Reconnects(t *testing.T) {
	srv, conns := tickServer(t, 1)
	src := NewWebSocketSource(WebSocketConfig{URL: wsURL(srv), ReconnectDelay: time.Millisecond})

	var got []int64
	err := src.Run(context.Background(), func(in market.TickInput) error {
		got = append(got, in.Timestamp)
		if len(got) == 3 {
			return errStop
		}
		return nil
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.GreaterOrEqual(t, atomic.LoadInt32(conns), int32(3))
}

func TestWebSocketSource_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	src := NewWebSocketSource(WebSocketConfig{
		URL:                  url,
		ReconnectDelay:       time.Millisecond,
		MaxReconnectDelay:    2 * time.Millisecond,
		MaxReconnectAttempts: 2,
	})
	err := src.Run(context.Background(), func(market.TickInput) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWebSocketSource_ContextCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewWebSocketSource(WebSocketConfig{URL: wsURL(srv)}).Run(ctx, func(market.TickInput) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
