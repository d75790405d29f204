package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketConfig configures a WebSocketSource.
type WebSocketConfig struct {
	URL                  string
	Logger               *zap.Logger
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
}

// WebSocketSource reads JSON ticks from a websocket, reconnecting with
// exponential backoff when the connection drops.
type WebSocketSource struct {
	url                  string
	log                  *zap.Logger
	reconnectDelay       time.Duration
	maxReconnectDelay    time.Duration
	maxReconnectAttempts int
	dialer               websocket.Dialer
}

// NewWebSocketSource applies defaults and creates the source.
func NewWebSocketSource(cfg WebSocketConfig) *WebSocketSource {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay == 0 {
		cfg.MaxReconnectDelay = 30 * time.Second
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 10
	}
	return &WebSocketSource{
		url:                  cfg.URL,
		log:                  cfg.Logger,
		reconnectDelay:       cfg.ReconnectDelay,
		maxReconnectDelay:    cfg.MaxReconnectDelay,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
		dialer:               websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Name implements Source.
func (s *WebSocketSource) Name() string { return "websocket:" + s.url }

// Run implements Source.
func (s *WebSocketSource) Run(ctx context.Context, handle Handler) error {
	attempt := 0
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err == nil {
			s.log.Info("[WebSocket] connected", zap.String("url", s.url))
			attempt = 0
			err = s.readLoop(ctx, conn, handle)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if herr, ok := err.(handlerError); ok {
				return herr.err
			}
			s.log.Error("[WebSocket] read error", zap.Error(err))
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt >= s.maxReconnectAttempts {
			return fmt.Errorf("max reconnect attempts (%d) reached: %w", s.maxReconnectAttempts, ErrClosed)
		}

		// exponential backoff capped at maxReconnectDelay
		delay := s.reconnectDelay * time.Duration(1<<uint(attempt))
		if delay > s.maxReconnectDelay {
			delay = s.maxReconnectDelay
		}
		attempt++
		s.log.Info("[WebSocket] reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", s.maxReconnectAttempts),
			zap.Duration("delay", delay),
			zap.NamedError("cause", err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// handlerError marks an error returned by the tick handler, which ends Run
// instead of triggering a reconnect.
type handlerError struct{ err error }

func (e handlerError) Error() string { return e.err.Error() }

func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn, handle Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		in, err := DecodeTick(data)
		if err != nil {
			s.log.Warn("[WebSocket] dropping message", zap.Error(err))
			continue
		}
		if err := handle(in); err != nil {
			return handlerError{err: err}
		}
	}
}
