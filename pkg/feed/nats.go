package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Connect dials NATS with the reconnect policy used by every feed component.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("pairs-engine"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("[NATS] disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("[NATS] reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NATSSource reads JSON ticks from a NATS subject.
type NATSSource struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
	buffer  int
}

// NewNATSSource creates a source on an existing connection.
func NewNATSSource(conn *nats.Conn, subject string, log *zap.Logger) *NATSSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSSource{conn: conn, subject: subject, log: log, buffer: 1024}
}

// Name implements Source.
func (s *NATSSource) Name() string { return "nats:" + s.subject }

// Run implements Source. Messages are queued on a channel and handled on the
// calling goroutine in arrival order; undecodable messages are skipped.
func (s *NATSSource) Run(ctx context.Context, handle Handler) error {
	ch := make(chan *nats.Msg, s.buffer)
	sub, err := s.conn.ChanSubscribe(s.subject, ch)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.log.Info("[NATS] subscribed", zap.String("subject", s.subject))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			in, err := DecodeTick(msg.Data)
			if err != nil {
				s.log.Warn("[NATS] dropping message", zap.Error(err))
				continue
			}
			if err := handle(in); err != nil {
				return err
			}
		}
	}
}

// NATSPublisher publishes order messages to a subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher creates a publisher on an existing connection.
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Publish implements Sink.
func (p *NATSPublisher) Publish(msg OrderMessage) error {
	data, err := EncodeOrders(msg)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish orders: %w", err)
	}
	return nil
}
