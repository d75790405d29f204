// Package trader wires the engine to its feed, order sink, metrics, health
// and checkpoint components and drives the tick loop.
package trader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yourusername/quantlink-pairs-engine/pkg/checkpoint"
	"github.com/yourusername/quantlink-pairs-engine/pkg/config"
	"github.com/yourusername/quantlink-pairs-engine/pkg/feed"
	"github.com/yourusername/quantlink-pairs-engine/pkg/market"
	"github.com/yourusername/quantlink-pairs-engine/pkg/metrics"
	"github.com/yourusername/quantlink-pairs-engine/pkg/strategy"
)

// ServiceName is the gRPC health service reported while ticks are flowing.
const ServiceName = "pairs-engine"

// Trader owns one engine and everything around it.
type Trader struct {
	Config *config.Config

	log      *zap.Logger
	registry *prometheus.Registry
	recorder *metrics.Recorder
	engine   *strategy.Engine

	source feed.Source
	sink   feed.Sink
	nc     *nats.Conn

	health        *health.Server
	grpcServer    *grpc.Server
	metricsServer *http.Server
}

// Option customizes a Trader.
type Option func(*Trader)

// WithSource replaces the configured feed.
func WithSource(s feed.Source) Option {
	return func(t *Trader) { t.source = s }
}

// WithSink replaces the configured order sink.
func WithSink(s feed.Sink) Option {
	return func(t *Trader) { t.sink = s }
}

// NewTrader creates a trader. Nothing is started until Initialize.
func NewTrader(cfg *config.Config, log *zap.Logger, opts ...Option) (*Trader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &Trader{
		Config:   cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		health:   health.NewServer(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Engine returns the engine after Initialize.
func (t *Trader) Engine() *strategy.Engine { return t.engine }

// Health returns the gRPC health service.
func (t *Trader) Health() *health.Server { return t.health }

// Registry returns the Prometheus registry holding the engine collectors.
func (t *Trader) Registry() *prometheus.Registry { return t.registry }

// Initialize builds the engine, restores a checkpoint when configured and
// starts the metrics and health listeners.
func (t *Trader) Initialize() error {
	t.log.Info("[Trader] initializing",
		zap.String("name", t.Config.System.Name),
		zap.String("mode", t.Config.System.Mode))

	t.recorder = metrics.NewRecorder(t.registry)
	engine, err := strategy.NewEngine(t.Config.Engine,
		strategy.WithLogger(t.log),
		strategy.WithRecorder(t.recorder))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// The engine is only adopted once restored, so a failed restore never
	// lets Stop overwrite the checkpoint with fresh state.
	if t.Config.Checkpoint.Restore && t.Config.Checkpoint.Path != "" {
		snap, err := checkpoint.Load(t.Config.Checkpoint.Path)
		if err != nil {
			return err
		}
		if snap == nil {
			t.log.Info("[Trader] no checkpoint found, starting fresh", zap.String("path", t.Config.Checkpoint.Path))
		} else {
			if err := engine.Restore(snap.Engine); err != nil {
				return fmt.Errorf("failed to restore checkpoint: %w", err)
			}
			t.log.Info("[Trader] checkpoint restored",
				zap.String("run_id", snap.RunID),
				zap.Time("saved_at", snap.SavedAt))
		}
	}
	t.engine = engine

	if err := t.connectFeed(); err != nil {
		return err
	}

	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	if addr := t.Config.Health.GRPCAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		t.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(t.grpcServer, t.health)
		go func() {
			if err := t.grpcServer.Serve(lis); err != nil {
				t.log.Error("[Trader] health server stopped", zap.Error(err))
			}
		}()
		t.log.Info("[Trader] health server listening", zap.String("addr", addr))
	}

	if addr := t.Config.Metrics.Addr; addr != "" {
		srv, err := metrics.Serve(addr, t.registry, t.log)
		if err != nil {
			return err
		}
		t.metricsServer = srv
		t.log.Info("[Trader] metrics listening", zap.String("addr", srv.Addr))
	}
	return nil
}

func (t *Trader) connectFeed() error {
	fc := t.Config.Feed
	if t.source == nil {
		switch fc.Kind {
		case config.FeedKindFile:
			t.source = feed.NewFileSource(fc.Path, t.log)
		case config.FeedKindWebSocket:
			t.source = feed.NewWebSocketSource(feed.WebSocketConfig{URL: fc.URL, Logger: t.log})
		case config.FeedKindNATS:
			if err := t.dialNATS(); err != nil {
				return err
			}
			t.source = feed.NewNATSSource(t.nc, fc.Subject, t.log)
		default:
			return fmt.Errorf("feed.kind %q: %w", fc.Kind, config.ErrInvalidConfig)
		}
	}

	if t.sink == nil {
		if fc.OrdersSubject != "" {
			if err := t.dialNATS(); err != nil {
				return err
			}
			t.sink = feed.NewNATSPublisher(t.nc, fc.OrdersSubject)
		} else {
			t.sink = feed.NewLogSink(t.log)
		}
	}
	t.log.Info("[Trader] feed ready", zap.String("source", t.source.Name()))
	return nil
}

func (t *Trader) dialNATS() error {
	if t.nc != nil {
		return nil
	}
	url := t.Config.Feed.URL
	if t.Config.Feed.Kind != config.FeedKindNATS || url == "" {
		url = config.DefaultNATSURL
	}
	nc, err := feed.Connect(url, t.log)
	if err != nil {
		return err
	}
	t.nc = nc
	return nil
}

// Run processes ticks until the feed ends or ctx is cancelled. A replay
// feed that runs to completion returns nil.
func (t *Trader) Run(ctx context.Context) error {
	if t.engine == nil {
		return fmt.Errorf("trader not initialized")
	}
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	defer t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	t.log.Info("[Trader] running", zap.String("source", t.source.Name()))
	err := t.source.Run(ctx, t.handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (t *Trader) handle(in market.TickInput) error {
	batch := t.engine.OnTick(in)
	if ce := t.log.Check(zap.DebugLevel, "[Trader] tick"); ce != nil {
		report := t.engine.LastReport()
		ce.Write(zap.Int64("tick", report.Tick),
			zap.Int("signals", len(report.Signals)),
			zap.Int("pairs", len(report.Pairs)),
			zap.Int("orders", report.Orders))
	}
	msg := feed.OrderMessage{Tick: t.engine.Tick(), Timestamp: in.Timestamp, Orders: batch}
	if err := t.sink.Publish(msg); err != nil {
		return fmt.Errorf("tick %d: %w", msg.Tick, err)
	}
	return nil
}

// Checkpoint writes the current engine state when a path is configured.
func (t *Trader) Checkpoint() error {
	if t.engine == nil || t.Config.Checkpoint.Path == "" {
		return nil
	}
	snap := checkpoint.New(t.engine.Snapshot())
	if err := checkpoint.Save(t.Config.Checkpoint.Path, snap); err != nil {
		return err
	}
	t.log.Info("[Trader] checkpoint saved",
		zap.String("path", t.Config.Checkpoint.Path),
		zap.String("run_id", snap.RunID),
		zap.Int64("tick", snap.Engine.Tick))
	return nil
}

// Stop saves a checkpoint and shuts every listener down.
func (t *Trader) Stop() error {
	t.log.Info("[Trader] stopping")
	err := t.Checkpoint()

	t.health.Shutdown()
	if t.grpcServer != nil {
		t.grpcServer.GracefulStop()
	}
	if t.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := t.metricsServer.Shutdown(ctx); serr != nil {
			t.log.Warn("[Trader] metrics shutdown", zap.Error(serr))
		}
	}
	if t.nc != nil {
		if derr := t.nc.Drain(); derr != nil {
			t.log.Warn("[Trader] NATS drain", zap.Error(derr))
		}
	}
	return err
}
