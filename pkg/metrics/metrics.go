// Package metrics exports engine counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "pairs_engine"

// Recorder counts engine activity. It satisfies strategy.Recorder.
type Recorder struct {
	ticks       prometheus.Counter
	orders      *prometheus.CounterVec
	volume      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	notReady    *prometheus.CounterVec
	zscore      *prometheus.GaugeVec
}

// NewRecorder creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Ticks processed by the engine",
		}),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "orders_total", Help: "Orders planned"},
			[]string{"symbol", "side"},
		),
		volume: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "order_volume_total", Help: "Absolute quantity planned"},
			[]string{"symbol", "side"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "pair_transitions_total", Help: "Pair state changes"},
			[]string{"pair", "from", "to", "reason"},
		),
		notReady: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "pair_not_ready_total", Help: "Ticks where a pair z-score was unavailable"},
			[]string{"pair"},
		),
		zscore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "pair_zscore", Help: "Latest residual z-score"},
			[]string{"pair"},
		),
	}
	reg.MustRegister(r.ticks, r.orders, r.volume, r.transitions, r.notReady, r.zscore)
	return r
}

// Tick counts one processed tick.
func (r *Recorder) Tick() { r.ticks.Inc() }

// Order counts one planned order.
func (r *Recorder) Order(symbol, side string, quantity int64) {
	if quantity < 0 {
		quantity = -quantity
	}
	r.orders.WithLabelValues(symbol, side).Inc()
	r.volume.WithLabelValues(symbol, side).Add(float64(quantity))
}

// Transition counts a pair state change.
func (r *Recorder) Transition(pair, from, to, reason string) {
	r.transitions.WithLabelValues(pair, from, to, reason).Inc()
}

// PairReading records the z-score, or counts a not-ready tick.
func (r *Recorder) PairReading(pair string, z float64, ready bool) {
	if !ready {
		r.notReady.WithLabelValues(pair).Inc()
		return
	}
	r.zscore.WithLabelValues(pair).Set(z)
}

// Serve binds addr and exposes g under /metrics. A nil g uses the default
// gatherer. Bind errors are returned; errors after that are logged. The
// returned server's Addr is the bound address.
func Serve(addr string, g prometheus.Gatherer, log *zap.Logger) (*http.Server, error) {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: lis.Addr().String(), Handler: mux}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("[Metrics] server stopped", zap.Error(err))
		}
	}()
	return srv, nil
}
