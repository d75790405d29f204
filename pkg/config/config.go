// Package config loads and validates the engine configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Strategy names accepted in instruments[].strategies.
const (
	StrategyTrend         = "trend"
	StrategyMarketMaking  = "market_making"
	StrategyFairValue     = "fair_value"
	StrategyObservation   = "observation"
	HedgeModeKalman       = "kalman"
	HedgeModeFixed        = "fixed"
	FeedKindNATS          = "nats"
	FeedKindWebSocket     = "websocket"
	FeedKindFile          = "file"
	DefaultDelta          = 1e-4
	DefaultMeasurementVar = 1e-3
	DefaultResidualWindow = 100
	DefaultSweepLevels    = 2
	DefaultNATSURL        = "nats://127.0.0.1:4222"
)

// Environment variables that override file values.
const (
	EnvFeedURL        = "QL_FEED_URL"
	EnvMetricsAddr    = "QL_METRICS_ADDR"
	EnvLogLevel       = "QL_LOG_LEVEL"
	EnvCheckpointPath = "QL_CHECKPOINT_PATH"
)

// Config is the complete configuration for the engine process
type Config struct {
	System     SystemConfig     `yaml:"system"`
	Engine     EngineConfig     `yaml:"engine"`
	Feed       FeedConfig       `yaml:"feed"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Health     HealthConfig     `yaml:"health"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SystemConfig contains system-level configuration
type SystemConfig struct {
	Name string `yaml:"name"`
	Mode string `yaml:"mode"` // live, replay
}

// EngineConfig lists the traded instruments, pairs and baskets. Processing
// order on every tick follows the order of these lists.
type EngineConfig struct {
	Instruments []InstrumentConfig `yaml:"instruments"`
	Pairs       []PairConfig       `yaml:"pairs,omitempty"`
	Baskets     []BasketConfig     `yaml:"baskets,omitempty"`
}

// InstrumentConfig configures one tradable symbol
type InstrumentConfig struct {
	Symbol       string             `yaml:"symbol"`
	Limit        int64              `yaml:"limit"`       // absolute position limit
	SlowWindow   int                `yaml:"slow_window"` // also the history capacity
	FastWindow   int                `yaml:"fast_window"`
	Strategies   []string           `yaml:"strategies,omitempty"`
	Trend        TrendConfig        `yaml:"trend"`
	MarketMaking MarketMakingConfig `yaml:"market_making"`
	FairValue    FairValueConfig    `yaml:"fair_value"`
	Observation  ObservationConfig  `yaml:"observation"`
}

// HasStrategy reports whether name is enabled for the instrument.
func (ic InstrumentConfig) HasStrategy(name string) bool {
	for _, s := range ic.Strategies {
		if s == name {
			return true
		}
	}
	return false
}

// TrendConfig contains the directional strategy switches
type TrendConfig struct {
	ConfirmTrend bool  `yaml:"confirm_trend"`
	ConfirmAroon bool  `yaml:"confirm_aroon"`
	MaxSpread    int64 `yaml:"max_spread"` // 0 disables the gate

	// Directional orders are only placed while active_from < timestamp <
	// active_until. A zero bound is open.
	ActiveFrom  int64 `yaml:"active_from"`
	ActiveUntil int64 `yaml:"active_until"`
}

// Active reports whether ts falls inside the trading window.
func (tc TrendConfig) Active(ts int64) bool {
	if tc.ActiveFrom > 0 && ts <= tc.ActiveFrom {
		return false
	}
	if tc.ActiveUntil > 0 && ts >= tc.ActiveUntil {
		return false
	}
	return true
}

// MarketMakingConfig contains quoting parameters
type MarketMakingConfig struct {
	SpreadThreshold int64 `yaml:"spread_threshold"`
	BaseSize        int64 `yaml:"base_size"`
	Improve         int64 `yaml:"improve"`
	MinClip         bool  `yaml:"min_clip"`
}

// FairValueConfig contains the fixed fair value sweep parameters
type FairValueConfig struct {
	Price float64 `yaml:"price"`
	Edge  float64 `yaml:"edge"`
}

// ObservationConfig trades an instrument on jumps in an external
// observation series. A move of at least threshold latches the direction
// until headroom runs out.
type ObservationConfig struct {
	Signal    string  `yaml:"signal"`    // key in the tick's observations
	Threshold float64 `yaml:"threshold"` // minimum tick-over-tick change
	Levels    int     `yaml:"levels"`    // book levels swept per tick
}

// PairConfig configures one statistical-arbitrage pair. Y is regressed on X.
type PairConfig struct {
	ID               string  `yaml:"id"`
	X                string  `yaml:"x"`
	Y                string  `yaml:"y"`
	Mode             string  `yaml:"mode"` // kalman, fixed
	Delta            float64 `yaml:"delta"`
	MeasurementNoise float64 `yaml:"measurement_noise"`
	FixedRatio       float64 `yaml:"fixed_ratio"`
	FixedIntercept   float64 `yaml:"fixed_intercept"`
	ResidualWindow   int     `yaml:"residual_window"`
	MinSamples       int     `yaml:"min_samples"`
	EntryZ           float64 `yaml:"entry_z"`
	ExitZ            float64 `yaml:"exit_z"`
	MaxHoldTicks     int64   `yaml:"max_hold_ticks"`
	StopLoss         float64 `yaml:"stop_loss"`
	TakeProfit       float64 `yaml:"take_profit"`
	AllowScaleIn     bool    `yaml:"allow_scale_in"`
	MaxOrderSize     int64   `yaml:"max_order_size"`
	MaxLegSpread     int64   `yaml:"max_leg_spread"`
}

// BasketComponent is one weighted constituent of a basket.
type BasketComponent struct {
	Symbol string `yaml:"symbol"`
	Weight int64  `yaml:"weight"`
}

// BasketConfig configures a basket-versus-components arbitrage.
type BasketConfig struct {
	ID            string            `yaml:"id"`
	Basket        string            `yaml:"basket"`
	Components    []BasketComponent `yaml:"components"`
	SellThreshold float64           `yaml:"sell_threshold"`
	BuyThreshold  float64           `yaml:"buy_threshold"`
	MaxSpread     int64             `yaml:"max_spread"`
}

// FeedConfig selects where ticks come from
type FeedConfig struct {
	Kind          string `yaml:"kind"` // nats, websocket, file
	URL           string `yaml:"url"`
	Subject       string `yaml:"subject"`
	OrdersSubject string `yaml:"orders_subject"`
	Path          string `yaml:"path"`
}

// MetricsConfig contains the Prometheus listener address
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// HealthConfig contains the gRPC health listener address
type HealthConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
}

// CheckpointConfig controls state snapshots
type CheckpointConfig struct {
	Path    string `yaml:"path"`
	Restore bool   `yaml:"restore"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Load reads a YAML file, applies environment overrides and validates.
// A .env file in the working directory is loaded when present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	_ = godotenv.Load()

	return Parse(data, os.LookupEnv)
}

// Parse decodes YAML, applies overrides from lookup and validates.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if lookup != nil {
		cfg.ApplyEnv(lookup)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvFeedURL); ok && v != "" {
		c.Feed.URL = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok && v != "" {
		c.Metrics.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvCheckpointPath); ok && v != "" {
		c.Checkpoint.Path = v
	}
}

func invalid(path, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", path, fmt.Sprintf(format, args...), ErrInvalidConfig)
}
