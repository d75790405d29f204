// Package logging builds the zap loggers used by the engine process.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production logger at level. When jsonOutput is false the
// development console encoder is used instead.
func New(level string, jsonOutput bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	var cfg zap.Config
	if jsonOutput {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Component returns a child logger tagged the way engine components log:
// "[Kind:id]" as the logger name plus a structured id field.
func Component(base *zap.Logger, kind, id string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return base.Named(fmt.Sprintf("%s:%s", kind, id)).With(zap.String("id", id))
}
