package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-pairs-engine/pkg/config"
	"github.com/yourusername/quantlink-pairs-engine/pkg/logging"
	"github.com/yourusername/quantlink-pairs-engine/pkg/trader"
)

const (
	appName    = "PairsEngine"
	appVersion = "1.0.0"
)

var (
	configFile = flag.String("config", "./config/engine.yaml", "Configuration file path")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	restore    = flag.Bool("restore", false, "Restore engine state from the checkpoint file")
	version    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[Main] Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *restore {
		cfg.Checkpoint.Restore = true
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[Main] Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("[Main] exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("[Main] stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("[Main] starting",
		zap.String("app", appName),
		zap.String("version", appVersion),
		zap.String("config", *configFile),
		zap.Int("instruments", len(cfg.Engine.Instruments)),
		zap.Int("pairs", len(cfg.Engine.Pairs)),
		zap.Int("baskets", len(cfg.Engine.Baskets)))

	t, err := trader.NewTrader(cfg, log)
	if err != nil {
		return err
	}
	if err := t.Initialize(); err != nil {
		_ = t.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := t.Run(ctx)
	if runErr != nil {
		log.Error("[Main] feed stopped", zap.Error(runErr))
	}
	if err := t.Stop(); err != nil {
		log.Error("[Main] shutdown", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
