// services/sentiment-feed/cmd/sentiment-feed/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/configloader"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/app"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/config"
)

func main() {
	var (
		configPath string
		printCfg   bool
	)
	pflag.StringVar(&configPath, "config", "", "path to config file (defaults + ENV when empty)")
	pflag.BoolVar(&printCfg, "print-config", false, "print effective config and exit")
	pflag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if printCfg {
		configloader.PrintConfig(os.Stdout, cfg)
		return
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting sentiment-feed",
		zap.String("service.name", cfg.ServiceName),
		zap.String("service.version", cfg.ServiceVersion),
		zap.String("config.path", configPath),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sentiment-feed exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("sentiment-feed shut down cleanly")
}
