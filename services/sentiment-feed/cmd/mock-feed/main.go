// services/sentiment-feed/cmd/mock-feed/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/common/shutdown"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/app"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/config"
)

func main() {
	var (
		cfgFile  string
		addr     string
		interval time.Duration
	)

	root := &cobra.Command{
		Use:   "mock-feed",
		Short: "Local sentiment/trends/transactions WebSocket source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadMockFeed(cfgFile)
			if err != nil {
				return err
			}
			// флаги перекрывают файл и ENV
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("interval") {
				cfg.Source.Interval = interval
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go shutdown.WaitForSignals(ctx, cancel, log)

			log.Info("starting mock-feed", zap.String("config.path", cfgFile))
			return app.RunMockFeed(ctx, cfg, clockwork.NewRealClock(), log)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVar(&cfgFile, "config", "", "path to config file")
	root.Flags().StringVar(&addr, "addr", ":5000", "listen address")
	root.Flags().DurationVar(&interval, "interval", 2*time.Second, "generator interval")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
