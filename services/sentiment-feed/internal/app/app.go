// services/sentiment-feed/internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/analytics-system/common"
	"github.com/YaganovValera/analytics-system/common/httpserver"
	commonkafka "github.com/YaganovValera/analytics-system/common/kafka"
	producer "github.com/YaganovValera/analytics-system/common/kafka/producer"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/common/shutdown"
	"github.com/YaganovValera/analytics-system/common/telemetry"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/api"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/config"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/feed"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/relay"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/transport"
)

const pingTimeout = 2 * time.Second

// Run поднимает фасад, постоянные подписки, релей и HTTP API;
// блокируется до отмены ctx.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	common.InitServiceName(cfg.ServiceName)
	metrics.Register(nil)
	transport.RegisterMetrics(nil)

	// === Telemetry
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdown.Graceful("telemetry", cfg.HTTP.ShutdownTimeout, shutdownTracer, log)

	// === Feed
	svc, err := feed.New(cfg.Feed, log)
	if err != nil {
		return fmt.Errorf("feed init: %w", err)
	}
	defer shutdownSafe(ctx, "feed", svc.Close, log)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("feed start: %w", err)
	}
	for _, s := range cfg.Subscriptions {
		ch, f, err := s.Resolve()
		if err != nil {
			return fmt.Errorf("subscription %q: %w", s.Channel, err)
		}
		if _, err := svc.Subscribe(ch, f); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
		log.Info("standing subscription", zap.String("channel", string(ch)), zap.Stringer("filter", f))
	}

	g, ctx := errgroup.WithContext(ctx)

	// === Relay (опционально)
	var prod commonkafka.Producer
	if cfg.Relay.Enabled {
		prod, err = producer.New(ctx, cfg.Relay.Kafka, log)
		if err != nil {
			return fmt.Errorf("kafka producer init: %w", err)
		}
		defer shutdownSafe(ctx, "kafka-producer", prod.Close, log)

		rl, err := relay.New(cfg.Relay, svc, prod, log)
		if err != nil {
			return fmt.Errorf("relay init: %w", err)
		}
		g.Go(func() error { return rl.Run(ctx) })
	}

	// === HTTP
	readiness := readyCheck(ctx, svc, prod)
	heartbeat := cfg.API.Heartbeat
	if heartbeat <= 0 {
		heartbeat = api.DefaultHeartbeat
	}
	httpSrv, err := httpserver.New(cfg.HTTP, readiness, log,
		api.Routes(api.NewHandler(svc, log.Named("api"), heartbeat)),
		httpserver.RecoverMiddleware(log),
		httpserver.CORSMiddleware(cfg.API.CORSOrigins),
	)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}
	g.Go(func() error { return httpSrv.Start(ctx) })

	log.WithContext(ctx).Info("sentiment-feed: running",
		zap.String("feed.url", cfg.Feed.URL),
		zap.String("http.addr", cfg.HTTP.Addr),
		zap.Bool("relay.enabled", cfg.Relay.Enabled),
	)

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("sentiment-feed stopped by context")
			return nil
		}
		return err
	}
	return nil
}

// statusSource — часть фасада, нужная readiness.
type statusSource interface {
	Status() feed.Status
}

// readyCheck: фасад не offline, а при включённом релее кластер Kafka отвечает.
// pinger == nil, когда релей выключен.
func readyCheck(ctx context.Context, src statusSource, pinger commonkafka.Producer) httpserver.ReadyChecker {
	return func() error {
		if st := src.Status(); st.Mode == feed.ModeOffline {
			return errors.New("feed offline")
		}
		if pinger == nil {
			return nil
		}
		ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := pinger.Ping(ctxPing); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		return nil
	}
}

// shutdownSafe оборачивает Close()/Shutdown() с логированием.
func shutdownSafe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	log.WithContext(ctx).Info(name + ": shutting down")
	if err := fn(); err != nil {
		log.WithContext(ctx).Error(name+" shutdown error", zap.Error(err))
	} else {
		log.WithContext(ctx).Info(name + ": shutdown complete")
	}
}
