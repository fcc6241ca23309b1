// services/sentiment-feed/internal/app/mockfeed.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/analytics-system/common"
	"github.com/YaganovValera/analytics-system/common/httpserver"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/config"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/mockserver"
)

// RunMockFeed поднимает локальный WebSocket-источник на cfg.WSPath.
func RunMockFeed(ctx context.Context, cfg *config.MockFeed, clock clockwork.Clock, log *logger.Logger) error {
	common.InitServiceName(cfg.ServiceName)

	src := mockserver.New(cfg.Source, clock, log)

	mux := http.NewServeMux()
	mux.Handle(cfg.WSPath, src)

	httpSrv, err := httpserver.New(cfg.HTTP, nil, log, mux, httpserver.RecoverMiddleware(log))
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return src.Run(ctx) })
	g.Go(func() error { return httpSrv.Start(ctx) })

	log.WithContext(ctx).Info("mock-feed: running",
		zap.String("http.addr", cfg.HTTP.Addr),
		zap.String("ws_path", cfg.WSPath),
		zap.Duration("interval", cfg.Source.Interval),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("mock-feed stopped")
	return nil
}
