// common/middleware/logger.go
package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/logger"
)

// RequestLogger логирует входящие HTTP-запросы с контекстом.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrapWriter(w)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
			}
			entry := log.WithContext(r.Context())
			switch {
			case ww.status >= 500:
				entry.Error("HTTP request", fields...)
			case ww.status >= 400:
				entry.Warn("HTTP request", fields...)
			default:
				entry.Info("HTTP request", fields...)
			}
		})
	}
}
