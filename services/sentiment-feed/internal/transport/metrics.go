// services/sentiment-feed/internal/transport/metrics.go
package transport

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	wsConnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentiment_feed", Subsystem: "ws", Name: "connects_total",
		Help: "WebSocket connection attempts by status",
	}, []string{"status"})

	wsErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentiment_feed", Subsystem: "ws", Name: "errors_total",
		Help: "Categorized WebSocket errors",
	}, []string{"type"})

	wsMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentiment_feed", Subsystem: "ws", Name: "messages_total",
		Help: "Frames received from the data source by event",
	}, []string{"event"})

	wsDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentiment_feed", Subsystem: "ws", Name: "drops_total",
		Help: "Inbound frames ignored or outbound intents dropped",
	}, []string{"reason"})

	wsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentiment_feed", Subsystem: "ws", Name: "connected",
		Help: "1 while the data-source connection is up",
	})
)

// RegisterMetrics регистрирует метрики транспорта (один раз).
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{wsConnects, wsErrors, wsMessages, wsDrops, wsConnected} {
			_ = r.Register(c)
		}
	})
}

func incConnect(status string) { wsConnects.WithLabelValues(status).Inc() }
func incError(errType string)  { wsErrors.WithLabelValues(errType).Inc() }
func incMessage(event string)  { wsMessages.WithLabelValues(event).Inc() }
func incDrop(reason string)    { wsDrops.WithLabelValues(reason).Inc() }

func setConnectedGauge(v bool) {
	if v {
		wsConnected.Set(1)
		return
	}
	wsConnected.Set(0)
}
