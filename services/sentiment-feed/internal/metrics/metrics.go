// services/sentiment-feed/internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ActiveSubscriptions — число уникальных (channel, filter) с refcount > 0.
	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentiment_feed",
		Subsystem: "router",
		Name:      "active_subscriptions",
		Help:      "Distinct (channel, filter) subscriptions held on the wire",
	})

	// Intents — отправленные на провод subscribe/unsubscribe.
	Intents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentiment_feed",
		Subsystem: "router",
		Name:      "intents_total",
		Help:      "Subscribe/unsubscribe intents handed to the transport",
	}, []string{"op"})

	// BufferLength — текущая длина буфера канала.
	BufferLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sentiment_feed",
		Subsystem: "store",
		Name:      "buffer_length",
		Help:      "Events currently held per channel",
	}, []string{"channel"})

	// DuplicateEvents — инкременты, отброшенные по id.
	DuplicateEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentiment_feed",
		Subsystem: "store",
		Name:      "duplicate_events_total",
		Help:      "Increments discarded because the id was already buffered",
	}, []string{"channel"})

	// Watchers — активные потребители (Watch / SSE).
	Watchers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sentiment_feed",
		Subsystem: "feed",
		Name:      "watchers",
		Help:      "Active channel watchers",
	}, []string{"channel"})

	// RelayPublished — результаты публикации релея в Kafka.
	RelayPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentiment_feed",
		Subsystem: "relay",
		Name:      "published_total",
		Help:      "Events relayed to Kafka by status",
	}, []string{"channel", "status"})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			ActiveSubscriptions,
			Intents,
			BufferLength,
			DuplicateEvents,
			Watchers,
			RelayPublished,
		)
	})
}
