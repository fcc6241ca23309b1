// services/sentiment-feed/internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/YaganovValera/analytics-system/common/configloader"
	"github.com/YaganovValera/analytics-system/common/httpserver"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/common/telemetry"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/feed"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/relay"
)

// EnvPrefix — префикс ENV: feed.url → SENTIMENT_FEED_FEED_URL.
const EnvPrefix = "SENTIMENT_FEED"

// -----------------------------------------------------------------------------
// Структуры
// -----------------------------------------------------------------------------

// Config — все настройки сервиса sentiment-feed.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	Feed          feed.Config       `mapstructure:"feed"`
	Subscriptions []Subscription    `mapstructure:"subscriptions"`
	API           APIConfig         `mapstructure:"api"`
	HTTP          httpserver.Config `mapstructure:"http"`
	Relay         relay.Config      `mapstructure:"relay"`
	Telemetry     telemetry.Config  `mapstructure:"telemetry"`
	Logging       logger.Config     `mapstructure:"logging"`
}

// Subscription — постоянная подписка сервиса: держит буфер канала тёплым
// для HTTP-чтения без активных SSE-клиентов.
type Subscription struct {
	Channel string            `mapstructure:"channel"`
	Filters map[string]string `mapstructure:"filters"`
}

// Resolve возвращает канал и нормализованный фильтр.
func (s Subscription) Resolve() (channel.Name, filter.Filter, error) {
	ch, err := channel.Lookup(s.Channel)
	if err != nil {
		return "", filter.Filter{}, err
	}
	return ch, filter.New(s.Filters), nil
}

// APIConfig — HTTP API поверх фасада.
type APIConfig struct {
	CORSOrigins []string      `mapstructure:"cors_origins"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
}

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------

// Defaults — значения по умолчанию; каждый ключ переопределяется через ENV.
var Defaults = configloader.Defaults{
	"service_name":    "sentiment-feed",
	"service_version": "v1.0.0",

	"feed.url":                    "ws://localhost:5000/ws",
	"feed.connect_timeout":        "5s",
	"feed.max_reconnect_attempts": 3,
	"feed.read_timeout":           "30s",
	"feed.ping_interval":          "10s",
	"feed.write_timeout":          "5s",
	"feed.buffer_capacity":        100,
	"feed.fallback":               string(feed.FallbackNone),

	"feed.backoff.initial_interval": "500ms",
	"feed.backoff.max_interval":     "5s",
	"feed.backoff.multiplier":       2.0,

	"subscriptions": []map[string]interface{}{
		{"channel": string(channel.Sentiment)},
		{"channel": string(channel.Trends)},
		{"channel": string(channel.Transactions)},
	},

	"api.cors_origins": []string{},
	"api.heartbeat":    "15s",

	"http.addr":             ":8090",
	"http.read_timeout":     "10s",
	"http.write_timeout":    "15s",
	"http.idle_timeout":     "60s",
	"http.shutdown_timeout": "5s",
	"http.metrics_path":     "/metrics",
	"http.healthz_path":     "/healthz",
	"http.readyz_path":      "/readyz",

	"relay.enabled":           false,
	"relay.topic_prefix":      "sentiment-feed",
	"relay.queue_size":        256,
	"relay.kafka.brokers":     []string{},
	"relay.kafka.acks":        "all",
	"relay.kafka.timeout":     "15s",
	"relay.kafka.compression": "none",
	"relay.kafka.topics":      []string{},

	"telemetry.enabled":       false,
	"telemetry.otel_endpoint": "otel-collector:4317",
	"telemetry.insecure":      true,
	"telemetry.sampler_ratio": 1.0,

	"logging.level":    "info",
	"logging.dev_mode": false,
}

// -----------------------------------------------------------------------------
// Loader
// -----------------------------------------------------------------------------

// Load читает defaults → файл (если path не пуст) → ENV и валидирует результат.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := configloader.Load(path, EnvPrefix, Defaults, &cfg); err != nil {
		return nil, err
	}
	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	cfg.Relay.ApplyDefaults()
	return &cfg, nil
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// Feed
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.MaxReconnectAttempts < 0 {
		return fmt.Errorf("feed.max_reconnect_attempts must be >= 0")
	}
	switch c.Feed.Fallback {
	case feed.FallbackNone, feed.FallbackMock:
	default:
		return fmt.Errorf("feed.fallback must be one of [none, mock]")
	}

	for i, s := range c.Subscriptions {
		if _, _, err := s.Resolve(); err != nil {
			return fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
	}

	if err := c.Relay.Validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}
