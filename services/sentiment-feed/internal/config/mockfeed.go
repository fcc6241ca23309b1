// services/sentiment-feed/internal/config/mockfeed.go
package config

import (
	"fmt"

	"github.com/YaganovValera/analytics-system/common/configloader"
	"github.com/YaganovValera/analytics-system/common/httpserver"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/mockserver"
)

// MockFeedEnvPrefix — префикс ENV для локального источника.
const MockFeedEnvPrefix = "MOCK_FEED"

// MockFeed — настройки бинаря mock-feed.
type MockFeed struct {
	ServiceName string            `mapstructure:"service_name"`
	WSPath      string            `mapstructure:"ws_path"`
	Source      mockserver.Config `mapstructure:"source"`
	HTTP        httpserver.Config `mapstructure:"http"`
	Logging     logger.Config     `mapstructure:"logging"`
}

// MockFeedDefaults — значения по умолчанию mock-feed.
var MockFeedDefaults = configloader.Defaults{
	"service_name": "mock-feed",
	"ws_path":      "/ws",

	"source.interval":     "2s",
	"source.history_size": 100,
	"source.seed":         1,

	"http.addr":             ":5000",
	"http.read_timeout":     "10s",
	"http.write_timeout":    "15s",
	"http.shutdown_timeout": "5s",
	"http.metrics_path":     "/metrics",
	"http.healthz_path":     "/healthz",
	"http.readyz_path":      "/readyz",

	"logging.level":    "info",
	"logging.dev_mode": true,
}

// LoadMockFeed читает конфиг mock-feed.
func LoadMockFeed(path string) (*MockFeed, error) {
	var cfg MockFeed
	if err := configloader.Load(path, MockFeedEnvPrefix, MockFeedDefaults, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *MockFeed) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Source.Interval <= 0 {
		return fmt.Errorf("source.interval must be > 0")
	}
	if len(c.WSPath) == 0 || c.WSPath[0] != '/' {
		return fmt.Errorf("ws_path must start with '/'")
	}
	for _, p := range []string{c.HTTP.MetricsPath, c.HTTP.HealthzPath, c.HTTP.ReadyzPath} {
		if p != "" && p == c.WSPath {
			return fmt.Errorf("ws_path %q collides with a service endpoint", p)
		}
	}
	return nil
}
