// services/sentiment-feed/internal/transport/config.go
package transport

import (
	"fmt"
	"net/url"
	"time"

	"github.com/YaganovValera/analytics-system/common/backoff"
)

// Config — параметры подключения к источнику данных.
type Config struct {
	URL string `mapstructure:"url"`

	// ConnectTimeout ограничивает одну попытку подключения (вместе с handshake).
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// MaxReconnectAttempts — число повторов после первой неудачной попытки.
	// После исчерпания клиент остаётся offline навсегда.
	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts"`

	ReadTimeout  time.Duration  `mapstructure:"read_timeout"`
	PingInterval time.Duration  `mapstructure:"ping_interval"`
	WriteTimeout time.Duration  `mapstructure:"write_timeout"`
	Backoff      backoff.Config `mapstructure:"backoff"`
}

// ApplyDefaults applies fallback defaults if values are unset.
func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 3
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout / 3
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Backoff.InitialInterval <= 0 {
		c.Backoff.InitialInterval = 500 * time.Millisecond
	}
	if c.Backoff.MaxInterval <= 0 {
		c.Backoff.MaxInterval = 5 * time.Second
	}
}

// Validate checks config for required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("transport: URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("transport: invalid URL %q: %w", c.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("transport: URL scheme must be ws or wss, got %q", u.Scheme)
	}
	return nil
}
