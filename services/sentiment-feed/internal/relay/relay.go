// services/sentiment-feed/internal/relay/relay.go

// Package relay пересылает новые события каналов в Kafka:
// топик <topic_prefix>.<channel>, ключ — cryptocurrency, значение — JSON события.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	commonkafka "github.com/YaganovValera/analytics-system/common/kafka"
	"github.com/YaganovValera/analytics-system/common/kafka/producer"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/feed"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/store"
)

var tracer = otel.Tracer("sentiment-feed/relay")

// Config — настройки релея.
type Config struct {
	Enabled     bool            `mapstructure:"enabled"`
	Channels    []string        `mapstructure:"channels"`
	TopicPrefix string          `mapstructure:"topic_prefix"`
	QueueSize   int             `mapstructure:"queue_size"`
	Kafka       producer.Config `mapstructure:"kafka"`
}

// ApplyDefaults заполняет пустые поля.
func (c *Config) ApplyDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "sentiment-feed"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if len(c.Channels) == 0 {
		for _, ch := range channel.All() {
			c.Channels = append(c.Channels, string(ch))
		}
	}
	// Ping продьюсера проверяет ровно топики релея
	if len(c.Kafka.Topics) == 0 {
		for _, s := range c.Channels {
			if ch, err := channel.Lookup(s); err == nil {
				c.Kafka.Topics = append(c.Kafka.Topics, c.TopicPrefix+"."+string(ch))
			}
		}
	}
}

// Validate проверяет каналы и брокеров (только при Enabled).
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	for _, s := range c.Channels {
		if _, err := channel.Lookup(s); err != nil {
			return fmt.Errorf("relay.channels: %w", err)
		}
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("relay.kafka.brokers is required when relay is enabled")
	}
	return nil
}

// Source — то, что релей берёт у фасада.
type Source interface {
	Subscribe(ch channel.Name, f filter.Filter) (feed.Handle, error)
	Unsubscribe(h feed.Handle)
	OnChange(ch channel.Name, fn func(store.Change)) (cancel func(), err error)
}

type message struct {
	channel channel.Name
	topic   string
	key     []byte
	value   []byte
}

// Relay держит по подписке на канал и публикует инкременты из очереди.
// Переполненная очередь отбрасывает событие, поток чтения не блокируется.
type Relay struct {
	cfg   Config
	src   Source
	pub   commonkafka.Producer
	log   *logger.Logger
	queue chan message

	mu      sync.Mutex
	handles []feed.Handle
	cancels []func()
}

// New проверяет каналы; подписки ставит Run.
func New(cfg Config, src Source, pub commonkafka.Producer, log *logger.Logger) (*Relay, error) {
	cfg.ApplyDefaults()
	for _, s := range cfg.Channels {
		if _, err := channel.Lookup(s); err != nil {
			return nil, fmt.Errorf("relay: %w", err)
		}
	}
	return &Relay{
		cfg:   cfg,
		src:   src,
		pub:   pub,
		log:   log.Named("relay"),
		queue: make(chan message, cfg.QueueSize),
	}, nil
}

// Topic — имя топика для канала.
func (r *Relay) Topic(ch channel.Name) string { return r.cfg.TopicPrefix + "." + string(ch) }

// Run подписывается на каналы и публикует до отмены ctx.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.attach(); err != nil {
		r.detach()
		return err
	}
	defer r.detach()
	r.log.Info("relay started", zap.Strings("channels", r.cfg.Channels), zap.String("topic_prefix", r.cfg.TopicPrefix))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopped")
			return nil
		case m := <-r.queue:
			r.publish(ctx, m)
		}
	}
}

func (r *Relay) attach() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.cfg.Channels {
		ch, err := channel.Lookup(s)
		if err != nil {
			return err
		}
		cancel, err := r.src.OnChange(ch, r.onChange)
		if err != nil {
			return fmt.Errorf("relay: observe %s: %w", ch, err)
		}
		r.cancels = append(r.cancels, cancel)

		h, err := r.src.Subscribe(ch, filter.Filter{})
		if err != nil {
			return fmt.Errorf("relay: subscribe %s: %w", ch, err)
		}
		r.handles = append(r.handles, h)
	}
	return nil
}

func (r *Relay) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels {
		cancel()
	}
	for _, h := range r.handles {
		r.src.Unsubscribe(h)
	}
	r.cancels, r.handles = nil, nil
}

// onChange вызывается в горутине транспорта и не должна блокироваться.
func (r *Relay) onChange(c store.Change) {
	if c.Kind != store.KindIncrement || c.Event == nil {
		return
	}
	value, err := json.Marshal(c.Event)
	if err != nil {
		metrics.RelayPublished.WithLabelValues(string(c.Channel), "encode_error").Inc()
		r.log.Error("encode event", zap.String("channel", string(c.Channel)), zap.Error(err))
		return
	}
	key, _ := c.Event.Field("cryptocurrency")

	select {
	case r.queue <- message{channel: c.Channel, topic: r.Topic(c.Channel), key: []byte(key), value: value}:
	default:
		metrics.RelayPublished.WithLabelValues(string(c.Channel), "dropped").Inc()
		r.log.Warn("relay queue full, event dropped",
			zap.String("channel", string(c.Channel)), zap.String("id", c.Event.EventID()))
	}
}

func (r *Relay) publish(ctx context.Context, m message) {
	ctx, span := tracer.Start(ctx, "relay.Publish",
		trace.WithAttributes(
			attribute.String("channel", string(m.channel)),
			attribute.String("topic", m.topic),
		))
	defer span.End()

	if err := r.pub.Publish(ctx, m.topic, m.key, m.value); err != nil {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		metrics.RelayPublished.WithLabelValues(string(m.channel), "error").Inc()
		r.log.Warn("relay publish failed", zap.String("topic", m.topic), zap.Error(err))
		return
	}
	metrics.RelayPublished.WithLabelValues(string(m.channel), "ok").Inc()
}
