// services/sentiment-feed/internal/feed/service.go

// Package feed — фасад для потребителей: состояние соединения, чтение
// буферов, подписки со счётчиками и жизненный цикл Watcher.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/common/safe"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/mock"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/router"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/store"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/transport"
)

// ErrClosed — сервис уже остановлен.
var ErrClosed = errors.New("feed: service closed")

// ErrUnknownChannel — потребитель запросил канал вне реестра.
var ErrUnknownChannel = channel.ErrUnknownChannel

// Fallback — поведение после исчерпания попыток подключения.
type Fallback string

const (
	FallbackNone Fallback = "none" // буферы остаются как есть
	FallbackMock Fallback = "mock" // пустые каналы заполняются mock-набором
)

// Mode — происхождение данных, которые сейчас отдаются потребителям.
type Mode string

const (
	ModeLive    Mode = "live"    // соединение активно
	ModeStale   Mode = "stale"   // соединения нет, отдаётся последний известный буфер
	ModeMock    Mode = "mock"    // соединения нет, отдаётся mock-набор
	ModeOffline Mode = "offline" // соединения нет и данных нет
)

// Config — настройки фасада. Поля транспорта лежат на том же уровне.
type Config struct {
	transport.Config `mapstructure:",squash"`

	BufferCapacity int      `mapstructure:"buffer_capacity"`
	Fallback       Fallback `mapstructure:"fallback"`
}

func (c *Config) applyDefaults() {
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = store.DefaultCapacity
	}
	if c.Fallback == "" {
		c.Fallback = FallbackNone
	}
}

func (c Config) validate() error {
	switch c.Fallback {
	case FallbackNone, FallbackMock:
		return nil
	default:
		return fmt.Errorf("feed: fallback must be one of [none, mock], got %q", c.Fallback)
	}
}

// Status — наблюдаемое состояние фасада.
type Status struct {
	Connected bool `json:"connected"`
	GaveUp    bool `json:"gave_up"`
	Mode      Mode `json:"mode"`
}

// Handle — регистрация интереса, выданная Subscribe.
type Handle struct {
	id      router.ID
	Channel channel.Name
}

// Service — Consumer Facade. Создаётся явно и передаётся потребителям.
type Service struct {
	cfg    Config
	log    *logger.Logger
	store  *store.Store
	router *router.Router
	client *transport.Client
	now    func() time.Time

	closed atomic.Bool

	mockMu sync.Mutex
	mocked map[channel.Name]bool // каналы, засеянные mock-набором

	obsMu     sync.Mutex
	observers []statusObserver
	nextObs   uint64

	cancelState func()
	closeOnce   sync.Once
}

type statusObserver struct {
	id uint64
	fn func(Status)
}

// New собирает store, router и transport. Соединение открывает Start.
func New(cfg Config, log *logger.Logger) (*Service, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("feed")

	s := &Service{
		cfg:   cfg,
		log:   log,
		store:  store.New(cfg.BufferCapacity, log),
		now:    time.Now,
		mocked: make(map[channel.Name]bool),
	}
	client, err := transport.New(cfg.Config, ingest{s}, log)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	s.client = client
	s.router = router.New(client, log)
	client.SetReplayer(s.router)
	s.cancelState = client.OnStateChange(s.onState)
	return s, nil
}

// Start открывает соединение; не блокируется.
func (s *Service) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.log.Info("starting", zap.String("url", s.cfg.URL), zap.String("fallback", string(s.cfg.Fallback)))
	return s.client.Connect(ctx)
}

// Close закрывает соединение и очищает буферы. Повторный вызов безопасен.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.client.Disconnect()
		s.cancelState()
		s.mockMu.Lock()
		clear(s.mocked)
		s.mockMu.Unlock()
		s.store.Clear()
		s.log.Info("stopped")
	})
	return nil
}

// Done закрывается, когда транспорт прекратил работу.
func (s *Service) Done() <-chan struct{} { return s.client.Done() }

// IsConnected — наблюдаемый флаг соединения.
func (s *Service) IsConnected() bool { return s.client.IsConnected() }

// Status — соединение и происхождение данных.
func (s *Service) Status() Status {
	st := s.client.State()
	return Status{Connected: st.Connected, GaveUp: st.GaveUp, Mode: s.mode(st)}
}

// mode сводит режимы каналов: хотя бы один буфер с живыми данными → stale,
// иначе mock, если что-то засеяно, иначе offline.
func (s *Service) mode(st transport.State) Mode {
	if st.Connected {
		return ModeLive
	}
	out := ModeOffline
	for _, ch := range channel.All() {
		switch s.channelMode(ch) {
		case ModeStale:
			return ModeStale
		case ModeMock:
			out = ModeMock
		}
	}
	return out
}

// ChannelMode — происхождение данных одного канала.
func (s *Service) ChannelMode(ch channel.Name) Mode {
	if s.client.IsConnected() {
		return ModeLive
	}
	return s.channelMode(ch)
}

func (s *Service) channelMode(ch channel.Name) Mode {
	s.mockMu.Lock()
	mocked := s.mocked[ch]
	s.mockMu.Unlock()
	switch {
	case mocked:
		return ModeMock
	case s.store.Len(ch) > 0:
		return ModeStale
	}
	return ModeOffline
}

// Capacity — размер буфера канала.
func (s *Service) Capacity() int { return s.store.Capacity() }

// Read — отфильтрованная копия буфера (без соединения — последний известный).
func (s *Service) Read(ch channel.Name, f filter.Filter) ([]channel.Event, error) {
	return s.ReadN(ch, f, 0)
}

// ReadN — как Read, но не больше limit элементов.
func (s *Service) ReadN(ch channel.Name, f filter.Filter, limit int) ([]channel.Event, error) {
	if !channel.Known(ch) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return s.store.ReadN(ch, f, limit), nil
}

// Subscribe регистрирует интерес к (ch, f) и возвращается сразу:
// subscribe уходит на провод только при первой регистрации ключа.
func (s *Service) Subscribe(ch channel.Name, f filter.Filter) (Handle, error) {
	if !channel.Known(ch) {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	if s.closed.Load() {
		return Handle{}, ErrClosed
	}
	return Handle{id: s.router.AddInterest(ch, f), Channel: ch}, nil
}

// Unsubscribe снимает регистрацию. Повтор и нулевой Handle — no-op.
func (s *Service) Unsubscribe(h Handle) {
	if h.id == "" {
		return
	}
	s.router.RemoveInterest(h.id)
}

// Subscriptions — активные пары (channel, filter) со счётчиками.
func (s *Service) Subscriptions() []router.Subscription { return s.router.Active() }

// OnChange подписывает fn на мутации буфера канала ch.
func (s *Service) OnChange(ch channel.Name, fn func(store.Change)) (cancel func(), err error) {
	if !channel.Known(ch) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return s.store.OnChange(ch, fn), nil
}

// OnConnectionChange подписывает fn на смену Status.
func (s *Service) OnConnectionChange(fn func(Status)) (cancel func()) {
	s.obsMu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, statusObserver{id: id, fn: fn})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// -----------------------------------------------------------------------------
// transport callbacks (горутина транспорта — единственный писатель буферов)
// -----------------------------------------------------------------------------

func (s *Service) onState(st transport.State) {
	if st.GaveUp {
		s.log.Warn("data source unreachable, serving degraded data",
			zap.String("fallback", string(s.cfg.Fallback)))
		if s.cfg.Fallback == FallbackMock {
			s.seedMock()
		}
	}

	status := Status{Connected: st.Connected, GaveUp: st.GaveUp, Mode: s.mode(st)}
	s.obsMu.Lock()
	list := append([]statusObserver(nil), s.observers...)
	s.obsMu.Unlock()
	for _, o := range list {
		fn := o.fn
		safe.Call(s.log, "feed.status", func() { fn(status) })
	}
}

// seedMock заполняет только пустые буферы: реальные данные не подменяются.
func (s *Service) seedMock() {
	now := s.now()
	seeded := 0
	for _, ch := range channel.All() {
		if s.store.Len(ch) > 0 {
			continue
		}
		s.store.ApplySnapshot(ch, mock.Dataset(ch, now))
		s.mockMu.Lock()
		s.mocked[ch] = true
		s.mockMu.Unlock()
		seeded++
	}
	if seeded > 0 {
		s.log.Info("mock data seeded", zap.Int("channels", seeded))
	}
}

type ingest struct{ s *Service }

func (i ingest) OnSnapshot(ch channel.Name, events []channel.Event) {
	i.s.mockMu.Lock()
	delete(i.s.mocked, ch)
	i.s.mockMu.Unlock()
	i.s.store.ApplySnapshot(ch, events)
	i.s.log.Debug("initial_data applied", zap.String("channel", string(ch)), zap.Int("events", len(events)))
}

func (i ingest) OnIncrement(ch channel.Name, ev channel.Event) {
	i.s.store.ApplyIncrement(ch, ev)
}
