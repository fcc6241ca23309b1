// services/sentiment-feed/internal/mockserver/server.go

// Package mockserver — локальный источник данных: серверная сторона
// протокола subscribe / initial_data / new_data поверх сгенерированных событий.
package mockserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/mock"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/store"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/wire"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second
	maxFrameSize = 64 << 10
)

// Config — настройки источника.
type Config struct {
	Interval    time.Duration `mapstructure:"interval"`
	HistorySize int           `mapstructure:"history_size"`
	Seed        int64         `mapstructure:"seed"`
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = store.DefaultCapacity
	}
}

// Server раздаёт историю и новые события подписанным клиентам.
type Server struct {
	cfg      Config
	log      *logger.Logger
	clock    clockwork.Clock
	history  *store.Store
	gen      *mock.Generator
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	// fanout упорядочивает Publish и subscribe: клиент получает initial_data
	// раньше любого new_data, а событие попадает либо в снимок, либо в new_data.
	fanout sync.Mutex
}

// New создаёт сервер; история заполняется mock.Dataset на момент clock.Now().
func New(cfg Config, clock clockwork.Clock, log *logger.Logger) *Server {
	cfg.applyDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log = log.Named("mockserver")

	s := &Server{
		cfg:     cfg,
		log:     log,
		clock:   clock,
		history: store.New(cfg.HistorySize, log),
		gen:     mock.NewGenerator(clock, cfg.Seed),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	now := clock.Now()
	for _, ch := range channel.All() {
		s.history.ApplySnapshot(ch, mock.Dataset(ch, now))
	}
	return s
}

// Run публикует сгенерированные события каждые Interval, пока ctx жив.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("generator started", zap.Duration("interval", s.cfg.Interval))
	s.gen.Run(ctx, s.cfg.Interval, channel.All(), func(ch channel.Name, ev channel.Event) {
		s.Publish(ch, ev)
	})
	s.closeAll()
	return nil
}

// Publish кладёт событие в историю и рассылает new_data подписчикам,
// чей фильтр его пропускает. Дубликат по id не рассылается.
func (s *Server) Publish(ch channel.Name, ev channel.Event) int {
	s.fanout.Lock()
	defer s.fanout.Unlock()

	if !s.history.ApplyIncrement(ch, ev) {
		return 0
	}
	frame, err := wire.EncodeServer(wire.EventNewData, string(ch), ev)
	if err != nil {
		s.log.Error("encode new_data", zap.Error(err))
		return 0
	}

	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c.wants(ch, ev) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
	return len(targets)
}

// History — копия истории канала.
func (s *Server) History(ch channel.Name, f filter.Filter) []channel.Event {
	return s.history.Read(ch, f)
}

// Clients — число подключённых клиентов.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP принимает websocket-подключение.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	c := newClient(s, conn)

	s.mu.Lock()
	s.clients[c] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()
	s.log.Info("client connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", total))

	go c.writeLoop()
	c.readLoop()

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	s.log.Info("client disconnected", zap.String("remote", r.RemoteAddr))
}

func (s *Server) closeAll() {
	s.mu.Lock()
	list := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		list = append(list, c)
	}
	s.mu.Unlock()
	for _, c := range list {
		c.close()
	}
}

// subscribe регистрирует подписку и ставит снимок в очередь под fanout.
// enqueue не блокируется, поэтому Publish ждёт недолго.
func (s *Server) subscribe(c *client, ch channel.Name, f filter.Filter) error {
	s.fanout.Lock()
	defer s.fanout.Unlock()

	frame, err := wire.EncodeServer(wire.EventInitialData, string(ch), s.history.Read(ch, f))
	if err != nil {
		return err
	}
	c.subscribe(ch, f)
	c.enqueue(frame)
	return nil
}

// handle обрабатывает кадр клиента.
func (s *Server) handle(c *client, m wire.ClientMessage) {
	ch, err := channel.Lookup(m.Channel)
	if err != nil {
		s.log.Warn("unknown channel requested", zap.String("channel", m.Channel))
		return
	}
	f := filter.New(m.Filters)

	switch m.Event {
	case wire.EventSubscribe:
		if err := s.subscribe(c, ch, f); err != nil {
			s.log.Error("encode initial_data", zap.Error(err))
			return
		}
		s.log.Debug("subscribed", zap.String("channel", string(ch)), zap.Stringer("filter", f))
	case wire.EventUnsubscribe:
		c.unsubscribe(ch, f)
		s.log.Debug("unsubscribed", zap.String("channel", string(ch)), zap.Stringer("filter", f))
	default:
		s.log.Warn("unknown client event", zap.String("event", m.Event))
	}
}
