// services/sentiment-feed/internal/transport/client.go

// Package transport владеет единственным websocket-соединением к источнику:
// подключение с ограниченным числом попыток, повтор подписок после
// переподключения, разбор входящих кадров в обработчик по имени канала.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/backoff"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/common/safe"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/router"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/wire"
)

const maxFrameSize = 1 << 20

var (
	ErrAlreadyStarted = errors.New("transport: already started")
	ErrClosed         = errors.New("transport: client closed")
)

var tracer = otel.Tracer("sentiment-feed/transport")

// State — наблюдаемое состояние соединения.
type State struct {
	Connected bool
	// GaveUp — попытки исчерпаны, клиент больше не переподключается.
	GaveUp bool
}

// Handler получает разобранные кадры. Вызывается из одной горутины,
// в порядке прихода кадров.
type Handler interface {
	OnSnapshot(ch channel.Name, events []channel.Event)
	OnIncrement(ch channel.Name, ev channel.Event)
}

// Replayer повторяет активные подписки после подключения (router.Router).
type Replayer interface {
	Resync(online func()) int
}

// Client — Connection Manager.
type Client struct {
	cfg      Config
	handler  Handler
	replayer Replayer
	dialer   *websocket.Dialer
	log      *logger.Logger

	connected atomic.Bool
	gaveUp    atomic.Bool

	obsMu     sync.Mutex
	observers []stateObserver
	nextObs   uint64

	// исходящая очередь: неблокирующий Send, FIFO-запись одной горутиной
	qMu    sync.Mutex
	online bool
	queue  []router.Intent
	notify chan struct{}

	lifeMu  sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type stateObserver struct {
	id uint64
	fn func(State)
}

// New создаёт Client. Соединение не открывается до Connect.
func New(cfg Config, h Handler, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg,
		handler: h,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		log:    log.Named("transport"),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

// SetReplayer задаёт источник подписок для повтора. Вызывать до Connect.
func (c *Client) SetReplayer(r Replayer) { c.replayer = r }

// Connect запускает цикл подключения и сразу возвращается.
// Результат наблюдается через IsConnected / OnStateChange.
func (c *Client) Connect(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.started:
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
	return nil
}

// Disconnect закрывает соединение и ждёт остановки. Повторный вызов безопасен.
func (c *Client) Disconnect() {
	c.lifeMu.Lock()
	if c.closed {
		c.lifeMu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	if c.cancel != nil {
		c.cancel()
	}
	c.lifeMu.Unlock()

	if !started {
		close(c.done)
		return
	}
	<-c.done
}

// Done закрывается, когда цикл подключения завершился
// (Disconnect, отмена контекста или исчерпание попыток).
func (c *Client) Done() <-chan struct{} { return c.done }

// IsConnected — соединение установлено и подписки повторены.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// GaveUp — попытки подключения исчерпаны.
func (c *Client) GaveUp() bool { return c.gaveUp.Load() }

// State — текущее состояние.
func (c *Client) State() State {
	return State{Connected: c.connected.Load(), GaveUp: c.gaveUp.Load()}
}

// OnStateChange подписывает fn на смену состояния. Возвращает отписку.
func (c *Client) OnStateChange(fn func(State)) (cancel func()) {
	c.obsMu.Lock()
	c.nextObs++
	id := c.nextObs
	c.observers = append(c.observers, stateObserver{id: id, fn: fn})
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			defer c.obsMu.Unlock()
			for i, o := range c.observers {
				if o.id == id {
					c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Send ставит намерение в очередь и не блокируется.
// Пока соединения нет, намерение отбрасывается: его восстановит Resync.
func (c *Client) Send(in router.Intent) {
	c.qMu.Lock()
	if !c.online {
		c.qMu.Unlock()
		incDrop("offline")
		c.log.Debug("intent dropped while offline",
			zap.String("op", string(in.Op)), zap.String("channel", string(in.Channel)))
		return
	}
	c.queue = append(c.queue, in)
	c.qMu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// -----------------------------------------------------------------------------
// connection loop
// -----------------------------------------------------------------------------

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.gaveUp.Store(true)
			incConnect("gave_up")
			c.log.Error("connect attempts exhausted, staying offline",
				zap.String("url", c.cfg.URL),
				zap.Int("max_reconnect_attempts", c.cfg.MaxReconnectAttempts),
				zap.Error(err),
			)
			c.publishState()
			return
		}

		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("disconnect: reconnecting", zap.String("url", c.cfg.URL))
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ctxSpan, span := tracer.Start(ctx, "transport.Connect",
		trace.WithAttributes(attribute.String("url", c.cfg.URL)))
	defer span.End()

	bcfg := c.cfg.Backoff
	bcfg.MaxRetries = uint64(c.cfg.MaxReconnectAttempts)
	bcfg.PerAttemptTimeout = c.cfg.ConnectTimeout

	var conn *websocket.Conn
	err := backoff.Execute(ctxSpan, bcfg, c.log, func(ctxTry context.Context) error {
		incConnect("attempt")
		cn, _, err := c.dialer.DialContext(ctxTry, c.cfg.URL, nil)
		if err != nil {
			incConnect("error")
			c.log.Warn("connect_error", zap.String("url", c.cfg.URL), zap.Error(err))
			return err
		}
		conn = cn
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	incConnect("success")
	return conn, nil
}

// serve обслуживает одно соединение до ошибки чтения или отмены ctx.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	// Повтор подписок под блокировкой роутера: новые AddInterest
	// либо войдут в повтор, либо уйдут после него, но не дважды.
	replayed := 0
	if c.replayer != nil {
		replayed = c.replayer.Resync(c.goOnline)
	} else {
		c.goOnline()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(connCtx, conn)
	}()

	c.log.Info("connect", zap.String("url", c.cfg.URL), zap.Int("replayed", replayed))
	c.setConnected(true)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if connCtx.Err() == nil {
				incError("read")
				c.log.Warn("ws: read error", zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.dispatch(connCtx, data)
	}

	c.goOffline()
	cancel()
	_ = conn.Close()
	<-writerDone
	c.setConnected(false)
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return

		case <-c.notify:
			for _, in := range c.drain() {
				if err := c.write(conn, in); err != nil {
					incError("write")
					c.log.Warn("ws: write failed", zap.String("op", string(in.Op)), zap.Error(err))
					_ = conn.Close()
					return
				}
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.log.Warn("ws: ping failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, in router.Intent) error {
	frame, err := wire.EncodeClient(wire.ClientMessage{
		Event:   string(in.Op),
		Channel: string(in.Channel),
		Filters: in.Filter.Map(),
	})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	msg, err := wire.DecodeServer(data)
	if err != nil {
		incError("decode")
		c.log.Warn("malformed frame dropped", zap.Error(err))
		return
	}
	ch := channel.Name(msg.Channel)
	if !channel.Known(ch) {
		incDrop("unknown_channel")
		c.log.Debug("unknown channel ignored", zap.String("channel", msg.Channel), zap.String("event", msg.Event))
		return
	}

	switch msg.Event {
	case wire.EventInitialData:
		incMessage(msg.Event)
		_, span := tracer.Start(ctx, "transport.Snapshot",
			trace.WithAttributes(attribute.String("channel", msg.Channel)))
		events, skipped, err := channel.DecodeList(ch, msg.Data)
		if err != nil {
			incError("decode")
			span.RecordError(err)
			span.End()
			c.log.Warn("snapshot dropped", zap.String("channel", msg.Channel), zap.Error(err))
			return
		}
		if skipped > 0 {
			incDrop("invalid_event")
			c.log.Warn("snapshot: invalid events skipped",
				zap.String("channel", msg.Channel), zap.Int("skipped", skipped))
		}
		span.SetAttributes(attribute.Int("events", len(events)))
		c.handler.OnSnapshot(ch, events)
		span.End()

	case wire.EventNewData:
		incMessage(msg.Event)
		ev, err := channel.Decode(ch, msg.Data)
		if err != nil {
			incDrop("invalid_event")
			c.log.Warn("event dropped", zap.String("channel", msg.Channel), zap.Error(err))
			return
		}
		c.handler.OnIncrement(ch, ev)

	default:
		incDrop("unknown_event")
		c.log.Debug("unknown event ignored", zap.String("event", msg.Event))
	}
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func (c *Client) goOnline() {
	c.qMu.Lock()
	c.online = true
	c.queue = nil
	c.qMu.Unlock()
}

func (c *Client) goOffline() {
	c.qMu.Lock()
	c.online = false
	c.queue = nil
	c.qMu.Unlock()
}

func (c *Client) drain() []router.Intent {
	c.qMu.Lock()
	defer c.qMu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

func (c *Client) setConnected(v bool) {
	if c.connected.Swap(v) == v {
		return
	}
	setConnectedGauge(v)
	c.publishState()
}

func (c *Client) publishState() {
	st := c.State()
	c.obsMu.Lock()
	list := append([]stateObserver(nil), c.observers...)
	c.obsMu.Unlock()

	for _, o := range list {
		fn := o.fn
		safe.Call(c.log, "transport.state", func() { fn(st) })
	}
}
