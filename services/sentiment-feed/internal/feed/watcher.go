// services/sentiment-feed/internal/feed/watcher.go
package feed

import (
	"fmt"
	"slices"
	"sync"

	"github.com/YaganovValera/analytics-system/common/safe"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/metrics"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/store"
)

// WatchState — этап жизненного цикла Watcher.
type WatchState int

const (
	Unregistered WatchState = iota
	Registering
	Active
	Unregistering
)

func (s WatchState) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Active:
		return "active"
	case Unregistering:
		return "unregistering"
	}
	return "unknown"
}

// View — то, что видит потребитель: отфильтрованные данные и состояние.
type View struct {
	Channel   channel.Name    `json:"channel"`
	Filter    filter.Filter   `json:"-"`
	Connected bool            `json:"connected"`
	Mode      Mode            `json:"mode"`
	Data      []channel.Event `json:"data"`
}

// WatchOption настраивает Watch.
type WatchOption func(*Watcher)

// WithLimit ограничивает View.Data первыми n элементами.
func WithLimit(n int) WatchOption {
	return func(w *Watcher) { w.limit = n }
}

// Watcher держит одну регистрацию (channel, filter) и вызывает fn,
// когда меняется отфильтрованная последовательность или соединение.
type Watcher struct {
	svc   *Service
	fn    func(View)
	limit int

	mu          sync.Mutex
	state       WatchState
	ch          channel.Name
	f           filter.Filter
	handle      Handle
	cancelStore func()
	cancelConn  func()

	lastIDs       []string
	lastConnected bool
	lastMode      Mode
}

// Watch регистрирует интерес и возвращает активный Watcher.
// fn вызывается вне блокировок; первое View доступно через View().
func (s *Service) Watch(ch channel.Name, f filter.Filter, fn func(View), opts ...WatchOption) (*Watcher, error) {
	if !channel.Known(ch) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if fn == nil {
		fn = func(View) {}
	}
	w := &Watcher{svc: s, fn: fn}
	for _, o := range opts {
		o(w)
	}

	w.mu.Lock()
	err := w.registerLocked(ch, f)
	if err == nil {
		w.remember(w.viewLocked())
	}
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return w, nil
}

// View — текущий снимок.
func (w *Watcher) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

// State — этап жизненного цикла.
func (w *Watcher) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Update переключает Watcher на (ch, f): старая регистрация снимается
// до новой. Эквивалентный фильтр на том же канале — no-op.
func (w *Watcher) Update(ch channel.Name, f filter.Filter) error {
	if !channel.Known(ch) {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}

	w.mu.Lock()
	if w.state != Active {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.ch == ch && w.f.Equal(f) {
		w.mu.Unlock()
		return nil
	}
	w.unregisterLocked()
	if err := w.registerLocked(ch, f); err != nil {
		w.mu.Unlock()
		return err
	}
	v := w.viewLocked()
	w.remember(v)
	w.mu.Unlock()

	w.call(v)
	return nil
}

// Close снимает регистрацию. Повторный вызов безопасен.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Active {
		return
	}
	w.unregisterLocked()
}

// -----------------------------------------------------------------------------
// internals
// -----------------------------------------------------------------------------

// registerLocked: наблюдатель буфера ставится раньше subscribe,
// иначе initial_data может прийти до него.
func (w *Watcher) registerLocked(ch channel.Name, f filter.Filter) error {
	w.state = Registering
	w.ch, w.f = ch, f
	w.cancelStore = w.svc.store.OnChange(ch, w.onStore)
	w.cancelConn = w.svc.OnConnectionChange(w.onConn)

	h, err := w.svc.Subscribe(ch, f)
	if err != nil {
		w.cancelStore()
		w.cancelConn()
		w.state = Unregistered
		return err
	}
	w.handle = h
	w.state = Active
	metrics.Watchers.WithLabelValues(string(ch)).Inc()
	return nil
}

func (w *Watcher) unregisterLocked() {
	w.state = Unregistering
	w.cancelStore()
	w.cancelConn()
	w.svc.Unsubscribe(w.handle)
	metrics.Watchers.WithLabelValues(string(w.ch)).Dec()
	w.handle = Handle{}
	w.state = Unregistered
}

func (w *Watcher) viewLocked() View {
	connected := w.svc.IsConnected()
	return View{
		Channel:   w.ch,
		Filter:    w.f,
		Connected: connected,
		Mode:      w.svc.ChannelMode(w.ch),
		Data:      w.svc.store.ReadN(w.ch, w.f, w.limit),
	}
}

func (w *Watcher) remember(v View) {
	w.lastIDs = ids(v.Data)
	w.lastConnected = v.Connected
	w.lastMode = v.Mode
}

func (w *Watcher) onStore(c store.Change) {
	w.mu.Lock()
	if w.state != Active || c.Channel != w.ch {
		w.mu.Unlock()
		return
	}
	// инкремент вне фильтра всё равно может вытеснить подходящее событие
	// из полного буфера: решает сравнение id в notifyLocked
	w.notifyLocked()
}

func (w *Watcher) onConn(Status) {
	w.mu.Lock()
	if w.state != Active {
		w.mu.Unlock()
		return
	}
	w.notifyLocked()
}

// notifyLocked отпускает w.mu.
func (w *Watcher) notifyLocked() {
	v := w.viewLocked()
	next := ids(v.Data)
	if slices.Equal(next, w.lastIDs) && v.Connected == w.lastConnected && v.Mode == w.lastMode {
		w.mu.Unlock()
		return
	}
	w.remember(v)
	w.mu.Unlock()
	w.call(v)
}

func (w *Watcher) call(v View) {
	safe.Call(w.svc.log, "feed.watcher", func() { w.fn(v) })
}

func ids(events []channel.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.EventID()
	}
	return out
}
