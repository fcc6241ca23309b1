// services/sentiment-feed/internal/router/router.go

// Package router ведёт счётчики интереса по нормализованной паре
// (channel, filter) и шлёт subscribe/unsubscribe только на переходах 0→1 и 1→0.
package router

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/metrics"
)

// Op — тип намерения на проводе.
type Op string

const (
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
)

// Intent — одно намерение для транспорта.
type Intent struct {
	Op      Op
	Channel channel.Name
	Filter  filter.Filter
}

// Sender принимает намерения без блокировки (transport.Client).
type Sender interface {
	Send(Intent)
}

// ID — идентификатор регистрации потребителя.
type ID string

// Subscription — активная пара (channel, filter) и её счётчик.
type Subscription struct {
	Channel  channel.Name
	Filter   filter.Filter
	RefCount int
}

type entry struct {
	channel channel.Name
	filter  filter.Filter
	refs    int
}

// Router безопасен для конкурентного использования.
type Router struct {
	sender Sender
	log    *logger.Logger

	mu   sync.Mutex
	subs map[string]*entry // normalized key → entry
	ids  map[ID]string     // registration → normalized key
}

// New создаёт Router, шлющий намерения в sender.
func New(sender Sender, log *logger.Logger) *Router {
	return &Router{
		sender: sender,
		log:    log.Named("router"),
		subs:   make(map[string]*entry),
		ids:    make(map[ID]string),
	}
}

func key(ch channel.Name, f filter.Filter) string {
	return string(ch) + "?" + f.Key()
}

// AddInterest регистрирует интерес потребителя.
// Намерение отправляется под блокировкой, поэтому для одного ключа
// subscribe и unsubscribe уходят на провод в порядке вызовов.
func (r *Router) AddInterest(ch channel.Name, f filter.Filter) ID {
	id := ID(uuid.NewString())
	k := key(ch, f)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids[id] = k
	e, ok := r.subs[k]
	if !ok {
		e = &entry{channel: ch, filter: f}
		r.subs[k] = e
	}
	e.refs++
	if e.refs == 1 {
		r.log.Debug("subscribe", zap.String("channel", string(ch)), zap.Stringer("filter", f))
		r.emit(Intent{Op: OpSubscribe, Channel: ch, Filter: f})
		metrics.ActiveSubscriptions.Set(float64(len(r.subs)))
	}
	return id
}

// RemoveInterest снимает регистрацию. Неизвестный id — no-op.
func (r *Router) RemoveInterest(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.ids[id]
	if !ok {
		return
	}
	delete(r.ids, id)

	e := r.subs[k]
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(r.subs, k)
	r.log.Debug("unsubscribe", zap.String("channel", string(e.channel)), zap.Stringer("filter", e.filter))
	r.emit(Intent{Op: OpUnsubscribe, Channel: e.channel, Filter: e.filter})
	metrics.ActiveSubscriptions.Set(float64(len(r.subs)))
}

// Count — текущий счётчик для пары (channel, filter).
func (r *Router) Count(ch channel.Name, f filter.Filter) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.subs[key(ch, f)]; ok {
		return e.refs
	}
	return 0
}

// Active — снимок активных подписок в стабильном порядке.
func (r *Router) Active() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked()
}

func (r *Router) activeLocked() []Subscription {
	keys := make([]string, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Subscription, 0, len(keys))
	for _, k := range keys {
		e := r.subs[k]
		out = append(out, Subscription{Channel: e.channel, Filter: e.filter, RefCount: e.refs})
	}
	return out
}

// Resync вызывается транспортом после установки соединения.
// online переводит транспорт в состояние «принимаю намерения»; затем
// каждая активная подписка повторяется ровно один раз. Всё под блокировкой:
// конкурентный AddInterest либо попадёт в повтор, либо отправится после него.
func (r *Router) Resync(online func()) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	online()
	subs := r.activeLocked()
	for _, s := range subs {
		r.emit(Intent{Op: OpSubscribe, Channel: s.Channel, Filter: s.Filter})
	}
	if len(subs) > 0 {
		r.log.Info("subscriptions replayed", zap.Int("count", len(subs)))
	}
	return len(subs)
}

func (r *Router) emit(in Intent) {
	metrics.Intents.WithLabelValues(string(in.Op)).Inc()
	if r.sender != nil {
		r.sender.Send(in)
	}
}
