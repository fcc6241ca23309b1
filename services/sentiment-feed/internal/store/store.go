// services/sentiment-feed/internal/store/store.go

// Package store хранит ограниченный буфер последних событий на канал.
//
// Буфер упорядочен от нового к старому по порядку прихода (не по timestamp),
// длина ≤ capacity, id внутри буфера уникальны. Запись ожидается из одной
// горутины (reader транспорта), чтение — из любых: Read отдаёт копию.
package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/common/safe"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/metrics"
)

// DefaultCapacity — размер буфера канала по умолчанию.
const DefaultCapacity = 100

// Kind — тип мутации буфера.
type Kind int

const (
	KindSnapshot Kind = iota + 1
	KindIncrement
	KindClear
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindIncrement:
		return "increment"
	case KindClear:
		return "clear"
	}
	return "unknown"
}

// Change передаётся наблюдателям после каждой мутации.
type Change struct {
	Channel channel.Name
	Kind    Kind
	Event   channel.Event // только для KindIncrement
	Len     int           // длина буфера после мутации
}

// Observer вызывается синхронно, вне блокировки буфера.
type Observer func(Change)

type buffer struct {
	events []channel.Event // [0] — самое новое
	ids    map[string]struct{}
}

func newBuffer(capacity int) *buffer {
	return &buffer{
		events: make([]channel.Event, 0, capacity),
		ids:    make(map[string]struct{}, capacity),
	}
}

// Store — буферы всех каналов реестра.
type Store struct {
	capacity int
	log      *logger.Logger

	mu      sync.RWMutex
	buffers map[channel.Name]*buffer

	obsMu     sync.Mutex
	observers map[channel.Name][]observerEntry
	nextObs   uint64
}

type observerEntry struct {
	id uint64
	fn Observer
}

// New создаёт пустые буферы для всех каналов реестра.
func New(capacity int, log *logger.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity:  capacity,
		log:       log.Named("store"),
		buffers:   make(map[channel.Name]*buffer),
		observers: make(map[channel.Name][]observerEntry),
	}
	for _, ch := range channel.All() {
		s.buffers[ch] = newBuffer(capacity)
	}
	return s
}

// Capacity — максимальная длина буфера.
func (s *Store) Capacity() int { return s.capacity }

// ApplySnapshot заменяет буфер списком events в серверном порядке,
// обрезая до capacity. Повторные id внутри снапшота: остаётся первое вхождение.
func (s *Store) ApplySnapshot(ch channel.Name, events []channel.Event) bool {
	s.mu.Lock()
	b, ok := s.buffers[ch]
	if !ok {
		s.mu.Unlock()
		return false
	}
	nb := newBuffer(s.capacity)
	for _, ev := range events {
		if len(nb.events) == s.capacity {
			break
		}
		id := ev.EventID()
		if _, dup := nb.ids[id]; dup {
			continue
		}
		nb.ids[id] = struct{}{}
		nb.events = append(nb.events, ev)
	}
	*b = *nb
	n := len(b.events)
	s.mu.Unlock()

	metrics.BufferLength.WithLabelValues(string(ch)).Set(float64(n))
	s.notify(Change{Channel: ch, Kind: KindSnapshot, Len: n})
	return true
}

// ApplyIncrement добавляет событие в голову буфера.
// Событие с уже известным id отбрасывается (false).
func (s *Store) ApplyIncrement(ch channel.Name, ev channel.Event) bool {
	s.mu.Lock()
	b, ok := s.buffers[ch]
	if !ok {
		s.mu.Unlock()
		return false
	}
	id := ev.EventID()
	if _, dup := b.ids[id]; dup {
		s.mu.Unlock()
		metrics.DuplicateEvents.WithLabelValues(string(ch)).Inc()
		s.log.Debug("duplicate event discarded",
			zap.String("channel", string(ch)), zap.String("id", id))
		return false
	}

	b.events = append(b.events, nil)
	copy(b.events[1:], b.events)
	b.events[0] = ev
	b.ids[id] = struct{}{}
	if len(b.events) > s.capacity {
		last := b.events[len(b.events)-1]
		delete(b.ids, last.EventID())
		b.events[len(b.events)-1] = nil
		b.events = b.events[:len(b.events)-1]
	}
	n := len(b.events)
	s.mu.Unlock()

	metrics.BufferLength.WithLabelValues(string(ch)).Set(float64(n))
	s.notify(Change{Channel: ch, Kind: KindIncrement, Event: ev, Len: n})
	return true
}

// Read — отфильтрованная копия буфера, от нового к старому.
func (s *Store) Read(ch channel.Name, f filter.Filter) []channel.Event {
	return s.ReadN(ch, f, 0)
}

// ReadN — как Read, но не больше limit элементов (limit ≤ 0 — без ограничения).
func (s *Store) ReadN(ch channel.Name, f filter.Filter, limit int) []channel.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buffers[ch]
	if !ok {
		return nil
	}
	out := make([]channel.Event, 0, len(b.events))
	for _, ev := range b.events {
		if limit > 0 && len(out) == limit {
			break
		}
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Len — текущая длина буфера канала.
func (s *Store) Len(ch channel.Name) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.buffers[ch]; ok {
		return len(b.events)
	}
	return 0
}

// Clear опустошает все буферы (teardown).
func (s *Store) Clear() {
	s.mu.Lock()
	cleared := make([]channel.Name, 0, len(s.buffers))
	for ch, b := range s.buffers {
		if len(b.events) == 0 {
			continue
		}
		*b = *newBuffer(s.capacity)
		cleared = append(cleared, ch)
	}
	s.mu.Unlock()

	for _, ch := range cleared {
		metrics.BufferLength.WithLabelValues(string(ch)).Set(0)
		s.notify(Change{Channel: ch, Kind: KindClear})
	}
}

// OnChange подписывает наблюдателя на мутации канала ch.
// Наблюдатели вызываются в порядке подписки. Возвращает функцию отписки;
// повторный вызов безопасен.
func (s *Store) OnChange(ch channel.Name, fn Observer) (cancel func()) {
	s.obsMu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers[ch] = append(s.observers[ch], observerEntry{id: id, fn: fn})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			list := s.observers[ch]
			for i, e := range list {
				if e.id == id {
					s.observers[ch] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(c Change) {
	s.obsMu.Lock()
	list := append([]observerEntry(nil), s.observers[c.Channel]...)
	s.obsMu.Unlock()

	for _, e := range list {
		fn := e.fn
		safe.Call(s.log, "store.observer", func() { fn(c) })
	}
}
