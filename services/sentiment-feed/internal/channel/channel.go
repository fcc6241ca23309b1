// services/sentiment-feed/internal/channel/channel.go

// Package channel — реестр логических каналов и схемы их событий.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Name — имя логического канала на проводе.
type Name string

const (
	Sentiment    Name = "sentiment"
	Trends       Name = "trends"
	Transactions Name = "transactions"
)

var (
	// ErrUnknownChannel возвращается потребителю, запросившему канал вне реестра.
	ErrUnknownChannel = errors.New("channel: unknown channel")
	// ErrInvalidEvent — полезная нагрузка не соответствует схеме канала.
	ErrInvalidEvent = errors.New("channel: invalid event")
)

// Event — общий контракт событий всех каналов.
type Event interface {
	// EventID — ключ дедупликации внутри буфера канала.
	EventID() string
	// OccurredAt — время события со стороны источника.
	OccurredAt() time.Time
	// Field отдаёт строковое значение поля для фильтрации.
	Field(key string) (string, bool)
	// Validate проверяет инварианты схемы.
	Validate() error
}

// Descriptor описывает канал реестра.
type Descriptor struct {
	Name   Name
	Fields []string // поля, по которым имеет смысл фильтровать
	newFn  func() Event
}

var registry = []Descriptor{
	{
		Name:   Sentiment,
		Fields: []string{"cryptocurrency", "source", "sentiment_label"},
		newFn:  func() Event { return &SentimentEvent{} },
	},
	{
		Name:   Trends,
		Fields: []string{"cryptocurrency", "prediction", "timeframe"},
		newFn:  func() Event { return &TrendEvent{} },
	},
	{
		Name:   Transactions,
		Fields: []string{"cryptocurrency", "from_address", "to_address"},
		newFn:  func() Event { return &TransactionEvent{} },
	},
}

var aliases = map[string]Name{
	"trend":       Trends,
	"transaction": Transactions,
	"tx":          Transactions,
}

// All возвращает каналы реестра в фиксированном порядке.
func All() []Name {
	out := make([]Name, 0, len(registry))
	for _, d := range registry {
		out = append(out, d.Name)
	}
	return out
}

// Describe возвращает дескриптор канала.
func Describe(n Name) (Descriptor, bool) {
	for _, d := range registry {
		if d.Name == n {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Known — точное совпадение с реестром (для имён с провода).
func Known(n Name) bool {
	_, ok := Describe(n)
	return ok
}

// Lookup разбирает имя канала со стороны потребителя: регистр и алиасы не важны.
func Lookup(s string) (Name, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if a, ok := aliases[key]; ok {
		return a, nil
	}
	if Known(Name(key)) {
		return Name(key), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// Decode разбирает одно событие канала n.
func Decode(n Name, raw []byte) (Event, error) {
	d, ok := Describe(n)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, n)
	}
	ev := d.newFn()
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, n, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, n, err)
	}
	return ev, nil
}

// DecodeList разбирает снапшот. Невалидные элементы пропускаются,
// их число возвращается в skipped; порядок остальных сохраняется.
func DecodeList(n Name, raw []byte) (events []Event, skipped int, err error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, fmt.Errorf("%w: %s: snapshot is not a list: %v", ErrInvalidEvent, n, err)
	}
	events = make([]Event, 0, len(items))
	for _, it := range items {
		ev, err := Decode(n, it)
		if err != nil {
			if errors.Is(err, ErrUnknownChannel) {
				return nil, 0, err
			}
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}
