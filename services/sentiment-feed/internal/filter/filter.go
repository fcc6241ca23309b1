// services/sentiment-feed/internal/filter/filter.go

// Package filter нормализует и применяет ограничения потребителя
// вида {"cryptocurrency": "Bitcoin", "source": "reddit"}.
package filter

import (
	"net/url"
	"sort"
	"strings"
)

// Wildcard — значение, означающее «без ограничения».
const Wildcard = "all"

var keyAliases = map[string]string{
	"asset":  "cryptocurrency",
	"symbol": "cryptocurrency",
	"coin":   "cryptocurrency",
}

// Fielder — всё, у чего можно спросить строковое поле (channel.Event).
type Fielder interface {
	Field(key string) (string, bool)
}

// Filter — нормализованный набор ограничений. Нулевое значение = пустой фильтр.
type Filter struct {
	pairs map[string]string
}

// New нормализует сырые пары: ключи в нижнем регистре с учётом алиасов,
// пустые значения и Wildcard отбрасываются.
func New(raw map[string]string) Filter {
	f := Filter{}
	for k, v := range raw {
		f = f.With(k, v)
	}
	return f
}

// FromValues строит фильтр из query-параметров; ключи из skip игнорируются.
// При повторе ключа берётся первое значение.
func FromValues(q url.Values, skip ...string) Filter {
	raw := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) == 0 || contains(skip, k) {
			continue
		}
		raw[k] = vs[0]
	}
	return New(raw)
}

// With возвращает копию фильтра с добавленным ограничением.
func (f Filter) With(key, value string) Filter {
	k := normalizeKey(key)
	v := strings.TrimSpace(value)
	out := Filter{pairs: make(map[string]string, len(f.pairs)+1)}
	for pk, pv := range f.pairs {
		out.pairs[pk] = pv
	}
	if k == "" || v == "" || strings.EqualFold(v, Wildcard) {
		delete(out.pairs, k)
	} else {
		out.pairs[k] = v
	}
	if len(out.pairs) == 0 {
		return Filter{}
	}
	return out
}

// Empty сообщает, что фильтр ничего не ограничивает.
func (f Filter) Empty() bool { return len(f.pairs) == 0 }

// Get возвращает значение ограничения по ключу.
func (f Filter) Get(key string) (string, bool) {
	v, ok := f.pairs[normalizeKey(key)]
	return v, ok
}

// Key — канонический ключ: отсортированные k=v через '&', значения в нижнем регистре.
// Два фильтра эквивалентны тогда и только тогда, когда их Key совпадают.
func (f Filter) Key() string {
	if len(f.pairs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f.pairs))
	for k := range f.pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ToLower(f.pairs[k]))
	}
	return b.String()
}

// Equal — эквивалентность по каноническому ключу.
func (f Filter) Equal(o Filter) bool { return f.Key() == o.Key() }

// Match — регистронезависимое равенство по каждому ограничению.
// Событие без ограничиваемого поля не проходит.
func (f Filter) Match(ev Fielder) bool {
	for k, want := range f.pairs {
		got, ok := ev.Field(k)
		if !ok || !strings.EqualFold(strings.TrimSpace(got), want) {
			return false
		}
	}
	return true
}

// Map — копия пар для отправки на провод.
func (f Filter) Map() map[string]string {
	if len(f.pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(f.pairs))
	for k, v := range f.pairs {
		out[k] = v
	}
	return out
}

func (f Filter) String() string {
	if f.Empty() {
		return "{}"
	}
	return "{" + f.Key() + "}"
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if a, ok := keyAliases[k]; ok {
		return a
	}
	return k
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}
