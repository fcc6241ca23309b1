// services/sentiment-feed/internal/filter/filter_test.go
package filter

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type row map[string]string

func (r row) Field(k string) (string, bool) {
	v, ok := r[k]
	return v, ok
}

func TestNew_Normalization(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]string
		key  string
	}{
		{"empty", nil, ""},
		{"wildcardDropped", map[string]string{"cryptocurrency": "all", "source": "ALL"}, ""},
		{"blankDropped", map[string]string{"source": "  "}, ""},
		{"aliasAndCase", map[string]string{"Asset": "Bitcoin"}, "cryptocurrency=bitcoin"},
		{"sorted", map[string]string{"source": "Reddit", "cryptocurrency": "Bitcoin"}, "cryptocurrency=bitcoin&source=reddit"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.key, New(c.raw).Key())
		})
	}
}

func TestEqual_Equivalence(t *testing.T) {
	a := New(map[string]string{"cryptocurrency": "Bitcoin", "source": "all"})
	b := New(map[string]string{"symbol": "bitcoin "})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(Filter{}))
	assert.True(t, New(nil).Equal(Filter{}))
}

func TestMatch(t *testing.T) {
	btc := row{"cryptocurrency": "Bitcoin", "source": "reddit"}
	eth := row{"cryptocurrency": "Ethereum", "source": "twitter"}

	f := New(map[string]string{"cryptocurrency": "bitcoin"})
	assert.True(t, f.Match(btc))
	assert.False(t, f.Match(eth))
	assert.True(t, Filter{}.Match(eth), "empty filter matches everything")

	missing := New(map[string]string{"prediction": "bullish"})
	assert.False(t, missing.Match(btc), "event without the field does not match")
}

func TestWith_DoesNotMutate(t *testing.T) {
	base := New(map[string]string{"source": "reddit"})
	next := base.With("cryptocurrency", "Solana")
	assert.Equal(t, "source=reddit", base.Key())
	assert.Equal(t, "cryptocurrency=solana&source=reddit", next.Key())
	assert.True(t, next.With("source", "all").Equal(New(map[string]string{"coin": "solana"})))
}

func TestFromValues(t *testing.T) {
	q := url.Values{
		"cryptocurrency": {"Bitcoin", "Ethereum"},
		"source":         {"all"},
		"limit":          {"5"},
	}
	f := FromValues(q, "limit")
	assert.Equal(t, "cryptocurrency=bitcoin", f.Key())
	v, ok := f.Get("asset")
	assert.True(t, ok)
	assert.Equal(t, "Bitcoin", v)
}

func TestMap_IsCopy(t *testing.T) {
	f := New(map[string]string{"source": "news"})
	m := f.Map()
	m["source"] = "reddit"
	assert.Equal(t, "source=news", f.Key())
	assert.Nil(t, Filter{}.Map())
}
