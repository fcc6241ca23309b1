// services/sentiment-feed/internal/router/router_test.go
package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
)

type recorder struct {
	mu      sync.Mutex
	intents []Intent
}

func (r *recorder) Send(in Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
}

func (r *recorder) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.intents))
	for i, in := range r.intents {
		out[i] = string(in.Op) + " " + string(in.Channel) + " " + in.Filter.Key()
	}
	return out
}

var btc = filter.New(map[string]string{"cryptocurrency": "Bitcoin"})

func TestTwoConsumersShareOneSubscription(t *testing.T) {
	rec := &recorder{}
	r := New(rec, logger.NewNop())

	a := r.AddInterest(channel.Sentiment, btc)
	b := r.AddInterest(channel.Sentiment, filter.New(map[string]string{"asset": "bitcoin", "source": "all"}))
	assert.Equal(t, []string{"subscribe sentiment cryptocurrency=bitcoin"}, rec.ops())
	assert.Equal(t, 2, r.Count(channel.Sentiment, btc))

	r.RemoveInterest(a)
	assert.Len(t, rec.ops(), 1, "unsubscribe only after the last consumer leaves")

	r.RemoveInterest(b)
	assert.Equal(t, []string{
		"subscribe sentiment cryptocurrency=bitcoin",
		"unsubscribe sentiment cryptocurrency=bitcoin",
	}, rec.ops())
	assert.Empty(t, r.Active())
}

func TestRemoveInterest_UnknownAndRepeatedAreNoOps(t *testing.T) {
	rec := &recorder{}
	r := New(rec, logger.NewNop())

	r.RemoveInterest("nope")
	id := r.AddInterest(channel.Trends, filter.Filter{})
	r.RemoveInterest(id)
	r.RemoveInterest(id)
	assert.Equal(t, []string{"subscribe trends ", "unsubscribe trends "}, rec.ops())
}

func TestDistinctFiltersAreDistinctSubscriptions(t *testing.T) {
	rec := &recorder{}
	r := New(rec, logger.NewNop())

	r.AddInterest(channel.Sentiment, btc)
	r.AddInterest(channel.Sentiment, filter.Filter{})
	r.AddInterest(channel.Trends, btc)

	assert.Len(t, rec.ops(), 3)
	active := r.Active()
	require.Len(t, active, 3)
	for _, s := range active {
		assert.Equal(t, 1, s.RefCount)
	}
}

func TestResync_ReplaysEachOnce(t *testing.T) {
	rec := &recorder{}
	r := New(rec, logger.NewNop())
	r.AddInterest(channel.Sentiment, btc)
	r.AddInterest(channel.Sentiment, btc)
	r.AddInterest(channel.Transactions, filter.Filter{})
	rec.intents = nil

	onlineCalled := false
	n := r.Resync(func() { onlineCalled = true })
	assert.True(t, onlineCalled)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{
		"subscribe sentiment cryptocurrency=bitcoin",
		"subscribe transactions ",
	}, rec.ops())
}

func TestConcurrentAddRemove(t *testing.T) {
	rec := &recorder{}
	r := New(rec, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.AddInterest(channel.Sentiment, btc)
			r.RemoveInterest(id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count(channel.Sentiment, btc))
	ops := rec.ops()
	require.NotEmpty(t, ops)
	assert.Equal(t, 0, len(ops)%2, "subscribe/unsubscribe must pair up")
	for i, op := range ops {
		if i%2 == 0 {
			assert.Contains(t, op, "subscribe sentiment")
			assert.NotContains(t, op, "unsubscribe")
		} else {
			assert.Contains(t, op, "unsubscribe")
		}
	}
}
