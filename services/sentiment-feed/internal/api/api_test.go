// services/sentiment-feed/internal/api/api_test.go
package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/analytics-system/common/backoff"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/api"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/feed"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/mockserver"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/transport"
)

type fixture struct {
	source *mockserver.Server
	feed   *feed.Service
	api    *httptest.Server
}

// newFixture: mock-источник → feed.Service (подписан на весь sentiment) → API.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := mockserver.New(mockserver.Config{Interval: time.Hour}, clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)), logger.NewNop())
	ws := httptest.NewServer(src)
	t.Cleanup(ws.Close)

	svc, err := feed.New(feed.Config{Config: transport.Config{
		URL:     "ws" + strings.TrimPrefix(ws.URL, "http"),
		Backoff: backoff.Config{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1},
	}}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	require.NoError(t, svc.Start(context.Background()))
	require.Eventually(t, svc.IsConnected, 3*time.Second, 5*time.Millisecond)

	_, err = svc.Subscribe(channel.Sentiment, filter.Filter{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		data, _ := svc.Read(channel.Sentiment, filter.Filter{})
		return len(data) == 7
	}, 3*time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(api.Routes(api.NewHandler(svc, logger.NewNop(), 50*time.Millisecond)))
	t.Cleanup(srv.Close)
	return &fixture{source: src, feed: svc, api: srv}
}

func getJSON(t *testing.T, url string, into interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

type viewBody struct {
	Channel   string                   `json:"channel"`
	Filters   map[string]string        `json:"filters"`
	Connected bool                     `json:"connected"`
	Mode      string                   `json:"mode"`
	Count     int                      `json:"count"`
	Data      []map[string]interface{} `json:"data"`
}

func (v viewBody) ids() []string {
	out := make([]string, len(v.Data))
	for i, d := range v.Data {
		out[i], _ = d["id"].(string)
	}
	return out
}

func TestStatus(t *testing.T) {
	fx := newFixture(t)
	var st feed.Status
	require.Equal(t, http.StatusOK, getJSON(t, fx.api.URL+"/api/v1/status", &st))
	assert.Equal(t, feed.Status{Connected: true, Mode: feed.ModeLive}, st)
}

func TestChannels(t *testing.T) {
	fx := newFixture(t)
	var out []struct {
		Name          string   `json:"name"`
		Fields        []string `json:"fields"`
		Subscriptions []struct {
			RefCount int `json:"ref_count"`
		} `json:"subscriptions"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, fx.api.URL+"/api/v1/channels", &out))
	require.Len(t, out, 3)
	assert.Equal(t, "sentiment", out[0].Name)
	assert.Contains(t, out[0].Fields, "cryptocurrency")
	require.Len(t, out[0].Subscriptions, 1)
	assert.Equal(t, 1, out[0].Subscriptions[0].RefCount)
	assert.Empty(t, out[1].Subscriptions)
}

func TestChannel_Read(t *testing.T) {
	fx := newFixture(t)

	cases := []struct {
		name     string
		query    string
		wantCode int
		wantIDs  []string
	}{
		{"all", "", http.StatusOK, []string{"s1", "s2", "sent1", "sent2", "sent3", "sent4", "sent5"}},
		{"bitcoin", "?cryptocurrency=bitcoin", http.StatusOK, []string{"s1", "sent1", "sent3"}},
		{"alias", "?coin=Bitcoin&limit=2", http.StatusOK, []string{"s1", "sent1"}},
		{"wildcard", "?cryptocurrency=all&source=twitter", http.StatusOK, []string{"s2", "sent2"}},
		{"limitAboveCapacity", "?limit=1000&cryptocurrency=solana", http.StatusOK, []string{"sent4"}},
		{"badLimit", "?limit=zero", http.StatusBadRequest, nil},
		{"negativeLimit", "?limit=-1", http.StatusBadRequest, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var body viewBody
			code := getJSON(t, fx.api.URL+"/api/v1/channels/sentiment"+c.query, &body)
			require.Equal(t, c.wantCode, code)
			if c.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, "sentiment", body.Channel)
			assert.Equal(t, "live", body.Mode)
			assert.Equal(t, c.wantIDs, body.ids())
			assert.Equal(t, len(c.wantIDs), body.Count)
		})
	}
}

func TestChannel_Unknown(t *testing.T) {
	fx := newFixture(t)
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.Equal(t, http.StatusNotFound, getJSON(t, fx.api.URL+"/api/v1/channels/prices", &body))
	assert.Equal(t, http.StatusNotFound, body.Error.Code)
	assert.Equal(t, "unknown channel", body.Error.Message)
}

// readEvent читает одно SSE-событие view, пропуская комментарии.
func readEvent(t *testing.T, r *bufio.Reader) viewBody {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var v viewBody
			require.NoError(t, json.Unmarshal([]byte(data), &v))
			return v
		}
	}
}

func TestStream(t *testing.T) {
	fx := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fx.api.URL+"/api/v1/channels/sentiment/stream?asset=bitcoin", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	first := readEvent(t, rd)
	assert.Equal(t, []string{"s1", "sent1", "sent3"}, first.ids())
	assert.Equal(t, "bitcoin", first.Filters["cryptocurrency"])
	assert.Eventually(t, func() bool {
		return countWatchers(fx.feed) == 2
	}, time.Second, 5*time.Millisecond)

	fx.source.Publish(channel.Sentiment, &channel.SentimentEvent{
		ID: "live-eth", Cryptocurrency: "Ethereum", Source: "news", Score: 5, Timestamp: time.Now().UTC(),
	})
	fx.source.Publish(channel.Sentiment, &channel.SentimentEvent{
		ID: "live-btc", Cryptocurrency: "Bitcoin", Source: "news", Score: 55, Timestamp: time.Now().UTC(),
	})

	next := readEvent(t, rd)
	assert.Equal(t, []string{"live-btc", "s1", "sent1", "sent3"}, next.ids())

	cancel()
	assert.Eventually(t, func() bool { return countWatchers(fx.feed) == 1 }, 3*time.Second, 10*time.Millisecond,
		"stream watcher must deregister when the client leaves")
}

// countWatchers — сумма refcount активных подписок sentiment.
func countWatchers(s *feed.Service) int {
	n := 0
	for _, sub := range s.Subscriptions() {
		if sub.Channel == channel.Sentiment {
			n += sub.RefCount
		}
	}
	return n
}
