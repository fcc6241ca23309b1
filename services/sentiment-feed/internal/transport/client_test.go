// services/sentiment-feed/internal/transport/client_test.go
package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/analytics-system/common/backoff"
	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/router"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/wire"
)

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

type recorder struct {
	mu         sync.Mutex
	snapshots  map[channel.Name][]string
	increments []string
}

func newRecorder() *recorder { return &recorder{snapshots: map[channel.Name][]string{}} }

func (r *recorder) OnSnapshot(ch channel.Name, events []channel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.EventID()
	}
	r.snapshots[ch] = ids
}

func (r *recorder) OnIncrement(ch channel.Name, ev channel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.increments = append(r.increments, string(ch)+"/"+ev.EventID())
}

func (r *recorder) snapshot(ch channel.Name) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[ch]
}

func (r *recorder) incs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.increments...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fastConfig(url string) Config {
	return Config{
		URL:                  url,
		ConnectTimeout:       time.Second,
		MaxReconnectAttempts: 3,
		ReadTimeout:          5 * time.Second,
		Backoff: backoff.Config{
			InitialInterval: time.Millisecond,
			Multiplier:      1,
			MaxInterval:     2 * time.Millisecond,
		},
	}
}

// frames собирает клиентские кадры одного соединения.
type frames struct {
	mu   sync.Mutex
	list []wire.ClientMessage
}

func (f *frames) add(m wire.ClientMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = append(f.list, m)
}

func (f *frames) get() []wire.ClientMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.ClientMessage(nil), f.list...)
}

func readFrames(conn *websocket.Conn, into *frames, limit int) {
	for i := 0; limit <= 0 || i < limit; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m, err := wire.DecodeClient(data)
		if err != nil {
			return
		}
		into.add(m)
	}
}

func newClient(t *testing.T, cfg Config, h Handler) (*Client, *router.Router) {
	t.Helper()
	c, err := New(cfg, h, logger.NewNop())
	require.NoError(t, err)
	r := router.New(c, logger.NewNop())
	c.SetReplayer(r)
	t.Cleanup(c.Disconnect)
	return c, r
}

// -----------------------------------------------------------------------------
// tests
// -----------------------------------------------------------------------------

func TestConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name        string
		input       Config
		wantErr     bool
		wantTimeout time.Duration
		wantRetries int
	}{
		{"empty", Config{}, true, 5 * time.Second, 3},
		{"badScheme", Config{URL: "http://feed"}, true, 5 * time.Second, 3},
		{"ok", Config{URL: "ws://feed/ws"}, false, 5 * time.Second, 3},
		{"custom", Config{URL: "wss://feed/ws", ConnectTimeout: time.Second, MaxReconnectAttempts: 7}, false, time.Second, 7},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.ApplyDefaults()
			if cfg.ConnectTimeout != c.wantTimeout {
				t.Errorf("ConnectTimeout = %v; want %v", cfg.ConnectTimeout, c.wantTimeout)
			}
			if cfg.MaxReconnectAttempts != c.wantRetries {
				t.Errorf("MaxReconnectAttempts = %v; want %v", cfg.MaxReconnectAttempts, c.wantRetries)
			}
			if cfg.PingInterval >= cfg.ReadTimeout {
				t.Errorf("PingInterval %v must be below ReadTimeout %v", cfg.PingInterval, cfg.ReadTimeout)
			}
			if err := cfg.Validate(); (err != nil) != c.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestClient_DispatchesFramesByChannel(t *testing.T) {
	got := &frames{}
	upg := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		readFrames(conn, got, 1)
		send := []string{
			`{"event":"initial_data","channel":"sentiment","data":[{"id":"s1","cryptocurrency":"Bitcoin","source":"reddit","sentiment_score":75.2,"sentiment_label":"positive"},{"id":"","sentiment_score":1},{"id":"s2","cryptocurrency":"Ethereum","source":"twitter","sentiment_score":-32.5,"sentiment_label":"negative"}]}`,
			`{"event":"new_data","channel":"prices","data":{"id":"p1"}}`,
			`garbage`,
			`{"event":"leave","channel":"sentiment"}`,
			`{"event":"new_data","channel":"sentiment","data":{"id":"bad","sentiment_score":999}}`,
			`{"event":"new_data","channel":"sentiment","data":{"id":"s3","cryptocurrency":"Bitcoin","source":"news","sentiment_score":85.7}}`,
		}
		for _, s := range send {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
				return
			}
		}
		readFrames(conn, got, 0)
	}))
	defer srv.Close()

	rec := newRecorder()
	c, r := newClient(t, fastConfig(wsURL(srv)), rec)

	// Регистрация до подключения: намерение уходит через повтор.
	r.AddInterest(channel.Sentiment, filter.New(map[string]string{"cryptocurrency": "Bitcoin"}))
	require.NoError(t, c.Connect(context.Background()))

	require.Eventually(t, func() bool { return len(rec.incs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.IsConnected())
	assert.Equal(t, []string{"s1", "s2"}, rec.snapshot(channel.Sentiment))
	assert.Equal(t, []string{"sentiment/s3"}, rec.incs())

	sub := got.get()
	require.Len(t, sub, 1)
	assert.Equal(t, wire.EventSubscribe, sub[0].Event)
	assert.Equal(t, "sentiment", sub[0].Channel)
	assert.Equal(t, map[string]string{"cryptocurrency": "Bitcoin"}, sub[0].Filters)
}

func TestClient_RuntimeSubscribeUnsubscribeOrder(t *testing.T) {
	got := &frames{}
	upg := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readFrames(conn, got, 0)
	}))
	defer srv.Close()

	c, r := newClient(t, fastConfig(wsURL(srv)), newRecorder())
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)

	a := r.AddInterest(channel.Trends, filter.Filter{})
	b := r.AddInterest(channel.Trends, filter.Filter{})
	r.RemoveInterest(a)
	r.RemoveInterest(b)
	r.AddInterest(channel.Transactions, filter.Filter{})

	require.Eventually(t, func() bool { return len(got.get()) == 3 }, 2*time.Second, 5*time.Millisecond)
	ops := got.get()
	assert.Equal(t, wire.EventSubscribe, ops[0].Event)
	assert.Equal(t, "trends", ops[0].Channel)
	assert.Equal(t, wire.EventUnsubscribe, ops[1].Event)
	assert.Equal(t, "trends", ops[1].Channel)
	assert.Equal(t, "transactions", ops[2].Channel)
}

func TestClient_ReconnectReplaysEachSubscriptionOnce(t *testing.T) {
	var conns int32
	first, second := &frames{}, &frames{}
	upg := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		switch atomic.AddInt32(&conns, 1) {
		case 1:
			readFrames(conn, first, 2)
			// обрыв после двух подписок
		default:
			readFrames(conn, second, 0)
		}
	}))
	defer srv.Close()

	rec := newRecorder()
	c, r := newClient(t, fastConfig(wsURL(srv)), rec)
	btc := filter.New(map[string]string{"cryptocurrency": "Bitcoin"})
	r.AddInterest(channel.Sentiment, btc)
	r.AddInterest(channel.Sentiment, btc)
	r.AddInterest(channel.Trends, filter.Filter{})

	var transitions []State
	var mu sync.Mutex
	c.OnStateChange(func(s State) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return len(second.get()) == 2 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Len(t, first.get(), 2)
	replay := second.get()
	require.Len(t, replay, 2, "each subscription replayed exactly once")
	seen := map[string]bool{}
	for _, m := range replay {
		assert.Equal(t, wire.EventSubscribe, m.Event)
		seen[m.Channel] = true
	}
	assert.True(t, seen["sentiment"] && seen["trends"])
	assert.True(t, c.IsConnected())
	assert.False(t, c.GaveUp())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(transitions), 3)
	assert.Equal(t, []bool{true, false, true}, []bool{transitions[0].Connected, transitions[1].Connected, transitions[2].Connected})
}

func TestClient_GivesUpAfterRetryCap(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, r := newClient(t, fastConfig(wsURL(srv)), newRecorder())
	gaveUp := make(chan State, 1)
	c.OnStateChange(func(s State) {
		if s.GaveUp {
			gaveUp <- s
		}
	})
	require.NoError(t, c.Connect(context.Background()))

	select {
	case s := <-gaveUp:
		assert.False(t, s.Connected)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not give up")
	}
	<-c.Done()

	assert.Equal(t, int32(4), atomic.LoadInt32(&hits), "first attempt + 3 retries")
	assert.True(t, c.GaveUp())
	assert.False(t, c.IsConnected())

	// Дальше намерения просто отбрасываются, переподключений нет.
	r.AddInterest(channel.Sentiment, filter.Filter{})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestClient_ConnectTimeoutCountsAsFailedAttempt(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := fastConfig(wsURL(srv))
	cfg.ConnectTimeout = 50 * time.Millisecond
	cfg.MaxReconnectAttempts = 1
	c, _ := newClient(t, cfg, newRecorder())

	start := time.Now()
	require.NoError(t, c.Connect(context.Background()))
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("connect attempts did not time out")
	}
	assert.True(t, c.GaveUp())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_Lifecycle(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1/ws"}, newRecorder(), logger.NewNop())
	require.NoError(t, err)

	c.Send(router.Intent{Op: router.OpSubscribe, Channel: channel.Sentiment})
	assert.Empty(t, c.drain(), "offline sends are dropped")

	c.Disconnect()
	c.Disconnect()
	<-c.Done()
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)

	_, err = New(Config{}, newRecorder(), logger.NewNop())
	assert.Error(t, err)
}

func TestClient_ConnectTwice(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, _ := newClient(t, fastConfig(wsURL(srv)), newRecorder())
	require.NoError(t, c.Connect(context.Background()))
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyStarted)
}
