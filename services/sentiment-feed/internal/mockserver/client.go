// services/sentiment-feed/internal/mockserver/client.go
package mockserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/wire"
)

type subscription struct {
	ch channel.Name
	f  filter.Filter
}

// client — одно подключение. Писатель один: writeLoop.
type client struct {
	srv  *Server
	conn *websocket.Conn
	send chan []byte

	mu   sync.Mutex
	subs map[string]subscription

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(s *Server, conn *websocket.Conn) *client {
	return &client{
		srv:  s,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]subscription),
		done: make(chan struct{}),
	}
}

func subKey(ch channel.Name, f filter.Filter) string { return string(ch) + "|" + f.Key() }

func (c *client) subscribe(ch channel.Name, f filter.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[subKey(ch, f)] = subscription{ch: ch, f: f}
}

func (c *client) unsubscribe(ch channel.Name, f filter.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, subKey(ch, f))
}

// wants — хотя бы одна подписка клиента пропускает событие.
func (c *client) wants(ch channel.Name, ev channel.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		if s.ch == ch && s.f.Match(ev) {
			return true
		}
	}
	return false
}

// enqueue не блокируется: медленный клиент отключается.
func (c *client) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.srv.log.Warn("client too slow, disconnecting")
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.srv.log.Debug("read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		m, err := wire.DecodeClient(data)
		if err != nil {
			c.srv.log.Warn("malformed client frame", zap.Error(err))
			continue
		}
		c.srv.handle(c, m)
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.srv.log.Debug("write error", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
