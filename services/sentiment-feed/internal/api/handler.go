// services/sentiment-feed/internal/api/handler.go

// Package api — HTTP-поверхность фасада: статус, чтение буферов и SSE-поток.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/channel"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/feed"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/filter"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/router"
)

// DefaultHeartbeat — период комментария-пинга в SSE.
const DefaultHeartbeat = 15 * time.Second

// Feed — то, что API берёт у фасада.
type Feed interface {
	Status() feed.Status
	ChannelMode(ch channel.Name) feed.Mode
	Capacity() int
	ReadN(ch channel.Name, f filter.Filter, limit int) ([]channel.Event, error)
	Subscriptions() []router.Subscription
	Watch(ch channel.Name, f filter.Filter, fn func(feed.View), opts ...feed.WatchOption) (*feed.Watcher, error)
}

// Handler агрегирует зависимости HTTP-хендлеров.
type Handler struct {
	feed      Feed
	log       *logger.Logger
	heartbeat time.Duration
}

// NewHandler создаёт Handler. heartbeat ≤ 0 → DefaultHeartbeat.
func NewHandler(f Feed, log *logger.Logger, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{feed: f, log: log.Named("api"), heartbeat: heartbeat}
}

type channelInfo struct {
	Name          string              `json:"name"`
	Fields        []string            `json:"fields"`
	Subscriptions []subscriptionEntry `json:"subscriptions"`
}

type subscriptionEntry struct {
	Filters  map[string]string `json:"filters"`
	RefCount int               `json:"ref_count"`
}

type channelView struct {
	Channel   string            `json:"channel"`
	Filters   map[string]string `json:"filters,omitempty"`
	Connected bool              `json:"connected"`
	Mode      feed.Mode         `json:"mode"`
	Count     int               `json:"count"`
	Data      []channel.Event   `json:"data"`
}

// Status — GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.feed.Status())
}

// Channels — GET /api/v1/channels: реестр и активные подписки.
func (h *Handler) Channels(w http.ResponseWriter, _ *http.Request) {
	byChannel := map[channel.Name][]subscriptionEntry{}
	for _, s := range h.feed.Subscriptions() {
		byChannel[s.Channel] = append(byChannel[s.Channel], subscriptionEntry{
			Filters: s.Filter.Map(), RefCount: s.RefCount,
		})
	}

	out := make([]channelInfo, 0, len(channel.All()))
	for _, ch := range channel.All() {
		d, _ := channel.Describe(ch)
		subs := byChannel[ch]
		if subs == nil {
			subs = []subscriptionEntry{}
		}
		out = append(out, channelInfo{Name: string(ch), Fields: d.Fields, Subscriptions: subs})
	}
	writeJSON(w, out)
}

// Channel — GET /api/v1/channels/{channel}?<field>=..&limit=..
func (h *Handler) Channel(w http.ResponseWriter, r *http.Request) {
	ch, f, limit, ok := h.parse(w, r)
	if !ok {
		return
	}
	data, err := h.feed.ReadN(ch, f, limit)
	if err != nil {
		internalError(w, "read failed")
		return
	}
	st := h.feed.Status()
	writeJSON(w, channelView{
		Channel:   string(ch),
		Filters:   f.Map(),
		Connected: st.Connected,
		Mode:      h.feed.ChannelMode(ch),
		Count:     len(data),
		Data:      data,
	})
}

// parse разбирает {channel}, limit и фильтр; при ошибке ответ уже записан.
func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (channel.Name, filter.Filter, int, bool) {
	ch, err := channel.Lookup(chi.URLParam(r, "channel"))
	if err != nil {
		if errors.Is(err, channel.ErrUnknownChannel) {
			notFound(w, "unknown channel")
		} else {
			badRequest(w, "invalid channel")
		}
		return "", filter.Filter{}, 0, false
	}

	limit := h.feed.Capacity()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return "", filter.Filter{}, 0, false
		}
		if n < limit {
			limit = n
		}
	}
	return ch, filter.FromValues(r.URL.Query(), "limit"), limit, true
}
