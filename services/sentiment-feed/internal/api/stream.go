// services/sentiment-feed/internal/api/stream.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YaganovValera/analytics-system/common/logger"
	"github.com/YaganovValera/analytics-system/services/sentiment-feed/internal/feed"
)

// Stream — GET /api/v1/channels/{channel}/stream: SSE, одно событие
// "view" на каждое изменение. Один Watcher на клиента, закрывается
// вместе с запросом.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	ch, f, limit, ok := h.parse(w, r)
	if !ok {
		return
	}
	ctx := logger.ContextWithClientID(r.Context(), uuid.NewString())
	log := h.log.WithContext(ctx).With(
		zap.String("channel", string(ch)),
		zap.Stringer("filter", f),
	)

	// последний View вытесняет непрочитанный: медленный клиент не держит транспорт
	updates := make(chan feed.View, 1)
	push := func(v feed.View) {
		for {
			select {
			case updates <- v:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	watcher, err := h.feed.Watch(ch, f, push, feed.WithLimit(limit))
	if err != nil {
		internalError(w, "watch failed")
		return
	}
	defer watcher.Close()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := sendView(w, rc, watcher.View()); err != nil {
		log.Debug("sse write failed", zap.Error(err))
		return
	}
	log.Info("sse client attached")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			log.Info("sse client detached")
			return
		case v := <-updates:
			if err := sendView(w, rc, v); err != nil {
				log.Debug("sse write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func sendView(w http.ResponseWriter, rc *http.ResponseController, v feed.View) error {
	body := channelView{
		Channel:   string(v.Channel),
		Filters:   v.Filter.Map(),
		Connected: v.Connected,
		Mode:      v.Mode,
		Count:     len(v.Data),
		Data:      v.Data,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal view: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: view\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("write view: %w", err)
	}
	return rc.Flush()
}
