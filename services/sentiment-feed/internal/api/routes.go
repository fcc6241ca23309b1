// services/sentiment-feed/internal/api/routes.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/YaganovValera/analytics-system/common/middleware"
)

// Routes собирает chi-роутер API.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.RequestLogger(h.log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/channels", h.Channels)
		r.Get("/channels/{channel}", h.Channel)
		r.Get("/channels/{channel}/stream", h.Stream)
	})
	return r
}
