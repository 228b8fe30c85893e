package fanout

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Mishragini/OpiniXchange/internal/metrics"
)

// Routes mounts the WebSocket endpoint with health and metrics.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.HandleWS)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"service": "wsserver",
			"clients": h.Clients(),
		})
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}
