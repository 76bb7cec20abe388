package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// requestTimeout bounds every route except long polls and websockets
const requestTimeout = 30 * time.Second

// Router builds the HTTP routes. ctx bounds websocket connections.
func (h *Handler) Router(ctx context.Context, corsOrigins []string) http.Handler {
	r := NewBaseRouter(h.Logger, corsOrigins)
	timeout := chimiddleware.Timeout(requestTimeout)

	r.Get("/health", h.HealthCheck)
	r.Get("/metrics", h.Metrics)
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWS(ctx))
	}

	r.With(timeout).Get("/replay/sessions", h.ListSessions)
	r.Route("/replay/game/{game_id}", func(r chi.Router) {
		// long poll, bounded by the watch budget instead
		r.Get("/watch-homer", h.WatchHomeRun)

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Get("/", h.GetReplay)
			r.Delete("/", h.DeleteReplay)
			r.Post("/init", h.InitReplay)
			r.Get("/live", h.LiveReplay)
			r.Get("/status", h.GetStatus)
			r.Get("/homers", h.ListHomeRuns)
			r.Get("/next-at-bat", h.NextAtBat)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(timeout)
		r.Get("/highlights/game/{game_id}", h.GetHighlights)
		r.Get("/teams/{team_id}/games", h.GetTeamGames)
		if h.Formatted != nil {
			h.Formatted.Mount(r)
		}
	})

	return r
}

// NewBaseRouter returns a chi router with the shared middleware stack
func NewBaseRouter(logger *slog.Logger, corsOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	return r
}
