package admin

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the admin router: public probes plus the token-guarded API.
func (h *Handler) NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	// Public endpoints (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	// Admin API (token auth)
	r.Route("/api", func(r chi.Router) {
		r.Use(h.TokenAuthMiddleware)

		r.Get("/whoami", h.HandleWhoami)

		// Log level management
		r.Get("/loglevel", h.HandleGetLogLevel)
		r.Post("/loglevel", h.HandleSetLogLevel)
	})

	return r
}
