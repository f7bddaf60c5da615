package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sipico/subscription-relay/internal/admin"
	"github.com/sipico/subscription-relay/internal/auth"
	"github.com/sipico/subscription-relay/internal/logging"
	"github.com/sipico/subscription-relay/internal/metrics"
	"github.com/sipico/subscription-relay/internal/middleware"
)

// DefaultMaxBodyBytes bounds request bodies; relay payloads are a few hundred bytes.
const DefaultMaxBodyBytes = 64 << 10

// RouterConfig holds the collaborators of the relay router.
type RouterConfig struct {
	// Authorizer guards /api routes.
	Authorizer auth.Authorizer
	// WriteLimiter throttles mutating /api routes. Nil disables it.
	WriteLimiter *middleware.RateLimiter
	// Admin serves /health, /ready and /admin. Nil leaves them unmounted.
	Admin *admin.Handler
	// CORSAllowedOrigins defaults to "*".
	CORSAllowedOrigins []string
	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// OwnerKey charges rate limits to the authenticated owner.
func OwnerKey(r *http.Request) string {
	return auth.OwnerFromContext(r.Context())
}

// NewRouter creates a Chi router with all relay endpoints.
// The logger parameter is used for debug logging of HTTP requests/responses.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Apply middlewares in order
	r.Use(middleware.RequestID) // Add request ID first
	r.Use(chimw.Recoverer)
	r.Use(middleware.HTTPLogging(logger, logging.RelayAllowlist)) // Signatures and tokens stay masked
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))

	if cfg.Admin != nil {
		r.Get("/health", cfg.Admin.HandleHealth)
		r.Get("/ready", cfg.Admin.HandleReady)
		r.Mount("/admin", cfg.Admin.NewRouter())
	}

	r.Get("/auth/challenge", h.HandleChallenge)
	r.Post("/auth", h.HandleAuth)

	r.Route("/api/subscriptions", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Authorizer)) // Auth before any handler

		write := r.With()
		if cfg.WriteLimiter != nil {
			write = r.With(cfg.WriteLimiter.Handler)
		}

		write.Post("/", h.HandleCreate)
		r.Get("/{plan_id}", h.HandleGet)
		write.Put("/{plan_id}", h.HandleUpdate)
		write.Delete("/{plan_id}", h.HandleClose)
		write.Post("/{plan_id}/renew", h.HandleRenew)
		write.Post("/{plan_id}/cancel", h.HandleCancel)
	})

	return r
}
