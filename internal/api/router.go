// Package api provides the HTTP router: bot webhooks, dialog pages, health,
// metrics and the admin API.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/teamsbots/teamsbots/internal/auth"
	"github.com/teamsbots/teamsbots/internal/metrics"
	"github.com/teamsbots/teamsbots/internal/ratelimit"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Bots maps a sample name to its webhook handler, served at
	// POST /api/{sample}/messages.
	Bots map[string]http.Handler
	// Pages mounts static pages at the root, such as dialog pages.
	Pages []func(chi.Router)
	// APIKeys guards /api/v1. Without keys the admin API is not mounted.
	APIKeys *auth.APIKeys
	// RateLimiter limits admin API requests per client (optional).
	RateLimiter *ratelimit.Limiter
	// Metrics records HTTP request metrics (optional).
	Metrics *metrics.Metrics
	// Gatherer is exposed at MetricsPath when set.
	Gatherer    prometheus.Gatherer
	MetricsPath string
	// RequestTimeout bounds each request. Zero uses 60s.
	RequestTimeout time.Duration
}

// NewRouter creates the HTTP router.
func NewRouter(handler *Handler, logger zerolog.Logger, config RouterConfig) *chi.Mux {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, config.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(config.RequestTimeout))

	r.Get("/health", handler.HealthCheck)

	if config.Gatherer != nil {
		r.Handle(config.MetricsPath, metrics.Handler(config.Gatherer))
	}

	for _, mount := range config.Pages {
		mount(r)
	}

	r.Route("/api", func(r chi.Router) {
		for name, bot := range config.Bots {
			r.Method(http.MethodPost, "/"+name+"/messages", bot)
		}

		if config.APIKeys == nil || !config.APIKeys.Enabled() {
			return
		}
		r.Route("/v1", func(r chi.Router) {
			r.Use(NewRateLimitMiddleware(config.RateLimiter))
			r.Use(NewAuthMiddleware(config.APIKeys))

			r.Get("/conversations", handler.ListConversations)
			r.Delete("/conversations/{key}", handler.DeleteConversation)
			r.Post("/proactive/broadcast", handler.Broadcast)
			r.Post("/proactive/{key}", handler.SendProactive)
		})
	})

	return r
}
