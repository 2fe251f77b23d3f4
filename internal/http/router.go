package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/cyclecal/internal/api"
	"github.com/jw6ventures/cyclecal/internal/auth"
	"github.com/jw6ventures/cyclecal/internal/config"
	httperrors "github.com/jw6ventures/cyclecal/internal/http/errors"
	"github.com/jw6ventures/cyclecal/internal/http/ratelimit"
	"github.com/jw6ventures/cyclecal/internal/metrics"
)

// HealthChecker reports whether backing stores are reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter wires health, metrics and the authenticated JSON API. The
// returned stop function ends the rate limiters' background sweepers and
// must be called once the server has shut down.
func NewRouter(cfg *config.Config, health HealthChecker, authService *auth.Service, apiHandler *api.Handler) (http.Handler, func()) {
	r := chi.NewRouter()

	// Unauthenticated probes: 5 requests per second per IP, burst of 10
	publicLimiter := ratelimit.New(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies, nil)
	// API: 10 requests per second per user, burst of 30
	apiLimiter := ratelimit.New(rate.Limit(10), 30, 5*time.Minute, cfg.TrustedProxies, userKey)

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Group(func(r chi.Router) {
		r.Use(publicLimiter.Middleware())

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := health.HealthCheck(ctx); err != nil {
				httperrors.LogError(r, "readiness check failed", err)
				httperrors.WriteError(w, http.StatusServiceUnavailable, "unready")
				return
			}

			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authService.RequireBearer)
		r.Use(apiLimiter.Middleware())
		apiHandler.Routes(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.NotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r, func() {
		publicLimiter.Stop()
		apiLimiter.Stop()
	}
}

func userKey(r *http.Request) string {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	return ""
}
