package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/healthfirst-portals/internal/accounts"
	"github.com/wolfman30/healthfirst-portals/internal/availability"
	httpmiddleware "github.com/wolfman30/healthfirst-portals/internal/http/middleware"
	"github.com/wolfman30/healthfirst-portals/internal/registration"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	RegistrationHandler *registration.Handler
	LoginHandler        *accounts.LoginHandler
	AvailabilityHandler *availability.Handler
	Tokens              httpmiddleware.TokenParser
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// LoginLimiter throttles login attempts per client IP (optional).
	LoginLimiter *httpmiddleware.RateLimiter

	// HealthChecks are probed by /health; any failure answers 503.
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.AvailabilityHandler != nil {
			api.Route("/provider/availability", func(av chi.Router) {
				av.Use(httpmiddleware.ProviderAuth(cfg.Tokens))
				cfg.AvailabilityHandler.Routes(av)
			})
		}
		api.Route("/{portal}", func(p chi.Router) {
			if cfg.RegistrationHandler != nil {
				cfg.RegistrationHandler.Routes(p)
			}
			if cfg.LoginHandler != nil {
				var limits []func(http.Handler) http.Handler
				if cfg.LoginLimiter != nil {
					limits = append(limits, cfg.LoginLimiter.Middleware)
				}
				p.With(limits...).Method(http.MethodPost, "/login", cfg.LoginHandler)
			}
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]any{"status": "ok"}
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			status = http.StatusServiceUnavailable
			resp["status"] = "degraded"
			resp["failed"] = failed
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
