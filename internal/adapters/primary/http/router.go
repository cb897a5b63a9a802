package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/lorrc/ups-collab/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ups-collab/internal/auth"
	"github.com/lorrc/ups-collab/internal/config"
)

// RouterParams holds everything the HTTP surface is built from.
type RouterParams struct {
	Config       *config.Config
	TokenManager *auth.TokenManager
	Health       *HealthHandler
	Resources    *ResourceHandler
	Me           *MeHandler
	WebSocket    http.Handler
	Logger       *slog.Logger
}

// NewRouter assembles the middleware chain and routes.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config

	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(params.Logger))
	r.Use(mw.RecoveryLogger(params.Logger))
	r.Use(cors.Handler(corsOptions(cfg)))

	// Apply general rate limiting if enabled
	if cfg.RateLimit.Enabled {
		general := mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			TTL:               3 * time.Minute,
		})
		r.Use(general.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	params.Health.RegisterRoutes(r)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (Authentication is handled inside the handler)
		r.Group(func(r chi.Router) {
			if cfg.RateLimit.Enabled {
				upgrade := mw.NewRateLimiter(mw.RateLimiterConfig{
					RequestsPerSecond: cfg.RateLimit.UpgradeRPS,
					BurstSize:         cfg.RateLimit.UpgradeBurst,
					TTL:               5 * time.Minute,
				})
				r.Use(upgrade.Middleware)
			}
			r.Handle("/ws", params.WebSocket)
		})

		// Protected REST routes
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(params.TokenManager))
			if cfg.RateLimit.Enabled {
				perUser := mw.NewRateLimiter(mw.RateLimiterConfig{
					RequestsPerSecond: cfg.RateLimit.UserRPS,
					BurstSize:         cfg.RateLimit.UserBurst,
					TTL:               5 * time.Minute,
					Key:               mw.ByUser,
				})
				r.Use(perUser.Middleware)
			}
			r.Get("/features", params.Resources.HandleFeatures)
			r.Route("/me", params.Me.RegisterRoutes)
			r.Route("/resources/{resourceID}", params.Resources.RegisterRoutes)
		})
	})

	return r
}

func corsOptions(cfg *config.Config) cors.Options {
	origins := cfg.WebSocket.AllowedOrigins
	if cfg.IsDevelopment() || len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
