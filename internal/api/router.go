// Package api provides the HTTP API for SafeRoute.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/handler"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	// Metrics records HTTP metrics when set.
	Metrics *middleware.Metrics

	// Planner computes and ranks routes (required).
	Planner handler.RoutePlanner

	// Snapshots exposes the active crime dataset (required).
	Snapshots handler.SnapshotSource

	// Reloader rebuilds the dataset on admin request. Nil disables reloads.
	Reloader handler.Reloader

	// Tokens verifies admin bearer tokens (required).
	Tokens middleware.TokenValidator

	// Providers reports circuit breaker state on /v1/ops/status.
	Providers *resilience.Registry

	// RequireTLS rejects plain-HTTP requests forwarded by a load balancer.
	RequireTLS bool

	// ComputeRateLimit limits /v1/routes:compute per client IP
	// (default: middleware.ComputeRateLimit).
	ComputeRateLimit *middleware.RateLimitConfig

	// StandardRateLimit limits ranking and dataset reads per client IP
	// (default: middleware.StandardRateLimit).
	StandardRateLimit *middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Snapshots, cfg.Providers)
	routeHandler := handler.NewRouteHandler(cfg.Planner, cfg.Logger)
	datasetHandler := handler.NewDatasetHandler(cfg.Snapshots, cfg.Reloader, cfg.Logger)

	computeLimit := middleware.RateLimitByIP(orDefault(cfg.ComputeRateLimit, middleware.ComputeRateLimit))
	standardLimit := middleware.RateLimitByIP(orDefault(cfg.StandardRateLimit, middleware.StandardRateLimit))
	adminAuth := middleware.RequireAdmin(cfg.Tokens)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public, unlimited so health checks never get throttled)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Compute calls the directions provider; rank is local scoring only.
		r.With(computeLimit).Post("/routes:compute", routeHandler.ComputeRoutes)
		r.With(standardLimit).Post("/routes:rank", routeHandler.RankRoutes)

		r.With(standardLimit).Get("/dataset", datasetHandler.GetDataset)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth)
			r.Use(middleware.RateLimitBySubject(middleware.AdminRateLimit))
			r.Post("/dataset:reload", datasetHandler.ReloadDataset)
		})
	})

	return r
}

func orDefault(cfg *middleware.RateLimitConfig, def middleware.RateLimitConfig) middleware.RateLimitConfig {
	if cfg == nil {
		return def
	}
	return *cfg
}
