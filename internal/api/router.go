// Package api provides the HTTP API for SafeOut.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/api/handler"
	"github.com/safeout/safeout/internal/api/middleware"
	"github.com/safeout/safeout/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version            string
	BuildTime          string
	Logger             zerolog.Logger
	ServiceName        string
	Metrics            *middleware.Metrics
	Aggregator         handler.Aggregator
	Registry           *resilience.Registry
	RateLimitPerMinute int
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "safeout-api"
	}
	rateLimit := cfg.RateLimitPerMinute
	if rateLimit <= 0 {
		rateLimit = 100
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry)
	infoHandler := handler.NewInfoHandler(cfg.Version)
	environmentalHandler := handler.NewEnvironmentalHandler(cfg.Aggregator)

	standardRateLimit := middleware.RateLimitByIP(middleware.PerMinute(rateLimit))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Aggregation endpoint - may download granules, rate limited per IP
		r.With(standardRateLimit, middleware.RequireJSON).
			Post("/environmental-data", environmentalHandler.GetEnvironmentalData)

		// Service metadata (public)
		r.With(standardRateLimit).Get("/info", infoHandler.GetInfo)
	})

	// Ops endpoints (public, not rate limited - probed by orchestration)
	r.Route("/v1/ops", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.Get("/status", opsHandler.SystemStatus)
	})

	return r
}
