// Package main provides the entrypoint for the SafeOut API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/airquality"
	"github.com/safeout/safeout/internal/airquality/openaq"
	"github.com/safeout/safeout/internal/api"
	"github.com/safeout/safeout/internal/api/middleware"
	"github.com/safeout/safeout/internal/config"
	"github.com/safeout/safeout/internal/earthdata"
	"github.com/safeout/safeout/internal/fire"
	"github.com/safeout/safeout/internal/fire/firms"
	"github.com/safeout/safeout/internal/granule"
	"github.com/safeout/safeout/internal/imagery"
	"github.com/safeout/safeout/internal/precipitation"
	"github.com/safeout/safeout/internal/provider/resilience"
	"github.com/safeout/safeout/internal/snapshot"
	"github.com/safeout/safeout/internal/telemetry"
	"github.com/safeout/safeout/internal/uv"
	"github.com/safeout/safeout/internal/weather"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "safeout-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SafeOut API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.TelemetryEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// One resilient client per upstream, all stamping the health registry
	registry := resilience.NewRegistry()

	earthdataHTTP := resilience.NewClient(resilience.ClientConfig{
		Name: "earthdata",
		// Granule files run to hundreds of megabytes on a slow link.
		Timeout:  5 * time.Minute,
		Registry: registry,
	})
	openaqHTTP := resilience.NewClient(resilience.ClientConfig{
		Name:     "openaq",
		Registry: registry,
	})
	firmsHTTP := resilience.NewClient(resilience.ClientConfig{
		Name:     "firms",
		Registry: registry,
	})
	registry.Register("earthdata", earthdataHTTP)
	registry.Register("openaq", openaqHTTP)
	registry.Register("firms", firmsHTTP)

	// Earthdata granule pipeline: CMR search, GES DISC download, NetCDF
	// decode, shared single-flight cache.
	cmr := earthdata.NewClient(earthdata.ClientConfig{
		Token:    cfg.EarthdataToken,
		CacheDir: cfg.CacheDir,
		HTTP:     earthdataHTTP,
		Logger:   log,
	})
	cache := granule.New(granule.Config{
		MaxEntries: cfg.GranuleCacheEntries,
		Logger:     log,
	})

	// Data providers, one per response category
	providers := []snapshot.Provider{
		weather.NewProvider(cmr, cache, log),
		precipitation.NewProvider(cmr, cache, log),
		uv.NewProvider(cmr, cache, log),
		airquality.NewService(airquality.ServiceConfig{
			Sampler: openaq.New(openaq.Config{APIKey: cfg.OpenAQAPIKey, HTTP: openaqHTTP, Logger: log}),
			Logger:  log,
		}),
		fire.NewService(fire.ServiceConfig{
			Detector: firms.New(firms.Config{APIKey: cfg.FIRMSAPIKey, HTTP: firmsHTTP, Logger: log}),
			Logger:   log,
		}),
		imagery.NewService(imagery.ServiceConfig{Logger: log}),
	}

	orchestrator := snapshot.NewOrchestrator(snapshot.OrchestratorConfig{
		Providers:      providers,
		Logger:         log,
		CeilingTimeout: cfg.CeilingTimeout,
	})
	log.Info().
		Int("providers", len(providers)).
		Dur("ceiling", cfg.CeilingTimeout).
		Msg("aggregation engine initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		Aggregator:         orchestrator,
		Registry:           registry,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	// Create HTTP server. Write timeout must outlast the aggregation
	// ceiling or partial responses get cut off mid-body.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.CeilingTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
