// Package config loads service configuration from the environment,
// with optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the SafeOut API.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// Env names the deployment environment (development, production).
	Env string

	// EarthdataToken is an Earthdata Login bearer token for CMR search
	// and GES DISC downloads.
	EarthdataToken string

	// OpenAQAPIKey authenticates against the OpenAQ v3 API.
	OpenAQAPIKey string

	// FIRMSAPIKey is the FIRMS map key.
	FIRMSAPIKey string

	// CacheDir holds downloaded granule files.
	CacheDir string

	// GranuleCacheEntries bounds the in-memory result cache.
	GranuleCacheEntries int

	// CeilingTimeout bounds one whole aggregation request.
	CeilingTimeout time.Duration

	// RateLimitPerMinute is the per-IP request budget.
	RateLimitPerMinute int

	// OTLPEndpoint receives traces and metrics when telemetry is on.
	OTLPEndpoint string

	// TelemetryEnabled toggles the OTLP exporters.
	TelemetryEnabled bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present; real environment
// variables win over file values.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:             envOr("APP_PORT", "8000"),
		Env:              envOr("APP_ENV", "development"),
		EarthdataToken:   os.Getenv("EARTHDATA_TOKEN"),
		OpenAQAPIKey:     os.Getenv("OPENAQ_API_KEY"),
		FIRMSAPIKey:      os.Getenv("FIRMS_API_KEY"),
		CacheDir:         envOr("CACHE_DIR", "./cache"),
		OTLPEndpoint:     envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: os.Getenv("OTEL_ENABLED") == "true",
	}

	var err error
	if cfg.GranuleCacheEntries, err = envInt("GRANULE_CACHE_ENTRIES", 256); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = envInt("RATE_LIMIT_PER_MINUTE", 100); err != nil {
		return nil, err
	}

	ceilingSeconds, err := envInt("REQUEST_CEILING_SECONDS", 45)
	if err != nil {
		return nil, err
	}
	cfg.CeilingTimeout = time.Duration(ceilingSeconds) * time.Second

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
