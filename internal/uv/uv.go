// Package uv serves ultraviolet exposure estimates derived from the
// TROPOMI/Sentinel-5P aerosol index product (S5P_L2__AER_AI).
package uv

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/granule"
	"github.com/safeout/safeout/internal/grid"
	"github.com/safeout/safeout/internal/snapshot"
)

// Category is this provider's response slot.
const Category = "uv_index"

// varIndex is the 354/388nm absorbing aerosol index variable.
const varIndex = "absorbing_aerosol_index"

// Index is the uv_index payload.
type Index struct {
	Source         string  `json:"source"`
	LastUpdate     string  `json:"last_update"`
	Value          float64 `json:"value"`
	Category       string  `json:"category"`
	Recommendation string  `json:"recommendation"`
}

// Profile describes the TROPOMI product. Swath-derived index fields
// are categorical-ish and noisy, so extraction is nearest-neighbor
// only; blending neighboring cells would manufacture values the
// instrument never reported.
func Profile() grid.Profile {
	return grid.Profile{
		DatasetID:         "S5P_L2__AER_AI",
		Variables:         []string{varIndex},
		SpacingLat:        0.05,
		SpacingLon:        0.05,
		Cadence:           24 * time.Hour,
		ProcessingLatency: 48 * time.Hour,
		LonDomain:         grid.LonSigned180,
		Method:            grid.MethodNearest,
		Timeout:           30 * time.Second,
	}
}

// NewProvider wires the TROPOMI grid source.
func NewProvider(retriever snapshot.Retriever, cache *granule.Cache, logger zerolog.Logger) *snapshot.GridSource {
	return snapshot.NewGridSource(snapshot.GridSourceConfig{
		Category:  Category,
		Profile:   Profile(),
		Retriever: retriever,
		Cache:     cache,
		Render:    Render,
		Logger:    logger,
	})
}

// Render builds the payload from the extracted index value.
func Render(values map[string]*grid.Value) (any, string) {
	v := values[varIndex]
	if v == nil {
		return nil, "no uv data at this location"
	}

	value := math.Round(v.Value*10) / 10
	category, recommendation := Categorize(value)

	return &Index{
		Source:         "TROPOMI",
		LastUpdate:     v.Timestamp.UTC().Format(time.RFC3339),
		Value:          value,
		Category:       category,
		Recommendation: recommendation,
	}, ""
}

// Categorize maps a UV index value to the WHO exposure category and a
// protection recommendation.
func Categorize(value float64) (string, string) {
	switch {
	case value < 3:
		return "low", "No protection needed for most people."
	case value < 6:
		return "moderate", "Wear sunscreen and seek shade around midday."
	case value < 8:
		return "high", "Use SPF 30+, a hat, and limit midday sun exposure."
	case value < 11:
		return "very_high", "Extra protection required; avoid the sun from 10am to 4pm."
	default:
		return "extreme", "Avoid sun exposure; full protection is essential outdoors."
	}
}
