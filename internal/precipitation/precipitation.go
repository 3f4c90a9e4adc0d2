// Package precipitation serves rain rate observations from GPM IMERG
// Early half-hourly granules (GPM_3IMERGHHE collection).
package precipitation

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/granule"
	"github.com/safeout/safeout/internal/grid"
	"github.com/safeout/safeout/internal/snapshot"
)

// Category is this provider's response slot.
const Category = "precipitation"

// varRate is the calibrated precipitation rate variable in IMERG V07.
const varRate = "precipitation"

// Observation is the precipitation payload.
type Observation struct {
	Source        string  `json:"source"`
	LastUpdate    string  `json:"last_update"`
	RateMMH       float64 `json:"rate_mm_h"`
	Intensity     string  `json:"intensity"`
	WindowMinutes int     `json:"window_minutes"`
}

// Profile describes the IMERG Early grid. The Early run publishes
// about four hours behind real time.
func Profile() grid.Profile {
	return grid.Profile{
		DatasetID:         "GPM_3IMERGHHE",
		Variables:         []string{varRate},
		SpacingLat:        0.1,
		SpacingLon:        0.1,
		Cadence:           30 * time.Minute,
		ProcessingLatency: 6 * time.Hour,
		LonDomain:         grid.LonSigned180,
		Method:            grid.MethodBilinear,
		Timeout:           30 * time.Second,
	}
}

// NewProvider wires the IMERG grid source.
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

// Render builds the payload. A missing rate means the pixel is outside
// IMERG coverage (beyond 60°N/S) or masked, which is an empty result.
func Render(values map[string]*grid.Value) (any, string) {
	rate := values[varRate]
	if rate == nil {
		return nil, "no precipitation data at this location"
	}

	mmh := rate.Value
	if mmh < 0 {
		mmh = 0
	}
	mmh = math.Round(mmh*100) / 100

	return &Observation{
		Source:        "GPM IMERG Early",
		LastUpdate:    rate.Timestamp.UTC().Format(time.RFC3339),
		RateMMH:       mmh,
		Intensity:     Intensity(mmh),
		WindowMinutes: 30,
	}, ""
}

// Intensity labels a rain rate using the WMO intensity bands.
func Intensity(rateMMH float64) string {
	switch {
	case rateMMH < 0.1:
		return "none"
	case rateMMH < 2.5:
		return "light"
	case rateMMH < 10:
		return "moderate"
	case rateMMH < 50:
		return "heavy"
	default:
		return "violent"
	}
}
