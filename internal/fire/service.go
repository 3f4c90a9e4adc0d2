// Package fire aggregates FIRMS detections from multiple satellite
// products into a deduplicated fire history for a location.
package fire

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/fire/firms"
	"github.com/safeout/safeout/internal/geo"
	"github.com/safeout/safeout/internal/snapshot"
)

const (
	// Category is this provider's response slot.
	Category = "fire_history"

	// FIRMS accepts a lookback of 1-10 days.
	minDaysBack = 1
	maxDaysBack = 10

	// Detections closer than this are the same fire seen twice.
	dedupThresholdKm = 1.0

	// maxEvents caps the events listed in a response. The count field
	// still reflects all unique detections.
	maxEvents = 50
)

// Products queried per request. VIIRS sees small fires MODIS misses;
// MODIS extends the record back further.
var defaultProducts = []string{"VIIRS_SNPP_NRT", "MODIS_NRT"}

// Event is one deduplicated detection in the response payload.
type Event struct {
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	DistanceKm        float64 `json:"distance_km"`
	BrightnessKelvin  float64 `json:"brightness_kelvin"`
	Confidence        string  `json:"confidence"`
	ConfidencePercent int     `json:"confidence_percent"`
	Date              string  `json:"date"`
	Satellite         string  `json:"satellite"`
}

// History is the fire_history payload.
type History struct {
	Source           string  `json:"source"`
	PeriodDays       int     `json:"period_days"`
	LastUpdate       string  `json:"last_update"`
	ActiveFiresCount int     `json:"active_fires_count"`
	Fires            []Event `json:"fires"`
}

// Detector is the FIRMS capability the service needs.
type Detector interface {
	ActiveFires(ctx context.Context, source string, lat, lon, radiusKm float64, daysBack int) ([]firms.Detection, error)
}

// ServiceConfig configures the fire history provider.
type ServiceConfig struct {
	Detector Detector

	// Products overrides the default FIRMS product list.
	Products []string

	// DaysBack is the lookback, clamped to FIRMS' 1-10 day range.
	// Default: 7.
	DaysBack int

	// Timeout is this provider's budget. Default: 15 seconds.
	Timeout time.Duration

	Logger zerolog.Logger
}

// Service resolves fire history queries. Implements the provider
// capability of the aggregation orchestrator.
type Service struct {
	detector Detector
	products []string
	daysBack int
	timeout  time.Duration
	logger   zerolog.Logger
	nowFn    func() time.Time
}

// NewService creates the fire history provider.
func NewService(cfg ServiceConfig) *Service {
	products := cfg.Products
	if len(products) == 0 {
		products = defaultProducts
	}
	daysBack := cfg.DaysBack
	if daysBack == 0 {
		daysBack = 7
	}
	if daysBack < minDaysBack {
		daysBack = minDaysBack
	}
	if daysBack > maxDaysBack {
		daysBack = maxDaysBack
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		detector: cfg.Detector,
		products: products,
		daysBack: daysBack,
		timeout:  timeout,
		logger:   cfg.Logger,
		nowFn:    time.Now,
	}
}

// Category implements the provider capability.
func (s *Service) Category() string { return Category }

// Timeout implements the provider capability.
func (s *Service) Timeout() time.Duration { return s.timeout }

// Resolve queries every configured product, merges and deduplicates
// detections, and renders the history payload. One product failing is
// tolerated as long as another answers.
func (s *Service) Resolve(ctx context.Context, q snapshot.Query) snapshot.Result {
	radiusKm := q.RadiusMeters / 1000

	var all []firms.Detection
	var lastErr error
	answered := 0

	for _, product := range s.products {
		detections, err := s.detector.ActiveFires(ctx, product, q.Coordinate.Lat, q.Coordinate.Lon, radiusKm, s.daysBack)
		if err != nil {
			s.logger.Warn().Err(err).Str("product", product).Msg("firms product query failed")
			lastErr = err
			continue
		}
		answered++
		all = append(all, detections...)
	}

	if answered == 0 {
		return snapshot.Failed(Category, snapshot.Classify(lastErr), fmt.Sprintf("all fire products failed: %v", lastErr))
	}

	unique := Deduplicate(all, dedupThresholdKm)

	events := make([]Event, 0, len(unique))
	for _, d := range unique {
		category, percent := CategorizeConfidence(d.Confidence)
		events = append(events, Event{
			Latitude:          d.Lat,
			Longitude:         d.Lon,
			DistanceKm:        geo.DistanceKm(q.Coordinate, geo.Coordinate{Lat: d.Lat, Lon: d.Lon}),
			BrightnessKelvin:  d.Brightness,
			Confidence:        category,
			ConfidencePercent: percent,
			Date:              d.AcqDate,
			Satellite:         d.Satellite,
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].DistanceKm < events[j].DistanceKm
	})

	total := len(events)
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}

	return snapshot.Success(Category, &History{
		Source:           "NASA FIRMS",
		PeriodDays:       s.daysBack,
		LastUpdate:       s.nowFn().UTC().Format(time.RFC3339),
		ActiveFiresCount: total,
		Fires:            events,
	})
}

// Deduplicate collapses detections closer than thresholdKm, keeping
// the brighter pixel of each pair. Two satellites routinely report the
// same fire at slightly different coordinates.
func Deduplicate(detections []firms.Detection, thresholdKm float64) []firms.Detection {
	unique := make([]firms.Detection, 0, len(detections))

	for _, d := range detections {
		duplicate := false
		for i, u := range unique {
			dist := geo.DistanceKm(
				geo.Coordinate{Lat: d.Lat, Lon: d.Lon},
				geo.Coordinate{Lat: u.Lat, Lon: u.Lon},
			)
			if dist < thresholdKm {
				duplicate = true
				if d.Brightness > u.Brightness {
					unique[i] = d
				}
				break
			}
		}
		if !duplicate {
			unique = append(unique, d)
		}
	}
	return unique
}

// CategorizeConfidence maps a raw FIRMS confidence to a category and a
// percentage. VIIRS reports letters (h/n/l), MODIS reports 0-100.
func CategorizeConfidence(raw string) (string, int) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "h":
		return "high", 85
	case "nominal", "n":
		return "medium", 65
	case "low", "l":
		return "low", 35
	}

	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		pct := int(v)
		switch {
		case v >= 80:
			return "high", pct
		case v >= 50:
			return "medium", pct
		default:
			return "low", pct
		}
	}

	return "unknown", 0
}
