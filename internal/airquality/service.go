// Package airquality aggregates OpenAQ ground station measurements
// into an air quality report for a location.
package airquality

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/airquality/openaq"
	"github.com/safeout/safeout/internal/snapshot"
)

const (
	// Category is this provider's response slot.
	Category = "air_quality"

	// maxStations consulted per query. The nearest stations dominate
	// the averages anyway.
	maxStations = 10
)

// Measurement is one parameter reading in the payload.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	AQI   string  `json:"aqi"`
}

// Station is one ground station in the payload.
type Station struct {
	Location     string                 `json:"location"`
	DistanceKm   float64                `json:"distance_km"`
	Measurements map[string]Measurement `json:"measurements"`
	LastUpdate   string                 `json:"last_update"`
}

// Report is the air_quality payload.
type Report struct {
	Source        string             `json:"source"`
	LastUpdate    string             `json:"last_update"`
	StationsCount int                `json:"stations_count"`
	Stations      []Station          `json:"stations"`
	Average       map[string]float64 `json:"average"`
}

// Sampler is the OpenAQ capability the service needs.
type Sampler interface {
	NearbyStations(ctx context.Context, lat, lon float64, radiusMeters, limit int) ([]openaq.Location, error)
	LatestMeasurements(ctx context.Context, locationID int64) ([]openaq.Latest, error)
}

// ServiceConfig configures the air quality provider.
type ServiceConfig struct {
	Sampler Sampler

	// Timeout is this provider's budget. Default: 15 seconds.
	Timeout time.Duration

	Logger zerolog.Logger
}

// Service resolves air quality queries against OpenAQ.
type Service struct {
	sampler Sampler
	timeout time.Duration
	logger  zerolog.Logger
	nowFn   func() time.Time
}

// NewService creates the air quality provider.
func NewService(cfg ServiceConfig) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		sampler: cfg.Sampler,
		timeout: timeout,
		logger:  cfg.Logger,
		nowFn:   time.Now,
	}
}

// Category implements the provider capability.
func (s *Service) Category() string { return Category }

// Timeout implements the provider capability.
func (s *Service) Timeout() time.Duration { return s.timeout }

// Resolve finds nearby stations, joins each station's latest readings
// to its sensor parameters, and renders the aggregated report. No
// stations in range is an empty result, not a failure.
func (s *Service) Resolve(ctx context.Context, q snapshot.Query) snapshot.Result {
	locations, err := s.sampler.NearbyStations(ctx, q.Coordinate.Lat, q.Coordinate.Lon, int(q.RadiusMeters), maxStations)
	if err != nil {
		return snapshot.Failed(Category, snapshot.Classify(err), fmt.Sprintf("station search failed: %v", err))
	}
	if len(locations) == 0 {
		return snapshot.Empty(Category, "no monitoring stations within the search radius")
	}

	stations := make([]Station, 0, len(locations))
	sums := make(map[string]float64)
	counts := make(map[string]int)

	for _, loc := range locations {
		station, ok := s.sampleStation(ctx, loc)
		if !ok {
			continue
		}
		stations = append(stations, station)
		for param, m := range station.Measurements {
			sums[param] += m.Value
			counts[param]++
		}
	}

	if len(stations) == 0 {
		return snapshot.Empty(Category, "stations in range reported no current measurements")
	}

	sort.Slice(stations, func(i, j int) bool {
		return stations[i].DistanceKm < stations[j].DistanceKm
	})

	average := make(map[string]float64, len(sums))
	for param, sum := range sums {
		average[param] = sum / float64(counts[param])
	}

	return snapshot.Success(Category, &Report{
		Source:        "OpenAQ",
		LastUpdate:    s.nowFn().UTC().Format(time.RFC3339),
		StationsCount: len(stations),
		Stations:      stations,
		Average:       average,
	})
}

// sampleStation joins one station's latest readings to its sensors.
// A station whose latest fetch fails is skipped, not fatal.
func (s *Service) sampleStation(ctx context.Context, loc openaq.Location) (Station, bool) {
	latest, err := s.sampler.LatestMeasurements(ctx, loc.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("location", loc.ID).Msg("station latest fetch failed, skipping")
		return Station{}, false
	}
	if len(latest) == 0 {
		return Station{}, false
	}

	sensorParam := make(map[int64]openaq.Parameter, len(loc.Sensors))
	for _, sensor := range loc.Sensors {
		sensorParam[sensor.ID] = sensor.Parameter
	}

	measurements := make(map[string]Measurement)
	var newest time.Time
	for _, reading := range latest {
		param, ok := sensorParam[reading.SensorID]
		if !ok || param.Name == "" {
			continue
		}
		measurements[param.Name] = Measurement{
			Value: reading.Value,
			Unit:  param.Units,
			AQI:   CategorizeAQI(param.Name, reading.Value),
		}
		if reading.Datetime.UTC.After(newest) {
			newest = reading.Datetime.UTC
		}
	}
	if len(measurements) == 0 {
		return Station{}, false
	}

	return Station{
		Location:     loc.Name,
		DistanceKm:   loc.DistanceMeters / 1000,
		Measurements: measurements,
		LastUpdate:   newest.Format(time.RFC3339),
	}, true
}

// aqiBreakpoints hold the EPA category upper bounds per parameter, in
// the parameter's reporting unit.
var aqiBreakpoints = map[string][]struct {
	upper    float64
	category string
}{
	"pm25": {
		{12, "good"}, {35.4, "moderate"}, {55.4, "unhealthy_sensitive"},
		{150.4, "unhealthy"}, {250.4, "very_unhealthy"},
	},
	"pm10": {
		{54, "good"}, {154, "moderate"}, {254, "unhealthy_sensitive"},
		{354, "unhealthy"}, {424, "very_unhealthy"},
	},
	"no2": {
		{53, "good"}, {100, "moderate"}, {360, "unhealthy_sensitive"},
		{649, "unhealthy"}, {1249, "very_unhealthy"},
	},
	"o3": {
		{54, "good"}, {70, "moderate"}, {85, "unhealthy_sensitive"},
		{105, "unhealthy"}, {200, "very_unhealthy"},
	},
}

// CategorizeAQI maps a reading to its EPA air quality category.
// Parameters without defined breakpoints report "unknown".
func CategorizeAQI(parameter string, value float64) string {
	breakpoints, ok := aqiBreakpoints[parameter]
	if !ok {
		return "unknown"
	}
	for _, bp := range breakpoints {
		if value <= bp.upper {
			return bp.category
		}
	}
	return "hazardous"
}
