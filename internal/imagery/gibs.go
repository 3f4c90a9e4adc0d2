// Package imagery builds NASA GIBS WMS imagery URLs for a location.
// No upstream call is made at query time; the URLs point clients at
// GIBS directly.
package imagery

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/grid"
	"github.com/safeout/safeout/internal/snapshot"
)

const (
	// Category is this provider's response slot.
	Category = "satellite_imagery"

	// DefaultWMSEndpoint serves the geographic (EPSG:4326) projection.
	DefaultWMSEndpoint = "https://gibs.earthdata.nasa.gov/wms/epsg4326/best/wms.cgi"

	imageWidth  = 512
	imageHeight = 512
	imageFormat = "image/png"
)

// layer is one GIBS layer exposed in the payload.
type layer struct {
	key         string
	name        string
	description string
}

// Environmental layers rendered for every query.
var environmentalLayers = []layer{
	{"true_color", "MODIS_Terra_CorrectedReflectance_TrueColor", "True color satellite imagery"},
	{"aerosol", "MODIS_Combined_Value_Added_AOD", "Aerosol optical depth"},
	{"precipitation", "GPM_3IMERGHH_Precipitation_Rate", "Precipitation rate"},
	{"fires", "MODIS_Terra_Thermal_Anomalies_All", "Thermal anomalies and active fires"},
	{"land_surface_temp", "MODIS_Terra_Land_Surface_Temp_Day", "Daytime land surface temperature"},
}

// Image is one layer entry in the payload.
type Image struct {
	Layer       string `json:"layer"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Imagery is the satellite_imagery payload.
type Imagery struct {
	Source  string           `json:"source"`
	Date    string           `json:"date"`
	BBox    [4]float64       `json:"bbox"`
	Imagery map[string]Image `json:"imagery"`
}

// ServiceConfig configures the imagery provider.
type ServiceConfig struct {
	// Endpoint overrides DefaultWMSEndpoint.
	Endpoint string

	Logger zerolog.Logger
}

// Service renders GIBS WMS URLs. URL construction cannot fail for a
// valid query, so this provider never reports a failure.
type Service struct {
	endpoint string
	logger   zerolog.Logger
	nowFn    func() time.Time
}

// NewService creates the imagery provider.
func NewService(cfg ServiceConfig) *Service {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultWMSEndpoint
	}
	return &Service{
		endpoint: endpoint,
		logger:   cfg.Logger,
		nowFn:    time.Now,
	}
}

// Category implements the provider capability.
func (s *Service) Category() string { return Category }

// Timeout implements the provider capability. Pure computation, so the
// budget is nominal.
func (s *Service) Timeout() time.Duration { return time.Second }

// Resolve builds the imagery payload. The imagery date defaults to
// yesterday: GIBS publishes most layers with about a day of latency.
func (s *Service) Resolve(_ context.Context, q snapshot.Query) snapshot.Result {
	// The imagery window mirrors the precipitation footprint so the
	// rendered tiles cover at least the queried radius.
	w, _ := grid.Plan(q.Coordinate.Lat, q.Coordinate.Lon, q.RadiusMeters, grid.Profile{
		SpacingLat: 0.05,
		SpacingLon: 0.05,
		Cadence:    24 * time.Hour,
	}, s.nowFn().UTC())

	date := s.nowFn().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	images := make(map[string]Image, len(environmentalLayers))
	for _, l := range environmentalLayers {
		images[l.key] = Image{
			Layer:       l.name,
			URL:         s.mapURL(l.name, w, date),
			Description: l.description,
		}
	}

	return snapshot.Success(Category, &Imagery{
		Source:  "NASA GIBS",
		Date:    date,
		BBox:    [4]float64{w.West, w.South, w.East, w.North},
		Imagery: images,
	})
}

// mapURL builds a WMS 1.1.1 GetMap request for one layer.
func (s *Service) mapURL(layerName string, w grid.Window, date string) string {
	params := url.Values{}
	params.Set("SERVICE", "WMS")
	params.Set("VERSION", "1.1.1")
	params.Set("REQUEST", "GetMap")
	params.Set("LAYERS", layerName)
	params.Set("STYLES", "")
	params.Set("SRS", "EPSG:4326")
	params.Set("BBOX", fmt.Sprintf("%f,%f,%f,%f", w.West, w.South, w.East, w.North))
	params.Set("WIDTH", fmt.Sprintf("%d", imageWidth))
	params.Set("HEIGHT", fmt.Sprintf("%d", imageHeight))
	params.Set("FORMAT", imageFormat)
	params.Set("TIME", date)
	params.Set("TRANSPARENT", "TRUE")
	return s.endpoint + "?" + params.Encode()
}
