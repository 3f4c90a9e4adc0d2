// Package firms queries the NASA FIRMS area API for active fire
// detections.
package firms

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/provider/resilience"
)

// DefaultBaseURL is the production FIRMS API endpoint.
const DefaultBaseURL = "https://firms.modaps.eosdis.nasa.gov/api"

// Detection is one fire pixel from a FIRMS CSV row.
type Detection struct {
	Lat        float64
	Lon        float64
	Brightness float64 // kelvin
	Confidence string  // raw value: "h"/"n"/"l" for VIIRS, 0-100 for MODIS
	FRP        float64 // fire radiative power, MW
	AcqDate    string  // YYYY-MM-DD
	AcqTime    string  // HHMM
	Satellite  string
	Source     string // which FIRMS product reported it
}

// Client fetches detections from one FIRMS deployment.
type Client struct {
	baseURL string
	apiKey  string
	http    *resilience.Client
	logger  zerolog.Logger
}

// Config for the FIRMS client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is the FIRMS map key. Required.
	APIKey string

	HTTP   *resilience.Client
	Logger zerolog.Logger
}

// New creates a FIRMS client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    cfg.HTTP,
		logger:  cfg.Logger,
	}
}

// ActiveFires lists detections of one product near a point. radiusKm
// and daysBack are assumed pre-validated by the caller.
func (c *Client) ActiveFires(ctx context.Context, source string, lat, lon, radiusKm float64, daysBack int) ([]Detection, error) {
	url := fmt.Sprintf("%s/area/csv/%s/%s/%f,%f/%g/%d",
		c.baseURL, c.apiKey, source, lat, lon, radiusKm, daysBack)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build firms request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firms %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firms %s: unexpected status %d", source, resp.StatusCode)
	}

	detections, err := parseCSV(resp.Body, source)
	if err != nil {
		return nil, fmt.Errorf("firms %s: %w", source, err)
	}

	c.logger.Debug().
		Str("source", source).
		Int("detections", len(detections)).
		Msg("firms area query completed")

	return detections, nil
}

// parseCSV reads a FIRMS CSV body. Column names differ per product:
// VIIRS reports bright_ti4, MODIS reports brightness. Rows that fail
// numeric parsing are skipped rather than failing the whole batch.
func parseCSV(r io.Reader, source string) ([]Detection, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}

	brightnessCol, ok := col["bright_ti4"]
	if !ok {
		brightnessCol, ok = col["brightness"]
	}
	latCol, latOK := col["latitude"]
	lonCol, lonOK := col["longitude"]
	if !ok || !latOK || !lonOK {
		return nil, fmt.Errorf("parse csv: missing required columns in header %v", records[0])
	}

	detections := make([]Detection, 0, len(records)-1)
	for _, row := range records[1:] {
		lat, err1 := field(row, latCol)
		lon, err2 := field(row, lonCol)
		brightness, err3 := field(row, brightnessCol)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}

		d := Detection{
			Lat:        lat,
			Lon:        lon,
			Brightness: brightness,
			Source:     source,
		}
		if i, ok := col["confidence"]; ok && i < len(row) {
			d.Confidence = strings.TrimSpace(row[i])
		}
		if i, ok := col["frp"]; ok && i < len(row) {
			d.FRP, _ = strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		}
		if i, ok := col["acq_date"]; ok && i < len(row) {
			d.AcqDate = strings.TrimSpace(row[i])
		}
		if i, ok := col["acq_time"]; ok && i < len(row) {
			d.AcqTime = strings.TrimSpace(row[i])
		}
		if i, ok := col["satellite"]; ok && i < len(row) {
			d.Satellite = strings.TrimSpace(row[i])
		}
		detections = append(detections, d)
	}
	return detections, nil
}

func field(row []string, i int) (float64, error) {
	if i >= len(row) {
		return 0, fmt.Errorf("short row")
	}
	return strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
}
