// Package openaq talks to the OpenAQ v3 API for ground station air
// quality measurements.
package openaq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/provider/resilience"
)

// DefaultBaseURL is the production OpenAQ v3 endpoint.
const DefaultBaseURL = "https://api.openaq.org/v3"

// Location is one monitoring station near the queried point.
type Location struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	DistanceMeters float64     `json:"distance"`
	Coordinates    Coordinates `json:"coordinates"`
	Sensors        []Sensor    `json:"sensors"`
}

// Coordinates of a station.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Sensor is one instrument at a station.
type Sensor struct {
	ID        int64     `json:"id"`
	Parameter Parameter `json:"parameter"`
}

// Parameter identifies what a sensor measures.
type Parameter struct {
	Name  string `json:"name"`
	Units string `json:"units"`
}

// Latest is one sensor's most recent reading.
type Latest struct {
	SensorID int64   `json:"sensorsId"`
	Value    float64 `json:"value"`
	Datetime struct {
		UTC time.Time `json:"utc"`
	} `json:"datetime"`
}

// Client queries OpenAQ v3. All requests carry the API key header;
// OpenAQ heavily rate limits anonymous callers.
type Client struct {
	baseURL string
	apiKey  string
	http    *resilience.Client
	logger  zerolog.Logger
}

// Config for the OpenAQ client.
type Config struct {
	BaseURL string
	APIKey  string
	HTTP    *resilience.Client
	Logger  zerolog.Logger
}

// New creates an OpenAQ client.
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

// NearbyStations lists stations within radiusMeters of the point.
// OpenAQ takes coordinates as lon,lat, the reverse of the usual order.
func (c *Client) NearbyStations(ctx context.Context, lat, lon float64, radiusMeters, limit int) ([]Location, error) {
	params := url.Values{}
	params.Set("coordinates", fmt.Sprintf("%f,%f", lon, lat))
	params.Set("radius", strconv.Itoa(radiusMeters))
	params.Set("limit", strconv.Itoa(limit))

	var envelope struct {
		Results []Location `json:"results"`
	}
	if err := c.get(ctx, "/locations?"+params.Encode(), &envelope); err != nil {
		return nil, fmt.Errorf("openaq locations: %w", err)
	}

	c.logger.Debug().
		Int("stations", len(envelope.Results)).
		Msg("openaq station search completed")

	return envelope.Results, nil
}

// LatestMeasurements fetches the most recent reading of every sensor at
// a station.
func (c *Client) LatestMeasurements(ctx context.Context, locationID int64) ([]Latest, error) {
	var envelope struct {
		Results []Latest `json:"results"`
	}
	path := fmt.Sprintf("/locations/%d/latest", locationID)
	if err := c.get(ctx, path, &envelope); err != nil {
		return nil, fmt.Errorf("openaq latest for location %d: %w", locationID, err)
	}
	return envelope.Results, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
