package handler

import (
	"net/http"

	"github.com/safeout/safeout/internal/api/response"
	"github.com/safeout/safeout/internal/precipitation"
	"github.com/safeout/safeout/internal/snapshot"
	"github.com/safeout/safeout/internal/uv"
	"github.com/safeout/safeout/internal/weather"
)

// SourceInfo describes one data source for the info endpoint.
type SourceInfo struct {
	Category string `json:"category"`
	Dataset  string `json:"dataset"`
	Cadence  string `json:"cadence,omitempty"`
	Kind     string `json:"kind"`
}

// Info is the body of GET /api/v1/info.
type Info struct {
	Service         string       `json:"service"`
	Version         string       `json:"version"`
	Sources         []SourceInfo `json:"sources"`
	MinRadiusMeters int          `json:"min_radius_meters"`
	MaxRadiusMeters int          `json:"max_radius_meters"`
}

// InfoHandler serves service metadata.
type InfoHandler struct {
	version string
}

// NewInfoHandler creates a new InfoHandler.
func NewInfoHandler(version string) *InfoHandler {
	return &InfoHandler{version: version}
}

// GetInfo handles GET /api/v1/info - sources, cadences, and limits.
func (h *InfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	weatherProfile := weather.Profile()
	precipProfile := precipitation.Profile()
	uvProfile := uv.Profile()

	info := Info{
		Service: "safeout-api",
		Version: h.version,
		Sources: []SourceInfo{
			{Category: "weather", Dataset: weatherProfile.DatasetID, Cadence: weatherProfile.Cadence.String(), Kind: "grid"},
			{Category: "precipitation", Dataset: precipProfile.DatasetID, Cadence: precipProfile.Cadence.String(), Kind: "grid"},
			{Category: "uv_index", Dataset: uvProfile.DatasetID, Cadence: uvProfile.Cadence.String(), Kind: "grid"},
			{Category: "air_quality", Dataset: "OpenAQ v3", Kind: "point"},
			{Category: "fire_history", Dataset: "FIRMS VIIRS/MODIS", Kind: "point"},
			{Category: "satellite_imagery", Dataset: "GIBS WMS", Kind: "imagery"},
		},
		MinRadiusMeters: snapshot.MinRadiusMeters,
		MaxRadiusMeters: snapshot.MaxRadiusMeters,
	}
	response.JSON(w, r, http.StatusOK, info)
}
