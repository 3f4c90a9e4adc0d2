// Package weather serves near-surface conditions from the MERRA-2
// reanalysis (M2I1NXASM collection).
package weather

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/geo"
	"github.com/safeout/safeout/internal/granule"
	"github.com/safeout/safeout/internal/grid"
	"github.com/safeout/safeout/internal/snapshot"
)

// Category is this provider's response slot.
const Category = "weather"

// MERRA-2 variable names in M2I1NXASM granules.
const (
	varTemperature      = "T2M"
	varSpecificHumidity = "QV2M"
	varWindU            = "U10M"
	varWindV            = "V10M"
	varPressure         = "PS"
)

// Wind is the wind block of the payload.
type Wind struct {
	SpeedMS           float64 `json:"speed_m_s"`
	SpeedKMH          float64 `json:"speed_km_h"`
	DirectionDegrees  int     `json:"direction_degrees"`
	DirectionCardinal string  `json:"direction_cardinal"`
}

// Conditions is the weather payload.
type Conditions struct {
	Source                string   `json:"source"`
	LastUpdate            string   `json:"last_update"`
	TemperatureCelsius    *float64 `json:"temperature_celsius"`
	TemperatureFahrenheit *float64 `json:"temperature_fahrenheit"`
	HumidityPercent       *float64 `json:"humidity_percent"`
	Wind                  *Wind    `json:"wind"`
	PressureHPa           *float64 `json:"pressure_hpa"`
}

// Profile describes the MERRA-2 grid. The instantaneous single-level
// collection trails real time by weeks, hence the long lookback.
func Profile() grid.Profile {
	return grid.Profile{
		DatasetID:         "M2I1NXASM",
		Variables:         []string{varTemperature, varSpecificHumidity, varWindU, varWindV, varPressure},
		SpacingLat:        0.5,
		SpacingLon:        0.625,
		Cadence:           time.Hour,
		ProcessingLatency: 30 * 24 * time.Hour,
		LonDomain:         grid.LonSigned180,
		Method:            grid.MethodBilinear,
		Timeout:           30 * time.Second,
	}
}

// NewProvider wires the MERRA-2 grid source.
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

// Render builds the payload from extracted values. Temperature is the
// anchor: without it the category is empty. The remaining fields
// degrade to null individually.
func Render(values map[string]*grid.Value) (any, string) {
	temp := values[varTemperature]
	if temp == nil {
		return nil, "no temperature data at this location"
	}

	tempC := geo.KelvinToCelsius(temp.Value)
	tempF := geo.CelsiusToFahrenheit(tempC)

	conditions := &Conditions{
		Source:                "MERRA-2",
		LastUpdate:            temp.Timestamp.UTC().Format(time.RFC3339),
		TemperatureCelsius:    round1(tempC),
		TemperatureFahrenheit: round1(tempF),
	}

	pressure := values[varPressure]
	if pressure != nil {
		conditions.PressureHPa = round1(geo.PaToHPa(pressure.Value))
	}

	if humidity := values[varSpecificHumidity]; humidity != nil && pressure != nil {
		rh := geo.RelativeHumidity(humidity.Value, temp.Value, pressure.Value)
		conditions.HumidityPercent = round1(rh)
	}

	u, v := values[varWindU], values[varWindV]
	if u != nil && v != nil {
		speed, direction := geo.WindFromComponents(u.Value, v.Value)
		conditions.Wind = &Wind{
			SpeedMS:           roundTo(speed, 1),
			SpeedKMH:          roundTo(geo.MSToKMH(speed), 1),
			DirectionDegrees:  int(math.Round(direction)) % 360,
			DirectionCardinal: geo.Cardinal(direction),
		}
	}

	return conditions, ""
}

func round1(v float64) *float64 {
	r := roundTo(v, 1)
	return &r
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
