package models

import (
	"github.com/safeout/safeout/internal/geo"
	"github.com/safeout/safeout/internal/snapshot"
)

// EnvironmentalDataRequest is the body of POST /api/v1/environmental-data.
// Pointer fields distinguish "absent" from a legitimate zero value
// (latitude 0, longitude 0 is a valid point in the Gulf of Guinea).
type EnvironmentalDataRequest struct {
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RadiusMeters *float64 `json:"radius_meters"`
}

// Validate reports which required fields are missing or out of bounds.
// Bounds errors are surfaced here so the client sees every problem at
// once rather than one per round trip.
func (req EnvironmentalDataRequest) Validate() []FieldError {
	var errs []FieldError
	if req.Latitude == nil {
		errs = append(errs, FieldError{Field: "latitude", Message: "required", Code: "required"})
	} else if *req.Latitude < -90 || *req.Latitude > 90 {
		errs = append(errs, FieldError{Field: "latitude", Message: "must be between -90 and 90", Code: "out_of_range"})
	}
	if req.Longitude == nil {
		errs = append(errs, FieldError{Field: "longitude", Message: "required", Code: "required"})
	} else if *req.Longitude < -180 || *req.Longitude > 180 {
		errs = append(errs, FieldError{Field: "longitude", Message: "must be between -180 and 180", Code: "out_of_range"})
	}
	if req.RadiusMeters == nil {
		errs = append(errs, FieldError{Field: "radius_meters", Message: "required", Code: "required"})
	} else if *req.RadiusMeters < snapshot.MinRadiusMeters || *req.RadiusMeters > snapshot.MaxRadiusMeters {
		errs = append(errs, FieldError{Field: "radius_meters", Message: "must be between 100 and 50000", Code: "out_of_range"})
	}
	return errs
}

// ToQuery converts a validated request to an aggregation query.
func (req EnvironmentalDataRequest) ToQuery() snapshot.Query {
	return snapshot.Query{
		Coordinate:   geo.Coordinate{Lat: *req.Latitude, Lon: *req.Longitude},
		RadiusMeters: *req.RadiusMeters,
	}
}
