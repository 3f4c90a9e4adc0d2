package grid

import "time"

// LonDomain declares the longitude convention of a dataset's axes.
type LonDomain int

const (
	// LonSigned180 means longitudes run -180..180 (MERRA-2, IMERG).
	LonSigned180 LonDomain = iota
	// LonPositive360 means longitudes run 0..360.
	LonPositive360
)

// Array is a decoded 2-D raster with its coordinate axes. Decoding is a
// collaborator concern; by the time an Array reaches this package it is
// plain numbers. The receiving call owns the Array and never mutates it.
type Array struct {
	// Name is the variable name the array was decoded from.
	Name string

	// Unit is the declared unit of the values (never inferred).
	Unit string

	// Fill is the declared no-data sentinel (never inferred).
	Fill float64

	// Lats and Lons are the coordinate axes. Each must be strictly
	// monotonic (ascending or descending).
	Lats []float64
	Lons []float64

	// Values is indexed [latIdx][lonIdx].
	Values [][]float64

	// Timestamp is the observation time of the granule.
	Timestamp time.Time

	// LonDomain is the longitude convention of Lons.
	LonDomain LonDomain
}

// NormalizeLon maps a longitude into the given domain. Normalizing an
// already-normalized longitude returns the same value.
func NormalizeLon(lon float64, domain LonDomain) float64 {
	switch domain {
	case LonPositive360:
		for lon < 0 {
			lon += 360
		}
		for lon >= 360 {
			lon -= 360
		}
	default:
		for lon < -180 {
			lon += 360
		}
		for lon >= 180 {
			lon -= 360
		}
	}
	return lon
}
