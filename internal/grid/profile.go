// Package grid implements the raster side of the snapshot pipeline:
// dataset profiles, fetch window planning, and point value extraction
// from decoded lat/lon arrays.
package grid

import (
	"math"
	"time"
)

// metersPerDegree is the approximate length of one degree of latitude.
const metersPerDegree = 111320

// cosFloor keeps the longitude degree conversion finite near the poles.
const cosFloor = 0.01

// Profile describes a gridded dataset's native layout and publication
// behavior. Profiles are configuration data; the core never infers them.
type Profile struct {
	// DatasetID is the provider-side dataset identifier (e.g. "GPM_3IMERGHHE").
	DatasetID string

	// Variables are the named arrays to extract from each granule.
	Variables []string

	// SpacingLat and SpacingLon are the native grid spacings in degrees.
	SpacingLat float64
	SpacingLon float64

	// Cadence is the nominal publication interval of new granules.
	Cadence time.Duration

	// ProcessingLatency is the typical delay between observation and
	// granule availability.
	ProcessingLatency time.Duration

	// LonDomain declares the longitude convention of the dataset's axes.
	LonDomain LonDomain

	// Method is the interpolation policy for this dataset.
	Method Method

	// Timeout bounds a full search+download+decode+extract for one query.
	Timeout time.Duration
}

// Window is an axis-aligned bounding box in degrees.
type Window struct {
	West  float64
	South float64
	East  float64
	North float64
}

// TimeWindow is a half-open [Start, End) search interval.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// GranuleRef identifies one downloadable granule of a gridded dataset.
type GranuleRef struct {
	ID          string
	DatasetID   string
	TimeStart   time.Time
	TimeEnd     time.Time
	DownloadURL string
}

// Plan converts a point query into a fetch window guaranteed to cover at
// least one native grid cell, and a time window guaranteed to cover at
// least one publication interval. The caller validates the radius bounds;
// Plan is total over valid inputs.
//
// The half-width floor is the load-bearing rule here: a 5km radius is
// smaller than one MERRA-2 cell, and an unfloored box produces spurious
// "no granule covers this point" misses.
func Plan(lat, lon, radiusMeters float64, p Profile, now time.Time) (Window, TimeWindow) {
	halfLat := radiusMeters / metersPerDegree
	cosLat := math.Abs(math.Cos(lat * math.Pi / 180))
	if cosLat < cosFloor {
		cosLat = cosFloor
	}
	halfLon := radiusMeters / (metersPerDegree * cosLat)

	if halfLat < p.SpacingLat {
		halfLat = p.SpacingLat
	}
	if halfLon < p.SpacingLon {
		halfLon = p.SpacingLon
	}

	w := Window{
		West:  math.Max(lon-halfLon, -180),
		South: math.Max(lat-halfLat, -90),
		East:  math.Min(lon+halfLon, 180),
		North: math.Min(lat+halfLat, 90),
	}

	lookback := p.ProcessingLatency
	if doubled := 2 * p.Cadence; doubled > lookback {
		lookback = doubled
	}
	tw := TimeWindow{Start: now.Add(-lookback), End: now}

	return w, tw
}

// HalfWidthLat returns the window's half-width along the latitude axis.
func (w Window) HalfWidthLat() float64 { return (w.North - w.South) / 2 }

// HalfWidthLon returns the window's half-width along the longitude axis.
func (w Window) HalfWidthLon() float64 { return (w.East - w.West) / 2 }
