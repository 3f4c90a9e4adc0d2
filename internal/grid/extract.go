package grid

import (
	"errors"
	"math"
	"sort"
	"time"
)

// Extraction errors. NoData is not an error: Extract returns (nil, nil)
// when the coordinate is outside the array's covered extent or only fill
// values are available.
var (
	ErrNonMonotonicAxis = errors.New("coordinate axis is not monotonic")
	ErrEmptyArray       = errors.New("array has no values")
)

// Method selects the interpolation policy for an extraction.
type Method string

const (
	// MethodNearest returns the value at the closest grid node.
	MethodNearest Method = "nearest"
	// MethodBilinear averages the four surrounding nodes, falling back
	// to nearest when any of them is the fill sentinel.
	MethodBilinear Method = "bilinear"
)

// Quality tags how representative an extracted value is.
type Quality string

const (
	// QualityExact means the coordinate fell within half a cell of the node.
	QualityExact Quality = "exact"
	// QualityEdgeNearest means the coordinate was clamped to the array edge.
	QualityEdgeNearest Quality = "edge-nearest"
	// QualityNearestFallback means bilinear degraded to nearest because a
	// surrounding node held the fill sentinel.
	QualityNearestFallback Quality = "nearest-fallback"
)

// Value is a scalar extracted from a grid array.
type Value struct {
	Value     float64
	Unit      string
	Timestamp time.Time
	Method    Method
	Quality   Quality
}

// axis is an ascending view over a monotonic coordinate axis.
type axis struct {
	vals []float64
	asc  bool
}

func newAxis(vals []float64) (axis, error) {
	if len(vals) == 0 {
		return axis{}, ErrEmptyArray
	}
	a := axis{vals: vals, asc: true}
	if len(vals) == 1 {
		return a, nil
	}
	a.asc = vals[1] > vals[0]
	for i := 1; i < len(vals); i++ {
		if a.asc && vals[i] <= vals[i-1] {
			return axis{}, ErrNonMonotonicAxis
		}
		if !a.asc && vals[i] >= vals[i-1] {
			return axis{}, ErrNonMonotonicAxis
		}
	}
	return a, nil
}

func (a axis) len() int { return len(a.vals) }

// at returns the i-th value in ascending order.
func (a axis) at(i int) float64 {
	if a.asc {
		return a.vals[i]
	}
	return a.vals[len(a.vals)-1-i]
}

// orig maps an ascending position back to the original axis index.
func (a axis) orig(i int) int {
	if a.asc {
		return i
	}
	return len(a.vals) - 1 - i
}

// spacingAt returns the local cell size around ascending position i.
func (a axis) spacingAt(i int) float64 {
	n := a.len()
	if n < 2 {
		return 0
	}
	switch {
	case i <= 0:
		return a.at(1) - a.at(0)
	case i >= n-1:
		return a.at(n-1) - a.at(n-2)
	default:
		return (a.at(i+1) - a.at(i-1)) / 2
	}
}

// location describes where a target falls on an axis.
type location struct {
	lo, hi   int     // bracketing ascending positions (lo==hi at edges)
	frac     float64 // fractional position between lo and hi
	nearest  int     // ascending position of the closest node
	clamped  bool    // target was outside the node span
	inExtent bool    // target within the covered extent (nodes ± half cell)
}

// locate finds the target on the axis. Targets beyond the outermost node
// by more than half a cell are outside the covered extent.
func (a axis) locate(t float64) location {
	n := a.len()
	first, last := a.at(0), a.at(n-1)

	if t <= first {
		half := a.spacingAt(0) / 2
		return location{lo: 0, hi: 0, nearest: 0, clamped: t < first, inExtent: first-t <= half}
	}
	if t >= last {
		half := a.spacingAt(n-1) / 2
		return location{lo: n - 1, hi: n - 1, nearest: n - 1, clamped: t > last, inExtent: t-last <= half}
	}

	hi := sort.Search(n, func(i int) bool { return a.at(i) >= t })
	lo := hi - 1
	frac := (t - a.at(lo)) / (a.at(hi) - a.at(lo))
	nearest := lo
	if frac > 0.5 {
		nearest = hi
	}
	return location{lo: lo, hi: hi, frac: frac, nearest: nearest, inExtent: true}
}

func isFill(v, fill float64) bool {
	return v == fill || math.IsNaN(v) || math.IsInf(v, 0)
}

// Extract returns a single representative value for the coordinate, or
// (nil, nil) when the array holds no usable data there. Fill sentinels are
// never returned as values: bilinear falls back to nearest when any of the
// four surrounding nodes is fill, and nearest returns NoData when the
// closest node itself is fill.
func Extract(arr *Array, lat, lon float64, method Method) (*Value, error) {
	if len(arr.Values) == 0 {
		return nil, ErrEmptyArray
	}

	latAxis, err := newAxis(arr.Lats)
	if err != nil {
		return nil, err
	}
	lonAxis, err := newAxis(arr.Lons)
	if err != nil {
		return nil, err
	}

	lon = NormalizeLon(lon, arr.LonDomain)

	latLoc := latAxis.locate(lat)
	lonLoc := lonAxis.locate(lon)
	if !latLoc.inExtent || !lonLoc.inExtent {
		return nil, nil
	}

	if method == MethodBilinear {
		if v := bilinear(arr, latAxis, lonAxis, latLoc, lonLoc); v != nil {
			return v, nil
		}
		// A fill corner or an edge location: degrade to nearest.
		v, err := nearest(arr, latAxis, lonAxis, latLoc, lonLoc)
		if v != nil && err == nil {
			v.Method = MethodBilinear
			v.Quality = QualityNearestFallback
		}
		return v, err
	}

	return nearest(arr, latAxis, lonAxis, latLoc, lonLoc)
}

// nearest extracts the value at the closest node pair.
func nearest(arr *Array, latAxis, lonAxis axis, latLoc, lonLoc location) (*Value, error) {
	v := arr.Values[latAxis.orig(latLoc.nearest)][lonAxis.orig(lonLoc.nearest)]
	if isFill(v, arr.Fill) {
		return nil, nil
	}

	quality := QualityExact
	if latLoc.clamped || lonLoc.clamped {
		quality = QualityEdgeNearest
	}

	return &Value{
		Value:     v,
		Unit:      arr.Unit,
		Timestamp: arr.Timestamp,
		Method:    MethodNearest,
		Quality:   quality,
	}, nil
}

// bilinear computes the standard weighted average of the four surrounding
// nodes. Returns nil when the location is not fully bracketed or any
// corner is fill; the caller falls back to nearest.
func bilinear(arr *Array, latAxis, lonAxis axis, latLoc, lonLoc location) *Value {
	if latLoc.lo == latLoc.hi || lonLoc.lo == lonLoc.hi {
		return nil
	}

	v00 := arr.Values[latAxis.orig(latLoc.lo)][lonAxis.orig(lonLoc.lo)]
	v01 := arr.Values[latAxis.orig(latLoc.lo)][lonAxis.orig(lonLoc.hi)]
	v10 := arr.Values[latAxis.orig(latLoc.hi)][lonAxis.orig(lonLoc.lo)]
	v11 := arr.Values[latAxis.orig(latLoc.hi)][lonAxis.orig(lonLoc.hi)]

	for _, v := range []float64{v00, v01, v10, v11} {
		if isFill(v, arr.Fill) {
			return nil
		}
	}

	fy, fx := latLoc.frac, lonLoc.frac
	val := v00*(1-fy)*(1-fx) + v01*(1-fy)*fx + v10*fy*(1-fx) + v11*fy*fx

	return &Value{
		Value:     val,
		Unit:      arr.Unit,
		Timestamp: arr.Timestamp,
		Method:    MethodBilinear,
		Quality:   QualityExact,
	}
}
