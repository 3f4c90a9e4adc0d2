package earthdata

import (
	"fmt"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/safeout/safeout/internal/grid"
	"github.com/safeout/safeout/internal/snapshot"
)

// Default fill for granules that omit _FillValue. GES DISC products use
// this sentinel consistently.
const defaultFillValue = -9999.0

// NetCDFDecoder reads NetCDF-4/HDF5 granule files as produced by GES
// DISC (MERRA-2, IMERG) and extracts one variable as a lat/lon array.
type NetCDFDecoder struct{}

// candidate axis variable names, in lookup order.
var (
	latNames = []string{"lat", "latitude", "Latitude"}
	lonNames = []string{"lon", "longitude", "Longitude"}
)

// Decode implements Decoder.
func (d *NetCDFDecoder) Decode(path, variable string) (*grid.Array, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", snapshot.ErrDecode, path, err)
	}
	defer nc.Close()

	lats, err := axisValues(nc, latNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", snapshot.ErrDecode, path, err)
	}
	lons, err := axisValues(nc, lonNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", snapshot.ErrDecode, path, err)
	}

	vr, err := nc.GetVariable(variable)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %v", snapshot.ErrDecode, variable, err)
	}

	values, err := toGridValues(vr.Values, len(lats), len(lons))
	if err != nil {
		return nil, fmt.Errorf("%w: variable %s: %v", snapshot.ErrDecode, variable, err)
	}

	arr := &grid.Array{
		Name:      variable,
		Unit:      attrString(vr.Attributes, "units"),
		Fill:      attrFloat(vr.Attributes, "_FillValue", defaultFillValue),
		Lats:      lats,
		Lons:      lons,
		Values:    values,
		Timestamp: time.Now().UTC(),
		LonDomain: lonDomain(lons),
	}
	return arr, nil
}

// axisValues reads the first present axis variable as float64s.
func axisValues(nc api.Group, names []string) ([]float64, error) {
	for _, name := range names {
		vr, err := nc.GetVariable(name)
		if err != nil {
			continue
		}
		vals, ok := toFloat64Slice(vr.Values)
		if !ok {
			return nil, fmt.Errorf("axis %s has unsupported type %T", name, vr.Values)
		}
		return vals, nil
	}
	return nil, fmt.Errorf("no axis variable found (tried %v)", names)
}

// toGridValues reshapes a decoded variable into [lat][lon]. Accepts 2D
// data directly and 3D data with a leading singleton time dimension,
// which is how half-hourly IMERG granules are laid out. IMERG stores
// [time][lon][lat]; a shape match against the axis lengths decides
// whether a transpose is needed.
func toGridValues(raw any, nLat, nLon int) ([][]float64, error) {
	rows, ok := to2D(raw)
	if !ok {
		return nil, fmt.Errorf("unsupported value layout %T", raw)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty variable")
	}

	switch {
	case len(rows) == nLat && len(rows[0]) == nLon:
		return rows, nil
	case len(rows) == nLon && len(rows[0]) == nLat:
		return transpose(rows), nil
	default:
		return nil, fmt.Errorf("shape %dx%d does not match axes %dx%d", len(rows), len(rows[0]), nLat, nLon)
	}
}

// to2D flattens the supported decode layouts to [][]float64.
func to2D(raw any) ([][]float64, bool) {
	switch v := raw.(type) {
	case [][]float64:
		return v, true
	case [][]float32:
		rows := make([][]float64, len(v))
		for i, row := range v {
			rows[i] = make([]float64, len(row))
			for j, x := range row {
				rows[i][j] = float64(x)
			}
		}
		return rows, true
	case [][][]float64:
		if len(v) == 0 {
			return nil, false
		}
		return v[0], true
	case [][][]float32:
		if len(v) == 0 {
			return nil, false
		}
		return to2D(v[0])
	default:
		return nil, false
	}
}

func toFloat64Slice(raw any) ([]float64, bool) {
	switch v := raw.(type) {
	case []float64:
		return v, true
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, true
	default:
		return nil, false
	}
}

func transpose(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows[0]))
	for i := range out {
		out[i] = make([]float64, len(rows))
		for j := range rows {
			out[i][j] = rows[j][i]
		}
	}
	return out
}

// lonDomain infers the longitude convention from the axis values.
func lonDomain(lons []float64) grid.LonDomain {
	for _, lon := range lons {
		if lon > 180 {
			return grid.LonPositive360
		}
	}
	return grid.LonSigned180
}

func attrString(attrs api.AttributeMap, name string) string {
	if attrs == nil {
		return ""
	}
	raw, has := attrs.Get(name)
	if !has {
		return ""
	}
	s, _ := raw.(string)
	return s
}

func attrFloat(attrs api.AttributeMap, name string, fallback float64) float64 {
	if attrs == nil {
		return fallback
	}
	raw, has := attrs.Get(name)
	if !has {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case []float64:
		if len(v) > 0 {
			return v[0]
		}
	case []float32:
		if len(v) > 0 {
			return float64(v[0])
		}
	}
	return fallback
}
