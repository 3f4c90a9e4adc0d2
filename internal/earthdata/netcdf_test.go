package earthdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeout/safeout/internal/grid"
)

func TestToGridValues_DirectShape(t *testing.T) {
	raw := [][]float64{{1, 2, 3}, {4, 5, 6}}

	got, err := toGridValues(raw, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestToGridValues_TransposedShape(t *testing.T) {
	// IMERG lays values out [lon][lat].
	raw := [][]float64{{1, 4}, {2, 5}, {3, 6}}

	got, err := toGridValues(raw, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, got)
}

func TestToGridValues_Float32AndTimeDimension(t *testing.T) {
	raw := [][][]float32{{{1.5, 2.5}, {3.5, 4.5}}}

	got, err := toGridValues(raw, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1.5, 2.5}, {3.5, 4.5}}, got)
}

func TestToGridValues_ShapeMismatch(t *testing.T) {
	raw := [][]float64{{1, 2}, {3, 4}}

	_, err := toGridValues(raw, 3, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match axes")
}

func TestToGridValues_UnsupportedLayout(t *testing.T) {
	_, err := toGridValues([]string{"nope"}, 1, 1)
	require.Error(t, err)
}

func TestLonDomain_Inference(t *testing.T) {
	assert.Equal(t, grid.LonSigned180, lonDomain([]float64{-180, -90, 0, 90, 179.5}))
	assert.Equal(t, grid.LonPositive360, lonDomain([]float64{0, 90, 180.5, 270}))
}

func TestLocalName_SanitizesURL(t *testing.T) {
	ref := grid.GranuleRef{
		ID:          "G1",
		DownloadURL: "https://data.example.org/dir/file.nc4?version=2&x=1",
	}
	name := localName(ref)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "?")
	assert.Contains(t, name, "file.nc4")
}
