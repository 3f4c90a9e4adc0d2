package snapshot_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeout/safeout/internal/granule"
	"github.com/safeout/safeout/internal/grid"
	"github.com/safeout/safeout/internal/snapshot"
)

// fakeRetriever scripts the three collaborator calls and counts them.
type fakeRetriever struct {
	refs      []grid.GranuleRef
	searchErr error

	downloadErr error

	array     *grid.Array
	decodeErr error

	searches  atomic.Int32
	downloads atomic.Int32
}

func (f *fakeRetriever) Search(_ context.Context, _ string, _ grid.Window, _ grid.TimeWindow) ([]grid.GranuleRef, error) {
	f.searches.Add(1)
	return f.refs, f.searchErr
}

func (f *fakeRetriever) Download(_ context.Context, _ grid.GranuleRef) (string, error) {
	f.downloads.Add(1)
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	return "/tmp/granule.nc4", nil
}

func (f *fakeRetriever) Decode(_, _ string) (*grid.Array, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return f.array, nil
}

func testProfile() grid.Profile {
	return grid.Profile{
		DatasetID:         "TEST_DS",
		Variables:         []string{"t2m"},
		SpacingLat:        0.5,
		SpacingLon:        0.625,
		Cadence:           time.Hour,
		ProcessingLatency: 3 * time.Hour,
		Method:            grid.MethodBilinear,
	}
}

func coveringArray() *grid.Array {
	lats := []float64{40, 40.5, 41, 41.5}
	lons := []float64{-74.5, -74, -73.5, -73}
	values := make([][]float64, len(lats))
	for i, lat := range lats {
		values[i] = make([]float64, len(lons))
		for j, lon := range lons {
			values[i][j] = lat + lon
		}
	}
	return &grid.Array{
		Name:      "t2m",
		Unit:      "K",
		Fill:      -9999,
		Lats:      lats,
		Lons:      lons,
		Values:    values,
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		LonDomain: grid.LonSigned180,
	}
}

func someRef() grid.GranuleRef {
	return grid.GranuleRef{
		ID:        "G1",
		DatasetID: "TEST_DS",
		TimeStart: time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC),
		TimeEnd:   time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC),
	}
}

func newGridSource(t *testing.T, r snapshot.Retriever, render snapshot.RenderFunc) *snapshot.GridSource {
	t.Helper()
	cache := granule.New(granule.Config{Logger: zerolog.Nop()})
	return snapshot.NewGridSource(snapshot.GridSourceConfig{
		Category:  "weather",
		Profile:   testProfile(),
		Retriever: r,
		Cache:     cache,
		Render:    render,
		Logger:    zerolog.Nop(),
	})
}

func renderRaw(values map[string]*grid.Value) (any, string) {
	v := values["t2m"]
	if v == nil {
		return nil, ""
	}
	return v.Value, ""
}

func TestGridSource_SuccessfulPipeline(t *testing.T) {
	r := &fakeRetriever{refs: []grid.GranuleRef{someRef()}, array: coveringArray()}
	s := newGridSource(t, r, renderRaw)

	res := s.Resolve(context.Background(), validQuery())

	require.Equal(t, snapshot.StatusSuccess, res.Status)
	got, ok := res.Payload.(float64)
	require.True(t, ok)
	// Linear field lat+lon is reproduced exactly by bilinear weights.
	assert.InDelta(t, 40.7128-74.0060, got, 1e-9)
}

func TestGridSource_NoGranulesIsEmptyNotFailed(t *testing.T) {
	r := &fakeRetriever{refs: nil}
	s := newGridSource(t, r, renderRaw)

	res := s.Resolve(context.Background(), validQuery())

	assert.Equal(t, snapshot.StatusEmpty, res.Status)
	assert.Equal(t, "no granule covers this window", res.Reason)
	assert.Equal(t, int32(0), r.downloads.Load(), "nothing should be downloaded")
}

func TestGridSource_SearchErrorIsTransient(t *testing.T) {
	r := &fakeRetriever{searchErr: errors.New("connection refused")}
	s := newGridSource(t, r, renderRaw)

	res := s.Resolve(context.Background(), validQuery())

	assert.Equal(t, snapshot.StatusFailed, res.Status)
	assert.Equal(t, snapshot.KindTransient, res.Kind)
}

func TestGridSource_AuthErrorClassified(t *testing.T) {
	r := &fakeRetriever{refs: []grid.GranuleRef{someRef()}, downloadErr: snapshot.ErrAuth}
	s := newGridSource(t, r, renderRaw)

	res := s.Resolve(context.Background(), validQuery())

	assert.Equal(t, snapshot.StatusFailed, res.Status)
	assert.Equal(t, snapshot.KindAuth, res.Kind)
}

func TestGridSource_DecodeErrorClassified(t *testing.T) {
	r := &fakeRetriever{refs: []grid.GranuleRef{someRef()}, decodeErr: errors.New("not an HDF5 file")}
	s := newGridSource(t, r, renderRaw)

	res := s.Resolve(context.Background(), validQuery())

	assert.Equal(t, snapshot.StatusFailed, res.Status)
	assert.Equal(t, snapshot.KindDecode, res.Kind)
}

func TestGridSource_FillAtPointIsEmpty(t *testing.T) {
	arr := coveringArray()
	for i := range arr.Values {
		for j := range arr.Values[i] {
			arr.Values[i][j] = arr.Fill
		}
	}
	r := &fakeRetriever{refs: []grid.GranuleRef{someRef()}, array: arr}
	s := newGridSource(t, r, renderRaw)

	res := s.Resolve(context.Background(), validQuery())

	assert.Equal(t, snapshot.StatusEmpty, res.Status)
	assert.Equal(t, "no usable data at this location", res.Reason)
}

func TestGridSource_NewestGranuleWins(t *testing.T) {
	old := someRef()
	old.ID = "G_OLD"
	old.TimeStart = old.TimeStart.Add(-2 * time.Hour)
	newer := someRef()

	var downloaded string
	r := &fakeRetriever{refs: []grid.GranuleRef{old, newer}, array: coveringArray()}
	s := snapshot.NewGridSource(snapshot.GridSourceConfig{
		Category:  "weather",
		Profile:   testProfile(),
		Retriever: retrieverFunc{r, func(ref grid.GranuleRef) { downloaded = ref.ID }},
		Cache:     granule.New(granule.Config{Logger: zerolog.Nop()}),
		Render:    renderRaw,
		Logger:    zerolog.Nop(),
	})

	res := s.Resolve(context.Background(), validQuery())

	require.Equal(t, snapshot.StatusSuccess, res.Status)
	assert.Equal(t, "G1", downloaded)
}

// retrieverFunc observes which granule gets downloaded.
type retrieverFunc struct {
	inner  *fakeRetriever
	onDown func(grid.GranuleRef)
}

func (r retrieverFunc) Search(ctx context.Context, id string, w grid.Window, tw grid.TimeWindow) ([]grid.GranuleRef, error) {
	return r.inner.Search(ctx, id, w, tw)
}

func (r retrieverFunc) Download(ctx context.Context, ref grid.GranuleRef) (string, error) {
	r.onDown(ref)
	return r.inner.Download(ctx, ref)
}

func (r retrieverFunc) Decode(path, variable string) (*grid.Array, error) {
	return r.inner.Decode(path, variable)
}

func TestGridSource_NearbyQueriesShareOnePipeline(t *testing.T) {
	r := &fakeRetriever{refs: []grid.GranuleRef{someRef()}, array: coveringArray()}
	s := newGridSource(t, r, renderRaw)

	first := s.Resolve(context.Background(), validQuery())
	require.Equal(t, snapshot.StatusSuccess, first.Status)

	// A second query a few hundred meters away rounds to the same fetch
	// window and must be served from cache.
	q := validQuery()
	q.Coordinate.Lat += 0.002
	second := s.Resolve(context.Background(), q)
	require.Equal(t, snapshot.StatusSuccess, second.Status)

	assert.Equal(t, int32(1), r.searches.Load())
	assert.Equal(t, int32(1), r.downloads.Load())
}
