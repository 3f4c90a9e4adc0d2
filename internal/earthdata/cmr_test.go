package earthdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeout/safeout/internal/grid"
	"github.com/safeout/safeout/internal/provider/resilience"
)

const cmrFeedFixture = `{
  "feed": {
    "entry": [
      {
        "id": "G300-GES_DISC",
        "title": "3B-HHR-E.MS.MRG.3IMERG.20260830",
        "time_start": "2026-08-30T11:30:00.000Z",
        "time_end": "2026-08-30T12:00:00.000Z",
        "links": [
          {"rel": "http://esipfed.org/ns/fedsearch/1.1/browse#", "href": "https://example.org/browse.png"},
          {"rel": "http://esipfed.org/ns/fedsearch/1.1/data#", "href": "https://data.example.org/granule-b.nc4"}
        ]
      },
      {
        "id": "G200-GES_DISC",
        "title": "no data link",
        "time_start": "2026-08-30T11:00:00.000Z",
        "time_end": "2026-08-30T11:30:00.000Z",
        "links": [
          {"rel": "http://esipfed.org/ns/fedsearch/1.1/browse#", "href": "https://example.org/browse2.png"}
        ]
      },
      {
        "id": "G100-GES_DISC",
        "title": "3B-HHR-E.MS.MRG.3IMERG.20260830-older",
        "time_start": "2026-08-30T10:30:00.000Z",
        "time_end": "2026-08-30T11:00:00.000Z",
        "links": [
          {"rel": "http://esipfed.org/ns/fedsearch/1.1/data#", "href": "https://data.example.org/granule-a.nc4"}
        ]
      }
    ]
  }
}`

func testWindow() (grid.Window, grid.TimeWindow) {
	w := grid.Window{West: -74.5, South: 40.25, East: -73.5, North: 41.25}
	tw := grid.TimeWindow{
		Start: time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	return w, tw
}

func newTestClient(t *testing.T, baseURL, token string) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		BaseURL:  baseURL,
		Token:    token,
		CacheDir: t.TempDir(),
		HTTP:     resilience.NewClient(resilience.ClientConfig{Name: "earthdata-test"}),
		Logger:   zerolog.Nop(),
	})
}

func TestSearch_ParsesFeedAndSkipsLinklessGranules(t *testing.T) {
	var query atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cmrFeedFixture))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	win, tw := testWindow()

	refs, err := c.Search(context.Background(), "GPM_3IMERGHHE", win, tw)
	require.NoError(t, err)

	require.Len(t, refs, 2, "granule without a data link must be skipped")
	assert.Equal(t, "G300-GES_DISC", refs[0].ID)
	assert.Equal(t, "https://data.example.org/granule-b.nc4", refs[0].DownloadURL)
	assert.Equal(t, time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC), refs[0].TimeStart)
	assert.Equal(t, "GPM_3IMERGHHE", refs[0].DatasetID)

	q := query.Load().(url.Values)
	assert.Equal(t, "GPM_3IMERGHHE", q.Get("short_name"))
	assert.Equal(t, "-start_date", q.Get("sort_key"))
	assert.Contains(t, q.Get("bounding_box"), "-74.5")
	assert.Contains(t, q.Get("temporal"), "2026-08-30T06:00:00Z")
}

func TestSearch_EmptyFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"feed":{"entry":[]}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	win, tw := testWindow()

	refs, err := c.Search(context.Background(), "M2I1NXASM", win, tw)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSearch_SendsBearerToken(t *testing.T) {
	var auth atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"feed":{"entry":[]}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "EDL-token-abc")
	win, tw := testWindow()

	_, err := c.Search(context.Background(), "M2I1NXASM", win, tw)
	require.NoError(t, err)
	assert.Equal(t, "Bearer EDL-token-abc", auth.Load())
}

func TestDownload_WritesFileAndReusesCache(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("granule-bytes"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	ref := grid.GranuleRef{
		ID:          "G1",
		DatasetID:   "M2I1NXASM",
		TimeStart:   time.Now().UTC(),
		DownloadURL: server.URL + "/MERRA2_400.inst1_2d_asm_Nx.20260830.nc4",
	}

	path, err := c.Download(context.Background(), ref)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "granule-bytes", string(data))
	assert.Equal(t, "MERRA2_400.inst1_2d_asm_Nx.20260830.nc4", filepath.Base(path))

	again, err := c.Download(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), hits.Load(), "cached granule must not be re-fetched")
}

func TestDownload_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	ref := grid.GranuleRef{ID: "G1", DownloadURL: server.URL + "/missing.nc4"}

	_, err := c.Download(context.Background(), ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
