// Package earthdata talks to NASA's Common Metadata Repository and the
// GES DISC data archive: granule search, authenticated download, and
// NetCDF decode of downloaded files.
package earthdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/grid"
	"github.com/safeout/safeout/internal/provider/resilience"
)

const (
	// DefaultCMRBaseURL is the production CMR search endpoint.
	DefaultCMRBaseURL = "https://cmr.earthdata.nasa.gov/search"

	// maxGranulesPerSearch bounds a search page. One granule is enough
	// to answer a query; a few extra tolerate boundary effects.
	maxGranulesPerSearch = 10
)

// ClientConfig configures the Earthdata client.
type ClientConfig struct {
	// BaseURL of the CMR search API. Default: DefaultCMRBaseURL.
	BaseURL string

	// Token is an Earthdata Login bearer token. Required for downloads
	// from GES DISC; CMR search works without it.
	Token string

	// CacheDir is where downloaded granules land.
	CacheDir string

	// HTTP is the resilient client for all outbound calls.
	HTTP *resilience.Client

	// Decoder opens downloaded granule files. Default: NetCDFDecoder.
	Decoder Decoder

	Logger zerolog.Logger
}

// Decoder turns a downloaded granule file into a named 2D array.
type Decoder interface {
	Decode(path, variable string) (*grid.Array, error)
}

// Client implements granule search, download, and decode against NASA
// Earthdata. It satisfies the retrieval capability grid sources need.
type Client struct {
	baseURL  string
	token    string
	cacheDir string
	http     *resilience.Client
	decoder  Decoder
	logger   zerolog.Logger
}

// NewClient creates an Earthdata client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultCMRBaseURL
	}
	decoder := cfg.Decoder
	if decoder == nil {
		decoder = &NetCDFDecoder{}
	}
	return &Client{
		baseURL:  baseURL,
		token:    cfg.Token,
		cacheDir: cfg.CacheDir,
		http:     cfg.HTTP,
		decoder:  decoder,
		logger:   cfg.Logger,
	}
}

// cmrFeed mirrors the granule search response envelope.
type cmrFeed struct {
	Feed struct {
		Entry []cmrEntry `json:"entry"`
	} `json:"feed"`
}

type cmrEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
	Links     []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// dataLinkRel marks a direct data download link in CMR metadata.
const dataLinkRel = "http://esipfed.org/ns/fedsearch/1.1/data#"

// Search lists granules of the dataset covering the spatial window and
// time range, newest first.
func (c *Client) Search(ctx context.Context, datasetID string, w grid.Window, tw grid.TimeWindow) ([]grid.GranuleRef, error) {
	params := url.Values{}
	params.Set("short_name", datasetID)
	params.Set("bounding_box", fmt.Sprintf("%f,%f,%f,%f", w.West, w.South, w.East, w.North))
	params.Set("temporal", fmt.Sprintf("%s,%s",
		tw.Start.UTC().Format(time.RFC3339),
		tw.End.UTC().Format(time.RFC3339)))
	params.Set("sort_key", "-start_date")
	params.Set("page_size", fmt.Sprintf("%d", maxGranulesPerSearch))

	searchURL := c.baseURL + "/granules.json?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("granule search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("granule search: unexpected status %d", resp.StatusCode)
	}

	var feed cmrFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("granule search: decode response: %w", err)
	}

	refs := make([]grid.GranuleRef, 0, len(feed.Feed.Entry))
	for _, entry := range feed.Feed.Entry {
		ref, ok := c.toRef(datasetID, entry)
		if !ok {
			continue
		}
		refs = append(refs, ref)
	}

	c.logger.Debug().
		Str("dataset", datasetID).
		Int("granules", len(refs)).
		Msg("granule search completed")

	return refs, nil
}

func (c *Client) toRef(datasetID string, entry cmrEntry) (grid.GranuleRef, bool) {
	var downloadURL string
	for _, link := range entry.Links {
		if link.Rel == dataLinkRel {
			downloadURL = link.Href
			break
		}
	}
	if downloadURL == "" {
		c.logger.Warn().Str("granule", entry.ID).Msg("granule has no data link, skipping")
		return grid.GranuleRef{}, false
	}

	start, err := time.Parse(time.RFC3339, entry.TimeStart)
	if err != nil {
		c.logger.Warn().Str("granule", entry.ID).Str("time_start", entry.TimeStart).Msg("unparseable granule time, skipping")
		return grid.GranuleRef{}, false
	}
	end, err := time.Parse(time.RFC3339, entry.TimeEnd)
	if err != nil {
		end = start
	}

	return grid.GranuleRef{
		ID:          entry.ID,
		DatasetID:   datasetID,
		TimeStart:   start,
		TimeEnd:     end,
		DownloadURL: downloadURL,
	}, true
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
