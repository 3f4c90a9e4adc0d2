package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/safeout/safeout/internal/granule"
	"github.com/safeout/safeout/internal/grid"
)

// Retriever is the narrow interface to the grid-data collaborator.
// Authentication and session lifecycle are entirely its responsibility.
type Retriever interface {
	// Search lists granules covering the window, newest first allowed
	// but not required. May return an empty list.
	Search(ctx context.Context, datasetID string, w grid.Window, tw grid.TimeWindow) ([]grid.GranuleRef, error)

	// Download fetches a granule and returns a local file path.
	Download(ctx context.Context, ref grid.GranuleRef) (string, error)

	// Decode opens a downloaded file and returns the named array.
	Decode(path, variable string) (*grid.Array, error)
}

// RenderFunc turns extracted per-variable values into the category
// payload. Returning (nil, reason) marks the category empty.
type RenderFunc func(values map[string]*grid.Value) (any, string)

// GridSourceConfig configures one gridded data source adapter.
type GridSourceConfig struct {
	Category  string
	Profile   grid.Profile
	Retriever Retriever
	Cache     *granule.Cache
	Render    RenderFunc
	Logger    zerolog.Logger
}

// GridSource adapts a gridded dataset to the Provider capability:
// plan window → search granules → pick the newest covering granule →
// download → decode → extract → render, with the whole pipeline memoized
// per (dataset, window, cadence bucket).
type GridSource struct {
	category  string
	profile   grid.Profile
	retriever Retriever
	cache     *granule.Cache
	render    RenderFunc
	logger    zerolog.Logger
	nowFn     func() time.Time
}

// NewGridSource creates a grid source adapter.
func NewGridSource(cfg GridSourceConfig) *GridSource {
	return &GridSource{
		category:  cfg.Category,
		profile:   cfg.Profile,
		retriever: cfg.Retriever,
		cache:     cfg.Cache,
		render:    cfg.Render,
		logger:    cfg.Logger,
		nowFn:     time.Now,
	}
}

// Category implements Provider.
func (s *GridSource) Category() string { return s.category }

// Timeout implements Provider.
func (s *GridSource) Timeout() time.Duration {
	if s.profile.Timeout > 0 {
		return s.profile.Timeout
	}
	return 30 * time.Second
}

// Resolve implements Provider.
func (s *GridSource) Resolve(ctx context.Context, q Query) Result {
	w, tw := grid.Plan(q.Coordinate.Lat, q.Coordinate.Lon, q.RadiusMeters, s.profile, s.nowFn().UTC())
	key := granule.NewKey(s.profile.DatasetID, w, tw, s.profile.Cadence)

	out, err := s.cache.GetOrCompute(ctx, key, s.profile.Cadence, func(ctx context.Context) (*granule.Outcome, error) {
		return s.compute(ctx, q, w, tw)
	})
	if err != nil {
		return Failed(s.category, Classify(err), err.Error())
	}
	if out.Empty {
		return Empty(s.category, out.Reason)
	}
	return Success(s.category, out.Payload)
}

// compute runs the uncached pipeline for one fetch window.
func (s *GridSource) compute(ctx context.Context, q Query, w grid.Window, tw grid.TimeWindow) (*granule.Outcome, error) {
	refs, err := s.retriever.Search(ctx, s.profile.DatasetID, w, tw)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.profile.DatasetID, err)
	}
	if len(refs) == 0 {
		return &granule.Outcome{Empty: true, Reason: "no granule covers this window"}, nil
	}

	ref := newestRef(refs)

	path, err := s.retriever.Download(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref.ID, err)
	}

	values := make(map[string]*grid.Value, len(s.profile.Variables))
	for _, variable := range s.profile.Variables {
		arr, err := s.retriever.Decode(path, variable)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("dataset", s.profile.DatasetID).
				Str("variable", variable).
				Msg("granule decode failed")
			return nil, fmt.Errorf("%w: %s %s: %v", ErrDecode, s.profile.DatasetID, variable, err)
		}

		v, err := grid.Extract(arr, q.Coordinate.Lat, q.Coordinate.Lon, s.profile.Method)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrDecode, s.profile.DatasetID, variable, err)
		}
		values[variable] = v // may be nil: no data at this point
	}

	payload, reason := s.render(values)
	if payload == nil {
		if reason == "" {
			reason = "no usable data at this location"
		}
		return &granule.Outcome{Empty: true, Reason: reason}, nil
	}
	return &granule.Outcome{Payload: payload}, nil
}

// newestRef picks the most recent covering granule.
func newestRef(refs []grid.GranuleRef) grid.GranuleRef {
	newest := refs[0]
	for _, ref := range refs[1:] {
		if ref.TimeStart.After(newest.TimeStart) {
			newest = ref
		}
	}
	return newest
}
