// Package granule memoizes the expensive grid pipeline
// (search + download + decode + extract) per dataset and fetch window.
package granule

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/safeout/safeout/internal/grid"
)

// keyGridDegrees is the coarse rounding applied to window corners so that
// nearby query points map to the same cache entry.
const keyGridDegrees = 0.25

// Key identifies one memoized extraction. Windows are rounded to a coarse
// grid and time windows to the dataset's cadence bucket to maximize reuse.
type Key struct {
	DatasetID string
	West      float64
	South     float64
	East      float64
	North     float64
	Bucket    int64
}

// NewKey derives a cache key from a planned fetch window.
func NewKey(datasetID string, w grid.Window, tw grid.TimeWindow, cadence time.Duration) Key {
	if cadence <= 0 {
		cadence = time.Hour
	}
	return Key{
		DatasetID: datasetID,
		West:      roundTo(w.West, keyGridDegrees),
		South:     roundTo(w.South, keyGridDegrees),
		East:      roundTo(w.East, keyGridDegrees),
		North:     roundTo(w.North, keyGridDegrees),
		Bucket:    tw.End.Truncate(cadence).Unix(),
	}
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%.2f,%.2f,%.2f,%.2f|%d", k.DatasetID, k.West, k.South, k.East, k.North, k.Bucket)
}

// Outcome is the memoized result of one grid pipeline run. Empty outcomes
// (no coverage, no usable data) are cached for the full TTL because they
// are expected and stable within a cadence bucket.
type Outcome struct {
	// Payload is the rendered category payload; nil when Empty.
	Payload any

	// Empty reports that the pipeline completed but found no usable data.
	Empty bool

	// Reason explains an empty outcome.
	Reason string
}

// ComputeFunc runs the grid pipeline on a cache miss.
type ComputeFunc func(ctx context.Context) (*Outcome, error)

// Config holds cache tuning knobs.
type Config struct {
	// MaxEntries bounds the cache size (default: 256).
	MaxEntries int

	// NegativeTTL is how long a failed computation is remembered, so a
	// burst of requests does not hammer a known-down provider
	// (default: 30 seconds).
	NegativeTTL time.Duration

	// Logger for cache activity.
	Logger zerolog.Logger
}

// Cache is a TTL+LRU cache with single-flight computation per key. It is
// the only state shared across concurrent requests.
type Cache struct {
	maxEntries  int
	negativeTTL time.Duration
	logger      zerolog.Logger
	group       singleflight.Group

	mu      sync.Mutex
	entries map[Key]*entry
	order   *list.List // front = most recently used
}

type entry struct {
	key       Key
	outcome   *Outcome
	err       error
	expiresAt time.Time
	elem      *list.Element
}

// New creates a cache.
func New(cfg Config) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 256
	}
	negativeTTL := cfg.NegativeTTL
	if negativeTTL <= 0 {
		negativeTTL = 30 * time.Second
	}
	return &Cache{
		maxEntries:  maxEntries,
		negativeTTL: negativeTTL,
		logger:      cfg.Logger,
		entries:     make(map[Key]*entry),
		order:       list.New(),
	}
}

// GetOrCompute returns the cached outcome for key, computing it at most
// once concurrently: a second caller for an in-flight key waits on the
// first. Successful and empty outcomes live for ttl; failures live for
// the shorter negative TTL so recovery is detected promptly.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, ttl time.Duration, fn ComputeFunc) (*Outcome, error) {
	if out, err, ok := c.lookup(key); ok {
		return out, err
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		// Re-check under the flight: a racing caller may have stored
		// the entry between our miss and acquiring the flight.
		if out, cachedErr, ok := c.lookup(key); ok {
			if cachedErr != nil {
				return nil, cachedErr
			}
			return out, nil
		}

		out, computeErr := fn(ctx)
		if callerAborted(ctx, computeErr) {
			// The caller walked away (disconnect, ceiling expiry). That
			// says nothing about the provider, so the failure must not
			// poison the key for healthy callers.
			return nil, computeErr
		}
		c.store(key, out, computeErr, ttl)
		if computeErr != nil {
			return nil, computeErr
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

// callerAborted reports whether a compute failure is attributable to the
// caller's context rather than the provider.
func callerAborted(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops a single key.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

func (c *Cache) lookup(key Key) (*Outcome, error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		return nil, nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.outcome, e.err, true
}

func (c *Cache) store(key Key, out *Outcome, err error, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err != nil {
		ttl = c.negativeTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}

	e := &entry{key: key, outcome: out, err: err, expiresAt: time.Now().Add(ttl)}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e

	if len(c.entries) > c.maxEntries {
		c.evict()
	}
}

// evict drops expired entries first, then true LRU, until under budget.
// Caller holds c.mu.
func (c *Cache) evict() {
	now := time.Now()
	for e := c.order.Back(); e != nil && len(c.entries) > c.maxEntries; {
		prev := e.Prev()
		ent := e.Value.(*entry)
		if now.After(ent.expiresAt) {
			c.remove(ent)
		}
		e = prev
	}
	for len(c.entries) > c.maxEntries {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.remove(back.Value.(*entry))
	}
	c.logger.Debug().Int("entries", len(c.entries)).Msg("granule cache evicted to budget")
}

// remove deletes an entry. Caller holds c.mu.
func (c *Cache) remove(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}
