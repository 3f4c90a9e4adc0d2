package granule_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeout/safeout/internal/granule"
	"github.com/safeout/safeout/internal/grid"
)

func testKey(id string) granule.Key {
	return granule.NewKey(id,
		grid.Window{West: -74.5, South: 40.2, East: -73.5, North: 41.2},
		grid.TimeWindow{Start: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), End: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
		time.Hour,
	)
}

func TestNewKey_RoundsForReuse(t *testing.T) {
	tw := grid.TimeWindow{End: time.Date(2026, 8, 30, 12, 17, 0, 0, time.UTC)}

	// Two nearby windows land on the same coarse key.
	a := granule.NewKey("ds", grid.Window{West: -74.51, South: 40.21, East: -73.49, North: 41.19}, tw, time.Hour)
	b := granule.NewKey("ds", grid.Window{West: -74.55, South: 40.24, East: -73.45, North: 41.21}, tw, time.Hour)
	assert.Equal(t, a, b)

	// Same window, next cadence bucket: different key.
	later := grid.TimeWindow{End: tw.End.Add(time.Hour)}
	c := granule.NewKey("ds", grid.Window{West: -74.51, South: 40.21, East: -73.49, North: 41.19}, later, time.Hour)
	assert.NotEqual(t, a, c)

	// Different dataset: different key.
	d := granule.NewKey("other", grid.Window{West: -74.51, South: 40.21, East: -73.49, North: 41.19}, tw, time.Hour)
	assert.NotEqual(t, a, d)
}

func TestCache_SingleFlight(t *testing.T) {
	cache := granule.New(granule.Config{Logger: zerolog.Nop()})
	key := testKey("ds")

	var computeCount atomic.Int32
	compute := func(ctx context.Context) (*granule.Outcome, error) {
		computeCount.Add(1)
		time.Sleep(50 * time.Millisecond) // hold the flight open
		return &granule.Outcome{Payload: "value"}, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*granule.Outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := cache.GetOrCompute(context.Background(), key, time.Minute, compute)
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), computeCount.Load(), "compute ran more than once for one key")
	for _, out := range results {
		assert.Equal(t, "value", out.Payload)
	}
}

func TestCache_HitSkipsCompute(t *testing.T) {
	cache := granule.New(granule.Config{Logger: zerolog.Nop()})
	key := testKey("ds")

	var computeCount atomic.Int32
	compute := func(ctx context.Context) (*granule.Outcome, error) {
		computeCount.Add(1)
		return &granule.Outcome{Payload: 42}, nil
	}

	for i := 0; i < 3; i++ {
		out, err := cache.GetOrCompute(context.Background(), key, time.Minute, compute)
		require.NoError(t, err)
		assert.Equal(t, 42, out.Payload)
	}
	assert.Equal(t, int32(1), computeCount.Load())
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := granule.New(granule.Config{Logger: zerolog.Nop()})
	key := testKey("ds")

	var computeCount atomic.Int32
	compute := func(ctx context.Context) (*granule.Outcome, error) {
		computeCount.Add(1)
		return &granule.Outcome{Payload: "v"}, nil
	}

	_, err := cache.GetOrCompute(context.Background(), key, 20*time.Millisecond, compute)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = cache.GetOrCompute(context.Background(), key, 20*time.Millisecond, compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), computeCount.Load())
}

func TestCache_FailureCachedBriefly(t *testing.T) {
	cache := granule.New(granule.Config{
		NegativeTTL: 30 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})
	key := testKey("ds")
	boom := errors.New("provider down")

	var computeCount atomic.Int32
	compute := func(ctx context.Context) (*granule.Outcome, error) {
		computeCount.Add(1)
		return nil, boom
	}

	// First call fails and is remembered.
	_, err := cache.GetOrCompute(context.Background(), key, time.Minute, compute)
	require.ErrorIs(t, err, boom)

	// Burst within the negative TTL does not recompute.
	_, err = cache.GetOrCompute(context.Background(), key, time.Minute, compute)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), computeCount.Load())

	// After the negative TTL the provider is retried.
	time.Sleep(50 * time.Millisecond)
	_, err = cache.GetOrCompute(context.Background(), key, time.Minute, compute)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), computeCount.Load())
}

func TestCache_EmptyOutcomeCachedFullTTL(t *testing.T) {
	cache := granule.New(granule.Config{NegativeTTL: time.Millisecond, Logger: zerolog.Nop()})
	key := testKey("ds")

	var computeCount atomic.Int32
	compute := func(ctx context.Context) (*granule.Outcome, error) {
		computeCount.Add(1)
		return &granule.Outcome{Empty: true, Reason: "no coverage"}, nil
	}

	out, err := cache.GetOrCompute(context.Background(), key, time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, out.Empty)

	time.Sleep(10 * time.Millisecond)

	out, err = cache.GetOrCompute(context.Background(), key, time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, out.Empty)
	assert.Equal(t, int32(1), computeCount.Load(), "empty outcome should outlive the negative TTL")
}

func TestCache_EvictsToBudget(t *testing.T) {
	cache := granule.New(granule.Config{MaxEntries: 4, Logger: zerolog.Nop()})

	for i := 0; i < 10; i++ {
		key := testKey(fmt.Sprintf("ds-%d", i))
		_, err := cache.GetOrCompute(context.Background(), key, time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
			return &granule.Outcome{Payload: i}, nil
		})
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, cache.Len(), 4)
}

func TestCache_EvictsExpiredBeforeLRU(t *testing.T) {
	cache := granule.New(granule.Config{MaxEntries: 2, Logger: zerolog.Nop()})

	keep := testKey("keep")
	shortLived := testKey("short")

	_, err := cache.GetOrCompute(context.Background(), shortLived, 10*time.Millisecond, func(ctx context.Context) (*granule.Outcome, error) {
		return &granule.Outcome{Payload: "short"}, nil
	})
	require.NoError(t, err)

	_, err = cache.GetOrCompute(context.Background(), keep, time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
		return &granule.Outcome{Payload: "keep"}, nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// Touch "keep" so it is most recent, then overflow the budget.
	var recomputed atomic.Int32
	_, err = cache.GetOrCompute(context.Background(), keep, time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
		recomputed.Add(1)
		return &granule.Outcome{Payload: "keep"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), recomputed.Load())

	_, err = cache.GetOrCompute(context.Background(), testKey("new"), time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
		return &granule.Outcome{Payload: "new"}, nil
	})
	require.NoError(t, err)

	// The expired entry was evicted; "keep" survived.
	_, err = cache.GetOrCompute(context.Background(), keep, time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
		recomputed.Add(1)
		return &granule.Outcome{Payload: "keep"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), recomputed.Load())
}

func TestCache_CallerCancellationNotCached(t *testing.T) {
	cache := granule.New(granule.Config{Logger: zerolog.Nop()})
	key := testKey("ds")

	// First caller abandons the request mid-compute.
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.GetOrCompute(canceled, key, time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	// A healthy caller for the same key must get a fresh computation,
	// not the abandoned caller's error.
	var computeCount atomic.Int32
	out, err := cache.GetOrCompute(context.Background(), key, time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
		computeCount.Add(1)
		return &granule.Outcome{Payload: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", out.Payload)
	assert.Equal(t, int32(1), computeCount.Load())
}

func TestCache_CallerDeadlineNotCached(t *testing.T) {
	cache := granule.New(granule.Config{Logger: zerolog.Nop()})
	key := testKey("ds")

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := cache.GetOrCompute(expired, key, time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
		return nil, fmt.Errorf("download aborted: %w", ctx.Err())
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	out, err := cache.GetOrCompute(context.Background(), key, time.Minute, func(ctx context.Context) (*granule.Outcome, error) {
		return &granule.Outcome{Payload: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", out.Payload)
}
