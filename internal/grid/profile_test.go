package grid_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeout/safeout/internal/grid"
)

func TestPlan_FloorsWindowAtNativeSpacing(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	spacings := []float64{0.05, 0.1, 0.25, 0.5, 1.0}
	radii := []float64{0, 100, 1000, 5000, 25000, 50000}

	for _, spacing := range spacings {
		for _, radius := range radii {
			p := grid.Profile{
				DatasetID:  "test",
				SpacingLat: spacing,
				SpacingLon: spacing,
				Cadence:    time.Hour,
			}
			w, _ := grid.Plan(40.0, -74.0, radius, p, now)

			assert.GreaterOrEqual(t, w.HalfWidthLat(), spacing,
				"lat half-width below native spacing for spacing=%v radius=%v", spacing, radius)
			assert.GreaterOrEqual(t, w.HalfWidthLon(), spacing,
				"lon half-width below native spacing for spacing=%v radius=%v", spacing, radius)
		}
	}
}

func TestPlan_RadiusDominatesWhenLarge(t *testing.T) {
	now := time.Now()
	p := grid.Profile{SpacingLat: 0.01, SpacingLon: 0.01, Cadence: time.Hour}

	// 50km radius is ~0.45° of latitude, far above the 0.01° floor.
	w, _ := grid.Plan(0, 0, 50000, p, now)
	assert.InDelta(t, 50000.0/111320, w.HalfWidthLat(), 1e-9)

	// Longitude half-width grows with latitude.
	wHigh, _ := grid.Plan(60, 0, 50000, p, now)
	assert.Greater(t, wHigh.HalfWidthLon(), w.HalfWidthLon())
}

func TestPlan_NearPoleStaysFinite(t *testing.T) {
	now := time.Now()
	p := grid.Profile{SpacingLat: 0.1, SpacingLon: 0.1, Cadence: time.Hour}

	w, _ := grid.Plan(89.99, 0, 50000, p, now)
	assert.LessOrEqual(t, w.East, 180.0)
	assert.GreaterOrEqual(t, w.West, -180.0)
	assert.LessOrEqual(t, w.North, 90.0)
}

func TestPlan_TimeWindowCoversCadence(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		cadence      time.Duration
		latency      time.Duration
		wantLookback time.Duration
	}{
		{"hourly, latency below floor", time.Hour, 30 * time.Minute, 2 * time.Hour},
		{"half-hourly", 30 * time.Minute, 0, time.Hour},
		{"daily with long latency", 24 * time.Hour, 72 * time.Hour, 72 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := grid.Profile{SpacingLat: 0.1, SpacingLon: 0.1, Cadence: tt.cadence, ProcessingLatency: tt.latency}
			_, tw := grid.Plan(40, -74, 5000, p, now)
			assert.Equal(t, now, tw.End)
			assert.Equal(t, tt.wantLookback, tw.End.Sub(tw.Start))
		})
	}
}

func TestPlan_NewYorkScenario(t *testing.T) {
	// 5000m at 40.7°N is ~0.045° of latitude, below the 0.1° floor.
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p := grid.Profile{
		DatasetID:  "M2I1NXASM",
		SpacingLat: 0.1,
		SpacingLon: 0.1,
		Cadence:    time.Hour,
	}

	w, tw := grid.Plan(40.7128, -74.0060, 5000, p, now)

	require.GreaterOrEqual(t, w.HalfWidthLat(), 0.1)
	require.GreaterOrEqual(t, w.HalfWidthLon(), 0.1)
	assert.GreaterOrEqual(t, tw.End.Sub(tw.Start), 2*time.Hour)
}
