package viewshed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightassure/pkg/config"
	"flightassure/pkg/geo"
	"flightassure/pkg/model"
	"flightassure/pkg/terrain"
)

var flatTerrain = terrain.SourceFunc(func(lon, lat float64) float64 { return 0 })

func testViewshedConfig() config.ViewshedConfig {
	return config.ViewshedConfig{AngleStepDeg: 5, RadialStepM: 50, MaxRangeM: 1000}
}

var vantage = model.Coordinate3D{Lon: 11.5, Lat: 48.1, Alt: 30}

func TestCoverage_OpenTerrain(t *testing.T) {
	v := New(flatTerrain, testViewshedConfig())

	poly, err := v.Coverage(context.Background(), vantage, nil)
	require.NoError(t, err)
	require.Len(t, poly, 1)

	ring := poly[0]
	assert.Len(t, ring, 360/5+1)
	assert.Equal(t, ring[0], ring[len(ring)-1], "ring must be closed")

	// Every boundary vertex sits at full range.
	origin := geo.Point{Lat: vantage.Lat, Lon: vantage.Lon}
	for _, pt := range ring {
		d := geo.Distance(origin, geo.Point{Lat: pt[1], Lon: pt[0]})
		assert.InDelta(t, 1000, d, 15, "open terrain must reach max range")
	}
}

func TestCoverage_WallToTheEast(t *testing.T) {
	// Terrain rises to 500 m east of the vantage longitude.
	wallLon := vantage.Lon + 0.004
	source := terrain.SourceFunc(func(lon, lat float64) float64 {
		if lon > wallLon {
			return 500
		}
		return 0
	})
	v := New(source, testViewshedConfig())

	poly, err := v.Coverage(context.Background(), vantage, nil)
	require.NoError(t, err)
	ring := poly[0]

	origin := geo.Point{Lat: vantage.Lat, Lon: vantage.Lon}
	wallDist := geo.Distance(origin, geo.Point{Lat: vantage.Lat, Lon: wallLon})

	for i, pt := range ring[:len(ring)-1] {
		bearing := float64(i) * 5
		d := geo.Distance(origin, geo.Point{Lat: pt[1], Lon: pt[0]})
		switch {
		case bearing == 90:
			assert.Less(t, d, wallDist+50, "eastward ray must stop at the wall")
		case bearing == 270:
			assert.InDelta(t, 1000, d, 15, "westward ray must reach full range")
		}
	}
}

func TestCoverage_ZeroRangeDegenerates(t *testing.T) {
	cfg := testViewshedConfig()
	cfg.MaxRangeM = 0
	v := New(flatTerrain, cfg)

	poly, err := v.Coverage(context.Background(), vantage, nil)
	require.NoError(t, err)
	ring := poly[0]

	for _, pt := range ring {
		assert.Equal(t, vantage.Lon, pt[0])
		assert.Equal(t, vantage.Lat, pt[1])
	}
}

func TestCoverage_VantageGroundFallback(t *testing.T) {
	// Ground lookup fails only at the vantage point itself.
	source := terrain.SourceFunc(func(lon, lat float64) float64 { return 0 })
	failing := failOnceSource{inner: source, failLon: vantage.Lon, failLat: vantage.Lat}
	v := New(&failing, testViewshedConfig())

	poly, err := v.Coverage(context.Background(), vantage, nil)
	require.NoError(t, err, "vantage ground failure must degrade, not fail")
	assert.Len(t, poly[0], 360/5+1)
}

type failOnceSource struct {
	inner            terrain.Source
	failLon, failLat float64
}

func (s *failOnceSource) Elevation(ctx context.Context, lon, lat float64) (float64, error) {
	if math.Abs(lon-s.failLon) < 1e-9 && math.Abs(lat-s.failLat) < 1e-9 {
		return 0, model.ErrElevationUnavailable
	}
	return s.inner.Elevation(ctx, lon, lat)
}

func TestCoverage_ProgressCancel(t *testing.T) {
	v := New(flatTerrain, testViewshedConfig())

	var calls int
	_, err := v.Coverage(context.Background(), vantage, func(int) bool {
		calls++
		return calls < 5
	})
	assert.ErrorIs(t, err, model.ErrCancelled)
}

func TestCoverage_ContextCancel(t *testing.T) {
	v := New(flatTerrain, testViewshedConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Coverage(ctx, vantage, nil)
	assert.ErrorIs(t, err, model.ErrCancelled)
}
