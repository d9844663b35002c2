package sampler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightassure/pkg/config"
	"flightassure/pkg/geo"
	"flightassure/pkg/model"
)

func wp(index int, lon, lat, alt float64, mode model.AltitudeMode) model.Waypoint {
	return model.Waypoint{
		Index:    index,
		Position: model.Coordinate3D{Lon: lon, Lat: lat, Alt: alt},
		Mode:     mode,
	}
}

// straightPlan is roughly 1.1 km of northbound path at constant altitude.
func straightPlan() []model.Waypoint {
	return []model.Waypoint{
		wp(0, 11.5, 48.10, 100, model.AltitudeRelative),
		wp(1, 11.5, 48.11, 100, model.AltitudeRelative),
	}
}

func newTestSampler(resolution float64) *Sampler {
	return New(config.SamplerConfig{ResolutionM: resolution})
}

func TestSample_StrictlyIncreasingDistances(t *testing.T) {
	s := newTestSampler(10)

	samples, err := s.Sample(context.Background(), straightPlan(), nil)
	require.NoError(t, err)
	require.Greater(t, len(samples), 100)

	for i := 1; i < len(samples); i++ {
		assert.Greater(t, samples[i].DistanceFromStart, samples[i-1].DistanceFromStart,
			"distances must be strictly increasing at index %d", i)
	}
}

func TestSample_EndpointsExact(t *testing.T) {
	plan := straightPlan()
	s := newTestSampler(10)

	samples, err := s.Sample(context.Background(), plan, nil)
	require.NoError(t, err)

	first, last := samples[0], samples[len(samples)-1]
	assert.Equal(t, plan[0].Position.Lat, first.Position.Lat)
	assert.Equal(t, plan[0].Position.Lon, first.Position.Lon)
	assert.Zero(t, first.DistanceFromStart)

	assert.InDelta(t, plan[1].Position.Lat, last.Position.Lat, 1e-9)
	assert.InDelta(t, plan[1].Position.Lon, last.Position.Lon, 1e-9)

	total := geo.Distance(
		geo.Point{Lat: plan[0].Position.Lat, Lon: plan[0].Position.Lon},
		geo.Point{Lat: plan[1].Position.Lat, Lon: plan[1].Position.Lon},
	)
	assert.InDelta(t, total, last.DistanceFromStart, 1e-6)
}

func TestSample_WaypointBoundariesSurvive(t *testing.T) {
	// The middle waypoint is deliberately off the 10 m grid.
	plan := []model.Waypoint{
		wp(0, 11.5, 48.100, 50, model.AltitudeRelative),
		wp(1, 11.5, 48.1003, 80, model.AltitudeAbsolute),
		wp(2, 11.5, 48.101, 50, model.AltitudeRelative),
	}
	s := newTestSampler(10)

	samples, err := s.Sample(context.Background(), plan, nil)
	require.NoError(t, err)

	boundary := geo.Distance(
		geo.Point{Lat: 48.100, Lon: 11.5},
		geo.Point{Lat: 48.1003, Lon: 11.5},
	)
	found := false
	for _, smp := range samples {
		if smp.DistanceFromStart > boundary-1e-6 && smp.DistanceFromStart < boundary+1e-6 {
			found = true
			assert.InDelta(t, plan[1].Position.Lat, smp.Position.Lat, 1e-9)
			assert.InDelta(t, 80, smp.Position.Alt, 1e-6)
		}
	}
	assert.True(t, found, "middle waypoint must appear as a sample")
}

func TestSample_AltitudeAndModeInterpolation(t *testing.T) {
	plan := []model.Waypoint{
		wp(0, 11.5, 48.10, 0, model.AltitudeRelative),
		wp(1, 11.5, 48.11, 100, model.AltitudeAbsolute),
	}
	s := newTestSampler(10)

	samples, err := s.Sample(context.Background(), plan, nil)
	require.NoError(t, err)

	total := samples[len(samples)-1].DistanceFromStart
	for _, smp := range samples {
		wantAlt := smp.DistanceFromStart / total * 100
		assert.InDelta(t, wantAlt, smp.Position.Alt, 0.01)
		assert.Equal(t, model.AltitudeAbsolute, smp.Mode, "a leg sample carries the destination waypoint's mode")
	}
}

func TestSample_TooFewWaypoints(t *testing.T) {
	s := newTestSampler(10)

	_, err := s.Sample(context.Background(), []model.Waypoint{wp(0, 11.5, 48.1, 100, model.AltitudeRelative)}, nil)
	assert.ErrorIs(t, err, model.ErrInsufficientPath)

	_, err = s.Sample(context.Background(), nil, nil)
	assert.ErrorIs(t, err, model.ErrInsufficientPath)
}

func TestSample_InvalidResolution(t *testing.T) {
	s := newTestSampler(0)
	_, err := s.Sample(context.Background(), straightPlan(), nil)
	assert.ErrorIs(t, err, model.ErrInvalidGeometry)
}

func TestSample_ProgressCancel(t *testing.T) {
	s := newTestSampler(1)

	var calls int
	samples, err := s.Sample(context.Background(), straightPlan(), func(percent int) bool {
		calls++
		return calls < 3
	})
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.NotEmpty(t, samples, "cancellation must still return the partial prefix")
	assert.Less(t, len(samples), 1000)
}

func TestSample_ContextCancel(t *testing.T) {
	s := newTestSampler(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Sample(ctx, straightPlan(), nil)
	assert.ErrorIs(t, err, model.ErrCancelled)
}

func TestSample_ZeroLengthPath(t *testing.T) {
	plan := []model.Waypoint{
		wp(0, 11.5, 48.1, 100, model.AltitudeRelative),
		wp(1, 11.5, 48.1, 100, model.AltitudeRelative),
	}
	s := newTestSampler(10)

	samples, err := s.Sample(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Zero(t, samples[0].DistanceFromStart)
}
