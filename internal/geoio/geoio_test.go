package geoio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightassure/pkg/model"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadPlan_Points(t *testing.T) {
	path := writeTemp(t, "plan.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [11.5, 48.1]},
			 "properties": {"alt": 0, "mode": "relative"}},
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [11.51, 48.11]},
			 "properties": {"alt": 120, "mode": "absolute", "command": 16, "frame": 3}}
		]
	}`)

	waypoints, err := ReadPlan(path)
	require.NoError(t, err)
	require.Len(t, waypoints, 2)

	assert.Equal(t, 0, waypoints[0].Index)
	assert.Equal(t, model.AltitudeRelative, waypoints[0].Mode)
	assert.Equal(t, 11.5, waypoints[0].Position.Lon)

	assert.Equal(t, model.AltitudeAbsolute, waypoints[1].Mode)
	assert.Equal(t, 120.0, waypoints[1].Position.Alt)
	assert.Equal(t, 16, waypoints[1].Command)
	assert.Equal(t, 3, waypoints[1].Frame)
}

func TestReadPlan_LineString(t *testing.T) {
	path := writeTemp(t, "plan.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {"mode": "terrain"},
			 "geometry": {"type": "LineString", "coordinates": [[11.5, 48.1], [11.51, 48.11], [11.52, 48.12]]}}
		]
	}`)

	waypoints, err := ReadPlan(path)
	require.NoError(t, err)
	require.Len(t, waypoints, 3)
	for i, w := range waypoints {
		assert.Equal(t, i, w.Index)
		assert.Equal(t, model.AltitudeTerrainFollowing, w.Mode)
	}
}

func TestReadPlan_TooShort(t *testing.T) {
	path := writeTemp(t, "plan.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [11.5, 48.1]}, "properties": {}}
		]
	}`)

	_, err := ReadPlan(path)
	assert.ErrorIs(t, err, model.ErrInsufficientPath)
}

func TestReadStations(t *testing.T) {
	path := writeTemp(t, "stations.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [11.5, 48.1]},
			 "properties": {"id": "twr-1", "name": "North Tower", "kind": "tower", "height": 45}},
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [11.6, 48.2]},
			 "properties": {"height": 10}}
		]
	}`)

	stations, err := ReadStations(path)
	require.NoError(t, err)
	require.Len(t, stations, 2)

	assert.Equal(t, "twr-1", stations[0].ID)
	assert.Equal(t, "North Tower", stations[0].Name)
	assert.Equal(t, 45.0, stations[0].Position.Alt)
	assert.NotEmpty(t, stations[1].ID, "stations without an id get one assigned")
}

func TestReadAOI(t *testing.T) {
	path := writeTemp(t, "aoi.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {},
			 "geometry": {"type": "Polygon", "coordinates": [[[11.5, 48.1], [11.6, 48.1], [11.6, 48.2], [11.5, 48.1]]]}}
		]
	}`)

	aoi, err := ReadAOI(path)
	require.NoError(t, err)
	require.Len(t, aoi, 1)
	assert.Len(t, aoi[0], 4)
}

func TestReadAOI_NoPolygon(t *testing.T) {
	path := writeTemp(t, "aoi.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 2]}, "properties": {}}
		]
	}`)

	_, err := ReadAOI(path)
	assert.ErrorIs(t, err, model.ErrInvalidGeometry)
}

func TestWriteClearanceRoundTrip(t *testing.T) {
	terrain := 40.0
	result := &model.ClearanceResult{
		ID:               "test",
		MinimumClearance: -10,
		Degraded:         true,
		AnalysisTime:     42 * time.Millisecond,
		Samples: []model.SamplePoint{
			{Position: model.Coordinate3D{Lon: 11.5, Lat: 48.1}, TerrainElevation: &terrain, Clearance: 60},
			{Position: model.Coordinate3D{Lon: 11.51, Lat: 48.11}, TerrainElevation: &terrain, Clearance: -10},
		},
	}
	result.Collisions = []model.SamplePoint{result.Samples[1]}

	path := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, WriteClearance(path, result))

	fc, err := readFeatureCollection(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	line, ok := fc.Features[0].Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Len(t, line, 2)
	assert.Equal(t, true, fc.Features[0].Properties["degraded"])

	_, ok = fc.Features[1].Geometry.(orb.Point)
	require.True(t, ok)
}

func TestWriteCoverage(t *testing.T) {
	merged := &model.MergedCoverage{
		ID: "m1",
		Cells: []model.GridCell{{
			ID:         "c1",
			Ring:       orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}},
			Visibility: map[string]bool{"A": true},
		}},
		Union: orb.MultiPolygon{{orb.Ring{{0, 0}, {2, 0}, {2, 2}, {0, 0}}}},
	}

	path := filepath.Join(t.TempDir(), "coverage.geojson")
	require.NoError(t, WriteCoverage(path, merged))

	fc, err := readFeatureCollection(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, true, fc.Features[0].Properties["visible"])
}

func TestReadTelemetry(t *testing.T) {
	path := writeTemp(t, "flight.csv",
		"time,vx,vy,vz,altitude,voltage,current\n"+
			"0.0,0,0,0,0.1,16.8,1.2\n"+
			"0.1,0,0,-3,1.5,16.7,20\n")

	samples, err := ReadTelemetry(path)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, 0.1, samples[1].Time)
	assert.Equal(t, -3.0, samples[1].VZ)
	assert.Equal(t, 20.0, samples[1].Current)
}

func TestReadTelemetry_MissingColumn(t *testing.T) {
	path := writeTemp(t, "flight.csv", "time,vx,vy\n0,0,0\n")

	_, err := ReadTelemetry(path)
	assert.ErrorIs(t, err, model.ErrInvalidGeometry)
}
