// Package geoio converts between GeoJSON files and the analysis types. All
// format handling lives here so the analysis core only ever sees typed
// records.
package geoio

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"flightassure/pkg/model"
)

// ReadPlan loads a flight plan. Accepted shapes: a FeatureCollection of Point
// features (one per waypoint, altitude and mode in properties), or a
// LineString with one altitude and mode for the whole line.
func ReadPlan(path string) ([]model.Waypoint, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}

	var waypoints []model.Waypoint
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Point:
			waypoints = append(waypoints, model.Waypoint{
				Index: len(waypoints),
				Position: model.Coordinate3D{
					Lon: g[0],
					Lat: g[1],
					Alt: getFloatProp(f.Properties, "alt"),
				},
				Mode:    getMode(f.Properties),
				Command: int(getFloatProp(f.Properties, "command")),
				Frame:   int(getFloatProp(f.Properties, "frame")),
			})
		case orb.LineString:
			mode := getMode(f.Properties)
			alt := getFloatProp(f.Properties, "alt")
			for _, pt := range g {
				waypoints = append(waypoints, model.Waypoint{
					Index:    len(waypoints),
					Position: model.Coordinate3D{Lon: pt[0], Lat: pt[1], Alt: alt},
					Mode:     mode,
				})
			}
		}
	}

	if len(waypoints) < 2 {
		return nil, fmt.Errorf("%w: plan %s holds %d waypoints", model.ErrInsufficientPath, path, len(waypoints))
	}
	return waypoints, nil
}

// ReadStations loads vantage stations from Point features. The "height"
// property is meters above ground.
func ReadStations(path string) ([]model.Station, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}

	var stations []model.Station
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		id := getStringProp(f.Properties, "id")
		if id == "" {
			id = uuid.NewString()
		}
		stations = append(stations, model.Station{
			ID:   id,
			Name: getStringProp(f.Properties, "name"),
			Kind: getStringProp(f.Properties, "kind"),
			Position: model.Coordinate3D{
				Lon: pt[0],
				Lat: pt[1],
				Alt: getFloatProp(f.Properties, "height"),
			},
		})
	}

	if len(stations) == 0 {
		return nil, fmt.Errorf("%w: no station points in %s", model.ErrInvalidGeometry, path)
	}
	return stations, nil
}

// ReadAOI loads the area of operations, the first Polygon or MultiPolygon
// feature in the file.
func ReadAOI(path string) (orb.Polygon, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}

	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			return g, nil
		case orb.MultiPolygon:
			if len(g) > 0 {
				return g[0], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no polygon feature in %s", model.ErrInvalidGeometry, path)
}

// WriteClearance renders a clearance result: the flight path as a LineString
// with the verdict in its properties, plus one Point per collision sample.
func WriteClearance(path string, result *model.ClearanceResult) error {
	fc := geojson.NewFeatureCollection()

	line := make(orb.LineString, 0, len(result.Samples))
	for _, smp := range result.Samples {
		line = append(line, orb.Point{smp.Position.Lon, smp.Position.Lat})
	}
	pathFeature := geojson.NewFeature(line)
	pathFeature.Properties = geojson.Properties{
		"analysisId":            result.ID,
		"minimumClearance":      result.MinimumClearance,
		"criticalPointDistance": result.CriticalPointDistance,
		"highestObstacle":       result.HighestObstacle,
		"collisions":            len(result.Collisions),
		"degraded":              result.Degraded,
		"analysisTimeMs":        result.AnalysisTime.Milliseconds(),
	}
	fc.Append(pathFeature)

	for _, c := range result.Collisions {
		f := geojson.NewFeature(orb.Point{c.Position.Lon, c.Position.Lat})
		f.Properties = geojson.Properties{
			"distanceFromStart": c.DistanceFromStart,
			"clearance":         c.Clearance,
			"synthetic":         c.Synthetic,
		}
		fc.Append(f)
	}

	return writeFeatureCollection(path, fc)
}

// WriteViewshed renders a viewshed polygon with its vantage point.
func WriteViewshed(path string, vantage model.Coordinate3D, poly orb.Polygon) error {
	fc := geojson.NewFeatureCollection()

	footprint := geojson.NewFeature(poly)
	footprint.Properties = geojson.Properties{"kind": "viewshed"}
	fc.Append(footprint)

	origin := geojson.NewFeature(orb.Point{vantage.Lon, vantage.Lat})
	origin.Properties = geojson.Properties{"kind": "vantage", "height": vantage.Alt}
	fc.Append(origin)

	return writeFeatureCollection(path, fc)
}

// WriteCoverage renders merged coverage: one polygon per grid cell with its
// visibility flags, plus the unioned footprint when present.
func WriteCoverage(path string, merged *model.MergedCoverage) error {
	fc := geojson.NewFeatureCollection()

	for _, cell := range merged.Cells {
		f := geojson.NewFeature(orb.Polygon{cell.Ring})
		flags := make(map[string]interface{}, len(cell.Visibility))
		for station, visible := range cell.Visibility {
			flags[station] = visible
		}
		f.Properties = geojson.Properties{
			"cellId":    cell.ID,
			"elevation": cell.Elevation,
			"visible":   cell.Visible(),
			"stations":  flags,
		}
		fc.Append(f)
	}

	if len(merged.Union) > 0 {
		f := geojson.NewFeature(merged.Union)
		f.Properties = geojson.Properties{
			"kind":          "union",
			"skippedUnions": merged.SkippedUnions,
		}
		fc.Append(f)
	}

	return writeFeatureCollection(path, fc)
}

func readFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidGeometry, path, err)
	}
	return fc, nil
}

func writeFeatureCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func getMode(props geojson.Properties) model.AltitudeMode {
	mode, _ := model.ParseAltitudeMode(getStringProp(props, "mode"))
	return mode
}

func getStringProp(props geojson.Properties, key string) string {
	if val, ok := props[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

func getFloatProp(props geojson.Properties, key string) float64 {
	if val, ok := props[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case json.Number:
			f, _ := v.Float64()
			return f
		}
	}
	return 0
}
