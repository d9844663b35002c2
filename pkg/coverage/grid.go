// Package coverage turns an area of operations into a visibility grid and
// merges per-station results into combined coverage.
package coverage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/uber/h3-go/v4"

	"flightassure/pkg/config"
	"flightassure/pkg/geo"
	"flightassure/pkg/los"
	"flightassure/pkg/model"
	"flightassure/pkg/terrain"
)

// cellRingSteps is the vertex count of a cell's circular buffer polygon.
const cellRingSteps = 12

// GenerateGrid tiles the area of operations with hexagonal grid cells. Each
// cell carries a circular buffer polygon around its center for rendering and
// union math. Cells come back without elevations or visibility flags; run
// FillElevations before handing them to StationCoverage.
//
// Grids are regenerated wholesale whenever the area changes, never patched.
func GenerateGrid(aoi orb.Polygon, cfg config.GridConfig) ([]model.GridCell, error) {
	if len(aoi) == 0 || len(aoi[0]) < 4 {
		return nil, fmt.Errorf("%w: area of operations must be a closed polygon", model.ErrInvalidGeometry)
	}

	loop := make(h3.GeoLoop, 0, len(aoi[0]))
	for _, pt := range aoi[0] {
		loop = append(loop, h3.LatLng{Lat: pt[1], Lng: pt[0]})
	}

	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, cfg.Resolution)
	if err != nil {
		return nil, fmt.Errorf("%w: grid tiling failed: %v", model.ErrInvalidGeometry, err)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: area of operations contains no grid cells at resolution %d", model.ErrInvalidGeometry, cfg.Resolution)
	}

	grid := make([]model.GridCell, 0, len(cells))
	for _, cell := range cells {
		center, err := h3.CellToLatLng(cell)
		if err != nil {
			return nil, fmt.Errorf("%w: cell center: %v", model.ErrInvalidGeometry, err)
		}
		c := model.Coordinate{Lon: center.Lng, Lat: center.Lat}
		grid = append(grid, model.GridCell{
			ID:         cell.String(),
			Center:     c,
			Ring:       bufferRing(c, float64(cfg.CellRadiusM)),
			Visibility: make(map[string]bool),
		})
	}

	slog.Debug("Coverage grid generated", "cells", len(grid), "resolution", cfg.Resolution)
	return grid, nil
}

// bufferRing builds the closed circular buffer polygon around a cell center.
func bufferRing(center model.Coordinate, radiusM float64) orb.Ring {
	ring := make(orb.Ring, 0, cellRingSteps+1)
	for i := 0; i < cellRingSteps; i++ {
		bearing := float64(i) * 360 / cellRingSteps
		p := geo.DestinationPoint(geo.Point{Lat: center.Lat, Lon: center.Lon}, radiusM, bearing)
		ring = append(ring, orb.Point{p.Lon, p.Lat})
	}
	ring = append(ring, ring[0])
	return ring
}

// FillElevations resolves the terrain elevation at every cell center.
// Failures degrade to 0 per the oracle policy.
func FillElevations(ctx context.Context, source terrain.Source, cells []model.GridCell, progress model.ProgressFunc) error {
	for i := range cells {
		if err := ctx.Err(); err != nil {
			return model.ErrCancelled
		}
		if progress != nil && i%64 == 0 && !progress(i*100/len(cells)) {
			return model.ErrCancelled
		}

		elev, err := source.Elevation(ctx, cells[i].Center.Lon, cells[i].Center.Lat)
		if err != nil {
			slog.Warn("Cell elevation lookup failed, using 0",
				"cell", cells[i].ID, "error", err)
			elev = 0
		}
		cells[i].Elevation = elev
	}

	if progress != nil && !progress(100) {
		return model.ErrCancelled
	}
	return nil
}

// StationCoverage runs a line-of-sight check from a station to every grid
// cell and returns the cells with the station's visibility flag set. The
// input cells are not mutated; each result carries its own flag maps.
//
// The station altitude is a height-above-ground offset, resolved against
// local terrain the same way the viewshed treats its vantage point.
func StationCoverage(ctx context.Context, checker *los.Checker, source terrain.Source, station model.Station, cells []model.GridCell, progress model.ProgressFunc) (model.CoverageResult, error) {
	result := model.CoverageResult{StationID: station.ID}

	ground, err := source.Elevation(ctx, station.Position.Lon, station.Position.Lat)
	if err != nil {
		slog.Warn("Station ground elevation unavailable, using 0",
			"station", station.ID, "error", err)
		ground = 0
	}
	eye := model.Coordinate3D{
		Lon: station.Position.Lon,
		Lat: station.Position.Lat,
		Alt: ground + station.Position.Alt,
	}

	out := make([]model.GridCell, len(cells))
	for i, cell := range cells {
		if err := ctx.Err(); err != nil {
			result.Cells = out[:i]
			return result, model.ErrCancelled
		}
		if progress != nil && i%32 == 0 && !progress(i*100/len(cells)) {
			result.Cells = out[:i]
			return result, model.ErrCancelled
		}

		target := model.Coordinate3D{Lon: cell.Center.Lon, Lat: cell.Center.Lat, Alt: cell.Elevation}
		losResult, err := checker.Check(ctx, eye, target)
		if err != nil {
			result.Cells = out[:i]
			return result, err
		}

		out[i] = cell
		out[i].Visibility = cloneFlags(cell.Visibility)
		out[i].Visibility[station.ID] = losResult.Clear
	}

	result.Cells = out
	if progress != nil && !progress(100) {
		return result, model.ErrCancelled
	}
	return result, nil
}

func cloneFlags(flags map[string]bool) map[string]bool {
	out := make(map[string]bool, len(flags)+1)
	for k, v := range flags {
		out[k] = v
	}
	return out
}
