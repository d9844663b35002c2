package coverage

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/engelsjk/polygol"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"flightassure/pkg/model"
)

// Merge combines per-station coverage results. A cell counts as visible when
// any contributing station sees it; one working relay is enough for a link.
// Polygon footprints are unioned where present, and a union that fails on one
// degenerate polygon is skipped rather than aborting the merge.
func Merge(results []model.CoverageResult) (*model.MergedCoverage, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: nothing to merge", model.ErrInvalidGeometry)
	}

	start := time.Now()
	merged := &model.MergedCoverage{ID: uuid.NewString()}

	byID := make(map[string]*model.GridCell)
	var order []string
	for _, result := range results {
		for _, cell := range result.Cells {
			existing, ok := byID[cell.ID]
			if !ok {
				clone := cell
				clone.Visibility = cloneFlags(cell.Visibility)
				byID[cell.ID] = &clone
				order = append(order, cell.ID)
				continue
			}
			for station, visible := range cell.Visibility {
				existing.Visibility[station] = existing.Visibility[station] || visible
			}
		}
	}
	sort.Strings(order)

	stations := len(results)
	var fractionSum float64
	for _, id := range order {
		cell := byID[id]
		merged.Cells = append(merged.Cells, *cell)
		merged.TotalCells++
		if cell.Visible() {
			merged.VisibleCells++
		}

		seen := 0
		for _, visible := range cell.Visibility {
			if visible {
				seen++
			}
		}
		fractionSum += float64(seen) / float64(stations)
	}
	if merged.TotalCells > 0 {
		merged.AverageVisibility = fractionSum / float64(merged.TotalCells)
	}

	merged.Union, merged.SkippedUnions = unionFootprints(results)
	merged.AnalysisTimeMs = time.Since(start).Milliseconds()

	slog.Debug("Coverage merged",
		"id", merged.ID,
		"stations", stations,
		"visibleCells", merged.VisibleCells,
		"totalCells", merged.TotalCells,
		"skippedUnions", merged.SkippedUnions)

	return merged, nil
}

// unionFootprints unions the polygon footprints of the results, skipping
// polygons the union operation rejects. Very fine viewshed angle steps can
// produce self-intersecting rings the boolean kernel chokes on; losing one
// footprint beats losing the merge.
func unionFootprints(results []model.CoverageResult) (orb.MultiPolygon, int) {
	var acc polygol.Geom
	var skipped int

	for _, result := range results {
		if len(result.Polygon) == 0 {
			continue
		}
		g := toGeom(result.Polygon)
		if acc == nil {
			acc = g
			continue
		}

		combined, err := polygol.Union(acc, g)
		if err != nil {
			skipped++
			slog.Warn("Footprint union failed, skipping polygon",
				"station", result.StationID, "error", fmt.Errorf("%w: %v", model.ErrUnionFailure, err))
			continue
		}
		acc = combined
	}

	if acc == nil {
		return nil, skipped
	}
	return fromGeom(acc), skipped
}

// toGeom converts an orb polygon to the multipolygon shape the boolean
// kernel expects.
func toGeom(poly orb.Polygon) polygol.Geom {
	rings := make([][][]float64, 0, len(poly))
	for _, ring := range poly {
		points := make([][]float64, 0, len(ring))
		for _, pt := range ring {
			points = append(points, []float64{pt[0], pt[1]})
		}
		rings = append(rings, points)
	}
	return polygol.Geom{rings}
}

func fromGeom(g polygol.Geom) orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(g))
	for _, poly := range g {
		p := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			r := make(orb.Ring, 0, len(ring))
			for _, pt := range ring {
				r = append(r, orb.Point{pt[0], pt[1]})
			}
			p = append(p, r)
		}
		mp = append(mp, p)
	}
	return mp
}
