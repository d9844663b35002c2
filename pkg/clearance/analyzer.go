// Package clearance computes terrain clearance along a resampled flight path.
// It is the elevation-filling half of the two-phase design: the path sampler
// produces pure geometry, this package resolves altitudes against terrain and
// derives the safety verdict.
package clearance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"flightassure/pkg/config"
	"flightassure/pkg/geo"
	"flightassure/pkg/model"
	"flightassure/pkg/terrain"
)

// Analyzer fills terrain elevations into sampled paths and derives clearance
// statistics.
type Analyzer struct {
	source       terrain.Source
	cfg          config.ClearanceConfig
	pointTimeout time.Duration
}

// New creates an Analyzer. pointTimeout bounds each elevation lookup; a
// lookup that exceeds it degrades to ground elevation 0 instead of failing
// the analysis.
func New(source terrain.Source, cfg config.ClearanceConfig, pointTimeout time.Duration) *Analyzer {
	return &Analyzer{source: source, cfg: cfg, pointTimeout: pointTimeout}
}

// Analyze resolves flight and terrain elevations for every sample and derives
// minimum clearance, critical point, highest obstacle and the collision set.
//
// Sparse plans flying Absolute or Relative legs additionally get synthetic
// probe points between waypoints, so a ridge between two far-apart waypoints
// cannot hide from the verdict.
//
// Cancellation returns the partial result alongside ErrCancelled.
func (a *Analyzer) Analyze(ctx context.Context, waypoints []model.Waypoint, samples []model.SamplePoint, progress model.ProgressFunc) (*model.ClearanceResult, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, got %d", model.ErrInsufficientPath, len(samples))
	}

	start := time.Now()
	result := &model.ClearanceResult{ID: uuid.NewString()}

	homeGround, degraded := a.homeGround(ctx, waypoints, samples)
	result.Degraded = degraded

	filled := make([]model.SamplePoint, 0, len(samples))
	yieldEvery := a.cfg.YieldEvery
	if yieldEvery <= 0 {
		yieldEvery = 256
	}

	for i, smp := range samples {
		if i%yieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				result.Samples = filled
				result.AnalysisTime = time.Since(start)
				return result, model.ErrCancelled
			}
			if progress != nil && !progress(i*90/len(samples)) {
				result.Samples = filled
				result.AnalysisTime = time.Since(start)
				return result, model.ErrCancelled
			}
		}
		filled = append(filled, a.fill(ctx, smp, homeGround, result))
	}

	filled = a.densify(ctx, waypoints, filled, homeGround, result)
	result.Samples = filled

	a.deriveStats(result)
	result.AnalysisTime = time.Since(start)

	if progress != nil && !progress(100) {
		return result, model.ErrCancelled
	}

	slog.Debug("Clearance analysis complete",
		"id", result.ID,
		"samples", len(result.Samples),
		"minClearance", result.MinimumClearance,
		"collisions", len(result.Collisions),
		"degraded", result.Degraded,
		"elapsed", result.AnalysisTime)

	return result, nil
}

// homeGround resolves the takeoff ground elevation, looked up once and reused
// for every Relative sample.
func (a *Analyzer) homeGround(ctx context.Context, waypoints []model.Waypoint, samples []model.SamplePoint) (float64, bool) {
	var home model.Coordinate3D
	if len(waypoints) > 0 {
		home = waypoints[0].Position
	} else {
		home = samples[0].Position
	}

	elev, err := a.elevation(ctx, home.Lon, home.Lat)
	if err != nil {
		slog.Warn("Home ground elevation unavailable, using 0", "lon", home.Lon, "lat", home.Lat, "error", err)
		return 0, true
	}
	return elev, false
}

// fill resolves one sample's terrain and flight elevation and its clearance.
func (a *Analyzer) fill(ctx context.Context, smp model.SamplePoint, homeGround float64, result *model.ClearanceResult) model.SamplePoint {
	terrainElev, err := a.elevation(ctx, smp.Position.Lon, smp.Position.Lat)
	if err != nil {
		slog.Warn("Elevation lookup failed, using 0",
			"lon", smp.Position.Lon, "lat", smp.Position.Lat, "error", err)
		terrainElev = 0
		result.Degraded = true
	}

	switch smp.Mode {
	case model.AltitudeAbsolute:
		smp.FlightElevation = smp.Position.Alt
	case model.AltitudeRelative:
		smp.FlightElevation = homeGround + smp.Position.Alt
	case model.AltitudeTerrainFollowing:
		smp.FlightElevation = terrainElev + smp.Position.Alt
	}

	smp.TerrainElevation = &terrainElev
	smp.Clearance = smp.FlightElevation - terrainElev
	return smp
}

// elevation looks up terrain elevation with the per-point timeout applied.
func (a *Analyzer) elevation(ctx context.Context, lon, lat float64) (float64, error) {
	if a.pointTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.pointTimeout)
		defer cancel()
	}
	return a.source.Elevation(ctx, lon, lat)
}

// densify injects synthetic probe points between waypoints of Absolute and
// Relative legs. Straight-line interpolation between sparse waypoints can
// clear every grid sample yet still cross a ridge; the probes close that gap.
// Gaps under the minimum are skipped, probes landing within the duplicate
// window of an existing sample are dropped, and only probes whose clearance
// comes within the merge window of the running minimum are retained.
func (a *Analyzer) densify(ctx context.Context, waypoints []model.Waypoint, samples []model.SamplePoint, homeGround float64, result *model.ClearanceResult) []model.SamplePoint {
	if len(waypoints) < 2 || a.cfg.MaxSyntheticPerGap <= 0 {
		return samples
	}

	runningMin := samples[0].Clearance
	for _, smp := range samples {
		if smp.Clearance < runningMin {
			runningMin = smp.Clearance
		}
	}

	distances := make([]float64, len(samples))
	for i, smp := range samples {
		distances[i] = smp.DistanceFromStart
	}

	var retained []model.SamplePoint
	legStart := 0.0
	for i := 0; i < len(waypoints)-1; i++ {
		from, to := waypoints[i], waypoints[i+1]
		gap := geo.Distance(
			geo.Point{Lat: from.Position.Lat, Lon: from.Position.Lon},
			geo.Point{Lat: to.Position.Lat, Lon: to.Position.Lon},
		)
		legEnd := legStart + gap

		if to.Mode == model.AltitudeTerrainFollowing || gap < a.cfg.MinGapM {
			legStart = legEnd
			continue
		}

		if err := ctx.Err(); err != nil {
			break
		}

		count := a.cfg.MaxSyntheticPerGap
		for j := 1; j <= count; j++ {
			t := float64(j) / float64(count+1)
			d := legStart + gap*t
			if nearExisting(distances, d, a.cfg.DuplicateWindowM) {
				continue
			}

			p := geo.Lerp(
				geo.Point{Lat: from.Position.Lat, Lon: from.Position.Lon},
				geo.Point{Lat: to.Position.Lat, Lon: to.Position.Lon},
				t,
			)
			probe := model.SamplePoint{
				Position: model.Coordinate3D{
					Lon: p.Lon,
					Lat: p.Lat,
					Alt: from.Position.Alt + (to.Position.Alt-from.Position.Alt)*t,
				},
				Mode:              to.Mode,
				DistanceFromStart: d,
				Synthetic:         true,
			}
			probe = a.fill(ctx, probe, homeGround, result)

			if probe.Clearance < runningMin {
				runningMin = probe.Clearance
			}
			if probe.Clearance <= runningMin+a.cfg.MergeWindowM {
				retained = append(retained, probe)
			}
		}
		legStart = legEnd
	}

	if len(retained) == 0 {
		return samples
	}

	samples = append(samples, retained...)
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].DistanceFromStart < samples[j].DistanceFromStart
	})
	return samples
}

// nearExisting reports whether d falls within window of any entry in the
// sorted distance list.
func nearExisting(sorted []float64, d, window float64) bool {
	i := sort.SearchFloat64s(sorted, d)
	if i < len(sorted) && sorted[i]-d <= window {
		return true
	}
	if i > 0 && d-sorted[i-1] <= window {
		return true
	}
	return false
}

// deriveStats computes the aggregate verdict fields from the filled samples.
func (a *Analyzer) deriveStats(result *model.ClearanceResult) {
	if len(result.Samples) == 0 {
		return
	}

	result.MinimumClearance = result.Samples[0].Clearance
	result.CriticalPointDistance = result.Samples[0].DistanceFromStart
	if result.Samples[0].TerrainElevation != nil {
		result.HighestObstacle = *result.Samples[0].TerrainElevation
	}
	result.Collisions = nil

	for _, smp := range result.Samples {
		if smp.Clearance < result.MinimumClearance {
			result.MinimumClearance = smp.Clearance
			result.CriticalPointDistance = smp.DistanceFromStart
		}
		if smp.TerrainElevation != nil && *smp.TerrainElevation > result.HighestObstacle {
			result.HighestObstacle = *smp.TerrainElevation
		}
		if smp.Clearance < 0 {
			result.Collisions = append(result.Collisions, smp)
		}
	}
}
