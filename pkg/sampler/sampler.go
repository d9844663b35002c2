// Package sampler resamples a flight plan into evenly spaced points along the
// path. Sampling is pure geometry; no elevation lookups happen here, so a
// sampled path can be reused across analyses with different terrain state.
package sampler

import (
	"context"
	"fmt"
	"math"
	"sort"

	"flightassure/pkg/config"
	"flightassure/pkg/geo"
	"flightassure/pkg/model"
)

// distEpsilon collapses distance entries that differ only by float noise.
const distEpsilon = 1e-6

// Sampler resamples waypoint paths at a fixed resolution.
type Sampler struct {
	cfg config.SamplerConfig
}

// New creates a Sampler.
func New(cfg config.SamplerConfig) *Sampler {
	return &Sampler{cfg: cfg}
}

// segment is one leg between consecutive waypoints, with its cumulative
// start distance along the path.
type segment struct {
	from, to model.Waypoint
	start    float64
	length   float64
}

// Sample resamples the path at the configured resolution. Every waypoint
// position appears as a sample exactly (legs never smooth corners away), and
// the path endpoint is always included. Sample distances are strictly
// increasing.
//
// Returns ErrInsufficientPath for fewer than two waypoints and ErrCancelled
// when the context is done or progress returns false.
func (s *Sampler) Sample(ctx context.Context, waypoints []model.Waypoint, progress model.ProgressFunc) ([]model.SamplePoint, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 waypoints, got %d", model.ErrInsufficientPath, len(waypoints))
	}
	resolution := s.cfg.ResolutionM
	if resolution <= 0 {
		return nil, fmt.Errorf("%w: sample resolution must be positive, got %f", model.ErrInvalidGeometry, resolution)
	}

	segments, total := buildSegments(waypoints)
	distances := sampleDistances(segments, total, resolution)

	samples := make([]model.SamplePoint, 0, len(distances))
	seg := 0
	reportEvery := len(distances) / 20
	if reportEvery == 0 {
		reportEvery = 1
	}

	for i, d := range distances {
		if i%reportEvery == 0 {
			if err := ctx.Err(); err != nil {
				return samples, model.ErrCancelled
			}
			if progress != nil && !progress(i*100/len(distances)) {
				return samples, model.ErrCancelled
			}
		}

		// Distances are sorted, so the containing segment only moves forward.
		for seg < len(segments)-1 && d > segments[seg].start+segments[seg].length+distEpsilon {
			seg++
		}
		samples = append(samples, interpolate(segments[seg], d))
	}

	if progress != nil && !progress(100) {
		return samples, model.ErrCancelled
	}
	return samples, nil
}

// buildSegments computes the leg table and the total path length.
func buildSegments(waypoints []model.Waypoint) ([]segment, float64) {
	segments := make([]segment, 0, len(waypoints)-1)
	var total float64
	for i := 0; i < len(waypoints)-1; i++ {
		from, to := waypoints[i], waypoints[i+1]
		length := geo.Distance(
			geo.Point{Lat: from.Position.Lat, Lon: from.Position.Lon},
			geo.Point{Lat: to.Position.Lat, Lon: to.Position.Lon},
		)
		segments = append(segments, segment{from: from, to: to, start: total, length: length})
		total += length
	}
	return segments, total
}

// sampleDistances merges the resolution grid with the leg boundaries into one
// sorted, deduplicated distance list. Boundaries are kept verbatim so
// waypoints survive resampling exactly.
func sampleDistances(segments []segment, total, resolution float64) []float64 {
	gridCount := int(math.Floor(total/resolution)) + 1
	distances := make([]float64, 0, gridCount+len(segments)+1)
	for i := 0; i < gridCount; i++ {
		distances = append(distances, float64(i)*resolution)
	}
	for _, seg := range segments {
		distances = append(distances, seg.start)
	}
	distances = append(distances, total)

	sort.Float64s(distances)

	out := distances[:1]
	for _, d := range distances[1:] {
		if d-out[len(out)-1] > distEpsilon {
			out = append(out, d)
		}
	}
	return out
}

// interpolate produces the sample at distance d within seg. Altitude is
// interpolated linearly in the raw plan frame; the altitude mode of a leg is
// the destination waypoint's, matching how autopilots fly the plan value.
func interpolate(seg segment, d float64) model.SamplePoint {
	t := 0.0
	if seg.length > 0 {
		t = (d - seg.start) / seg.length
	}
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	p := geo.Lerp(
		geo.Point{Lat: seg.from.Position.Lat, Lon: seg.from.Position.Lon},
		geo.Point{Lat: seg.to.Position.Lat, Lon: seg.to.Position.Lon},
		t,
	)

	return model.SamplePoint{
		Position: model.Coordinate3D{
			Lon: p.Lon,
			Lat: p.Lat,
			Alt: seg.from.Position.Alt + (seg.to.Position.Alt-seg.from.Position.Alt)*t,
		},
		Mode:              seg.to.Mode,
		DistanceFromStart: d,
	}
}
