// Package los answers whether two stations can see each other over terrain.
package los

import (
	"context"
	"log/slog"
	"math"

	"flightassure/pkg/config"
	"flightassure/pkg/geo"
	"flightassure/pkg/model"
	"flightassure/pkg/terrain"
)

// Checker marches straight 3D sight lines over terrain.
type Checker struct {
	source terrain.Source
	cfg    config.LOSConfig
}

// New creates a Checker.
func New(source terrain.Source, cfg config.LOSConfig) *Checker {
	return &Checker{source: source, cfg: cfg}
}

// Check tests whether station a can see station b. The sight line runs from
// a's altitude to b's altitude plus the far-end offset, a fixed antenna
// height margin. The walk stops at the first obstruction; only the common
// clear case pays for the full scan.
//
// Clear is symmetric between the endpoints; the obstruction fraction is not,
// since the offset applies to the far end only.
func (c *Checker) Check(ctx context.Context, a, b model.Coordinate3D) (model.LOSResult, error) {
	steps, dist := c.steps(a, b)
	if steps == 0 {
		return model.LOSResult{Clear: true}, nil
	}

	origin := geo.Point{Lat: a.Lat, Lon: a.Lon}
	bearing := geo.Bearing(origin, geo.Point{Lat: b.Lat, Lon: b.Lon})

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return model.LOSResult{}, model.ErrCancelled
		}

		f := float64(i) / float64(steps)
		if c.terrainAt(ctx, origin, bearing, f*dist) > c.sightAltitude(a, b, f) {
			fraction := f
			obstDist := f * dist
			return model.LOSResult{
				Clear:               false,
				ObstructionFraction: &fraction,
				ObstructionDistance: &obstDist,
			}, nil
		}
	}

	return model.LOSResult{Clear: true}, nil
}

// Profile walks the same sight line as Check but never stops early, returning
// every sample's terrain and sight-line altitude. Chart fodder only; the
// pass/fail verdict always comes from Check.
func (c *Checker) Profile(ctx context.Context, a, b model.Coordinate3D) ([]model.LOSProfilePoint, error) {
	steps, dist := c.steps(a, b)

	origin := geo.Point{Lat: a.Lat, Lon: a.Lon}
	bearing := geo.Bearing(origin, geo.Point{Lat: b.Lat, Lon: b.Lon})

	points := make([]model.LOSProfilePoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return points, model.ErrCancelled
		}

		f := 0.0
		if steps > 0 {
			f = float64(i) / float64(steps)
		}
		points = append(points, model.LOSProfilePoint{
			Distance:          f * dist,
			TerrainElevation:  c.terrainAt(ctx, origin, bearing, f*dist),
			SightLineAltitude: c.sightAltitude(a, b, f),
		})
	}
	return points, nil
}

// terrainAt looks up the terrain elevation at the given distance along the
// initial bearing from origin, degrading to 0 on lookup failure.
func (c *Checker) terrainAt(ctx context.Context, origin geo.Point, bearing, dist float64) float64 {
	p := geo.DestinationPoint(origin, dist, bearing)
	elev, err := c.source.Elevation(ctx, p.Lon, p.Lat)
	if err != nil {
		slog.Warn("Sight line terrain lookup failed, using 0", "lon", p.Lon, "lat", p.Lat, "error", err)
		return 0
	}
	return elev
}

// sightAltitude interpolates the ideal sight-line altitude at fraction f. The
// far endpoint gets the configured offset added, modelling receiver antenna
// height.
func (c *Checker) sightAltitude(a, b model.Coordinate3D, f float64) float64 {
	return a.Alt - (a.Alt-(b.Alt+c.cfg.FarEndOffsetM))*f
}

// steps returns the number of equal sampling intervals and the total planar
// distance between the endpoints.
func (c *Checker) steps(a, b model.Coordinate3D) (int, float64) {
	dist := geo.Distance(geo.Point{Lat: a.Lat, Lon: a.Lon}, geo.Point{Lat: b.Lat, Lon: b.Lon})
	step := c.cfg.StepM
	if step <= 0 {
		step = 10
	}
	return int(math.Ceil(dist / step)), dist
}
