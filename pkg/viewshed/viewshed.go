// Package viewshed computes the terrain area visible from a vantage point by
// casting radial rays at fixed angular steps.
package viewshed

import (
	"context"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"flightassure/pkg/config"
	"flightassure/pkg/geo"
	"flightassure/pkg/model"
	"flightassure/pkg/terrain"
)

// Computer casts radial visibility rays from vantage points.
type Computer struct {
	source terrain.Source
	cfg    config.ViewshedConfig
}

// New creates a Computer.
func New(source terrain.Source, cfg config.ViewshedConfig) *Computer {
	return &Computer{source: source, cfg: cfg}
}

// Coverage computes the visibility polygon around a vantage point. The
// vantage altitude is a height-above-ground offset; the absolute eye altitude
// is the local ground elevation plus that offset. Each ray walks outward in
// radial steps until terrain rises above the eye, recording the last
// unblocked point as that bearing's boundary vertex. The ring is closed by
// repeating the first vertex.
//
// An unavailable vantage ground elevation falls back to 0, consistent with
// the oracle's degrade policy, rather than failing the polygon.
func (v *Computer) Coverage(ctx context.Context, vantage model.Coordinate3D, progress model.ProgressFunc) (orb.Polygon, error) {
	start := time.Now()
	origin := geo.Point{Lat: vantage.Lat, Lon: vantage.Lon}

	ground, err := v.source.Elevation(ctx, vantage.Lon, vantage.Lat)
	if err != nil {
		slog.Warn("Vantage ground elevation unavailable, using 0",
			"lon", vantage.Lon, "lat", vantage.Lat, "error", err)
		ground = 0
	}
	eyeAltitude := ground + vantage.Alt

	angleStep := v.cfg.AngleStepDeg
	if angleStep <= 0 {
		angleStep = 5
	}
	radialStep := v.cfg.RadialStepM
	if radialStep <= 0 {
		radialStep = 50
	}

	bearings := int(360 / angleStep)
	ring := make(orb.Ring, 0, bearings+1)

	for i := 0; i < bearings; i++ {
		if err := ctx.Err(); err != nil {
			return nil, model.ErrCancelled
		}
		if progress != nil && !progress(i*100/bearings) {
			return nil, model.ErrCancelled
		}

		bearing := float64(i) * angleStep
		ring = append(ring, v.castRay(ctx, origin, bearing, eyeAltitude, radialStep))
	}

	// Close the ring.
	ring = append(ring, ring[0])

	if progress != nil && !progress(100) {
		return nil, model.ErrCancelled
	}

	slog.Debug("Viewshed computed",
		"lon", vantage.Lon, "lat", vantage.Lat,
		"bearings", bearings, "elapsed", time.Since(start))

	return orb.Polygon{ring}, nil
}

// castRay walks outward along one bearing and returns the furthest unblocked
// point. With a zero or negative max range the ray collapses to the origin.
func (v *Computer) castRay(ctx context.Context, origin geo.Point, bearing, eyeAltitude, radialStep float64) orb.Point {
	last := origin
	for dist := radialStep; dist <= float64(v.cfg.MaxRangeM); dist += radialStep {
		p := geo.FlatOffset(origin, dist, bearing)
		elev, err := v.source.Elevation(ctx, p.Lon, p.Lat)
		if err != nil {
			slog.Warn("Ray terrain lookup failed, using 0", "lon", p.Lon, "lat", p.Lat, "error", err)
			elev = 0
		}
		if elev > eyeAltitude {
			break
		}
		last = p
	}
	return orb.Point{last.Lon, last.Lat}
}
