// Package energy classifies flight telemetry into phases and attributes
// battery draw to each phase. Vertical velocity follows the NED convention:
// positive is downward.
package energy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"flightassure/pkg/model"
)

// Phase labels one regime of a flight.
type Phase string

const (
	PhaseGround     Phase = "On the Ground"
	PhaseCruising   Phase = "Cruising"
	PhaseDescending Phase = "Descending"
	PhaseClimbing   Phase = "Climbing"
	PhaseHovering   Phase = "Hovering"
	PhaseUnknown    Phase = "Unknown"
)

// TelemetrySample is one fused position/battery record. Time is seconds from
// log start, Altitude is meters above the local origin (up positive).
type TelemetrySample struct {
	Time     float64
	VX, VY   float64
	VZ       float64
	Altitude float64
	Voltage  float64
	Current  float64
}

// Thresholds tune the phase classifier.
type Thresholds struct {
	GroundVel   float64
	CruiseVel   float64
	AltitudeMin float64
	ClimbVZ     float64
	DescendVZ   float64
}

// DefaultThresholds returns the classifier defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GroundVel:   0.1,
		CruiseVel:   2.0,
		AltitudeMin: 5.0,
		ClimbVZ:     -0.1,
		DescendVZ:   0.1,
	}
}

// PhaseStats aggregates one phase of the flight.
type PhaseStats struct {
	Phase          Phase
	Duration       float64
	DrawMAh        float64
	AvgDrawMAhPerS float64
	// DiffOfAvgPct is the phase draw rate relative to the non-ground
	// average, in percent.
	DiffOfAvgPct float64
	PctOfFlight  float64
}

// Report is the full battery/phase analysis of one flight.
type Report struct {
	Phases              []PhaseStats
	TotalTime           float64
	TotalDrawMAh        float64
	DrawPerMinuteMAh    float64
	AvgDrawMAhPerS      float64
	NonGroundAvgMAhPerS float64
	Elapsed             time.Duration
}

// minPhaseDuration drops classification flicker: a phase shorter than this is
// treated as noise during consolidation.
const minPhaseDuration = 1.0

// Analyzer runs phase and battery analysis over telemetry.
type Analyzer struct {
	thresholds Thresholds
}

// New creates an Analyzer.
func New(thresholds Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// Classify maps one sample to its raw flight phase. Rules are ordered; the
// first match wins.
func (a *Analyzer) Classify(s TelemetrySample) Phase {
	t := a.thresholds
	horizontal := math.Hypot(s.VX, s.VY)

	switch {
	case math.Abs(s.VZ) < t.GroundVel && horizontal < t.GroundVel && s.Altitude < t.AltitudeMin:
		return PhaseGround
	case horizontal > t.CruiseVel && s.Altitude >= t.AltitudeMin:
		return PhaseCruising
	case s.VZ > t.DescendVZ:
		return PhaseDescending
	case s.VZ < t.ClimbVZ:
		return PhaseClimbing
	case math.Abs(s.VZ) < t.GroundVel && s.Altitude >= t.AltitudeMin:
		return PhaseHovering
	default:
		return PhaseUnknown
	}
}

// phaseSpan is one consolidated run of a single phase.
type phaseSpan struct {
	phase Phase
	start float64
	end   float64
}

// Analyze classifies every sample, consolidates runs shorter than a second
// away, and attributes battery draw per phase. Draw per sample is
// current (A) times the time delta (s) divided by 3.6, giving mAh.
func (a *Analyzer) Analyze(ctx context.Context, samples []TelemetrySample) (*Report, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 telemetry samples, got %d", model.ErrInsufficientPath, len(samples))
	}
	if err := ctx.Err(); err != nil {
		return nil, model.ErrCancelled
	}

	start := time.Now()

	// Per-sample deltas, phases and draw; zero-delta rows carry no energy
	// and are dropped, matching the upstream log shape.
	type row struct {
		time  float64
		delta float64
		phase Phase
		mAh   float64
	}
	rows := make([]row, 0, len(samples))
	for i := 1; i < len(samples); i++ {
		delta := samples[i].Time - samples[i-1].Time
		if delta <= 0 {
			continue
		}
		rows = append(rows, row{
			time:  samples[i].Time,
			delta: delta,
			phase: a.Classify(samples[i]),
			mAh:   samples[i].Current * delta / 3.6,
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: telemetry timestamps never advance", model.ErrInsufficientPath)
	}

	var spans []phaseSpan
	current := rows[0].phase
	spanStart := rows[0].time
	var runTime float64
	for _, r := range rows {
		if r.phase == current {
			runTime += r.delta
			continue
		}
		if runTime >= minPhaseDuration {
			spans = append(spans, phaseSpan{phase: current, start: spanStart, end: r.time})
		}
		current = r.phase
		spanStart = r.time
		runTime = r.delta
	}
	if runTime >= minPhaseDuration {
		spans = append(spans, phaseSpan{phase: current, start: spanStart, end: rows[len(rows)-1].time})
	}

	report := &Report{}
	var nonGroundDraw, nonGroundTime float64
	for _, r := range rows {
		report.TotalDrawMAh += r.mAh
		if r.phase != PhaseGround {
			nonGroundDraw += r.mAh
			nonGroundTime += r.delta
		}
	}
	report.TotalTime = rows[len(rows)-1].time - samples[0].Time
	if report.TotalTime > 0 {
		report.AvgDrawMAhPerS = report.TotalDrawMAh / report.TotalTime
		report.DrawPerMinuteMAh = report.TotalDrawMAh / (report.TotalTime / 60)
	}
	if nonGroundTime > 0 {
		report.NonGroundAvgMAhPerS = nonGroundDraw / nonGroundTime
	}

	// Per-span draw, then grouped per phase.
	type agg struct {
		duration, draw, avgSum, diffSum, pctSum float64
		spans                                   int
	}
	byPhase := make(map[Phase]*agg)
	for _, span := range spans {
		var spanDraw float64
		for _, r := range rows {
			if r.time >= span.start && r.time < span.end {
				spanDraw += r.mAh
			}
		}
		duration := span.end - span.start
		if duration <= 0 {
			continue
		}

		avgDraw := spanDraw / duration
		g, ok := byPhase[span.phase]
		if !ok {
			g = &agg{}
			byPhase[span.phase] = g
		}
		g.duration += duration
		g.draw += spanDraw
		g.avgSum += avgDraw
		if report.NonGroundAvgMAhPerS > 0 {
			g.diffSum += avgDraw / report.NonGroundAvgMAhPerS * 100
		}
		if report.TotalTime > 0 {
			g.pctSum += duration / report.TotalTime * 100
		}
		g.spans++
	}

	for phase, g := range byPhase {
		report.Phases = append(report.Phases, PhaseStats{
			Phase:          phase,
			Duration:       g.duration,
			DrawMAh:        g.draw,
			AvgDrawMAhPerS: g.avgSum / float64(g.spans),
			DiffOfAvgPct:   g.diffSum / float64(g.spans),
			PctOfFlight:    g.pctSum,
		})
	}
	sort.Slice(report.Phases, func(i, j int) bool {
		return report.Phases[i].Phase < report.Phases[j].Phase
	})

	report.Elapsed = time.Since(start)
	slog.Debug("Battery analysis complete",
		"samples", len(samples),
		"phases", len(report.Phases),
		"totalDrawMAh", report.TotalDrawMAh,
		"elapsed", report.Elapsed)

	return report, nil
}
