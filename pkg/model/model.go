package model

import (
	"time"

	"github.com/paulmach/orb"
)

// AltitudeMode describes how a waypoint's altitude value is interpreted.
type AltitudeMode int

const (
	// AltitudeAbsolute means the altitude is AMSL as given.
	AltitudeAbsolute AltitudeMode = iota
	// AltitudeRelative means the altitude is an offset above the takeoff
	// ground elevation.
	AltitudeRelative
	// AltitudeTerrainFollowing means the altitude is an offset above the
	// ground directly beneath each point.
	AltitudeTerrainFollowing
)

func (m AltitudeMode) String() string {
	switch m {
	case AltitudeAbsolute:
		return "absolute"
	case AltitudeRelative:
		return "relative"
	case AltitudeTerrainFollowing:
		return "terrain"
	default:
		return "unknown"
	}
}

// ParseAltitudeMode maps a mode string (as found in plan files) to an AltitudeMode.
func ParseAltitudeMode(s string) (AltitudeMode, bool) {
	switch s {
	case "absolute", "amsl":
		return AltitudeAbsolute, true
	case "relative", "agl":
		return AltitudeRelative, true
	case "terrain", "terrain_following":
		return AltitudeTerrainFollowing, true
	default:
		return AltitudeAbsolute, false
	}
}

// Coordinate is a geographic position in degrees.
type Coordinate struct {
	Lon float64
	Lat float64
}

// Coordinate3D adds an altitude in meters. The reference frame is AMSL
// unless the surrounding AltitudeMode says otherwise.
type Coordinate3D struct {
	Lon float64
	Lat float64
	Alt float64
}

// Coordinate returns the horizontal part of the position.
func (c Coordinate3D) Coordinate() Coordinate {
	return Coordinate{Lon: c.Lon, Lat: c.Lat}
}

// Waypoint is one vertex of a flight plan. Command and Frame carry raw plan
// metadata that the analysis core does not interpret.
type Waypoint struct {
	Index    int
	Position Coordinate3D
	Mode     AltitudeMode
	Command  int
	Frame    int
}

// SamplePoint is one resampled point along a flight path.
//
// Position.Alt holds the raw interpolated plan altitude; FlightElevation is
// the resolved AMSL altitude and TerrainElevation the ground beneath it, both
// filled by the clearance pass. TerrainElevation is nil until filled.
type SamplePoint struct {
	Position          Coordinate3D
	Mode              AltitudeMode
	DistanceFromStart float64
	FlightElevation   float64
	TerrainElevation  *float64
	Clearance         float64
	Synthetic         bool
}

// ClearanceResult is the outcome of a terrain clearance analysis.
type ClearanceResult struct {
	ID                    string
	Samples               []SamplePoint
	MinimumClearance      float64
	CriticalPointDistance float64
	HighestObstacle       float64
	Collisions            []SamplePoint
	Degraded              bool
	AnalysisTime          time.Duration
}

// LOSResult is the outcome of a single line-of-sight query. The fraction and
// distance are nil when the sight line is clear.
type LOSResult struct {
	Clear               bool
	ObstructionFraction *float64
	ObstructionDistance *float64
}

// LOSProfilePoint is one sample of a terrain/sight-line profile. Used for
// charting only, never for the pass/fail decision.
type LOSProfilePoint struct {
	Distance          float64
	TerrainElevation  float64
	SightLineAltitude float64
}

// Station is a fixed vantage point. Position.Alt is a height-above-ground
// offset, not AMSL.
type Station struct {
	ID       string
	Name     string
	Kind     string
	Position Coordinate3D
}

// GridCell is one cell of a coverage grid. Visibility is keyed by station ID.
// Cells are only ever replaced by re-running grid generation, never patched
// in place.
type GridCell struct {
	ID         string
	Center     Coordinate
	Ring       orb.Ring
	Elevation  float64
	Visibility map[string]bool
}

// Visible reports whether any station sees the cell.
func (c *GridCell) Visible() bool {
	for _, v := range c.Visibility {
		if v {
			return true
		}
	}
	return false
}

// CoverageResult is the per-station input to a coverage merge: grid cells
// flagged under the station's ID, plus an optional viewshed footprint.
type CoverageResult struct {
	StationID string
	Cells     []GridCell
	Polygon   orb.Polygon
	Elapsed   time.Duration
}

// MergedCoverage is the union of several CoverageResults.
type MergedCoverage struct {
	ID                string
	Cells             []GridCell
	VisibleCells      int
	TotalCells        int
	AverageVisibility float64
	Union             orb.MultiPolygon
	SkippedUnions     int
	AnalysisTimeMs    int64
}

// ProgressFunc receives a 0-100 percentage during long-running phases.
// Returning false cancels the operation at the next step boundary.
type ProgressFunc func(percent int) bool
