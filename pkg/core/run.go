// pkg/core/run.go
package core

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Run identifies one recorded simulation session.
type Run struct {
	ID        uint
	SessionID string // timestamp-derived, unique per process start
	TrackKind string // "circular" or "linear"
	Seed      int64
	CarCount  int
	TickRate  int
	StartTime time.Time

	// Georeferencing for map display: the plane origin on the globe and the
	// track course sampled as a web mercator line string. Both may be empty
	// when the run is not anchored.
	Location geom.Point
	Course   geom.LineString

	Params map[string]any // behavior constants in effect, kept for reproduction
}

// RunSummary captures end-of-run aggregates.
type RunSummary struct {
	RunID         uint
	EndTime       time.Time
	Duration      time.Duration
	TotalFrames   uint
	AvgTickRate   float64
	BrakeEvents   int
	ControlEvents int
	TrackSwitches int
	FinalStats    TrafficStats
}

// UploadMetadata describes a finished run archive for the dashboard upload.
type UploadMetadata struct {
	SessionID string
	TrackKind string
	Duration  float64 // seconds
	Tag       string
}
