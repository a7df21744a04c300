// Package v1 contains the v1 replay archive format for recorded runs.
// Cars and events are positional arrays so the web player can index them
// without key lookups.
package v1

// FormatVersion tags archives written by this package.
const FormatVersion = 1

// Export is the root JSON structure for v1 format
type Export struct {
	FormatVersion int            `json:"formatVersion"`
	SessionID     string         `json:"sessionId"`
	TrackKind     string         `json:"trackKind"`
	Seed          int64          `json:"seed"`
	CarCount      int            `json:"carCount"`
	TickRate      int            `json:"tickRate"`
	StartTimeUTC  string         `json:"startTimeUTC"`
	EndTick       uint           `json:"endTick"`
	Tag           string         `json:"tag,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	Times         []Time         `json:"times"`
	Cars          []Car          `json:"cars"`
	Stats         [][]any        `json:"stats"`
	Events        [][]any        `json:"events"`
	Summary       *Summary       `json:"summary,omitempty"`
}

// Time is one entry in the clock timeline. Entries are sparse: the backend
// records one whenever the time scale, pause state or track kind changes.
type Time struct {
	Tick          uint    `json:"tick"`
	SystemTimeUTC string  `json:"systemTimeUTC"`
	TimeScale     float64 `json:"timeScale"`
	Paused        int     `json:"paused"`
	TrackKind     string  `json:"trackKind"`
}

// Car is one car's recorded timeline.
// Positions rows are [tick, trackPos, speed, braking, [x, y], heading].
type Car struct {
	Slot      int     `json:"slot"`
	CarID     int     `json:"carId"`
	JoinTick  uint    `json:"joinTick"`
	Positions [][]any `json:"positions"`
}

// Summary mirrors the end-of-run aggregates recorded alongside the timeline.
type Summary struct {
	EndTimeUTC    string  `json:"endTimeUTC"`
	DurationSec   float64 `json:"durationSec"`
	TotalFrames   uint    `json:"totalFrames"`
	AvgTickRate   float64 `json:"avgTickRate"`
	BrakeEvents   int     `json:"brakeEvents"`
	ControlEvents int     `json:"controlEvents"`
	TrackSwitches int     `json:"trackSwitches"`
	FinalAvgSpeed float64 `json:"finalAvgSpeed"`
	FinalFlowPct  float64 `json:"finalFlowPct"`
}
