// Package convert provides functions to convert GORM models to core models
package convert

import (
	"encoding/json"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/pkg/core"
)

// pointToPlane extracts plane coordinates from a geom.Point column.
func pointToPlane(p geom.Point) (x, y float64) {
	coord, ok := p.Coordinates()
	if !ok {
		return 0, 0
	}
	return coord.XY.X, coord.XY.Y
}

// RunToCore converts a GORM model.Run to a core.Run.
func RunToCore(r *model.Run) core.Run {
	var params map[string]any
	if len(r.Params) > 0 {
		_ = json.Unmarshal(r.Params, &params)
	}

	return core.Run{
		ID:        r.ID,
		SessionID: r.SessionID,
		TrackKind: r.TrackKind,
		Seed:      r.Seed,
		CarCount:  r.CarCount,
		TickRate:  r.TickRate,
		StartTime: r.StartTime,
		Location:  r.Location,
		Course:    r.Course,
		Params:    params,
	}
}

// CarToCore converts a GORM model.Car to a core.CarRecord.
func CarToCore(c model.Car) core.CarRecord {
	return core.CarRecord{
		RunID:     c.RunID,
		Slot:      c.Slot,
		CarID:     c.CarID,
		Position:  c.SpawnPos,
		Speed:     c.SpawnSpeed,
		JoinTime:  c.JoinTime,
		JoinFrame: c.JoinFrame,
	}
}

// CarStateToFrameCar converts a GORM model.CarState to a core.FrameCar.
// CarID is not stored on state rows; callers join the cars table when they
// need the display identity.
func CarStateToFrameCar(s model.CarState) core.FrameCar {
	x, y := pointToPlane(s.Position)
	return core.FrameCar{
		Slot:     s.Slot,
		Position: s.TrackPosition,
		Speed:    s.Speed,
		Braking:  s.Braking,
		X:        x,
		Y:        y,
		Heading:  float64(s.Heading),
	}
}

// RowsToFrame composes a frame's aggregate row and its car state rows back
// into the core.Frame the recorder originally captured. Used by the export
// path when reading a finished run out of the database.
func RowsToFrame(stat model.FrameStat, states []model.CarState) *core.Frame {
	cars := make([]core.FrameCar, 0, len(states))
	for _, s := range states {
		cars = append(cars, CarStateToFrameCar(s))
	}

	return &core.Frame{
		RunID:     stat.RunID,
		Tick:      stat.CaptureFrame,
		Time:      stat.Time,
		TrackKind: stat.TrackKind,
		TimeScale: float64(stat.TimeScale),
		Paused:    stat.Paused,
		Stats: core.TrafficStats{
			AvgSpeed:   float64(stat.AvgSpeed),
			FlowPct:    float64(stat.FlowPct),
			NumBraking: int(stat.NumBraking),
			Congested:  stat.Congested,
		},
		Cars: cars,
	}
}

// BrakeEventToCore converts a GORM model.BrakeEvent to a core.BrakeEvent.
func BrakeEventToCore(e model.BrakeEvent) core.BrakeEvent {
	return core.BrakeEvent{
		RunID:    e.RunID,
		Tick:     e.CaptureFrame,
		Time:     e.Time,
		Slot:     e.Slot,
		CarID:    e.CarID,
		Position: e.Position,
		Trigger:  e.Trigger,
	}
}

// ControlEventToCore converts a GORM model.ControlEvent to a core.ControlEvent.
func ControlEventToCore(e model.ControlEvent) core.ControlEvent {
	return core.ControlEvent{
		RunID:  e.RunID,
		Tick:   e.CaptureFrame,
		Time:   e.Time,
		Action: e.Action,
		Value:  e.Value,
	}
}

// JamEventToCore converts a GORM model.JamEvent to a core.JamEvent.
func JamEventToCore(e model.JamEvent) core.JamEvent {
	return core.JamEvent{
		RunID:    e.RunID,
		Tick:     e.CaptureFrame,
		Time:     e.Time,
		Slot:     e.Slot,
		CarID:    e.CarID,
		Speed:    float64(e.Speed),
		Baseline: float64(e.Baseline),
		Ratio:    float64(e.Ratio),
	}
}

// RunSummaryToCore converts a GORM model.RunSummary to a core.RunSummary.
func RunSummaryToCore(s model.RunSummary) core.RunSummary {
	return core.RunSummary{
		RunID:         s.RunID,
		EndTime:       s.EndTime,
		Duration:      time.Duration(s.DurationSeconds * float64(time.Second)),
		TotalFrames:   s.TotalFrames,
		AvgTickRate:   float64(s.AvgTickRate),
		BrakeEvents:   s.BrakeEvents,
		ControlEvents: s.ControlEvents,
		TrackSwitches: s.TrackSwitches,
		FinalStats: core.TrafficStats{
			AvgSpeed:  float64(s.FinalAvgSpeed),
			FlowPct:   float64(s.FinalFlowPct),
			Congested: s.FinalCongested,
		},
	}
}
