// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/pkg/core"
)

// planePoint converts plane coordinates to a geom.Point column value.
func planePoint(x, y float64) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}})
}

// paramsToJSON converts a parameter map to datatypes.JSON for DB storage.
func paramsToJSON(params map[string]any) datatypes.JSON {
	if len(params) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(params)
	return datatypes.JSON(data)
}

// CoreToRun converts a core.Run to a GORM model.Run.
func CoreToRun(r core.Run) model.Run {
	return model.Run{
		Model:     gorm.Model{ID: r.ID},
		SessionID: r.SessionID,
		TrackKind: r.TrackKind,
		Seed:      r.Seed,
		CarCount:  r.CarCount,
		TickRate:  r.TickRate,
		StartTime: r.StartTime,
		Location:  r.Location,
		Course:    r.Course,
		Params:    paramsToJSON(r.Params),
	}
}

// CoreToCar converts a core.CarRecord to a GORM model.Car.
func CoreToCar(c core.CarRecord) model.Car {
	return model.Car{
		RunID:      c.RunID,
		Slot:       c.Slot,
		CarID:      c.CarID,
		JoinTime:   c.JoinTime,
		JoinFrame:  c.JoinFrame,
		SpawnPos:   c.Position,
		SpawnSpeed: c.Speed,
	}
}

// FrameToCarStates expands a captured frame into one CarState row per car.
func FrameToCarStates(f *core.Frame) []model.CarState {
	states := make([]model.CarState, 0, len(f.Cars))
	for _, c := range f.Cars {
		states = append(states, model.CarState{
			Time:          f.Time,
			RunID:         f.RunID,
			CaptureFrame:  f.Tick,
			Slot:          c.Slot,
			TrackPosition: c.Position,
			Position:      planePoint(c.X, c.Y),
			Heading:       float32(c.Heading),
			Speed:         c.Speed,
			Braking:       c.Braking,
		})
	}
	return states
}

// FrameToFrameStat converts a captured frame's aggregates to a GORM model.FrameStat.
func FrameToFrameStat(f *core.Frame) model.FrameStat {
	return model.FrameStat{
		Time:         f.Time,
		RunID:        f.RunID,
		CaptureFrame: f.Tick,
		TrackKind:    f.TrackKind,
		TimeScale:    float32(f.TimeScale),
		Paused:       f.Paused,
		AvgSpeed:     float32(f.Stats.AvgSpeed),
		FlowPct:      float32(f.Stats.FlowPct),
		NumBraking:   uint16(f.Stats.NumBraking),
		Congested:    f.Stats.Congested,
	}
}

// CoreToBrakeEvent converts a core.BrakeEvent to a GORM model.BrakeEvent.
func CoreToBrakeEvent(e core.BrakeEvent) model.BrakeEvent {
	return model.BrakeEvent{
		Time:         e.Time,
		RunID:        e.RunID,
		CaptureFrame: e.Tick,
		Slot:         e.Slot,
		CarID:        e.CarID,
		Position:     e.Position,
		Trigger:      e.Trigger,
	}
}

// CoreToControlEvent converts a core.ControlEvent to a GORM model.ControlEvent.
func CoreToControlEvent(e core.ControlEvent) model.ControlEvent {
	return model.ControlEvent{
		Time:         e.Time,
		RunID:        e.RunID,
		CaptureFrame: e.Tick,
		Action:       e.Action,
		Value:        e.Value,
		ExtraData:    datatypes.JSON("{}"),
	}
}

// CoreToJamEvent converts a core.JamEvent to a GORM model.JamEvent.
func CoreToJamEvent(e core.JamEvent) model.JamEvent {
	return model.JamEvent{
		Time:         e.Time,
		RunID:        e.RunID,
		CaptureFrame: e.Tick,
		Slot:         e.Slot,
		CarID:        e.CarID,
		Speed:        float32(e.Speed),
		Baseline:     float32(e.Baseline),
		Ratio:        float32(e.Ratio),
	}
}

// CoreToRunSummary converts a core.RunSummary to a GORM model.RunSummary.
func CoreToRunSummary(s core.RunSummary) model.RunSummary {
	return model.RunSummary{
		RunID:           s.RunID,
		EndTime:         s.EndTime,
		DurationSeconds: s.Duration.Seconds(),
		TotalFrames:     s.TotalFrames,
		AvgTickRate:     float32(s.AvgTickRate),
		BrakeEvents:     s.BrakeEvents,
		ControlEvents:   s.ControlEvents,
		TrackSwitches:   s.TrackSwitches,
		FinalAvgSpeed:   float32(s.FinalStats.AvgSpeed),
		FinalFlowPct:    float32(s.FinalStats.FlowPct),
		FinalCongested:  s.FinalStats.Congested,
	}
}
