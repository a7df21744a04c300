package v1

import (
	"time"

	"github.com/phantomjam/engine/pkg/core"
)

// RunData contains all the data needed to build an export
type RunData struct {
	Run     *core.Run
	Summary *core.RunSummary

	Cars map[int]*CarRecord

	Times         []TimeSample
	Stats         []StatSample
	BrakeEvents   []core.BrakeEvent
	ControlEvents []core.ControlEvent
	JamEvents     []core.JamEvent
}

// CarRecord groups a car with all its time-series data
type CarRecord struct {
	Car    core.CarRecord
	States []CarState
}

// CarState pairs one captured car sample with the tick it was taken on
type CarState struct {
	Tick  uint
	State core.FrameCar
}

// TimeSample is one recorded clock change
type TimeSample struct {
	Tick      uint
	Time      time.Time
	TimeScale float64
	Paused    bool
	TrackKind string
}

// StatSample is one frame's aggregate traffic measurement
type StatSample struct {
	Tick  uint
	Stats core.TrafficStats
}

const systemTimeLayout = "2006-01-02T15:04:05.000"

// Build creates an Export from the run data
func Build(data *RunData) Export {
	export := Export{
		FormatVersion: FormatVersion,
		SessionID:     data.Run.SessionID,
		TrackKind:     data.Run.TrackKind,
		Seed:          data.Run.Seed,
		CarCount:      data.Run.CarCount,
		TickRate:      data.Run.TickRate,
		StartTimeUTC:  data.Run.StartTime.UTC().Format(systemTimeLayout),
		Params:        data.Run.Params,
		Times:         make([]Time, 0, len(data.Times)),
		Cars:          make([]Car, 0),
		Stats:         make([][]any, 0, len(data.Stats)),
		Events:        make([][]any, 0),
	}

	// Convert clock samples
	for _, ts := range data.Times {
		export.Times = append(export.Times, Time{
			Tick:          ts.Tick,
			SystemTimeUTC: ts.Time.UTC().Format(systemTimeLayout),
			TimeScale:     ts.TimeScale,
			Paused:        boolToInt(ts.Paused),
			TrackKind:     ts.TrackKind,
		})
	}

	var maxTick uint = 0

	// Find max slot to size the cars array correctly
	// The player uses cars[slot] to look up cars, so array index must equal slot
	maxSlot := 0
	hasCars := len(data.Cars) > 0
	for _, record := range data.Cars {
		if record.Car.Slot > maxSlot {
			maxSlot = record.Car.Slot
		}
	}

	// Create cars array with placeholder entries
	// Index N will contain the car in slot N
	if hasCars {
		export.Cars = make([]Car, maxSlot+1)
	}

	// Convert cars - place at index matching their slot
	for _, record := range data.Cars {
		car := Car{
			Slot:      record.Car.Slot,
			CarID:     record.Car.CarID,
			JoinTick:  record.Car.JoinFrame,
			Positions: make([][]any, 0, len(record.States)),
		}

		for _, state := range record.States {
			pos := []any{
				state.Tick,
				state.State.Position,
				state.State.Speed,
				boolToInt(state.State.Braking),
				[]float64{state.State.X, state.State.Y},
				state.State.Heading,
			}
			car.Positions = append(car.Positions, pos)
			if state.Tick > maxTick {
				maxTick = state.Tick
			}
		}

		export.Cars[record.Car.Slot] = car
	}

	// Convert stats
	// Format: [tick, avgSpeed, flowPct, numBraking, congested]
	for _, s := range data.Stats {
		export.Stats = append(export.Stats, []any{
			s.Tick,
			s.Stats.AvgSpeed,
			s.Stats.FlowPct,
			s.Stats.NumBraking,
			boolToInt(s.Stats.Congested),
		})
		if s.Tick > maxTick {
			maxTick = s.Tick
		}
	}

	export.EndTick = maxTick

	// Convert brake events
	// Format: [tick, "brake", carId, trigger, trackPos]
	for _, evt := range data.BrakeEvents {
		export.Events = append(export.Events, []any{
			evt.Tick,
			"brake",
			evt.CarID,
			evt.Trigger,
			evt.Position,
		})
	}

	// Convert control events
	// Format: [tick, "control", action, value]
	for _, evt := range data.ControlEvents {
		export.Events = append(export.Events, []any{
			evt.Tick,
			"control",
			evt.Action,
			evt.Value,
		})
	}

	// Convert jam events
	// Format: [tick, "jam", carId, speed, baseline, ratio]
	for _, evt := range data.JamEvents {
		export.Events = append(export.Events, []any{
			evt.Tick,
			"jam",
			evt.CarID,
			evt.Speed,
			evt.Baseline,
			evt.Ratio,
		})
	}

	if data.Summary != nil {
		export.Summary = &Summary{
			EndTimeUTC:    data.Summary.EndTime.UTC().Format(systemTimeLayout),
			DurationSec:   data.Summary.Duration.Seconds(),
			TotalFrames:   data.Summary.TotalFrames,
			AvgTickRate:   data.Summary.AvgTickRate,
			BrakeEvents:   data.Summary.BrakeEvents,
			ControlEvents: data.Summary.ControlEvents,
			TrackSwitches: data.Summary.TrackSwitches,
			FinalAvgSpeed: data.Summary.FinalStats.AvgSpeed,
			FinalFlowPct:  data.Summary.FinalStats.FlowPct,
		}
	}

	return export
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
