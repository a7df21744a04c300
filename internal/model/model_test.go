package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"EngineInfo", &EngineInfo{}, "engine_infos"},
		{"EnginePerformance", &EnginePerformance{}, "engine_performances"},
		{"Run", &Run{}, "runs"},
		{"Car", &Car{}, "cars"},
		{"CarState", &CarState{}, "car_states"},
		{"FrameStat", &FrameStat{}, "frame_stats"},
		{"BrakeEvent", &BrakeEvent{}, "brake_events"},
		{"ControlEvent", &ControlEvent{}, "control_events"},
		{"JamEvent", &JamEvent{}, "jam_events"},
		{"RunSummary", &RunSummary{}, "run_summaries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModelsCoverAllTables(t *testing.T) {
	assert.Len(t, DatabaseModels, 10)
	assert.Equal(t, len(DatabaseModels), len(DatabaseModelsSQLite))
}
