// pkg/core/events.go
package core

import "time"

// Brake trigger types.
const (
	TriggerManual = "manual"
	TriggerRandom = "random"
)

// BrakeEvent records a forced brake starting on a car.
type BrakeEvent struct {
	RunID    uint
	Tick     uint
	Time     time.Time
	Slot     int
	CarID    int
	Position float64
	Trigger  string // TriggerManual or TriggerRandom
}

// ControlEvent records an operator command reaching the driver
// (pause, reset, track switch, time-scale change).
type ControlEvent struct {
	RunID  uint
	Tick   uint
	Time   time.Time
	Action string
	Value  string
}

// JamEvent records a congestion detection latching on a car.
type JamEvent struct {
	RunID    uint
	Tick     uint
	Time     time.Time
	Slot     int
	CarID    int
	Speed    float64
	Baseline float64
	Ratio    float64
}
