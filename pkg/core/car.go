// pkg/core/car.go
package core

import "time"

// CarRecord registers one car at creation time.
// Slot is the creation index and stays stable for the whole run;
// CarID is the display identity shown in logs and exports.
type CarRecord struct {
	RunID     uint
	Slot      int
	CarID     int
	Position  float64
	Speed     float64
	JoinTime  time.Time
	JoinFrame uint
}

// FrameCar is one car's state within a captured frame. X, Y and Heading are
// the plane projection of the track coordinate, filled by the recorder for
// display consumers.
type FrameCar struct {
	Slot     int
	CarID    int
	Position float64
	Speed    float64
	Braking  bool
	X        float64
	Y        float64
	Heading  float64 // degrees
}

// TrafficStats are the aggregate flow statistics for one frame.
// FlowPct is average speed as a percentage of the free-flow speed.
type TrafficStats struct {
	AvgSpeed   float64
	FlowPct    float64
	NumBraking int
	Congested  bool
}

// Frame is the full per-tick capture consumed by storage backends.
type Frame struct {
	RunID     uint
	Tick      uint
	Time      time.Time
	TrackKind string
	TimeScale float64
	Paused    bool
	Stats     TrafficStats
	Cars      []FrameCar
}
