package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&EngineInfo{},
	&Run{},
	&Car{},
	&CarState{},
	&FrameStat{},
	&BrakeEvent{},
	&ControlEvent{},
	&JamEvent{},
	&RunSummary{},
	&EnginePerformance{},
}

var DatabaseModelsSQLite = []interface{}{
	&EngineInfo{},
	&Run{},
	&Car{},
	&CarState{},
	&FrameStat{},
	&BrakeEvent{},
	&ControlEvent{},
	&JamEvent{},
	&RunSummary{},
	&EnginePerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// EngineInfo contains information about the engine instance
type EngineInfo struct {
	gorm.Model
	InstanceName string `json:"instanceName" gorm:"size:127"`
	Description  string `json:"description" gorm:"size:255"`
	Website      string `json:"websiteURL" gorm:"size:255"`
}

func (*EngineInfo) TableName() string {
	return "engine_infos"
}

// EnginePerformance is the model for engine performance metrics
type EnginePerformance struct {
	Time                time.Time         `json:"time" gorm:"type:timestamptz;index:idx_time"`
	RunID               uint              `json:"runId" gorm:"index:idx_engineperformance_run_id"`
	Run                 Run               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	TickRate            float32           `json:"tickRate"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*EnginePerformance) TableName() string {
	return "engine_performances"
}

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Cars          uint16 `json:"cars"`
	CarStates     uint16 `json:"carStates"`
	FrameStats    uint16 `json:"frameStats"`
	BrakeEvents   uint16 `json:"brakeEvents"`
	ControlEvents uint16 `json:"controlEvents"`
	JamEvents     uint16 `json:"jamEvents"`
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Run is the main model for a recorded simulation session
type Run struct {
	gorm.Model
	SessionID     string          `json:"sessionId" gorm:"size:64;index:idx_run_session_id"`
	TrackKind     string          `json:"trackKind" gorm:"size:16"`              // topology at start: circular or linear
	Seed          int64           `json:"seed"`
	CarCount      int             `json:"carCount"`
	TickRate      int             `json:"tickRate"`
	StartTime     time.Time       `json:"startTime" gorm:"type:timestamptz;index:idx_run_start"`
	Location      geom.Point      `json:"location"`
	Course        geom.LineString `json:"course"`
	EngineVersion string          `json:"engineVersion" gorm:"size:64;default:1.0.0"`
	Tag           string          `json:"tag" gorm:"size:127"`
	Params        datatypes.JSON  `json:"params" gorm:"type:jsonb;default:'{}'"` // behavior constants in effect

	Cars          []Car
	FrameStats    []FrameStat
	BrakeEvents   []BrakeEvent
	ControlEvents []ControlEvent
	JamEvents     []JamEvent
}

func (*Run) TableName() string {
	return "runs"
}

func (r *Run) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existingRun Run
	err = db.Where("session_id = ?", r.SessionID).First(&existingRun).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// insert
			err = db.Create(r).Error
			return true, err
		}
		return false, err
	}
	// overwrite with db record if found
	*r = existingRun
	return false, nil
}

// Car is one agent on the track
// Uses composite primary key (RunID, Slot) - Slot is the creation index and
// never changes; CarID is the randomized display identity
type Car struct {
	RunID      uint      `json:"runId" gorm:"primaryKey;autoIncrement:false"`
	Slot       int       `json:"slot" gorm:"primaryKey;autoIncrement:false"`
	Run        Run       `gorm:"foreignkey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	JoinTime   time.Time `json:"joinTime" gorm:"type:timestamptz;NOT NULL;index:idx_car_join_time"` // Wall-clock time when the car was spawned
	JoinFrame  uint      `json:"joinFrame"`                                                         // Frame number when the car was spawned
	CarID      int       `json:"carId" gorm:"index:idx_car_car_id"`                                 // Display identity (100-999)
	SpawnPos   float64   `json:"spawnPos"`                                                          // Track coordinate at spawn
	SpawnSpeed float64   `json:"spawnSpeed"`                                                        // Speed at spawn
}

func (*Car) TableName() string {
	return "cars"
}

// CarState tracks car state at a point in time
// References Car by (RunID, Slot) composite FK
type CarState struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;"`                        // Wall-clock time when state was recorded
	RunID        uint      `json:"runId" gorm:"index:idx_carstate_run_id"`
	Run          Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_carstate_capture_frame"` // Frame number in recording timeline
	Slot         int       `json:"slot" gorm:"index:idx_carstate_slot"`                  // Creation index of the car
	Car          Car       `gorm:"foreignkey:RunID,Slot;references:RunID,Slot;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	TrackPosition float64    `json:"trackPosition"`                 // 1-D track coordinate
	Position      geom.Point `json:"position"`                      // Plane projection of the track coordinate
	Heading       float32    `json:"heading"`                       // Travel direction in degrees
	Speed         float64    `json:"speed"`                         // Current speed in track units per tick
	Braking       bool       `json:"braking" gorm:"default:false"`  // Whether the brake indicator is lit
}

func (*CarState) TableName() string {
	return "car_states"
}

// FrameStat records per-frame aggregate traffic statistics
type FrameStat struct {
	Time         time.Time `json:"time" gorm:"type:timestamptz;"`                          // Wall-clock time when measurement taken
	RunID        uint      `json:"runId" gorm:"index:idx_framestat_run_id"`
	Run          Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_framestat_capture_frame;"` // Frame number when measurement taken
	TrackKind    string    `json:"trackKind" gorm:"size:16"`                               // Topology in effect (may change on switch)
	TimeScale    float32   `json:"timeScale"`                                              // Simulation speed multiplier in effect
	Paused       bool      `json:"paused"`                                                 // Whether the simulation was paused
	AvgSpeed     float32   `json:"avgSpeed"`                                               // Mean speed across all cars
	FlowPct      float32   `json:"flowPct"`                                                // Mean speed as percent of the free-flow speed
	NumBraking   uint16    `json:"numBraking"`                                             // Cars with lit brake indicators
	Congested    bool      `json:"congested"`                                              // Whether flow dropped under the congestion threshold
}

func (*FrameStat) TableName() string {
	return "frame_stats"
}

// BrakeEvent captures a forced brake starting on a car
type BrakeEvent struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;"`                            // Wall-clock time when the brake started
	RunID        uint      `json:"runId" gorm:"index:idx_brakeevent_run_id"`
	Run          Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_brakeevent_capture_frame;"`  // Frame number when the brake started
	Slot         int       `json:"slot" gorm:"index:idx_brakeevent_slot"`                    // Creation index of the braking car
	CarID        int       `json:"carId"`                                                    // Display identity of the braking car
	Position     float64   `json:"position"`                                                 // Track coordinate when the brake started
	Trigger      string    `json:"trigger" gorm:"size:16"`                                   // manual or random
}

func (*BrakeEvent) TableName() string {
	return "brake_events"
}

// ControlEvent records an operator command reaching the simulation
//
// Dispatcher commands: :PAUSE:TOGGLE:, :PAUSE:SET:, :RESET:, :TRACK:SWITCH:,
// :TIMESCALE:ADJUST:, :BRAKE:RANDOM:
type ControlEvent struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time      `json:"time" gorm:"type:timestamptz;"`                             // Wall-clock time when the command arrived
	RunID        uint           `json:"runId" gorm:"index:idx_controlevent_run_id"`
	Run          Run            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	CaptureFrame uint           `json:"captureFrame" gorm:"index:idx_controlevent_capture_frame;"` // Frame number when the command arrived
	Action       string         `json:"action" gorm:"size:64"`                                     // Command name
	Value        string         `json:"value" gorm:"size:64"`                                      // Command argument, if any
	ExtraData    datatypes.JSON `json:"extraData" gorm:"type:jsonb;default:'{}'"`                  // Additional JSON data
}

func (*ControlEvent) TableName() string {
	return "control_events"
}

// JamEvent captures a congestion detection latching on a car
type JamEvent struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz;"`                          // Wall-clock time when the detection fired
	RunID        uint      `json:"runId" gorm:"index:idx_jamevent_run_id"`
	Run          Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	CaptureFrame uint      `json:"captureFrame" gorm:"index:idx_jamevent_capture_frame;"`  // Frame number when the detection fired
	Slot         int       `json:"slot" gorm:"index:idx_jamevent_slot"`                    // Creation index of the detected car
	CarID        int       `json:"carId"`                                                  // Display identity of the detected car
	Speed        float32   `json:"speed"`                                                  // Displacement per tick at detection time
	Baseline     float32   `json:"baseline"`                                               // Established free-flow displacement baseline
	Ratio        float32   `json:"ratio"`                                                  // Speed over baseline at detection time
}

func (*JamEvent) TableName() string {
	return "jam_events"
}

// RunSummary captures end-of-run aggregates
type RunSummary struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	RunID           uint      `json:"runId" gorm:"index:idx_runsummary_run_id"`
	Run             Run       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	EndTime         time.Time `json:"endTime" gorm:"type:timestamptz;"`
	DurationSeconds float64   `json:"durationSeconds"`
	TotalFrames     uint      `json:"totalFrames"`
	AvgTickRate     float32   `json:"avgTickRate"`

	BrakeEvents    int     `json:"brakeEvents"`
	ControlEvents  int     `json:"controlEvents"`
	TrackSwitches  int     `json:"trackSwitches"`
	FinalAvgSpeed  float32 `json:"finalAvgSpeed"`
	FinalFlowPct   float32 `json:"finalFlowPct"`
	FinalCongested bool    `json:"finalCongested"`
}

func (*RunSummary) TableName() string {
	return "run_summaries"
}
