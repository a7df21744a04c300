// Package session writes run telemetry to a per-session set of plain files:
// a CSV of per-car frame rows, a JSON event log and a text summary.
// This is the operator-facing format: everything is readable with a text
// editor or a spreadsheet, no player or database required.
package session

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phantomjam/engine/internal/config"
	"github.com/phantomjam/engine/pkg/core"
)

// csvHeader is the column layout of the per-car frame rows.
var csvHeader = []string{
	"timestamp", "frame", "track_type", "simulation_speed", "paused",
	"avg_speed", "flow_percentage", "num_braking", "congested",
	"car_id", "car_position", "car_speed", "car_braking",
}

// sessionEvent is one entry in the events JSON log.
type sessionEvent struct {
	Timestamp string         `json:"timestamp"`
	Frame     uint           `json:"frame"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// Backend implements storage.Backend on a directory of session files.
type Backend struct {
	cfg config.SessionConfig

	mu         sync.Mutex
	run        *core.Run
	startTime  time.Time
	frameCount uint // recorded frames, not simulation ticks
	events     []sessionEvent

	csvFile   *os.File
	csvWriter *csv.Writer

	csvPath     string
	eventsPath  string
	summaryPath string
}

// New creates a session-directory storage backend.
func New(cfg config.SessionConfig) *Backend {
	return &Backend{cfg: cfg}
}

func (b *Backend) Init() error {
	return nil
}

// Close flushes and closes the CSV file if EndRun was never called.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeCSV()
}

// StartRun opens the session files named after the run's session ID and
// writes the CSV header. A second call starts a fresh session.
func (b *Backend) StartRun(r *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.closeCSV(); err != nil {
		return err
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	b.run = r
	b.startTime = r.StartTime
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.frameCount = 0
	b.events = nil

	b.csvPath = filepath.Join(b.cfg.OutputDir, fmt.Sprintf("traffic_data_%s.csv", r.SessionID))
	b.eventsPath = filepath.Join(b.cfg.OutputDir, fmt.Sprintf("events_%s.json", r.SessionID))
	b.summaryPath = filepath.Join(b.cfg.OutputDir, fmt.Sprintf("summary_%s.txt", r.SessionID))

	f, err := os.Create(b.csvPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	b.csvFile = f
	b.csvWriter = csv.NewWriter(f)

	if err := b.csvWriter.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	b.csvWriter.Flush()
	return b.csvWriter.Error()
}

// EndRun writes the session summary and closes the CSV file.
func (b *Backend) EndRun(s *core.RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return fmt.Errorf("no run to end")
	}

	duration := s.Duration
	if duration <= 0 {
		duration = time.Since(b.startTime)
	}

	summary := b.buildSummary(duration)
	if err := os.WriteFile(b.summaryPath, []byte(summary), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	return b.closeCSV()
}

// AddCar is a no-op: car identity travels in every frame row.
func (b *Backend) AddCar(c *core.CarRecord) error {
	return nil
}

// RecordFrame appends one CSV row per car. The frame column is this logger's
// own call counter, which only advances when a frame is actually recorded.
func (b *Backend) RecordFrame(f *core.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.csvWriter == nil {
		return fmt.Errorf("no run started")
	}

	b.frameCount++
	timestamp := f.Time.Format(time.RFC3339Nano)
	frame := strconv.FormatUint(uint64(b.frameCount), 10)

	for _, car := range f.Cars {
		row := []string{
			timestamp,
			frame,
			f.TrackKind,
			formatFloat(f.TimeScale),
			strconv.FormatBool(f.Paused),
			formatFloat(f.Stats.AvgSpeed),
			formatFloat(f.Stats.FlowPct),
			strconv.Itoa(f.Stats.NumBraking),
			strconv.FormatBool(f.Stats.Congested),
			strconv.Itoa(car.CarID),
			formatFloat(car.Position),
			formatFloat(car.Speed),
			strconv.FormatBool(car.Braking),
		}
		if err := b.csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	b.csvWriter.Flush()
	return b.csvWriter.Error()
}

// RecordBrakeEvent appends a brake_event entry to the events log.
func (b *Backend) RecordBrakeEvent(e *core.BrakeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendEvent("brake_event", map[string]any{
		"car_id":       e.CarID,
		"car_position": e.Position,
		"trigger_type": e.Trigger,
		"frame":        b.frameCount,
	})
}

// RecordControlEvent appends a simulation_control entry, or a track_switch
// entry when the action is a topology change.
func (b *Backend) RecordControlEvent(e *core.ControlEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e.Action == "track_switch" {
		return b.appendEvent("track_switch", map[string]any{
			"track": e.Value,
		})
	}
	return b.appendEvent("simulation_control", map[string]any{
		"action": e.Action,
		"value":  e.Value,
	})
}

// RecordJamEvent appends a jam_detection entry to the events log.
func (b *Backend) RecordJamEvent(e *core.JamEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendEvent("jam_detection", map[string]any{
		"car_id":   e.CarID,
		"speed":    e.Speed,
		"baseline": e.Baseline,
		"ratio":    e.Ratio,
	})
}

// appendEvent adds an event and rewrites the whole events file, so a crash
// cannot lose the log. Callers must hold b.mu.
func (b *Backend) appendEvent(eventType string, data map[string]any) error {
	if b.run == nil {
		return fmt.Errorf("no run started")
	}

	b.events = append(b.events, sessionEvent{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Frame:     b.frameCount,
		EventType: eventType,
		Data:      data,
	})

	out, err := json.MarshalIndent(b.events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(b.eventsPath, out, 0644); err != nil {
		return fmt.Errorf("failed to write events file: %w", err)
	}
	return nil
}

// buildSummary renders the session summary text. Callers must hold b.mu.
func (b *Backend) buildSummary(duration time.Duration) string {
	brakeEvents := 0
	trackSwitches := 0
	brakeTypes := map[string]int{}
	for _, e := range b.events {
		switch e.EventType {
		case "brake_event":
			brakeEvents++
			trigger, _ := e.Data["trigger_type"].(string)
			if trigger == "" {
				trigger = "unknown"
			}
			brakeTypes[trigger]++
		case "track_switch":
			trackSwitches++
		}
	}

	avgFPS := 0.0
	if duration.Seconds() > 0 {
		avgFPS = float64(b.frameCount) / duration.Seconds()
	}

	var sb strings.Builder
	sb.WriteString("\nTRAFFIC SIMULATION SESSION SUMMARY\n")
	sb.WriteString("=================================\n")
	fmt.Fprintf(&sb, "Session ID: %s\n", b.run.SessionID)
	fmt.Fprintf(&sb, "Start Time: %s\n", b.startTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Duration: %s\n", duration)
	fmt.Fprintf(&sb, "Total Frames: %d\n", b.frameCount)
	fmt.Fprintf(&sb, "Average FPS: %.1f\n", avgFPS)
	sb.WriteString("\nEVENTS SUMMARY\n")
	sb.WriteString("=============\n")
	fmt.Fprintf(&sb, "Total Events: %d\n", len(b.events))
	fmt.Fprintf(&sb, "Brake Events: %d\n", brakeEvents)
	fmt.Fprintf(&sb, "Track Switches: %d\n", trackSwitches)
	sb.WriteString("\nBRAKE EVENTS BREAKDOWN\n")
	sb.WriteString("=====================\n")
	if brakeEvents > 0 {
		for trigger, count := range brakeTypes {
			fmt.Fprintf(&sb, "%s brakes: %d\n", capitalize(trigger), count)
		}
	} else {
		sb.WriteString("No brake events recorded\n")
	}
	sb.WriteString("\nFILES GENERATED\n")
	sb.WriteString("===============\n")
	fmt.Fprintf(&sb, "Traffic Data CSV: %s\n", b.csvPath)
	fmt.Fprintf(&sb, "Events JSON: %s\n", b.eventsPath)
	fmt.Fprintf(&sb, "Summary: %s\n", b.summaryPath)

	return sb.String()
}

// closeCSV flushes and closes the CSV file. Callers must hold b.mu.
func (b *Backend) closeCSV() error {
	if b.csvFile == nil {
		return nil
	}
	b.csvWriter.Flush()
	flushErr := b.csvWriter.Error()
	closeErr := b.csvFile.Close()
	b.csvFile = nil
	b.csvWriter = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
