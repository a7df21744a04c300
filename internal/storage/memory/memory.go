// internal/storage/memory/memory.go

// Package memory keeps an entire run resident in process memory and writes a
// single replay archive when the run ends. It is the zero-infrastructure
// backend: no database, no sockets, one file per run.
package memory

import (
	"fmt"
	"sync"

	"github.com/phantomjam/engine/internal/config"
	v1 "github.com/phantomjam/engine/internal/storage/memory/export/v1"
	"github.com/phantomjam/engine/pkg/core"
)

// Backend stores run data in memory and exports to JSON
type Backend struct {
	cfg config.MemoryConfig

	run     *core.Run
	summary *core.RunSummary

	cars map[int]*v1.CarRecord // keyed by slot

	times         []v1.TimeSample
	stats         []v1.StatSample
	brakeEvents   []core.BrakeEvent
	controlEvents []core.ControlEvent
	jamEvents     []core.JamEvent

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:  cfg,
		cars: make(map[int]*v1.CarRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun begins recording a new run, dropping everything held from the
// previous one.
func (b *Backend) StartRun(r *core.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = r
	b.summary = nil

	// Reset all collections
	b.cars = make(map[int]*v1.CarRecord)
	b.times = nil
	b.stats = nil
	b.brakeEvents = nil
	b.controlEvents = nil
	b.jamEvents = nil
	b.lastExportPath = ""

	return nil
}

// EndRun stores the summary and writes the replay archive.
func (b *Backend) EndRun(s *core.RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.run == nil {
		return fmt.Errorf("no run to end")
	}
	b.summary = s

	return b.exportJSON()
}

// AddCar registers a new car. Re-registering a slot replaces its timeline.
func (b *Backend) AddCar(c *core.CarRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cars[c.Slot] = &v1.CarRecord{
		Car:    *c,
		States: make([]v1.CarState, 0),
	}
	return nil
}

// GetCarBySlot looks up a registered car by its slot
func (b *Backend) GetCarBySlot(slot int) (*core.CarRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if record, ok := b.cars[slot]; ok {
		return &record.Car, true
	}
	return nil, false
}

// RecordFrame appends the frame's car samples and aggregate stats. Samples
// for slots that were never registered are silently dropped. A clock entry
// is only recorded when the time scale, pause state or track kind changed.
func (b *Backend) RecordFrame(f *core.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, fc := range f.Cars {
		record, ok := b.cars[fc.Slot]
		if !ok {
			continue
		}
		record.States = append(record.States, v1.CarState{Tick: f.Tick, State: fc})
	}

	b.stats = append(b.stats, v1.StatSample{Tick: f.Tick, Stats: f.Stats})

	if n := len(b.times); n == 0 ||
		b.times[n-1].TimeScale != f.TimeScale ||
		b.times[n-1].Paused != f.Paused ||
		b.times[n-1].TrackKind != f.TrackKind {
		b.times = append(b.times, v1.TimeSample{
			Tick:      f.Tick,
			Time:      f.Time,
			TimeScale: f.TimeScale,
			Paused:    f.Paused,
			TrackKind: f.TrackKind,
		})
	}

	return nil
}

// RecordBrakeEvent records a forced brake
func (b *Backend) RecordBrakeEvent(e *core.BrakeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.brakeEvents = append(b.brakeEvents, *e)
	return nil
}

// RecordControlEvent records an operator command
func (b *Backend) RecordControlEvent(e *core.ControlEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.controlEvents = append(b.controlEvents, *e)
	return nil
}

// RecordJamEvent records a congestion detection
func (b *Backend) RecordJamEvent(e *core.JamEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jamEvents = append(b.jamEvents, *e)
	return nil
}
