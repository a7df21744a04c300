// Package control maps operator commands onto the simulation driver. Handlers
// run synchronously on the dispatching goroutine and take the driver lock, so
// every command lands between ticks and the driver never sees concurrent
// calls.
package control

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/phantomjam/engine/internal/cache"
	"github.com/phantomjam/engine/internal/detect"
	"github.com/phantomjam/engine/internal/dispatcher"
	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/recorder"
	"github.com/phantomjam/engine/internal/run"
	"github.com/phantomjam/engine/internal/sim"
	"github.com/phantomjam/engine/internal/storage"
	"github.com/phantomjam/engine/pkg/core"
)

// Dependencies holds everything the control handlers drive.
type Dependencies struct {
	// Driver is the simulation under control. Handlers take DriverLock for
	// every driver call; the tick loop holds it from Tick through Capture.
	Driver     *sim.Simulation
	DriverLock *sync.Mutex

	LogManager *logging.SlogManager
	RunContext *run.Context
	Recorder   *recorder.Service
	StatsCache *cache.StatsCache

	// Detector is cleared whenever the population respawns. Optional.
	Detector *detect.Detector
}

// Service wires operator commands to the simulation driver and records each
// one on the active backend.
type Service struct {
	deps    Dependencies
	backend storage.Backend
}

// NewService creates a new control service.
func NewService(deps Dependencies, backend storage.Backend) *Service {
	return &Service{
		deps:    deps,
		backend: backend,
	}
}

// RegisterHandlers registers all operator commands with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Driver mutations - sync (commands must land between ticks)
	d.Register(":PAUSE:TOGGLE:", s.handlePauseToggle, dispatcher.Logged())
	d.Register(":PAUSE:SET:", s.handlePauseSet, dispatcher.Logged())
	d.Register(":RESET:", s.handleReset, dispatcher.Logged())
	d.Register(":TRACK:SWITCH:", s.handleTrackSwitch, dispatcher.Logged())
	d.Register(":TIMESCALE:ADJUST:", s.handleTimeScaleAdjust, dispatcher.Logged())
	d.Register(":BRAKE:RANDOM:", s.handleBrakeRandom, dispatcher.Logged())

	// Read-only queries - polled at display rate, left unlogged
	d.Register(":STATS:", s.handleStats)
	d.Register(":SNAPSHOT:", s.handleSnapshot)
}

func (s *Service) handlePauseToggle(e dispatcher.Event) (any, error) {
	s.deps.DriverLock.Lock()
	paused := s.deps.Driver.TogglePause()
	s.deps.DriverLock.Unlock()

	s.recordControl("pause", strconv.FormatBool(paused))
	return paused, nil
}

func (s *Service) handlePauseSet(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("pause set needs a true/false argument")
	}
	paused, err := strconv.ParseBool(e.Args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse pause argument: %w", err)
	}

	s.deps.DriverLock.Lock()
	s.deps.Driver.SetPaused(paused)
	s.deps.DriverLock.Unlock()

	s.recordControl("pause", strconv.FormatBool(paused))
	return paused, nil
}

func (s *Service) handleReset(e dispatcher.Event) (any, error) {
	s.deps.DriverLock.Lock()
	s.deps.Driver.Reset()
	snap := s.deps.Driver.Snapshot()
	if s.deps.Detector != nil {
		s.deps.Detector.Reset()
	}
	s.deps.DriverLock.Unlock()

	// The respawn emptied the speed history, so the cached stats are stale
	// until the next measurement window fills.
	s.deps.StatsCache.Reset()
	s.recordControl("reset", "")

	if err := s.deps.Recorder.RegisterPopulation(snap); err != nil {
		return nil, fmt.Errorf("failed to register respawned cars: %w", err)
	}
	return nil, nil
}

func (s *Service) handleTrackSwitch(e dispatcher.Event) (any, error) {
	s.deps.DriverLock.Lock()
	kind := s.deps.Driver.SwitchTrack()
	snap := s.deps.Driver.Snapshot()
	if s.deps.Detector != nil {
		s.deps.Detector.Reset()
	}
	s.deps.DriverLock.Unlock()

	s.deps.RunContext.SetTrackKind(kind.String())
	s.recordControl("track_switch", kind.String())

	if err := s.deps.Recorder.RegisterPopulation(snap); err != nil {
		return nil, fmt.Errorf("failed to register respawned cars: %w", err)
	}
	return kind.String(), nil
}

func (s *Service) handleTimeScaleAdjust(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("timescale adjust needs a delta argument")
	}
	delta, err := strconv.ParseFloat(e.Args[0], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timescale delta: %w", err)
	}

	s.deps.DriverLock.Lock()
	scale := s.deps.Driver.AdjustTimeScale(delta)
	s.deps.DriverLock.Unlock()

	s.recordControl("timescale", strconv.FormatFloat(scale, 'f', 1, 64))
	return scale, nil
}

// handleBrakeRandom starts a manual brake on a random idle car. The onset
// reaches the backend through the tick drain, so nothing is recorded here.
func (s *Service) handleBrakeRandom(e dispatcher.Event) (any, error) {
	s.deps.DriverLock.Lock()
	id, ok := s.deps.Driver.TriggerRandomBrake()
	s.deps.DriverLock.Unlock()

	if !ok {
		return "none eligible", nil
	}
	return strconv.Itoa(id), nil
}

func (s *Service) handleStats(e dispatcher.Event) (any, error) {
	stats, _, ok := s.deps.StatsCache.Get()
	if !ok {
		return nil, fmt.Errorf("no stats recorded yet")
	}
	return stats, nil
}

func (s *Service) handleSnapshot(e dispatcher.Event) (any, error) {
	s.deps.DriverLock.Lock()
	snap := s.deps.Driver.Snapshot()
	s.deps.DriverLock.Unlock()

	return snap, nil
}

// recordControl writes one operator action to the backend, stamped with the
// current frame count. Write failures are logged, not returned.
func (s *Service) recordControl(action, value string) {
	ev := core.ControlEvent{
		RunID:  s.deps.RunContext.GetRunID(),
		Tick:   s.deps.Recorder.FrameCount(),
		Time:   time.Now(),
		Action: action,
		Value:  value,
	}
	if err := s.backend.RecordControlEvent(&ev); err != nil {
		s.deps.LogManager.Logger().Error("Failed to record control event", "action", action, "error", err)
	}
}
