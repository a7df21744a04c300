// Package recorder fans one simulation tick out to every recording consumer:
// the storage backend, the stats cache, the jam detector and the optional
// influx writer. Captures are buffered and a background writer drains them,
// so disk and network writes never block the tick loop.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phantomjam/engine/internal/cache"
	"github.com/phantomjam/engine/internal/detect"
	"github.com/phantomjam/engine/internal/influx"
	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/internal/queue"
	"github.com/phantomjam/engine/internal/run"
	"github.com/phantomjam/engine/internal/sim"
	"github.com/phantomjam/engine/internal/storage"
	"github.com/phantomjam/engine/pkg/core"
)

// Dependencies holds all dependencies for the recorder service.
// Backend, LogManager, RunContext and StatsCache must be non-nil. A nil
// Detector disables jam detection, a nil Influx disables stats points.
type Dependencies struct {
	Backend    storage.Backend
	LogManager *logging.SlogManager
	RunContext *run.Context
	StatsCache *cache.StatsCache
	Detector   *detect.Detector
	Influx     *influx.Manager

	// FlushInterval is how often the writer drains the buffers, 250ms when
	// unset.
	FlushInterval time.Duration
}

// Service numbers and buffers per-tick captures and writes them out in the
// background.
type Service struct {
	deps Dependencies

	frames *queue.Queue[core.Frame]
	brakes *queue.Queue[core.BrakeEvent]
	jams   *queue.Queue[core.JamEvent]

	tick cache.SafeCounter

	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new recorder service.
func NewService(deps Dependencies) *Service {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = 250 * time.Millisecond
	}
	return &Service{
		deps:   deps,
		frames: queue.New[core.Frame](),
		brakes: queue.New[core.BrakeEvent](),
		jams:   queue.New[core.JamEvent](),
	}
}

// IsRunning returns whether the background writer is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// FrameCount returns the number of captures taken so far. The first capture
// is frame 1.
func (s *Service) FrameCount() uint {
	return uint(s.tick.Value())
}

// BufferLengths reports the captures still waiting on the writer, for
// performance sampling. Queued frames count under FrameStats.
func (s *Service) BufferLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		FrameStats:  uint16(s.frames.Len()),
		BrakeEvents: uint16(s.brakes.Len()),
		JamEvents:   uint16(s.jams.Len()),
	}
}

// RegisterPopulation registers every car in the snapshot with the backend,
// stamped with the current frame. Call it once after StartRun and again
// whenever a reset or track switch respawns the population.
func (s *Service) RegisterPopulation(snap sim.Snapshot) error {
	tick := uint(s.tick.Value())
	now := time.Now()
	runID := s.deps.RunContext.GetRunID()

	for _, cv := range snap.Cars {
		rec := core.CarRecord{
			RunID:     runID,
			Slot:      cv.Slot,
			CarID:     cv.ID,
			Position:  cv.Position,
			Speed:     cv.Speed,
			JoinTime:  now,
			JoinFrame: tick,
		}
		if err := s.deps.Backend.AddCar(&rec); err != nil {
			return fmt.Errorf("registering car %d: %w", cv.ID, err)
		}
	}
	return nil
}

// Capture records one simulation snapshot: the frame is numbered, mirrored
// into the stats cache and buffered for the writer. Drained brake onsets ride
// along as events, and unless paused the jam detector gets the per-car
// displacements. Capture runs on the tick loop and never blocks on storage.
func (s *Service) Capture(snap sim.Snapshot, starts []sim.BrakeStart) {
	s.tick.Inc()
	tick := uint(s.tick.Value())
	now := time.Now()
	runID := s.deps.RunContext.GetRunID()

	frame := frameFromSnapshot(runID, tick, now, snap)
	s.deps.StatsCache.Set(tick, frame.Stats)
	s.frames.Push(frame)

	for _, st := range starts {
		s.brakes.Push(core.BrakeEvent{
			RunID:    runID,
			Tick:     tick,
			Time:     now,
			Slot:     st.Slot,
			CarID:    st.ID,
			Position: st.Position,
			Trigger:  st.Trigger,
		})
	}

	if s.deps.Detector != nil && !snap.Paused {
		s.feedDetector(runID, tick, now, snap)
	}
}

func frameFromSnapshot(runID, tick uint, now time.Time, snap sim.Snapshot) core.Frame {
	frame := core.Frame{
		RunID:     runID,
		Tick:      tick,
		Time:      now,
		TrackKind: snap.Kind.String(),
		TimeScale: snap.TimeScale,
		Paused:    snap.Paused,
		Stats:     snap.Stats,
		Cars:      make([]core.FrameCar, 0, len(snap.Cars)),
	}
	for _, cv := range snap.Cars {
		frame.Cars = append(frame.Cars, core.FrameCar{
			Slot:     cv.Slot,
			CarID:    cv.ID,
			Position: cv.Position,
			Speed:    cv.Speed,
			Braking:  cv.Braking,
			X:        cv.X,
			Y:        cv.Y,
			Heading:  cv.Heading,
		})
	}
	return frame
}

// feedDetector hands the per-car displacements to the jam detector and turns
// a firing into a buffered jam event.
func (s *Service) feedDetector(runID, tick uint, now time.Time, snap sim.Snapshot) {
	samples := make([]detect.Sample, 0, len(snap.Cars))
	for _, cv := range snap.Cars {
		samples = append(samples, detect.Sample{
			Slot:         cv.Slot,
			CarID:        cv.ID,
			Displacement: cv.Speed * snap.TimeScale,
		})
	}

	det, ok := s.deps.Detector.Feed(int(tick), samples)
	if !ok {
		return
	}

	s.deps.LogManager.Logger().Warn("Phantom jam detected",
		"car", det.CarID,
		"slot", det.Slot,
		"tick", det.Tick,
		"ratio", det.Ratio,
		"baseline", det.Baseline)
	s.jams.Push(core.JamEvent{
		RunID:    runID,
		Tick:     tick,
		Time:     now,
		Slot:     det.Slot,
		CarID:    det.CarID,
		Speed:    det.Speed,
		Baseline: det.Baseline,
		Ratio:    det.Ratio,
	})
}

// Start starts the background writer goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.writerLoop()
	return nil
}

// Stop halts the writer after a final drain, so every buffered capture
// reaches the backend before EndRun.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) writerLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

// Flush drains every buffer into the backend and the influx writer. Failed
// writes are dropped after logging, the writer does not retry.
func (s *Service) Flush() {
	s.flush()
}

func (s *Service) flush() {
	ctx := context.Background()
	logger := s.deps.LogManager.Logger()
	sessionID := s.deps.RunContext.GetRun().SessionID

	frames := s.frames.GetAndEmpty()
	for i := range frames {
		f := &frames[i]
		if err := s.deps.Backend.RecordFrame(f); err != nil {
			logger.Error("Failed to record frame", "tick", f.Tick, "error", err)
		}
		if s.deps.Influx != nil {
			if err := s.deps.Influx.WriteTrafficStats(ctx, sessionID, f); err != nil {
				logger.Error("Failed to write traffic stats point", "tick", f.Tick, "error", err)
			}
		}
	}

	brakes := s.brakes.GetAndEmpty()
	for i := range brakes {
		ev := &brakes[i]
		if err := s.deps.Backend.RecordBrakeEvent(ev); err != nil {
			logger.Error("Failed to record brake event", "car", ev.CarID, "error", err)
		}
		if s.deps.Influx != nil {
			if err := s.deps.Influx.WriteBrakeEvent(ctx, sessionID, ev); err != nil {
				logger.Error("Failed to write brake event point", "car", ev.CarID, "error", err)
			}
		}
	}

	jams := s.jams.GetAndEmpty()
	for i := range jams {
		ev := &jams[i]
		if err := s.deps.Backend.RecordJamEvent(ev); err != nil {
			logger.Error("Failed to record jam event", "car", ev.CarID, "error", err)
		}
		if s.deps.Influx != nil {
			if err := s.deps.Influx.WriteJamEvent(ctx, sessionID, ev); err != nil {
				logger.Error("Failed to write jam event point", "car", ev.CarID, "error", err)
			}
		}
	}
}
