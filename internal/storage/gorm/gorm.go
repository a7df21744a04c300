// Package gormstorage persists recording data through a gorm handle, either
// postgres or the local sqlite fallback. Incoming records are converted to
// database rows and buffered in memory; a background writer flushes them to
// the database in batches.
package gormstorage

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/phantomjam/engine/internal/cache"
	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/internal/model/convert"
	"github.com/phantomjam/engine/internal/queue"
	"github.com/phantomjam/engine/internal/run"
	"github.com/phantomjam/engine/pkg/core"
)

const insertBatchSize = 500

// Queues buffers converted rows between the recording path and the batch writer
type Queues struct {
	Cars          *queue.Queue[model.Car]
	CarStates     *queue.Queue[model.CarState]
	FrameStats    *queue.Queue[model.FrameStat]
	BrakeEvents   *queue.Queue[model.BrakeEvent]
	ControlEvents *queue.Queue[model.ControlEvent]
	JamEvents     *queue.Queue[model.JamEvent]
}

// NewQueues creates the full set of write queues
func NewQueues() *Queues {
	return &Queues{
		Cars:          queue.New[model.Car](),
		CarStates:     queue.New[model.CarState](),
		FrameStats:    queue.New[model.FrameStat](),
		BrakeEvents:   queue.New[model.BrakeEvent](),
		ControlEvents: queue.New[model.ControlEvent](),
		JamEvents:     queue.New[model.JamEvent](),
	}
}

// Lengths reports the current depth of every queue for performance sampling
func (q *Queues) Lengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		Cars:          uint16(q.Cars.Len()),
		CarStates:     uint16(q.CarStates.Len()),
		FrameStats:    uint16(q.FrameStats.Len()),
		BrakeEvents:   uint16(q.BrakeEvents.Len()),
		ControlEvents: uint16(q.ControlEvents.Len()),
		JamEvents:     uint16(q.JamEvents.Len()),
	}
}

// Dependencies holds everything the backend needs from the caller
type Dependencies struct {
	DB         *gorm.DB
	CarCache   *cache.CarCache
	LogManager *logging.SlogManager
	RunContext *run.Context

	IsDatabaseValid func() bool
	ShouldSaveLocal func() bool
	DBInsertsPaused func() bool

	// FlushInterval is how often the writer drains the queues, 1s when unset
	FlushInterval time.Duration
}

// Backend queues recording data and writes it to the database in batches
type Backend struct {
	deps     Dependencies
	queues   *Queues
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu                  sync.Mutex
	lastDBWriteDuration time.Duration
}

// New creates a Backend. A nil DB is allowed: records still queue, nothing is
// flushed.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = time.Second
	}
	return &Backend{deps: deps}
}

// Init creates the write queues and starts the batch writer
func (b *Backend) Init() error {
	b.queues = NewQueues()
	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writerLoop()
	return nil
}

// Close stops the batch writer after a final flush
func (b *Backend) Close() error {
	close(b.stopChan)
	b.wg.Wait()
	return nil
}

// StartRun registers the run in the database, assigns the database ID to the
// passed pointer and publishes it to the run context
func (b *Backend) StartRun(r *core.Run) error {
	b.deps.CarCache.Reset()

	runRow := convert.CoreToRun(*r)
	if b.deps.DB != nil && b.deps.IsDatabaseValid() {
		_, err := runRow.GetOrInsert(b.deps.DB)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		r.ID = runRow.ID
	}
	b.deps.RunContext.SetRun(&runRow, r.TrackKind)
	return nil
}

// EndRun flushes outstanding rows and writes the run summary
func (b *Backend) EndRun(s *core.RunSummary) error {
	b.flushAll()
	if b.deps.DB == nil || !b.deps.IsDatabaseValid() {
		return nil
	}
	row := convert.CoreToRunSummary(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("inserting run summary: %w", err)
	}
	return nil
}

// AddCar caches the car for later lookups and queues the row for insert
func (b *Backend) AddCar(c *core.CarRecord) error {
	row := convert.CoreToCar(*c)
	b.deps.CarCache.AddCar(row)
	b.queues.Cars.Push(row)
	return nil
}

// RecordFrame queues the frame aggregate row and the per-car state rows
func (b *Backend) RecordFrame(f *core.Frame) error {
	b.queues.FrameStats.Push(convert.FrameToFrameStat(f))

	// Car state rows carry a geometry position column, not supported by SQLite
	if b.deps.ShouldSaveLocal() {
		return nil
	}
	b.queues.CarStates.Push(convert.FrameToCarStates(f)...)
	return nil
}

func (b *Backend) RecordBrakeEvent(e *core.BrakeEvent) error {
	b.queues.BrakeEvents.Push(convert.CoreToBrakeEvent(*e))
	return nil
}

func (b *Backend) RecordControlEvent(e *core.ControlEvent) error {
	b.queues.ControlEvents.Push(convert.CoreToControlEvent(*e))
	return nil
}

func (b *Backend) RecordJamEvent(e *core.JamEvent) error {
	b.queues.JamEvents.Push(convert.CoreToJamEvent(*e))
	return nil
}

// GetCarBySlot looks up a registered car in the cache
func (b *Backend) GetCarBySlot(slot int) (model.Car, bool) {
	return b.deps.CarCache.GetCar(slot)
}

// QueueLengths reports the current write queue depths
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return b.queues.Lengths()
}

// GetLastDBWriteDuration returns the duration of the last flush cycle
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastDBWriteDuration
}

func (b *Backend) writerLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.flushAll()
			return
		case <-ticker.C:
			if b.deps.DBInsertsPaused() {
				continue
			}
			b.flushAll()
		}
	}
}

// flushAll drains every queue into the database. Failed batches are dropped
// after logging, the writer does not retry.
func (b *Backend) flushAll() {
	if b.deps.DB == nil || !b.deps.IsDatabaseValid() {
		return
	}

	start := time.Now()
	flushQueue(b, b.queues.Cars, "cars")
	flushQueue(b, b.queues.CarStates, "car_states")
	flushQueue(b, b.queues.FrameStats, "frame_stats")
	flushQueue(b, b.queues.BrakeEvents, "brake_events")
	flushQueue(b, b.queues.ControlEvents, "control_events")
	flushQueue(b, b.queues.JamEvents, "jam_events")

	b.mu.Lock()
	b.lastDBWriteDuration = time.Since(start)
	b.mu.Unlock()
}

func flushQueue[T any](b *Backend, q *queue.Queue[T], table string) {
	if q.Empty() {
		return
	}
	items := q.GetAndEmpty()
	if err := b.deps.DB.CreateInBatches(items, insertBatchSize).Error; err != nil {
		b.deps.LogManager.Logger().Error("Failed to write batch",
			"table", table,
			"count", len(items),
			"error", err)
	}
}
