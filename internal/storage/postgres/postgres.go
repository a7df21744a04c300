// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with internal queues and a background DB writer goroutine.
package postgres

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/phantomjam/engine/internal/cache"
	"github.com/phantomjam/engine/internal/database"
	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/internal/model/convert"
	"github.com/phantomjam/engine/internal/queue"
	"github.com/phantomjam/engine/pkg/core"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the PostgreSQL storage backend.
type Dependencies struct {
	DB         *gorm.DB
	CarCache   *cache.CarCache
	LogManager *logging.SlogManager
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Cars          *queue.Queue[model.Car]
	CarStates     *queue.Queue[model.CarState]
	FrameStats    *queue.Queue[model.FrameStat]
	BrakeEvents   *queue.Queue[model.BrakeEvent]
	ControlEvents *queue.Queue[model.ControlEvent]
	JamEvents     *queue.Queue[model.JamEvent]
}

func newQueues() *queues {
	return &queues{
		Cars:          queue.New[model.Car](),
		CarStates:     queue.New[model.CarState](),
		FrameStats:    queue.New[model.FrameStat](),
		BrakeEvents:   queue.New[model.BrakeEvent](),
		ControlEvents: queue.New[model.ControlEvent](),
		JamEvents:     queue.New[model.JamEvent](),
	}
}

// Backend implements storage.Backend using GORM/PostgreSQL with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	runID    atomic.Uint64
	stopChan chan struct{}
	dbReady  bool
}

// New creates a new PostgreSQL storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
	}
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it creates its own postgres connection.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})

	if b.deps.DB == nil {
		db, err := database.GetPostgresDBStandalone()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	if err := b.setupDB(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.dbReady = true

	b.startDBWriter()
	return nil
}

// setupDB migrates tables and creates default instance settings if they don't exist.
func (b *Backend) setupDB() error {
	db := b.deps.DB
	log := b.deps.LogManager

	if !db.Migrator().HasTable(&model.EngineInfo{}) {
		if err := db.AutoMigrate(&model.EngineInfo{}); err != nil {
			log.WriteLog("setupDB", fmt.Sprintf("Failed to create engine_info table: %s", err), "ERROR")
			return fmt.Errorf("failed to auto-migrate EngineInfo: %w", err)
		}
		if err := db.Create(&model.EngineInfo{
			InstanceName: "PhantomJam",
			Description:  "Traffic shockwave recorder",
			Website:      "https://github.com/phantomjam/engine",
		}).Error; err != nil {
			return fmt.Errorf("failed to create engine_info entry: %w", err)
		}
	}

	if db.Name() == "postgres" {
		if err := db.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS Extension: %w", err)
		}
		log.WriteLog("setupDB", "PostGIS Extension created", "INFO")
	}

	log.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// Close stops the DB writer goroutine.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
	}
	return nil
}

// StartRun performs run get-or-insert in the DB and assigns the DB-generated ID
// back to the core type.
func (b *Backend) StartRun(r *core.Run) error {
	if b.deps.DB == nil {
		return nil
	}

	b.deps.CarCache.Reset()

	gormRun := convert.CoreToRun(*r)
	if _, err := gormRun.GetOrInsert(b.deps.DB); err != nil {
		return fmt.Errorf("failed to get or insert run: %w", err)
	}

	// Assign DB-generated ID back to the core type
	r.ID = gormRun.ID

	// Store run ID for the DB writer goroutine
	b.runID.Store(uint64(gormRun.ID))

	return nil
}

// SetRunID sets the current run ID for the DB writer (used by CLI tools).
func (b *Backend) SetRunID(id uint) {
	b.runID.Store(uint64(id))
}

// EndRun drains outstanding queues and writes the run summary row.
func (b *Backend) EndRun(s *core.RunSummary) error {
	if b.deps.DB == nil {
		return nil
	}

	b.drainQueues()

	gormObj := convert.CoreToRunSummary(*s)
	gormObj.RunID = uint(b.runID.Load())
	if err := b.deps.DB.Create(&gormObj).Error; err != nil {
		return fmt.Errorf("failed to insert run summary: %w", err)
	}
	return nil
}

// AddCar caches the car for slot lookups and pushes it to the write queue.
func (b *Backend) AddCar(c *core.CarRecord) error {
	gormObj := convert.CoreToCar(*c)
	b.deps.CarCache.AddCar(gormObj)
	b.queues.Cars.Push(gormObj)
	return nil
}

// RecordFrame converts and queues the frame aggregate row and per-car state rows.
func (b *Backend) RecordFrame(f *core.Frame) error {
	b.queues.FrameStats.Push(convert.FrameToFrameStat(f))
	b.queues.CarStates.Push(convert.FrameToCarStates(f)...)
	return nil
}

// RecordBrakeEvent converts and queues a brake event.
func (b *Backend) RecordBrakeEvent(e *core.BrakeEvent) error {
	gormObj := convert.CoreToBrakeEvent(*e)
	b.queues.BrakeEvents.Push(gormObj)
	return nil
}

// RecordControlEvent converts and queues a control event.
func (b *Backend) RecordControlEvent(e *core.ControlEvent) error {
	gormObj := convert.CoreToControlEvent(*e)
	b.queues.ControlEvents.Push(gormObj)
	return nil
}

// RecordJamEvent converts and queues a jam event.
func (b *Backend) RecordJamEvent(e *core.JamEvent) error {
	gormObj := convert.CoreToJamEvent(*e)
	b.queues.JamEvents.Push(gormObj)
	return nil
}

// writeQueue writes all items from a queue to the database in a transaction.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T), onSuccess func([]T)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return
	}

	tx.Commit()
	if onSuccess != nil {
		onSuccess(items)
	}
}

// drainQueues runs one write cycle over every queue, stamping the current run ID.
func (b *Backend) drainQueues() {
	log := b.deps.LogManager.WriteLog

	// Read runID once per write cycle
	runID := uint(b.runID.Load())

	stampCars := func(items []model.Car) {
		for i := range items {
			items[i].RunID = runID
		}
	}
	stampCarStates := func(items []model.CarState) {
		for i := range items {
			items[i].RunID = runID
		}
	}
	stampFrameStats := func(items []model.FrameStat) {
		for i := range items {
			items[i].RunID = runID
		}
	}
	stampBrakeEvents := func(items []model.BrakeEvent) {
		for i := range items {
			items[i].RunID = runID
		}
	}
	stampControlEvents := func(items []model.ControlEvent) {
		for i := range items {
			items[i].RunID = runID
		}
	}
	stampJamEvents := func(items []model.JamEvent) {
		for i := range items {
			items[i].RunID = runID
		}
	}

	// Cars first so state rows never land before their car row
	writeQueue(b.deps.DB, b.queues.Cars, "cars", log, stampCars, func(items []model.Car) {
		for _, car := range items {
			b.deps.CarCache.AddCar(car)
		}
	})

	// State updates
	writeQueue(b.deps.DB, b.queues.CarStates, "car states", log, stampCarStates, nil)
	writeQueue(b.deps.DB, b.queues.FrameStats, "frame stats", log, stampFrameStats, nil)

	// Events
	writeQueue(b.deps.DB, b.queues.BrakeEvents, "brake events", log, stampBrakeEvents, nil)
	writeQueue(b.deps.DB, b.queues.ControlEvents, "control events", log, stampControlEvents, nil)
	writeQueue(b.deps.DB, b.queues.JamEvents, "jam events", log, stampJamEvents, nil)
}

// startDBWriter starts the background goroutine that periodically drains queues into the DB.
func (b *Backend) startDBWriter() {
	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.dbReady {
				time.Sleep(1 * time.Second)
				continue
			}

			b.drainQueues()

			time.Sleep(2 * time.Second)
		}
	}()
}
