package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/phantomjam/engine/internal/config"
	"github.com/phantomjam/engine/internal/database"
	"github.com/phantomjam/engine/internal/storage"
	gormstorage "github.com/phantomjam/engine/internal/storage/gorm"
	"github.com/phantomjam/engine/pkg/core"
)

// createStorageBackend builds the backend selected in config. The postgres
// type records through a connection owned by the database manager so the
// monitor and the backup migration can share it; every other type owns its
// resources.
func createStorageBackend() (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()

	if storageCfg.Type == "postgres" {
		return createManagedBackend(storageCfg)
	}

	backend, err := storage.NewBackend(storageCfg, CarCache, SlogManager, runContext)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}

// createManagedBackend connects the database manager, falling back to an
// in-memory sqlite mirror when Postgres is unreachable, and records through
// the gorm backend over that connection.
func createManagedBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	functionName := "createManagedBackend"

	if err := os.MkdirAll(filepath.Dir(SqliteDBFilePath), 0755); err != nil {
		Logger.Error("Failed to create local DB dir", "error", err, "path", filepath.Dir(SqliteDBFilePath))
	}

	DBManager = database.NewManager(ZLogger)
	DBManager.SqliteFilePath = SqliteDBFilePath

	if err := DBManager.Connect(); err != nil {
		IsDatabaseValid = false
		return nil, fmt.Errorf("failed to connect to any database: %w", err)
	}
	ShouldSaveLocal = DBManager.ShouldSaveLocal
	IsDatabaseValid = DBManager.IsValid

	if err := DBManager.Setup(); err != nil {
		IsDatabaseValid = false
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	backend := gormstorage.New(gormstorage.Dependencies{
		DB:              DBManager.DB,
		CarCache:        CarCache,
		LogManager:      SlogManager,
		RunContext:      runContext,
		IsDatabaseValid: func() bool { return IsDatabaseValid },
		ShouldSaveLocal: func() bool { return ShouldSaveLocal },
		DBInsertsPaused: func() bool { return DBInsertsPaused },
		FlushInterval:   storageCfg.FlushInterval,
	})
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize gorm storage: %w", err)
	}

	// goroutine to, every few minutes, pause insert execution and dump the
	// memory sqlite db to disk
	go func() {
		Logger.Debug("Starting DB dump goroutine", "function", functionName)

		for {
			time.Sleep(3 * time.Minute)
			if !ShouldSaveLocal {
				continue
			}

			// pause insert execution
			DBInsertsPaused = true

			SlogManager.WriteLog(functionName, "Dumping in-memory SQLite DB to disk", "DEBUG")
			if err := DBManager.DumpMemoryToDisk(); err != nil {
				SlogManager.WriteLog(functionName, fmt.Sprintf(`Error dumping memory db to disk: %v`, err), "ERROR")
			}

			// resume insert execution
			DBInsertsPaused = false
		}
	}()

	// with Postgres reachable, pick up fallback files from earlier sessions
	if !ShouldSaveLocal {
		go func() {
			if err := migrateLocalBackups(); err != nil {
				Logger.Error("Failed to migrate local backups", "error", err)
			}
		}()
	}

	Logger.Info("Storage backend initialized", "type", storageCfg.Type, "local", ShouldSaveLocal)
	return backend, nil
}

// countingBackend decorates a backend with event tallies for the run summary.
type countingBackend struct {
	storage.Backend

	brakeEvents   atomic.Int64
	controlEvents atomic.Int64
	trackSwitches atomic.Int64
}

func (c *countingBackend) RecordBrakeEvent(e *core.BrakeEvent) error {
	c.brakeEvents.Add(1)
	return c.Backend.RecordBrakeEvent(e)
}

func (c *countingBackend) RecordControlEvent(e *core.ControlEvent) error {
	c.controlEvents.Add(1)
	if e.Action == "track_switch" {
		c.trackSwitches.Add(1)
	}
	return c.Backend.RecordControlEvent(e)
}
