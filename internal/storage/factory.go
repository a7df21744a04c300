// internal/storage/factory.go
package storage

import (
	"errors"
	"fmt"

	"github.com/phantomjam/engine/internal/cache"
	"github.com/phantomjam/engine/internal/config"
	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/run"
	"github.com/phantomjam/engine/internal/storage/memory"
	"github.com/phantomjam/engine/internal/storage/postgres"
	"github.com/phantomjam/engine/internal/storage/session"
	sqlitestorage "github.com/phantomjam/engine/internal/storage/sqlite"
	"github.com/phantomjam/engine/internal/storage/websocket"
	"github.com/phantomjam/engine/pkg/core"
)

// ErrUnknownBackend is returned for a storage type the factory does not know.
var ErrUnknownBackend = errors.New("unknown storage type")

// NewBackend creates a storage backend based on configuration.
// The postgres and sqlite backends open their own database connections;
// recording through an externally managed connection goes through the
// gorm backend directly.
func NewBackend(cfg config.StorageConfig, carCache *cache.CarCache, logManager *logging.SlogManager, runCtx *run.Context) (Backend, error) {
	switch cfg.Type {
	case "none":
		return noopBackend{}, nil
	case "session":
		return session.New(cfg.Session), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval:  cfg.SQLite.DumpInterval,
			DumpPath:      cfg.SQLite.DumpPath,
			FlushInterval: cfg.FlushInterval,
		}, carCache, logManager, runCtx)
	case "postgres":
		return postgres.New(postgres.Dependencies{
			CarCache:   carCache,
			LogManager: logManager,
		}), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.Websocket.URL,
			Secret: cfg.Websocket.Secret,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Type)
	}
}

// noopBackend discards everything. Selected with storage type "none".
type noopBackend struct{}

func (noopBackend) Init() error                                 { return nil }
func (noopBackend) Close() error                                { return nil }
func (noopBackend) StartRun(*core.Run) error                    { return nil }
func (noopBackend) EndRun(*core.RunSummary) error               { return nil }
func (noopBackend) AddCar(*core.CarRecord) error                { return nil }
func (noopBackend) RecordFrame(*core.Frame) error               { return nil }
func (noopBackend) RecordBrakeEvent(*core.BrakeEvent) error     { return nil }
func (noopBackend) RecordControlEvent(*core.ControlEvent) error { return nil }
func (noopBackend) RecordJamEvent(*core.JamEvent) error         { return nil }
