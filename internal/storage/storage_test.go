// internal/storage/storage_test.go
package storage_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomjam/engine/internal/cache"
	"github.com/phantomjam/engine/internal/config"
	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/run"
	"github.com/phantomjam/engine/internal/storage"
	"github.com/phantomjam/engine/internal/storage/memory"
	"github.com/phantomjam/engine/internal/storage/postgres"
	"github.com/phantomjam/engine/internal/storage/session"
	sqlitestorage "github.com/phantomjam/engine/internal/storage/sqlite"
	"github.com/phantomjam/engine/internal/storage/websocket"
	"github.com/phantomjam/engine/pkg/core"
)

// Compile-time interface checks for the factory-constructed backends.
var (
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Uploadable = (*memory.Backend)(nil)
	_ storage.Backend    = (*session.Backend)(nil)
	_ storage.Backend    = (*websocket.Backend)(nil)
	_ storage.Backend    = (*sqlitestorage.Backend)(nil)
	_ storage.Backend    = (*postgres.Backend)(nil)
)

func factoryArgs() (*cache.CarCache, *logging.SlogManager, *run.Context) {
	return cache.NewCarCache(), logging.NewSlogManager(), run.NewContext()
}

func TestNewBackend_Session(t *testing.T) {
	carCache, logManager, runCtx := factoryArgs()
	b, err := storage.NewBackend(config.StorageConfig{
		Type:    "session",
		Session: config.SessionConfig{OutputDir: t.TempDir()},
	}, carCache, logManager, runCtx)
	require.NoError(t, err)
	assert.IsType(t, &session.Backend{}, b)
}

func TestNewBackend_Memory(t *testing.T) {
	carCache, logManager, runCtx := factoryArgs()
	b, err := storage.NewBackend(config.StorageConfig{
		Type:   "memory",
		Memory: config.MemoryConfig{OutputDir: t.TempDir()},
	}, carCache, logManager, runCtx)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)
}

func TestNewBackend_Sqlite(t *testing.T) {
	carCache, logManager, runCtx := factoryArgs()
	b, err := storage.NewBackend(config.StorageConfig{
		Type:          "sqlite",
		FlushInterval: time.Second,
		SQLite:        config.SQLiteConfig{DumpInterval: 30 * time.Second},
	}, carCache, logManager, runCtx)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)
}

func TestNewBackend_Postgres(t *testing.T) {
	carCache, logManager, runCtx := factoryArgs()
	b, err := storage.NewBackend(config.StorageConfig{
		Type: "postgres",
	}, carCache, logManager, runCtx)
	require.NoError(t, err)
	assert.IsType(t, &postgres.Backend{}, b)
}

func TestNewBackend_Websocket(t *testing.T) {
	carCache, logManager, runCtx := factoryArgs()
	b, err := storage.NewBackend(config.StorageConfig{
		Type:      "websocket",
		Websocket: config.WebsocketConfig{URL: "ws://localhost:9999", Secret: "s"},
	}, carCache, logManager, runCtx)
	require.NoError(t, err)
	assert.IsType(t, &websocket.Backend{}, b)
}

func TestNewBackend_None(t *testing.T) {
	carCache, logManager, runCtx := factoryArgs()
	b, err := storage.NewBackend(config.StorageConfig{Type: "none"}, carCache, logManager, runCtx)
	require.NoError(t, err)
	require.NotNil(t, b)

	// Every operation is a silent discard
	require.NoError(t, b.Init())
	require.NoError(t, b.StartRun(&core.Run{SessionID: "20260301_120000"}))
	require.NoError(t, b.AddCar(&core.CarRecord{Slot: 0, CarID: 412}))
	require.NoError(t, b.RecordFrame(&core.Frame{Tick: 1}))
	require.NoError(t, b.RecordBrakeEvent(&core.BrakeEvent{}))
	require.NoError(t, b.RecordControlEvent(&core.ControlEvent{}))
	require.NoError(t, b.RecordJamEvent(&core.JamEvent{}))
	require.NoError(t, b.EndRun(&core.RunSummary{}))
	require.NoError(t, b.Close())
}

func TestNewBackend_UnknownType(t *testing.T) {
	carCache, logManager, runCtx := factoryArgs()
	b, err := storage.NewBackend(config.StorageConfig{Type: "carrier-pigeon"}, carCache, logManager, runCtx)
	require.Error(t, err)
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, storage.ErrUnknownBackend))
	assert.Contains(t, err.Error(), "carrier-pigeon")
}
