package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/internal/run"
)

func testDeps(t *testing.T, db *gorm.DB, dbValid bool) Dependencies {
	t.Helper()

	runCtx := run.NewContext()
	runCtx.SetRun(&model.Run{Model: gorm.Model{ID: 1}, SessionID: "test"}, "circular")

	return Dependencies{
		DB:         db,
		LogManager: logging.NewSlogManager(),
		RunContext: runCtx,
		StatusDir:  t.TempDir(),
		IsDatabaseValid: func() bool {
			return dbValid
		},
		QueueLengths: func() model.WriteQueueLengths {
			return model.WriteQueueLengths{Cars: 2, FrameStats: 7}
		},
		TickRate: func() float64 {
			return 59.8
		},
		LastWriteDuration: func() time.Duration {
			return 42 * time.Millisecond
		},
	}
}

func TestGetProgramStatus(t *testing.T) {
	s := NewService(testDeps(t, nil, false))

	output, perf := s.GetProgramStatus(true, true, true)

	require.Len(t, output, 3)
	assert.Contains(t, output[0], `"frameStats": 7`)
	assert.Contains(t, output[1], "59.8")
	assert.Contains(t, output[2], "42")

	assert.Equal(t, uint(1), perf.RunID)
	assert.Equal(t, float32(59.8), perf.TickRate)
	assert.Equal(t, uint16(2), perf.WriteQueueLengths.Cars)
	assert.Equal(t, float32(42), perf.LastWriteDurationMs)
	assert.False(t, perf.Time.IsZero())
}

func TestGetProgramStatusSelective(t *testing.T) {
	s := NewService(testDeps(t, nil, false))

	output, _ := s.GetProgramStatus(true, false, false)
	require.Len(t, output, 1)

	output, _ = s.GetProgramStatus(false, false, false)
	require.Empty(t, output)
}

func TestStartWritesStatusFile(t *testing.T) {
	deps := testDeps(t, nil, false)
	s := NewService(deps)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.True(t, s.IsRunning())

	statusPath := filepath.Join(deps.StatusDir, "status.txt")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(statusPath)
		return err == nil && len(data) > 0
	}, 5*time.Second, 100*time.Millisecond)

	data, err := os.ReadFile(statusPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"frameStats": 7`)
}

func TestStartSkipsSamplingBeforeRun(t *testing.T) {
	deps := testDeps(t, nil, false)
	deps.RunContext = run.NewContext()
	s := NewService(deps)

	require.NoError(t, s.Start())
	defer s.Stop()

	statusPath := filepath.Join(deps.StatusDir, "status.txt")
	time.Sleep(1500 * time.Millisecond)

	data, err := os.ReadFile(statusPath)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestStartWritesPerformanceRows(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.Run{}, &model.EnginePerformance{}))
	require.NoError(t, db.Create(&model.Run{Model: gorm.Model{ID: 1}, SessionID: "test"}).Error)

	s := NewService(testDeps(t, db, true))
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		var count int64
		db.Model(&model.EnginePerformance{}).Count(&count)
		return count >= 1
	}, 5*time.Second, 100*time.Millisecond)

	var perf model.EnginePerformance
	require.NoError(t, db.First(&perf).Error)
	assert.Equal(t, uint(1), perf.RunID)
	assert.Equal(t, uint16(7), perf.WriteQueueLengths.FrameStats)
}

func TestStartTwiceIsNoOp(t *testing.T) {
	s := NewService(testDeps(t, nil, false))

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	s.Stop()
	require.Eventually(t, func() bool {
		return !s.IsRunning()
	}, 5*time.Second, 50*time.Millisecond)
}
