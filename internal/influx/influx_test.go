package influx

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/phantomjam/engine/pkg/core"
)

func testManager() *Manager {
	return NewManager(zerolog.Nop(), "")
}

// backupManager returns a manager routed to an in-memory gzip backup,
// plus a func that closes the writer and returns the decompressed output.
func backupManager(t *testing.T) (*Manager, func() string) {
	t.Helper()

	var buf bytes.Buffer
	m := testManager()
	m.IsValid = false
	m.BackupWriter = gzip.NewWriter(&buf)

	return m, func() string {
		require.NoError(t, m.BackupWriter.Close())
		r, err := gzip.NewReader(&buf)
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		return string(data)
	}
}

func TestConnectDisabled(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("influx.enabled", false)

	m := testManager()
	err := m.Connect()
	require.Error(t, err)
	require.Contains(t, err.Error(), "influx.enabled is false")
}

func TestNewManagerCopiesBucketNames(t *testing.T) {
	m := testManager()
	m.BucketNames[0] = "something_else"
	require.Equal(t, "runs", DefaultBucketNames[0])
}

func TestWriteTrafficStatsToBackup(t *testing.T) {
	m, flush := backupManager(t)

	frame := &core.Frame{
		Tick:      42,
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TrackKind: "circular",
		TimeScale: 1.5,
		Stats: core.TrafficStats{
			AvgSpeed:   1.23,
			FlowPct:    61.5,
			NumBraking: 3,
			Congested:  true,
		},
	}
	require.NoError(t, m.WriteTrafficStats(context.Background(), "20260301_120000", frame))

	out := flush()
	require.Contains(t, out, "traffic_stats")
	require.Contains(t, out, "run=20260301_120000")
	require.Contains(t, out, "track=circular")
	require.Contains(t, out, "avg_speed=1.23")
	require.Contains(t, out, "flow_pct=61.5")
	require.Contains(t, out, "num_braking=3i")
	require.Contains(t, out, "congested=true")
	require.Contains(t, out, "time_scale=1.5")
	require.Contains(t, out, "tick=42i")
}

func TestWriteBrakeEventToBackup(t *testing.T) {
	m, flush := backupManager(t)

	ev := &core.BrakeEvent{
		Tick:     100,
		Time:     time.Now(),
		Slot:     4,
		CarID:    412,
		Position: 250.5,
		Trigger:  core.TriggerManual,
	}
	require.NoError(t, m.WriteBrakeEvent(context.Background(), "s1", ev))

	out := flush()
	require.Contains(t, out, "brake_events")
	require.Contains(t, out, "trigger=manual")
	require.Contains(t, out, "car_id=412i")
	require.Contains(t, out, "position=250.5")
}

func TestWriteJamEventToBackup(t *testing.T) {
	m, flush := backupManager(t)

	ev := &core.JamEvent{
		Tick:     900,
		Time:     time.Now(),
		Slot:     7,
		CarID:    873,
		Speed:    0.4,
		Baseline: 1.8,
		Ratio:    0.22,
	}
	require.NoError(t, m.WriteJamEvent(context.Background(), "s1", ev))

	out := flush()
	require.Contains(t, out, "jam_events")
	require.Contains(t, out, "car_id=873i")
	require.Contains(t, out, "baseline=1.8")
	require.Contains(t, out, "ratio=0.22")
}

func TestWritePointNoBackupWriter(t *testing.T) {
	m := testManager()
	m.IsValid = false

	err := m.WriteTrafficStats(context.Background(), "s1", &core.Frame{Time: time.Now()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "backup writer not available")
}

func TestWritePointUnregisteredBucket(t *testing.T) {
	m := testManager()
	m.IsValid = true

	err := m.WriteTrafficStats(context.Background(), "s1", &core.Frame{Time: time.Now()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not registered")
}
