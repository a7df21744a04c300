// Package influx ships per-tick traffic statistics and event points to
// InfluxDB. When the server is unreachable, points are appended to a gzip
// line-protocol backup file so an offline run can be replayed into the
// database later.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/phantomjam/engine/pkg/core"
)

// Measurement names written by the engine.
const (
	MeasurementTrafficStats = "traffic_stats"
	MeasurementBrakeEvents  = "brake_events"
	MeasurementJamEvents    = "jam_events"
)

// DefaultBucketNames are the InfluxDB buckets provisioned on connect.
// The first entry receives all run telemetry and is overridden by the
// influx.bucket config key.
var DefaultBucketNames = []string{
	"runs",
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	backupFile *os.File
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: append([]string(nil), DefaultBucketNames...),
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	if bucket := viper.GetString("influx.bucket"); bucket != "" {
		m.BucketNames[0] = bucket
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())

	if err != nil || !running {
		m.IsValid = false
		// create backup writer
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.backupFile = file
			m.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		err = m.setupOrganizationAndBuckets()
		if err != nil {
			return err
		}
		m.CreateWriters()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	}

	return nil
}

func (m *Manager) setupOrganizationAndBuckets() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")

	// ensure org exists
	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// get influxOrg
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		_, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

			rule := domain.RetentionRuleTypeExpire
			_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: 60 * 60 * 24 * 90, // 90 days
			})
			if err != nil {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
				return err
			}
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)

		m.Logger.Trace().Str("bucket", bucket).Msg("InfluxDB writer created")
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		if _, ok := m.Writers[bucket]; !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		m.Writers[bucket].WritePoint(point)
	} else {
		if m.BackupWriter == nil {
			return fmt.Errorf("influxDB client not initialized and backup writer not available")
		}

		lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Duration(1*time.Nanosecond))
		_, err := m.BackupWriter.Write([]byte(lineProtocol + "\n"))
		if err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
		}
	}

	return nil
}

// WriteTrafficStats writes the aggregate flow point for one captured frame.
func (m *Manager) WriteTrafficStats(ctx context.Context, sessionID string, f *core.Frame) error {
	point := influxdb2_write.NewPointWithMeasurement(MeasurementTrafficStats).
		AddTag("run", sessionID).
		AddTag("track", f.TrackKind).
		AddField("tick", int64(f.Tick)).
		AddField("avg_speed", f.Stats.AvgSpeed).
		AddField("flow_pct", f.Stats.FlowPct).
		AddField("num_braking", f.Stats.NumBraking).
		AddField("congested", f.Stats.Congested).
		AddField("time_scale", f.TimeScale).
		SetTime(f.Time)

	return m.WritePoint(ctx, m.BucketNames[0], point)
}

// WriteBrakeEvent writes a point for a forced brake starting on a car.
func (m *Manager) WriteBrakeEvent(ctx context.Context, sessionID string, ev *core.BrakeEvent) error {
	point := influxdb2_write.NewPointWithMeasurement(MeasurementBrakeEvents).
		AddTag("run", sessionID).
		AddTag("trigger", ev.Trigger).
		AddField("tick", int64(ev.Tick)).
		AddField("slot", int64(ev.Slot)).
		AddField("car_id", int64(ev.CarID)).
		AddField("position", ev.Position).
		SetTime(ev.Time)

	return m.WritePoint(ctx, m.BucketNames[0], point)
}

// WriteJamEvent writes a point for a congestion detection latching on a car.
func (m *Manager) WriteJamEvent(ctx context.Context, sessionID string, ev *core.JamEvent) error {
	point := influxdb2_write.NewPointWithMeasurement(MeasurementJamEvents).
		AddTag("run", sessionID).
		AddField("tick", int64(ev.Tick)).
		AddField("slot", int64(ev.Slot)).
		AddField("car_id", int64(ev.CarID)).
		AddField("speed", ev.Speed).
		AddField("baseline", ev.Baseline).
		AddField("ratio", ev.Ratio).
		SetTime(ev.Time)

	return m.WritePoint(ctx, m.BucketNames[0], point)
}

// Close flushes buffered points and shuts down the client or backup writer.
func (m *Manager) Close() {
	if m.IsValid && m.Client != nil {
		for _, w := range m.Writers {
			w.Flush()
		}
		m.Client.Close()
	}

	if m.BackupWriter != nil {
		if err := m.BackupWriter.Close(); err != nil {
			m.Logger.Error().Err(err).Msg("Error closing InfluxDB backup writer")
		}
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		if err := m.backupFile.Close(); err != nil {
			m.Logger.Error().Err(err).Msg("Error closing InfluxDB backup file")
		}
		m.backupFile = nil
	}
}
