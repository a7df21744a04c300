package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/phantomjam/engine/internal/database"
	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/internal/model/convert"
	"github.com/phantomjam/engine/internal/monitor"
	v1 "github.com/phantomjam/engine/internal/storage/memory/export/v1"
	"github.com/phantomjam/engine/pkg/core"

	"github.com/spf13/viper"
)

func main() {
	Logger.Info("Starting up...", "version", CurrentEngineVersion, "build", BuildDate)

	args := os.Args[1:]
	if len(args) == 0 {
		if err := runEngine(false); err != nil {
			fail("Engine run failed", err)
		}
		flushTelemetry()
		return
	}

	switch strings.ToLower(args[0]) {
	case "run":
		if err := runEngine(false); err != nil {
			fail("Engine run failed", err)
		}
	case "demo":
		if err := runDemo(); err != nil {
			fail("Demo run failed", err)
		}
	case "export":
		if len(args) < 3 {
			fmt.Println("usage:", EngineName, "export <runId> <outFile[.gz]>")
			os.Exit(2)
		}
		if err := exportRun(args[1], args[2]); err != nil {
			fail("Export failed", err)
		}
	case "setupdb":
		if err := setupDatabase(); err != nil {
			fail("Database setup failed", err)
		}
	case "version":
		fmt.Printf("%s %s (built %s)\n", EngineName, CurrentEngineVersion, BuildDate)
	default:
		fmt.Println("unknown command:", args[0])
		fmt.Println("usage:", EngineName, "[run|demo|export <runId> <outFile>|setupdb|version]")
		os.Exit(2)
	}

	flushTelemetry()
}

// fail logs the error, drains telemetry and exits nonzero.
func fail(msg string, err error) {
	Logger.Error(msg, "error", err)
	flushTelemetry()
	os.Exit(1)
}

// flushTelemetry drains buffered log exports before the process exits.
func flushTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Flush(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush OTel provider: %v\n", err)
		}
	}
}

// runDemo runs a short scripted session on the in-memory backend: fixed
// seed, a brake wave triggered a third of the way in, aggregate stats on
// the console once a second.
func runDemo() error {
	viper.Set("sim.seed", int64(42))
	viper.Set("sim.maxTicks", 900)
	viper.Set("sim.brakeAtTicks", []int{300})
	viper.Set("storage.type", "memory")
	viper.Set("influx.enabled", false)
	viper.Set("otel.enabled", false)
	viper.Set("api.enabled", false)

	// stats land on the console, not just the session log
	SlogManager.Setup(nil, viper.GetString("logLevel"), nil)
	Logger = SlogManager.Logger()

	return runEngine(true)
}

// setupDatabase prepares the schema and, when Postgres carries TimescaleDB,
// the hypertables and compression policies for the timeseries tables.
func setupDatabase() error {
	dbManager := database.NewManager(ZLogger)
	if err := dbManager.Connect(); err != nil {
		return err
	}
	if err := dbManager.Setup(); err != nil {
		return err
	}
	if dbManager.ShouldSaveLocal {
		Logger.Warn("Postgres unreachable, schema prepared on local SQLite only")
		return nil
	}

	svc := monitor.NewService(monitor.Dependencies{
		DB:         dbManager.DB,
		LogManager: SlogManager,
		RunContext: runContext,
		StatusDir:  viper.GetString("logsDir"),

		IsDatabaseValid:   func() bool { return dbManager.IsValid },
		QueueLengths:      func() model.WriteQueueLengths { return model.WriteQueueLengths{} },
		TickRate:          func() float64 { return 0 },
		LastWriteDuration: func() time.Duration { return 0 },
	})

	tables := map[string][]string{
		"car_states":          {"run_id", "slot"},
		"frame_stats":         {"run_id"},
		"engine_performances": {"run_id"},
	}
	if err := svc.ValidateHypertables(tables); err != nil {
		return err
	}

	Logger.Info("Database ready")
	return nil
}

// exportRun assembles the v1 archive for a recorded run straight from
// Postgres and writes it to outPath, gzipped when the name ends in .gz.
func exportRun(runIDStr, outPath string) error {
	runID64, err := strconv.ParseUint(runIDStr, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runIDStr, err)
	}
	runID := uint(runID64)

	Logger.Info("Connecting to database...")
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
	Logger.Info("Database connection established.")

	txStart := time.Now()

	var gormRun model.Run
	err = db.Model(&model.Run{}).Where("id = ?", runID).First(&gormRun).Error
	if err != nil {
		return fmt.Errorf("error getting run: %w", err)
	}
	coreRun := convert.RunToCore(&gormRun)

	data := v1.RunData{
		Run:  &coreRun,
		Cars: map[int]*v1.CarRecord{},
	}

	var gormSummary model.RunSummary
	err = db.Model(&model.RunSummary{}).Where("run_id = ?", runID).First(&gormSummary).Error
	if err == nil {
		summary := convert.RunSummaryToCore(gormSummary)
		data.Summary = &summary
	}

	// Bulk-fetch cars and all related data for this run
	cars := []model.Car{}
	err = db.Model(&model.Car{}).Where("run_id = ?", runID).Find(&cars).Error
	if err != nil {
		return fmt.Errorf("error getting cars: %w", err)
	}
	for _, car := range cars {
		data.Cars[car.Slot] = &v1.CarRecord{Car: convert.CarToCore(car)}
	}

	states := []model.CarState{}
	err = db.Model(&model.CarState{}).
		Where("run_id = ?", runID).
		Order("capture_frame ASC").
		Find(&states).Error
	if err != nil {
		return fmt.Errorf("error getting car states: %w", err)
	}
	for _, state := range states {
		record, ok := data.Cars[state.Slot]
		if !ok {
			continue
		}
		record.States = append(record.States, v1.CarState{
			Tick:  state.CaptureFrame,
			State: convert.CarStateToFrameCar(state),
		})
	}

	stats := []model.FrameStat{}
	err = db.Model(&model.FrameStat{}).
		Where("run_id = ?", runID).
		Order("capture_frame ASC").
		Find(&stats).Error
	if err != nil {
		return fmt.Errorf("error getting frame stats: %w", err)
	}
	for _, stat := range stats {
		data.Stats = append(data.Stats, v1.StatSample{
			Tick: stat.CaptureFrame,
			Stats: core.TrafficStats{
				AvgSpeed:   float64(stat.AvgSpeed),
				FlowPct:    float64(stat.FlowPct),
				NumBraking: int(stat.NumBraking),
				Congested:  stat.Congested,
			},
		})

		// clock entries only where the clock state changed
		if n := len(data.Times); n == 0 ||
			data.Times[n-1].TimeScale != float64(stat.TimeScale) ||
			data.Times[n-1].Paused != stat.Paused ||
			data.Times[n-1].TrackKind != stat.TrackKind {
			data.Times = append(data.Times, v1.TimeSample{
				Tick:      stat.CaptureFrame,
				Time:      stat.Time,
				TimeScale: float64(stat.TimeScale),
				Paused:    stat.Paused,
				TrackKind: stat.TrackKind,
			})
		}
	}

	brakes := []model.BrakeEvent{}
	err = db.Model(&model.BrakeEvent{}).
		Where("run_id = ?", runID).
		Order("capture_frame ASC").
		Find(&brakes).Error
	if err != nil {
		return fmt.Errorf("error getting brake events: %w", err)
	}
	for _, ev := range brakes {
		data.BrakeEvents = append(data.BrakeEvents, convert.BrakeEventToCore(ev))
	}

	controls := []model.ControlEvent{}
	err = db.Model(&model.ControlEvent{}).
		Where("run_id = ?", runID).
		Order("capture_frame ASC").
		Find(&controls).Error
	if err != nil {
		return fmt.Errorf("error getting control events: %w", err)
	}
	for _, ev := range controls {
		data.ControlEvents = append(data.ControlEvents, convert.ControlEventToCore(ev))
	}

	jams := []model.JamEvent{}
	err = db.Model(&model.JamEvent{}).
		Where("run_id = ?", runID).
		Order("capture_frame ASC").
		Find(&jams).Error
	if err != nil {
		return fmt.Errorf("error getting jam events: %w", err)
	}
	for _, ev := range jams {
		data.JamEvents = append(data.JamEvents, convert.JamEventToCore(ev))
	}

	Logger.Info("Got run data", "runId", runID, "duration", time.Since(txStart).Round(time.Millisecond))

	export := v1.Build(&data)
	exportJSON, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("error marshalling run data: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("error creating file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if strings.HasSuffix(outPath, ".gz") {
		gzWriter := gzip.NewWriter(f)
		defer func() { _ = gzWriter.Close() }()
		if _, err = gzWriter.Write(exportJSON); err != nil {
			return fmt.Errorf("error writing to gzip: %w", err)
		}
	} else {
		if _, err = f.Write(exportJSON); err != nil {
			return fmt.Errorf("error writing file: %w", err)
		}
	}

	fmt.Println("Wrote run data to", outPath)
	return nil
}
