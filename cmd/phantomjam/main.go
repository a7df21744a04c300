package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/phantomjam/engine/internal/api"
	"github.com/phantomjam/engine/internal/cache"
	"github.com/phantomjam/engine/internal/config"
	"github.com/phantomjam/engine/internal/control"
	"github.com/phantomjam/engine/internal/database"
	"github.com/phantomjam/engine/internal/detect"
	"github.com/phantomjam/engine/internal/dispatcher"
	"github.com/phantomjam/engine/internal/geo"
	"github.com/phantomjam/engine/internal/influx"
	"github.com/phantomjam/engine/internal/logging"
	"github.com/phantomjam/engine/internal/model"
	"github.com/phantomjam/engine/internal/model/convert"
	"github.com/phantomjam/engine/internal/monitor"
	intOtel "github.com/phantomjam/engine/internal/otel"
	"github.com/phantomjam/engine/internal/recorder"
	"github.com/phantomjam/engine/internal/run"
	"github.com/phantomjam/engine/internal/sim"
	"github.com/phantomjam/engine/internal/storage"
	"github.com/phantomjam/engine/internal/track"
	"github.com/phantomjam/engine/pkg/core"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentEngineVersion string = "1.0.0"
	BuildDate            string = "unknown"

	EngineName string = "phantomjam"
)

// file paths
var (
	// WorkingDir is the directory the engine was started from. The config
	// file and the init log live here. This is checked in init().
	WorkingDir string

	InitLogFilePath   string
	InitLogFile       *os.File
	EngineLogFilePath string
	EngineLogFile     *os.File

	// SqliteDBFilePath refers to the sqlite database file the in-memory
	// fallback dumps to
	SqliteDBFilePath string
)

// global variables
var (
	// DBManager owns the gorm connection when the postgres backend is active
	DBManager *database.Manager

	// ShouldSaveLocal indicates whether we're saving to Postgres or local SQLite
	ShouldSaveLocal bool = false

	// IsDatabaseValid indicates whether or not any DB connection could be established
	IsDatabaseValid bool = false

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is the zerolog logger used by the database and influx managers
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// sqlite flow
	DBInsertsPaused bool = false

	// CarCache maps car slots to their database identities for the current run
	CarCache *cache.CarCache = cache.NewCarCache()

	// StatsCache keeps the latest aggregate traffic stats for status queries
	StatsCache *cache.StatsCache = cache.NewStatsCache()

	SessionStartTime time.Time = time.Now()

	// driver is the simulation under control. Everything that touches it
	// holds driverLock.
	driver     *sim.Simulation
	driverLock sync.Mutex

	runContext *run.Context = run.NewContext()

	// tickCount is advanced by the tick loop and sampled by the monitor
	tickCount atomic.Uint64

	// Services
	detector        *detect.Detector
	recorderService *recorder.Service
	controlService  *control.Service
	monitorService  *monitor.Service
	influxManager   *influx.Manager
	eventDispatcher *dispatcher.Dispatcher

	// Storage backend
	storageBackend storage.Backend
)

// init brings up paths, config and logging before main runs
func init() {
	var err error

	WorkingDir, err = os.Getwd()
	if err != nil {
		panic(err)
	}

	InitLogFilePath = filepath.Join(WorkingDir, EngineName+".init.log")

	InitLogFile, err = os.Create(InitLogFilePath)
	if err != nil {
		// Log to stderr since logging isn't set up yet
		fmt.Fprintf(os.Stderr, "Failed to create init log file: %v\n", err)
	}

	// Initialize slog manager with initial config
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(InitLogFile, viper.GetString("logLevel"), nil)
	Logger = SlogManager.Logger()

	// load config
	err = loadConfig()
	if err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	// create logs dir if it doesn't exist
	if _, err := os.Stat(viper.GetString("logsDir")); os.IsNotExist(err) {
		os.Mkdir(viper.GetString("logsDir"), 0755)
	}

	EngineLogFilePath = logging.LogFilePath(viper.GetString("logsDir"), EngineName, SessionStartTime)

	// check if EngineLogFilePath exists
	// if it does, move it to EngineLogFilePath.old
	// if it doesn't, create it
	if _, err := os.Stat(EngineLogFilePath); err == nil {
		os.Rename(EngineLogFilePath, EngineLogFilePath+".old")
	}

	EngineLogFile, err = os.OpenFile(EngineLogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", EngineLogFilePath)
	}

	Logger.Info("Begin logging in logs directory", "path", EngineLogFilePath)

	// Forward logs to Graylog if configured
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		gelfWriter, err := logging.NewGelfWriter(graylogCfg.Address)
		if err != nil {
			Logger.Error("Failed to connect GELF writer", "error", err, "address", graylogCfg.Address)
		} else {
			SlogManager.SetGelfWriter(gelfWriter)
			Logger.Info("Forwarding logs to Graylog", "address", graylogCfg.Address)
		}
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentEngineVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      EngineLogFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			if otelCfg.Endpoint != "" {
				Logger.Info("OTel provider initialized", "file", EngineLogFilePath, "endpoint", otelCfg.Endpoint)
			} else {
				Logger.Info("OTel provider initialized", "file", EngineLogFilePath)
			}
		}
	}

	// Re-setup logging with file output and optional OTel
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(EngineLogFile, viper.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", EngineLogFilePath)

	// Set up dynamic state callbacks for logging
	SlogManager.GetRunID = func() uint { return runContext.GetRunID() }
	SlogManager.GetTrackKind = func() string { return runContext.GetTrackKind() }
	SlogManager.IsUsingLocalDB = func() bool { return ShouldSaveLocal }

	setupZerolog()

	SqliteDBFilePath = filepath.Join(
		filepath.Dir(config.GetStorageConfig().SQLite.DumpPath),
		fmt.Sprintf("%s_%s.db", EngineName, logging.SessionStamp(SessionStartTime)),
	)

	// get number of CPUs
	numCPUs := runtime.NumCPU()
	Logger.Debug("Number of CPUs", "numCPUs", numCPUs)

	// set GOMAXPROCS
	runtime.GOMAXPROCS(int(math.Max(float64(numCPUs-2), 1)))
}

// setupZerolog configures the zerolog logger handed to the database and
// influx managers. It mirrors the console and the session log file.
func setupZerolog() {
	var logLevelActual zerolog.Level
	switch viper.GetString("logLevel") {
	case "DEBUG":
		logLevelActual = zerolog.DebugLevel
	case "INFO":
		logLevelActual = zerolog.InfoLevel
	case "WARN":
		logLevelActual = zerolog.WarnLevel
	case "ERROR":
		logLevelActual = zerolog.ErrorLevel
	case "TRACE":
		logLevelActual = zerolog.TraceLevel
	default:
		logLevelActual = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevelActual)
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	writers := []io.Writer{
		// console format with colors to console
		zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		},
	}
	if EngineLogFile != nil {
		// console format without colors to file
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        EngineLogFile,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	ZLogger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

func loadConfig() (err error) {
	return config.Load(WorkingDir)
}

// checkServerStatus logs whether the replay dashboard answers its healthcheck
func checkServerStatus() {
	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(); err != nil {
		Logger.Info("Dashboard is offline")
	} else {
		Logger.Info("Dashboard is online")
	}
}

// runEngine drives one recording session: it spawns the population, starts
// the recording services and steps the simulation at the configured tick
// rate until maxTicks elapse or an interrupt arrives. With demo set it also
// prints aggregate stats once a second.
func runEngine(demo bool) error {
	simCfg := config.GetSimConfig()
	trackCfg := config.GetTrackConfig()
	storageCfg := config.GetStorageConfig()

	tickRate := simCfg.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}

	seed := simCfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	kind := track.ParseKind(trackCfg.Kind)
	params := paramsFromConfig()

	driverLock.Lock()
	driver = sim.New(kind, params, rand.New(rand.NewSource(seed)))
	driverLock.Unlock()

	detectCfg := config.GetDetectConfig()
	if detectCfg.Enabled {
		detector = detect.New(detect.Config{
			BaselineTicks: detectCfg.BaselineTicks,
			WindowTicks:   detectCfg.WindowTicks,
			DropRatio:     detectCfg.DropRatio,
			MinBaseline:   detectCfg.MinBaseline,
			StableTicks:   detectCfg.StableTicks,
			MinCars:       detectCfg.MinCars,
		}, simCfg.Cars)
	}

	inner, err := createStorageBackend()
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	counting := &countingBackend{Backend: inner}
	storageBackend = counting

	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		if err := os.MkdirAll(influxCfg.BackupDir, 0755); err != nil {
			Logger.Error("Failed to create influx backup dir", "error", err, "path", influxCfg.BackupDir)
		}
		backupPath := filepath.Join(
			influxCfg.BackupDir,
			fmt.Sprintf("influx_backup_%s.gz", logging.SessionStamp(SessionStartTime)),
		)
		influxManager = influx.NewManager(ZLogger, backupPath)
		if err := influxManager.Connect(); err != nil {
			Logger.Error("Failed to connect to InfluxDB", "error", err)
			influxManager = nil
		}
	}

	recorderService = recorder.NewService(recorder.Dependencies{
		Backend:       storageBackend,
		LogManager:    SlogManager,
		RunContext:    runContext,
		StatsCache:    StatsCache,
		Detector:      detector,
		Influx:        influxManager,
		FlushInterval: storageCfg.FlushInterval,
	})

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		storageBackend.Close()
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	controlService = control.NewService(control.Dependencies{
		Driver:     driver,
		DriverLock: &driverLock,
		LogManager: SlogManager,
		RunContext: runContext,
		Recorder:   recorderService,
		StatsCache: StatsCache,
		Detector:   detector,
	}, storageBackend)
	controlService.RegisterHandlers(eventDispatcher)

	if config.GetAPIConfig().Enabled {
		checkServerStatus()
	}

	coreRun := core.Run{
		SessionID: fmt.Sprintf("%s_%s", EngineName, logging.SessionStamp(SessionStartTime)),
		TrackKind: kind.String(),
		Seed:      seed,
		CarCount:  simCfg.Cars,
		TickRate:  tickRate,
		StartTime: SessionStartTime,
		Params:    params.Map(),
	}

	// anchor the run on the globe so map consumers can place it
	origin := geo.NewPlaneOrigin(config.GetGeoConfig())
	if location, err := origin.Point3857(0, 0); err == nil {
		coreRun.Location = location
	} else {
		Logger.Warn("Failed to project run origin", "error", err)
	}
	if course, err := origin.TrackOutline3857(driver.Geometry(), 64); err == nil {
		coreRun.Course = course
	} else {
		Logger.Warn("Failed to project track course", "error", err)
	}

	if err := storageBackend.StartRun(&coreRun); err != nil {
		storageBackend.Close()
		return fmt.Errorf("failed to start run: %w", err)
	}

	// backends without a database don't touch the run context themselves
	if runContext.GetRunID() == 0 {
		localRun := convert.CoreToRun(coreRun)
		localRun.ID = coreRun.ID
		if localRun.ID == 0 {
			localRun.ID = 1
		}
		runContext.SetRun(&localRun, kind.String())
	}

	if err := recorderService.Start(); err != nil {
		storageBackend.Close()
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	driverLock.Lock()
	snap := driver.Snapshot()
	driverLock.Unlock()
	if err := recorderService.RegisterPopulation(snap); err != nil {
		Logger.Error("Failed to register cars", "error", err)
	}

	startMonitor(inner)

	Logger.Info("Run started",
		"sessionId", coreRun.SessionID,
		"track", kind.String(),
		"cars", simCfg.Cars,
		"tickRate", tickRate,
		"seed", seed,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	brakeAt := make(map[uint64]bool, len(simCfg.BrakeAtTicks))
	for _, t := range simCfg.BrakeAtTicks {
		if t > 0 {
			brakeAt[uint64(t)] = true
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	running := true
	for running {
		select {
		case <-sigChan:
			Logger.Info("Interrupt received, stopping run")
			running = false

		case <-ticker.C:
			driverLock.Lock()
			driver.Tick()
			snap := driver.Snapshot()
			starts := driver.DrainBrakeStarts()
			recorderService.Capture(snap, starts)
			driverLock.Unlock()

			tick := tickCount.Add(1)

			// scripted brakes go through the dispatcher like operator
			// commands; the handler takes the driver lock itself
			if brakeAt[tick] {
				if _, err := eventDispatcher.Dispatch(dispatcher.Event{
					Command:   ":BRAKE:RANDOM:",
					Timestamp: time.Now(),
				}); err != nil {
					Logger.Error("Scripted brake failed", "error", err, "tick", tick)
				}
			}

			if demo && tick%uint64(tickRate) == 0 {
				if stats, _, ok := StatsCache.Get(); ok {
					Logger.Info("Traffic",
						"tick", tick,
						"avgSpeed", stats.AvgSpeed,
						"flowPct", stats.FlowPct,
						"braking", stats.NumBraking,
						"congested", stats.Congested,
					)
				}
			}

			if simCfg.MaxTicks > 0 && tick >= uint64(simCfg.MaxTicks) {
				running = false
			}
		}
	}

	return finishRun(&coreRun, counting, inner)
}

// finishRun drains the services, writes the run summary and closes the
// backend, then uploads the archive if one was produced.
func finishRun(coreRun *core.Run, counting *countingBackend, inner storage.Backend) error {
	if monitorService != nil {
		monitorService.Stop()
	}
	recorderService.Stop()

	endTime := time.Now()
	duration := endTime.Sub(coreRun.StartTime)
	frames := recorderService.FrameCount()

	avgTickRate := 0.0
	if secs := duration.Seconds(); secs > 0 {
		avgTickRate = float64(frames) / secs
	}

	finalStats, _, _ := StatsCache.Get()
	summary := core.RunSummary{
		RunID:         runContext.GetRunID(),
		EndTime:       endTime,
		Duration:      duration,
		TotalFrames:   frames,
		AvgTickRate:   avgTickRate,
		BrakeEvents:   int(counting.brakeEvents.Load()),
		ControlEvents: int(counting.controlEvents.Load()),
		TrackSwitches: int(counting.trackSwitches.Load()),
		FinalStats:    finalStats,
	}
	if err := storageBackend.EndRun(&summary); err != nil {
		Logger.Error("Failed to finalize run", "error", err)
	}

	// the in-memory fallback gets a final dump so the tail is not lost
	if DBManager != nil && ShouldSaveLocal {
		DBInsertsPaused = true
		if err := DBManager.DumpMemoryToDisk(); err != nil {
			Logger.Error("Failed to dump memory DB to disk", "error", err)
		}
		DBInsertsPaused = false
	}

	if err := storageBackend.Close(); err != nil {
		Logger.Error("Failed to close storage backend", "error", err)
	}

	uploadRecording(inner)

	if influxManager != nil {
		influxManager.Close()
	}

	Logger.Info("Run complete",
		"frames", frames,
		"duration", duration.Round(time.Millisecond),
		"brakeEvents", summary.BrakeEvents,
		"controlEvents", summary.ControlEvents,
	)
	return nil
}

// startMonitor wires the status monitor against whatever the backend can
// report. Backends without write queues fall back to the recorder's buffers.
func startMonitor(backend storage.Backend) {
	deps := monitor.Dependencies{
		LogManager: SlogManager,
		RunContext: runContext,
		StatusDir:  viper.GetString("logsDir"),

		IsDatabaseValid:   func() bool { return IsDatabaseValid },
		QueueLengths:      recorderService.BufferLengths,
		TickRate:          tickRateSampler(),
		LastWriteDuration: func() time.Duration { return 0 },
	}
	if DBManager != nil {
		deps.DB = DBManager.DB
	}
	if q, ok := backend.(interface{ QueueLengths() model.WriteQueueLengths }); ok {
		deps.QueueLengths = q.QueueLengths
	}
	if w, ok := backend.(interface{ GetLastDBWriteDuration() time.Duration }); ok {
		deps.LastWriteDuration = w.GetLastDBWriteDuration
	}

	monitorService = monitor.NewService(deps)
	if !monitorService.IsRunning() {
		Logger.Debug("Status process not running, starting it")
		monitorService.Start()
	}
}

// tickRateSampler returns a sampling func reporting the tick rate achieved
// since its previous call.
func tickRateSampler() func() float64 {
	var mu sync.Mutex
	prevCount := tickCount.Load()
	prevTime := time.Now()

	return func() float64 {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		count := tickCount.Load()
		elapsed := now.Sub(prevTime).Seconds()
		if elapsed <= 0 {
			return 0
		}
		rate := float64(count-prevCount) / elapsed
		prevCount = count
		prevTime = now
		return rate
	}
}

// paramsFromConfig merges the behavior, brake and clock settings over the
// reference tuning.
func paramsFromConfig() sim.Params {
	simCfg := config.GetSimConfig()
	trackCfg := config.GetTrackConfig()
	behaviorCfg := config.GetBehaviorConfig()
	brakeCfg := config.GetBrakeConfig()

	params := sim.DefaultParams()
	params.PlaneWidth = trackCfg.Width
	params.PlaneHeight = trackCfg.Height
	params.CarCount = simCfg.Cars

	params.SpeedLimit = behaviorCfg.SpeedLimit
	params.Accel = behaviorCfg.Acceleration
	params.Decel = behaviorCfg.Deceleration
	params.ResetSpeedFraction = behaviorCfg.ResetSpeedFraction
	params.CircularSafe = behaviorCfg.Circular.SafeDistance
	params.CircularMin = behaviorCfg.Circular.MinDistance
	params.LinearSafe = behaviorCfg.Linear.SafeDistance
	params.LinearMin = behaviorCfg.Linear.MinDistance

	params.RandomBrakeChance = brakeCfg.RandomChance
	params.RandomDurationMin = brakeCfg.RandomDurationMin
	params.RandomDurationMax = brakeCfg.RandomDurationMax
	params.RandomCooldown = brakeCfg.RandomCooldown
	params.ManualDurationMin = brakeCfg.ManualDurationMin
	params.ManualDurationMax = brakeCfg.ManualDurationMax
	params.ManualCooldown = brakeCfg.ManualCooldown
	params.SpeedCutFactor = brakeCfg.SpeedCutFactor
	params.AlertTicks = brakeCfg.AlertTicks

	params.TimeScaleMin = simCfg.TimeScaleMin
	params.TimeScaleMax = simCfg.TimeScaleMax
	params.TimeScaleStep = simCfg.TimeScaleStep

	return params
}

// uploadRecording pushes the finished archive to the replay server when the
// backend produced one and the API is configured.
func uploadRecording(backend storage.Backend) {
	apiCfg := config.GetAPIConfig()
	if !apiCfg.Enabled {
		return
	}

	up, ok := backend.(storage.Uploadable)
	if !ok {
		return
	}
	exportPath := up.GetExportedFilePath()
	if exportPath == "" {
		return
	}

	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Upload(exportPath, up.GetExportMetadata()); err != nil {
		Logger.Error("Failed to upload recording", "error", err, "path", exportPath)
		return
	}
	Logger.Info("Recording uploaded", "path", exportPath)
}

///////////////////////
// DATABASE OPS //
///////////////////////

// migrateLocalBackups pushes sqlite fallback files left by earlier sessions
// into Postgres, then marks them migrated.
func migrateLocalBackups() (err error) {
	backupDir := filepath.Dir(config.GetStorageConfig().SQLite.DumpPath)
	sqlitePaths, err := database.GetBackupDBPaths(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error getting backup database paths: %v", err)
	}
	if len(sqlitePaths) == 0 {
		return nil
	}

	postgresDB, err := database.GetPostgresDBStandalone()
	if err != nil {
		return fmt.Errorf("error getting postgres database: %v", err)
	}

	successfulMigrations := make([]string, 0)

	for _, sqlitePath := range sqlitePaths {
		sqliteDB, err := database.GetSqliteDBStandalone(sqlitePath)
		if err != nil {
			return fmt.Errorf("error getting sqlite database: %v", err)
		}

		// transaction for Postgres so we can rollback if errors
		tx := postgresDB.Begin()

		err = migrateTable[model.EngineInfo](sqliteDB, tx, "engine_infos")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating engine_infos: %v", err)
		}
		err = migrateTable[model.Run](sqliteDB, tx, "runs")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating runs: %v", err)
		}
		err = migrateTable[model.Car](sqliteDB, tx, "cars")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating cars: %v", err)
		}
		err = migrateTable[model.CarState](sqliteDB, tx, "car_states")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating car_states: %v", err)
		}
		err = migrateTable[model.FrameStat](sqliteDB, tx, "frame_stats")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating frame_stats: %v", err)
		}
		err = migrateTable[model.BrakeEvent](sqliteDB, tx, "brake_events")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating brake_events: %v", err)
		}
		err = migrateTable[model.ControlEvent](sqliteDB, tx, "control_events")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating control_events: %v", err)
		}
		err = migrateTable[model.JamEvent](sqliteDB, tx, "jam_events")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating jam_events: %v", err)
		}
		err = migrateTable[model.RunSummary](sqliteDB, tx, "run_summaries")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating run_summaries: %v", err)
		}
		err = migrateTable[model.EnginePerformance](sqliteDB, tx, "engine_performances")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating engine_performances: %v", err)
		}

		// With no issues, we commit the transaction
		tx.Commit()

		// remove connections to the databases
		sqlConnection, err := sqliteDB.DB()
		if err != nil {
			Logger.Error("Error getting sqlite connection", "error", err)
			continue
		}
		err = sqlConnection.Close()
		if err != nil {
			Logger.Error("Error closing sqlite connection", "error", err)
		}
		err = os.Rename(sqlitePath, sqlitePath+".migrated")
		if err != nil {
			Logger.Error("Error renaming sqlite file", "error", err)
		}
		successfulMigrations = append(successfulMigrations, sqlitePath)
	}

	Logger.Info("Successfully migrated backups, it's recommended to delete these to avoid future data duplication",
		"count", len(successfulMigrations),
		"paths", successfulMigrations)

	return nil
}

// helper function for sqlite migrations
func migrateTable[M any](
	sqliteDB *gorm.DB,
	postgresDB *gorm.DB,
	tableName string,
) error {
	var row M
	var data = &map[string]any{}
	sqliteDB.Model(&row).
		Assign("id", gorm.Expr("NULL")). // the target assigns fresh ids
		Find(data)
	Logger.Info("Found records", "count", len(*data), "table", tableName)

	if len(*data) == 0 {
		return nil
	}

	Logger.Info("Inserting records", "count", len(*data), "table", tableName)

	// insert into postgres
	postgresDB.Model(&row).Clauses(
		clause.OnConflict{
			DoNothing: true,
		}).Create(data)
	if postgresDB.Error != nil {
		Logger.Error("Error migrating table", "error", postgresDB.Error, "table", tableName)
		return postgresDB.Error
	}

	return nil
}
