package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SimConfig holds the tick loop and population settings.
type SimConfig struct {
	Cars          int     `json:"cars" mapstructure:"cars"`
	TickRate      int     `json:"tickRate" mapstructure:"tickRate"`
	MaxTicks      int     `json:"maxTicks" mapstructure:"maxTicks"`
	Seed          int64   `json:"seed" mapstructure:"seed"`
	TimeScaleMin  float64 `json:"timeScaleMin" mapstructure:"timeScaleMin"`
	TimeScaleMax  float64 `json:"timeScaleMax" mapstructure:"timeScaleMax"`
	TimeScaleStep float64 `json:"timeScaleStep" mapstructure:"timeScaleStep"`

	// BrakeAtTicks triggers a manual brake on a random car at each listed
	// tick index, for scripted headless runs.
	BrakeAtTicks []int `json:"brakeAtTicks" mapstructure:"brakeAtTicks"`
}

// TrackConfig holds the track topology settings.
type TrackConfig struct {
	Kind   string  `json:"kind" mapstructure:"kind"`
	Width  float64 `json:"width" mapstructure:"width"`
	Height float64 `json:"height" mapstructure:"height"`
}

// DistanceConfig is a per-topology following distance pair.
type DistanceConfig struct {
	SafeDistance float64 `json:"safeDistance" mapstructure:"safeDistance"`
	MinDistance  float64 `json:"minDistance" mapstructure:"minDistance"`
}

// BehaviorConfig holds the car-following policy constants.
type BehaviorConfig struct {
	SpeedLimit         float64        `json:"speedLimit" mapstructure:"speedLimit"`
	Acceleration       float64        `json:"acceleration" mapstructure:"acceleration"`
	Deceleration       float64        `json:"deceleration" mapstructure:"deceleration"`
	ResetSpeedFraction float64        `json:"resetSpeedFraction" mapstructure:"resetSpeedFraction"`
	Circular           DistanceConfig `json:"circular" mapstructure:"circular"`
	Linear             DistanceConfig `json:"linear" mapstructure:"linear"`
}

// BrakeConfig holds the stochastic and manual brake event settings.
type BrakeConfig struct {
	RandomChance      float64 `json:"randomChance" mapstructure:"randomChance"`
	RandomDurationMin int     `json:"randomDurationMin" mapstructure:"randomDurationMin"`
	RandomDurationMax int     `json:"randomDurationMax" mapstructure:"randomDurationMax"`
	RandomCooldown    int     `json:"randomCooldown" mapstructure:"randomCooldown"`
	ManualDurationMin int     `json:"manualDurationMin" mapstructure:"manualDurationMin"`
	ManualDurationMax int     `json:"manualDurationMax" mapstructure:"manualDurationMax"`
	ManualCooldown    int     `json:"manualCooldown" mapstructure:"manualCooldown"`
	SpeedCutFactor    float64 `json:"speedCutFactor" mapstructure:"speedCutFactor"`
	AlertTicks        int     `json:"alertTicks" mapstructure:"alertTicks"`
}

// DetectConfig holds the phantom-jam detector thresholds.
type DetectConfig struct {
	Enabled       bool    `json:"enabled" mapstructure:"enabled"`
	BaselineTicks int     `json:"baselineTicks" mapstructure:"baselineTicks"`
	WindowTicks   int     `json:"windowTicks" mapstructure:"windowTicks"`
	DropRatio     float64 `json:"dropRatio" mapstructure:"dropRatio"`
	MinBaseline   float64 `json:"minBaseline" mapstructure:"minBaseline"`
	StableTicks   int     `json:"stableTicks" mapstructure:"stableTicks"`
	MinCars       int     `json:"minCars" mapstructure:"minCars"`
}

// SessionConfig holds session-directory storage backend settings.
type SessionConfig struct {
	OutputDir string `json:"outputDir" mapstructure:"outputDir"`
}

// MemoryConfig holds in-memory/JSON storage backend settings.
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds sqlite storage backend settings.
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// WebsocketConfig holds the live streaming backend settings.
type WebsocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type          string          `json:"type" mapstructure:"type"`
	FlushInterval time.Duration   `json:"flushInterval" mapstructure:"flushInterval"`
	Session       SessionConfig   `json:"session" mapstructure:"session"`
	Memory        MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Websocket     WebsocketConfig `json:"websocket" mapstructure:"websocket"`
}

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds the stats timeseries writer settings.
type InfluxConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Host      string `json:"host" mapstructure:"host"`
	Port      string `json:"port" mapstructure:"port"`
	Protocol  string `json:"protocol" mapstructure:"protocol"`
	Token     string `json:"token" mapstructure:"token"`
	Org       string `json:"org" mapstructure:"org"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	BackupDir string `json:"backupDir" mapstructure:"backupDir"`
}

// GraylogConfig holds the GELF log forwarding settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds the OpenTelemetry provider settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// APIConfig holds the upload server settings.
type APIConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
}

// GeoConfig anchors the simulation plane on the globe for georeferenced
// exports.
type GeoConfig struct {
	OriginLat     float64 `json:"originLat" mapstructure:"originLat"`
	OriginLon     float64 `json:"originLon" mapstructure:"originLon"`
	MetersPerUnit float64 `json:"metersPerUnit" mapstructure:"metersPerUnit"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults are
// registered before the read, so callers may treat a missing file as
// non-fatal and run on defaults.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "INFO")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("sim.cars", 15)
	viper.SetDefault("sim.tickRate", 60)
	viper.SetDefault("sim.maxTicks", 0)
	viper.SetDefault("sim.seed", 0)
	viper.SetDefault("sim.timeScaleMin", 0.1)
	viper.SetDefault("sim.timeScaleMax", 3.0)
	viper.SetDefault("sim.timeScaleStep", 0.1)
	viper.SetDefault("sim.brakeAtTicks", []int{})

	viper.SetDefault("track.kind", "circular")
	viper.SetDefault("track.width", 900.0)
	viper.SetDefault("track.height", 700.0)

	viper.SetDefault("behavior.speedLimit", 2.0)
	viper.SetDefault("behavior.acceleration", 0.02)
	viper.SetDefault("behavior.deceleration", 0.08)
	viper.SetDefault("behavior.resetSpeedFraction", 0.6)
	viper.SetDefault("behavior.circular.safeDistance", 50.0)
	viper.SetDefault("behavior.circular.minDistance", 40.0)
	viper.SetDefault("behavior.linear.safeDistance", 35.0)
	viper.SetDefault("behavior.linear.minDistance", 25.0)

	viper.SetDefault("brake.randomChance", 0.0)
	viper.SetDefault("brake.randomDurationMin", 15)
	viper.SetDefault("brake.randomDurationMax", 30)
	viper.SetDefault("brake.randomCooldown", 200)
	viper.SetDefault("brake.manualDurationMin", 30)
	viper.SetDefault("brake.manualDurationMax", 45)
	viper.SetDefault("brake.manualCooldown", 120)
	viper.SetDefault("brake.speedCutFactor", 0.3)
	viper.SetDefault("brake.alertTicks", 180)

	viper.SetDefault("detect.enabled", true)
	viper.SetDefault("detect.baselineTicks", 90)
	viper.SetDefault("detect.windowTicks", 60)
	viper.SetDefault("detect.dropRatio", 0.6)
	viper.SetDefault("detect.minBaseline", 1.0)
	viper.SetDefault("detect.stableTicks", 10)
	viper.SetDefault("detect.minCars", 5)

	viper.SetDefault("storage.type", "session")
	viper.SetDefault("storage.flushInterval", "1s")
	viper.SetDefault("storage.session.outputDir", "./telemetry")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "30s")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/local.db")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "phantomjam")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "phantomjam-metrics")
	viper.SetDefault("influx.bucket", "runs")
	viper.SetDefault("influx.backupDir", "./influx_backup")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "phantomjam-engine")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("geo.originLat", 0.0)
	viper.SetDefault("geo.originLon", 0.0)
	viper.SetDefault("geo.metersPerUnit", 1.0)

	viper.SetConfigName("phantomjam.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSimConfig returns the tick loop settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		Cars:          viper.GetInt("sim.cars"),
		TickRate:      viper.GetInt("sim.tickRate"),
		MaxTicks:      viper.GetInt("sim.maxTicks"),
		Seed:          viper.GetInt64("sim.seed"),
		TimeScaleMin:  viper.GetFloat64("sim.timeScaleMin"),
		TimeScaleMax:  viper.GetFloat64("sim.timeScaleMax"),
		TimeScaleStep: viper.GetFloat64("sim.timeScaleStep"),
		BrakeAtTicks:  viper.GetIntSlice("sim.brakeAtTicks"),
	}
}

// GetTrackConfig returns the track topology settings.
func GetTrackConfig() TrackConfig {
	return TrackConfig{
		Kind:   viper.GetString("track.kind"),
		Width:  viper.GetFloat64("track.width"),
		Height: viper.GetFloat64("track.height"),
	}
}

// GetBehaviorConfig returns the car-following policy constants.
func GetBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		SpeedLimit:         viper.GetFloat64("behavior.speedLimit"),
		Acceleration:       viper.GetFloat64("behavior.acceleration"),
		Deceleration:       viper.GetFloat64("behavior.deceleration"),
		ResetSpeedFraction: viper.GetFloat64("behavior.resetSpeedFraction"),
		Circular: DistanceConfig{
			SafeDistance: viper.GetFloat64("behavior.circular.safeDistance"),
			MinDistance:  viper.GetFloat64("behavior.circular.minDistance"),
		},
		Linear: DistanceConfig{
			SafeDistance: viper.GetFloat64("behavior.linear.safeDistance"),
			MinDistance:  viper.GetFloat64("behavior.linear.minDistance"),
		},
	}
}

// GetBrakeConfig returns the brake event settings.
func GetBrakeConfig() BrakeConfig {
	return BrakeConfig{
		RandomChance:      viper.GetFloat64("brake.randomChance"),
		RandomDurationMin: viper.GetInt("brake.randomDurationMin"),
		RandomDurationMax: viper.GetInt("brake.randomDurationMax"),
		RandomCooldown:    viper.GetInt("brake.randomCooldown"),
		ManualDurationMin: viper.GetInt("brake.manualDurationMin"),
		ManualDurationMax: viper.GetInt("brake.manualDurationMax"),
		ManualCooldown:    viper.GetInt("brake.manualCooldown"),
		SpeedCutFactor:    viper.GetFloat64("brake.speedCutFactor"),
		AlertTicks:        viper.GetInt("brake.alertTicks"),
	}
}

// GetDetectConfig returns the phantom-jam detector thresholds.
func GetDetectConfig() DetectConfig {
	return DetectConfig{
		Enabled:       viper.GetBool("detect.enabled"),
		BaselineTicks: viper.GetInt("detect.baselineTicks"),
		WindowTicks:   viper.GetInt("detect.windowTicks"),
		DropRatio:     viper.GetFloat64("detect.dropRatio"),
		MinBaseline:   viper.GetFloat64("detect.minBaseline"),
		StableTicks:   viper.GetInt("detect.stableTicks"),
		MinCars:       viper.GetInt("detect.minCars"),
	}
}

// GetStorageConfig returns the recording backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		Session: SessionConfig{
			OutputDir: viper.GetString("storage.session.outputDir"),
		},
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Websocket: WebsocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDBConfig returns the postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the stats timeseries writer settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetGraylogConfig returns the GELF forwarding settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry provider settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetAPIConfig returns the upload server settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled:   viper.GetBool("api.enabled"),
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetGeoConfig returns the plane georeferencing settings.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		OriginLat:     viper.GetFloat64("geo.originLat"),
		OriginLon:     viper.GetFloat64("geo.originLon"),
		MetersPerUnit: viper.GetFloat64("geo.metersPerUnit"),
	}
}
