package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openchamber/openchamber-core/internal/infrastructure/logging"
)

// Backend type identifiers accepted in database.type.
const (
	BackendInfluxDB        = "influxdb"
	BackendVictoriaMetrics = "victoriametrics"
	BackendTimescaleDB     = "timescaledb"
	BackendPrometheus      = "prometheus"
	BackendNone            = "none"
)

// Config is the root configuration structure for the chamber daemon.
// All configuration is loaded from YAML; secrets can be overridden by
// environment variables (see applyEnvOverrides).
type Config struct {
	Chamber     ChamberConfig     `yaml:"chamber"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Database    DatabaseConfig    `yaml:"database"`
	Queue       QueueConfig       `yaml:"queue"`
	Retry       RetryConfig       `yaml:"retry"`
	Storage     StorageConfig     `yaml:"storage"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Heater      HeaterConfig      `yaml:"heater"`
	Fan         FanConfig         `yaml:"fan"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Settings    SettingsConfig    `yaml:"settings"`
	Workers     WorkersConfig     `yaml:"workers"`
	Logging     logging.Config    `yaml:"logging"`
}

// ChamberConfig identifies this chamber in time-series tags and MQTT topics.
type ChamberConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SensorConfig contains sampling settings.
type SensorConfig struct {
	// ReadInterval is the sampling period in seconds. Hot-reloadable via
	// the settings store key "sensor.read_interval".
	ReadInterval float64 `yaml:"read_interval"`

	// SeaLevelPressure calibrates altitude-compensated pressure readings (hPa).
	SeaLevelPressure float64 `yaml:"sea_level_pressure"`
}

// DatabaseConfig selects and configures the time-series backend.
// The backend is resolved once at startup; changing the type requires a
// restart (thresholds and intervals hot-reload, backend selection does not).
type DatabaseConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Type          string  `yaml:"type"` // influxdb, victoriametrics, timescaledb, prometheus, none
	Measurement   string  `yaml:"measurement"`
	BatchSize     int     `yaml:"batch_size"`
	FlushInterval float64 `yaml:"flush_interval"` // seconds

	InfluxDB        InfluxDBConfig        `yaml:"influxdb"`
	VictoriaMetrics VictoriaMetricsConfig `yaml:"victoriametrics"`
	TimescaleDB     TimescaleDBConfig     `yaml:"timescaledb"`
	Prometheus      PrometheusConfig      `yaml:"prometheus"`
}

// InfluxDBConfig contains InfluxDB v2 connection settings.
type InfluxDBConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// VictoriaMetricsConfig contains VictoriaMetrics connection settings.
// Writes use InfluxDB line protocol on the /write endpoint.
type VictoriaMetricsConfig struct {
	URL      string  `yaml:"url"`
	Username string  `yaml:"username"`
	Password string  `yaml:"password"`
	Timeout  float64 `yaml:"timeout"` // seconds
}

// TimescaleDBConfig contains TimescaleDB (PostgreSQL) connection settings.
type TimescaleDBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
	SSLMode  string `yaml:"ssl_mode"`
}

// PrometheusConfig contains Prometheus Pushgateway settings.
type PrometheusConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
	Instance       string `yaml:"instance"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
}

// QueueConfig bounds the in-memory handoff queue between the sensor reader
// and the batch writer.
type QueueConfig struct {
	MaxSize int `yaml:"max_size"`
}

// RetryConfig controls the batch writer's failure handling.
type RetryConfig struct {
	// BackoffBase is the first retry delay in seconds; doubles per failure.
	BackoffBase float64 `yaml:"backoff_base"`

	// BackoffMax caps the retry delay in seconds.
	BackoffMax float64 `yaml:"backoff_max"`

	// AlertThreshold is the consecutive-failure count that triggers an alert.
	AlertThreshold int `yaml:"alert_threshold"`

	// PersistOnAlert hands the failing batch to the durable store once the
	// alert threshold is reached, bounding memory during extended outages.
	PersistOnAlert bool `yaml:"persist_on_alert"`
}

// StorageConfig contains local SQLite settings (durable batches + runtime
// settings share one file).
type StorageConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// PersistenceConfig caps the durable store.
type PersistenceConfig struct {
	// MaxBatches is the maximum number of unsent batches kept on disk;
	// the oldest batch is dropped when the cap is exceeded.
	MaxBatches int `yaml:"max_batches"`
}

// HeaterConfig contains heater control thresholds. The threshold values are
// seeded into the settings store and hot-reloadable from there.
type HeaterConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MinTempC      float64 `yaml:"min_temp_c"`
	MaxTempC      float64 `yaml:"max_temp_c"`
	CheckInterval float64 `yaml:"check_interval"` // seconds
}

// FanConfig contains exhaust fan control thresholds, hot-reloadable like
// the heater's.
type FanConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MinHumidity   float64 `yaml:"min_humidity"`
	MaxHumidity   float64 `yaml:"max_humidity"`
	CheckInterval float64 `yaml:"check_interval"` // seconds
}

// MQTTConfig contains broker settings for alert and state notifications.
type MQTTConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Broker      MQTTBroker     `yaml:"broker"`
	Auth        MQTTAuth       `yaml:"auth"`
	QoS         int            `yaml:"qos"`
	TopicPrefix string         `yaml:"topic_prefix"`
}

// MQTTBroker contains broker connection details.
type MQTTBroker struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuth contains broker credentials.
type MQTTAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SettingsConfig controls the runtime settings store and its change watcher.
type SettingsConfig struct {
	// PollInterval is how often the watcher checks the settings revision
	// for changes, in seconds.
	PollInterval float64 `yaml:"poll_interval"`
}

// WorkersConfig controls worker supervision.
type WorkersConfig struct {
	// GracePeriod is how long Stop waits for a worker to exit before
	// marking it crashed, in seconds.
	GracePeriod float64 `yaml:"grace_period"`
}

// Load reads, parses, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from the operator's CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills zero values with operational defaults.
func (c *Config) applyDefaults() {
	if c.Chamber.ID == "" {
		c.Chamber.ID = "chamber-01"
	}
	if c.Sensor.ReadInterval <= 0 {
		c.Sensor.ReadInterval = 5.0
	}
	if c.Sensor.SeaLevelPressure <= 0 {
		c.Sensor.SeaLevelPressure = 1013.25
	}
	if c.Database.Type == "" {
		c.Database.Type = BackendNone
	}
	if c.Database.Measurement == "" {
		c.Database.Measurement = "environment"
	}
	if c.Database.BatchSize <= 0 {
		c.Database.BatchSize = 10
	}
	if c.Database.FlushInterval <= 0 {
		c.Database.FlushInterval = 60.0
	}
	if c.Queue.MaxSize <= 0 {
		c.Queue.MaxSize = 10000
	}
	if c.Retry.BackoffBase <= 0 {
		c.Retry.BackoffBase = 2.0
	}
	if c.Retry.BackoffMax <= 0 {
		c.Retry.BackoffMax = 300.0
	}
	if c.Retry.AlertThreshold <= 0 {
		c.Retry.AlertThreshold = 5
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/chamberd.db"
	}
	if c.Storage.BusyTimeout <= 0 {
		c.Storage.BusyTimeout = 5
	}
	if c.Persistence.MaxBatches <= 0 {
		c.Persistence.MaxBatches = 100
	}
	if c.Heater.MinTempC == 0 && c.Heater.MaxTempC == 0 {
		c.Heater.MinTempC = 18.0
		c.Heater.MaxTempC = 22.0
	}
	if c.Heater.CheckInterval <= 0 {
		c.Heater.CheckInterval = 10.0
	}
	if c.Fan.MinHumidity == 0 && c.Fan.MaxHumidity == 0 {
		c.Fan.MinHumidity = 40.0
		c.Fan.MaxHumidity = 60.0
	}
	if c.Fan.CheckInterval <= 0 {
		c.Fan.CheckInterval = 10.0
	}
	if c.MQTT.Broker.Port == 0 {
		c.MQTT.Broker.Port = 1883
	}
	if c.MQTT.Broker.ClientID == "" {
		c.MQTT.Broker.ClientID = "chamberd"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "chamber"
	}
	if c.Settings.PollInterval <= 0 {
		c.Settings.PollInterval = 2.0
	}
	if c.Workers.GracePeriod <= 0 {
		c.Workers.GracePeriod = 5.0
	}
	if c.Database.TimescaleDB.Port == 0 {
		c.Database.TimescaleDB.Port = 5432
	}
	if c.Database.TimescaleDB.Table == "" {
		c.Database.TimescaleDB.Table = "environment_data"
	}
	if c.Database.TimescaleDB.SSLMode == "" {
		c.Database.TimescaleDB.SSLMode = "prefer"
	}
	if c.Database.VictoriaMetrics.Timeout <= 0 {
		c.Database.VictoriaMetrics.Timeout = 10.0
	}
	if c.Database.Prometheus.Job == "" {
		c.Database.Prometheus.Job = "chamberd"
	}
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file. Only credentials are overridable this way.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHAMBERD_INFLUXDB_TOKEN"); v != "" {
		c.Database.InfluxDB.Token = v
	}
	if v := os.Getenv("CHAMBERD_TIMESCALEDB_PASSWORD"); v != "" {
		c.Database.TimescaleDB.Password = v
	}
	if v := os.Getenv("CHAMBERD_VICTORIAMETRICS_PASSWORD"); v != "" {
		c.Database.VictoriaMetrics.Password = v
	}
	if v := os.Getenv("CHAMBERD_PROMETHEUS_PASSWORD"); v != "" {
		c.Database.Prometheus.Password = v
	}
	if v := os.Getenv("CHAMBERD_MQTT_PASSWORD"); v != "" {
		c.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for operator errors that would
// otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case BackendInfluxDB, BackendVictoriaMetrics, BackendTimescaleDB, BackendPrometheus, BackendNone:
	default:
		return fmt.Errorf("database.type: unknown backend %q", c.Database.Type)
	}

	if c.Database.Enabled {
		switch c.Database.Type {
		case BackendInfluxDB:
			if c.Database.InfluxDB.URL == "" {
				return fmt.Errorf("database.influxdb.url is required when type is %q", BackendInfluxDB)
			}
		case BackendVictoriaMetrics:
			if c.Database.VictoriaMetrics.URL == "" {
				return fmt.Errorf("database.victoriametrics.url is required when type is %q", BackendVictoriaMetrics)
			}
		case BackendTimescaleDB:
			if c.Database.TimescaleDB.Host == "" {
				return fmt.Errorf("database.timescaledb.host is required when type is %q", BackendTimescaleDB)
			}
		case BackendPrometheus:
			if c.Database.Prometheus.PushgatewayURL == "" {
				return fmt.Errorf("database.prometheus.pushgateway_url is required when type is %q", BackendPrometheus)
			}
		}
	}

	if c.Heater.Enabled && c.Heater.MinTempC >= c.Heater.MaxTempC {
		return fmt.Errorf("heater: min_temp_c (%.1f) must be less than max_temp_c (%.1f)",
			c.Heater.MinTempC, c.Heater.MaxTempC)
	}
	if c.Fan.Enabled && c.Fan.MinHumidity >= c.Fan.MaxHumidity {
		return fmt.Errorf("fan: min_humidity (%.1f) must be less than max_humidity (%.1f)",
			c.Fan.MinHumidity, c.Fan.MaxHumidity)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			return fmt.Errorf("mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}

	return nil
}
