package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
chamber:
  id: "test-chamber"
sensor:
  read_interval: 2.5
database:
  enabled: true
  type: "influxdb"
  batch_size: 20
  influxdb:
    url: "http://localhost:8086"
    token: "secret"
    org: "home"
    bucket: "environment"
storage:
  path: "/tmp/test.db"
  wal_mode: true
heater:
  enabled: true
  min_temp_c: 18.0
  max_temp_c: 22.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Chamber.ID != "test-chamber" {
		t.Errorf("Chamber.ID = %q, want %q", cfg.Chamber.ID, "test-chamber")
	}
	if cfg.Sensor.ReadInterval != 2.5 {
		t.Errorf("Sensor.ReadInterval = %v, want 2.5", cfg.Sensor.ReadInterval)
	}
	if cfg.Database.Type != BackendInfluxDB {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, BackendInfluxDB)
	}
	if cfg.Database.BatchSize != 20 {
		t.Errorf("Database.BatchSize = %d, want 20", cfg.Database.BatchSize)
	}
	if cfg.Heater.MinTempC != 18.0 || cfg.Heater.MaxTempC != 22.0 {
		t.Errorf("Heater thresholds = %v/%v, want 18/22", cfg.Heater.MinTempC, cfg.Heater.MaxTempC)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: "/tmp/test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Type != BackendNone {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, BackendNone)
	}
	if cfg.Database.BatchSize != 10 {
		t.Errorf("Database.BatchSize = %d, want 10", cfg.Database.BatchSize)
	}
	if cfg.Database.FlushInterval != 60.0 {
		t.Errorf("Database.FlushInterval = %v, want 60", cfg.Database.FlushInterval)
	}
	if cfg.Queue.MaxSize != 10000 {
		t.Errorf("Queue.MaxSize = %d, want 10000", cfg.Queue.MaxSize)
	}
	if cfg.Retry.BackoffBase != 2.0 || cfg.Retry.BackoffMax != 300.0 {
		t.Errorf("Retry backoff = %v/%v, want 2/300", cfg.Retry.BackoffBase, cfg.Retry.BackoffMax)
	}
	if cfg.Retry.AlertThreshold != 5 {
		t.Errorf("Retry.AlertThreshold = %d, want 5", cfg.Retry.AlertThreshold)
	}
	if cfg.Persistence.MaxBatches != 100 {
		t.Errorf("Persistence.MaxBatches = %d, want 100", cfg.Persistence.MaxBatches)
	}
	if cfg.Settings.PollInterval != 2.0 {
		t.Errorf("Settings.PollInterval = %v, want 2", cfg.Settings.PollInterval)
	}
	if cfg.Heater.Enabled || cfg.Fan.Enabled {
		t.Error("control loops should be disabled by default")
	}
	if cfg.Heater.MinTempC != 18.0 || cfg.Heater.MaxTempC != 22.0 {
		t.Errorf("Heater band = %v/%v, want 18/22", cfg.Heater.MinTempC, cfg.Heater.MaxTempC)
	}
	if cfg.Fan.MinHumidity != 40.0 || cfg.Fan.MaxHumidity != 60.0 {
		t.Errorf("Fan band = %v/%v, want 40/60", cfg.Fan.MinHumidity, cfg.Fan.MaxHumidity)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	path := writeConfig(t, `
database:
  type: "mongodb"
storage:
  path: "/tmp/test.db"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for unknown backend type, got nil")
	}
}

func TestLoad_InvertedThresholds(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: "/tmp/test.db"
heater:
  enabled: true
  min_temp_c: 25.0
  max_temp_c: 20.0
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for min >= max thresholds, got nil")
	}
}

func TestLoad_MissingBackendURL(t *testing.T) {
	path := writeConfig(t, `
database:
  enabled: true
  type: "victoriametrics"
storage:
  path: "/tmp/test.db"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for missing victoriametrics URL, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CHAMBERD_INFLUXDB_TOKEN", "from-env")

	path := writeConfig(t, `
database:
  enabled: true
  type: "influxdb"
  influxdb:
    url: "http://localhost:8086"
    token: "from-file"
storage:
  path: "/tmp/test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.InfluxDB.Token != "from-env" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.Database.InfluxDB.Token, "from-env")
	}
}
