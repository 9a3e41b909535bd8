package backend

import (
	"fmt"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
)

// New builds the backend selected by cfg. A disabled database section or a
// type of "none" yields the noop backend. The backend set is closed: an
// unknown type is an error, never a silent noop.
func New(cfg config.DatabaseConfig, chamberID string) (Backend, error) {
	if !cfg.Enabled || cfg.Type == config.BackendNone {
		return Noop{}, nil
	}

	switch cfg.Type {
	case config.BackendInfluxDB:
		return NewInfluxDB(cfg.InfluxDB, cfg.Measurement, chamberID), nil
	case config.BackendVictoriaMetrics:
		return NewVictoriaMetrics(cfg.VictoriaMetrics, cfg.Measurement, chamberID), nil
	case config.BackendTimescaleDB:
		return NewTimescaleDB(cfg.TimescaleDB, chamberID), nil
	case config.BackendPrometheus:
		return NewPrometheus(cfg.Prometheus, chamberID), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}
