// chamberd monitors and regulates an environmental chamber: it samples the
// chamber's climate sensor, batches readings into a time-series backend,
// and drives the heater and exhaust fan with hysteresis control.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openchamber/openchamber-core/internal/backend"
	"github.com/openchamber/openchamber-core/internal/control"
	"github.com/openchamber/openchamber-core/internal/durable"
	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
	"github.com/openchamber/openchamber-core/internal/infrastructure/database"
	"github.com/openchamber/openchamber-core/internal/infrastructure/logging"
	"github.com/openchamber/openchamber-core/internal/notify"
	"github.com/openchamber/openchamber-core/internal/orchestrator"
	"github.com/openchamber/openchamber-core/internal/queue"
	"github.com/openchamber/openchamber-core/internal/sensor"
	"github.com/openchamber/openchamber-core/internal/state"
	"github.com/openchamber/openchamber-core/internal/writer"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting chamberd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "chamber", cfg.Chamber.ID)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open the local SQLite store (runtime settings + unsent batches)
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Storage.Path,
		WALMode:     cfg.Storage.WALMode,
		BusyTimeout: cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening local storage: %w", err)
	}
	defer func() {
		log.Info("closing local storage")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing local storage", "error", closeErr)
		}
	}()
	log.Info("local storage opened", "path", cfg.Storage.Path)

	settings, err := config.NewStore(ctx, db)
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	if err := config.SeedStore(ctx, settings, cfg); err != nil {
		return fmt.Errorf("seeding settings store: %w", err)
	}

	store, err := durable.NewStore(ctx, db, cfg.Persistence.MaxBatches, log)
	if err != nil {
		return fmt.Errorf("opening durable batch store: %w", err)
	}

	// Resolve the time-series backend
	be, err := backend.New(cfg.Database, cfg.Chamber.ID)
	if err != nil {
		return fmt.Errorf("creating backend: %w", err)
	}
	defer func() {
		if closeErr := be.Close(); closeErr != nil {
			log.Error("error closing backend", "error", closeErr)
		}
	}()

	if err := be.EnsureTargetExists(ctx); err != nil {
		// A down backend at boot is survivable: readings queue locally and
		// the writer retries or spills to the durable store.
		log.Warn("backend target not confirmed at startup, deliveries will retry", "error", err)
	}
	log.Info("backend resolved", "type", be.Kind())

	// Connect the notifier (optional)
	var notifier *notify.Notifier
	if cfg.MQTT.Enabled {
		notifier, err = notify.Connect(cfg.MQTT, cfg.Chamber.ID, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := notifier.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT notifications disabled")
	}

	shared := state.New()
	readings := queue.NewBounded[sensor.Reading](cfg.Queue.MaxSize)

	// Batch writer
	writerOpts := []writer.Option{
		writer.WithLogger(log),
		writer.WithDurableStore(store),
		writer.WithSharedState(shared),
	}
	if notifier != nil {
		writerOpts = append(writerOpts,
			writer.WithAlertFunc(notifier.Alert),
			writer.WithRecoveryFunc(notifier.Recovery),
		)
	}
	// The final flush must finish inside the supervisor grace period with
	// room left to persist whatever could not be delivered.
	shutdownBudget := secs(cfg.Workers.GracePeriod) - time.Second
	if shutdownBudget < time.Second {
		shutdownBudget = time.Second
	}
	batchWriter := writer.NewWriter(writer.Config{
		BatchSize:       cfg.Database.BatchSize,
		FlushInterval:   secs(cfg.Database.FlushInterval),
		BackoffBase:     secs(cfg.Retry.BackoffBase),
		BackoffMax:      secs(cfg.Retry.BackoffMax),
		AlertThreshold:  cfg.Retry.AlertThreshold,
		PersistOnAlert:  cfg.Retry.PersistOnAlert,
		ShutdownTimeout: shutdownBudget,
	}, readings, be, writerOpts...)

	// Sensor reader. The chamber sensor driver is deployment hardware;
	// the core ships with the simulated sensor and real drivers implement
	// sensor.Sensor out of tree.
	reader := sensor.NewReader(
		sensor.NewSimulated(),
		func(ctx context.Context) time.Duration {
			return settings.GetDuration(ctx, config.KeySensorReadInterval, secs(cfg.Sensor.ReadInterval))
		},
		readings, shared, log,
	)

	// Control loops, thresholds re-read from the settings store every tick
	heaterLoop := control.NewLoop(
		state.ActuatorHeater, control.ModeHeat,
		func(r sensor.Reading) float64 { return r.TemperatureC },
		func(ctx context.Context) control.Thresholds {
			return control.Thresholds{
				Min:           settings.GetFloat(ctx, config.KeyHeaterMinTempC, cfg.Heater.MinTempC),
				Max:           settings.GetFloat(ctx, config.KeyHeaterMaxTempC, cfg.Heater.MaxTempC),
				Enabled:       settings.GetBool(ctx, config.KeyHeaterEnabled, cfg.Heater.Enabled),
				CheckInterval: settings.GetDuration(ctx, config.KeyHeaterCheckInterval, secs(cfg.Heater.CheckInterval)),
			}
		},
		newActuator(state.ActuatorHeater, log), shared,
		control.WithLogger(log),
		control.WithOnChange(stateChangeFunc(notifier)),
	)

	fanLoop := control.NewLoop(
		state.ActuatorFan, control.ModeVent,
		func(r sensor.Reading) float64 { return r.Humidity },
		func(ctx context.Context) control.Thresholds {
			return control.Thresholds{
				Min:           settings.GetFloat(ctx, config.KeyFanMinHumidity, cfg.Fan.MinHumidity),
				Max:           settings.GetFloat(ctx, config.KeyFanMaxHumidity, cfg.Fan.MaxHumidity),
				Enabled:       settings.GetBool(ctx, config.KeyFanEnabled, cfg.Fan.Enabled),
				CheckInterval: settings.GetDuration(ctx, config.KeyFanCheckInterval, secs(cfg.Fan.CheckInterval)),
			}
		},
		newActuator(state.ActuatorFan, log), shared,
		control.WithLogger(log),
		control.WithOnChange(stateChangeFunc(notifier)),
	)

	// Settings watcher: values take effect through the per-tick providers
	// above; the watcher makes each change visible in the logs as it lands.
	watcher := config.NewWatcher(settings, secs(cfg.Settings.PollInterval), log)
	for _, key := range []string{
		config.KeySensorReadInterval,
		config.KeyHeaterEnabled, config.KeyHeaterMinTempC, config.KeyHeaterMaxTempC, config.KeyHeaterCheckInterval,
		config.KeyFanEnabled, config.KeyFanMinHumidity, config.KeyFanMaxHumidity, config.KeyFanCheckInterval,
	} {
		watcher.Watch(key, func(string, string) {})
	}

	// Supervise the workers. The writer starts first so replayed batches go
	// out before fresh data, and stops last so the shutdown flush sees the
	// final readings.
	super := orchestrator.New(secs(cfg.Workers.GracePeriod), log)
	workers := []struct {
		name   string
		worker orchestrator.Worker
	}{
		{"batch-writer", batchWriter},
		{"sensor-reader", reader},
		{"heater-loop", heaterLoop},
		{"fan-loop", fanLoop},
		{"settings-watcher", watcher},
	}
	for _, w := range workers {
		if err := super.Register(w.name, w.worker); err != nil {
			return fmt.Errorf("registering worker: %w", err)
		}
	}
	if err := super.StartAll(ctx); err != nil {
		_ = super.StopAll()
		return fmt.Errorf("starting workers: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping workers")

	if err := super.StopAll(); err != nil {
		log.Error("not all workers stopped cleanly", "error", err)
	}

	log.Info("chamberd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CHAMBERD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CHAMBERD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// secs converts a decimal-seconds config value to a Duration.
func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// stateChangeFunc adapts the optional notifier to the control loop's
// change callback.
func stateChangeFunc(n *notify.Notifier) func(name string, on bool) {
	if n == nil {
		return nil
	}
	return n.StateChange
}

// relayActuator is the placeholder output driver: it logs transitions and
// reports success. Deployments with switching hardware replace it with a
// GPIO-backed control.Actuator.
type relayActuator struct {
	name string
	log  *logging.Logger
}

func newActuator(name string, log *logging.Logger) *relayActuator {
	return &relayActuator{name: name, log: log}
}

func (a *relayActuator) Set(on bool) error {
	a.log.Debug("relay set", "actuator", a.name, "on", on)
	return nil
}
