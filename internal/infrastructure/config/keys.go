package config

import (
	"context"
	"strconv"
)

// Hot-reloadable setting keys. Everything else in Config is fixed at
// startup.
const (
	KeySensorReadInterval = "sensor.read_interval"

	KeyHeaterEnabled       = "heater.enabled"
	KeyHeaterMinTempC      = "heater.min_temp_c"
	KeyHeaterMaxTempC      = "heater.max_temp_c"
	KeyHeaterCheckInterval = "heater.check_interval"

	KeyFanEnabled       = "fan.enabled"
	KeyFanMinHumidity   = "fan.min_humidity"
	KeyFanMaxHumidity   = "fan.max_humidity"
	KeyFanCheckInterval = "fan.check_interval"
)

// SeedStore inserts the YAML defaults for all hot-reloadable keys into the
// settings store. Existing values are left untouched.
func SeedStore(ctx context.Context, store *Store, cfg *Config) error {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	b := strconv.FormatBool

	return store.Seed(ctx, map[string]string{
		KeySensorReadInterval: f(cfg.Sensor.ReadInterval),

		KeyHeaterEnabled:       b(cfg.Heater.Enabled),
		KeyHeaterMinTempC:      f(cfg.Heater.MinTempC),
		KeyHeaterMaxTempC:      f(cfg.Heater.MaxTempC),
		KeyHeaterCheckInterval: f(cfg.Heater.CheckInterval),

		KeyFanEnabled:       b(cfg.Fan.Enabled),
		KeyFanMinHumidity:   f(cfg.Fan.MinHumidity),
		KeyFanMaxHumidity:   f(cfg.Fan.MaxHumidity),
		KeyFanCheckInterval: f(cfg.Fan.CheckInterval),
	})
}
