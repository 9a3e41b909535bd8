package sensor

import (
	"context"
	"time"
)

// Measurement is a raw sample from the sensor hardware.
type Measurement struct {
	// TemperatureC is the ambient temperature in Celsius.
	TemperatureC float64

	// Humidity is the relative humidity in percent (0-100).
	Humidity float64

	// Pressure is the barometric pressure in hPa, if the sensor
	// provides one.
	Pressure *float64
}

// Sensor produces a Measurement on demand. Hardware drivers (I2C BME280
// and friends) implement this interface outside the core; a read failure
// is logged and skipped, never fatal.
type Sensor interface {
	Read(ctx context.Context) (Measurement, error)
}

// Reading is a fully derived environmental sample as consumed by the batch
// writer, the control loops, and the shared state. Readings are immutable
// once produced.
//
// The JSON encoding is the durable-store format: a persisted batch
// round-trips field-for-field.
type Reading struct {
	TemperatureC float64   `json:"temperature_c"`
	TemperatureF float64   `json:"temperature_f"`
	Humidity     float64   `json:"humidity"`
	Pressure     *float64  `json:"pressure,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewReading derives a Reading from a raw measurement taken at ts.
func NewReading(m Measurement, ts time.Time) Reading {
	return Reading{
		TemperatureC: m.TemperatureC,
		TemperatureF: CelsiusToFahrenheit(m.TemperatureC),
		Humidity:     m.Humidity,
		Pressure:     m.Pressure,
		Timestamp:    ts.UTC(),
	}
}

// CelsiusToFahrenheit converts a Celsius temperature to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}
