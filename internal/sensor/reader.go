package sensor

import (
	"context"
	"time"
)

// Logger is the minimal logging interface the reader needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Enqueuer accepts readings for batch delivery. Enqueue reports whether an
// older reading was evicted to make room.
type Enqueuer interface {
	Enqueue(r Reading) bool
}

// Publisher receives the latest reading for consumers that only care about
// the current value.
type Publisher interface {
	SetReading(r Reading)
}

// IntervalFunc returns the current sampling interval. It is consulted
// before every sample so interval changes take effect without a restart.
type IntervalFunc func(ctx context.Context) time.Duration

// Reader samples the sensor on a fixed cadence, derives a Reading from each
// sample, and hands it to the queue and the shared state.
//
// A failed sample is logged and skipped; the reader keeps its cadence and
// never terminates on sensor errors.
type Reader struct {
	sensor   Sensor
	interval IntervalFunc
	queue    Enqueuer
	publish  Publisher
	logger   Logger
}

// NewReader creates a reader. interval must not be nil; publish may be nil
// when no latest-value consumer exists.
func NewReader(s Sensor, interval IntervalFunc, queue Enqueuer, publish Publisher, logger Logger) *Reader {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Reader{
		sensor:   s,
		interval: interval,
		queue:    queue,
		publish:  publish,
		logger:   logger,
	}
}

// Run samples until ctx is cancelled. It always returns nil: sensor
// failures degrade to skipped samples rather than worker exit.
func (r *Reader) Run(ctx context.Context) error {
	r.logger.Info("sensor reader started", "interval", r.interval(ctx).String())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sensor reader stopped")
			return nil
		case <-timer.C:
		}

		r.sample(ctx)
		timer.Reset(r.interval(ctx))
	}
}

func (r *Reader) sample(ctx context.Context) {
	m, err := r.sensor.Read(ctx)
	if err != nil {
		r.logger.Warn("sensor read failed, skipping sample", "error", err)
		return
	}

	reading := NewReading(m, time.Now())
	if r.publish != nil {
		r.publish.SetReading(reading)
	}
	if r.queue.Enqueue(reading) {
		r.logger.Warn("queue full, oldest reading dropped")
	}

	r.logger.Debug("sample taken",
		"temperature_c", reading.TemperatureC,
		"humidity", reading.Humidity)
}
