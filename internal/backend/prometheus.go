package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
	"github.com/openchamber/openchamber-core/internal/sensor"
)

// Prometheus pushes the latest reading's values to a Pushgateway. The
// gateway holds last-value semantics, so each batch collapses to its newest
// reading plus a running counter of readings delivered.
type Prometheus struct {
	url      string
	job      string
	instance string
	username string
	password string

	registry    *prometheus.Registry
	temperature prometheus.Gauge
	humidity    prometheus.Gauge
	pressure    prometheus.Gauge
	readings    prometheus.Counter
}

// NewPrometheus creates a Pushgateway backend.
func NewPrometheus(cfg config.PrometheusConfig, chamberID string) *Prometheus {
	labels := prometheus.Labels{"chamber": chamberID}
	b := &Prometheus{
		url:      strings.TrimRight(cfg.PushgatewayURL, "/"),
		job:      cfg.Job,
		instance: cfg.Instance,
		username: cfg.Username,
		password: cfg.Password,
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "chamber_temperature_celsius",
			Help:        "Latest chamber temperature in degrees Celsius.",
			ConstLabels: labels,
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "chamber_humidity_percent",
			Help:        "Latest chamber relative humidity.",
			ConstLabels: labels,
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "chamber_pressure_hpa",
			Help:        "Latest chamber barometric pressure in hPa.",
			ConstLabels: labels,
		}),
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "chamber_readings_total",
			Help:        "Total readings delivered to the gateway.",
			ConstLabels: labels,
		}),
	}
	b.registry.MustRegister(b.temperature, b.humidity, b.pressure, b.readings)
	return b
}

func (b *Prometheus) Kind() string { return config.BackendPrometheus }

// EnsureTargetExists checks the gateway's readiness endpoint. There is
// nothing to provision; metric groups appear on first push.
func (b *Prometheus) EnsureTargetExists(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url+"/-/ready", nil)
	if err != nil {
		return Permanent(fmt.Errorf("pushgateway readiness: %w", err))
	}
	if b.username != "" {
		req.SetBasicAuth(b.username, b.password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("pushgateway readiness: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return classifyHTTPStatus(resp.StatusCode,
			fmt.Errorf("pushgateway readiness: status %d", resp.StatusCode))
	}
	return nil
}

// Write sets the gauges from the newest reading, counts the whole batch,
// and pushes the metric group. Pushes replace each other, so failures are
// classified transient: a later push carries fresher values anyway.
func (b *Prometheus) Write(ctx context.Context, readings []sensor.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	newest := readings[len(readings)-1]

	b.temperature.Set(newest.TemperatureC)
	b.humidity.Set(newest.Humidity)
	if newest.Pressure != nil {
		b.pressure.Set(*newest.Pressure)
	}
	b.readings.Add(float64(len(readings)))

	pusher := push.New(b.url, b.job).Gatherer(b.registry)
	if b.instance != "" {
		pusher = pusher.Grouping("instance", b.instance)
	}
	if b.username != "" {
		pusher = pusher.BasicAuth(b.username, b.password)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return Transient(fmt.Errorf("pushgateway push: %w", err))
	}
	return nil
}

func (b *Prometheus) Close() error { return nil }
