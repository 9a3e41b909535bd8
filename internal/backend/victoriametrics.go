package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
	"github.com/openchamber/openchamber-core/internal/sensor"
)

const vmHealthTimeout = 5 * time.Second

// VictoriaMetrics writes batches to a VictoriaMetrics server. The server
// speaks InfluxDB line protocol on its /write endpoint, so each batch
// becomes a single POST of newline-delimited lines.
type VictoriaMetrics struct {
	url         string
	username    string
	password    string
	measurement string
	chamberID   string
	httpClient  *http.Client
}

// NewVictoriaMetrics creates a VictoriaMetrics backend.
func NewVictoriaMetrics(cfg config.VictoriaMetricsConfig, measurement, chamberID string) *VictoriaMetrics {
	return &VictoriaMetrics{
		url:         strings.TrimRight(cfg.URL, "/"),
		username:    cfg.Username,
		password:    cfg.Password,
		measurement: measurement,
		chamberID:   chamberID,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout * float64(time.Second)),
		},
	}
}

func (b *VictoriaMetrics) Kind() string { return config.BackendVictoriaMetrics }

// EnsureTargetExists verifies connectivity via GET /health. VictoriaMetrics
// creates series on first write, so there is nothing to provision.
func (b *VictoriaMetrics) EnsureTargetExists(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, vmHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url+"/health", nil)
	if err != nil {
		return Permanent(fmt.Errorf("victoriametrics health check: %w", err))
	}
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("victoriametrics health check: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return classifyHTTPStatus(resp.StatusCode,
			fmt.Errorf("victoriametrics health check: status %d", resp.StatusCode))
	}
	return nil
}

func (b *VictoriaMetrics) Write(ctx context.Context, readings []sensor.Reading) error {
	lines := make([]string, 0, len(readings))
	for _, r := range readings {
		fields := map[string]interface{}{
			"temperature_c": r.TemperatureC,
			"temperature_f": r.TemperatureF,
			"humidity":      r.Humidity,
		}
		if r.Pressure != nil {
			fields["pressure"] = *r.Pressure
		}
		lines = append(lines, formatLineProtocol(
			b.measurement,
			map[string]string{"chamber": b.chamberID},
			fields,
			r.Timestamp,
		))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+"/write",
		strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		return Permanent(fmt.Errorf("victoriametrics write: %w", err))
	}
	req.Header.Set("Content-Type", "text/plain")
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("victoriametrics write: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return classifyHTTPStatus(resp.StatusCode,
			fmt.Errorf("victoriametrics write: status %d", resp.StatusCode))
	}
	return nil
}

func (b *VictoriaMetrics) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

func (b *VictoriaMetrics) authorize(req *http.Request) {
	if b.username != "" {
		req.SetBasicAuth(b.username, b.password)
	}
}

// classifyHTTPStatus maps a non-success status to transient or permanent:
// 429 and 5xx are retryable, other 4xx responses reject the payload itself.
func classifyHTTPStatus(status int, err error) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return Transient(err)
	}
	if status >= 400 {
		return Permanent(err)
	}
	return Transient(err)
}
