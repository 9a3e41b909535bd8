package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
	"github.com/openchamber/openchamber-core/internal/sensor"
)

// InfluxDB writes batches to an InfluxDB v2 server using the blocking write
// API. Batching and retries are owned by the batch writer, so the client's
// own async batching stays out of the picture.
type InfluxDB struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	cfg         config.InfluxDBConfig
	measurement string
	chamberID   string
}

// NewInfluxDB creates an InfluxDB backend. No connection is made until
// EnsureTargetExists or the first Write.
func NewInfluxDB(cfg config.InfluxDBConfig, measurement, chamberID string) *InfluxDB {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxDB{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		cfg:         cfg,
		measurement: measurement,
		chamberID:   chamberID,
	}
}

func (b *InfluxDB) Kind() string { return config.BackendInfluxDB }

// EnsureTargetExists pings the server and creates the bucket if missing.
func (b *InfluxDB) EnsureTargetExists(ctx context.Context) error {
	healthy, err := b.client.Ping(ctx)
	if err != nil {
		return Transient(fmt.Errorf("influxdb ping: %w", err))
	}
	if !healthy {
		return Transient(errors.New("influxdb: server not healthy"))
	}

	if _, err := b.client.BucketsAPI().FindBucketByName(ctx, b.cfg.Bucket); err == nil {
		return nil
	}

	org, err := b.client.OrganizationsAPI().FindOrganizationByName(ctx, b.cfg.Org)
	if err != nil {
		return classifyInflux(fmt.Errorf("influxdb: looking up org %q: %w", b.cfg.Org, err))
	}
	if _, err := b.client.BucketsAPI().CreateBucketWithName(ctx, org, b.cfg.Bucket); err != nil {
		return classifyInflux(fmt.Errorf("influxdb: creating bucket %q: %w", b.cfg.Bucket, err))
	}
	return nil
}

func (b *InfluxDB) Write(ctx context.Context, readings []sensor.Reading) error {
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		fields := map[string]interface{}{
			"temperature_c": r.TemperatureC,
			"temperature_f": r.TemperatureF,
			"humidity":      r.Humidity,
		}
		if r.Pressure != nil {
			fields["pressure"] = *r.Pressure
		}
		points = append(points, write.NewPoint(
			b.measurement,
			map[string]string{"chamber": b.chamberID},
			fields,
			r.Timestamp,
		))
	}

	if err := b.writeAPI.WritePoint(ctx, points...); err != nil {
		return classifyInflux(fmt.Errorf("influxdb write: %w", err))
	}
	return nil
}

func (b *InfluxDB) Close() error {
	b.client.Close()
	return nil
}

// classifyInflux maps an InfluxDB API error to transient or permanent. The
// client surfaces HTTP failures as *http.Error with the status code; 429
// and server errors are retryable, other 4xx responses mean the request
// itself is bad. Everything without a status code is a connectivity
// problem.
func classifyInflux(err error) error {
	var apiErr *ihttp.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return Transient(err)
		}
		if apiErr.StatusCode >= 400 {
			return Permanent(err)
		}
	}
	return Transient(err)
}
