package backend

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-pg/pg/v10"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
	"github.com/openchamber/openchamber-core/internal/sensor"
)

// TimescaleDB writes batches to a TimescaleDB (or plain PostgreSQL) table
// with one row per reading. Batches go out as a single multi-row INSERT.
type TimescaleDB struct {
	db        *pg.DB
	table     string
	chamberID string
}

type environmentRow struct {
	Time         time.Time `pg:"time,use_zero"`
	Chamber      string    `pg:"chamber"`
	TemperatureC float64   `pg:"temperature_c,use_zero"`
	TemperatureF float64   `pg:"temperature_f,use_zero"`
	Humidity     float64   `pg:"humidity,use_zero"`
	Pressure     *float64  `pg:"pressure"`
}

// NewTimescaleDB creates a TimescaleDB backend. go-pg connects lazily, so
// no round trip happens here.
func NewTimescaleDB(cfg config.TimescaleDBConfig, chamberID string) *TimescaleDB {
	opts := &pg.Options{
		Addr:     net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		User:     cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	}
	if cfg.SSLMode == "require" || cfg.SSLMode == "verify-full" {
		opts.TLSConfig = &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
			InsecureSkipVerify: cfg.SSLMode == "require", //nolint:gosec // "require" skips verification by definition
		}
	}
	return &TimescaleDB{
		db:        pg.Connect(opts),
		table:     cfg.Table,
		chamberID: chamberID,
	}
}

func (b *TimescaleDB) Kind() string { return config.BackendTimescaleDB }

// EnsureTargetExists creates the table and promotes it to a hypertable.
// The hypertable call is best-effort: plain PostgreSQL without the
// timescaledb extension still works, just without time partitioning.
func (b *TimescaleDB) EnsureTargetExists(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ? (
			time          TIMESTAMPTZ      NOT NULL,
			chamber       TEXT             NOT NULL,
			temperature_c DOUBLE PRECISION NOT NULL,
			temperature_f DOUBLE PRECISION NOT NULL,
			humidity      DOUBLE PRECISION NOT NULL,
			pressure      DOUBLE PRECISION
		)`, pg.Ident(b.table))
	if err != nil {
		return classifyPG(fmt.Errorf("timescaledb: creating table %q: %w", b.table, err))
	}

	_, err = b.db.ExecContext(ctx,
		`SELECT create_hypertable(?, 'time', if_not_exists => TRUE)`, b.table)
	if err != nil && !isMissingTimescale(err) {
		return classifyPG(fmt.Errorf("timescaledb: creating hypertable for %q: %w", b.table, err))
	}
	return nil
}

func (b *TimescaleDB) Write(ctx context.Context, readings []sensor.Reading) error {
	rows := make([]environmentRow, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, environmentRow{
			Time:         r.Timestamp,
			Chamber:      b.chamberID,
			TemperatureC: r.TemperatureC,
			TemperatureF: r.TemperatureF,
			Humidity:     r.Humidity,
			Pressure:     r.Pressure,
		})
	}

	_, err := b.db.ModelContext(ctx, &rows).TableExpr("?", pg.Ident(b.table)).Insert()
	if err != nil {
		return classifyPG(fmt.Errorf("timescaledb write: %w", err))
	}
	return nil
}

func (b *TimescaleDB) Close() error {
	return b.db.Close()
}

// isMissingTimescale reports whether err is PostgreSQL complaining that
// create_hypertable does not exist (SQLSTATE 42883, undefined function).
func isMissingTimescale(err error) bool {
	var pgErr pg.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "42883"
}

// classifyPG maps a PostgreSQL error to transient or permanent by SQLSTATE
// class: data (22), integrity (23), auth (28) and syntax/undefined-object
// (42) failures will never succeed on retry; everything else — connection
// loss, resource exhaustion, serialization conflicts — is retryable.
func classifyPG(err error) error {
	var pgErr pg.Error
	if errors.As(err, &pgErr) {
		code := pgErr.Field('C')
		for _, class := range []string{"22", "23", "28", "42"} {
			if strings.HasPrefix(code, class) {
				return Permanent(err)
			}
		}
	}
	return Transient(err)
}
