package backend

import (
	"context"

	"github.com/openchamber/openchamber-core/internal/sensor"
)

// Backend delivers batches of readings to a time-series database.
//
// Write is synchronous: it returns nil only after the whole batch is
// accepted. Failures are classified — a *TransientError means the caller
// should retry the same batch, a *PermanentError means the batch will never
// be accepted and should be dropped. An unclassified error is treated as
// transient.
//
// Implementations must be safe for concurrent use, although the batch
// writer calls Write from a single goroutine.
type Backend interface {
	// Kind returns the backend type identifier ("influxdb", "timescaledb", ...).
	Kind() string

	// EnsureTargetExists verifies connectivity and creates the destination
	// table or bucket if the backend supports that. Called once at startup.
	EnsureTargetExists(ctx context.Context) error

	// Write delivers one batch, oldest reading first.
	Write(ctx context.Context, readings []sensor.Reading) error

	// Close releases connections. Safe to call once after the last Write.
	Close() error
}
