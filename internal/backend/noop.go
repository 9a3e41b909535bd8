package backend

import (
	"context"

	"github.com/openchamber/openchamber-core/internal/infrastructure/config"
	"github.com/openchamber/openchamber-core/internal/sensor"
)

// Noop discards every batch. Used when time-series storage is disabled so
// the rest of the pipeline runs unchanged.
type Noop struct{}

func (Noop) Kind() string                                  { return config.BackendNone }
func (Noop) EnsureTargetExists(context.Context) error      { return nil }
func (Noop) Write(context.Context, []sensor.Reading) error { return nil }
func (Noop) Close() error                                  { return nil }
