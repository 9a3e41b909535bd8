package control

import (
	"context"
	"errors"
	"time"

	"github.com/openchamber/openchamber-core/internal/sensor"
	"github.com/openchamber/openchamber-core/internal/state"
)

// ErrUnavailable is returned by an Actuator whose underlying hardware
// cannot be driven (missing GPIO, disconnected relay board). The loop
// degrades to publishing desired state without switching anything.
var ErrUnavailable = errors.New("actuator unavailable")

// Actuator switches a physical output on or off. Implementations live
// outside the core next to the sensor drivers.
type Actuator interface {
	Set(on bool) error
}

// Mode selects which side of the band switches the actuator on.
type Mode int

const (
	// ModeHeat switches on below Min and off above Max (heater raising
	// a low value).
	ModeHeat Mode = iota

	// ModeVent switches on above Max and off below Min (fan lowering a
	// high value).
	ModeVent
)

// Thresholds is the band the loop regulates within, re-read every tick so
// runtime settings changes apply without a restart.
type Thresholds struct {
	Min           float64
	Max           float64
	Enabled       bool
	CheckInterval time.Duration
}

// ThresholdsFunc returns the current thresholds.
type ThresholdsFunc func(ctx context.Context) Thresholds

// Logger is the minimal logging interface the loop needs.
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

// Loop is a hysteresis control loop for one actuator.
//
// Each tick it resolves the desired actuator state — a manual override
// wins outright, otherwise the measured value is compared against the
// band: outside the band switches, inside the band keeps the previous
// state. Readings never arrive mid-decision because the loop works from
// the shared state's latest value; a tick with no reading yet changes
// nothing.
type Loop struct {
	name       string
	mode       Mode
	value      func(sensor.Reading) float64
	thresholds ThresholdsFunc
	actuator   Actuator
	shared     *state.Shared
	onChange   func(name string, on bool)
	logger     Logger

	applied  bool
	degraded bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop's logger.
func WithLogger(l Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithOnChange registers a callback invoked after the actuator state
// changes, outside any lock. Used for notifications.
func WithOnChange(fn func(name string, on bool)) Option {
	return func(lp *Loop) { lp.onChange = fn }
}

// NewLoop creates a control loop for the named actuator. value extracts
// the regulated quantity from a reading (temperature for the heater,
// humidity for the fan).
func NewLoop(name string, mode Mode, value func(sensor.Reading) float64, thresholds ThresholdsFunc, actuator Actuator, shared *state.Shared, opts ...Option) *Loop {
	lp := &Loop{
		name:       name,
		mode:       mode,
		value:      value,
		thresholds: thresholds,
		actuator:   actuator,
		shared:     shared,
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(lp)
	}
	return lp
}

// Run ticks until ctx is cancelled, then switches the actuator off as a
// safe final state. It always returns nil.
func (lp *Loop) Run(ctx context.Context) error {
	lp.logger.Info("control loop started", "actuator", lp.name)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			lp.shutdown()
			return nil
		case <-timer.C:
		}

		th := lp.thresholds(ctx)
		lp.tick(th)
		timer.Reset(th.CheckInterval)
	}
}

func (lp *Loop) tick(th Thresholds) {
	cs := lp.shared.ControlState(lp.name)

	desired, decided := lp.decide(cs, th)
	if !decided {
		return
	}

	changed := !lp.applied || desired != cs.On

	// Drive the output every tick, not just on transitions, so a relay
	// that glitched or was toggled out-of-band converges back.
	lp.apply(desired)

	lp.shared.SetControlOn(lp.name, desired)
	lp.applied = true

	if changed {
		lp.logger.Info("actuator state changed", "actuator", lp.name, "on", desired)
		if lp.onChange != nil {
			lp.onChange(lp.name, desired)
		}
	}
}

// decide resolves the desired state for this tick. The second return is
// false when no decision can be made yet (automatic mode with no reading).
func (lp *Loop) decide(cs state.ControlState, th Thresholds) (bool, bool) {
	switch cs.Override {
	case state.ForcedOn:
		return true, true
	case state.ForcedOff:
		return false, true
	}

	if !th.Enabled {
		return false, true
	}

	reading, ok := lp.shared.LatestReading()
	if !ok {
		return false, false
	}

	v := lp.value(reading)
	switch lp.mode {
	case ModeVent:
		if v > th.Max {
			return true, true
		}
		if v < th.Min {
			return false, true
		}
	default: // ModeHeat
		if v < th.Min {
			return true, true
		}
		if v > th.Max {
			return false, true
		}
	}

	// Inside the band: hold the previous state.
	return cs.On, true
}

func (lp *Loop) apply(on bool) {
	err := lp.actuator.Set(on)
	switch {
	case err == nil:
		lp.degraded = false
	case errors.Is(err, ErrUnavailable):
		if !lp.degraded {
			lp.logger.Warn("actuator unavailable, tracking state only", "actuator", lp.name)
			lp.degraded = true
		}
	default:
		lp.logger.Error("actuator switch failed", "actuator", lp.name, "on", on, "error", err)
	}
}

func (lp *Loop) shutdown() {
	if err := lp.actuator.Set(false); err != nil && !errors.Is(err, ErrUnavailable) {
		lp.logger.Error("actuator off on shutdown failed", "actuator", lp.name, "error", err)
	}
	lp.shared.SetControlOn(lp.name, false)
	lp.logger.Info("control loop stopped", "actuator", lp.name)
}
