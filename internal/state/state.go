package state

import (
	"sync"
	"time"

	"github.com/openchamber/openchamber-core/internal/sensor"
)

// Actuator names used as keys into the control-state map.
const (
	ActuatorHeater = "heater"
	ActuatorFan    = "fan"
)

// Override selects between automatic hysteresis control and a forced state.
type Override int

const (
	// Auto lets the control loop's hysteresis decide.
	Auto Override = iota

	// ForcedOn holds the actuator on regardless of measured values.
	ForcedOn

	// ForcedOff holds the actuator off regardless of measured values.
	ForcedOff
)

// String returns the override's operator-facing name.
func (o Override) String() string {
	switch o {
	case ForcedOn:
		return "forced_on"
	case ForcedOff:
		return "forced_off"
	default:
		return "auto"
	}
}

// ControlState is the published state of one actuator.
type ControlState struct {
	On       bool     `json:"on"`
	Override Override `json:"override"`
}

// BackendStatus describes the time-series backend for status queries.
type BackendStatus struct {
	Kind         string    `json:"kind"`
	Enabled      bool      `json:"enabled"`
	Running      bool      `json:"running"`
	LastWrite    time.Time `json:"last_write,omitzero"`
	FailureCount int       `json:"failure_count"`
}

// Snapshot is a copy-out view of everything the presentation layer reads.
type Snapshot struct {
	Reading    *sensor.Reading         `json:"reading,omitempty"`
	Controls   map[string]ControlState `json:"controls"`
	Backend    BackendStatus           `json:"backend"`
}

// Shared is the thread-safe latest-value store connecting workers to each
// other and to the (out-of-scope) presentation layer.
//
// Workers write targeted fields; readers copy values out. The internal
// maps are never exposed by reference. Critical sections hold only
// assignments — no I/O, no callbacks.
type Shared struct {
	mu         sync.RWMutex
	reading    sensor.Reading
	hasReading bool
	controls   map[string]ControlState
	backend    BackendStatus
}

// New creates an empty shared state with both actuators in Auto/off.
func New() *Shared {
	return &Shared{
		controls: map[string]ControlState{
			ActuatorHeater: {},
			ActuatorFan:    {},
		},
	}
}

// SetReading publishes the latest sensor reading.
func (s *Shared) SetReading(r sensor.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = r
	s.hasReading = true
}

// LatestReading returns the most recent reading, and false if no reading
// has been published yet.
func (s *Shared) LatestReading() (sensor.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading, s.hasReading
}

// SetControlOn records an actuator's resolved on/off state, preserving its
// override mode. Called by the owning control loop every tick.
func (s *Shared) SetControlOn(name string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.controls[name]
	cs.On = on
	s.controls[name] = cs
}

// SetOverride records an actuator's manual override mode, preserving its
// on/off state. Called from the external control request path.
func (s *Shared) SetOverride(name string, o Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.controls[name]
	cs.Override = o
	s.controls[name] = cs
}

// ControlState returns a copy of an actuator's published state.
func (s *Shared) ControlState(name string) ControlState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controls[name]
}

// SetBackendStatus publishes the backend's delivery status.
func (s *Shared) SetBackendStatus(status BackendStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = status
}

// BackendStatus returns a copy of the backend's delivery status.
func (s *Shared) BackendStatus() BackendStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// Snapshot copies out everything in one consistent view.
func (s *Shared) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Controls: make(map[string]ControlState, len(s.controls)),
		Backend:  s.backend,
	}
	for name, cs := range s.controls {
		snap.Controls[name] = cs
	}
	if s.hasReading {
		r := s.reading
		snap.Reading = &r
	}
	return snap
}
