package config

import (
	"context"
	"sync"
	"time"
)

// Callback is invoked when a watched setting changes. The key is the
// setting's dotted name and value its new raw string form.
type Callback func(key, value string)

// Logger is the logging interface used by the Watcher.
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

// Watcher polls a settings Source for changes and dispatches callbacks.
//
// It compares the source's revision marker each poll; only when the
// revision moved does it re-read watched keys and fire callbacks for those
// whose values actually changed. Key-specific callbacks run before
// any-change callbacks, and all callbacks run serially inside the poll
// goroutine, so a reload is fully processed before the next poll starts.
//
// The watcher only sees keys registered through Watch: the Source exposes
// no key enumeration, so a change to an unwatched key bumps the revision
// but dispatches nothing, including to any-change callbacks.
//
// An unavailable source is treated as "no change" for that poll.
type Watcher struct {
	source   Source
	interval time.Duration
	logger   Logger

	mu           sync.Mutex
	keyCallbacks map[string][]Callback
	anyCallbacks []Callback

	lastRevision int64
	lastValues   map[string]string
}

// NewWatcher creates a Watcher polling source every interval.
func NewWatcher(source Source, interval time.Duration, logger Logger) *Watcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Watcher{
		source:       source,
		interval:     interval,
		logger:       logger,
		keyCallbacks: make(map[string][]Callback),
		lastValues:   make(map[string]string),
	}
}

// Watch registers a callback for changes to a specific key.
// Registration is only effective before Run starts or between polls;
// callbacks themselves must not call Watch (they run under the poll lock).
func (w *Watcher) Watch(key string, cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keyCallbacks[key] = append(w.keyCallbacks[key], cb)
}

// WatchAny registers a callback invoked for every changed watched key.
// Keys nothing Watches are invisible to it.
func (w *Watcher) WatchAny(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.anyCallbacks = append(w.anyCallbacks, cb)
}

// Run polls for changes until ctx is cancelled. It snapshots the current
// revision and watched values first, so changes made before startup do not
// fire callbacks.
func (w *Watcher) Run(ctx context.Context) error {
	w.snapshot(ctx)
	w.logger.Info("settings watcher started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settings watcher stopped")
			return nil
		case <-ticker.C:
			w.checkOnce(ctx)
		}
	}
}

// snapshot initialises the revision and value cache without firing callbacks.
func (w *Watcher) snapshot(ctx context.Context) {
	rev, err := w.source.Revision(ctx)
	if err != nil {
		w.logger.Debug("settings source unavailable at startup", "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastRevision = rev
	for key := range w.keyCallbacks {
		if value, ok := w.source.Get(ctx, key); ok {
			w.lastValues[key] = value
		}
	}
}

// checkOnce performs a single poll cycle.
func (w *Watcher) checkOnce(ctx context.Context) {
	rev, err := w.source.Revision(ctx)
	if err != nil {
		// Unreachable source reads as "no change", never an error to
		// dependents.
		w.logger.Debug("settings source unavailable", "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if rev == w.lastRevision {
		return
	}
	w.lastRevision = rev

	for key, callbacks := range w.keyCallbacks {
		value, ok := w.source.Get(ctx, key)
		if !ok {
			continue
		}
		previous, seen := w.lastValues[key]
		if seen && previous == value {
			continue
		}
		w.lastValues[key] = value

		w.logger.Info("setting changed", "key", key, "value", value)
		for _, cb := range callbacks {
			cb(key, value)
		}
		for _, cb := range w.anyCallbacks {
			cb(key, value)
		}
	}
}
