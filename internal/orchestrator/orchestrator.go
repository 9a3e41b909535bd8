package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of a managed worker.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusCrashed  Status = "crashed"
)

// Worker is a long-running goroutine supervised by the orchestrator. Run
// blocks until ctx is cancelled; a non-nil return marks the worker crashed.
type Worker interface {
	Run(ctx context.Context) error
}

// Logger defines the logging interface for the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// handle tracks one registered worker.
type handle struct {
	name          string
	worker        Worker
	status        Status
	cancel        context.CancelFunc
	done          chan struct{}
	restartCount  int
	lastErr       error
	startTime     time.Time
	stopRequested bool
}

// Orchestrator supervises the daemon's workers: it starts them in
// registration order, stops them in reverse, and surfaces crashes in status
// queries. A crashed worker is never restarted automatically — restart is
// an operator decision via Restart.
type Orchestrator struct {
	grace  time.Duration
	logger Logger

	mu      sync.RWMutex
	order   []string
	handles map[string]*handle
}

// New creates an orchestrator. grace is how long Stop waits for a worker to
// exit before declaring it crashed.
func New(grace time.Duration, logger Logger) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Orchestrator{
		grace:   grace,
		logger:  logger,
		handles: make(map[string]*handle),
	}
}

// Register adds a worker under a unique name. Registration order is start
// order; stop order is the reverse.
func (o *Orchestrator) Register(name string, w Worker) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.handles[name]; exists {
		return fmt.Errorf("worker %q already registered", name)
	}
	o.handles[name] = &handle{name: name, worker: w, status: StatusStopped}
	o.order = append(o.order, name)
	return nil
}

// Start launches the named worker. Starting a worker that is already
// running or starting is a no-op; a stopped or crashed worker starts
// fresh.
func (o *Orchestrator) Start(ctx context.Context, name string) error {
	o.mu.Lock()
	h, ok := o.handles[name]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown worker %q", name)
	}
	if h.status == StatusRunning || h.status == StatusStarting {
		o.mu.Unlock()
		o.logger.Debug("worker already running", "name", name)
		return nil
	}

	wctx, cancel := context.WithCancel(ctx)
	h.status = StatusStarting
	h.stopRequested = false
	h.cancel = cancel
	h.done = make(chan struct{})
	h.startTime = time.Now()
	done := h.done
	worker := h.worker
	o.mu.Unlock()

	o.logger.Info("starting worker", "name", name)

	go func() {
		err := worker.Run(wctx)
		// Read before cancel: after cancel wctx.Err() is always non-nil.
		selfExit := wctx.Err() == nil
		cancel()

		o.mu.Lock()
		defer o.mu.Unlock()
		defer close(done)

		switch {
		case h.status == StatusCrashed:
			// Stop already gave up on this worker; a late exit does not
			// erase the timeout verdict.
			o.logger.Warn("worker exited after stop timeout", "name", name, "error", err)
		case err != nil && selfExit:
			// Self-exit with an error before anyone asked it to stop.
			h.status = StatusCrashed
			h.lastErr = err
			o.logger.Error("worker crashed", "name", name, "error", err)
		case err != nil:
			// Errored during a requested stop; record but treat as stopped.
			h.status = StatusStopped
			h.lastErr = err
			o.logger.Warn("worker stopped with error", "name", name, "error", err)
		case !h.stopRequested:
			h.status = StatusStopped
			o.logger.Warn("worker exited unexpectedly without error", "name", name)
		default:
			h.status = StatusStopped
			o.logger.Info("worker stopped", "name", name)
		}
	}()

	o.mu.Lock()
	if h.status == StatusStarting {
		h.status = StatusRunning
	}
	o.mu.Unlock()
	return nil
}

// StartAll starts every registered worker in registration order, stopping
// at the first failure.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	for _, name := range o.names() {
		if err := o.Start(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels the named worker and waits up to the grace period. A worker
// that does not exit in time is marked crashed and abandoned.
func (o *Orchestrator) Stop(name string) error {
	o.mu.Lock()
	h, ok := o.handles[name]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown worker %q", name)
	}
	if h.status != StatusRunning && h.status != StatusStarting {
		o.mu.Unlock()
		return nil
	}
	h.status = StatusStopping
	h.stopRequested = true
	cancel := h.cancel
	done := h.done
	o.mu.Unlock()

	o.logger.Info("stopping worker", "name", name)
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(o.grace):
	}

	o.mu.Lock()
	h.status = StatusCrashed
	h.lastErr = fmt.Errorf("worker %q did not stop within %v", name, o.grace)
	err := h.lastErr
	o.mu.Unlock()

	o.logger.Error("worker did not stop in time", "name", name, "grace", o.grace)
	return err
}

// StopAll stops every worker in reverse registration order so downstream
// consumers outlive their producers. The first error is returned after all
// workers have been told to stop.
func (o *Orchestrator) StopAll() error {
	names := o.names()
	var firstErr error
	for i := len(names) - 1; i >= 0; i-- {
		if err := o.Stop(names[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Restart stops and relaunches the named worker, bumping its restart count.
// This is the only path that increments the count.
func (o *Orchestrator) Restart(ctx context.Context, name string) error {
	if err := o.Stop(name); err != nil {
		return err
	}

	o.mu.Lock()
	if h, ok := o.handles[name]; ok {
		h.restartCount++
	}
	o.mu.Unlock()

	return o.Start(ctx, name)
}

// Stats describes one worker for status queries.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Status returns the named worker's stats.
func (o *Orchestrator) Status(name string) (Stats, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	h, ok := o.handles[name]
	if !ok {
		return Stats{}, fmt.Errorf("unknown worker %q", name)
	}
	return h.stats(), nil
}

// StatusAll returns stats for every worker in registration order.
func (o *Orchestrator) StatusAll() []Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]Stats, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.handles[name].stats())
	}
	return out
}

func (h *handle) stats() Stats {
	s := Stats{
		Name:         h.name,
		Status:       h.status,
		RestartCount: h.restartCount,
	}
	if h.status == StatusRunning {
		s.Uptime = time.Since(h.startTime)
	}
	if h.lastErr != nil {
		s.LastError = h.lastErr.Error()
	}
	return s
}

func (o *Orchestrator) names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.order...)
}
