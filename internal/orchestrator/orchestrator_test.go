package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// blockingWorker runs until cancelled, optionally returning an error on a
// trigger channel instead.
type blockingWorker struct {
	mu      sync.Mutex
	started int
	crash   chan error
}

func newBlockingWorker() *blockingWorker {
	return &blockingWorker{crash: make(chan error, 1)}
}

func (w *blockingWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.started++
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil
	case err := <-w.crash:
		return err
	}
}

func (w *blockingWorker) startCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func waitForStatus(t *testing.T, o *Orchestrator, name string, want Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		stats, err := o.Status(name)
		if err != nil {
			t.Fatalf("Status(%q) error = %v", name, err)
		}
		if stats.Status == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("worker %q status = %q, want %q", name, stats.Status, want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOrchestrator_StartStop(t *testing.T) {
	o := New(time.Second, nil)
	w := newBlockingWorker()

	if err := o.Register("reader", w); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := o.Start(context.Background(), "reader"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStatus(t, o, "reader", StatusRunning)

	if err := o.Stop("reader"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitForStatus(t, o, "reader", StatusStopped)
}

func TestOrchestrator_DoubleStartIsNoop(t *testing.T) {
	o := New(time.Second, nil)
	w := newBlockingWorker()
	_ = o.Register("reader", w)

	if err := o.Start(context.Background(), "reader"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStatus(t, o, "reader", StatusRunning)
	defer o.StopAll() //nolint:errcheck

	if err := o.Start(context.Background(), "reader"); err != nil {
		t.Errorf("second Start() error = %v, want nil no-op", err)
	}
	if w.startCount() != 1 {
		t.Errorf("worker started %d times, want 1", w.startCount())
	}
}

func TestOrchestrator_UnknownWorker(t *testing.T) {
	o := New(time.Second, nil)

	if err := o.Start(context.Background(), "ghost"); err == nil {
		t.Error("Start(unknown) error = nil")
	}
	if err := o.Stop("ghost"); err == nil {
		t.Error("Stop(unknown) error = nil")
	}
	if _, err := o.Status("ghost"); err == nil {
		t.Error("Status(unknown) error = nil")
	}
}

func TestOrchestrator_DuplicateRegisterFails(t *testing.T) {
	o := New(time.Second, nil)
	_ = o.Register("reader", newBlockingWorker())

	if err := o.Register("reader", newBlockingWorker()); err == nil {
		t.Error("duplicate Register() error = nil")
	}
}

func TestOrchestrator_CrashIsSurfacedNotRestarted(t *testing.T) {
	o := New(time.Second, nil)
	w := newBlockingWorker()
	_ = o.Register("writer", w)

	if err := o.Start(context.Background(), "writer"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStatus(t, o, "writer", StatusRunning)

	w.crash <- errors.New("backend exploded")
	waitForStatus(t, o, "writer", StatusCrashed)

	stats, _ := o.Status("writer")
	if stats.LastError != "backend exploded" {
		t.Errorf("LastError = %q, want the crash error", stats.LastError)
	}
	if stats.RestartCount != 0 {
		t.Errorf("RestartCount = %d, want 0 (no automatic restart)", stats.RestartCount)
	}

	// Give any would-be restart a moment to happen; there must be none.
	time.Sleep(50 * time.Millisecond)
	if w.startCount() != 1 {
		t.Errorf("worker started %d times, want 1", w.startCount())
	}
}

func TestOrchestrator_RestartBumpsCount(t *testing.T) {
	o := New(time.Second, nil)
	w := newBlockingWorker()
	_ = o.Register("loop", w)

	ctx := context.Background()
	if err := o.Start(ctx, "loop"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStatus(t, o, "loop", StatusRunning)

	if err := o.Restart(ctx, "loop"); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	waitForStatus(t, o, "loop", StatusRunning)
	defer o.StopAll() //nolint:errcheck

	stats, _ := o.Status("loop")
	if stats.RestartCount != 1 {
		t.Errorf("RestartCount = %d, want 1", stats.RestartCount)
	}
	if w.startCount() != 2 {
		t.Errorf("worker started %d times, want 2", w.startCount())
	}
}

func TestOrchestrator_CrashedWorkerCanBeStartedAgain(t *testing.T) {
	o := New(time.Second, nil)
	w := newBlockingWorker()
	_ = o.Register("writer", w)

	ctx := context.Background()
	_ = o.Start(ctx, "writer")
	waitForStatus(t, o, "writer", StatusRunning)

	w.crash <- errors.New("boom")
	waitForStatus(t, o, "writer", StatusCrashed)

	if err := o.Start(ctx, "writer"); err != nil {
		t.Fatalf("Start() after crash error = %v", err)
	}
	waitForStatus(t, o, "writer", StatusRunning)
	_ = o.StopAll()
}

// stuckWorker ignores cancellation until released.
type stuckWorker struct {
	release chan struct{}
}

func (w *stuckWorker) Run(ctx context.Context) error {
	<-ctx.Done()
	<-w.release
	return nil
}

func TestOrchestrator_StopTimeoutMarksCrashed(t *testing.T) {
	o := New(50*time.Millisecond, nil)
	w := &stuckWorker{release: make(chan struct{})}
	_ = o.Register("stuck", w)

	if err := o.Start(context.Background(), "stuck"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStatus(t, o, "stuck", StatusRunning)

	if err := o.Stop("stuck"); err == nil {
		t.Error("Stop() error = nil for a worker that never exits")
	}
	stats, _ := o.Status("stuck")
	if stats.Status != StatusCrashed {
		t.Errorf("Status = %q, want %q", stats.Status, StatusCrashed)
	}
	close(w.release)
}

func TestOrchestrator_StopTimeoutVerdictSurvivesLateExit(t *testing.T) {
	o := New(50*time.Millisecond, nil)
	w := &stuckWorker{release: make(chan struct{})}
	_ = o.Register("stuck", w)

	if err := o.Start(context.Background(), "stuck"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStatus(t, o, "stuck", StatusRunning)

	if err := o.Stop("stuck"); err == nil {
		t.Fatal("Stop() error = nil for a worker that never exits")
	}

	// The worker finally lets go; its clean exit must not rewrite history.
	close(w.release)
	time.Sleep(50 * time.Millisecond)

	stats, _ := o.Status("stuck")
	if stats.Status != StatusCrashed {
		t.Errorf("Status = %q after late exit, want %q kept", stats.Status, StatusCrashed)
	}
	if stats.LastError == "" {
		t.Error("LastError cleared by late exit, want the timeout recorded")
	}
}

func TestOrchestrator_StartAllAndStatusAll(t *testing.T) {
	o := New(time.Second, nil)
	for _, name := range []string{"a", "b", "c"} {
		_ = o.Register(name, newBlockingWorker())
	}

	if err := o.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		waitForStatus(t, o, name, StatusRunning)
	}

	all := o.StatusAll()
	if len(all) != 3 {
		t.Fatalf("StatusAll() returned %d entries, want 3", len(all))
	}
	for i, name := range []string{"a", "b", "c"} {
		if all[i].Name != name {
			t.Errorf("StatusAll()[%d].Name = %q, want %q (registration order)", i, all[i].Name, name)
		}
	}

	if err := o.StopAll(); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		waitForStatus(t, o, name, StatusStopped)
	}
}

func TestOrchestrator_StopIdleWorkerIsNoop(t *testing.T) {
	o := New(time.Second, nil)
	_ = o.Register("idle", newBlockingWorker())

	if err := o.Stop("idle"); err != nil {
		t.Errorf("Stop() on never-started worker error = %v, want nil", err)
	}
}
