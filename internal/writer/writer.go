package writer

import (
	"context"
	"math/rand"
	"time"

	"github.com/openchamber/openchamber-core/internal/backend"
	"github.com/openchamber/openchamber-core/internal/durable"
	"github.com/openchamber/openchamber-core/internal/queue"
	"github.com/openchamber/openchamber-core/internal/sensor"
	"github.com/openchamber/openchamber-core/internal/state"
)

const (
	// dequeueTimeout bounds each queue wait so flush deadlines and
	// cancellation are checked at least once a second.
	dequeueTimeout = time.Second

	// jitterFraction spreads retries of multiple chambers hitting the
	// same backend: up to 10% is added to each backoff delay.
	jitterFraction = 0.10

	// shutdownAttempts bounds the final flush so shutdown cannot hang on
	// a dead backend.
	shutdownAttempts = 3

	// defaultShutdownTimeout bounds the final flush's delivery attempts
	// when Config.ShutdownTimeout is unset. It stays under the default
	// supervisor grace period so the remainder is persisted before the
	// worker is abandoned.
	defaultShutdownTimeout = 3 * time.Second

	// shutdownRetryDelay separates final flush attempts.
	shutdownRetryDelay = time.Second

	// shutdownPersistTimeout bounds the local append of an undeliverable
	// final batch, independent of the delivery deadline.
	shutdownPersistTimeout = time.Second
)

// Logger is the minimal logging interface the writer needs.
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

// Config holds the writer's delivery policy.
type Config struct {
	// BatchSize readings trigger a flush.
	BatchSize int

	// FlushInterval flushes a partial batch once its oldest reading has
	// waited this long.
	FlushInterval time.Duration

	// BackoffBase is the first retry delay; it doubles per consecutive
	// failure up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// AlertThreshold is the consecutive-failure count that raises the
	// alert, exactly once per crossing.
	AlertThreshold int

	// PersistOnAlert hands the stuck batch to the durable store when the
	// alert fires, so memory stays bounded during long outages.
	PersistOnAlert bool

	// ShutdownTimeout bounds the final flush's delivery attempts. Keep it
	// below the supervisor's grace period, or the worker is abandoned
	// before it can persist the remainder.
	ShutdownTimeout time.Duration
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the writer's logger.
func WithLogger(l Logger) Option {
	return func(w *Writer) { w.logger = l }
}

// WithDurableStore enables persistence of undeliverable batches and their
// replay at startup.
func WithDurableStore(s *durable.Store) Option {
	return func(w *Writer) { w.store = s }
}

// WithSharedState publishes backend delivery status after every attempt.
func WithSharedState(s *state.Shared) Option {
	return func(w *Writer) { w.shared = s }
}

// WithAlertFunc registers the callback fired when consecutive failures
// reach the alert threshold. failures is the count at that moment, queued
// the number of readings waiting in memory.
func WithAlertFunc(fn func(failures, queued int)) Option {
	return func(w *Writer) { w.onAlert = fn }
}

// WithRecoveryFunc registers the callback fired on the first successful
// write after an alert.
func WithRecoveryFunc(fn func()) Option {
	return func(w *Writer) { w.onRecovery = fn }
}

// Writer drains the reading queue into batches and delivers them to the
// backend.
//
// A batch flushes when it is full or its oldest reading has waited past the
// flush interval. Transient delivery failures keep the batch and retry with
// exponential backoff plus jitter; permanent failures drop the batch.
// While a batch is stuck in retry the writer stops dequeuing: the retried
// batch never changes, and new readings accumulate in the bounded queue for
// the next batch rather than in this one.
type Writer struct {
	cfg     Config
	queue   *queue.Bounded[sensor.Reading]
	backend backend.Backend

	store      *durable.Store
	shared     *state.Shared
	onAlert    func(failures, queued int)
	onRecovery func()
	logger     Logger

	batch      []sensor.Reading
	batchStart time.Time
	failures   int
	alerted    bool
	lastWrite  time.Time
}

// NewWriter creates a batch writer.
func NewWriter(cfg Config, q *queue.Bounded[sensor.Reading], be backend.Backend, opts ...Option) *Writer {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	w := &Writer{
		cfg:     cfg,
		queue:   q,
		backend: be,
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run delivers batches until ctx is cancelled, then drains the queue and
// makes a bounded final flush. It always returns nil: delivery failures are
// policy, not worker death.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("batch writer started",
		"backend", w.backend.Kind(),
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval.String())
	w.publishStatus(true)

	w.replayStored(ctx)

	for ctx.Err() == nil {
		// failures > 0 means the current batch is in the retry path and
		// must go out unchanged; new readings wait in the queue.
		if w.failures == 0 && len(w.batch) < w.cfg.BatchSize {
			if item, ok := w.queue.Dequeue(dequeueTimeout); ok {
				if len(w.batch) == 0 {
					w.batchStart = time.Now()
				}
				w.batch = append(w.batch, item)
			}
		}

		if w.shouldFlush() {
			w.deliver(ctx)
		}
	}

	w.shutdownFlush()
	w.publishStatus(false)
	w.logger.Info("batch writer stopped")
	return nil
}

// replayStored pushes batches persisted during a previous outage before any
// new data goes out, keeping delivery roughly ordered.
func (w *Writer) replayStored(ctx context.Context) {
	if w.store == nil {
		return
	}
	delivered, err := w.store.LoadAndFlush(ctx, w.backend.Write)
	if err != nil {
		w.logger.Error("replaying stored batches failed", "error", err)
		return
	}
	if delivered > 0 {
		w.logger.Info("stored batches replayed", "batches", delivered)
	}
}

func (w *Writer) shouldFlush() bool {
	if len(w.batch) == 0 {
		return false
	}
	if len(w.batch) >= w.cfg.BatchSize {
		return true
	}
	return time.Since(w.batchStart) >= w.cfg.FlushInterval
}

// deliver attempts one write of the current batch and applies the failure
// policy. On a transient failure the batch stays for the next attempt and
// deliver sleeps the backoff delay (interruptible by ctx).
func (w *Writer) deliver(ctx context.Context) {
	err := w.backend.Write(ctx, w.batch)
	switch {
	case err == nil:
		w.logger.Debug("batch delivered", "readings", len(w.batch))
		w.batch = nil
		w.failures = 0
		w.lastWrite = time.Now()
		if w.alerted {
			w.alerted = false
			w.logger.Info("backend recovered")
			if w.onRecovery != nil {
				w.onRecovery()
			}
		}
		w.publishStatus(true)

	case backend.IsPermanent(err):
		w.logger.Error("backend rejected batch, dropping",
			"readings", len(w.batch), "error", err)
		w.batch = nil
		w.failures = 0
		w.publishStatus(true)

	default:
		// Transient (or unclassified): keep the batch and back off.
		w.failures++
		w.logger.Warn("batch delivery failed",
			"failures", w.failures, "readings", len(w.batch), "error", err)
		w.publishStatus(true)

		if w.failures == w.cfg.AlertThreshold {
			w.raiseAlert(ctx)
		}

		sleepCtx(ctx, retryDelay(w.cfg.BackoffBase, w.cfg.BackoffMax, w.failures))
	}
}

// raiseAlert fires the alert callback and, when configured, hands the stuck
// batch to the durable store so the writer resumes with a fresh batch and a
// reset failure count.
func (w *Writer) raiseAlert(ctx context.Context) {
	w.alerted = true
	queued := len(w.batch) + w.queue.Len()
	w.logger.Error("backend unreachable, alert raised",
		"failures", w.failures, "queued_readings", queued)
	if w.onAlert != nil {
		w.onAlert(w.failures, queued)
	}

	if !w.cfg.PersistOnAlert || w.store == nil {
		return
	}
	if err := w.store.Append(ctx, w.batch); err != nil {
		w.logger.Error("persisting stuck batch failed", "error", err)
		return
	}
	w.batch = nil
	w.failures = 0
}

// shutdownFlush drains the queue into the batch and tries a few final
// deliveries on a fresh context. What cannot be delivered is persisted when
// possible, otherwise dropped with a log line.
func (w *Writer) shutdownFlush() {
	w.batch = append(w.batch, w.queue.Drain()...)
	if len(w.batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()

	for attempt := 1; attempt <= shutdownAttempts; attempt++ {
		err := w.backend.Write(ctx, w.batch)
		if err == nil {
			w.logger.Info("final batch delivered", "readings", len(w.batch))
			w.batch = nil
			return
		}
		if backend.IsPermanent(err) {
			w.logger.Error("backend rejected final batch, dropping",
				"readings", len(w.batch), "error", err)
			w.batch = nil
			return
		}
		w.logger.Warn("final flush attempt failed",
			"attempt", attempt, "error", err)
		if attempt < shutdownAttempts && !sleepCtx(ctx, shutdownRetryDelay) {
			break
		}
	}

	if w.store != nil {
		// Fresh context: the delivery deadline has likely expired and must
		// not take the local append down with it.
		pctx, pcancel := context.WithTimeout(context.Background(), shutdownPersistTimeout)
		defer pcancel()
		if err := w.store.Append(pctx, w.batch); err == nil {
			w.logger.Info("final batch persisted for next start", "readings", len(w.batch))
			w.batch = nil
			return
		}
	}
	w.logger.Error("final batch lost", "readings", len(w.batch))
	w.batch = nil
}

func (w *Writer) publishStatus(running bool) {
	if w.shared == nil {
		return
	}
	w.shared.SetBackendStatus(state.BackendStatus{
		Kind:         w.backend.Kind(),
		Enabled:      w.backend.Kind() != "none",
		Running:      running,
		LastWrite:    w.lastWrite,
		FailureCount: w.failures,
	})
}

// retryDelay returns the backoff delay for the nth consecutive failure:
// base doubled per failure, capped at max, plus up to 10% jitter.
func retryDelay(base, max time.Duration, failures int) time.Duration {
	d := backoffDelay(base, max, failures)
	return d + time.Duration(rand.Float64()*jitterFraction*float64(d))
}

// backoffDelay is the deterministic part of retryDelay.
func backoffDelay(base, max time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
