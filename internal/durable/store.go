package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openchamber/openchamber-core/internal/backend"
	"github.com/openchamber/openchamber-core/internal/infrastructure/database"
	"github.com/openchamber/openchamber-core/internal/sensor"
)

// Logger is the minimal logging interface the store needs.
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

// Store persists batches that could not be delivered to the backend, so an
// extended outage survives a process restart.
//
// Batches are kept as JSON rows in insertion order, capped at maxBatches;
// when the cap is hit the oldest batch is dropped first. Replay happens on
// startup via LoadAndFlush.
type Store struct {
	mu         sync.Mutex
	db         *database.DB
	maxBatches int
	logger     Logger
}

// DeliverFunc attempts to deliver one replayed batch. Errors are
// interpreted with the backend classification: permanent drops the batch,
// anything else stops the replay.
type DeliverFunc func(ctx context.Context, readings []sensor.Reading) error

// NewStore creates the store and its table.
func NewStore(ctx context.Context, db *database.DB, maxBatches int, logger Logger) (*Store, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if maxBatches < 1 {
		maxBatches = 1
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS unsent_batches (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			stored_at  TIMESTAMP NOT NULL,
			batch_json TEXT NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating unsent_batches table: %w", err)
	}

	return &Store{db: db, maxBatches: maxBatches, logger: logger}, nil
}

// Append persists one batch, evicting the oldest stored batch first if the
// store is at capacity.
func (s *Store) Append(ctx context.Context, readings []sensor.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	data, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM unsent_batches`).Scan(&count); err != nil {
		return fmt.Errorf("counting stored batches: %w", err)
	}

	for count >= s.maxBatches {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM unsent_batches
			WHERE id = (SELECT MIN(id) FROM unsent_batches)`)
		if err != nil {
			return fmt.Errorf("evicting oldest batch: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			break
		}
		count -= int(n)
		s.logger.Warn("durable store full, dropped oldest batch", "max_batches", s.maxBatches)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO unsent_batches (stored_at, batch_json) VALUES (?, ?)`,
		time.Now().UTC(), string(data))
	if err != nil {
		return fmt.Errorf("storing batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Info("batch persisted for later delivery", "readings", len(readings))
	return nil
}

// LoadAndFlush replays stored batches oldest-first through deliver.
// A delivered or permanently rejected batch is removed; the first transient
// failure stops the replay, leaving the remainder for next time. Returns
// how many batches were delivered.
func (s *Store) LoadAndFlush(ctx context.Context, deliver DeliverFunc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivered := 0
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		default:
		}

		var (
			id   int64
			data string
		)
		err := s.db.QueryRowContext(ctx, `
			SELECT id, batch_json FROM unsent_batches
			ORDER BY id ASC LIMIT 1`).Scan(&id, &data)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return delivered, nil
			}
			return delivered, fmt.Errorf("loading stored batch: %w", err)
		}

		var readings []sensor.Reading
		if err := json.Unmarshal([]byte(data), &readings); err != nil {
			// Corrupt row: delete it, it can never be delivered.
			s.logger.Error("dropping undecodable stored batch", "id", id, "error", err)
			if _, derr := s.db.ExecContext(ctx, `DELETE FROM unsent_batches WHERE id = ?`, id); derr != nil {
				return delivered, fmt.Errorf("removing corrupt batch: %w", derr)
			}
			continue
		}

		if err := deliver(ctx, readings); err != nil {
			if backend.IsPermanent(err) {
				s.logger.Error("backend rejected stored batch, dropping", "id", id, "error", err)
			} else {
				// Transient: keep the batch and stop, the backend is down.
				return delivered, nil
			}
		} else {
			delivered++
			s.logger.Debug("stored batch delivered", "id", id, "readings", len(readings))
		}

		if _, err := s.db.ExecContext(ctx, `DELETE FROM unsent_batches WHERE id = ?`, id); err != nil {
			return delivered, fmt.Errorf("removing stored batch: %w", err)
		}
	}
}

// Count returns the number of stored batches.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unsent_batches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting stored batches: %w", err)
	}
	return count, nil
}
