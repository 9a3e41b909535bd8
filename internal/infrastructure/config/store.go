package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openchamber/openchamber-core/internal/infrastructure/database"
)

// Store is the sqlite-backed runtime settings store.
//
// It holds the hot-reloadable subset of configuration (thresholds,
// intervals) as string key/value pairs plus a monotonic revision counter
// that is bumped on every change. The Watcher polls the revision to detect
// changes without re-reading every key.
//
// All methods are safe for concurrent use; SQLite serialises access.
type Store struct {
	db *database.DB
}

// Source is the read side of a settings store, consumed by the Watcher and
// by components that re-read values each tick.
type Source interface {
	// Revision returns a comparable change marker. It increases (never
	// decreases) whenever any setting changes.
	Revision(ctx context.Context) (int64, error)

	// Get returns the raw value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool)
}

// NewStore opens the settings store, creating its tables if needed.
func NewStore(ctx context.Context, db *database.DB) (*Store, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS settings_meta (
			id       INTEGER PRIMARY KEY CHECK (id = 1),
			revision INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO settings_meta (id, revision) VALUES (1, 0);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating settings tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Revision returns the current settings revision.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, "SELECT revision FROM settings_meta WHERE id = 1").Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("reading settings revision: %w", err)
	}
	return rev, nil
}

// Get returns the raw string value for key. A missing key or an
// unavailable store reads as absent, never as an error: callers fall back
// to their defaults.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// GetFloat returns the value for key parsed as float64, or def if the key
// is missing or malformed.
func (s *Store) GetFloat(ctx context.Context, key string, def float64) float64 {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// GetBool returns the value for key parsed as bool, or def if the key is
// missing or malformed.
func (s *Store) GetBool(ctx context.Context, key string, def bool) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// GetDuration returns the value for key interpreted as seconds, or def if
// the key is missing or malformed. Settings store intervals as decimal
// seconds so they are readable from any sqlite client.
func (s *Store) GetDuration(ctx context.Context, key string, def time.Duration) time.Duration {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return def
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// Set writes key to value and bumps the revision in the same transaction,
// so a watcher never observes the new revision without the new value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting settings transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE settings_meta SET revision = revision + 1 WHERE id = 1"); err != nil {
		return fmt.Errorf("bumping settings revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing setting %q: %w", key, err)
	}
	return nil
}

// SetFloat writes a float64 setting.
func (s *Store) SetFloat(ctx context.Context, key string, value float64) error {
	return s.Set(ctx, key, strconv.FormatFloat(value, 'f', -1, 64))
}

// Seed inserts defaults for any keys that do not exist yet, without bumping
// the revision. Operator edits from previous runs are preserved; seeding on
// startup never fires change callbacks.
func (s *Store) Seed(ctx context.Context, defaults map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting seed transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	now := time.Now().Unix()
	for key, value := range defaults {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)",
			key, value, now)
		if err != nil {
			return fmt.Errorf("seeding setting %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed: %w", err)
	}
	return nil
}

// ErrKeyNotFound is returned by MustGet for absent keys.
var ErrKeyNotFound = errors.New("config: setting not found")

// MustGet returns the value for key or ErrKeyNotFound. Most callers want
// Get with a default instead; this exists for tooling that distinguishes
// "unset" from "empty".
func (s *Store) MustGet(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, nil
}
