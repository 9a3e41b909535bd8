// Package database provides SQLite connection management for the chamber
// daemon.
//
// A single database file holds the durable batch store (unsent time-series
// batches awaiting replay) and the runtime settings store (hot-reloadable
// configuration). Both stores create their own tables on first use, so
// there is no separate migration step.
//
// WAL mode is recommended: it allows the settings watcher to read while a
// batch is being persisted.
package database
