// Package logging provides structured logging for the chamber daemon.
//
// It wraps Go's standard log/slog package so every component logs in a
// consistent, structured format.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting worker", "name", "batch-writer")
//	logger.Error("write failed", "error", err)
//
// Never log secrets, tokens, or database credentials.
package logging
