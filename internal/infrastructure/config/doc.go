// Package config provides configuration for the chamber daemon.
//
// Configuration has two layers:
//
//   - The YAML file (config.yaml) parsed by Load: connection details,
//     backend selection, queue and retry tuning. Changing these requires a
//     restart.
//   - The runtime settings Store, a sqlite key/value table with a revision
//     counter: control thresholds and intervals. These hot-reload — the
//     Watcher polls the revision and dispatches change callbacks, and
//     control loops re-read their thresholds every evaluation tick.
//
// On startup the YAML values for hot-reloadable keys are seeded into the
// store with INSERT OR IGNORE, so operator edits made at runtime survive
// restarts and the YAML acts only as the initial default.
package config
