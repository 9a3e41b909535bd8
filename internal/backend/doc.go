// Package backend implements the pluggable time-series storage targets.
//
// Four real backends are provided — InfluxDB v2, VictoriaMetrics,
// TimescaleDB and a Prometheus Pushgateway — plus a noop backend used when
// storage is disabled. All of them implement the Backend interface and
// classify their write failures as transient (retry) or permanent (drop),
// which is what drives the batch writer's retry policy.
//
// Backends do not retry internally and do not log; delivery policy belongs
// to the batch writer.
package backend
