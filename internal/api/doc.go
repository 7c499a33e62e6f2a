// Package api defines wire-format types and converters for the daemon's
// read-only HTTP API. It translates job records, stage readiness and
// dependency checks into transport-friendly DTOs a UI can poll without
// coupling to internal types.
//
// # Key Types
//
// JobItem: transport representation of a job record, including every
// per-stage error field and a combined failure summary.
//
// DaemonStatus: running state, per-status job counts, stage readiness and
// external dependency availability.
//
// # Converters
//
// FromRecord: jobs.Record -> JobItem with RFC3339 millisecond timestamps.
//
// MergeJobCounts: zero-filled, string-keyed counts for every status.
//
// # Design Notes
//
// DTOs use camelCase JSON tags matching the stored record contract, so a
// client polling /api/jobs/{id} sees the same field names the pipeline
// writes.
package api
