// Package jobs persists dubbing job records in SQLite and exposes the change
// feed the dispatcher consumes.
//
// Every write to a record happens inside a transaction that also appends a
// row to job_changes carrying the before and after snapshots. The dispatcher
// polls undelivered rows in sequence order and marks them delivered after
// handing them off, which gives at-least-once delivery across restarts.
//
// Status is the only field that drives dispatch. Transition enforces the
// forward-only state machine (see CanTransition) and compare-and-swaps on
// (status, version); Claim records that a stage has started for a job so a
// duplicated notification cannot run the same stage twice.
//
// Record.State narrows a record to a typed variant holding exactly the fields
// its status guarantees. Stage processors type-switch on it instead of
// reading optional fields directly.
package jobs
