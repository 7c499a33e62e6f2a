// Package daemon coordinates the long-running dubber process.
//
// It wires configuration, the job store, the stage dispatcher, the change
// feed poller, the scheduled sweep, and the read-only status API into a
// single lifecycle with flock-based locking to prevent multiple instances
// from consuming the same change feed. The daemon reports job counts, stage
// readiness, and dependency health for the CLI and HTTP consumers.
//
// Keep orchestration logic here: individual stages should live in the
// pipeline package while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
