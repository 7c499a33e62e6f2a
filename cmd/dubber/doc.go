// Package main hosts the dubber CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the pipeline daemon, submits videos for
// dubbing, inspects job records directly from the job database, queries the
// running daemon's status API, and scaffolds configuration. It centralizes
// configuration resolution and logging setup so subcommands can focus on
// output instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
