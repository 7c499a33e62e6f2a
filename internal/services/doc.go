// Package services defines shared utilities consumed by the pipeline stages
// and the external service adapters.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, owners, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified consistently.
//   - APIError, the common shape of a non-success response from a remote
//     service, whose message is what a failed stage persists.
//
// Adapters live in subpackages (deepgram, llm, cartesia, ffmpeg) and depend
// only on this package, never on the pipeline.
package services
