// Package pipeline implements the four dubbing stages: Transcribe,
// Translate, Synthesize and Align.
//
// Every stage follows the same protocol, driven by process in runner.go:
//
//  1. Re-check the edge-triggered guard against the change snapshots.
//  2. Validate inputs through the record's typed state and confirm the
//     adapter has a credential. A failure here is logged and the record is
//     left untouched.
//  3. Claim the (job, stage) pair in the store so duplicate deliveries do
//     not both reach the external service.
//  4. Acquire a scratch workspace when the stage needs local files.
//  5. Call the adapter and upload any artifact.
//  6. Commit the new fields and status in one conditional write, or persist
//     the failure. A commit failure after an upload deletes the artifact and
//     records the delete error too when that also fails.
//  7. Release the workspace on every path.
//
// Stages never return errors; the job record is the only failure channel.
package pipeline
