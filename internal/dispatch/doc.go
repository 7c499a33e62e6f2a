// Package dispatch delivers job changes to the pipeline stages.
//
// The Poller reads undelivered changes from the job store feed, hands each
// one to the Dispatcher and marks the batch delivered. The Dispatcher picks
// at most one stage per change using the edge-triggered guard and runs it in
// the background on a bounded number of workers. It never retries: stages
// persist their own failures. The Sweeper runs on a cron schedule, reports
// stalled jobs and prunes delivered changes and stale scratch directories.
package dispatch
