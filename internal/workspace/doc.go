// Package workspace hands out per-invocation scratch directories for stage
// processors.
//
// Each Acquire creates a fresh directory under the configured scratch root
// after checking the root is writable and has enough free space. Cleanup
// removes the directory and everything in it; processors defer it so no
// scratch file outlives the invocation. CleanStale sweeps directories left
// behind by a crashed process.
package workspace
