// Package ingest is the upload path that feeds the pipeline. It stores the
// original video first and only then creates the job record, so a record
// never points at a missing object. When record creation fails the object is
// deleted again. Progress is reported as discrete lifecycle events.
package ingest
