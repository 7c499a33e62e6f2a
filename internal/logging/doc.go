// Package logging assembles the slog loggers used across dubber.
//
// Terminal output is either a console layout (header line plus indented
// fields) or JSON lines; log files always get JSON lines. Context helpers tag
// records with job IDs, owners, stages and correlation IDs so stage code does
// not repeat them, and WarnWithContext/ErrorWithContext guarantee every
// warning carries an event type, an operator hint and an impact.
package logging
