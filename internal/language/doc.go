// Package language holds the table of dubbing targets.
//
// The table is the single source for which languages a job may request, the
// human-readable name sent to the translator, and the synthesis voice used
// for each language. Codes are canonicalized through golang.org/x/text so
// "ES", "spa" and "es-MX" all resolve to the same entry.
package language
