package stage

import "dubber/internal/jobs"

// Triggered reports whether change is the edge that moves a record onto
// trigger. A create counts as an edge from no status. Updates that leave the
// status unchanged, or land on any other status, never match.
func Triggered(change jobs.Change, trigger jobs.Status) bool {
	if change.After == nil {
		return false
	}
	var before jobs.Status
	if change.Before != nil {
		before = change.Before.Status
	}
	return before != trigger && change.After.Status == trigger
}

// Resolve returns the single handler whose trigger matches change.
func Resolve(handlers []Handler, change jobs.Change) (Handler, bool) {
	for _, h := range handlers {
		if h != nil && h.Matches(change) {
			return h, true
		}
	}
	return nil, false
}
