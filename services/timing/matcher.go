package timing

import "strings"

// FindFirst returns the first entry, in scan order, whose name contains pattern.
// Matching is a case-sensitive substring test. Later entries that also match are ignored.
func FindFirst(entries []TraceEntry, pattern string) (TraceEntry, bool) {
	for _, e := range entries {
		if strings.Contains(e.Name, pattern) {
			return e, true
		}
	}
	return TraceEntry{}, false
}
