package timing

import "sort"

// RankByDuration returns a copy of entries ordered by duration, longest first.
// Entries with equal durations keep their capture order.
func RankByDuration(entries []TraceEntry) []TraceEntry {
	ranked := make([]TraceEntry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Duration > ranked[j].Duration
	})

	return ranked
}

// Top returns at most n entries from the front of ranked. n <= 0 returns all of them.
func Top(ranked []TraceEntry, n int) []TraceEntry {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
