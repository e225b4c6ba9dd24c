package timing

import (
	"fmt"
	"time"
)

// Correlation is the outcome of one Correlate call.
type Correlation struct {
	// Results holds one entry per definition, in declaration order.
	Results []CorrelationResult `json:"results"`

	// Diagnostics names the missing markers of each unmatched interval.
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// MatchedCount returns how many results reached StatusMatched.
func (c Correlation) MatchedCount() int {
	n := 0
	for _, r := range c.Results {
		if r.Matched() {
			n++
		}
	}
	return n
}

// Empty reports whether no result matched.
func (c Correlation) Empty() bool {
	return c.MatchedCount() == 0
}

// Err returns ErrEmptyResultSet when nothing matched, nil otherwise.
func (c Correlation) Err() error {
	if c.Empty() {
		return ErrEmptyResultSet
	}
	return nil
}

// Correlate resolves every definition against entries.
//
// Start and end markers are resolved independently with FindFirst, and the
// interval is measured between the two entries' start times. Results are
// never dropped: a definition with a missing marker yields StatusUnmatched.
func Correlate(entries []TraceEntry, defs []IntervalDefinition) Correlation {
	c := Correlation{
		Results: make([]CorrelationResult, 0, len(defs)),
	}

	for _, def := range defs {
		res := CorrelationResult{
			Label:        def.Label,
			StartPattern: def.StartPattern,
			EndPattern:   def.EndPattern,
		}

		start, startOK := FindFirst(entries, def.StartPattern)
		end, endOK := FindFirst(entries, def.EndPattern)

		if !startOK || !endOK {
			c.Diagnostics = append(c.Diagnostics, unmatchedDiagnostic(def, startOK, endOK))
			c.Results = append(c.Results, res)
			continue
		}

		res.StartTime = Instant(start.StartTime)
		res.EndTime = Instant(end.StartTime)
		res.DurationSeconds = float64(res.EndTime.Sub(res.StartTime).Milliseconds()) / 1000.0
		res.Status = StatusMatched
		c.Results = append(c.Results, res)
	}

	return c
}

// Instant converts a millisecond offset into a UTC instant, truncating
// fractional milliseconds. A zero origin keeps the clock reading equal to the offset.
func Instant(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}

func unmatchedDiagnostic(def IntervalDefinition, startOK, endOK bool) string {
	var missing string
	switch {
	case !startOK && !endOK:
		missing = fmt.Sprintf("start %q and end %q not found", def.StartPattern, def.EndPattern)
	case !startOK:
		missing = fmt.Sprintf("start %q not found", def.StartPattern)
	default:
		missing = fmt.Sprintf("end %q not found", def.EndPattern)
	}
	return fmt.Sprintf("no match for %s: %s", displayLabel(def), missing)
}

func displayLabel(def IntervalDefinition) string {
	if def.Label != "" {
		return def.Label
	}
	return def.StartPattern + " → " + def.EndPattern
}
