package timing

import (
	"fmt"
	"strconv"
	"time"
)

// Sheet names used when a table is exported.
const (
	IntervalSheet = "URL Timings"
	TraceSheet    = "Performance Data"
)

// InstantLayout renders an instant as HH:MM:SS.mmm.
const InstantLayout = "15:04:05.000"

// Column headers of the interval report.
var IntervalHeaders = []string{
	"Label",
	"Start Pattern",
	"End Pattern",
	"Start Time",
	"End Time",
	"Duration (s)",
	"Status",
}

// Column headers of the full trace report.
var TraceHeaders = []string{
	"URL",
	"Start Time (ms)",
	"End Time (ms)",
	"Duration (ms)",
}

// Table is an ordered set of rows of formatted cells, ready for export.
type Table struct {
	// Name is used as the sheet name by spreadsheet writers.
	Name    string
	Headers []string
	Rows    [][]string
	// Numeric marks columns whose cells hold plain numbers.
	Numeric []bool
}

// IsNumeric reports whether column i holds plain numbers.
func (t Table) IsNumeric(i int) bool {
	return i < len(t.Numeric) && t.Numeric[i]
}

// Columns returns the headers.
func (t Table) Columns() []string { return t.Headers }

// Cells returns the formatted rows.
func (t Table) Cells() [][]string { return t.Rows }

// Records returns the rows as header-keyed maps.
func (t Table) Records() []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			if j < len(row) {
				rec[h] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

// CorrelationTable formats correlation results, one row per result, in order.
// Unmatched rows carry empty time and duration cells.
func CorrelationTable(results []CorrelationResult) Table {
	t := Table{
		Name:    IntervalSheet,
		Headers: append([]string(nil), IntervalHeaders...),
		Rows:    make([][]string, 0, len(results)),
	}

	for _, r := range results {
		row := []string{r.Label, r.StartPattern, r.EndPattern, "", "", "", r.Status.String()}
		if r.Matched() {
			row[3] = FormatInstant(r.StartTime)
			row[4] = FormatInstant(r.EndTime)
			row[5] = FormatSeconds(r.DurationSeconds)
		}
		t.Rows = append(t.Rows, row)
	}

	return t
}

// TraceTable formats entries as raw millisecond values, preserving their order.
func TraceTable(entries []TraceEntry) Table {
	t := Table{
		Name:    TraceSheet,
		Headers: append([]string(nil), TraceHeaders...),
		Rows:    make([][]string, 0, len(entries)),
		Numeric: []bool{false, true, true, true},
	}

	for _, e := range entries {
		t.Rows = append(t.Rows, []string{
			e.Name,
			FormatMillis(e.StartTime),
			FormatMillis(e.EndTime()),
			FormatMillis(e.Duration),
		})
	}

	return t
}

// FormatInstant renders t in UTC as HH:MM:SS.mmm.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

// FormatSeconds renders a duration in seconds with three decimals.
func FormatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

// FormatMillis renders a millisecond value with the shortest exact representation.
func FormatMillis(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}
