package timing

import (
	"fmt"
	"time"
)

// Analysis is one stored correlation run over a captured trace.
type Analysis struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	Definitions []IntervalDefinition `json:"definitions"`
	Entries     []TraceEntry         `json:"entries"`
	Skipped     []SkippedEntry       `json:"skipped,omitempty"`
	Results     []CorrelationResult  `json:"results"`
	// Ranked is Entries ordered by duration, longest first, cut to the requested limit.
	Ranked      []TraceEntry `json:"ranked"`
	Diagnostics []string     `json:"diagnostics,omitempty"`
}

// MatchedCount returns how many intervals matched.
func (a *Analysis) MatchedCount() int {
	return Correlation{Results: a.Results}.MatchedCount()
}

// Empty reports whether no interval matched.
func (a *Analysis) Empty() bool {
	return a.MatchedCount() == 0
}

// ReportKind selects which table of an analysis is rendered.
type ReportKind string

const (
	ReportIntervals ReportKind = "intervals"
	ReportTrace     ReportKind = "trace"
)

// ParseReportKind parses a report kind; empty means intervals.
func ParseReportKind(s string) (ReportKind, error) {
	switch ReportKind(s) {
	case "", ReportIntervals:
		return ReportIntervals, nil
	case ReportTrace:
		return ReportTrace, nil
	default:
		return "", fmt.Errorf("unknown report kind: %q", s)
	}
}

// Table renders the requested report of the analysis.
func (a *Analysis) Table(kind ReportKind) Table {
	if kind == ReportTrace {
		return TraceTable(a.Ranked)
	}
	return CorrelationTable(a.Results)
}

// AnalyzeInput is the request to run and store one analysis.
type AnalyzeInput struct {
	Name        string               `json:"name"`
	Records     []Record             `json:"records"`
	Definitions []IntervalDefinition `json:"definitions,omitempty"`
	// Preset names a built-in definition set used when Definitions is empty.
	Preset    string `json:"preset,omitempty"`
	RankLimit int    `json:"rank_limit,omitempty"`
}

// ResolveDefinitions returns the explicit definitions, or the preset's.
func (in AnalyzeInput) ResolveDefinitions() ([]IntervalDefinition, error) {
	set := DefinitionSet{Intervals: in.Definitions}
	if len(in.Definitions) == 0 && in.Preset != "" {
		preset, ok := Preset(in.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset: %q", in.Preset)
		}
		set = preset
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set.Definitions(), nil
}

// ListQuery filters stored analyses.
type ListQuery struct {
	Name   string `json:"name,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ListResult is one page of analyses, newest first.
type ListResult struct {
	Analyses []*Analysis `json:"analyses"`
	Total    int         `json:"total"`
}

// CopyAnalysis returns a deep copy of a.
func CopyAnalysis(a *Analysis) *Analysis {
	if a == nil {
		return nil
	}
	c := *a
	c.Definitions = append([]IntervalDefinition(nil), a.Definitions...)
	c.Entries = append([]TraceEntry(nil), a.Entries...)
	c.Skipped = append([]SkippedEntry(nil), a.Skipped...)
	c.Results = append([]CorrelationResult(nil), a.Results...)
	c.Ranked = append([]TraceEntry(nil), a.Ranked...)
	c.Diagnostics = append([]string(nil), a.Diagnostics...)
	return &c
}
