// Package timing correlates browser resource-timing entries into named interval reports.
package timing

import (
	"errors"
	"time"
)

// TraceEntry is one timestamped, named performance observation.
// Times are milliseconds relative to the trace origin (navigation start).
type TraceEntry struct {
	Name      string  `json:"name" yaml:"name"`
	StartTime float64 `json:"startTime" yaml:"startTime"`
	Duration  float64 `json:"duration" yaml:"duration"`
}

// EndTime returns StartTime + Duration.
func (e TraceEntry) EndTime() float64 {
	return e.StartTime + e.Duration
}

// IntervalDefinition declares a named pair of markers bounding a measured interval.
type IntervalDefinition struct {
	Label        string `json:"label" yaml:"label"`
	StartPattern string `json:"start" yaml:"start"`
	EndPattern   string `json:"end" yaml:"end"`
}

// MatchStatus reports whether both markers of an interval were found.
type MatchStatus int

const (
	StatusUnmatched MatchStatus = iota
	StatusMatched
)

func (s MatchStatus) String() string {
	if s == StatusMatched {
		return "Matched"
	}
	return "Unmatched"
}

// MarshalText renders the status as its name.
func (s MatchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *MatchStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Matched", "matched":
		*s = StatusMatched
	case "Unmatched", "unmatched", "":
		*s = StatusUnmatched
	default:
		return errors.New("unknown match status: " + string(b))
	}
	return nil
}

// CorrelationResult is the outcome of resolving one IntervalDefinition.
// StartTime, EndTime and DurationSeconds are only meaningful when Status is StatusMatched.
type CorrelationResult struct {
	Label           string      `json:"label"`
	StartPattern    string      `json:"start_pattern"`
	EndPattern      string      `json:"end_pattern"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	DurationSeconds float64     `json:"duration_seconds"`
	Status          MatchStatus `json:"status"`
}

// Matched reports whether both markers resolved.
func (r CorrelationResult) Matched() bool {
	return r.Status == StatusMatched
}

// SkippedEntry records a raw capture record rejected at the decoding boundary.
type SkippedEntry struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Sentinel errors.
var (
	// ErrEmptyResultSet means no interval reached StatusMatched.
	ErrEmptyResultSet = errors.New("no interval matched")

	// ErrAnalysisNotFound is returned by stores for unknown analysis IDs.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrUnsupportedFormat is returned for unknown export formats.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)
