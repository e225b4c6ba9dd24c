package timing

import (
	"reflect"
	"testing"
	"time"
)

func TestCorrelationTable(t *testing.T) {
	results := []CorrelationResult{
		{
			Label:           "login",
			StartPattern:    "webauthn",
			EndPattern:      "signalr/start",
			StartTime:       Instant(1000),
			EndTime:         Instant(4500),
			DurationSeconds: 3.5,
			Status:          StatusMatched,
		},
		{Label: "missing", StartPattern: "nope", EndPattern: "never"},
	}

	table := CorrelationTable(results)

	if table.Name != IntervalSheet {
		t.Errorf("Name = %q, want %q", table.Name, IntervalSheet)
	}
	if !reflect.DeepEqual(table.Headers, IntervalHeaders) {
		t.Errorf("Headers = %v, want %v", table.Headers, IntervalHeaders)
	}

	want := [][]string{
		{"login", "webauthn", "signalr/start", "00:00:01.000", "00:00:04.500", "3.500", "Matched"},
		{"missing", "nope", "never", "", "", "", "Unmatched"},
	}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("Rows = %v, want %v", table.Rows, want)
	}
}

func TestCorrelationTable_HeadersAreCopied(t *testing.T) {
	table := CorrelationTable(nil)
	table.Headers[0] = "changed"

	if IntervalHeaders[0] != "Label" {
		t.Error("CorrelationTable() shares its header slice with IntervalHeaders")
	}
	if len(table.Rows) != 0 {
		t.Errorf("len(Rows) = %d, want 0", len(table.Rows))
	}
}

func TestTraceTable(t *testing.T) {
	entries := []TraceEntry{
		{Name: "slow", StartTime: 100.25, Duration: 900},
		{Name: "fast", StartTime: 0, Duration: 0.5},
	}

	table := TraceTable(entries)

	if table.Name != TraceSheet {
		t.Errorf("Name = %q, want %q", table.Name, TraceSheet)
	}
	want := [][]string{
		{"slow", "100.25", "1000.25", "900"},
		{"fast", "0", "0.5", "0.5"},
	}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("Rows = %v, want %v", table.Rows, want)
	}
	if table.IsNumeric(0) || !table.IsNumeric(1) || !table.IsNumeric(3) || table.IsNumeric(9) {
		t.Errorf("Numeric = %v, want URL text and time columns numeric", table.Numeric)
	}
}

func TestTable_Records(t *testing.T) {
	table := Table{
		Headers: []string{"a", "b"},
		Rows:    [][]string{{"1", "2"}, {"3"}},
	}

	got := table.Records()

	want := []map[string]string{{"a": "1", "b": "2"}, {"a": "3"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Records() = %v, want %v", got, want)
	}
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"instant", FormatInstant(time.Date(2024, 3, 1, 13, 4, 5, 678_000_000, time.UTC)), "13:04:05.678"},
		{"instant converts to UTC", FormatInstant(time.Date(2024, 3, 1, 14, 0, 0, 0, time.FixedZone("CET", 3600))), "13:00:00.000"},
		{"instant from millis", FormatInstant(Instant(3_723_004)), "01:02:03.004"},
		{"seconds rounds to millis", FormatSeconds(1.23456), "1.235"},
		{"seconds pads", FormatSeconds(2), "2.000"},
		{"millis integer", FormatMillis(42), "42"},
		{"millis fraction", FormatMillis(42.125), "42.125"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestMatchStatus_Text(t *testing.T) {
	for _, s := range []MatchStatus{StatusMatched, StatusUnmatched} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText() error = %v", err)
		}
		var back MatchStatus
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if back != s {
			t.Errorf("round trip of %v = %v", s, back)
		}
	}

	var s MatchStatus
	if err := s.UnmarshalText([]byte("Partial")); err == nil {
		t.Error("UnmarshalText(Partial) error = nil, want error")
	}
}
