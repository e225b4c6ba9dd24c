package timing

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// Record is one untyped capture record, as produced by JSON.stringify of a
// PerformanceResourceTiming entry.
type Record = map[string]any

// ParseRecords reads a JSON array of capture records.
// Numbers are kept as json.Number so no precision is lost before validation.
func ParseRecords(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse trace records: %w", err)
	}
	return records, nil
}

// MergeRecords concatenates record batches in the order given, e.g. the
// "resource" batch followed by the "xmlhttprequest" batch.
func MergeRecords(batches ...[]Record) []Record {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	merged := make([]Record, 0, n)
	for _, b := range batches {
		merged = append(merged, b...)
	}
	return merged
}

// DecodeEntries validates raw records and converts them into trace entries.
// Records that do not conform are skipped and reported; the rest keep their order.
func DecodeEntries(records []Record) ([]TraceEntry, []SkippedEntry) {
	entries := make([]TraceEntry, 0, len(records))
	var skipped []SkippedEntry

	for i, rec := range records {
		entry, err := decodeEntry(rec)
		if err != nil {
			skipped = append(skipped, SkippedEntry{Index: i, Reason: err.Error()})
			continue
		}
		entries = append(entries, entry)
	}

	return entries, skipped
}

func decodeEntry(rec Record) (TraceEntry, error) {
	if rec == nil {
		return TraceEntry{}, fmt.Errorf("record is null")
	}

	name, ok := rec["name"].(string)
	if !ok {
		return TraceEntry{}, fmt.Errorf("name: missing or not a string")
	}
	if name == "" {
		return TraceEntry{}, fmt.Errorf("name: empty")
	}

	start, err := millis(rec, "startTime")
	if err != nil {
		return TraceEntry{}, err
	}
	dur, err := millis(rec, "duration")
	if err != nil {
		return TraceEntry{}, err
	}

	return TraceEntry{Name: name, StartTime: start, Duration: dur}, nil
}

func millis(rec Record, field string) (float64, error) {
	raw, ok := rec[field]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%s: missing", field)
	}

	var v float64
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", field, n.String())
		}
		v = f
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	default:
		return 0, fmt.Errorf("%s: %v is not a number", field, raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: not finite", field)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: negative value %v", field, v)
	}
	return v, nil
}
