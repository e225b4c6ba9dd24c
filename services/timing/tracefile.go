package timing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// SaveTrace writes entries as an indented JSON array of {name, startTime, duration}.
func SaveTrace(w io.Writer, entries []TraceEntry) error {
	if entries == nil {
		entries = []TraceEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	return nil
}

// LoadTrace reads a trace array written by SaveTrace, or a raw browser capture.
// Both go through the same validating conversion as live captures.
func LoadTrace(r io.Reader) ([]TraceEntry, []SkippedEntry, error) {
	records, err := ParseRecords(r)
	if err != nil {
		return nil, nil, err
	}
	entries, skipped := DecodeEntries(records)
	return entries, skipped, nil
}

// SaveTraceFile writes entries to path. The content is the same for .json and .har paths.
func SaveTraceFile(path string, entries []TraceEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := SaveTrace(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadTraceFile reads a trace file from disk.
func LoadTraceFile(path string) ([]TraceEntry, []SkippedEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()
	return LoadTrace(f)
}
