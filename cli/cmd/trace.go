package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/perftrace/cli/internal/output"
	"github.com/instantcocoa/perftrace/services/timing"
)

func s3Options() timing.S3Options {
	return timing.S3Options{
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	}
}

// loadRecords reads every trace reference and merges the records in the
// order given.
func loadRecords(ctx context.Context, refs []string) ([]timing.Record, error) {
	batches := make([][]timing.Record, 0, len(refs))
	for _, ref := range refs {
		src, err := timing.OpenSource(ref, s3Options())
		if err != nil {
			return nil, err
		}
		records, err := timing.ReadTrace(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		logger.Debug("loaded trace", "source", ref, "records", len(records))
		batches = append(batches, records)
	}
	return timing.MergeRecords(batches...), nil
}

// loadEntries reads and decodes traces, warning about skipped records.
func loadEntries(ctx context.Context, refs []string) ([]timing.TraceEntry, error) {
	records, err := loadRecords(ctx, refs)
	if err != nil {
		return nil, err
	}
	entries, skipped := timing.DecodeEntries(records)
	reportSkipped(skipped)
	return entries, nil
}

func reportSkipped(skipped []timing.SkippedEntry) {
	if len(skipped) == 0 {
		return
	}
	output.Warn("skipped %d malformed records", len(skipped))
	for _, s := range skipped {
		logger.Debug("skipped record", "index", s.Index, "reason", s.Reason)
	}
}

func addDefinitionFlags(cmd *cobra.Command) {
	cmd.Flags().String("preset", "", "Built-in interval definitions (see 'perftrace presets')")
	cmd.Flags().StringP("definitions", "d", "", "YAML interval definitions file")
	cmd.Flags().StringSlice("start", nil, "Start marker; every start is paired with every end")
	cmd.Flags().StringSlice("end", nil, "End marker")
}

// resolveDefinitions picks, in order: --start/--end pairs, a definitions
// file, a preset.
func resolveDefinitions(cmd *cobra.Command) ([]timing.IntervalDefinition, error) {
	starts, _ := cmd.Flags().GetStringSlice("start")
	ends, _ := cmd.Flags().GetStringSlice("end")
	file, _ := cmd.Flags().GetString("definitions")
	preset, _ := cmd.Flags().GetString("preset")

	var set timing.DefinitionSet
	switch {
	case len(starts) > 0 || len(ends) > 0:
		if len(starts) == 0 || len(ends) == 0 {
			return nil, fmt.Errorf("--start and --end must be given together")
		}
		set.Matrix = &timing.Matrix{Starts: starts, Ends: ends}
	case file != "" || (preset == "" && cfg.DefinitionsFile != ""):
		if file == "" {
			file = cfg.DefinitionsFile
		}
		loaded, err := timing.LoadDefinitionsFile(file)
		if err != nil {
			return nil, err
		}
		set = loaded
	case preset != "":
		p, ok := timing.Preset(preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q (available: %v)", preset, timing.PresetNames())
		}
		set = p
	default:
		return nil, fmt.Errorf("no interval definitions: use --preset, --definitions or --start/--end")
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set.Definitions(), nil
}

// printResults shows correlation results, warning when nothing matched.
func printResults(cmd *cobra.Command, results []timing.CorrelationResult, diagnostics []string) error {
	for _, d := range diagnostics {
		logger.Debug(d)
	}

	var data interface{} = timing.CorrelationTable(results)
	w := writer(cmd)
	if w.Structured() {
		data = results
	}
	if err := w.Print(data); err != nil {
		return err
	}
	if (timing.Correlation{Results: results}).Empty() {
		output.Warn("No data found: no interval matched")
	}
	return nil
}

// exportTable writes t to dest unless dest is empty.
func exportTable(ctx context.Context, t timing.Table, dest string) error {
	if dest == "" {
		return nil
	}
	if err := timing.Export(ctx, t, dest, s3Options()); err != nil {
		return fmt.Errorf("failed to export %s: %w", dest, err)
	}
	output.Success("wrote %s (%d rows)", dest, len(t.Rows))
	return nil
}
