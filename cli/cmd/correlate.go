package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/perftrace/cli/internal/output"
	"github.com/instantcocoa/perftrace/services/timing"
)

func newCorrelateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correlate <trace>...",
		Short: "Measure intervals between trace entries",
		Long: `Find the first entry containing each start and end marker and report the
time between their start times. Several traces (for example the resource and
xmlhttprequest captures of one session) are merged in the order given.

A trace is a local path, "-" for stdin, an http(s) URL or an s3://bucket/key.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			return runCorrelate(ctx, cmd, args)
		},
	}

	addDefinitionFlags(cmd)
	cmd.Flags().String("name", "", "Analysis name (defaults to the first trace)")
	cmd.Flags().String("export", "", "Write the interval report to a file or s3:// URL (.xlsx, .csv, .json, .jsonl, .parquet)")
	cmd.Flags().String("trace-export", "", "Write all entries, longest first, to a file or s3:// URL")
	cmd.Flags().Bool("save", false, "Record the analysis in the local history")

	return cmd
}

func runCorrelate(ctx context.Context, cmd *cobra.Command, args []string) error {
	defs, err := resolveDefinitions(cmd)
	if err != nil {
		return err
	}
	records, err := loadRecords(ctx, args)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = args[0]
	}
	save, _ := cmd.Flags().GetBool("save")

	var store timing.Store = timing.NewMemoryStore()
	if save {
		h, err := openHistory(ctx)
		if err != nil {
			return err
		}
		defer h.Close()
		store = h.store
	}

	a, err := timing.NewService(store, logger).Analyze(ctx, timing.AnalyzeInput{
		Name:        name,
		Records:     records,
		Definitions: defs,
	})
	if err != nil {
		return err
	}
	reportSkipped(a.Skipped)

	if err := printResults(cmd, a.Results, a.Diagnostics); err != nil {
		return err
	}

	exportPath, _ := cmd.Flags().GetString("export")
	if exportPath != "" {
		if a.Empty() {
			output.Warn("skipping export to %s", exportPath)
		} else if err := exportTable(ctx, a.Table(timing.ReportIntervals), exportPath); err != nil {
			return err
		}
	}

	tracePath, _ := cmd.Flags().GetString("trace-export")
	if err := exportTable(ctx, a.Table(timing.ReportTrace), tracePath); err != nil {
		return err
	}

	if save {
		output.Success("saved analysis %s", a.ID)
	}
	return nil
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <trace>...",
		Short: "Re-run a correlation whenever a trace file changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				if a == "-" || strings.Contains(a, "://") {
					return fmt.Errorf("watch needs local files, got %q", a)
				}
			}
			debounce, _ := cmd.Flags().GetDuration("debounce")
			return runWatch(cmd.Context(), cmd, args, debounce)
		},
	}

	addDefinitionFlags(cmd)
	cmd.Flags().String("name", "", "Analysis name (defaults to the first trace)")
	cmd.Flags().String("export", "", "Rewrite the interval report after every run")
	cmd.Flags().String("trace-export", "", "Rewrite the full trace report after every run")
	cmd.Flags().Bool("save", false, "Record every run in the local history")
	cmd.Flags().Duration("debounce", 300*time.Millisecond, "Quiet period before re-running")

	return cmd
}
