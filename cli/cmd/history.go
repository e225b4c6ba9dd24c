package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/perftrace/cli/internal/output"
	"github.com/instantcocoa/perftrace/pkg/database"
	"github.com/instantcocoa/perftrace/services/timing"
)

// history is the local SQLite record of saved analyses.
type history struct {
	db    *database.DB
	store timing.Store
}

func openHistory(ctx context.Context) (*history, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.HistoryPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := database.ConnectAndMigrate(ctx,
		database.SQLiteConfig(cfg.HistoryPath),
		"perftrace", timing.Migrations, timing.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", cfg.HistoryPath, err)
	}
	db.WithLogger(logger)

	return &history{db: db, store: timing.NewSQLStore(db.DB)}, nil
}

func (h *history) Close() error {
	return h.db.Close()
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse analyses saved with --save",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved analyses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer h.Close()

			name, _ := cmd.Flags().GetString("name")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			res, err := timing.NewService(h.store, logger).ListAnalyses(cmd.Context(), timing.ListQuery{
				Name:   name,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}
			return printAnalyses(cmd, res)
		},
	}
	listCmd.Flags().String("name", "", "Only analyses with this name")
	listCmd.Flags().Int("limit", 20, "Maximum number of analyses")
	listCmd.Flags().Int("offset", 0, "Number of analyses to skip")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer h.Close()

			a, err := timing.NewService(h.store, logger).GetAnalysis(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return showAnalysis(cmd, a)
		},
	}
	addReportFlags(showCmd)

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().String("kind", "intervals", "Report to show or export (intervals, trace)")
	cmd.Flags().String("export", "", "Write the report to a file or s3:// URL")
}

// showAnalysis prints one report of a, exporting it when --export is set.
func showAnalysis(cmd *cobra.Command, a *timing.Analysis) error {
	kindName, _ := cmd.Flags().GetString("kind")
	kind, err := timing.ParseReportKind(kindName)
	if err != nil {
		return err
	}

	if err := printReport(cmd, a, kind); err != nil {
		return err
	}

	exportPath, _ := cmd.Flags().GetString("export")
	if exportPath == "" {
		return nil
	}
	if kind == timing.ReportIntervals && a.Empty() {
		output.Warn("skipping export to %s", exportPath)
		return nil
	}
	return exportTable(cmd.Context(), a.Table(kind), exportPath)
}

func printReport(cmd *cobra.Command, a *timing.Analysis, kind timing.ReportKind) error {
	if kind == timing.ReportIntervals {
		return printResults(cmd, a.Results, a.Diagnostics)
	}
	w := writer(cmd)
	if w.Structured() {
		return w.Print(a.Ranked)
	}
	return w.Print(a.Table(kind))
}

func printAnalyses(cmd *cobra.Command, res *timing.ListResult) error {
	w := writer(cmd)
	if w.Structured() {
		return w.Print(res)
	}

	table := output.Table{
		Headers: []string{"ID", "NAME", "CREATED", "ENTRIES", "MATCHED"},
		Rows:    make([][]string, len(res.Analyses)),
	}
	for i, a := range res.Analyses {
		table.Rows[i] = []string{
			a.ID,
			a.Name,
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", len(a.Entries)),
			fmt.Sprintf("%d/%d", a.MatchedCount(), len(a.Results)),
		}
	}
	if err := w.Print(table); err != nil {
		return err
	}
	output.Info("%d of %d analyses", len(res.Analyses), res.Total)
	return nil
}
