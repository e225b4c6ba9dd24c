package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/perftrace/cli/internal/output"
	"github.com/instantcocoa/perftrace/services/timing"
)

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank <trace>...",
		Short: "List trace entries by duration, longest first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			top, _ := cmd.Flags().GetInt("top")
			if top < 0 {
				return fmt.Errorf("--top must not be negative")
			}

			entries, err := loadEntries(cmd.Context(), args)
			if err != nil {
				return err
			}
			ranked := timing.Top(timing.RankByDuration(entries), top)

			exportPath, _ := cmd.Flags().GetString("export")
			if err := exportTable(cmd.Context(), timing.TraceTable(ranked), exportPath); err != nil {
				return err
			}

			w := writer(cmd)
			if w.Structured() {
				return w.Print(ranked)
			}
			return w.Print(timing.TraceTable(ranked))
		},
	}

	cmd.Flags().IntP("top", "n", 0, "Show only the N longest entries (0 for all)")
	cmd.Flags().String("export", "", "Write the ranked entries to a file or s3:// URL")

	return cmd
}

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize <trace>... --out <path>",
		Short: "Save the validated entries of traces as JSON and HAR files",
		Long: `Decode traces, drop malformed records and save the remaining entries as
<path>.json and <path>.har. Both files hold the same JSON array.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return fmt.Errorf("--out is required")
			}

			entries, err := loadEntries(cmd.Context(), args)
			if err != nil {
				return err
			}

			base := out
			if ext := filepath.Ext(out); ext == ".json" || ext == ".har" {
				base = strings.TrimSuffix(out, ext)
			}
			for _, path := range []string{base + ".json", base + ".har"} {
				if err := timing.SaveTraceFile(path, entries); err != nil {
					return err
				}
				output.Success("wrote %s (%d entries)", path, len(entries))
			}
			return nil
		},
	}

	cmd.Flags().StringP("out", "w", "", "Output path; .json and .har files are written")

	return cmd
}

func newURLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urls <trace>...",
		Short: "List entry names in capture order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadEntries(cmd.Context(), args)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			for _, e := range entries {
				buf.WriteString(e.Name)
				buf.WriteByte('\n')
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			output.Success("wrote %d URLs to %s", len(entries), out)
			return nil
		},
	}

	cmd.Flags().StringP("out", "w", "", "Write the list to a file instead of stdout")

	return cmd
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List built-in interval definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sets := make(map[string][]timing.IntervalDefinition)
			table := output.Table{Headers: []string{"PRESET", "LABEL", "START", "END"}}
			for _, name := range timing.PresetNames() {
				set, _ := timing.Preset(name)
				sets[name] = set.Definitions()
				for _, d := range sets[name] {
					table.Rows = append(table.Rows, []string{name, d.Label, d.StartPattern, d.EndPattern})
				}
			}

			w := writer(cmd)
			if w.Structured() {
				return w.Print(sets)
			}
			return w.Print(table)
		},
	}
}
