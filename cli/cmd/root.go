// Package cmd contains CLI commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/perftrace/cli/internal/config"
	"github.com/instantcocoa/perftrace/cli/internal/output"
)

// Version is the CLI version, overridden at build time.
var Version = "0.1.0"

var (
	cfg    *config.Config
	logger *slog.Logger
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var (
		format  string
		verbose bool
	)

	root := &cobra.Command{
		Use:   "perftrace",
		Short: "perftrace - browser performance trace correlation",
		Long: `perftrace turns captured browser resource-timing entries into
interval reports: how long it took from one request to another.

Examples:
  # Measure the login interval of a capture
  perftrace correlate capture.json --preset login

  # Custom intervals, exported to a spreadsheet
  perftrace correlate resource.json xhr.json --start bpsso.lenovo.com/webauthn \
    --end /signalr/start --export timings.xlsx

  # Slowest requests of a capture
  perftrace rank capture.json --top 20

  # Re-run the analysis whenever the capture changes
  perftrace watch capture.json --preset navigation
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.DefaultConfig()
			if format != "" {
				cfg.Format = format
			}
			if verbose {
				cfg.Verbose = true
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}

	root.PersistentFlags().StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(
		newCorrelateCmd(),
		newRankCmd(),
		newNormalizeCmd(),
		newURLsCmd(),
		newWatchCmd(),
		newHistoryCmd(),
		newRemoteCmd(),
		newPresetsCmd(),
		newVersionCmd(),
	)

	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "perftrace version %s\n", Version)
		},
	}
}

func writer(cmd *cobra.Command) *output.Writer {
	return output.NewWriterTo(cfg.Format, cmd.OutOrStdout())
}
