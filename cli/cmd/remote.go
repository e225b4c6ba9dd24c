package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/instantcocoa/perftrace/pkg/grpcutil"
	"github.com/instantcocoa/perftrace/services/timing"
)

// dialServer is replaced in tests.
var dialServer = func(addr string) (grpc.ClientConnInterface, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Close, nil
}

func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *timing.Client) error) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.ServerAddr
	}

	conn, closeConn, err := dialServer(addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer closeConn()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	if err := fn(ctx, timing.NewClient(conn)); err != nil {
		return fmt.Errorf("%s", grpcutil.Describe(err))
	}
	return nil
}

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Run and browse analyses on a perftrace server",
	}
	cmd.PersistentFlags().String("addr", "", "Server address (default $PERFTRACE_SERVER_ADDR or localhost:9000)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <trace>...",
		Short: "Submit traces for analysis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := timing.AnalyzeInput{}
			in.Name, _ = cmd.Flags().GetString("name")
			in.Preset, _ = cmd.Flags().GetString("preset")
			in.RankLimit, _ = cmd.Flags().GetInt("top")
			if in.Name == "" {
				in.Name = args[0]
			}

			// Presets resolve on the server; everything else resolves here.
			if in.Preset == "" || cmd.Flags().Changed("start") || cmd.Flags().Changed("end") || cmd.Flags().Changed("definitions") {
				defs, err := resolveDefinitions(cmd)
				if err != nil {
					return err
				}
				in.Definitions = defs
				in.Preset = ""
			}

			records, err := loadRecords(cmd.Context(), args)
			if err != nil {
				return err
			}
			in.Records = records

			return withClient(cmd, func(ctx context.Context, client *timing.Client) error {
				a, err := client.Analyze(ctx, in)
				if err != nil {
					return err
				}
				reportSkipped(a.Skipped)
				if err := printResults(cmd, a.Results, a.Diagnostics); err != nil {
					return err
				}
				logger.Info("analysis stored", "id", a.ID)
				return nil
			})
		},
	}
	addDefinitionFlags(analyzeCmd)
	analyzeCmd.Flags().String("name", "", "Analysis name (defaults to the first trace)")
	analyzeCmd.Flags().IntP("top", "n", 0, "Keep only the N longest entries in the trace report")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a stored analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client *timing.Client) error {
				a, err := client.GetAnalysis(ctx, args[0])
				if err != nil {
					return err
				}
				return showAnalysis(cmd, a)
			})
		},
	}
	addReportFlags(getCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored analyses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := timing.ListQuery{}
			q.Name, _ = cmd.Flags().GetString("name")
			q.Limit, _ = cmd.Flags().GetInt("limit")
			q.Offset, _ = cmd.Flags().GetInt("offset")

			return withClient(cmd, func(ctx context.Context, client *timing.Client) error {
				res, err := client.ListAnalyses(ctx, q)
				if err != nil {
					return err
				}
				return printAnalyses(cmd, res)
			})
		},
	}
	listCmd.Flags().String("name", "", "Only analyses with this name")
	listCmd.Flags().Int("limit", 20, "Maximum number of analyses")
	listCmd.Flags().Int("offset", 0, "Number of analyses to skip")

	cmd.AddCommand(analyzeCmd, getCmd, listCmd)
	return cmd
}
