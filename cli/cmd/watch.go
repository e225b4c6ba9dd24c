package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/perftrace/cli/internal/output"
	"github.com/instantcocoa/perftrace/cli/internal/watch"
)

func runWatch(ctx context.Context, cmd *cobra.Command, files []string, debounce time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(files, debounce, logger)
	if err != nil {
		return err
	}

	run := func() {
		if err := runCorrelate(ctx, cmd, files); err != nil {
			output.Error("%v", err)
		}
	}

	run()
	output.Info("watching %d file(s), press Ctrl+C to stop", len(files))
	return w.Run(ctx, run)
}
