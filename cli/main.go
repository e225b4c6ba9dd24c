// Command perftrace correlates captured browser performance traces.
package main

import (
	"os"

	"github.com/instantcocoa/perftrace/cli/cmd"
	"github.com/instantcocoa/perftrace/cli/internal/output"
)

func main() {
	if err := cmd.Execute(); err != nil {
		output.Error("%v", err)
		os.Exit(1)
	}
}
