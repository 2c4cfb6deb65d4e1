// Command attrsync reconciles per-asset attribute records from a CSV file
// into batched update calls to the asset management API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/attrsync/internal/cli"
)

// Version information set with -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Interrupts cancel the run; the executor records the batch in
	// flight before the process exits.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand()
	root.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	err := root.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
