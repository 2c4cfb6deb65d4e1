package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/attrsync/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs recorded in a database",
		Long: `List every run recorded in run_metadata, oldest first, with its API
function, dry-run flag and outcome. A run still marked running was
interrupted before it could record an outcome.

Examples:
  attrsync runs --db attrsync_sqlite_20240101_120000.db
  attrsync runs --db audit.db --format yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err, nil)
	}
	defer st.Close()

	runs, err := st.ReadRuns(cmd.Context())
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to read runs", err, nil)
	}

	if formatter.Structured() {
		return formatter.Success(runs)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tFINISHED\tFUNCTION\tDRY RUN\tOUTCOME")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			r.RunID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.APIFunction, r.DryRun, r.Outcome)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.Verbose {
		for _, r := range runs {
			if r.Message != "" && r.Outcome != store.RunCompleted {
				fmt.Fprintf(w, "%s: %s\n", r.RunID, r.Message)
			}
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
