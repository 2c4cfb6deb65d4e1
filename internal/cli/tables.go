package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/attrsync/internal/store"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Describe the tables written to the run database",
		Long: `Describe every table a run writes, in pipeline order, with the stage
that writes it and its columns.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(rootOpts, cmd)
		},
	}
}

func runTables(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	if formatter.Structured() {
		return formatter.Success(store.Tables)
	}

	w := cmd.OutOrStdout()
	for i, t := range store.Tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (stage: %s)\n", t.Name, t.Stage)
		fmt.Fprintf(w, "  %s\n", t.Purpose)
		if !opts.Verbose {
			continue
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, col := range t.Columns {
			fmt.Fprintf(tw, "    %s\t%s\t%s\n", col.Name, col.Type, col.Description)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
