package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/attrsync/internal/contract"
)

// ContractOptions holds flags for the contract command.
type ContractOptions struct {
	*RootOptions
	File string
}

// NewContractCommand creates the contract command.
func NewContractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Validate and show a data contract",
		Long: `Validate a CUE data contract and print its column mapping: the
identifier column and, for each attribute, the source column and the key
sent to the remote API. Without --file the embedded default contract is
shown.

Examples:
  attrsync contract
  attrsync contract --file contracts/sla.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContract(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "CUE contract file (default: embedded contract)")

	return cmd
}

func runContract(opts *ContractOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	c, err := contract.Load(opts.File)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeContract, "invalid data contract", err, nil)
	}

	if formatter.Structured() {
		return formatter.Success(c)
	}

	w := cmd.OutOrStdout()
	source := opts.File
	if source == "" {
		source = "(embedded)"
	}
	fmt.Fprintf(w, "Contract: %s %s\n", c.Name, source)
	fmt.Fprintf(w, "ID field: %s\n", c.IDField)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE COLUMN\tATTRIBUTE KEY")
	for _, m := range c.Attributes {
		fmt.Fprintf(tw, "%s\t%s\n", m.Source, m.Key)
	}
	return tw.Flush()
}
