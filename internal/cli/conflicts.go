package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/attrsync/internal/store"
)

// ConflictsOptions holds flags for the conflicts command.
type ConflictsOptions struct {
	*RootOptions
	Database string
}

// ConflictEntry is one asset id seen with several attribute sets.
type ConflictEntry struct {
	AssetID          string `json:"asset_id" yaml:"asset_id"`
	FingerprintCount int    `json:"fingerprint_count" yaml:"fingerprint_count"`
}

// ConflictsResult holds the conflict report.
type ConflictsResult struct {
	Conflicts      []ConflictEntry `json:"conflicts" yaml:"conflicts"`
	DroppedRecords int             `json:"dropped_records" yaml:"dropped_records"`
	ConflictingIDs int             `json:"conflicting_ids" yaml:"conflicting_ids"`
}

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConflictsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Report asset ids excluded for conflicting attributes",
		Long: `Report the asset ids the last run excluded because they appeared with
more than one attribute set, and how many input records were dropped.

Examples:
  attrsync conflicts --db attrsync_sqlite_20240101_120000.db
  attrsync conflicts --db audit.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConflicts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runConflicts(opts *ConflictsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := openExisting(opts.Database)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err, nil)
	}
	defer st.Close()

	if err := requireTables(ctx, st, store.TableConflictSet, store.TableDuplicateRecords); err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "database has no conflict report", err, nil)
	}

	conflicts, err := st.ReadConflictSet(ctx)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to read conflict set", err, nil)
	}
	dropped, err := st.CountRows(ctx, store.TableDuplicateRecords)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to count dropped records", err, nil)
	}

	result := ConflictsResult{
		Conflicts:      make([]ConflictEntry, 0, conflicts.Len()),
		DroppedRecords: dropped,
		ConflictingIDs: conflicts.Len(),
	}
	for _, id := range conflicts.IDs() {
		result.Conflicts = append(result.Conflicts, ConflictEntry{
			AssetID:          id,
			FingerprintCount: conflicts.FingerprintCount(id),
		})
	}

	if formatter.Structured() {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if len(result.Conflicts) == 0 {
		fmt.Fprintln(w, "No conflicting asset ids.")
		return nil
	}
	fmt.Fprintf(w, "%d conflicting asset id(s), %d record(s) dropped:\n", len(result.Conflicts), result.DroppedRecords)
	for _, c := range result.Conflicts {
		fmt.Fprintf(w, "  %s (%d attribute sets)\n", c.AssetID, c.FingerprintCount)
	}
	return nil
}

// openExisting opens a database file that must already exist; store.Open
// would create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}
	return store.Open(path)
}

// requireTables fails when any of tables is missing.
func requireTables(ctx context.Context, st *store.Store, tables ...store.Table) error {
	for _, t := range tables {
		ok, err := st.TableExists(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("table %s not found", t)
		}
	}
	return nil
}
