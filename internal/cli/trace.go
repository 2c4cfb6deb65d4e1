package cli

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/attrsync/internal/executor"
	"github.com/roach88/attrsync/internal/ir"
	"github.com/roach88/attrsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Group    int    // optional - filter to one group
	Status   string // optional - filter to one recorded status
}

// TraceEvent is one execution_log record in the timeline.
type TraceEvent struct {
	Seq         int      `json:"seq" yaml:"seq"`
	Group       int      `json:"group" yaml:"group"`
	Batch       int      `json:"batch" yaml:"batch"`
	Count       int      `json:"count" yaml:"count"`
	Status      string   `json:"status" yaml:"status"`
	State       string   `json:"state" yaml:"state"`
	Attempts    int      `json:"attempts" yaml:"attempts"`
	APIFunction string   `json:"api_function" yaml:"api_function"`
	RunID       string   `json:"run_id" yaml:"run_id"`
	AssetIDs    []string `json:"asset_ids,omitempty" yaml:"asset_ids,omitempty"`
	Log         string   `json:"log,omitempty" yaml:"log,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEvent `json:"timeline" yaml:"timeline"`
	Stats    TraceStats   `json:"stats" yaml:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Batches      int `json:"batches" yaml:"batches"`
	Succeeded    int `json:"succeeded" yaml:"succeeded"`
	Exhausted    int `json:"exhausted" yaml:"exhausted"`
	Terminal     int `json:"terminal" yaml:"terminal"`
	NotAttempted int `json:"not_attempted" yaml:"not_attempted"`
	Attempts     int `json:"attempts" yaml:"attempts"`
}

// Record states shown in the timeline.
const (
	stateSucceeded    = "succeeded"
	stateExhausted    = "failed-exhausted"
	stateTerminal     = "failed-terminal"
	stateNotAttempted = "not-attempted"
)

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the delivery timeline of a run",
		Long: `Show the execution_log of a run database as a timeline: one entry per
batch, in delivery order, with the recorded status, the number of attempts
and the final delivery state.

Verbose output adds the asset ids and the per-attempt log of each batch.

Examples:
  attrsync trace --db attrsync_sqlite_20240101_120000.db
  attrsync trace --db audit.db --group 2
  attrsync trace --db audit.db --status 429 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Group, "group", 0, "filter to one group number")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter to one recorded status (e.g. 200, 429, not-attempted)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := openExisting(opts.Database)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err, nil)
	}
	defer st.Close()

	if err := requireTables(ctx, st, store.TableExecutionLog); err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "database has no execution log", err, nil)
	}

	records, err := st.ReadExecutionLog(ctx)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to read execution log", err, nil)
	}

	result := buildTrace(records, opts.Group, opts.Status, opts.Verbose)

	if formatter.Structured() {
		return formatter.Success(result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// buildTrace converts execution records to the timeline. A zero group or
// empty status disables that filter. Stats cover the filtered timeline.
func buildTrace(records []ir.ExecutionRecord, group int, status string, detail bool) TraceResult {
	result := TraceResult{Timeline: []TraceEvent{}}

	for i, rec := range records {
		if group != 0 && rec.Batch.GroupNumber != group {
			continue
		}
		if status != "" && string(rec.Status) != status {
			continue
		}

		event := TraceEvent{
			Seq:         i + 1,
			Group:       rec.Batch.GroupNumber,
			Batch:       rec.Batch.BatchNumber,
			Count:       rec.Batch.Count(),
			Status:      string(rec.Status),
			State:       recordState(rec.Status),
			Attempts:    rec.Attempts,
			APIFunction: string(rec.APIFunction),
			RunID:       rec.RunID,
		}
		if detail {
			event.AssetIDs = rec.Batch.AssetIDs
			event.Log = rec.Log
		}
		result.Timeline = append(result.Timeline, event)

		result.Stats.Batches++
		result.Stats.Attempts += rec.Attempts
		switch event.State {
		case stateSucceeded:
			result.Stats.Succeeded++
		case stateExhausted:
			result.Stats.Exhausted++
		case stateTerminal:
			result.Stats.Terminal++
		case stateNotAttempted:
			result.Stats.NotAttempted++
		}
	}

	return result
}

// recordState derives the final delivery state from a recorded status.
func recordState(status ir.Status) string {
	switch {
	case status == ir.StatusNotAttempted:
		return stateNotAttempted
	case status.Code() == http.StatusOK:
		return stateSucceeded
	case executor.IsRetryableStatus(status.Code()):
		return stateExhausted
	default:
		return stateTerminal
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no batches)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Batches:       %d\n", result.Stats.Batches)
	fmt.Fprintf(w, "  Succeeded:     %d\n", result.Stats.Succeeded)
	fmt.Fprintf(w, "  Exhausted:     %d\n", result.Stats.Exhausted)
	fmt.Fprintf(w, "  Terminal:      %d\n", result.Stats.Terminal)
	fmt.Fprintf(w, "  Not attempted: %d\n", result.Stats.NotAttempted)
	fmt.Fprintf(w, "  Attempts:      %d\n", result.Stats.Attempts)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] %d/%d %s status=%s attempts=%d ids=%d\n",
		event.Seq, event.Group, event.Batch, event.State, event.Status, event.Attempts, event.Count)
	if !verbose {
		return
	}
	fmt.Fprintf(w, "       Run: %s\n", truncateID(event.RunID))
	if len(event.AssetIDs) > 0 {
		fmt.Fprintf(w, "       IDs: %s\n", strings.Join(event.AssetIDs, ","))
	}
	for _, line := range strings.Split(strings.TrimSpace(event.Log), "\n") {
		if line != "" {
			fmt.Fprintf(w, "       %s\n", line)
		}
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
