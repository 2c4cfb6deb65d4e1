package harness

import (
	"github.com/roach88/attrsync/internal/pipeline"
)

// Trace event types.
const (
	EventCall   = "call"
	EventRecord = "record"
)

// TraceEvent is one remote call or one execution record.
type TraceEvent struct {
	Type     string   `json:"type"`
	Seq      int      `json:"seq"`
	Group    int      `json:"group"`
	Batch    int      `json:"batch"`
	Status   string   `json:"status"`
	Attempt  int      `json:"attempt,omitempty"`
	Attempts int      `json:"attempts,omitempty"`
	AssetIDs []string `json:"asset_ids,omitempty"`
}

// Label returns "group/batch", the form used by trace_order.
func (e TraceEvent) Label() string {
	return batchLabel(e.Group, e.Batch)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the outcome and every assertion match.
	Pass bool `json:"pass"`

	// Outcome is "completed" or "aborted".
	Outcome string `json:"outcome"`

	// ErrorCode categorizes the error that aborted the run.
	ErrorCode string `json:"error_code,omitempty"`

	// Stage is the stage that aborted the run.
	Stage string `json:"stage,omitempty"`

	// Summary is what the pipeline reported.
	Summary pipeline.Summary `json:"summary"`

	// Trace holds the calls of each batch followed by its execution record,
	// in batch order.
	Trace []TraceEvent `json:"trace"`

	// Delays are the retry delays requested, as duration strings.
	Delays []string `json:"delays"`

	// Errors contains the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Delays: []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
