package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/attrsync/internal/ir"
	"github.com/roach88/attrsync/internal/metrics"
)

// dryRunLog is the execution log text of a batch that was not sent.
const dryRunLog = "dry run: no call issued"

// Item is one batch with its encoded payload.
type Item struct {
	Batch   ir.Batch
	Payload []byte
}

// RecordSink receives execution records in order. Append may buffer;
// Flush makes everything appended so far durable.
type RecordSink interface {
	Append(ctx context.Context, rec ir.ExecutionRecord) error
	Flush(ctx context.Context) error
}

// Config is the immutable delivery configuration of one run.
type Config struct {
	Target      Target
	Credentials Credentials
	ClientID    string
	APIFunction ir.APIFunction
	DryRun      bool
	Policy      RetryPolicy
	RunID       string
}

// Summary counts what Execute did.
type Summary struct {
	Batches      int  `json:"batches" yaml:"batches"`
	Succeeded    int  `json:"succeeded" yaml:"succeeded"`
	Exhausted    int  `json:"exhausted" yaml:"exhausted"`
	NotAttempted int  `json:"not_attempted" yaml:"not_attempted"`
	Calls        int  `json:"calls" yaml:"calls"`
	Retries      int  `json:"retries" yaml:"retries"`
	Aborted      bool `json:"aborted" yaml:"aborted"`
}

// Executor drives batches through the retry state machine.
//
// Not safe for concurrent use; one run owns one Executor.
type Executor struct {
	cfg     Config
	doer    Doer
	sleeper Sleeper
	logger  *slog.Logger
	metrics metrics.Collector
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithDoer sets the HTTP transport. Default: NewHTTPClient().
func WithDoer(d Doer) Option {
	return func(e *Executor) {
		e.doer = d
	}
}

// WithSleeper sets the retry sleeper. Default: TimerSleeper.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		e.sleeper = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithMetrics sets the metrics collector. Default: metrics.NewNop().
func WithMetrics(m metrics.Collector) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New creates an Executor for cfg. An empty ClientID is replaced by
// DefaultClientID.
func New(cfg Config, opts ...Option) *Executor {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}

	e := &Executor{
		cfg:     cfg,
		sleeper: TimerSleeper{},
		logger:  slog.Default(),
		metrics: metrics.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.doer == nil {
		e.doer = NewHTTPClient()
	}
	return e
}

// Execute delivers items in order and hands one record per item to sink.
//
// It returns an *Error when a batch fails terminally or ctx is canceled.
// The failing batch's record is appended and the sink flushed before
// returning; later items are not attempted and get no record.
func (e *Executor) Execute(ctx context.Context, items []Item, sink RecordSink) (Summary, error) {
	var summary Summary

	// Records must reach the sink even after ctx is canceled.
	writeCtx := context.WithoutCancel(ctx)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			summary.Aborted = true
			if flushErr := sink.Flush(writeCtx); flushErr != nil {
				return summary, fmt.Errorf("flush execution log: %w", flushErr)
			}
			return summary, &Error{
				Code:        ErrCodeCanceled,
				Message:     "run canceled before batch was sent",
				GroupNumber: item.Batch.GroupNumber,
				BatchNumber: item.Batch.BatchNumber,
				Status:      ir.StatusNotAttempted,
				Err:         err,
			}
		}

		rec, state, retries, deliverErr := e.deliver(ctx, item)
		summary.Batches++
		summary.Calls += rec.Attempts
		summary.Retries += retries
		switch state {
		case StateSucceeded:
			if rec.Status == ir.StatusNotAttempted {
				summary.NotAttempted++
			} else {
				summary.Succeeded++
			}
		case StateFailedExhausted:
			summary.Exhausted++
		}

		if err := sink.Append(writeCtx, rec); err != nil {
			return summary, fmt.Errorf("append execution record: %w", err)
		}

		if deliverErr != nil {
			summary.Aborted = true
			if err := sink.Flush(writeCtx); err != nil {
				return summary, fmt.Errorf("flush execution log: %w", err)
			}
			return summary, deliverErr
		}
	}

	if err := sink.Flush(writeCtx); err != nil {
		return summary, fmt.Errorf("flush execution log: %w", err)
	}
	return summary, nil
}

// deliver runs the state machine for one batch. It returns the record,
// the final state, the number of retries slept, and an *Error for
// run-stopping outcomes.
func (e *Executor) deliver(ctx context.Context, item Item) (ir.ExecutionRecord, State, int, error) {
	rec := ir.ExecutionRecord{
		Batch:       item.Batch,
		Payload:     string(item.Payload),
		APIFunction: e.cfg.APIFunction,
		Status:      ir.StatusNotAttempted,
		RunID:       e.cfg.RunID,
	}
	log := e.logger.With(
		"group", item.Batch.GroupNumber,
		"batch", item.Batch.BatchNumber,
		"assets", item.Batch.Count(),
	)

	if e.cfg.DryRun {
		rec.Log = dryRunLog
		e.metrics.RecordBatchOutcome(metrics.OutcomeNotAttempted)
		log.Info("dry run, batch not sent")
		return rec, StateSucceeded, 0, nil
	}

	retries := 0
	for attempt := 1; ; attempt++ {
		outcome, body, err := e.call(ctx, item)
		if err != nil {
			rec.Log = ir.CollapseLog(err.Error())
			e.metrics.RecordBatchOutcome(metrics.OutcomeTerminal)
			log.Error("request not built", "error", err)
			return rec, StateFailedTerminal, retries, newError(ErrCodeInvalidRequest, rec, "request could not be built", err)
		}
		rec.Attempts = attempt
		if outcome.Transport() {
			rec.Status = ir.StatusTransportError
			rec.Log = ir.CollapseLog(outcome.Err.Error())
		} else {
			rec.Status = ir.HTTPStatus(outcome.StatusCode)
			rec.Log = ir.CollapseLog(body)
		}

		log.Info("remote call",
			"attempt", attempt,
			"status", string(rec.Status),
			"response", truncate(rec.Log, 512),
		)

		decision := Decide(e.cfg.Policy, attempt, outcome)
		switch decision.State {
		case StateSucceeded:
			e.metrics.RecordBatchOutcome(metrics.OutcomeSucceeded)
			return rec, decision.State, retries, nil

		case StateFailedExhausted:
			e.metrics.RecordBatchOutcome(metrics.OutcomeExhausted)
			log.Warn("retries exhausted, continuing with next batch",
				"attempts", attempt,
				"status", string(rec.Status),
			)
			return rec, decision.State, retries, nil

		case StateFailedTerminal:
			e.metrics.RecordBatchOutcome(metrics.OutcomeTerminal)
			if outcome.Transport() && ctx.Err() != nil {
				return rec, decision.State, retries, newError(ErrCodeCanceled, rec, "run canceled", ctx.Err())
			}
			if outcome.Transport() {
				return rec, decision.State, retries, newError(ErrCodeTransportExhausted, rec,
					"transport failed on every attempt", outcome.Err)
			}
			return rec, decision.State, retries, newError(ErrCodeTerminalStatus, rec,
				fmt.Sprintf("non-retryable response status %d", outcome.StatusCode), nil)

		case StateAttempting:
			reason := metrics.RetryReasonStatus
			if outcome.Transport() {
				reason = metrics.RetryReasonTransport
			}
			e.metrics.RecordRetry(reason, decision.Delay.Seconds())
			log.Warn("retrying batch",
				"attempt", attempt,
				"status", string(rec.Status),
				"delay", decision.Delay,
			)
			retries++
			// The sleeper returns the context error once the run is canceled.
			if err := e.sleeper.Sleep(ctx, decision.Delay); err != nil {
				e.metrics.RecordBatchOutcome(metrics.OutcomeTerminal)
				return rec, StateFailedTerminal, retries, newError(ErrCodeCanceled, rec, "run canceled during retry delay", err)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
