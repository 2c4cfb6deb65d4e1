package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/attrsync/internal/contract"
	"github.com/roach88/attrsync/internal/executor"
	"github.com/roach88/attrsync/internal/ir"
	"github.com/roach88/attrsync/internal/normalize"
	"github.com/roach88/attrsync/internal/pipeline"
	"github.com/roach88/attrsync/internal/reconcile"
	"github.com/roach88/attrsync/internal/store"
	"github.com/roach88/attrsync/internal/testutil"
)

// Error codes reported in Result.ErrorCode besides the executor codes.
const (
	ErrCodeContract = "CONTRACT"
	ErrCodeOther    = "ERROR"
)

// scenarioTime is the fixed clock of every scenario run.
var scenarioTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness holds the per-run fixtures of one scenario.
type Harness struct {
	store   *store.Store
	server  *testutil.ScriptedServer
	sleeper *testutil.RecordingSleeper
	logger  *slog.Logger
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger sets the pipeline logger. Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext executes a scenario under ctx.
//
// Each scenario runs in a fresh in-memory database against its own
// scripted server. Execution flow:
//  1. Write the CSV to a temporary directory and resolve the contract
//  2. Run every pipeline stage
//  3. Build the trace from the served calls and the execution log
//  4. Check the expected outcome and evaluate the assertions
//
// An error is returned only when the scenario cannot be set up; a run
// that aborts is a Result with Outcome "aborted".
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	c, err := scenarioContract(scenario)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "attrsync-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	csvPath := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(csvPath, []byte(scenario.CSV), 0o644); err != nil {
		return nil, fmt.Errorf("write scenario csv: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	srv := testutil.NewScriptedServer(scenario.Responses...)
	defer srv.Close()

	h := &Harness{
		store:   st,
		server:  srv,
		sleeper: testutil.NewRecordingSleeper(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if scenario.CancelOnSleep > 0 {
		h.sleeper.OnSleep = func(n int, _ time.Duration) {
			if n == scenario.CancelOnSleep {
				cancel()
			}
		}
	}

	p := pipeline.New(st, h.pipelineConfig(scenario, csvPath, c),
		pipeline.WithLogger(h.logger),
		pipeline.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		pipeline.WithClock(func() time.Time { return scenarioTime }),
		pipeline.WithExecutorOptions(executor.WithSleeper(h.sleeper)),
	)
	summary, runErr := p.Run(runCtx)

	// The run context may be canceled; inspection must still work.
	readCtx := context.WithoutCancel(ctx)

	result := NewResult()
	result.Summary = summary
	result.Outcome = OutcomeCompleted
	if runErr != nil {
		result.Outcome = OutcomeAborted
		result.ErrorCode = errorCode(runErr)
		if stage, ok := pipeline.FailedStage(runErr); ok {
			result.Stage = string(stage)
		}
	}

	trace, err := h.trace(readCtx, scenario.Responses)
	if err != nil {
		return nil, err
	}
	result.Trace = trace

	delays := h.sleeper.Delays()
	for _, d := range delays {
		result.Delays = append(result.Delays, d.String())
	}

	checkExpect(result, scenario.Expect, runErr)

	actx := &AssertionContext{
		Store:  st,
		Ctx:    readCtx,
		Delays: delays,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// scenarioContract returns the inline contract or loads contract_file.
func scenarioContract(s *Scenario) (*contract.Contract, error) {
	if s.Contract != nil {
		return s.Contract, nil
	}
	c, err := contract.Load(s.ContractFile)
	if err != nil {
		return nil, fmt.Errorf("load scenario contract: %w", err)
	}
	return c, nil
}

func (h *Harness) pipelineConfig(s *Scenario, csvPath string, c *contract.Contract) pipeline.Config {
	fn := ir.APIFunctionUpdate
	if s.APIFunction != "" {
		// Validated when the scenario was loaded.
		fn, _ = ir.ParseAPIFunction(s.APIFunction)
	}
	batchSize := s.MaxBatchSize
	if batchSize == 0 {
		batchSize = reconcile.DefaultMaxBatchSize
	}

	return pipeline.Config{
		CSVFile:       csvPath,
		Contract:      c,
		MaxBatchSize:  batchSize,
		FlushInterval: store.DefaultFlushInterval,
		Executor: executor.Config{
			Target: executor.Target{
				Scheme:   "http",
				FQDN:     h.server.Host(),
				Endpoint: executor.DefaultEndpoint,
			},
			Credentials: executor.Credentials{Username: "scenario", Password: "scenario"},
			APIFunction: fn,
			DryRun:      s.DryRun,
			Policy:      s.Retry.Policy(),
		},
	}
}

// checkExpect compares the run outcome with the scenario's expect clause.
func checkExpect(result *Result, expect Expect, runErr error) {
	if result.Outcome != expect.Outcome {
		msg := fmt.Sprintf("outcome: expected %s, got %s", expect.Outcome, result.Outcome)
		if runErr != nil {
			msg += fmt.Sprintf(" (%v)", runErr)
		}
		result.AddError(msg)
	}
	if expect.ErrorCode != "" && result.ErrorCode != expect.ErrorCode {
		result.AddError(fmt.Sprintf("error_code: expected %s, got %q", expect.ErrorCode, result.ErrorCode))
	}
	if expect.Stage != "" && result.Stage != expect.Stage {
		result.AddError(fmt.Sprintf("stage: expected %s, got %q", expect.Stage, result.Stage))
	}
}

// errorCode categorizes the error that aborted a run.
func errorCode(err error) string {
	var ee *executor.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ee):
		return string(ee.Code)
	case normalize.IsContractError(err):
		return ErrCodeContract
	default:
		return ErrCodeOther
	}
}

type batchKey struct {
	group, batch int
}

func batchLabel(group, batch int) string {
	return fmt.Sprintf("%d/%d", group, batch)
}

// trace interleaves the calls served for each batch with the batch's
// execution record, in execution log order. Calls with no record follow
// at the end.
func (h *Harness) trace(ctx context.Context, script []testutil.Response) ([]TraceEvent, error) {
	calls := make(map[batchKey][]TraceEvent)
	var order []batchKey
	for i, req := range h.server.Requests() {
		group, batch := parseUserAgent(req.Header.Get("User-Agent"))
		k := batchKey{group, batch}
		if _, seen := calls[k]; !seen {
			order = append(order, k)
		}
		calls[k] = append(calls[k], TraceEvent{
			Type:    EventCall,
			Group:   group,
			Batch:   batch,
			Status:  servedStatus(script, i),
			Attempt: len(calls[k]) + 1,
		})
	}

	var records []ir.ExecutionRecord
	exists, err := h.store.TableExists(ctx, store.TableExecutionLog)
	if err != nil {
		return nil, err
	}
	if exists {
		if records, err = h.store.ReadExecutionLog(ctx); err != nil {
			return nil, fmt.Errorf("read execution log: %w", err)
		}
	}

	trace := []TraceEvent{}
	for _, rec := range records {
		k := batchKey{rec.Batch.GroupNumber, rec.Batch.BatchNumber}
		trace = append(trace, calls[k]...)
		delete(calls, k)
		trace = append(trace, TraceEvent{
			Type:     EventRecord,
			Group:    rec.Batch.GroupNumber,
			Batch:    rec.Batch.BatchNumber,
			Status:   string(rec.Status),
			Attempts: rec.Attempts,
			AssetIDs: rec.Batch.AssetIDs,
		})
	}
	for _, k := range order {
		trace = append(trace, calls[k]...)
	}

	for i := range trace {
		trace[i].Seq = i + 1
	}
	return trace, nil
}

// servedStatus returns the status the scripted server answered call i with.
func servedStatus(script []testutil.Response, i int) string {
	if i >= len(script) {
		return "200"
	}
	resp := script[i]
	switch {
	case resp.Drop:
		return string(ir.StatusTransportError)
	case resp.Status == 0:
		return "200"
	default:
		return strconv.Itoa(resp.Status)
	}
}

// parseUserAgent reads the group and batch numbers from an
// executor.UserAgent string.
func parseUserAgent(ua string) (group, batch int) {
	for _, field := range strings.Fields(ua) {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch name {
		case "group":
			group, _ = strconv.Atoi(value)
		case "batch":
			batch, _ = strconv.Atoi(value)
		}
	}
	return group, batch
}
