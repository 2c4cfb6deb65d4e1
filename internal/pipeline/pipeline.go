package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/attrsync/internal/contract"
	"github.com/roach88/attrsync/internal/executor"
	"github.com/roach88/attrsync/internal/metrics"
	"github.com/roach88/attrsync/internal/normalize"
	"github.com/roach88/attrsync/internal/store"
)

// Stage names one pipeline step. The names appear in logs, metrics and
// WorkflowError.
type Stage string

const (
	StageNormalize   Stage = "normalize"
	StageConflicts   Stage = "conflicts"
	StageDeduplicate Stage = "deduplicate"
	StageGroup       Stage = "group"
	StageSplit       Stage = "split"
	StageMaterialize Stage = "materialize"
	StageExecute     Stage = "execute"
)

// Stages lists every stage in run order.
var Stages = []Stage{
	StageNormalize,
	StageConflicts,
	StageDeduplicate,
	StageGroup,
	StageSplit,
	StageMaterialize,
	StageExecute,
}

// Config is the immutable configuration of one run.
type Config struct {
	CSVFile       string
	Contract      *contract.Contract
	MaxBatchSize  int
	FlushInterval int

	// Executor carries the remote target, credentials, api function, dry
	// run flag and retry policy. RunID is filled in by Run.
	Executor executor.Config
}

// Summary counts what one run produced.
type Summary struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	InputRows  int              `json:"input_rows" yaml:"input_rows"`
	Records    int              `json:"records" yaml:"records"`
	Conflicts  int              `json:"conflicts" yaml:"conflicts"`
	Duplicates int              `json:"duplicates" yaml:"duplicates"`
	Clean      int              `json:"clean" yaml:"clean"`
	Groups     int              `json:"groups" yaml:"groups"`
	Batches    int              `json:"batches" yaml:"batches"`
	Skipped    int              `json:"skipped" yaml:"skipped"`
	Execution  executor.Summary `json:"execution" yaml:"execution"`
}

// Pipeline runs the stages against one store.
//
// Not safe for concurrent use; one run owns the store.
type Pipeline struct {
	store    *store.Store
	cfg      Config
	logger   *slog.Logger
	metrics  metrics.Collector
	runIDs   executor.RunIDGenerator
	now      func() time.Time
	execOpts []executor.Option
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMetrics sets the metrics collector. Default: metrics.NewNop().
func WithMetrics(m metrics.Collector) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g executor.RunIDGenerator) Option {
	return func(p *Pipeline) {
		p.runIDs = g
	}
}

// WithClock sets the time source for run_metadata. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithExecutorOptions passes options (transport, sleeper) to the executor
// built for the execute stage.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(p *Pipeline) {
		p.execOpts = append(p.execOpts, opts...)
	}
}

// New creates a Pipeline over s.
func New(s *store.Store, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   s,
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: metrics.NewNop(),
		runIDs:  executor.UUIDv7Generator{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run is the state shared by the stages of one Run.
type run struct {
	id      string
	input   *normalize.Reader
	summary Summary
}

type stageFunc func(ctx context.Context, r *run) (int, error)

// Run executes every stage in order.
//
// The input header is checked before anything is written. A failing stage
// stops the run with a *WorkflowError; tables written by earlier stages,
// and the execution records of batches already delivered, are kept.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if p.cfg.Contract == nil {
		return Summary{}, &WorkflowError{Stage: StageNormalize, Err: errors.New("no data contract")}
	}

	f, err := os.Open(p.cfg.CSVFile)
	if err != nil {
		return Summary{}, &WorkflowError{Stage: StageNormalize, Err: fmt.Errorf("open csv file: %w", err)}
	}
	defer f.Close()

	input, err := normalize.NewReader(f, p.cfg.Contract)
	if err != nil {
		return Summary{}, &WorkflowError{Stage: StageNormalize, Err: err}
	}

	r := &run{id: p.runIDs.Generate(), input: input}
	r.summary.RunID = r.id
	log := p.logger.With("run_id", r.id)

	if err := p.store.StartRun(ctx, store.RunMetadata{
		RunID:       r.id,
		StartedAt:   p.now(),
		APIFunction: p.cfg.Executor.APIFunction,
		DryRun:      p.cfg.Executor.DryRun,
	}); err != nil {
		return r.summary, fmt.Errorf("record run start: %w", err)
	}
	log.Info("run started",
		"csv_file", p.cfg.CSVFile,
		"contract", p.cfg.Contract.Name,
		"api_function", string(p.cfg.Executor.APIFunction),
		"dry_run", p.cfg.Executor.DryRun,
	)

	runErr := p.runStages(ctx, r, log)
	p.finish(ctx, r, runErr, log)
	return r.summary, runErr
}

func (p *Pipeline) runStages(ctx context.Context, r *run, log *slog.Logger) error {
	stages := []struct {
		name Stage
		fn   stageFunc
	}{
		{StageNormalize, p.normalize},
		{StageConflicts, p.detectConflicts},
		{StageDeduplicate, p.deduplicate},
		{StageGroup, p.group},
		{StageSplit, p.split},
		{StageMaterialize, p.materialize},
		{StageExecute, p.execute},
	}

	for _, st := range stages {
		// The executor handles cancellation itself so it can flush.
		if st.name != StageExecute {
			if err := ctx.Err(); err != nil {
				return &WorkflowError{Stage: st.name, Err: err}
			}
		}

		start := p.now()
		rows, err := st.fn(ctx, r)
		if err != nil {
			log.Error("stage failed", "stage", string(st.name), "error", err)
			return &WorkflowError{Stage: st.name, Err: err}
		}
		p.metrics.RecordStage(string(st.name), rows)
		log.Info("stage complete",
			"stage", string(st.name),
			"rows", rows,
			"duration", p.now().Sub(start),
		)
	}
	return nil
}

// finish records the run outcome. It uses a context that outlives
// cancellation so an interrupted run is still marked aborted.
func (p *Pipeline) finish(ctx context.Context, r *run, runErr error, log *slog.Logger) {
	outcome, message := store.RunCompleted, ""
	if runErr != nil {
		outcome, message = store.RunAborted, runErr.Error()
	}

	if err := p.store.FinishRun(context.WithoutCancel(ctx), r.id, outcome, message, p.now()); err != nil {
		log.Error("record run end", "error", err)
	}

	s := r.summary
	if runErr != nil {
		log.Error("run aborted", "error", runErr, "batches_sent", s.Execution.Batches)
		return
	}
	log.Info("run finished",
		"records", s.Records,
		"conflicts", s.Conflicts,
		"groups", s.Groups,
		"batches", s.Batches,
		"succeeded", s.Execution.Succeeded,
		"exhausted", s.Execution.Exhausted,
		"not_attempted", s.Execution.NotAttempted,
	)
}
