package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/attrsync/internal/config"
	"github.com/roach88/attrsync/internal/contract"
	"github.com/roach88/attrsync/internal/executor"
	"github.com/roach88/attrsync/internal/metrics"
	"github.com/roach88/attrsync/internal/normalize"
	"github.com/roach88/attrsync/internal/pipeline"
	"github.com/roach88/attrsync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigFile string

	// EnvFiles overrides config.DefaultEnvFiles (for testing).
	EnvFiles []string

	// RunIDGenerator overrides the run id source (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator executor.RunIDGenerator

	// ExecutorOptions are passed to the executor (for testing).
	ExecutorOptions []executor.Option

	// Now stamps default file names (for testing). Default: time.Now.
	Now func() time.Time
}

// RunReport is the structured result of the run command.
type RunReport struct {
	Outcome      string           `json:"outcome" yaml:"outcome"`
	Stage        string           `json:"stage,omitempty" yaml:"stage,omitempty"`
	Summary      pipeline.Summary `json:"summary" yaml:"summary"`
	DatabaseFile string           `json:"database_file" yaml:"database_file"`
	LogFile      string           `json:"log_file" yaml:"log_file"`
	MetricsFile  string           `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile a CSV file and deliver the batches",
		Long: `Run every stage: normalize the CSV input, detect conflicting ids,
deduplicate, group by attribute set, split into batches, build the
payloads and deliver them to the remote API.

Settings come from flags, then ATTRSYNC_* (or legacy q_*) environment
variables, then .env.local and .env, then the --config YAML file, then
defaults. Credentials are read from the environment only.

Exit codes:
  0 - Every stage completed
  1 - The run aborted (terminal remote failure or interruption)
  2 - Configuration, contract or database error

Examples:
  attrsync run -c assets.csv -f update
  attrsync run -c assets.csv --dry-run --database-file audit.db
  attrsync run --config attrsync.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "YAML config file")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runSync(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	w := cmd.OutOrStdout()

	cfg, err := config.Load(config.Options{
		ConfigFile: opts.ConfigFile,
		EnvFiles:   opts.EnvFiles,
		Flags:      cmd.Flags(),
		Now:        opts.Now,
	})
	if err != nil {
		var details any
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			details = cfgErr.Problems
		}
		return fail(formatter, ExitCommandError, ErrCodeConfig, "invalid configuration", err, details)
	}

	c, err := contract.Load(cfg.ContractFile)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeContract, "failed to load data contract", err, nil)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "failed to open log file", err, nil)
	}
	defer logFile.Close()
	logger := newRunLogger(logFile, opts.Verbose, cmd.ErrOrStderr())

	st, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err, nil)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	var collector metrics.Collector = metrics.NewNop()
	var registry *prometheus.Registry
	if cfg.MetricsFile != "" {
		registry = prometheus.NewRegistry()
		collector = metrics.NewPrometheus(registry, metrics.DefaultNamespace)
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(collector),
		pipeline.WithExecutorOptions(opts.ExecutorOptions...),
	}
	if opts.RunIDGenerator != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithRunIDGenerator(opts.RunIDGenerator))
	}

	p := pipeline.New(st, pipeline.Config{
		CSVFile:       cfg.CSVFile,
		Contract:      c,
		MaxBatchSize:  cfg.MaxBatchSize,
		FlushInterval: cfg.FlushInterval,
		Executor:      cfg.Executor(),
	}, pipelineOpts...)

	if !formatter.Structured() {
		fmt.Fprintf(w, "attrsync: %s %s (function=%s, dry_run=%t)\n",
			cfg.CSVFile, c.Name, cfg.APIFunction, cfg.DryRun)
	}
	logger.Info("configuration loaded",
		"config_file", cfg.ConfigFileUsed,
		"database_file", cfg.DatabaseFile,
		"api_url", cfg.Target().URL(),
		"credentials", cfg.Credentials().String(),
		"max_batch_size", cfg.MaxBatchSize,
		"max_retries", cfg.Retry.MaxRetries,
	)

	summary, runErr := p.Run(cmd.Context())

	if registry != nil {
		if err := metrics.WriteTextfile(cfg.MetricsFile, registry); err != nil {
			logger.Error("write metrics", "error", err)
		}
	}

	report := RunReport{
		Outcome:      string(store.RunCompleted),
		Summary:      summary,
		DatabaseFile: cfg.DatabaseFile,
		LogFile:      cfg.LogFile,
		MetricsFile:  cfg.MetricsFile,
	}

	if runErr != nil {
		report.Outcome = string(store.RunAborted)
		if stage, ok := pipeline.FailedStage(runErr); ok {
			report.Stage = string(stage)
		}

		exitCode, code := ExitFailure, ErrCodeWorkflow
		if normalize.IsContractError(runErr) {
			exitCode, code = ExitCommandError, ErrCodeContract
		}
		if formatter.Structured() {
			_ = formatter.Error(code, runErr.Error(), report)
		} else {
			fmt.Fprintf(w, "Run %s aborted: %v\n", displayRunID(summary.RunID), runErr)
			printLocations(w, report)
		}
		return WrapExitError(exitCode, "run aborted", runErr)
	}

	if formatter.Structured() {
		return formatter.Success(report)
	}
	printRunSummary(w, report)
	return nil
}

// newRunLogger writes text logs to the run log file, teed to stderr in
// verbose mode.
func newRunLogger(logFile io.Writer, verbose bool, stderr io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	out := logFile
	if verbose {
		logLevel = slog.LevelDebug
		out = io.MultiWriter(logFile, stderr)
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

// fail reports an error in structured formats and returns the exit error.
// Text output is left to the caller of Execute.
func fail(f *OutputFormatter, exitCode int, code, message string, err error, details any) error {
	if f.Structured() {
		_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	}
	return WrapExitError(exitCode, message, err)
}

func displayRunID(id string) string {
	if id == "" {
		return "(not started)"
	}
	return id
}

func printRunSummary(w io.Writer, r RunReport) {
	s := r.Summary
	fmt.Fprintf(w, "Run %s completed\n", s.RunID)
	fmt.Fprintf(w, "  Input rows:   %d\n", s.InputRows)
	fmt.Fprintf(w, "  Records:      %d\n", s.Records)
	fmt.Fprintf(w, "  Conflicts:    %d (%d records dropped)\n", s.Conflicts, s.Duplicates)
	fmt.Fprintf(w, "  Groups:       %d\n", s.Groups)
	fmt.Fprintf(w, "  Batches:      %d (%d skipped)\n", s.Batches, s.Skipped)
	fmt.Fprintf(w, "  Delivered:    %d succeeded, %d exhausted, %d not attempted\n",
		s.Execution.Succeeded, s.Execution.Exhausted, s.Execution.NotAttempted)
	fmt.Fprintf(w, "  Calls:        %d (%d retries)\n", s.Execution.Calls, s.Execution.Retries)
	printLocations(w, r)
}

func printLocations(w io.Writer, r RunReport) {
	fmt.Fprintf(w, "Database: %s\n", r.DatabaseFile)
	fmt.Fprintf(w, "Log:      %s\n", r.LogFile)
	if r.MetricsFile != "" {
		fmt.Fprintf(w, "Metrics:  %s\n", r.MetricsFile)
	}
}
