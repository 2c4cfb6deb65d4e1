package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/attrsync/internal/contract"
	"github.com/roach88/attrsync/internal/executor"
	"github.com/roach88/attrsync/internal/ir"
	"github.com/roach88/attrsync/internal/pipeline"
	"github.com/roach88/attrsync/internal/store"
	"github.com/roach88/attrsync/internal/testutil"
)

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
)

// Scenario defines one end-to-end run and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is stamped on every execution record.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// APIFunction is add, update or remove. Default: update.
	APIFunction string `yaml:"api_function,omitempty"`

	DryRun bool `yaml:"dry_run,omitempty"`

	// MaxBatchSize defaults to reconcile.DefaultMaxBatchSize.
	MaxBatchSize int `yaml:"max_batch_size,omitempty"`

	// Retry defaults to executor.DefaultRetryPolicy.
	Retry *RetrySpec `yaml:"retry,omitempty"`

	// Contract is an inline data contract. Exactly one of Contract and
	// ContractFile is set.
	Contract *contract.Contract `yaml:"contract,omitempty"`

	// ContractFile is a CUE contract, relative to the scenario file.
	ContractFile string `yaml:"contract_file,omitempty"`

	// CSV is the input file content.
	CSV string `yaml:"csv"`

	// Responses are served in order; later calls get 200.
	Responses []testutil.Response `yaml:"responses,omitempty"`

	// CancelOnSleep cancels the run during the n-th retry delay.
	CancelOnSleep int `yaml:"cancel_on_sleep,omitempty"`

	// Expect is the required run outcome.
	Expect Expect `yaml:"expect"`

	// Assertions validate the trace, the delays and the final tables.
	Assertions []Assertion `yaml:"assertions"`
}

// RetrySpec is the retry policy of a scenario.
type RetrySpec struct {
	MaxRetries int           `yaml:"max_retries"`
	MinDelay   time.Duration `yaml:"min_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// Policy returns the executor retry policy.
func (r *RetrySpec) Policy() executor.RetryPolicy {
	if r == nil {
		return executor.DefaultRetryPolicy()
	}
	return executor.RetryPolicy{
		MaxRetries: r.MaxRetries,
		MinDelay:   r.MinDelay,
		MaxDelay:   r.MaxDelay,
	}
}

// Expect is the run outcome a scenario requires.
type Expect struct {
	// Outcome is "completed" or "aborted".
	Outcome string `yaml:"outcome"`

	// ErrorCode, when set, must equal the code of the aborting error:
	// TERMINAL_STATUS, TRANSPORT_EXHAUSTED, CANCELED, CONTRACT or ERROR.
	ErrorCode string `yaml:"error_code,omitempty"`

	// Stage, when set, must equal the stage that aborted the run.
	Stage string `yaml:"stage,omitempty"`
}

// Assertion validates the trace, the delays or the final tables.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matching the filter exists
	// - "trace_order": records appear in Order
	// - "trace_count": exactly Count events match the filter
	// - "final_state": query Table and verify Expect
	// - "row_count": Table holds exactly Count rows
	// - "delays": the requested retry delays equal Delays
	Type string `yaml:"type"`

	// Event filters by event type, "call" or "record". Empty matches both.
	Event string `yaml:"event,omitempty"`

	// Group and Batch filter by batch. Zero matches any.
	Group int `yaml:"group,omitempty"`
	Batch int `yaml:"batch,omitempty"`

	// Status filters by status. Empty matches any.
	Status string `yaml:"status,omitempty"`

	// Order lists records as "group/batch" (used by trace_order).
	Order []string `yaml:"order,omitempty"`

	// Count is the expected number of events or rows.
	Count int `yaml:"count,omitempty"`

	// Table is the table name (used by final_state and row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	// Subset match: only the listed columns are checked.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Delays are the expected retry delays (used by delays).
	Delays []time.Duration `yaml:"delays,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
	AssertDelays        = "delays"
)

// LoadScenario reads and parses a scenario YAML file. A contract_file is
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving contract_file relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.ContractFile != "" && !filepath.IsAbs(scenario.ContractFile) && basePath != "" {
		scenario.ContractFile = filepath.Join(basePath, scenario.ContractFile)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.CSV == "" {
		return fmt.Errorf("csv is required")
	}

	switch {
	case s.Contract == nil && s.ContractFile == "":
		return fmt.Errorf("one of contract and contract_file is required")
	case s.Contract != nil && s.ContractFile != "":
		return fmt.Errorf("contract and contract_file are mutually exclusive")
	case s.Contract != nil:
		if s.Contract.IDField == "" {
			return fmt.Errorf("contract: id_field is required")
		}
		if len(s.Contract.Attributes) == 0 {
			return fmt.Errorf("contract: attributes list is required and must be non-empty")
		}
	default:
		if _, err := os.Stat(s.ContractFile); os.IsNotExist(err) {
			return fmt.Errorf("contract file not found: %s", s.ContractFile)
		}
	}

	if s.APIFunction != "" {
		if _, err := ir.ParseAPIFunction(s.APIFunction); err != nil {
			return err
		}
	}

	if s.MaxBatchSize < 0 {
		return fmt.Errorf("max_batch_size must be positive (got %d)", s.MaxBatchSize)
	}

	if s.Retry != nil {
		if err := s.Retry.Policy().Validate(); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}

	if s.CancelOnSleep < 0 {
		return fmt.Errorf("cancel_on_sleep must not be negative (got %d)", s.CancelOnSleep)
	}

	switch s.Expect.Outcome {
	case OutcomeCompleted, OutcomeAborted:
	case "":
		return fmt.Errorf("expect.outcome is required")
	default:
		return fmt.Errorf("expect.outcome must be %s or %s (got %q)", OutcomeCompleted, OutcomeAborted, s.Expect.Outcome)
	}
	if s.Expect.Stage != "" && !slices.Contains(pipeline.Stages, pipeline.Stage(s.Expect.Stage)) {
		return fmt.Errorf("expect.stage: unknown stage %q", s.Expect.Stage)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Event {
	case "", EventCall, EventRecord:
	default:
		return fmt.Errorf("assertions[%d]: event must be %s or %s (got %q)", index, EventCall, EventRecord, a.Event)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" && a.Group == 0 && a.Batch == 0 && a.Status == "" {
			return fmt.Errorf("assertions[%d]: trace_contains needs at least one of event, group, batch, status", index)
		}
	case AssertTraceOrder:
		if len(a.Order) < 2 {
			return fmt.Errorf("assertions[%d]: order needs at least 2 entries for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must not be negative", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if !knownTable(a.Table) {
			return fmt.Errorf("assertions[%d]: unknown table %q", index, a.Table)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must not be negative", index)
		}
	case AssertDelays:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func knownTable(name string) bool {
	for _, t := range store.Tables {
		if string(t.Name) == name {
			return true
		}
	}
	return false
}
