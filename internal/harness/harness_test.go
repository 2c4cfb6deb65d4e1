package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrsync/internal/contract"
	"github.com/roach88/attrsync/internal/testutil"
)

func minimalScenario() *Scenario {
	return &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		RunID:       "run-minimal",
		Contract: &contract.Contract{
			Name:       "minimal",
			IDField:    "Asset ID",
			Attributes: []contract.Mapping{{Source: "Business", Key: "Business"}},
		},
		CSV:    "Asset ID,Business\n1,Payments\n2,Payments\n",
		Expect: Expect{Outcome: OutcomeCompleted},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(minimalScenario())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "run-minimal", result.Summary.RunID)

	// One call followed by its record.
	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{Type: EventCall, Seq: 1, Group: 1, Batch: 1, Status: "200", Attempt: 1}, result.Trace[0])
	assert.Equal(t, TraceEvent{
		Type: EventRecord, Seq: 2, Group: 1, Batch: 1, Status: "200", Attempts: 1,
		AssetIDs: []string{"1", "2"},
	}, result.Trace[1])
	assert.Empty(t, result.Delays)
}

func TestRun_DefaultRunID(t *testing.T) {
	s := minimalScenario()
	s.RunID = ""

	result, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, "test-run-default", result.Summary.RunID)
}

func TestRun_OutcomeMismatchFails(t *testing.T) {
	s := minimalScenario()
	s.Expect = Expect{Outcome: OutcomeAborted, ErrorCode: "TERMINAL_STATUS", Stage: "execute"}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "outcome: expected aborted, got completed")
	assert.Contains(t, result.Errors[1], "error_code")
	assert.Contains(t, result.Errors[2], "stage")
}

func TestRun_AbortedRunReportsCodeAndStage(t *testing.T) {
	s := minimalScenario()
	s.Responses = []testutil.Response{{Status: 401, Body: "denied"}}
	s.Expect = Expect{Outcome: OutcomeAborted, ErrorCode: "TERMINAL_STATUS", Stage: "execute"}

	result, err := Run(s)
	require.NoError(t, err)

	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "TERMINAL_STATUS", result.ErrorCode)
	assert.Equal(t, "execute", result.Stage)
	assert.True(t, result.Summary.Execution.Aborted)
}

func TestRun_FailingAssertionReported(t *testing.T) {
	s := minimalScenario()
	s.Assertions = []Assertion{
		{Type: AssertRowCount, Table: "execution_log", Count: 5},
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "5 rows in execution_log")
}

func TestRun_ContractFileNotLoadable(t *testing.T) {
	s := minimalScenario()
	s.Contract = nil
	s.ContractFile = filepath.Join(t.TempDir(), "missing.cue")

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load scenario contract")
}

func TestRun_ScenarioFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestParseUserAgent(t *testing.T) {
	group, batch := parseUserAgent("attrsync function=update group=3 batch=12")
	assert.Equal(t, 3, group)
	assert.Equal(t, 12, batch)

	group, batch = parseUserAgent("curl/8.0")
	assert.Zero(t, group)
	assert.Zero(t, batch)
}

func TestServedStatus(t *testing.T) {
	script := []testutil.Response{{Status: 429}, {Drop: true}, {}}

	assert.Equal(t, "429", servedStatus(script, 0))
	assert.Equal(t, "transport-error", servedStatus(script, 1))
	assert.Equal(t, "200", servedStatus(script, 2))
	assert.Equal(t, "200", servedStatus(script, 3))
}
