package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"retry_then_success", "dry_run", "terminal_abort"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_EmptyResult(t *testing.T) {
	data, err := Snapshot("empty", &Result{Outcome: OutcomeAborted, ErrorCode: ErrCodeContract, Stage: "normalize"})
	require.NoError(t, err)

	assert.Equal(t, `{
  "scenario_name": "empty",
  "run_id": "",
  "outcome": "aborted",
  "error_code": "CONTRACT",
  "stage": "normalize",
  "trace": [],
  "delays": []
}
`, string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "retry_then_success.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
