package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir is where golden snapshots live, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	RunID        string       `json:"run_id"`
	Outcome      string       `json:"outcome"`
	ErrorCode    string       `json:"error_code,omitempty"`
	Stage        string       `json:"stage,omitempty"`
	Trace        []TraceEvent `json:"trace"`
	Delays       []string     `json:"delays"`
}

// Snapshot renders the golden form of result as indented JSON with a
// trailing newline. Struct field order keeps the output deterministic.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		RunID:        result.Summary.RunID,
		Outcome:      result.Outcome,
		ErrorCode:    result.ErrorCode,
		Stage:        result.Stage,
		Trace:        result.Trace,
		Delays:       result.Delays,
	}
	if snapshot.Trace == nil {
		snapshot.Trace = []TraceEvent{}
	}
	if snapshot.Delays == nil {
		snapshot.Delays = []string{}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
