package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/attrsync/internal/harness"
)

const (
	markPass = "\u2713"
	markFail = "\u2717"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name" yaml:"name"`
	File   string   `json:"file" yaml:"file"`
	Pass   bool     `json:"pass" yaml:"pass"`
	Golden string   `json:"golden,omitempty" yaml:"golden,omitempty"` // "matched", "updated" or empty
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios" yaml:"scenarios"`
	Passed    int              `json:"passed" yaml:"passed"`
	Failed    int              `json:"failed" yaml:"failed"`
	Total     int              `json:"total" yaml:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run delivery scenarios against a scripted API",
		Long: `Run scenario files through the full pipeline against a scripted remote
API, checking the expected outcome, the trace assertions and the final
database state.

A scenario with a golden file at <dir>/golden/<name>.golden must also
reproduce that trace snapshot byte for byte. --update rewrites the golden
files from the current run.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  attrsync test ./scenarios
  attrsync test ./scenarios --filter "retry_*"
  attrsync test ./scenarios --update
  attrsync test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenariosDir); errors.Is(err, fs.ErrNotExist) {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "scenarios directory not found", err, nil)
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "failed to find scenarios", err, nil)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}

	if len(scenarioFiles) == 0 {
		if formatter.Structured() {
			return formatter.Success(result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	var progress io.Writer = io.Discard
	if !formatter.Structured() {
		progress = cmd.OutOrStdout()
	}

	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(cmd, scenarioFile, opts.Update)
		printScenarioResult(progress, scenResult)
		result.Scenarios = append(result.Scenarios, scenResult)

		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.Structured() {
		return outputTestStructured(formatter, result)
	}
	return outputTestText(cmd.OutOrStdout(), result)
}

// findScenarioFiles finds all YAML scenario files under dir, in lexical
// order.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario executes a single scenario and returns the result.
func runScenario(cmd *cobra.Command, scenarioFile string, update bool) ScenarioResult {
	res := ScenarioResult{
		Name: filepath.Base(scenarioFile),
		File: scenarioFile,
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res
	}
	res.Name = scenario.Name

	result, err := harness.RunContext(cmd.Context(), scenario)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res
	}

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("snapshot failed: %v", err)}
		return res
	}

	goldenPath := goldenFilePath(scenarioFile)
	switch {
	case update:
		if err := updateGoldenFile(goldenPath, snapshot); err != nil {
			res.Errors = []string{fmt.Sprintf("failed to update golden file: %v", err)}
			return res
		}
		res.Golden = "updated"

	default:
		want, err := os.ReadFile(goldenPath)
		if errors.Is(err, fs.ErrNotExist) {
			// No golden file: assertions only.
			break
		}
		if err != nil {
			res.Errors = []string{fmt.Sprintf("golden comparison failed: %v", err)}
			return res
		}
		if !bytes.Equal(want, snapshot) {
			res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
		} else {
			res.Golden = "matched"
		}
	}

	res.Errors = append(res.Errors, result.Errors...)
	res.Pass = len(res.Errors) == 0
	return res
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// updateGoldenFile writes snapshot as the golden file.
func updateGoldenFile(goldenPath string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func printScenarioResult(w io.Writer, res ScenarioResult) {
	if res.Pass {
		if res.Golden == "updated" {
			fmt.Fprintf(w, "%s %s (golden updated)\n", markPass, res.Name)
			return
		}
		fmt.Fprintf(w, "%s %s\n", markPass, res.Name)
		return
	}
	fmt.Fprintf(w, "%s %s\n", markFail, res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestStructured outputs the test result as JSON or YAML.
func outputTestStructured(f *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return f.Success(result)
	}

	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := f.Encode(CLIResponse{
		Status: "error",
		Data:   result,
		Error:  &CLIError{Code: ErrCodeTestFailed, Message: msg},
	}); err != nil {
		return err
	}
	// Test failures = exit code 1
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test summary as text.
func outputTestText(w io.Writer, result TestResult) error {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintf(w, "%s All scenarios passed\n", markPass)
	return nil
}
