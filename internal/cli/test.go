package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/simkernel/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario harness",
		Long: `Run scenario files against the content they name.

Each scenario expands its content in a fresh world, drives it with
setup and flow steps, and checks trace and final state assertions.
When golden/<scenario>.golden exists next to a scenario file, the
trace must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  simk test ./scenarios
  simk test ./scenarios --filter "door-*"
  simk test ./scenarios --update
  simk test ./scenarios --format json`,
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

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	files, err := harness.FindScenarios(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	formatter := opts.formatter(cmd)
	if len(files) == 0 && !formatter.json() {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	r := &scenarioReporter{formatter: formatter, update: opts.Update}
	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := r.run(file)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}
	return r.summarize(result)
}

// scenarioReporter runs scenario files one at a time and prints a line
// per scenario as it finishes. JSON output is held until the summary.
type scenarioReporter struct {
	formatter *OutputFormatter
	update    bool
}

func (r *scenarioReporter) fail(name string, errs ...string) ScenarioResult {
	if !r.formatter.json() {
		fmt.Fprintf(r.formatter.Writer, "✗ %s\n", name)
		for _, e := range errs {
			fmt.Fprintf(r.formatter.Writer, "  %s\n", e)
		}
	}
	return ScenarioResult{Name: name, Errors: errs}
}

func (r *scenarioReporter) pass(name, note string) ScenarioResult {
	if !r.formatter.json() {
		fmt.Fprintf(r.formatter.Writer, "✓ %s%s\n", name, note)
	}
	return ScenarioResult{Name: name, Pass: true}
}

func (r *scenarioReporter) run(file string) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return r.fail(filepath.Base(file), fmt.Sprintf("failed to load scenario: %v", err))
	}
	res, err := harness.Run(scenario)
	if err != nil {
		return r.fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}
	trace, err := harness.Snapshot(scenario.Name, res)
	if err != nil {
		return r.fail(scenario.Name, fmt.Sprintf("snapshot trace: %v", err))
	}

	golden := harness.GoldenPath(file)
	note := ""
	if r.update {
		if err := writeGolden(golden, trace); err != nil {
			return r.fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
		note = " (golden updated)"
	} else if want, err := os.ReadFile(golden); err == nil {
		if !bytes.Equal(want, trace) {
			return r.fail(scenario.Name, "trace does not match golden file (run with --update to regenerate)")
		}
	} else if !os.IsNotExist(err) {
		return r.fail(scenario.Name, fmt.Sprintf("golden comparison failed: %v", err))
	}

	if !res.Pass {
		return r.fail(scenario.Name, res.Errors...)
	}
	return r.pass(scenario.Name, note)
}

// summarize writes the totals, or the whole result in JSON mode. Any
// failed scenario makes the command exit 1.
func (r *scenarioReporter) summarize(result TestResult) error {
	var failed error
	if result.Failed > 0 {
		failed = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	f := r.formatter
	switch {
	case f.json() && failed != nil:
		if err := f.Fail(result, CLIError{Code: "E_TEST_FAILED", Message: failed.Error()}); err != nil {
			return err
		}
	case f.json():
		return f.respond(CLIResponse{Status: "ok", Data: result})
	default:
		fmt.Fprintf(f.Writer, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		if failed == nil {
			fmt.Fprintln(f.Writer, "✓ All scenarios passed")
		}
	}
	return failed
}

func writeGolden(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	return os.WriteFile(path, trace, 0o644)
}
