package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/simkernel/internal/value"
)

// GoldenDir is where RunWithGolden and AssertGolden keep golden files,
// relative to the test's package directory.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonical converts the snapshot to a value for canonical encoding.
//
// Events are numbered by position rather than seq: seq is drawn from the
// world clock, which simulant and subscription ids also consume, so seq
// values shift whenever content gains or loses a binding even if the
// events are unchanged.
func (s *TraceSnapshot) toCanonical() value.Object {
	trace := make(value.Array, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = value.Obj(
			value.P("index", value.Int(i+1)),
			value.P("tick", value.Int(ev.Tick)),
			value.P("name", value.String(ev.Name)),
			value.P("subject", value.String(ev.Subject)),
			value.P("data", ev.Data),
			value.P("handled", value.Bool(ev.Handled)),
			value.P("notified", value.Int(int64(ev.Notified))),
			value.P("depth", value.Int(int64(ev.Depth))),
		)
	}
	return value.Obj(
		value.P("scenario_name", value.String(s.ScenarioName)),
		value.P("trace", trace),
	)
}

// Snapshot renders a result's trace as the canonical JSON stored in
// golden files.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return value.Canonical(snap.toCanonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
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

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
