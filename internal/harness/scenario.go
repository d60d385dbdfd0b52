package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/simkernel/internal/world"
)

// Scenario defines one harness run: the content to load, the steps to
// drive the world with and the assertions to check afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the run in the
	// event log and the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Content is the directory of the CUE package declaring dispatchers
	// and content roots. Relative paths resolve against the scenario file.
	Content string `yaml:"content"`

	// Tables is an optional directory of data tables installed as the
	// world's environment.
	Tables string `yaml:"tables,omitempty"`

	// Roots lists the content roots to expand, in order. Empty expands
	// every root in declaration order.
	Roots []string `yaml:"roots,omitempty"`

	// Setup steps run before the flow and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence of steps.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace, state and frames.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action against the world. Exactly one of Tick, Publish,
// Signal, Set and Destroy is given.
type Step struct {
	// Tick runs this many ticks.
	Tick int `yaml:"tick,omitempty"`

	// Publish names an event published (notify-all) about Subject.
	Publish string `yaml:"publish,omitempty"`

	// Signal names a signal sent to Subject's dispatcher. With Data the
	// signal is sent as {signal, value: Data}.
	Signal string `yaml:"signal,omitempty"`

	// Set assigns properties on Subject, in key order.
	Set map[string]any `yaml:"set,omitempty"`

	// Destroy schedules the simulant at this address for destruction.
	Destroy string `yaml:"destroy,omitempty"`

	// Subject is the simulant address for publish, signal and set.
	// Empty is the Game.
	Subject string `yaml:"subject,omitempty"`

	// Data is the event payload or signal value.
	Data any `yaml:"data,omitempty"`

	// ExpectError requires the step to fail with an error containing
	// this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step action names.
const (
	ActionTick    = "tick"
	ActionPublish = "publish"
	ActionSignal  = "signal"
	ActionSet     = "set"
	ActionDestroy = "destroy"
)

// Action returns the name of the step's action, or "" when it has none.
// Steps with more than one action report the first in declaration order.
func (s Step) Action() string {
	if actions := s.actions(); len(actions) > 0 {
		return actions[0]
	}
	return ""
}

func (s Step) actions() []string {
	var out []string
	if s.Tick != 0 {
		out = append(out, ActionTick)
	}
	if s.Publish != "" {
		out = append(out, ActionPublish)
	}
	if s.Signal != "" {
		out = append(out, ActionSignal)
	}
	if s.Set != nil {
		out = append(out, ActionSet)
	}
	if s.Destroy != "" {
		out = append(out, ActionDestroy)
	}
	return out
}

// Assertion validates trace, state or frames.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event is the event name (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Subject narrows trace_contains, trace_count and submitted to one
	// simulant, and names the simulant for final_state. Absent matches
	// any subject; "" is the Game.
	Subject *string `yaml:"subject,omitempty"`

	// Data is a subset match on event data or submission data.
	Data map[string]any `yaml:"data,omitempty"`

	// Events is the expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect holds expected property values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Exists, when set, requires the simulant to be live (true) or gone
	// (false) (final_state).
	Exists *bool `yaml:"exists,omitempty"`

	// Kind is the submission kind (submitted).
	Kind string `yaml:"kind,omitempty"`

	// Tick selects the frame (submitted). Zero is the last frame.
	Tick int64 `yaml:"tick,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertSubmitted     = "submitted"
)

// LoadScenario reads a scenario file. Content and Tables paths resolve
// against the file's directory. Unknown keys are an error so that a typo
// such as "assertion:" cannot silently drop every check.
func LoadScenario(path string) (*Scenario, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scenario path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(abs))
}

// ParseScenario parses scenario YAML, resolving relative paths against
// baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	s.Content = resolve(baseDir, s.Content)
	s.Tables = resolve(baseDir, s.Tables)

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (s *Scenario) validate() error {
	switch {
	case s.Name == "":
		return errors.New("name is required")
	case s.Description == "":
		return errors.New("description is required")
	case s.Content == "":
		return errors.New("content directory is required")
	case len(s.Flow) == 0:
		return errors.New("flow list is required and must be non-empty")
	case len(s.Assertions) == 0:
		return errors.New("assertions list is required and must be non-empty")
	case !isDir(s.Content):
		return fmt.Errorf("content directory not found: %s", s.Content)
	case s.Tables != "" && !isDir(s.Tables):
		return fmt.Errorf("tables directory not found: %s", s.Tables)
	}

	for i, step := range s.Setup {
		if step.ExpectError != "" {
			return fmt.Errorf("setup[%d]: expect_error is only allowed in flow", i)
		}
		if err := step.validate(); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := step.validate(); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	if actions := s.actions(); len(actions) == 0 {
		return errors.New("one of tick, publish, signal, set or destroy is required")
	} else if len(actions) > 1 {
		return fmt.Errorf("only one action per step, got %v", actions)
	}
	if s.Tick < 0 {
		return fmt.Errorf("tick must be positive, got %d", s.Tick)
	}
	if _, err := world.ParseAddress(s.Subject); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if _, err := world.ParseAddress(s.Destroy); err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	return nil
}

// validate checks that a carries the fields its type reads.
func (a Assertion) validate() error {
	var missing string
	switch a.Type {
	case "":
		return errors.New("type is required")
	case AssertTraceContains:
		if a.Event == "" {
			missing = "event is"
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			missing = "events list is"
		}
	case AssertTraceCount:
		if a.Event == "" {
			missing = "event is"
		} else if a.Count < 0 {
			return errors.New("count must be non-negative for trace_count")
		}
	case AssertFinalState:
		switch {
		case a.Subject == nil:
			missing = "subject is"
		case len(a.Expect) == 0 && a.Exists == nil:
			missing = "expect or exists is"
		case a.Exists != nil && !*a.Exists && len(a.Expect) > 0:
			return errors.New("expect cannot be combined with exists: false")
		}
	case AssertSubmitted:
		if a.Kind == "" && a.Subject == nil {
			missing = "kind or subject is"
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if missing != "" {
		return fmt.Errorf("%s required for %s", missing, a.Type)
	}

	if a.Subject != nil {
		if _, err := world.ParseAddress(*a.Subject); err != nil {
			return fmt.Errorf("subject: %w", err)
		}
	}
	return nil
}
