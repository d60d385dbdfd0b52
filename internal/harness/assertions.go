package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/simkernel/internal/actualize"
	"github.com/roach88/simkernel/internal/value"
)

// AssertionError describes a failed assertion. Trace assertions attach
// the whole trace so the failure can be read without rerunning.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n  Expected: %s\n  Actual: %s\n", e.Type, e.Expected, e.Actual)
	if len(e.Trace) > 0 {
		buf.WriteString("\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] tick=%d %s @%s %s\n", i+1, ev.Tick, ev.Name, displaySubject(ev.Subject), value.Format(ev.Data))
		}
	}
	return buf.String()
}

func displaySubject(s string) string {
	if s == "" {
		return "/"
	}
	return s
}

func describeSubject(subject *string) string {
	if subject == nil {
		return "any subject"
	}
	return displaySubject(*subject)
}

func subjectMatches(want *string, got string) bool {
	return want == nil || *want == got
}

// assertTraceContains checks if the trace contains an event with the
// assertion's name, subject and data (subset match).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	want, err := toObject(a.Data)
	if err != nil {
		return fmt.Errorf("trace_contains data: %w", err)
	}
	for _, ev := range trace {
		if ev.Name == a.Event && subjectMatches(a.Subject, ev.Subject) && matchData(ev.Data, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s about %s with data %s", a.Event, describeSubject(a.Subject), value.Format(want)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
// Each expected event is matched at its first occurrence after the
// previous match, so a name may repeat in the list.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for i, name := range a.Events {
		found := -1
		for j := pos; j < len(trace); j++ {
			if trace[j].Name == name {
				found = j
				break
			}
		}
		if found < 0 {
			actual := fmt.Sprintf("missing event: %s", name)
			if i > 0 {
				actual = fmt.Sprintf("%s not found after %s (pos %d)", name, a.Events[i-1], pos)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   actual,
				Trace:    trace,
			}
		}
		pos = found + 1
	}
	return nil
}

// assertTraceCount checks if the event appears exactly the specified
// number of times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Name == a.Event && subjectMatches(a.Subject, ev.Subject) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s about %s", a.Count, a.Event, describeSubject(a.Subject)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks a simulant's existence and property values at
// the end of the run, with subset semantics on Expect.
func assertFinalState(state map[string]value.Object, a Assertion) error {
	subject := *a.Subject
	props, live := state[subject]

	if a.Exists != nil && *a.Exists != live {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("simulant %s live=%t", displaySubject(subject), *a.Exists),
			Actual:   fmt.Sprintf("live=%t", live),
		}
	}
	if len(a.Expect) == 0 {
		return nil
	}
	if !live {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("simulant %s to exist", displaySubject(subject)),
			Actual:   "no live simulant at address",
		}
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, err := value.FromAny(a.Expect[key])
		if err != nil {
			return fmt.Errorf("final_state expect %s: %w", key, err)
		}
		got, ok := props[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("property %q to exist on %s", key, displaySubject(subject)),
				Actual:   fmt.Sprintf("properties: %v", props.SortedKeys()),
			}
		}
		if !value.Equal(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %s", displaySubject(subject), key, value.Format(want)),
				Actual:   fmt.Sprintf("%s.%s = %s", displaySubject(subject), key, value.Format(got)),
			}
		}
	}
	return nil
}

// assertSubmitted checks that a frame holds a submission with the given
// kind, subject and data (subset match).
func assertSubmitted(frames []actualize.Frame, a Assertion) error {
	want, err := toObject(a.Data)
	if err != nil {
		return fmt.Errorf("submitted data: %w", err)
	}

	var frame *actualize.Frame
	switch {
	case len(frames) == 0:
	case a.Tick == 0:
		frame = &frames[len(frames)-1]
	default:
		for i := range frames {
			if frames[i].Tick == a.Tick {
				frame = &frames[i]
				break
			}
		}
	}
	if frame == nil {
		return &AssertionError{
			Type:     AssertSubmitted,
			Expected: fmt.Sprintf("frame for tick %d", a.Tick),
			Actual:   fmt.Sprintf("%d frames recorded", len(frames)),
		}
	}

	for _, sub := range frame.Submissions {
		if a.Kind != "" && sub.Kind != a.Kind {
			continue
		}
		if !subjectMatches(a.Subject, string(sub.Subject)) {
			continue
		}
		if matchData(sub.Data, want) {
			return nil
		}
	}

	seen := make([]string, 0, len(frame.Submissions))
	for _, sub := range frame.Submissions {
		seen = append(seen, fmt.Sprintf("%s@%s", sub.Kind, displaySubject(string(sub.Subject))))
	}
	return &AssertionError{
		Type:     AssertSubmitted,
		Expected: fmt.Sprintf("submission %s about %s with data %s in tick %d", a.Kind, describeSubject(a.Subject), value.Format(want), frame.Tick),
		Actual:   fmt.Sprintf("submissions: %v", seen),
	}
}

func toObject(m map[string]any) (value.Object, error) {
	if len(m) == 0 {
		return nil, nil
	}
	v, err := value.FromAny(m)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", value.TypeOf(v))
	}
	return obj, nil
}

// matchData checks if actual contains all expected fields (subset match).
// Extra fields in actual are ignored; field values compare exactly.
func matchData(actual value.Value, expected value.Object) bool {
	if len(expected) == 0 {
		return true
	}
	for key, want := range expected {
		got, ok := value.Field(actual, key)
		if !ok || !value.Equal(got, want) {
			return false
		}
	}
	return true
}

// EvaluateAssertions checks every assertion against result and returns
// one message per failure, in assertion order. Malformed assertions fail
// with the same message ParseScenario would give them.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := a.validate(); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
			continue
		}
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertFinalState:
		return assertFinalState(result.State, a)
	default:
		return assertSubmitted(result.Frames, a)
	}
}
