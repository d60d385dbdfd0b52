package world

import (
	"strings"

	"github.com/roach88/simkernel/internal/value"
)

// TraceTag records one publish step: which component published and the
// kind of event it published.
type TraceTag struct {
	Component string `json:"component"`
	Kind      string `json:"kind"`
}

// Trace is the ordered tag sequence accumulated across nested publishes.
// It is carried for diagnostics and never affects dispatch.
type Trace []TraceTag

// With returns a copy of t with one more tag.
func (t Trace) With(component, kind string) Trace {
	out := make(Trace, len(t), len(t)+1)
	copy(out, t)
	return append(out, TraceTag{Component: component, Kind: kind})
}

// String renders "component:kind > component:kind".
func (t Trace) String() string {
	parts := make([]string, len(t))
	for i, tag := range t {
		parts[i] = tag.Component + ":" + tag.Kind
	}
	return strings.Join(parts, " > ")
}

// TraceRecord describes one completed publish for tracers.
type TraceRecord struct {
	Tick     int64
	Seq      int64
	Name     string
	Subject  Address
	Data     value.Value
	Trace    Trace
	Handled  bool
	Notified int
	Depth    int
}

// Tracer observes every completed publish. Records arrive when dispatch
// finishes, so nested publishes report before their parent; Seq gives
// publish order.
type Tracer func(rec TraceRecord)
