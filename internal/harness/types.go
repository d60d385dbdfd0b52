package harness

import (
	"github.com/roach88/simkernel/internal/actualize"
	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/value"
)

// TraceEvent is one published event as read back from the event log.
type TraceEvent struct {
	Seq      int64       `json:"seq"`
	Tick     int64       `json:"tick"`
	Name     string      `json:"name"`
	Subject  string      `json:"subject"`
	Data     value.Value `json:"data"`
	Handled  bool        `json:"handled"`
	Notified int         `json:"notified"`
	Depth    int         `json:"depth"`
}

func traceEventFromRecord(ev store.EventRecord) TraceEvent {
	data := ev.Data
	if data == nil {
		data = value.Null{}
	}
	return TraceEvent{
		Seq:      ev.Seq,
		Tick:     ev.Tick,
		Name:     ev.Name,
		Subject:  string(ev.Subject),
		Data:     data,
		Handled:  ev.Handled,
		Notified: ev.Notified,
		Depth:    ev.Depth,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every flow step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains every published event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Frames holds the actualize submissions of each tick.
	Frames []actualize.Frame `json:"frames"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State maps each live simulant address to its property values at
	// the end of the run.
	State map[string]value.Object `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Frames: []actualize.Frame{},
		Errors: []string{},
		State:  make(map[string]value.Object),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
