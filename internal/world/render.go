package world

import "github.com/roach88/simkernel/internal/value"

// Submission is an opaque draw message produced by an Actualize hook.
// The kernel never interprets Data.
type Submission struct {
	Subject Address      `json:"subject"`
	Kind    string       `json:"kind"`
	Data    value.Object `json:"data,omitempty"`
}

// Renderer accepts submissions during the actualize phase.
type Renderer interface {
	Submit(s Submission)
}

// Sink receives each tick's submissions once the actualize phase ends.
type Sink interface {
	Flush(tick int64, subs []Submission) error
}

// collector buffers one tick's submissions.
type collector struct {
	subs []Submission
}

func (c *collector) Submit(s Submission) {
	c.subs = append(c.subs, s)
}

// discardSink drops submissions.
type discardSink struct{}

func (discardSink) Flush(int64, []Submission) error { return nil }

// Environment is read-only lookup data supplied by the host, such as
// archetype tables. The kernel never mutates it.
type Environment interface {
	Lookup(table, key string) (value.Value, bool)
}

type emptyEnvironment struct{}

func (emptyEnvironment) Lookup(string, string) (value.Value, bool) { return nil, false }
