// Package actualize receives the draw submissions a world produces at the
// end of each tick. Collector keeps them in memory; Hub streams them to
// websocket viewers. Both implement world.Sink.
package actualize

import (
	"errors"
	"slices"
	"sync"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Frame is one tick's submissions.
type Frame struct {
	Tick        int64              `json:"tick"`
	Submissions []world.Submission `json:"submissions"`
}

func newFrame(tick int64, subs []world.Submission) Frame {
	f := Frame{Tick: tick, Submissions: make([]world.Submission, len(subs))}
	for i, s := range subs {
		f.Submissions[i] = world.Submission{Subject: s.Subject, Kind: s.Kind}
		if s.Data != nil {
			f.Submissions[i].Data = value.Clone(s.Data).(value.Object)
		}
	}
	return f
}

// Collector records frames in memory. With a positive limit only the most
// recent frames are kept.
//
// Thread-safety: safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	limit  int
	frames []Frame
}

var _ world.Sink = (*Collector)(nil)

// NewCollector creates a collector keeping at most limit frames (0 keeps
// everything).
func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

// Flush implements world.Sink. Submissions are copied.
func (c *Collector) Flush(tick int64, subs []world.Submission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, newFrame(tick, subs))
	if c.limit > 0 && len(c.frames) > c.limit {
		c.frames = slices.Delete(c.frames, 0, len(c.frames)-c.limit)
	}
	return nil
}

// Frames returns the recorded frames, oldest first.
func (c *Collector) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.frames)
}

// Last returns the most recent frame.
func (c *Collector) Last() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return Frame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

// Reset drops all frames.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// Fanout flushes to every sink in order. All sinks are flushed even when
// one fails; the errors are joined.
type Fanout []world.Sink

// Flush implements world.Sink.
func (f Fanout) Flush(tick int64, subs []world.Submission) error {
	var errs []error
	for _, s := range f {
		if err := s.Flush(tick, subs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
