package testutil

import (
	"slices"
	"sync"

	"github.com/roach88/simkernel/internal/world"
)

// TraceLog collects every publish a world reports through its tracer.
//
// Records arrive when dispatch finishes, so nested publishes land before
// their parent. Records returns them in publish order (by Seq).
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type TraceLog struct {
	mu      sync.Mutex
	records []world.TraceRecord
}

// NewTraceLog creates an empty log.
func NewTraceLog() *TraceLog {
	return &TraceLog{}
}

// Tracer returns the world.Tracer that appends to the log.
func (l *TraceLog) Tracer() world.Tracer {
	return func(rec world.TraceRecord) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.records = append(l.records, rec)
	}
}

// Records returns a copy of the log ordered by Seq.
func (l *TraceLog) Records() []world.TraceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := slices.Clone(l.records)
	slices.SortFunc(out, func(a, b world.TraceRecord) int {
		return int(a.Seq - b.Seq)
	})
	return out
}

// Names returns the event names in publish order.
func (l *TraceLog) Names() []string {
	recs := l.Records()
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Name
	}
	return names
}

// Named returns the records for one event name in publish order.
func (l *TraceLog) Named(name string) []world.TraceRecord {
	var out []world.TraceRecord
	for _, r := range l.Records() {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of records.
func (l *TraceLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Reset empties the log.
func (l *TraceLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
