package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/simkernel/internal/world"
)

// Recorder buffers tracer records for one run and writes them on Flush.
// Install Trace with world.WithTracer and call Flush after each tick.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	store  *Store
	runID  string
	logger *slog.Logger

	mu      sync.Mutex
	pending []EventRecord
	written int
}

// NewRecorder creates a recorder for runID. A nil logger discards.
func NewRecorder(s *Store, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = world.NewDiscardLogger()
	}
	return &Recorder{store: s, runID: runID, logger: logger}
}

// RunID returns the run this recorder writes to.
func (r *Recorder) RunID() string {
	return r.runID
}

// Trace is a world.Tracer.
func (r *Recorder) Trace(rec world.TraceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, RecordFromTrace(r.runID, rec))
}

// Flush writes buffered records in one transaction. On failure the
// records stay buffered for the next attempt.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.store.WriteEvents(ctx, r.pending); err != nil {
		r.logger.Error("event flush failed",
			slog.String("run", r.runID),
			slog.Int("pending", len(r.pending)),
			slog.Any("error", err))
		return err
	}
	r.written += len(r.pending)
	r.logger.Debug("events flushed",
		slog.String("run", r.runID),
		slog.Int("count", len(r.pending)))
	r.pending = r.pending[:0]
	return nil
}

// Written reports how many records have been flushed.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}
