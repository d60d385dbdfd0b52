package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Run identifies one recorded execution.
type Run struct {
	ID     string `json:"id"`
	Source string `json:"source"` // content directory the run was started from
	Seq    int64  `json:"seq"`    // world clock when the run was registered
}

// EventRecord is the stored form of a world.TraceRecord.
type EventRecord struct {
	RunID    string
	Seq      int64
	Tick     int64
	Name     string
	Subject  world.Address
	Data     value.Value
	Trace    world.Trace
	Handled  bool
	Notified int
	Depth    int
}

// RecordFromTrace tags a tracer record with its run.
func RecordFromTrace(runID string, rec world.TraceRecord) EventRecord {
	return EventRecord{
		RunID:    runID,
		Seq:      rec.Seq,
		Tick:     rec.Tick,
		Name:     rec.Name,
		Subject:  rec.Subject,
		Data:     rec.Data,
		Trace:    rec.Trace,
		Handled:  rec.Handled,
		Notified: rec.Notified,
		Depth:    rec.Depth,
	}
}

// Snapshot is a named subtree descriptor captured at a tick.
type Snapshot struct {
	Key        string
	RunID      string
	Tick       int64
	Seq        int64
	Digest     string
	Descriptor content.Descriptor
}

// CreateRun registers a run. Duplicate IDs are silently ignored.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Source, run.Seq)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// WriteEvent appends one event. Uses ON CONFLICT DO NOTHING for
// idempotency: rewriting the same (run, seq) is a no-op.
//
// The run must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, ev EventRecord) error {
	return s.writeEvent(ctx, s.db, ev)
}

// WriteEvents appends events in a single transaction.
func (s *Store) WriteEvents(ctx context.Context, evs []EventRecord) error {
	if len(evs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	for _, ev := range evs {
		if err := s.writeEvent(ctx, tx, ev); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) writeEvent(ctx context.Context, db execer, ev EventRecord) error {
	data, err := marshalData(ev.Data)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	trace, err := marshalTrace(ev.Trace)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, tick, name, subject, data, trace, handled, notified, depth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		ev.RunID,
		ev.Seq,
		ev.Tick,
		ev.Name,
		string(ev.Subject),
		data,
		trace,
		boolToInt(ev.Handled),
		ev.Notified,
		ev.Depth,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// SaveSnapshot stores snap.Descriptor under snap.Key, replacing any
// earlier snapshot with that key. The returned digest is also stored.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) (string, error) {
	body, digest, err := EncodeDescriptor(snap.Descriptor)
	if err != nil {
		return "", fmt.Errorf("save snapshot %q: %w", snap.Key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, run_id, tick, digest, descriptor, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			run_id = excluded.run_id,
			tick = excluded.tick,
			digest = excluded.digest,
			descriptor = excluded.descriptor,
			seq = excluded.seq
	`, snap.Key, snap.RunID, snap.Tick, digest, compress(body), snap.Seq)
	if err != nil {
		return "", fmt.Errorf("save snapshot %q: %w", snap.Key, err)
	}
	return digest, nil
}
