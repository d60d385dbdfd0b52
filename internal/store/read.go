package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/world"
)

// ErrNotFound is returned when a run or snapshot key does not exist.
var ErrNotFound = errors.New("not found")

// EventFilter narrows ReadEvents. Zero fields match everything.
type EventFilter struct {
	Tick    int64         // only events published during this tick, when > 0
	Name    string        // only events with this name
	Subject world.Address // only events about this simulant, when not the Game
	// Under matches Subject and its descendants instead of Subject alone.
	Under bool
}

// ReadEvents returns the events of a run, ordered by seq.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadEvents(ctx context.Context, runID string, f EventFilter) ([]EventRecord, error) {
	var (
		where = []string{"run_id = ?"}
		args  = []any{runID}
	)
	if f.Tick > 0 {
		where = append(where, "tick = ?")
		args = append(args, f.Tick)
	}
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.Subject != world.GameAddress {
		if f.Under {
			where = append(where, "(subject = ? OR subject LIKE ? ESCAPE '\\')")
			args = append(args, string(f.Subject), escapeLike(string(f.Subject))+"/%")
		} else {
			where = append(where, "subject = ?")
			args = append(args, string(f.Subject))
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, tick, name, subject, data, trace, handled, notified, depth
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (EventRecord, error) {
	var (
		ev          EventRecord
		subject     string
		data, trace string
		handled     int
	)
	if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.Tick, &ev.Name, &subject, &data, &trace, &handled, &ev.Notified, &ev.Depth); err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}
	ev.Subject = world.Address(subject)
	ev.Handled = handled != 0

	var err error
	if ev.Data, err = unmarshalData(data); err != nil {
		return ev, fmt.Errorf("event %d: %w", ev.Seq, err)
	}
	if ev.Trace, err = unmarshalTrace(trace); err != nil {
		return ev, fmt.Errorf("event %d: %w", ev.Seq, err)
	}
	return ev, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Runs returns every recorded run in registration order.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, seq FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RunSummary aggregates a run's event log.
type RunSummary struct {
	Run      Run
	Events   int
	Ticks    int64 // highest tick with an event
	Handled  int
	MaxDepth int
	LastSeq  int64
	ByName   map[string]int
}

// Summarize reports counts for one run. Returns ErrNotFound for an
// unknown run.
func (s *Store) Summarize(ctx context.Context, runID string) (RunSummary, error) {
	sum := RunSummary{ByName: map[string]int{}}
	err := s.db.QueryRowContext(ctx, `SELECT id, source, seq FROM runs WHERE id = ?`, runID).
		Scan(&sum.Run.ID, &sum.Run.Source, &sum.Run.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return sum, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return sum, fmt.Errorf("summarize: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(tick), 0), COALESCE(SUM(handled), 0),
		       COALESCE(MAX(depth), 0), COALESCE(MAX(seq), 0)
		FROM events WHERE run_id = ?
	`, runID).Scan(&sum.Events, &sum.Ticks, &sum.Handled, &sum.MaxDepth, &sum.LastSeq)
	if err != nil {
		return sum, fmt.Errorf("summarize: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COUNT(*) FROM events WHERE run_id = ?
		GROUP BY name ORDER BY name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return sum, fmt.Errorf("summarize: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return sum, fmt.Errorf("summarize: %w", err)
		}
		sum.ByName[name] = count
	}
	if err := rows.Err(); err != nil {
		return sum, fmt.Errorf("summarize: %w", err)
	}
	return sum, nil
}

// LoadSnapshot returns the snapshot stored under key. Returns ErrNotFound
// when the key is unknown and an error when the stored digest no longer
// matches the body.
func (s *Store) LoadSnapshot(ctx context.Context, key string) (Snapshot, error) {
	var (
		snap Snapshot
		blob []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT key, run_id, tick, digest, descriptor, seq
		FROM snapshots WHERE key = ?
	`, key).Scan(&snap.Key, &snap.RunID, &snap.Tick, &snap.Digest, &blob, &snap.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("snapshot %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return snap, fmt.Errorf("load snapshot %q: %w", key, err)
	}

	body, err := decompress(blob)
	if err != nil {
		return snap, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	if snap.Descriptor, err = decodeDescriptor(body); err != nil {
		return snap, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	digest, err := DescriptorDigest(snap.Descriptor)
	if err != nil {
		return snap, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	if digest != snap.Digest {
		return snap, fmt.Errorf("load snapshot %q: digest mismatch", key)
	}
	return snap, nil
}

// SnapshotKeys lists stored snapshot keys in save order.
func (s *Store) SnapshotKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM snapshots ORDER BY seq ASC, key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return keys, nil
}

func decodeDescriptor(body []byte) (content.Descriptor, error) {
	var d content.Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return d, fmt.Errorf("decode descriptor: %w", err)
	}
	return d, nil
}
