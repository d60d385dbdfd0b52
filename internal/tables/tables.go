// Package tables holds immutable lookup data, such as archetypes or
// balance numbers, that dispatchers and content read through the world's
// environment.
//
// A table file is a YAML or JSON object mapping table names to rows, and
// rows map keys to values:
//
//	archetypes:
//	  slime: {Health: 3, Label: Slime}
//	  bat:   {Health: 1, Label: Bat}
//
// Lookups return deep copies, so callers cannot mutate a loaded table.
package tables

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Table is an immutable keyed collection of rows.
type Table struct {
	name   string
	rows   value.Object
	digest string
}

// NewTable copies rows into a table. Names may not be empty or contain
// "/", which separates table and key in references.
func NewTable(name string, rows value.Object) (*Table, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	if rows == nil {
		rows = value.Object{}
	}
	rows = value.Clone(rows).(value.Object)
	digest, err := value.Digest(value.DomainTable, value.Obj(
		value.P("name", value.String(name)),
		value.P("rows", rows),
	))
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}
	return &Table{name: name, rows: rows, digest: digest}, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Digest identifies the table's name and contents.
func (t *Table) Digest() string { return t.digest }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Keys returns row keys in canonical order.
func (t *Table) Keys() []string { return t.rows.SortedKeys() }

// Get returns a copy of the row at key.
func (t *Table) Get(key string) (value.Value, bool) {
	v, ok := t.rows[key]
	if !ok {
		return nil, false
	}
	return value.Clone(v), true
}

// Rows returns a copy of every row.
func (t *Table) Rows() value.Object {
	return value.Clone(t.rows).(value.Object)
}

// Set is a collection of tables. It implements world.Environment.
type Set struct {
	tables map[string]*Table
}

var _ world.Environment = (*Set)(nil)

// ErrDuplicateTable is returned when two tables share a name.
var ErrDuplicateTable = errors.New("duplicate table")

// NewSet collects tables by name.
func NewSet(ts ...*Table) (*Set, error) {
	s := &Set{tables: make(map[string]*Table, len(ts))}
	for _, t := range ts {
		if _, dup := s.tables[t.name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTable, t.name)
		}
		s.tables[t.name] = t
	}
	return s, nil
}

// Lookup returns a copy of table[key].
func (s *Set) Lookup(table, key string) (value.Value, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tables[table]
	if !ok {
		return nil, false
	}
	return t.Get(key)
}

// Table returns the named table.
func (s *Set) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Names returns table names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Digests maps each table name to its digest.
func (s *Set) Digests() map[string]string {
	out := make(map[string]string, len(s.tables))
	for name, t := range s.tables {
		out[name] = t.digest
	}
	return out
}
