package tables

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/simkernel/internal/value"
)

// Parse decodes a table file. The format follows ext: ".json", ".yaml"
// or ".yml".
func Parse(data []byte, ext string) ([]*Table, error) {
	var raw value.Value
	switch strings.ToLower(ext) {
	case ".json":
		v, err := value.Parse(data)
		if err != nil {
			return nil, err
		}
		raw = v
	case ".yaml", ".yml":
		var doc map[string]any
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		v, err := value.FromAny(doc)
		if err != nil {
			return nil, err
		}
		raw = v
	default:
		return nil, fmt.Errorf("unsupported table format %q", ext)
	}

	top, ok := raw.(value.Object)
	if !ok {
		return nil, fmt.Errorf("table file must be an object of tables, got %s", value.TypeOf(raw))
	}
	var out []*Table
	for _, name := range top.SortedKeys() {
		rows, ok := top[name].(value.Object)
		if !ok {
			return nil, fmt.Errorf("table %s: rows must be an object, got %s", name, value.TypeOf(top[name]))
		}
		t, err := NewTable(name, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadFile reads the tables in one file.
func LoadFile(path string) ([]*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ts, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ts, nil
}

// Load reads every file and merges them into one Set. A table name may
// appear in only one file.
func Load(paths ...string) (*Set, error) {
	var all []*Table
	for _, p := range paths {
		ts, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, ts...)
	}
	return NewSet(all...)
}

// LoadDir loads every .json, .yaml and .yml file directly under dir, in
// lexical order. A missing directory yields an empty Set.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return NewSet()
	}
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return Load(paths...)
}
