package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun registers a run so events can reference it.
func createTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.CreateRun(context.Background(), Run{ID: id, Source: "test.yaml", Seq: 1}); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
}

// createTestEvent builds an event with minimal required fields.
func createTestEvent(runID string, seq, tick int64, name string, subject world.Address) EventRecord {
	return EventRecord{
		RunID:    runID,
		Seq:      seq,
		Tick:     tick,
		Name:     name,
		Subject:  subject,
		Data:     value.Null{},
		Trace:    world.Trace{{Component: "World", Kind: name}},
		Notified: 1,
		Depth:    1,
	}
}

// testDescriptor is a small screen with a bound label and a stream.
func testDescriptor() content.Descriptor {
	return content.Descriptor{
		Kind:       "Screen",
		Name:       "Hud",
		Dispatcher: "Screen",
		Children: []content.Descriptor{{
			Kind:       "Layer",
			Name:       "Gui",
			Properties: value.Obj(value.P("Title", value.String("héllo <b>"))),
			Children: []content.Descriptor{{
				Name:       "Score",
				Dispatcher: "Label",
				Properties: value.Obj(value.P("Size", value.Int(14))),
				Bindings:   []content.BindingDescriptor{{Property: "Text", Source: "/Model/State.Title"}},
				Handlers:   []content.HandlerDescriptor{{Event: "Click", Signal: "Click", Handles: true}},
			}},
			Streams: []content.StreamDescriptor{{
				Source:   "/Model/State.Items",
				KeyField: "id",
				Element:  map[string]string{"Text": "label"},
				Template: content.Descriptor{Name: "Row", Dispatcher: "Label"},
			}},
		}},
	}
}
