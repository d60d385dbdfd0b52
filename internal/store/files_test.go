package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/value"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDescriptorFile_JSON(t *testing.T) {
	path := writeFile(t, "hud.json", `{
		"kind": "Layer",
		"name": "Gui",
		"properties": {"Title": "hi"},
		"children": [
			{"name": "Score", "dispatcher": "Label",
			 "bindings": [{"property": "Text", "source": "/Model/State.Title"}]}
		]
	}`)

	d, err := LoadDescriptorFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Gui", d.Name)
	assert.Equal(t, value.String("hi"), d.Properties["Title"])
	require.Len(t, d.Children, 1)
	assert.Equal(t, "/Model/State.Title", d.Children[0].Bindings[0].Source)
}

func TestLoadDescriptorFile_JSONSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `{"name": "X", "colour": "red"}`},
		{"bad kind", `{"kind": "Widget"}`},
		{"reserved character in name", `{"name": "a.b"}`},
		{"binding without source", `{"bindings": [{"property": "Text"}]}`},
		{"handler without event", `{"handlers": [{"signal": "Click"}]}`},
		{"stream without template", `{"streams": [{"source": "/M.Items"}]}`},
		{"handles not boolean", `{"handlers": [{"event": "Click", "handles": "yes"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.json", tt.body)
			_, err := LoadDescriptorFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "schema")
		})
	}
}

func TestLoadDescriptorFile_JSONRejectsFloats(t *testing.T) {
	path := writeFile(t, "f.json", `{"properties": {"Speed": 1.5}}`)
	_, err := LoadDescriptorFile(path)
	assert.ErrorContains(t, err, "floats are not representable")
}

func TestLoadDescriptorFile_YAML(t *testing.T) {
	path := writeFile(t, "hud.yaml", `
kind: Layer
name: Gui
properties:
  Count: 3
streams:
  - source: /Model/State.Items
    key_field: id
    element:
      Text: label
    template:
      name: Row
      dispatcher: Label
`)

	d, err := LoadDescriptorFile(path)
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), d.Properties["Count"])
	require.Len(t, d.Streams, 1)
	assert.Equal(t, "id", d.Streams[0].KeyField)
	assert.Equal(t, "Row", d.Streams[0].Template.Name)
}

func TestLoadDescriptorFile_YAMLUnknownField(t *testing.T) {
	path := writeFile(t, "bad.yml", "name: Gui\ncolour: red\n")
	_, err := LoadDescriptorFile(path)
	assert.ErrorContains(t, err, "colour")
}

func TestLoadDescriptorFile_RunsValidate(t *testing.T) {
	// Schema-valid but two children share a name.
	path := writeFile(t, "dup.json", `{"name": "Gui", "children": [{"name": "A"}, {"name": "A"}]}`)
	_, err := LoadDescriptorFile(path)
	assert.ErrorContains(t, err, "duplicate child name")
}

func TestLoadDescriptorFile_UnknownExtension(t *testing.T) {
	path := writeFile(t, "hud.toml", "")
	_, err := LoadDescriptorFile(path)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteDescriptorFile_RoundTripEachFormat(t *testing.T) {
	d := testDescriptor()
	for _, ext := range []string{".json", ".yaml", ".simz"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "hud"+ext)
			require.NoError(t, WriteDescriptorFile(path, d))

			got, err := LoadDescriptorFile(path)
			require.NoError(t, err)
			assert.Equal(t, d, got)
		})
	}
}

func TestWriteDescriptorFile_JSONIsCanonical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	d := content.Descriptor{Name: "X", Properties: value.Obj(value.P("b", value.Int(1)), value.P("a", value.Bool(true)))}
	require.NoError(t, WriteDescriptorFile(path, d))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"X","properties":{"a":true,"b":1}}`+"\n", string(raw))
}

func TestFileLoader(t *testing.T) {
	path := writeFile(t, "x.json", `{"name": "X"}`)
	d, err := FileLoader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "X", d.Name)
}
