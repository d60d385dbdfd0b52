package tables

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
)

const archetypesYAML = `
archetypes:
  slime: {Health: 3, Label: Slime}
  bat:
    Health: 1
    Label: Bat
    Drops: [wing, tooth]
balance:
  gold_per_kill: 5
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParse_YAML(t *testing.T) {
	ts, err := Parse([]byte(archetypesYAML), ".yaml")
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "archetypes", ts[0].Name())
	assert.Equal(t, "balance", ts[1].Name())
	assert.Equal(t, []string{"bat", "slime"}, ts[0].Keys())

	bat, ok := ts[0].Get("bat")
	require.True(t, ok)
	assert.True(t, value.Equal(
		value.MustParse(`{"Health":1,"Label":"Bat","Drops":["wing","tooth"]}`), bat))
}

func TestParse_JSONMatchesYAML(t *testing.T) {
	fromYAML, err := Parse([]byte(archetypesYAML), ".yml")
	require.NoError(t, err)
	fromJSON, err := Parse([]byte(`{
		"balance": {"gold_per_kill": 5},
		"archetypes": {
			"bat": {"Label": "Bat", "Health": 1, "Drops": ["wing", "tooth"]},
			"slime": {"Health": 3, "Label": "Slime"}
		}
	}`), ".json")
	require.NoError(t, err)

	require.Len(t, fromJSON, 2)
	for i := range fromYAML {
		assert.Equal(t, fromYAML[i].Digest(), fromJSON[i].Digest(), fromYAML[i].Name())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name, ext, body, want string
	}{
		{"not an object", ".json", `[1, 2]`, "object of tables"},
		{"rows not an object", ".json", `{"t": [1]}`, "rows must be an object"},
		{"float", ".json", `{"t": {"x": 0.5}}`, "floats"},
		{"bad table name", ".json", `{"a/b": {}}`, "invalid table name"},
		{"unknown format", ".toml", ``, "unsupported table format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), tt.ext)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLookup_ReturnsCopies(t *testing.T) {
	ts, err := Parse([]byte(archetypesYAML), ".yaml")
	require.NoError(t, err)
	set, err := NewSet(ts...)
	require.NoError(t, err)

	got, ok := set.Lookup("archetypes", "bat")
	require.True(t, ok)
	got.(value.Object)["Health"] = value.Int(99)
	got.(value.Object)["Drops"].(value.Array)[0] = value.String("gone")

	again, _ := set.Lookup("archetypes", "bat")
	assert.Equal(t, value.Int(1), again.(value.Object)["Health"])
	assert.Equal(t, value.String("wing"), again.(value.Object)["Drops"].(value.Array)[0])
}

func TestLookup_Missing(t *testing.T) {
	set, err := NewSet()
	require.NoError(t, err)

	_, ok := set.Lookup("archetypes", "slime")
	assert.False(t, ok)

	var nilSet *Set
	_, ok = nilSet.Lookup("archetypes", "slime")
	assert.False(t, ok)
}

func TestNewTable_CopiesInput(t *testing.T) {
	rows := value.Obj(value.P("a", value.Int(1)))
	tbl, err := NewTable("t", rows)
	require.NoError(t, err)
	before := tbl.Digest()

	rows["a"] = value.Int(2)
	v, _ := tbl.Get("a")
	assert.Equal(t, value.Int(1), v)
	assert.Equal(t, before, tbl.Digest())
}

func TestDigest_CoversNameAndRows(t *testing.T) {
	rows := value.Obj(value.P("a", value.Int(1)))
	t1, err := NewTable("one", rows)
	require.NoError(t, err)
	t2, err := NewTable("two", rows)
	require.NoError(t, err)
	t3, err := NewTable("one", value.Obj(value.P("a", value.Int(2))))
	require.NoError(t, err)

	assert.NotEqual(t, t1.Digest(), t2.Digest())
	assert.NotEqual(t, t1.Digest(), t3.Digest())
	assert.Len(t, t1.Digest(), 64)
}

func TestNewSet_Duplicate(t *testing.T) {
	a, _ := NewTable("t", nil)
	b, _ := NewTable("t", nil)
	_, err := NewSet(a, b)
	assert.ErrorIs(t, err, ErrDuplicateTable)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", archetypesYAML)
	writeFile(t, dir, "b.json", `{"names": {"hero": "Ayla"}}`)
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	set, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"archetypes", "balance", "names"}, set.Names())

	v, ok := set.Lookup("names", "hero")
	require.True(t, ok)
	assert.Equal(t, value.String("Ayla"), v)
	assert.Len(t, set.Digests(), 3)
}

func TestLoadDir_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"t": {}}`)
	writeFile(t, dir, "b.json", `{"t": {}}`)

	_, err := LoadDir(dir)
	assert.ErrorIs(t, err, ErrDuplicateTable)
}

func TestLoadDir_Missing(t *testing.T) {
	set, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, set.Names())
}
