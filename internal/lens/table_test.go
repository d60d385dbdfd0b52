package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

type mapEnv map[string]value.Object

func (m mapEnv) Lookup(table, key string) (value.Value, bool) {
	v, ok := m[table][key]
	return v, ok
}

func TestTableLens(t *testing.T) {
	w, err := world.New(
		world.WithLogger(world.NewDiscardLogger()),
		world.WithEnvironment(mapEnv{"archetypes": value.Obj(value.P("slime", value.Int(3)))}),
	)
	require.NoError(t, err)

	l := Table("archetypes", "slime")
	v, err := l.Get(w)
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), v)
	assert.False(t, l.Writable())
	assert.Empty(t, l.Changes())
	assert.Equal(t, "table:archetypes/slime", l.String())
	assert.ErrorIs(t, l.Set(w, value.Int(1)), ErrReadOnly)

	_, err = Table("archetypes", "bat").Get(w)
	assert.ErrorIs(t, err, ErrNoElement)
}

func TestParseTableRef(t *testing.T) {
	table, key, err := ParseTableRef("table:names/heroes/first")
	require.NoError(t, err)
	assert.Equal(t, "names", table)
	assert.Equal(t, "heroes/first", key)

	for _, bad := range []string{"names/hero", "table:", "table:names", "table:/hero", "table:names/"} {
		_, _, err := ParseTableRef(bad)
		assert.Error(t, err, bad)
	}
	assert.True(t, IsTableRef("table:x/y"))
	assert.False(t, IsTableRef("Title/Gui/Hero.Health"))
}
