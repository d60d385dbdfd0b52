package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSortsKeys(t *testing.T) {
	b, err := Canonical(Obj(P("b", Int(2)), P("a", Int(1))))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(b))
}

func TestCanonicalNoHTMLEscaping(t *testing.T) {
	b, err := Canonical(String("<a&b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(b))
}

func TestCanonicalLineSeparatorsLiteral(t *testing.T) {
	b, err := Canonical(String("x\u2028y\u2029"))
	require.NoError(t, err)
	assert.Equal(t, "\"x\u2028y\u2029\"", string(b))
}

func TestCanonicalControlCharacters(t *testing.T) {
	b, err := Canonical(String("a\nb\x01\"\\"))
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\u0001\"\\"`, string(b))
}

func TestCanonicalNFC(t *testing.T) {
	// "e" + combining acute normalizes to U+00E9.
	decomposed, err := Canonical(String("e\u0301"))
	require.NoError(t, err)
	composed, err := Canonical(String("\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestCanonicalNested(t *testing.T) {
	v := Obj(P("list", Arr(Int(-1), Bool(false), Null{})), P("s", String("x")))
	b, err := Canonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"list":[-1,false,null],"s":"x"}`, string(b))
}

func TestDigestDeterministic(t *testing.T) {
	a := Obj(P("id", String("A")), P("hp", Int(3)))
	b := Obj(P("hp", Int(3)), P("id", String("A")))

	da, err := Digest(DomainElement, a)
	require.NoError(t, err)
	db, err := Digest(DomainElement, b)
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.Len(t, da, 64)
}

func TestDigestDomainSeparation(t *testing.T) {
	v := String("same")
	assert.NotEqual(t,
		MustDigest(DomainElement, v),
		MustDigest(DomainTable, v),
	)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `{"x":1}`, Format(Obj(P("x", Int(1)))))
	assert.Equal(t, `null`, Format(nil))
}
