package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

func compileDispatcherString(t *testing.T, src, path string) (*world.SchemaDispatcher, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileDispatcher(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileDispatcherBasic(t *testing.T) {
	d, err := compileDispatcherString(t, `
		dispatcher: Counter: {
			properties: {
				Clicks: int | *0
				Label:  string
				Tags:   [...string] | *["a"]
			}
			persistent: ["Clicks"]
			read_only: ["Label"]

			signals: {
				Click: [{op: "add", property: "Clicks", value: 1}]
				Reset: [{op: "set", property: "Clicks", value: 0}]
			}
			on_update: [{op: "publish", event: "Tick", target: "../Hud"}]
			visual: true
		}
	`, "dispatcher.Counter")
	require.NoError(t, err)

	assert.Equal(t, "Counter", d.Name())
	require.Len(t, d.Props, 3)
	assert.Equal(t, world.PropertyDefinition{
		Name: "Clicks", Type: value.TypeInt, Default: value.Int(0), Persistent: true,
	}, d.Props[0])
	assert.Equal(t, world.PropertyDefinition{
		Name: "Label", Type: value.TypeString, ReadOnly: true,
	}, d.Props[1])
	assert.Equal(t, value.Arr(value.String("a")), d.Props[2].Default)

	require.Len(t, d.Signals, 2)
	assert.Equal(t, []world.Effect{{Op: world.EffectAdd, Property: "Clicks", Value: value.Int(1)}}, d.Signals["Click"])
	assert.Equal(t, []world.Effect{{Op: world.EffectPublish, Event: "Tick", Target: "../Hud"}}, d.OnUpdate)
	assert.True(t, d.Visual)
}

func TestCompileDispatcherPropertyTypes(t *testing.T) {
	d, err := compileDispatcherString(t, `
		dispatcher: T: properties: {
			S: string
			I: int
			B: bool
			A: [...]
			O: {...}
			N: null
			X: _
		}
	`, "dispatcher.T")
	require.NoError(t, err)

	want := []value.Type{
		value.TypeString, value.TypeInt, value.TypeBool,
		value.TypeArray, value.TypeObject, value.TypeNull, value.TypeAny,
	}
	require.Len(t, d.Props, len(want))
	for i, typ := range want {
		assert.Equal(t, typ, d.Props[i].Type, d.Props[i].Name)
	}
}

func TestCompileDispatcherConcreteValueIsDefault(t *testing.T) {
	d, err := compileDispatcherString(t, `dispatcher: T: properties: Title: "hello"`, "dispatcher.T")
	require.NoError(t, err)
	require.Len(t, d.Props, 1)
	assert.Equal(t, value.TypeString, d.Props[0].Type)
	assert.Equal(t, value.String("hello"), d.Props[0].Default)
}

func TestCompileDispatcherRejectsFloat(t *testing.T) {
	_, err := compileDispatcherString(t, `dispatcher: T: properties: Speed: float`, "dispatcher.T")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestCompileDispatcherRejectsNumber(t *testing.T) {
	_, err := compileDispatcherString(t, `dispatcher: T: properties: Speed: number`, "dispatcher.T")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")
}

func TestCompileDispatcherRejectsFloatEffectValue(t *testing.T) {
	_, err := compileDispatcherString(t, `
		dispatcher: T: {
			properties: N: int
			signals: Bump: [{op: "set", property: "N", value: 1.5}]
		}
	`, "dispatcher.T")
	require.Error(t, err)
}

func TestCompileDispatcherRejectsIntrinsic(t *testing.T) {
	_, err := compileDispatcherString(t, `dispatcher: T: properties: Enabled: bool`, "dispatcher.T")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intrinsic")
}

func TestCompileDispatcherUnknownFlaggedProperty(t *testing.T) {
	_, err := compileDispatcherString(t, `
		dispatcher: T: {
			properties: N: int
			persistent: ["M"]
		}
	`, "dispatcher.T")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"M" is not a declared property`)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "persistent", ce.Field)
}

func TestCompileDispatcherEffectWithoutOp(t *testing.T) {
	_, err := compileDispatcherString(t, `
		dispatcher: T: signals: Go: [{property: "N"}]
	`, "dispatcher.T")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signals.Go[0].op")
}

func TestCompileDispatcherTableEffect(t *testing.T) {
	d, err := compileDispatcherString(t, `
		dispatcher: Monster: {
			properties: Reward: int | *0
			signals: Kill: [{op: "set", property: "Reward", table: "balance", key: "gold_per_kill"}]
		}
	`, "dispatcher.Monster")
	require.NoError(t, err)
	assert.Equal(t, []world.Effect{{
		Op: world.EffectSet, Property: "Reward", Table: "balance", Key: "gold_per_kill",
	}}, d.Signals["Kill"])
}

func TestCompileDispatcherQuotedLabel(t *testing.T) {
	d, err := compileDispatcherString(t, `dispatcher: "my-label": visual: false`, `dispatcher."my-label"`)
	require.NoError(t, err)
	assert.Equal(t, "my-label", d.Name())
}

func TestCompileDispatcherRunsInWorld(t *testing.T) {
	d, err := compileDispatcherString(t, `
		dispatcher: Counter: {
			properties: Clicks: int | *0
			signals: Click: [{op: "add", property: "Clicks", value: 2}]
		}
	`, "dispatcher.Counter")
	require.NoError(t, err)

	w := world.MustNew(world.WithLogger(world.NewDiscardLogger()))
	require.NoError(t, w.RegisterDispatcher(d))
	screen, err := w.Create(world.KindScreen, world.GameAddress, "Main", nil, nil)
	require.NoError(t, err)
	sim, err := w.Create(world.KindLayer, screen.Address, "Btn", d, nil)
	require.NoError(t, err)

	require.NoError(t, w.Signal(sim.Address, value.String("Click")))
	n, err := w.GetInt(sim.Address, "Clicks")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCompileErrorFormat(t *testing.T) {
	e := &CompileError{Field: "properties.X", Message: "bad"}
	assert.Equal(t, "properties.X: bad", e.Error())
}

func TestFormatCUEErrorCarriesPosition(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`x: int & "s"`, cue.Filename("bad.cue"))
	err := formatCUEError(v.Validate())
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "bad.cue")
}
