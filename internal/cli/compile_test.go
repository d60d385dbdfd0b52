package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/compiler"
	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/value"
)

func wrap(prefix string, err error) error {
	return fmt.Errorf("%s: %w", prefix, err)
}

func TestCompileValidContent(t *testing.T) {
	out, _, err := execute(t, "compile", gardenDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 1 dispatcher(s), 2 content root(s)")
	assert.Contains(t, out, "Plant: 2 property(s), 2 signal(s)")
	assert.Contains(t, out, "Garden (Screen): 3 simulant(s)")
	assert.Contains(t, out, "Shed (Screen): 1 simulant(s)")
}

func TestCompileValidContentJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "compile", gardenDir)
	require.NoError(t, err)

	var resp struct {
		Status string
		Data   struct {
			Dispatchers []struct {
				Name string `json:"name"`
			} `json:"dispatchers"`
			Content []struct {
				Name string `json:"name"`
			} `json:"content"`
		}
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Dispatchers, 1)
	assert.Equal(t, "Plant", resp.Data.Dispatchers[0].Name)
	require.Len(t, resp.Data.Content, 2)
	assert.Equal(t, "Garden", resp.Data.Content[0].Name)
	assert.Equal(t, "Shed", resp.Data.Content[1].Name)
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "compiled.json")

	out, _, err := execute(t, "compile", gardenDir, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote program to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)

	var prog struct {
		Content []content.Descriptor `json:"content"`
	}
	require.NoError(t, json.Unmarshal(data, &prog))
	require.Len(t, prog.Content, 2)
	rose := prog.Content[0].Children[0].Children[0]
	assert.Equal(t, "Rose", rose.Name)
	assert.Equal(t, "Plant", rose.Dispatcher)
	assert.Equal(t, value.String("rose"), rose.Properties["Label"])
}

func TestCompileNonExistentDirectory(t *testing.T) {
	out, _, err := execute(t, "compile", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileEmptyDirectory(t *testing.T) {
	out, _, err := execute(t, "compile", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestCompileSyntaxError(t *testing.T) {
	dir := writeCUE(t, `package broken

dispatcher: Plant: {
`)
	out, _, err := execute(t, "compile", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeLoadFailed)
	assert.Contains(t, out, "loading CUE files")
}

func TestCompileFloatRejection(t *testing.T) {
	dir := writeCUE(t, `package floats

dispatcher: Bad: properties: Speed: float
`)
	out, _, err := execute(t, "compile", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compilation failed with 1 error(s)")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, out, ErrCodeInvalidKind)
	assert.Contains(t, out, "dispatcher.Bad: type: float types are forbidden")
}

func TestCompileCollectsAllErrorsJSON(t *testing.T) {
	dir := writeCUE(t, `package many

dispatcher: Bad: properties: Speed: float
dispatcher: Worse: signals: Go: [{property: "X"}]
content: Broken: handlers: [{signal: "Go"}]
`)
	out, _, err := execute(t, "--format", "json", "compile", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compilation failed with 3 error(s)")

	var resp struct {
		Status string
		Error  CLIError
		Data   []CLIError
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, ErrCodeInvalidKind, resp.Error.Code)
	assert.Equal(t, ErrCodeInvalidEffect, resp.Data[1].Code)
	assert.Contains(t, resp.Data[1].Message, "dispatcher.Worse: signals.Go[0].op")
	assert.Equal(t, ErrCodeInvalidHandler, resp.Data[2].Code)
	assert.Contains(t, resp.Data[2].Message, "content.Broken: handlers[0].event")
}

func TestCompileVerboseOutput(t *testing.T) {
	_, stderr, err := execute(t, "--verbose", "compile", gardenDir)
	require.NoError(t, err)

	assert.Contains(t, stderr, "Found 1 CUE file(s)")
	assert.Contains(t, stderr, "Compiling dispatcher: Plant")
	assert.Contains(t, stderr, "Compiling content: Garden")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for _, name := range []string{"a.cue", "sub/b.cue", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("package x\n"), 0o644))
	}

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.cue"),
		filepath.Join(dir, "sub", "b.cue"),
	}, files)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"properties.Speed", ErrCodeInvalidProperty},
		{"value", ErrCodeInvalidProperty},
		{"persistent", ErrCodeFlaggedProperty},
		{"read_only", ErrCodeFlaggedProperty},
		{"signals.Go[0].op", ErrCodeInvalidEffect},
		{"on_update[2].op", ErrCodeInvalidEffect},
		{"handlers[0].event", ErrCodeInvalidHandler},
		{"bindings.Health", ErrCodeInvalidBinding},
		{"streams[1].template", ErrCodeInvalidStream},
		{"type", ErrCodeInvalidKind},
		{"cue", ErrCodeBuildFailed},
		{"something", ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field))
		})
	}
}

func TestConvertCompileError(t *testing.T) {
	base := &compiler.CompileError{Field: "properties.Speed", Message: "bad"}

	t.Run("keeps_entry_prefix", func(t *testing.T) {
		err := convertCompileError(wrap("dispatcher.Car", base))
		assert.Equal(t, ErrCodeInvalidProperty, err.Code)
		assert.Equal(t, "dispatcher.Car: properties.Speed: bad", err.Message)
	})

	t.Run("bare", func(t *testing.T) {
		err := convertCompileError(base)
		assert.Equal(t, "properties.Speed: bad", err.Message)
	})

	t.Run("not_a_compile_error", func(t *testing.T) {
		err := convertCompileError(assert.AnError)
		assert.Equal(t, ErrCodeGeneric, err.Code)
	})
}

func TestAsLoadError(t *testing.T) {
	le := &LoadError{Code: ErrCodeNoFiles, Message: "no CUE files found in x"}
	assert.Same(t, le, asLoadError(fmt.Errorf("load: %w", le)))

	got := asLoadError(assert.AnError)
	assert.Equal(t, ErrCodeGeneric, got.Code)
	assert.Equal(t, assert.AnError.Error(), got.Message)
}

func TestCalculateStats(t *testing.T) {
	result, errs := LoadContent(gardenDir, LoadModeFailFast)
	require.Empty(t, errs)

	stats := calculateStats(result.Program)
	assert.Equal(t, CompilationStats{
		DispatcherCount: 1,
		RootCount:       2,
		SimulantCount:   4,
		PropertyCount:   2,
	}, stats)
}
