package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/store"
	"github.com/roach88/simkernel/internal/value"
)

func decodeRunResult(t *testing.T, stdout string) RunResult {
	t.Helper()
	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	return resp.Data
}

// findChild walks a descriptor tree by child names.
func findChild(t *testing.T, d content.Descriptor, names ...string) content.Descriptor {
	t.Helper()
	for _, name := range names {
		found := false
		for _, c := range d.Children {
			if c.Name == name {
				d, found = c, true
				break
			}
		}
		require.True(t, found, "child %q not found under %q", name, d.Name)
	}
	return d
}

func TestRun_TicksJSON(t *testing.T) {
	stdout, _, err := execute(t, "run", gardenDir, "--ticks", "3", "--format", "json", "--run-id", "r1")
	require.NoError(t, err)

	res := decodeRunResult(t, stdout)
	assert.Equal(t, "r1", res.RunID)
	assert.Equal(t, int64(3), res.Ticks)
	assert.Equal(t, 5, res.Simulants, "Game, Garden, Bed, Rose and Shed")
	assert.Equal(t, 1, res.Submissions, "only the rose is visual")
	assert.Zero(t, res.Events, "nothing is recorded without --db")
}

func TestRun_TextOutput(t *testing.T) {
	stdout, _, err := execute(t, "run", gardenDir, "--ticks", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Ran 2 tick(s): 5 simulant(s), 1 submission(s) in the last frame")
	assert.NotContains(t, stdout, "Recorded")
}

func TestRun_RecordsEvents(t *testing.T) {
	db := filepath.Join(t.TempDir(), "simk.db")

	stdout, _, err := execute(t, "run", gardenDir, "--ticks", "2", "--db", db, "--run-id", "garden-1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "as run garden-1")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "garden-1", runs[0].ID)
	assert.Equal(t, gardenDir, runs[0].Source)

	events, err := st.ReadEvents(context.Background(), "garden-1", store.EventFilter{Name: "Change/Growth"})
	require.NoError(t, err)
	assert.Len(t, events, 2, "one growth change per tick")
}

func TestRun_SaveRequiresDatabase(t *testing.T) {
	_, _, err := execute(t, "run", gardenDir, "--save", "spring")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--save requires --db")
}

func TestRun_SaveAndRestore(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "simk.db")
	out := filepath.Join(dir, "garden.simz")

	stdout, _, err := execute(t, "run", gardenDir, "--ticks", "2", "--db", db, "--save", "spring")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Saved snapshot "spring"`)

	stdout, _, err = execute(t, "run", gardenDir, "--ticks", "3", "--db", db, "--restore", "spring", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote subtree to "+out)

	d, err := store.ReadSimzFile(out)
	require.NoError(t, err)
	rose := findChild(t, d, "Garden", "Bed", "Rose")
	assert.Equal(t, value.Int(5), rose.Properties["Growth"], "two ticks before the snapshot, three after")
	assert.Equal(t, value.String("rose"), rose.Properties["Label"])

	keys, err := func() ([]string, error) {
		st, err := store.Open(db)
		require.NoError(t, err)
		defer st.Close()
		return st.SnapshotKeys(context.Background())
	}()
	require.NoError(t, err)
	assert.Equal(t, []string{"spring"}, keys)
}

func TestRun_RestoreFromFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "garden.yaml")

	_, _, err := execute(t, "run", gardenDir, "--ticks", "4", "--out", out)
	require.NoError(t, err)

	stdout, _, err := execute(t, "run", gardenDir, "--ticks", "1", "--restore", out, "--format", "json")
	require.NoError(t, err)
	res := decodeRunResult(t, stdout)
	assert.Equal(t, 5, res.Simulants)

	reloaded := filepath.Join(t.TempDir(), "again.json")
	_, _, err = execute(t, "run", gardenDir, "--ticks", "1", "--restore", out, "--out", reloaded)
	require.NoError(t, err)

	d, err := store.LoadDescriptorFile(reloaded)
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), findChild(t, d, "Garden", "Bed", "Rose").Properties["Growth"])
}

func TestRun_RestoreKeyWithoutDatabase(t *testing.T) {
	_, _, err := execute(t, "run", gardenDir, "--restore", "spring")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "requires --db")
}

func TestRun_RestoreUnknownKey(t *testing.T) {
	db := filepath.Join(t.TempDir(), "simk.db")
	_, _, err := execute(t, "run", gardenDir, "--db", db, "--restore", "winter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load restore source")
}

func TestRun_SelectedRoots(t *testing.T) {
	stdout, _, err := execute(t, "run", gardenDir, "--root", "Shed", "--format", "json")
	require.NoError(t, err)
	res := decodeRunResult(t, stdout)
	assert.Equal(t, 2, res.Simulants, "Game and Shed")
	assert.Zero(t, res.Submissions)

	_, _, err = execute(t, "run", gardenDir, "--root", "Nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `content root "Nope" not found`)
}

func TestRun_InvalidContent(t *testing.T) {
	dir := writeCUE(t, `package bad

dispatcher: Bad: properties: Speed: float
`)
	_, _, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to compile content")
}

func TestRun_EnvironmentConfig(t *testing.T) {
	t.Setenv("SIMK_TICKS", "4")

	stdout, _, err := execute(t, "run", gardenDir, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, int64(4), decodeRunResult(t, stdout).Ticks)

	stdout, _, err = execute(t, "run", gardenDir, "--ticks", "2", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, int64(2), decodeRunResult(t, stdout).Ticks, "flag overrides environment")
}

func TestRun_InvalidEnvironment(t *testing.T) {
	t.Setenv("SIMK_MAX_PUBLISH_DEPTH", "0")

	_, _, err := execute(t, "run", gardenDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRun_ViewServesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	stdout := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", gardenDir, "--ticks", "2", "--view", "127.0.0.1:0"})

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, stdout.String(), "Serving viewers at ws://127.0.0.1:")
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded, "run returns only once the context is done")
}

func TestIsDescriptorFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"garden.simz", true},
		{"garden.json", true},
		{"garden.YAML", true},
		{"dir/garden.yml", true},
		{"spring", false},
		{"level-1.v2", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isDescriptorFile(tt.path))
		})
	}
}
