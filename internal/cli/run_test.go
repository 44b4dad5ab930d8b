package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formlink/internal/journal"
)

func TestRun_PrintsSnapshot(t *testing.T) {
	out, _, err := execute(t, "run", "testdata/scenarios/courier.yaml")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "✓ courier", lines[0])

	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &snap))
	assert.Equal(t, "shipping", snap["formId"])
	assert.Equal(t, map[string]any{"method": "courier"}, snap["values"])
}

func TestRun_JSON(t *testing.T) {
	out, _, err := execute(t, "run", "testdata/scenarios/courier.yaml", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "courier", resp.Data.Scenario)
	assert.Contains(t, string(resp.Data.Snapshot), `"scenario":"courier"`)
}

func TestRun_FailingScenario(t *testing.T) {
	out, _, err := execute(t, "run", "testdata/failing/wrong.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "Assertion failed: value")
}

func TestRun_MissingScenario(t *testing.T) {
	out, _, err := execute(t, "run", "testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E301]")
}

func TestRun_WritesJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	_, _, err := execute(t, "run", "testdata/scenarios/courier.yaml", "--journal", db)
	require.NoError(t, err)

	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()

	forms, err := j.Forms(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"shipping"}, forms)

	entries, err := j.Events(t.Context(), "shipping")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "method", entries[0].Path)
}
