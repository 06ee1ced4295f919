package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyFixtures copies the harness scenarios (and, optionally, their golden
// files) into a temp dir so --update never touches testdata.
func copyFixtures(t *testing.T, withGolden bool) string {
	t.Helper()
	dir := t.TempDir()
	for _, src := range []string{scrollScenario, layoutScenario} {
		data, err := os.ReadFile(src)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.Base(src)), data, 0o644))
	}
	if withGolden {
		data, err := os.ReadFile("../harness/testdata/golden/scroll_drives_width.golden")
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "scroll_drives_width.golden"), data, 0o644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestTestCommandPassesWithGolden(t *testing.T) {
	dir := copyFixtures(t, true)

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.NoError(t, err, buf.String())
	assert.Contains(t, buf.String(), "✓ scroll_drives_width")
	assert.Contains(t, buf.String(), "✓ layout_observation")
	assert.Contains(t, buf.String(), "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := copyFixtures(t, false)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "scroll_drives_width.golden"), []byte("{}\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ scroll_drives_width")
	assert.Contains(t, buf.String(), "trace does not match golden file")
	assert.Contains(t, buf.String(), "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandUpdate(t *testing.T) {
	dir := copyFixtures(t, false)
	goldenDir := filepath.Join(t.TempDir(), "out")

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--update", "--golden", goldenDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ scroll_drives_width (golden updated)")

	want, err := os.ReadFile("../harness/testdata/golden/scroll_drives_width.golden")
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(goldenDir, "scroll_drives_width.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	assert.FileExists(t, filepath.Join(goldenDir, "layout_observation.golden"))
}

func TestTestCommandFilter(t *testing.T) {
	dir := copyFixtures(t, true)

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--filter", "scroll*"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "layout_observation")
	assert.Contains(t, buf.String(), "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandJSON(t *testing.T) {
	dir := copyFixtures(t, true)

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "layout_observation", resp.Data.Scenarios[0].Name)
}

func TestFindScenarioFilesInvalidFilter(t *testing.T) {
	_, err := findScenarioFiles(scenariosDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
