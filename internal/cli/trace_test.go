package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worklets/internal/store"
	"github.com/roach88/worklets/internal/trace"
)

// seedTraceDB writes two sessions and returns the database path.
func seedTraceDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traces.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, store.Session{ID: "s1", Name: "first"}))
	require.NoError(t, st.WriteEvents(ctx, "s1", []trace.Event{
		{Seq: 1, Kind: trace.KindMutableCreate, Subject: "mutable:1"},
	}))
	require.NoError(t, st.CreateSession(ctx, store.Session{ID: "s2", Name: "second"}))
	require.NoError(t, st.WriteEvents(ctx, "s2", []trace.Event{
		{Seq: 1, Kind: trace.KindMutableCreate, Subject: "mutable:1"},
		{Seq: 2, Kind: trace.KindEvent, Subject: "onScroll", Data: map[string]any{"timestamp": 20}},
		{Seq: 3, Kind: trace.KindFrame, Subject: "frame", Data: map[string]any{"timestamp": 32}},
	}))
	return path
}

func runTraceCmd(t *testing.T, format string, verbose bool, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format, Verbose: verbose})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceCommandRequiresDB(t *testing.T) {
	_, err := runTraceCmd(t, "text", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestTraceCommandLatestSession(t *testing.T) {
	db := seedTraceDB(t)

	out, err := runTraceCmd(t, "text", true, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Session: s2 (second)")
	assert.Contains(t, out, "[2] event onScroll")
	assert.Contains(t, out, `{"timestamp":20}`)
	assert.Contains(t, out, "Total Events: 3")
}

func TestTraceCommandKindFilter(t *testing.T) {
	db := seedTraceDB(t)

	out, err := runTraceCmd(t, "json", false, "--db", db, "--session", "s2", "--kind", "frame")
	require.NoError(t, err)

	var resp struct {
		Status  string      `json:"status"`
		Session string      `json:"session"`
		Data    TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "s2", resp.Session)
	assert.Equal(t, 3, resp.Data.Stats.TotalEvents)
	assert.Equal(t, 1, resp.Data.Stats.Shown)
	require.Len(t, resp.Data.Timeline, 1)
	assert.Equal(t, trace.KindFrame, resp.Data.Timeline[0].Kind)
	assert.Equal(t, map[string]int{"frame": 1}, resp.Data.Stats.ByKind)
}

func TestTraceCommandUnknownSession(t *testing.T) {
	db := seedTraceDB(t)

	_, err := runTraceCmd(t, "text", false, "--db", db, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "session not found: nope")
}

func TestTraceCommandEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	_, err := runTraceCmd(t, "text", false, "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sessions in database")

	out, err := runTraceCmd(t, "text", false, "--db", db, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found.")
}

func TestTraceCommandList(t *testing.T) {
	db := seedTraceDB(t)

	out, err := runTraceCmd(t, "json", false, "--db", db, "--list")
	require.NoError(t, err)

	var resp struct {
		Data []SessionSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []SessionSummary{
		{ID: "s1", Name: "first", Events: 1},
		{ID: "s2", Name: "second", Events: 3},
	}, resp.Data)
}
