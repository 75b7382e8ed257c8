package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hey-Diga/imploid/internal/model"
)

func newTestState(issue int, p model.ProcessorName, status model.ProcessStatus, agentIndex int) model.IssueState {
	return model.IssueState{
		IssueNumber:   issue,
		ProcessorName: p,
		Status:        status,
		Branch:        "issue-1-claude-20260101000000",
		StartTime:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		AgentIndex:    agentIndex,
		RepoName:      "owner/repo",
	}
}

func TestSaveAllThenInitialize_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	s.Set(newTestState(42, model.ProcessorClaude, model.StatusRunning, 0))
	s.Set(newTestState(43, model.ProcessorCodex, model.StatusNeedsInput, 1))
	require.NoError(t, s.SaveAll())

	fresh := New(path)
	require.NoError(t, fresh.Initialize(nil))

	got, ok := fresh.Get(42, model.ProcessorClaude)
	require.True(t, ok)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.Equal(t, 0, got.AgentIndex)

	got2, ok := fresh.Get(43, model.ProcessorCodex)
	require.True(t, ok)
	assert.Equal(t, model.StatusNeedsInput, got2.Status)
}

func TestInitialize_MissingFileIsBenign(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	s := New(path)
	assert.NoError(t, s.Initialize(nil))
}

func TestInitialize_LegacyBareIntegerKeyIsClaude(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	raw := map[string]any{
		"7": map[string]any{
			"status":      "running",
			"branch":      "issue-7",
			"start_time":  "2026-01-01T00:00:00Z",
			"agent_index": 0,
		},
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s := New(path)
	require.NoError(t, s.Initialize(nil))

	got, ok := s.Get(7, model.ProcessorClaude)
	require.True(t, ok)
	assert.Equal(t, model.StatusRunning, got.Status)
}

func TestInitialize_SkipsCorruptEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	raw := map[string]json.RawMessage{
		"1:claude": json.RawMessage(`{"status":"bogus-status","branch":"x","agent_index":0}`),
		"2:claude": json.RawMessage(`{"status":"running","branch":"y","agent_index":0,"start_time":"2026-01-01T00:00:00Z"}`),
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var warnings int
	s := New(path)
	require.NoError(t, s.Initialize(func(string, ...any) { warnings++ }))

	_, ok := s.Get(1, model.ProcessorClaude)
	assert.False(t, ok)
	_, ok = s.Get(2, model.ProcessorClaude)
	assert.True(t, ok)
	assert.Equal(t, 1, warnings)
}

func TestActiveIssueNumbers_OnlyCountsRunningAndNeedsInput(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	s.Set(newTestState(1, model.ProcessorClaude, model.StatusRunning, 0))
	s.Set(newTestState(2, model.ProcessorClaude, model.StatusCompleted, 1))
	s.Set(newTestState(3, model.ProcessorCodex, model.StatusNeedsInput, 0))

	active := s.ActiveIssueNumbers()
	assert.True(t, active[1])
	assert.False(t, active[2])
	assert.True(t, active[3])
}

func TestAvailableAgentIndex_SkipsOccupiedSlots(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	s.Set(newTestState(1, model.ProcessorClaude, model.StatusRunning, 0))
	s.Set(newTestState(2, model.ProcessorClaude, model.StatusRunning, 2))

	idx := s.AvailableAgentIndex(model.ProcessorClaude, 3)
	assert.Equal(t, 1, idx)
}

func TestAvailableAgentIndex_ReturnsNegativeOneWhenFull(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	s.Set(newTestState(1, model.ProcessorClaude, model.StatusRunning, 0))
	s.Set(newTestState(2, model.ProcessorClaude, model.StatusRunning, 1))

	idx := s.AvailableAgentIndex(model.ProcessorClaude, 2)
	assert.Equal(t, -1, idx)
}

func TestRemove(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	s.Set(newTestState(1, model.ProcessorClaude, model.StatusCompleted, 0))
	s.Remove(1, model.ProcessorClaude)
	_, ok := s.Get(1, model.ProcessorClaude)
	assert.False(t, ok)
}

func TestSaveAll_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	s := New(path)
	s.Set(newTestState(1, model.ProcessorClaude, model.StatusRunning, 0))
	require.NoError(t, s.SaveAll())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
