package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	st := New()

	assert.Equal(t, "standard", st.WorkflowName)
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, 1, st.Iteration)
	assert.Equal(t, StatusIdle, st.Status)
	assert.NotEmpty(t, st.LastUpdate)
	assert.NotEmpty(t, st.LeaseExpiresAt)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync", "state.json")

	st := New()
	st.WorkflowName = "review_cadence"
	st.StepIndex = 5
	st.Iteration = 6
	st.ExpectedStep = "main.md"
	st.Status = StatusWaitingNext
	st.GalphCommit = "abc1234"
	st.RalphCommit = "def5678"
	st.LastPrompt = "supervisor.md"

	require.NoError(t, st.Write(path))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, st.WorkflowName, got.WorkflowName)
	assert.Equal(t, st.StepIndex, got.StepIndex)
	assert.Equal(t, st.Iteration, got.Iteration)
	assert.Equal(t, st.ExpectedStep, got.ExpectedStep)
	assert.Equal(t, st.Status, got.Status)
	assert.Equal(t, st.GalphCommit, got.GalphCommit)
	assert.Equal(t, st.RalphCommit, got.RalphCommit)
	assert.Equal(t, st.LastPrompt, got.LastPrompt)
	assert.Equal(t, st.LastUpdate, got.LastUpdate)
	assert.Equal(t, st.LeaseExpiresAt, got.LeaseExpiresAt)
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, New().Write(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestRead_MissingFileReturnsDefaults(t *testing.T) {
	st := Read(filepath.Join(t.TempDir(), "nope.json"))

	assert.Equal(t, "standard", st.WorkflowName)
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestRead_MalformedFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	st := Read(path)
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, 1, st.Iteration)
}

func TestLoad_LegacyIterationOnly(t *testing.T) {
	// Older state files carried iteration without step_index.
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"iteration": 7, "status": "complete"}`), 0644))

	st, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, st.StepIndex)
	assert.Equal(t, 7, st.Iteration)
	assert.Equal(t, StatusComplete, st.Status)
}

func TestStamp_IncrementMaintainsInvariant(t *testing.T) {
	st := New()

	st.Stamp(StampUpdate{Status: StatusComplete, IncrementStep: true})
	assert.Equal(t, 1, st.StepIndex)
	assert.Equal(t, st.StepIndex+1, st.Iteration)

	st.Stamp(StampUpdate{Status: StatusComplete, IncrementStep: true})
	assert.Equal(t, 2, st.StepIndex)
	assert.Equal(t, st.StepIndex+1, st.Iteration)
}

func TestStamp_IdempotentWithoutIncrement(t *testing.T) {
	st := New()
	st.Stamp(StampUpdate{ExpectedStep: "main.md", Status: StatusFailed, RalphCommit: "abc1234"})

	before := *st
	st.Stamp(StampUpdate{ExpectedStep: "main.md", Status: StatusFailed, RalphCommit: "abc1234"})

	assert.Equal(t, before.StepIndex, st.StepIndex)
	assert.Equal(t, before.Iteration, st.Iteration)
	assert.Equal(t, before.ExpectedStep, st.ExpectedStep)
	assert.Equal(t, before.Status, st.Status)
	assert.Equal(t, before.RalphCommit, st.RalphCommit)
}

func TestStamp_RefreshesLease(t *testing.T) {
	st := New()
	st.LastUpdate = "2000-01-01T00:00:00Z"
	st.LeaseExpiresAt = "2000-01-01T00:10:00Z"

	st.Stamp(StampUpdate{Status: StatusRunning})

	assert.True(t, strings.Compare(st.LastUpdate, "2000-01-01T00:00:00Z") > 0)
	assert.True(t, strings.Compare(st.LeaseExpiresAt, st.LastUpdate) > 0)
}

func TestStatus_Validity(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusRunning, StatusWaitingNext, StatusComplete, StatusFailed} {
		assert.True(t, s.IsValid(), "status %q should be valid", s)
	}
	assert.False(t, Status("running-galph").IsValid())
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestCheckExitSignal(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		sig := CheckExitSignal(filepath.Join(dir, "absent.json"))
		assert.False(t, sig.Requested)
	})

	t.Run("malformed json ignored", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{{{"), 0644))
		sig := CheckExitSignal(path)
		assert.False(t, sig.Requested)
	})

	t.Run("exit flag with reason", func(t *testing.T) {
		path := filepath.Join(dir, "exit.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"exit": true, "exit_reason": "operator stop"}`), 0644))
		sig := CheckExitSignal(path)
		assert.True(t, sig.Requested)
		assert.Equal(t, "operator stop", sig.Reason)
	})

	t.Run("exit flag without reason", func(t *testing.T) {
		path := filepath.Join(dir, "exit2.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"exit": true}`), 0644))
		sig := CheckExitSignal(path)
		assert.True(t, sig.Requested)
		assert.Equal(t, "exit flag set", sig.Reason)
	})

	t.Run("exit false", func(t *testing.T) {
		path := filepath.Join(dir, "noexit.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"exit": false, "step_index": 3}`), 0644))
		assert.False(t, CheckExitSignal(path).Requested)
	})
}
