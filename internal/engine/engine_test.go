package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairloop/internal/logging"
	"pairloop/internal/state"
	"pairloop/internal/workflow"
)

func promptsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "prompts")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("prompt"), 0644))
	}
	return dir
}

func contextFor(t *testing.T, wfName string, reviewEveryN int, dir string) RouterContext {
	t.Helper()
	wf, err := workflow.Get(wfName, reviewEveryN)
	require.NoError(t, err)
	return RouterContext{PromptsDir: dir, Workflow: wf}
}

// recordingExec records executed prompt names and returns scripted codes.
type recordingExec struct {
	executed []string
	codes    map[string]int
	err      error
}

func (r *recordingExec) exec(promptPath string) (int, error) {
	name := filepath.Base(promptPath)
	r.executed = append(r.executed, name)
	if r.err != nil {
		return 0, r.err
	}
	return r.codes[name], nil
}

func newIteration(ctx RouterContext, exec *recordingExec, persisted *[]state.OrchestrationState) Iteration {
	return Iteration{
		SupervisorCtx:    ctx,
		EngineerCtx:      ctx,
		SupervisorExec:   exec.exec,
		EngineerExec:     exec.exec,
		SupervisorLogger: logging.Nop{},
		EngineerLogger:   logging.Nop{},
		Persist: func(st *state.OrchestrationState) error {
			*persisted = append(*persisted, *st)
			return nil
		},
		Head: func() string { return "abc1234" },
	}
}

func TestIteration_TwoSuccessfulTurns(t *testing.T) {
	dir := promptsDir(t, "supervisor.md", "main.md")
	ctx := contextFor(t, "standard", 0, dir)
	exec := &recordingExec{}
	var persisted []state.OrchestrationState

	st := state.New()
	rc := newIteration(ctx, exec, &persisted).Run(st)

	assert.Equal(t, 0, rc)
	assert.Equal(t, []string{"supervisor.md", "main.md"}, exec.executed)
	assert.Equal(t, 2, st.StepIndex)
	assert.Equal(t, 3, st.Iteration)
	assert.Equal(t, state.StatusComplete, st.Status)
	assert.Equal(t, "main.md", st.LastPrompt)
	assert.Equal(t, "abc1234", st.GalphCommit)
	assert.Equal(t, "abc1234", st.RalphCommit)

	// The intermediate stamp after the supervisor turn must be durable
	// before the engineer turn starts.
	var sawWaiting bool
	for _, snap := range persisted {
		if snap.Status == state.StatusWaitingNext && snap.StepIndex == 1 {
			sawWaiting = true
		}
	}
	assert.True(t, sawWaiting)
}

func TestIteration_SupervisorFailureStopsCycle(t *testing.T) {
	dir := promptsDir(t, "supervisor.md", "main.md")
	ctx := contextFor(t, "standard", 0, dir)
	exec := &recordingExec{codes: map[string]int{"supervisor.md": 3}}
	var persisted []state.OrchestrationState

	st := state.New()
	rc := newIteration(ctx, exec, &persisted).Run(st)

	assert.Equal(t, 3, rc)
	assert.Equal(t, []string{"supervisor.md"}, exec.executed)
	assert.Equal(t, 0, st.StepIndex)
	assert.Equal(t, state.StatusFailed, st.Status)
}

func TestIteration_EngineerFailureKeepsSupervisorAdvance(t *testing.T) {
	dir := promptsDir(t, "supervisor.md", "main.md")
	ctx := contextFor(t, "standard", 0, dir)
	exec := &recordingExec{codes: map[string]int{"main.md": 5}}
	var persisted []state.OrchestrationState

	st := state.New()
	rc := newIteration(ctx, exec, &persisted).Run(st)

	assert.Equal(t, 5, rc)
	assert.Equal(t, []string{"supervisor.md", "main.md"}, exec.executed)
	assert.Equal(t, 1, st.StepIndex)
	assert.Equal(t, state.StatusFailed, st.Status)
}

func TestIteration_ResumeAtEngineerStep(t *testing.T) {
	dir := promptsDir(t, "supervisor.md", "main.md")
	ctx := contextFor(t, "standard", 0, dir)
	exec := &recordingExec{}
	var persisted []state.OrchestrationState

	// A prior run advanced past the supervisor turn and died before the
	// engineer's completed; only the engineer's half is pending. The
	// resumed turn must run under the engineer role, not replay the
	// supervisor's.
	st := state.New()
	st.StepIndex = 1
	st.Iteration = 2
	st.Status = state.StatusFailed

	rc := newIteration(ctx, exec, &persisted).Run(st)

	assert.Equal(t, 0, rc)
	assert.Equal(t, []string{"main.md"}, exec.executed)
	assert.Equal(t, 2, st.StepIndex)
	assert.Equal(t, 3, st.Iteration)
	assert.Equal(t, state.StatusComplete, st.Status)
	assert.Equal(t, "abc1234", st.RalphCommit)
	assert.Empty(t, st.GalphCommit)
}

func TestIteration_MissingPromptIsException(t *testing.T) {
	dir := promptsDir(t, "supervisor.md") // main.md absent
	ctx := contextFor(t, "standard", 0, dir)
	exec := &recordingExec{}
	var persisted []state.OrchestrationState

	st := state.New()
	rc := newIteration(ctx, exec, &persisted).Run(st)

	// The supervisor turn succeeds; the engineer selection fails at the
	// exception boundary.
	assert.Equal(t, ExitException, rc)
	assert.Equal(t, []string{"supervisor.md"}, exec.executed)
	assert.Equal(t, state.StatusFailed, st.Status)
}

func TestIteration_ExecutorErrorIsException(t *testing.T) {
	dir := promptsDir(t, "supervisor.md", "main.md")
	ctx := contextFor(t, "standard", 0, dir)
	exec := &recordingExec{err: errors.New("binary not found")}
	var persisted []state.OrchestrationState

	st := state.New()
	rc := newIteration(ctx, exec, &persisted).Run(st)

	assert.Equal(t, ExitException, rc)
	assert.Equal(t, state.StatusFailed, st.Status)
	assert.Equal(t, 0, st.StepIndex)
}

func TestIteration_ReviewCadenceCycle(t *testing.T) {
	dir := promptsDir(t, "supervisor.md", "main.md", "reviewer.md")
	ctx := contextFor(t, "review_cadence", 2, dir)
	exec := &recordingExec{}
	var persisted []state.OrchestrationState

	// Second cycle of an every-2-cycles cadence: both turns go to the
	// reviewer prompt.
	st := state.New()
	st.StepIndex = 2
	st.Iteration = 3

	rc := newIteration(ctx, exec, &persisted).Run(st)

	assert.Equal(t, 0, rc)
	assert.Equal(t, []string{"reviewer.md", "reviewer.md"}, exec.executed)
	assert.Equal(t, 4, st.StepIndex)
	assert.Equal(t, state.StatusComplete, st.Status)
}

func TestSelectPrompt_RouterOverride(t *testing.T) {
	dir := promptsDir(t, "supervisor.md", "main.md", "reviewer.md")
	wf, err := workflow.Get("review_cadence", 0)
	require.NoError(t, err)

	ctx := RouterContext{
		PromptsDir:   dir,
		Workflow:     wf,
		UseRouter:    true,
		RouterOutput: "reviewer\n",
	}
	var log logging.Capture

	st := state.New()
	selection, err := SelectPrompt(st, ctx, &log)
	require.NoError(t, err)
	assert.Equal(t, "reviewer.md", selection.SelectedPrompt)
	assert.Equal(t, filepath.Join(dir, "reviewer.md"), selection.PromptPath)
	require.Len(t, log.Lines, 1)
	assert.Contains(t, log.Lines[0], "source=router")
}

func TestRunTurn_RecordsExpectedStep(t *testing.T) {
	dir := promptsDir(t, "supervisor.md", "main.md")
	ctx := contextFor(t, "standard", 0, dir)
	exec := &recordingExec{}

	st := state.New()
	result, err := RunTurn(RoleSupervisor, st, ctx, exec.exec, logging.Nop{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "supervisor.md", st.ExpectedStep)
}
