// Package engine sequences orchestration turns against the shared state file.
//
// A turn selects a prompt for the current step, hands it to an executor, and
// stamps the outcome into [state.OrchestrationState] before anything else
// happens. [RunIteration] composes a supervisor turn and an engineer turn
// into one full cycle; [Loop] repeats iterations with exit-signal checks and
// git synchronization around them.
package engine

import (
	"fmt"

	"pairloop/internal/logging"
	"pairloop/internal/router"
	"pairloop/internal/state"
	"pairloop/internal/workflow"
)

// Role names the two actors of the loop. The supervisor plans and reviews;
// the engineer implements.
type Role string

const (
	RoleSupervisor Role = "galph"
	RoleEngineer   Role = "ralph"
)

// ExitException is the distinguished return code for an exception caught at
// the turn boundary, as opposed to a non-zero child exit propagated verbatim.
const ExitException = 2

// PromptExecutor runs the agent CLI against a prompt file and returns the
// child's exit code. Any error is an execution failure distinct from a
// non-zero exit: a missing binary, an unopenable log.
type PromptExecutor func(promptPath string) (int, error)

// StateWriter persists a stamped state. The loop wires this to the atomic
// file write plus the git add/commit evidence commit.
type StateWriter func(st *state.OrchestrationState) error

// RouterContext carries everything prompt selection needs for one role.
type RouterContext struct {
	PromptsDir   string
	Workflow     *workflow.Workflow
	Allowlist    []string
	Mode         router.Mode
	RouterOutput string
	UseRouter    bool
}

// PromptSelection is the resolved prompt for one turn.
type PromptSelection struct {
	PromptPath     string
	SelectedPrompt string
	Decision       router.Decision
}

// TurnResult reports one executed turn.
type TurnResult struct {
	ExitCode       int
	PromptPath     string
	SelectedPrompt string
	Decision       router.Decision
}

// SelectPrompt resolves the prompt for the current step. Without the router
// it is pure workflow-table resolution; with it, the configured mode governs
// how the external router output interacts with the table.
func SelectPrompt(st *state.OrchestrationState, ctx RouterContext, logger logging.Logger) (PromptSelection, error) {
	var decision router.Decision
	var err error
	if ctx.UseRouter {
		decision, err = router.SelectPromptWithMode(ctx.Workflow, st.StepIndex, ctx.Allowlist, ctx.PromptsDir, ctx.Mode, ctx.RouterOutput)
	} else {
		decision, err = router.DeterministicRoute(ctx.Workflow, st.StepIndex, nil, ctx.PromptsDir)
	}
	if err != nil {
		return PromptSelection{}, err
	}

	logger.Logf("[router] step_index=%d source=%s selected=%s (%s)",
		st.StepIndex, decision.Source, decision.SelectedPrompt, decision.Reason)

	return PromptSelection{
		PromptPath:     router.ResolvePromptPath(decision.SelectedPrompt, ctx.PromptsDir),
		SelectedPrompt: decision.SelectedPrompt,
		Decision:       decision,
	}, nil
}

// RunTurn executes one role's turn: select the prompt, record it as the
// expected step, and run the executor. The caller stamps and persists the
// outcome; RunTurn itself mutates only ExpectedStep.
func RunTurn(role Role, st *state.OrchestrationState, ctx RouterContext, executor PromptExecutor, logger logging.Logger) (TurnResult, error) {
	selection, err := SelectPrompt(st, ctx, logger)
	if err != nil {
		return TurnResult{}, fmt.Errorf("%s prompt selection: %w", role, err)
	}

	st.ExpectedStep = selection.SelectedPrompt

	rc, err := executor(selection.PromptPath)
	if err != nil {
		return TurnResult{}, fmt.Errorf("%s turn execution: %w", role, err)
	}
	return TurnResult{
		ExitCode:       rc,
		PromptPath:     selection.PromptPath,
		SelectedPrompt: selection.SelectedPrompt,
		Decision:       selection.Decision,
	}, nil
}

// Iteration bundles the collaborators for one supervisor+engineer cycle.
type Iteration struct {
	SupervisorCtx RouterContext
	EngineerCtx   RouterContext

	SupervisorExec PromptExecutor
	EngineerExec   PromptExecutor

	SupervisorLogger logging.Logger
	EngineerLogger   logging.Logger

	// Persist writes the stamped state durably before the next turn starts.
	Persist StateWriter

	// Head returns the current commit hash for evidence stamping. May
	// return "" outside a repository.
	Head func() string
}

// Run executes the rest of the current cycle. A cycle starting at its first
// step runs the supervisor's turn, then, only on success, the engineer's. A
// state resumed at the engineer's pending step runs only the engineer's
// turn, so the supervisor's half is never replayed under the wrong role.
// Each turn's outcome is stamped and persisted before the next begins.
// Exceptions at either turn boundary are converted into a failed stamp plus
// [ExitException]; non-zero child exits propagate verbatim.
func (it Iteration) Run(st *state.OrchestrationState) int {
	if it.pendingRole(st) == RoleSupervisor {
		if rc := it.turn(RoleSupervisor, st); rc != 0 {
			return rc
		}
	}
	return it.turn(RoleEngineer, st)
}

// pendingRole maps the pending step to its owner: the supervisor opens each
// cycle, the engineer closes it.
func (it Iteration) pendingRole(st *state.OrchestrationState) Role {
	wf := it.SupervisorCtx.Workflow
	if wf == nil || wf.CycleLen() == 0 || st.StepIndex%wf.CycleLen() == 0 {
		return RoleSupervisor
	}
	return RoleEngineer
}

func (it Iteration) turn(role Role, st *state.OrchestrationState) int {
	ctx := it.SupervisorCtx
	exec := it.SupervisorExec
	logger := it.SupervisorLogger
	if role == RoleEngineer {
		ctx = it.EngineerCtx
		exec = it.EngineerExec
		logger = it.EngineerLogger
	}

	head := it.Head
	if head == nil {
		head = func() string { return "" }
	}
	commitFor := func(u *state.StampUpdate) {
		if role == RoleSupervisor {
			u.GalphCommit = head()
		} else {
			u.RalphCommit = head()
		}
	}

	fail := func(msg string) int {
		logger.Logf("[orchestrator] ERROR: %s", msg)
		u := state.StampUpdate{Status: state.StatusFailed}
		commitFor(&u)
		st.Stamp(u)
		it.Persist(st)
		return ExitException
	}

	st.Stamp(state.StampUpdate{Status: state.StatusRunning})
	if err := it.Persist(st); err != nil {
		return fail(fmt.Sprintf("persisting state: %v", err))
	}

	result, err := RunTurn(role, st, ctx, exec, logger)
	if err != nil {
		return fail(err.Error())
	}
	if result.ExitCode != 0 {
		u := state.StampUpdate{Status: state.StatusFailed}
		commitFor(&u)
		st.Stamp(u)
		it.Persist(st)
		return result.ExitCode
	}

	u := state.StampUpdate{
		Status:        it.advanceStatus(st),
		IncrementStep: true,
		LastPrompt:    result.SelectedPrompt,
	}
	commitFor(&u)
	st.Stamp(u)
	if err := it.Persist(st); err != nil {
		return fail(fmt.Sprintf("persisting state: %v", err))
	}
	return 0
}

// advanceStatus returns the post-increment lifecycle marker for a successful
// turn at the current step index: complete when the turn closes the cycle,
// waiting-next otherwise.
func (it Iteration) advanceStatus(st *state.OrchestrationState) state.Status {
	if cycle := it.SupervisorCtx.Workflow.CycleLen(); cycle > 0 && (st.StepIndex+1)%cycle == 0 {
		return state.StatusComplete
	}
	return state.StatusWaitingNext
}
