package engine

import (
	"time"

	"pairloop/internal/logging"
	"pairloop/internal/state"
)

// GitBus is the loop's view of git synchronization. *gitbus.Bus implements
// it; tests use a fake.
type GitBus interface {
	Pull(logger logging.Logger) bool
	Push(branch string, logger logging.Logger) bool
	PushWithRebase(branch string, logger logging.Logger) bool
	CurrentBranch() string
	ShortHead() string
	HasUnpushedCommits() bool
	AssertOnBranch(name string, logger logging.Logger) error
}

// Loop repeats supervisor+engineer iterations until the configured count,
// an exit signal, or a failure. Exit codes: 0 for success or graceful exit,
// 1 for git synchronization failure, turn exit codes propagated verbatim.
type Loop struct {
	StateFile    string
	Branch       string
	Iterations   int
	PollInterval time.Duration
	NoGit        bool

	Git GitBus
	Out logging.Logger

	// NewIteration builds the per-iteration collaborators from the state
	// snapshot the iteration will run against.
	NewIteration func(st *state.OrchestrationState) Iteration

	// PostIteration runs best-effort side effects, such as evidence
	// autocommit, after every iteration. Its failures never change the
	// loop's outcome.
	PostIteration func(logger logging.Logger)

	// Sleep is injectable for tests; nil means time.Sleep.
	Sleep func(d time.Duration)
}

// Run drives the loop. Each pass checks the exit signal, pulls the shared
// branch, runs one full iteration, publishes evidence, and sleeps.
func (l *Loop) Run() int {
	sleep := l.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	branch, ok := l.resolveBranch()
	if !ok {
		return 1
	}

	if !l.NoGit && !l.Git.Pull(l.Out) {
		l.Out.Log("ERROR: git pull failed; likely untracked-file collisions.")
		l.Out.Log("Remediation: move or remove the conflicting untracked files, then re-run the loop.")
		return 1
	}

	first := true
	for i := 0; i < l.Iterations; i++ {
		if sig := state.CheckExitSignal(l.StateFile); sig.Requested {
			l.Out.Logf("[loop] Exiting: %s", sig.Reason)
			return 0
		}

		if !l.NoGit && !l.Git.Pull(logging.Nop{}) {
			l.Out.Log("ERROR: git pull failed during polling; see iteration log.")
			return 1
		}

		st := state.Read(l.StateFile)

		// Resume mode: a prior run may have stamped a turn locally and
		// died before pushing. Publish the stamp instead of re-running
		// the turn so its side effects are not duplicated.
		if first && !l.NoGit && st.Status.Terminal() && l.Git.HasUnpushedCommits() {
			first = false
			l.Out.Log("[sync] Detected local stamped handoff with unpushed commits; attempting push-only reconciliation.")
			if !l.Git.PushWithRebase(branch, l.Out) {
				l.Out.Log("ERROR: failed to push local stamped handoff; resolve and retry.")
				return 1
			}
			continue
		}
		first = false

		rc := l.NewIteration(st).Run(st)

		if l.PostIteration != nil {
			l.PostIteration(l.Out)
		}

		if !l.NoGit && l.Git.HasUnpushedCommits() {
			if !l.Git.PushWithRebase(branch, l.Out) {
				l.Out.Log("ERROR: failed to push stamped state; resolve and relaunch to resume push.")
				if rc == 0 {
					return 1
				}
			}
		}

		if rc != 0 {
			l.Out.Logf("[loop] Iteration failed rc=%d; stopping.", rc)
			return rc
		}

		sleep(l.PollInterval)
	}
	return 0
}

// resolveBranch picks the sync branch target: the configured branch after a
// checkout guard, else the current branch, else "local".
func (l *Loop) resolveBranch() (string, bool) {
	if l.NoGit {
		return "local", true
	}
	if l.Branch != "" {
		if err := l.Git.AssertOnBranch(l.Branch, l.Out); err != nil {
			l.Out.Logf("ERROR: %v", err)
			return "", false
		}
		return l.Branch, true
	}
	if current := l.Git.CurrentBranch(); current != "" {
		return current, true
	}
	return "local", true
}
