// Package gitbus synchronizes orchestrator state through a shared git branch.
//
// The state file is the message, git is the transport: each turn pulls
// before reading, commits the stamped state, and pushes after writing. The
// bus reports outcomes as booleans with diagnostics on the supplied logger
// because a sync failure is an operator condition, not a programming error.
package gitbus

import (
	"fmt"
	"strings"

	"pairloop/internal/logging"
)

// Bus runs git operations in a working directory.
type Bus struct {
	runner  CommandRunner
	workDir string
}

// New builds a Bus over the default exec-backed runner.
func New(workDir string) *Bus {
	return &Bus{runner: NewExecRunner(), workDir: workDir}
}

// NewWithRunner builds a Bus over a custom runner. Tests use this with a
// scripted runner.
func NewWithRunner(workDir string, runner CommandRunner) *Bus {
	return &Bus{runner: runner, workDir: workDir}
}

func (b *Bus) git(args ...string) (string, error) {
	return b.runner.Run(b.workDir, "git", args...)
}

// Pull fast-forwards the current branch. Returns false on any failure,
// including untracked-file collisions, which callers surface as a hard stop.
func (b *Bus) Pull(logger logging.Logger) bool {
	out, err := b.git("pull", "--ff-only")
	if err != nil {
		logger.Logf("[sync] git pull failed: %s", err)
		return false
	}
	if out != "" && out != "Already up to date." {
		logger.Logf("[sync] git pull: %s", out)
	}
	return true
}

// Push publishes HEAD to the named branch.
func (b *Bus) Push(branch string, logger logging.Logger) bool {
	if _, err := b.git("push", "origin", "HEAD:"+branch); err != nil {
		logger.Logf("[sync] git push failed: %s", err)
		return false
	}
	return true
}

// PushWithRebase publishes HEAD, rebasing onto the remote once when the
// first push is rejected.
func (b *Bus) PushWithRebase(branch string, logger logging.Logger) bool {
	if b.Push(branch, logging.Nop{}) {
		return true
	}
	logger.Log("[sync] push rejected; attempting pull --rebase")
	if _, err := b.git("pull", "--rebase"); err != nil {
		logger.Logf("[sync] git pull --rebase failed: %s", err)
		return false
	}
	return b.Push(branch, logger)
}

// Commit records staged changes. Returns false when the commit fails,
// including the nothing-to-commit case.
func (b *Bus) Commit(message string) bool {
	_, err := b.git("commit", "-m", message)
	return err == nil
}

// Add stages the given paths.
func (b *Bus) Add(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := b.git(args...); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

// AddForce stages a path even when it is gitignored.
func (b *Bus) AddForce(path string) error {
	if _, err := b.git("add", "-f", "--", path); err != nil {
		return fmt.Errorf("git add -f: %w", err)
	}
	return nil
}

// CurrentBranch returns the checked-out branch name, or "" on a detached
// HEAD or outside a repository.
func (b *Bus) CurrentBranch() string {
	out, err := b.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || out == "HEAD" {
		return ""
	}
	return out
}

// ShortHead returns the abbreviated HEAD commit hash, or "" when
// unavailable.
func (b *Bus) ShortHead() string {
	out, err := b.git("rev-parse", "--short", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// HasUnpushedCommits reports whether HEAD is ahead of its upstream. A
// missing upstream counts as nothing to push.
func (b *Bus) HasUnpushedCommits() bool {
	out, err := b.git("rev-list", "--count", "@{u}..HEAD")
	if err != nil {
		return false
	}
	return out != "" && out != "0"
}

// AssertOnBranch verifies the checkout is on the expected branch.
func (b *Bus) AssertOnBranch(name string, logger logging.Logger) error {
	current := b.CurrentBranch()
	if current != name {
		logger.Logf("[sync] expected branch %s, on %q", name, current)
		return fmt.Errorf("expected branch %s, on %q", name, current)
	}
	return nil
}

// DirtySet classifies the working tree's dirty paths.
type DirtySet struct {
	UnstagedModified []string
	StagedModified   []string
	Untracked        []string
	IgnoredUntracked []string
}

// All returns the union of the dirty categories, deduplicated in first-seen
// order.
func (d DirtySet) All() []string {
	seen := make(map[string]struct{})
	var all []string
	for _, group := range [][]string{d.UnstagedModified, d.StagedModified, d.Untracked, d.IgnoredUntracked} {
		for _, p := range group {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}
	return all
}

// DirtyPaths lists modified, staged, and untracked paths. When
// includeIgnored is set, gitignored untracked files are listed too, which
// the reports autocommit policy needs for force-adds.
func (b *Bus) DirtyPaths(includeIgnored bool) DirtySet {
	set := DirtySet{
		UnstagedModified: b.lines("diff", "--name-only", "--diff-filter=M"),
		StagedModified:   b.lines("diff", "--cached", "--name-only", "--diff-filter=AM"),
		Untracked:        b.lines("ls-files", "--others", "--exclude-standard"),
	}
	if includeIgnored {
		set.IgnoredUntracked = b.lines("ls-files", "--others", "-i", "--exclude-standard")
	}
	return set
}

// ModifiedTracked lists tracked files with unstaged modifications.
func (b *Bus) ModifiedTracked() []string {
	return b.lines("diff", "--name-only", "--diff-filter=M")
}

// IsIgnored reports whether a path is matched by the ignore rules.
func (b *Bus) IsIgnored(path string) bool {
	_, err := b.git("check-ignore", "-q", "--", path)
	return err == nil
}

// GitlinkPaths returns submodule gitlink paths recorded in the index.
// Dirty paths under a gitlink must never be staged from the superproject.
func (b *Bus) GitlinkPaths() map[string]struct{} {
	paths := make(map[string]struct{})
	for _, line := range b.lines("ls-files", "-s") {
		fields := strings.Fields(line)
		if len(fields) >= 4 && fields[0] == "160000" {
			paths[fields[3]] = struct{}{}
		}
	}
	return paths
}

// lines runs a git command and splits its output into non-empty lines.
// Command failures yield an empty list; listing helpers are best-effort.
func (b *Bus) lines(args ...string) []string {
	out, err := b.git(args...)
	if err != nil || out == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
