// Package autocommit stages and commits loop evidence after each turn.
//
// Three policies mirror the three artifact classes a turn leaves behind:
// doc/meta hygiene files ([Docs]), modified tracked outputs such as fixtures
// ([TrackedOutputs]), and report-like evidence that may even be gitignored
// ([Reports]). Every policy is best-effort: failures are logged and never
// affect the turn's success or failure.
package autocommit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"pairloop/internal/gitbus"
	"pairloop/internal/logging"
)

// GitClient is the slice of the git bus the policies need.
type GitClient interface {
	DirtyPaths(includeIgnored bool) gitbus.DirtySet
	ModifiedTracked() []string
	GitlinkPaths() map[string]struct{}
	IsIgnored(path string) bool
	Add(paths []string) error
	AddForce(path string) error
	Commit(message string) bool
}

// Result reports what a policy did.
type Result struct {
	Committed bool
	Staged    []string
	Skipped   []string
}

// Default commit message prefixes. The "tests: not run" marker tells
// reviewers these commits carry no verification claim.
const (
	DocsCommitPrefix           = "SUPERVISOR AUTO: doc/meta hygiene — tests: not run"
	TrackedOutputsCommitPrefix = "SUPERVISOR AUTO: tracked outputs — tests: not run"
	ReportsCommitPrefix        = "AUTO: reports evidence — tests: not run"
)

// matchesAny reports whether the path matches any of the doublestar globs.
func matchesAny(path string, globs []string) bool {
	for _, glob := range globs {
		if glob == "" {
			continue
		}
		if ok, err := doublestar.Match(glob, path); err == nil && ok {
			return true
		}
	}
	return false
}

// filterGitlinks drops paths that live inside a submodule.
func filterGitlinks(paths []string, gitlinks map[string]struct{}) []string {
	if len(gitlinks) == 0 {
		return paths
	}
	var kept []string
	for _, p := range paths {
		inSubmodule := false
		for link := range gitlinks {
			if p == link || strings.HasPrefix(p, link+"/") {
				inSubmodule = true
				break
			}
		}
		if !inSubmodule {
			kept = append(kept, p)
		}
	}
	return kept
}

func fileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

func commitBody(prefix string, paths []string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("\n\nFiles:\n")
	for _, p := range paths {
		fmt.Fprintf(&b, " - %s\n", p)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Docs stages and commits dirty files matching a doc/meta whitelist.
type Docs struct {
	WhitelistGlobs []string
	MaxFileBytes   int64
	IgnorePaths    []string
	CommitPrefix   string
	DryRun         bool
}

func (p Docs) Run(git GitClient, logger logging.Logger) Result {
	prefix := p.CommitPrefix
	if prefix == "" {
		prefix = DocsCommitPrefix
	}

	ignore := make(map[string]struct{}, len(p.IgnorePaths))
	for _, ip := range p.IgnorePaths {
		if ip != "" {
			ignore[ip] = struct{}{}
		}
	}

	dirty := git.DirtyPaths(false).All()
	dirty = filterGitlinks(dirty, git.GitlinkPaths())

	var allowed, forbidden []string
	for _, path := range dirty {
		if _, skip := ignore[path]; skip {
			continue
		}
		if !matchesAny(path, p.WhitelistGlobs) {
			forbidden = append(forbidden, path)
			continue
		}
		size, ok := fileSize(path)
		if !ok || size > p.MaxFileBytes {
			forbidden = append(forbidden, path)
			continue
		}
		allowed = append(allowed, path)
	}

	if len(allowed) == 0 {
		return Result{Skipped: forbidden}
	}
	if p.DryRun {
		logger.Logf("[docs] DRY-RUN: would commit %d files", len(allowed))
		return Result{Staged: allowed, Skipped: forbidden}
	}

	if err := git.Add(allowed); err != nil {
		logger.Logf("[docs] WARNING: git add failed: %v", err)
		return Result{Skipped: forbidden}
	}
	committed := git.Commit(commitBody(prefix, allowed))
	if committed {
		logger.Logf("[docs] Auto-committed %d files", len(allowed))
	} else {
		logger.Log("[docs] WARNING: git commit failed; staged files remain staged")
	}
	return Result{Committed: committed, Staged: allowed, Skipped: forbidden}
}

// TrackedOutputs stages and commits modified tracked output files, fixtures
// and the like, filtered by extension, glob, and size caps.
type TrackedOutputs struct {
	Globs         []string
	Extensions    []string
	MaxFileBytes  int64
	MaxTotalBytes int64
	CommitPrefix  string
	DryRun        bool
}

func (p TrackedOutputs) Run(git GitClient, logger logging.Logger) Result {
	prefix := p.CommitPrefix
	if prefix == "" {
		prefix = TrackedOutputsCommitPrefix
	}

	modified := git.ModifiedTracked()
	if len(modified) == 0 {
		return Result{}
	}

	exts := make(map[string]struct{}, len(p.Extensions))
	for _, e := range p.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			exts[e] = struct{}{}
		}
	}

	var staged, skipped []string
	var total int64
	for _, path := range modified {
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := exts[ext]; !ok {
			skipped = append(skipped, path)
			continue
		}
		if len(p.Globs) > 0 && !matchesAny(path, p.Globs) {
			skipped = append(skipped, path)
			continue
		}
		size, ok := fileSize(path)
		if !ok || size > p.MaxFileBytes || total+size > p.MaxTotalBytes {
			skipped = append(skipped, path)
			continue
		}
		staged = append(staged, path)
		total += size
	}

	if len(staged) == 0 {
		return Result{Skipped: skipped}
	}
	if p.DryRun {
		logger.Logf("[tracked-outputs] DRY-RUN: would commit %d files (%d bytes)", len(staged), total)
		return Result{Staged: staged, Skipped: skipped}
	}

	if err := git.Add(staged); err != nil {
		logger.Logf("[tracked-outputs] WARNING: git add failed: %v", err)
		return Result{Skipped: skipped}
	}
	committed := git.Commit(commitBody(prefix, staged))
	if committed {
		logger.Logf("[tracked-outputs] Auto-committed %d files (%d bytes)", len(staged), total)
	} else {
		logger.Log("[tracked-outputs] WARNING: git commit failed; staged files remain staged")
	}
	return Result{Committed: committed, Staged: staged, Skipped: skipped}
}

// Reports stages and commits report-like evidence filtered by extension and
// size caps. With ForceAdd set, gitignored files are staged too; the loop
// uses this for tmp/ run logs that must travel with the state commit.
type Reports struct {
	Extensions    []string
	PathGlobs     []string
	MaxFileBytes  int64
	MaxTotalBytes int64
	ForceAdd      bool
	SkipPredicate func(path string) bool
	CommitPrefix  string
	DryRun        bool
}

func (p Reports) Run(git GitClient, logger logging.Logger) Result {
	prefix := p.CommitPrefix
	if prefix == "" {
		prefix = ReportsCommitPrefix
	}

	exts := make(map[string]struct{}, len(p.Extensions))
	for _, e := range p.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			exts[e] = struct{}{}
		}
	}

	dirty := git.DirtyPaths(p.ForceAdd).All()

	var staged, skipped []string
	var total int64
	for _, path := range dirty {
		if len(p.PathGlobs) > 0 && !matchesAny(path, p.PathGlobs) {
			skipped = append(skipped, path)
			continue
		}
		if p.SkipPredicate != nil && p.SkipPredicate(path) {
			skipped = append(skipped, path)
			continue
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := exts[ext]; !ok {
			skipped = append(skipped, path)
			continue
		}
		size, ok := fileSize(path)
		if !ok || size > p.MaxFileBytes || total+size > p.MaxTotalBytes {
			skipped = append(skipped, path)
			continue
		}

		if p.DryRun {
			if !p.ForceAdd && git.IsIgnored(path) {
				skipped = append(skipped, path)
				continue
			}
			staged = append(staged, path)
			total += size
			continue
		}

		var addErr error
		if p.ForceAdd && git.IsIgnored(path) {
			addErr = git.AddForce(path)
		} else {
			addErr = git.Add([]string{path})
		}
		if addErr != nil {
			skipped = append(skipped, path)
			continue
		}
		staged = append(staged, path)
		total += size
	}

	if len(staged) == 0 {
		return Result{Skipped: skipped}
	}
	if p.DryRun {
		logger.Logf("[reports] DRY-RUN: would commit %d files (%d bytes)", len(staged), total)
		return Result{Staged: staged, Skipped: skipped}
	}

	committed := git.Commit(commitBody(prefix, staged))
	if committed {
		logger.Logf("[reports] Auto-committed %d files (%d bytes)", len(staged), total)
	} else {
		logger.Log("[reports] WARNING: git commit failed; staged files remain staged")
	}
	return Result{Committed: committed, Staged: staged, Skipped: skipped}
}
