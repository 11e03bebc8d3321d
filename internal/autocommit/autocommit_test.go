package autocommit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairloop/internal/gitbus"
	"pairloop/internal/logging"
)

// fakeGit implements GitClient with canned answers and records staging.
type fakeGit struct {
	dirty     gitbus.DirtySet
	modified  []string
	gitlinks  map[string]struct{}
	ignored   map[string]bool
	addErr    error
	commitOK  bool
	added     [][]string
	forced    []string
	committed []string
}

func (f *fakeGit) DirtyPaths(includeIgnored bool) gitbus.DirtySet {
	ds := f.dirty
	if !includeIgnored {
		ds.IgnoredUntracked = nil
	}
	return ds
}

func (f *fakeGit) ModifiedTracked() []string { return f.modified }

func (f *fakeGit) GitlinkPaths() map[string]struct{} { return f.gitlinks }

func (f *fakeGit) IsIgnored(path string) bool { return f.ignored[path] }

func (f *fakeGit) AddForce(path string) error {
	f.forced = append(f.forced, path)
	return nil
}

func (f *fakeGit) Add(paths []string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, paths)
	return nil
}

func (f *fakeGit) Commit(message string) bool {
	f.committed = append(f.committed, message)
	return f.commitOK
}

// writeFile creates a file of n bytes under dir and returns its relative path.
func writeFile(t *testing.T, dir, rel string, n int) string {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, make([]byte, n), 0o644))
	return rel
}

func TestDocsCommitsWhitelistedFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	doc := writeFile(t, dir, "docs/notes.md", 100)
	big := writeFile(t, dir, "docs/huge.md", 5000)
	code := writeFile(t, dir, "main.go", 100)

	git := &fakeGit{
		dirty:    gitbus.DirtySet{UnstagedModified: []string{doc, big}, Untracked: []string{code}},
		commitOK: true,
	}
	res := Docs{
		WhitelistGlobs: []string{"docs/**/*.md", "docs/*.md"},
		MaxFileBytes:   1024,
	}.Run(git, logging.Nop{})

	assert.True(t, res.Committed)
	assert.Equal(t, []string{doc}, res.Staged)
	assert.ElementsMatch(t, []string{big, code}, res.Skipped)
	require.Len(t, git.committed, 1)
	assert.Contains(t, git.committed[0], DocsCommitPrefix)
	assert.Contains(t, git.committed[0], "Files:\n - docs/notes.md")
}

func TestDocsSkipsIgnorePathsAndGitlinks(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	doc := writeFile(t, dir, "README.md", 10)
	sub := writeFile(t, dir, "vendor/lib/README.md", 10)

	git := &fakeGit{
		dirty:    gitbus.DirtySet{UnstagedModified: []string{doc, sub, "STATUS.md"}},
		gitlinks: map[string]struct{}{"vendor/lib": {}},
		commitOK: true,
	}
	res := Docs{
		WhitelistGlobs: []string{"*.md", "**/*.md"},
		MaxFileBytes:   1024,
		IgnorePaths:    []string{"STATUS.md"},
	}.Run(git, logging.Nop{})

	assert.Equal(t, []string{doc}, res.Staged)
}

func TestDocsDryRunStagesNothing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	doc := writeFile(t, dir, "notes.md", 10)

	git := &fakeGit{dirty: gitbus.DirtySet{Untracked: []string{doc}}}
	res := Docs{WhitelistGlobs: []string{"*.md"}, MaxFileBytes: 1024, DryRun: true}.Run(git, logging.Nop{})

	assert.False(t, res.Committed)
	assert.Equal(t, []string{doc}, res.Staged)
	assert.Empty(t, git.added)
	assert.Empty(t, git.committed)
}

func TestDocsNothingToCommit(t *testing.T) {
	git := &fakeGit{}
	res := Docs{WhitelistGlobs: []string{"*.md"}, MaxFileBytes: 1024}.Run(git, logging.Nop{})
	assert.False(t, res.Committed)
	assert.Empty(t, git.committed)
}

func TestTrackedOutputsFiltersAndCaps(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	fixture := writeFile(t, dir, "tests/fixtures/gold.json", 200)
	array := writeFile(t, dir, "tests/fixtures/ref.npy", 300)
	wrongExt := writeFile(t, dir, "tests/fixtures/log.txt", 50)
	outside := writeFile(t, dir, "scratch/out.json", 50)
	tooBig := writeFile(t, dir, "tests/fixtures/fat.npz", 9000)

	git := &fakeGit{
		modified: []string{fixture, array, wrongExt, outside, tooBig},
		commitOK: true,
	}
	res := TrackedOutputs{
		Globs:         []string{"tests/fixtures/**"},
		Extensions:    []string{".json", ".npy", ".npz"},
		MaxFileBytes:  1024,
		MaxTotalBytes: 2048,
	}.Run(git, logging.Nop{})

	assert.True(t, res.Committed)
	assert.Equal(t, []string{fixture, array}, res.Staged)
	assert.ElementsMatch(t, []string{wrongExt, outside, tooBig}, res.Skipped)
}

func TestTrackedOutputsTotalCap(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	a := writeFile(t, dir, "a.json", 600)
	b := writeFile(t, dir, "b.json", 600)

	git := &fakeGit{modified: []string{a, b}, commitOK: true}
	res := TrackedOutputs{
		Extensions:    []string{".json"},
		MaxFileBytes:  1024,
		MaxTotalBytes: 1000,
	}.Run(git, logging.Nop{})

	assert.Equal(t, []string{a}, res.Staged)
	assert.Equal(t, []string{b}, res.Skipped)
}

func TestTrackedOutputsNoModifiedFiles(t *testing.T) {
	git := &fakeGit{}
	res := TrackedOutputs{Extensions: []string{".json"}, MaxFileBytes: 1, MaxTotalBytes: 1}.Run(git, logging.Nop{})
	assert.Empty(t, res.Staged)
	assert.Empty(t, git.committed)
}

func TestReportsForceAddsIgnoredFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	report := writeFile(t, dir, "reports/run.log", 100)
	ignoredLog := writeFile(t, dir, "tmp/claudelog.txt", 100)

	git := &fakeGit{
		dirty:    gitbus.DirtySet{Untracked: []string{report}, IgnoredUntracked: []string{ignoredLog}},
		ignored:  map[string]bool{ignoredLog: true},
		commitOK: true,
	}
	res := Reports{
		Extensions:    []string{".log", ".txt"},
		MaxFileBytes:  1024,
		MaxTotalBytes: 4096,
		ForceAdd:      true,
	}.Run(git, logging.Nop{})

	assert.True(t, res.Committed)
	assert.ElementsMatch(t, []string{report, ignoredLog}, res.Staged)
	assert.Equal(t, []string{ignoredLog}, git.forced)
	assert.Equal(t, [][]string{{report}}, git.added)
}

func TestReportsSkipPredicate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	keep := writeFile(t, dir, "findings.md", 50)
	skip := writeFile(t, dir, "logs/iter.md", 50)

	git := &fakeGit{
		dirty:    gitbus.DirtySet{Untracked: []string{keep, skip}},
		commitOK: true,
	}
	res := Reports{
		Extensions:    []string{".md"},
		MaxFileBytes:  1024,
		MaxTotalBytes: 4096,
		SkipPredicate: func(path string) bool { return path == skip },
	}.Run(git, logging.Nop{})

	assert.Equal(t, []string{keep}, res.Staged)
	assert.Contains(t, res.Skipped, skip)
}

func TestReportsExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	binary := writeFile(t, dir, "out.bin", 50)

	git := &fakeGit{dirty: gitbus.DirtySet{Untracked: []string{binary}}}
	res := Reports{
		Extensions:    []string{".md", ".log"},
		MaxFileBytes:  1024,
		MaxTotalBytes: 4096,
	}.Run(git, logging.Nop{})

	assert.Empty(t, res.Staged)
	assert.Equal(t, []string{binary}, res.Skipped)
	assert.Empty(t, git.committed)
}

func TestReportsDryRunSkipsIgnoredWithoutForce(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	report := writeFile(t, dir, "report.md", 50)

	git := &fakeGit{
		dirty:   gitbus.DirtySet{Untracked: []string{report}},
		ignored: map[string]bool{report: true},
	}
	res := Reports{
		Extensions:    []string{".md"},
		MaxFileBytes:  1024,
		MaxTotalBytes: 4096,
		DryRun:        true,
	}.Run(git, logging.Nop{})

	assert.Empty(t, res.Staged)
	assert.Equal(t, []string{report}, res.Skipped)
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny("docs/a/b.md", []string{"docs/**/*.md"}))
	assert.False(t, matchesAny("src/a.go", []string{"docs/**/*.md"}))
	assert.False(t, matchesAny("a.md", []string{""}))
}

func TestCommitBody(t *testing.T) {
	msg := commitBody("PREFIX", []string{"a.md", "b.md"})
	assert.Equal(t, "PREFIX\n\nFiles:\n - a.md\n - b.md", msg)
}
