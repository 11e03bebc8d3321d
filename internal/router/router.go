// Package router selects the prompt for each orchestration turn.
//
// Selection is deterministic by default: the workflow table maps the current
// step index to a prompt. An external, LLM-produced router override can
// supersede that choice, subject to allowlist validation and an existence
// check against the prompts directory. The interaction between the two is
// governed by [Mode].
//
// Key types and functions:
//   - [Decision] - the per-turn selection, logged and discarded
//   - [SelectPromptWithMode] - the single entry point used by the turn engine
//   - [NormalizeToken] - canonical prompt-name normalization
//
// Sentinel errors distinguish the failure classes the orchestrator cares
// about: [ErrRouterOutputRequired] (configuration), [ErrNotAllowed]
// (allowlist), and [ErrPromptNotFound] (missing file).
package router

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pairloop/internal/workflow"
)

// Sentinel errors for prompt selection.
var (
	// ErrRouterOutputRequired indicates router_only mode ran without router
	// output. This is a configuration error; the mode never falls back.
	ErrRouterOutputRequired = errors.New("router_only mode requires router prompt output")

	// ErrMalformedRouterOutput indicates the router produced empty or
	// multi-line output where a single prompt token was expected.
	ErrMalformedRouterOutput = errors.New("router output must be a single non-empty line")

	// ErrNotAllowed indicates a selected or overridden prompt is not a
	// member of the allowlist.
	ErrNotAllowed = errors.New("prompt not in allowlist")

	// ErrPromptNotFound indicates the selected prompt does not resolve to an
	// existing file under the prompts directory.
	ErrPromptNotFound = errors.New("prompt file not found")
)

// Source identifies where a decision came from.
type Source string

const (
	SourceWorkflow Source = "workflow"
	SourceRouter   Source = "router"
)

// Decision is the ephemeral result of one prompt selection. It is logged for
// operator diagnosis and then discarded; only SelectedPrompt feeds execution.
type Decision struct {
	SelectedPrompt string
	Source         Source
	Reason         string
}

// NormalizeToken canonicalizes a prompt token: the extension is forced to
// .md and path separators to forward slashes. Comparison against allowlists
// is case-sensitive on the normalized form.
func NormalizeToken(token string) string {
	token = filepath.ToSlash(token)
	ext := filepath.Ext(token)
	if ext != ".md" {
		token = strings.TrimSuffix(token, ext) + ".md"
	}
	return token
}

// NormalizeAllowlist normalizes every allowlist entry into a membership set.
func NormalizeAllowlist(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[NormalizeToken(item)] = struct{}{}
	}
	return set
}

// ResolvePromptPath resolves a prompt token to a filesystem path. Absolute
// tokens are used as-is; tokens whose first segment repeats the prompts
// directory name are rebased onto its parent, so "prompts/main.md" and
// "main.md" resolve identically.
func ResolvePromptPath(token, promptsDir string) string {
	normalized := NormalizeToken(token)
	if filepath.IsAbs(normalized) {
		return filepath.FromSlash(normalized)
	}
	parts := strings.Split(normalized, "/")
	if len(parts) > 1 && filepath.Base(promptsDir) == parts[0] {
		return filepath.Join(filepath.Dir(promptsDir), filepath.FromSlash(normalized))
	}
	return filepath.Join(promptsDir, filepath.FromSlash(normalized))
}

// validate checks a candidate token against the allowlist and the filesystem.
// A nil allowlist admits every prompt the workflow itself can route to.
func validate(candidate string, wf *workflow.Workflow, allowlist []string, promptsDir string) (string, error) {
	allowTokens := allowlist
	if allowTokens == nil {
		allowTokens = wf.Prompts()
	}
	allowset := NormalizeAllowlist(allowTokens)

	normalized := NormalizeToken(candidate)
	if _, ok := allowset[normalized]; !ok {
		allowed := make([]string, 0, len(allowset))
		for tok := range allowset {
			allowed = append(allowed, tok)
		}
		return "", fmt.Errorf("%w: %q (allowed: %s)", ErrNotAllowed, normalized, strings.Join(allowed, ", "))
	}

	path := ResolvePromptPath(normalized, promptsDir)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %q resolved to %s", ErrPromptNotFound, normalized, path)
	}
	return normalized, nil
}

// DeterministicRoute computes the workflow-table decision for the given step
// index, validating the selected prompt against the allowlist and the prompts
// directory.
func DeterministicRoute(wf *workflow.Workflow, stepIndex int, allowlist []string, promptsDir string) (Decision, error) {
	step := workflow.ResolveStep(wf, stepIndex)

	reason := fmt.Sprintf("workflow=%s step_index=%d step=%s", wf.Name, stepIndex, step.Name)
	if step.Name == workflow.ReviewerStepName && wf.ReviewEveryNCycles > 0 {
		cycle := stepIndex / wf.CycleLen()
		reason = fmt.Sprintf("review cadence hit (cycle=%d, every=%d)", cycle+1, wf.ReviewEveryNCycles)
	}

	normalized, err := validate(step.Prompt, wf, allowlist, promptsDir)
	if err != nil {
		return Decision{}, err
	}
	return Decision{SelectedPrompt: normalized, Source: SourceWorkflow, Reason: reason}, nil
}

// ParseRouterOutput extracts the single prompt token from raw router output.
// Blank lines are ignored; anything other than exactly one non-empty line is
// malformed.
func ParseRouterOutput(raw string) (string, error) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) != 1 {
		return "", fmt.Errorf("%w (got %d lines)", ErrMalformedRouterOutput, len(lines))
	}
	return lines[0], nil
}

// ApplyOverride validates raw router output as a full override of the
// deterministic decision.
func ApplyOverride(raw string, wf *workflow.Workflow, allowlist []string, promptsDir string) (Decision, error) {
	override, err := ParseRouterOutput(raw)
	if err != nil {
		return Decision{}, err
	}
	normalized, err := validate(override, wf, allowlist, promptsDir)
	if err != nil {
		return Decision{}, err
	}
	return Decision{SelectedPrompt: normalized, Source: SourceRouter, Reason: "router override"}, nil
}

// SelectPromptWithMode produces the turn's decision under the given mode.
//
//   - [ModeOnly]: routerOutput is mandatory; its absence is a configuration
//     error, never a silent fallback.
//   - [ModeFirst]: the override wins when present, otherwise deterministic.
//   - [ModeDefault]: the deterministic decision is always computed (and must
//     itself be valid); a present override then replaces it.
func SelectPromptWithMode(wf *workflow.Workflow, stepIndex int, allowlist []string, promptsDir string, mode Mode, routerOutput string) (Decision, error) {
	switch mode {
	case ModeOnly:
		if strings.TrimSpace(routerOutput) == "" {
			return Decision{}, ErrRouterOutputRequired
		}
		return ApplyOverride(routerOutput, wf, allowlist, promptsDir)

	case ModeFirst:
		if strings.TrimSpace(routerOutput) != "" {
			return ApplyOverride(routerOutput, wf, allowlist, promptsDir)
		}
		return DeterministicRoute(wf, stepIndex, allowlist, promptsDir)
	}

	decision, err := DeterministicRoute(wf, stepIndex, allowlist, promptsDir)
	if err != nil {
		return Decision{}, err
	}
	if strings.TrimSpace(routerOutput) != "" {
		return ApplyOverride(routerOutput, wf, allowlist, promptsDir)
	}
	return decision, nil
}
