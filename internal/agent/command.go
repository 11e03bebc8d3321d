package agent

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrCLIUnavailable indicates no usable agent CLI could be resolved.
var ErrCLIUnavailable = errors.New("agent CLI not found")

// ClaudeCLIDefault locates the Claude CLI, searching the repo-local
// .claude/local/claude, then the user's home copy, then PATH. Returns ""
// when none is found.
func ClaudeCLIDefault() string {
	repoLocal := filepath.Join(".claude", "local", "claude")
	if isExecutable(repoLocal) {
		return repoLocal
	}
	if home, err := os.UserHomeDir(); err == nil {
		homeLocal := filepath.Join(home, ".claude", "local", "claude")
		if isExecutable(homeLocal) {
			return homeLocal
		}
	}
	if found, err := exec.LookPath("claude"); err == nil {
		return found
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

// claudeArgv wraps the CLI invocation in a login shell so the user's PATH
// customizations apply, matching how operators invoke it by hand.
func claudeArgv(cliPath string) []string {
	quoted := strings.ReplaceAll(cliPath, `"`, `\"`)
	cmdStr := fmt.Sprintf(`"%s" -p --dangerously-skip-permissions --verbose --output-format text`, quoted)
	return []string{"/bin/bash", "-lc", cmdStr}
}

func resolveClaude(claudeCmd string) []string {
	if claudeCmd != "" {
		if isExecutable(claudeCmd) {
			return claudeArgv(claudeCmd)
		}
		if found, err := exec.LookPath(claudeCmd); err == nil {
			return claudeArgv(found)
		}
	}
	if cli := ClaudeCLIDefault(); cli != "" {
		return claudeArgv(cli)
	}
	return nil
}

func resolveCodex(codexCmd string) []string {
	bin := codexCmd
	if found, err := exec.LookPath(codexCmd); err == nil {
		bin = found
	}
	if bin == "" {
		return nil
	}
	return []string{
		bin,
		"exec",
		"-m",
		"gpt-5-codex",
		"-c",
		"model_reasoning_effort=high",
		"--dangerously-bypass-approvals-and-sandbox",
	}
}

// StreamArgv rewrites a Claude invocation to emit stream-json events with
// partial messages instead of plain text. Non-Claude argvs are returned
// unchanged.
func StreamArgv(argv []string) []string {
	if len(argv) != 3 || argv[0] != "/bin/bash" {
		return argv
	}
	cmdStr := strings.Replace(argv[2],
		"--output-format text",
		"--output-format stream-json --include-partial-messages", 1)
	return []string{argv[0], argv[1], cmdStr}
}

// ResolveCommand builds the argv for an agent. For [Auto], Claude is
// preferred with Codex as fallback.
func ResolveCommand(a Agent, claudeCmd, codexCmd string) ([]string, error) {
	switch a {
	case Claude:
		if cmd := resolveClaude(claudeCmd); cmd != nil {
			return cmd, nil
		}
		return nil, fmt.Errorf("%w: Claude CLI not found; set --claude-cmd or choose --agent=codex", ErrCLIUnavailable)
	case Codex:
		if cmd := resolveCodex(codexCmd); cmd != nil {
			return cmd, nil
		}
		return nil, fmt.Errorf("%w: Codex CLI not found; set --codex-cmd or choose --agent=claude", ErrCLIUnavailable)
	case Auto:
		if cmd := resolveClaude(claudeCmd); cmd != nil {
			return cmd, nil
		}
		if cmd := resolveCodex(codexCmd); cmd != nil {
			return cmd, nil
		}
		return nil, fmt.Errorf("%w: neither Claude nor Codex CLI could be resolved; configure --claude-cmd/--codex-cmd", ErrCLIUnavailable)
	}
	return nil, fmt.Errorf("unsupported agent %q: use auto, claude, or codex", a)
}
