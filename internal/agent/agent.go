// Package agent resolves which LLM CLI runs a given turn.
//
// Resolution is layered: a per-prompt mapping beats a per-role mapping,
// command-line mappings beat configured ones, and everything falls back to
// the default agent. The winning [Agent] is then turned into an argv by
// [ResolveCommand]; the rest of the system treats that argv as an opaque
// subprocess.
package agent

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Agent names a supported CLI family.
type Agent string

const (
	// Auto prefers Claude and falls back to Codex.
	Auto Agent = "auto"

	Claude Agent = "claude"
	Codex  Agent = "codex"
)

// Normalize canonicalizes an agent name. Empty input means [Auto].
func Normalize(value string) Agent {
	if value == "" {
		return Auto
	}
	return Agent(strings.ToLower(strings.TrimSpace(value)))
}

// Parse validates an agent name.
func Parse(value string) (Agent, error) {
	a := Normalize(value)
	switch a {
	case Auto, Claude, Codex:
		return a, nil
	}
	return Auto, fmt.Errorf("unsupported agent %q: use auto, claude, or codex", value)
}

// NormalizeRoleKey canonicalizes a role-map key.
func NormalizeRoleKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// CanonicalPromptKey reduces a prompt token or path to its canonical map
// key: .md-suffixed, slash-separated, relative to the prompts directory when
// it lives there.
func CanonicalPromptKey(token, promptsDir string) string {
	p := filepath.ToSlash(token)
	if ext := path.Ext(p); ext != ".md" {
		p = strings.TrimSuffix(p, ext) + ".md"
	}
	if path.IsAbs(p) {
		dir := filepath.ToSlash(promptsDir)
		if rel, ok := strings.CutPrefix(p, strings.TrimSuffix(dir, "/")+"/"); ok {
			return rel
		}
		return p
	}
	base := path.Base(filepath.ToSlash(promptsDir))
	if base != "" && base != "." {
		if rel, ok := strings.CutPrefix(p, base+"/"); ok {
			return rel
		}
	}
	return p
}

// ParseMap parses a "key=value,key=value" mapping, normalizing keys with
// normalizeKey and values as agent names.
func ParseMap(raw string, normalizeKey func(string) string) (map[string]Agent, error) {
	result := make(map[string]Agent)
	if raw == "" {
		return result, nil
	}
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		key, value, found := strings.Cut(token, "=")
		if !found {
			return nil, fmt.Errorf("invalid agent mapping %q: expected key=value", token)
		}
		key = normalizeKey(key)
		if key != "" {
			result[key] = Normalize(value)
		}
	}
	return result, nil
}

// Config holds the configured agent routing for the loop.
type Config struct {
	DefaultAgent Agent
	RoleMap      map[string]Agent
	PromptMap    map[string]Agent
	PromptsDir   string
}

// Resolve picks the agent for a role and prompt. CLI-provided maps override
// configured maps; prompt mappings override role mappings at each layer.
func Resolve(role, promptKey string, cfg Config, cliRoleMap, cliPromptMap map[string]Agent) Agent {
	roleKey := NormalizeRoleKey(role)
	prompt := CanonicalPromptKey(promptKey, cfg.PromptsDir)

	if a, ok := cliPromptMap[prompt]; ok {
		return a
	}
	if a, ok := cliRoleMap[roleKey]; ok {
		return a
	}
	if a, ok := cfg.PromptMap[prompt]; ok {
		return a
	}
	if a, ok := cfg.RoleMap[roleKey]; ok {
		return a
	}
	return Normalize(string(cfg.DefaultAgent))
}

// Selection pairs a resolved agent with its executable argv.
type Selection struct {
	Agent Agent
	Cmd   []string
}

// Select resolves the agent for a role and prompt and builds its argv.
func Select(role, promptKey string, cfg Config, cliRoleMap, cliPromptMap map[string]Agent, claudeCmd, codexCmd string) (Selection, error) {
	a := Resolve(role, promptKey, cfg, cliRoleMap, cliPromptMap)
	cmd, err := ResolveCommand(a, claudeCmd, codexCmd)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Agent: a, Cmd: cmd}, nil
}
