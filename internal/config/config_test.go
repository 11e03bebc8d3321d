package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "prompts", cfg.PromptsDir)
	assert.Equal(t, "supervisor.md", cfg.SupervisorPrompt)
	assert.Equal(t, "main.md", cfg.MainPrompt)
	assert.Equal(t, "reviewer.md", cfg.ReviewerPrompt)
	assert.Equal(t, "standard", cfg.Workflow)
	assert.False(t, cfg.Router.Enabled)
	assert.Equal(t, "router_default", cfg.Router.Mode)
	assert.Equal(t, "auto", cfg.Agent.Default)
	assert.Equal(t, "sync/state.json", cfg.StateFile)
	assert.Equal(t, "logs", cfg.LogsDir)
	assert.Equal(t, "tmp", cfg.TmpDir)
	assert.NotEmpty(t, cfg.DocWhitelist)
	assert.NotEmpty(t, cfg.ReportExtensions)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFilename)
	content := `prompts_dir: cues
workflow: review_cadence
state_file: shared/state.json
router:
  enabled: true
  review_every_n: 3
agent:
  default: claude
  role_map:
    ralph: codex
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	loader := NewLoader()
	cfg, err := loader.LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "cues", cfg.PromptsDir)
	assert.Equal(t, "review_cadence", cfg.Workflow)
	assert.Equal(t, "shared/state.json", cfg.StateFile)
	assert.True(t, cfg.Router.Enabled)
	assert.Equal(t, 3, cfg.Router.ReviewEveryN)
	assert.Equal(t, "claude", cfg.Agent.Default)
	assert.Equal(t, "codex", cfg.Agent.RoleMap["ralph"])
	// Fields absent from the file keep their defaults.
	assert.Equal(t, "main.md", cfg.MainPrompt)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.ProjectRoot)
}

func TestLoadFromFileNotFound(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFilename)
	require.NoError(t, os.WriteFile(configPath, []byte("workflow: [unclosed"), 0o644))

	loader := NewLoader()
	_, err := loader.LoadFromFile(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PAIRLOOP_WORKFLOW", "standard2")
	t.Setenv("PAIRLOOP_PROMPTS_DIR", "alt-prompts")

	loader := NewLoader()
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFilename)
	require.NoError(t, os.WriteFile(configPath, []byte("workflow: standard\n"), 0o644))

	cfg, err := loader.LoadFromFile(configPath)
	require.NoError(t, err)

	// Environment wins over file values and defaults.
	assert.Equal(t, "standard2", cfg.Workflow)
	assert.Equal(t, "alt-prompts", cfg.PromptsDir)
}

func TestLoadHonorsConfigPathEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("workflow: review_cadence2\n"), 0o644))
	t.Setenv("PAIRLOOP_CONFIG_PATH", configPath)

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "review_cadence2", cfg.Workflow)
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	configPath := filepath.Join(root, ConfigFilename)
	require.NoError(t, os.WriteFile(configPath, []byte("workflow: standard\n"), 0o644))

	found := FindConfig(nested)
	assert.Equal(t, configPath, found)
}

func TestFindConfigMissing(t *testing.T) {
	assert.Empty(t, FindConfig(t.TempDir()))
}
