package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigFilename is the file searched for upward from the working directory.
const ConfigFilename = "orchestration.yaml"

// Loader loads configuration using Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults registered and PAIRLOOP_
// environment overrides enabled.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("PAIRLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("prompts_dir", def.PromptsDir)
	v.SetDefault("supervisor_prompt", def.SupervisorPrompt)
	v.SetDefault("main_prompt", def.MainPrompt)
	v.SetDefault("reviewer_prompt", def.ReviewerPrompt)
	v.SetDefault("workflow", def.Workflow)
	v.SetDefault("workflow_table", def.WorkflowTable)
	v.SetDefault("router.enabled", def.Router.Enabled)
	v.SetDefault("router.prompt", def.Router.Prompt)
	v.SetDefault("router.review_every_n", def.Router.ReviewEveryN)
	v.SetDefault("router.allowlist", def.Router.Allowlist)
	v.SetDefault("router.mode", def.Router.Mode)
	v.SetDefault("agent.default", def.Agent.Default)
	v.SetDefault("agent.role_map", def.Agent.RoleMap)
	v.SetDefault("agent.prompt_map", def.Agent.PromptMap)
	v.SetDefault("agent.claude_cmd", def.Agent.ClaudeCmd)
	v.SetDefault("agent.codex_cmd", def.Agent.CodexCmd)
	v.SetDefault("state_file", def.StateFile)
	v.SetDefault("logs_dir", def.LogsDir)
	v.SetDefault("tmp_dir", def.TmpDir)
	v.SetDefault("doc_whitelist", def.DocWhitelist)
	v.SetDefault("tracked_output_globs", def.TrackedOutputGlobs)
	v.SetDefault("tracked_output_extensions", def.TrackedOutputExtensions)
	v.SetDefault("report_extensions", def.ReportExtensions)
	v.SetDefault("findings_file", def.FindingsFile)
	v.SetDefault("input_file", def.InputFile)
}

// Load resolves the config file (PAIRLOOP_CONFIG_PATH, then upward search)
// and loads it. Without a file it returns the defaults with environment
// overrides applied.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv("PAIRLOOP_CONFIG_PATH"); path != "" {
		return l.LoadFromFile(path)
	}
	if path := FindConfig(""); path != "" {
		return l.LoadFromFile(path)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from an explicit path.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		root = filepath.Dir(path)
	}
	cfg.ProjectRoot = root
	return &cfg, nil
}

// FindConfig searches upward from startDir (the working directory when
// empty) for [ConfigFilename]. Returns "" when no config file exists.
func FindConfig(startDir string) string {
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		startDir = wd
	}

	current, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(current, ConfigFilename)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}
