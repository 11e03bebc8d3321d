// Package config provides configuration loading for the orchestration loop.
//
// Configuration is loaded with Viper from an orchestration.yaml found by
// searching upward from the working directory, with environment variable
// overrides and defaults that work out of the box.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (PAIRLOOP_ prefix)
//  2. Config file specified by PAIRLOOP_CONFIG_PATH
//  3. orchestration.yaml found by upward search from the working directory
//  4. [DefaultConfig] defaults
package config

// Config is the root configuration container.
type Config struct {
	// PromptsDir is the directory holding prompt .md files.
	PromptsDir string `mapstructure:"prompts_dir"`

	// Per-role prompt file names within PromptsDir.
	SupervisorPrompt string `mapstructure:"supervisor_prompt"`
	MainPrompt       string `mapstructure:"main_prompt"`
	ReviewerPrompt   string `mapstructure:"reviewer_prompt"`

	// Workflow names the step table to run; WorkflowTable optionally
	// points at a YAML file defining custom tables.
	Workflow      string `mapstructure:"workflow"`
	WorkflowTable string `mapstructure:"workflow_table"`

	Router RouterConfig `mapstructure:"router"`
	Agent  AgentConfig  `mapstructure:"agent"`

	// StateFile is the shared, git-synchronized state file path.
	StateFile string `mapstructure:"state_file"`

	LogsDir string `mapstructure:"logs_dir"`
	TmpDir  string `mapstructure:"tmp_dir"`

	// DocWhitelist is the glob allowlist for doc/meta autocommit.
	DocWhitelist []string `mapstructure:"doc_whitelist"`

	// Tracked output autocommit filters.
	TrackedOutputGlobs      []string `mapstructure:"tracked_output_globs"`
	TrackedOutputExtensions []string `mapstructure:"tracked_output_extensions"`

	// ReportExtensions is the extension allowlist for reports autocommit.
	ReportExtensions []string `mapstructure:"report_extensions"`

	FindingsFile string `mapstructure:"findings_file"`
	InputFile    string `mapstructure:"input_file"`

	// ProjectRoot is the directory containing the loaded config file.
	// Empty when running on defaults.
	ProjectRoot string `mapstructure:"-"`
}

// RouterConfig holds the prompt-router settings.
type RouterConfig struct {
	// Enabled turns the LLM router on; without it prompt selection is
	// purely workflow-table driven.
	Enabled bool `mapstructure:"enabled"`

	// Prompt is the router's own prompt file, run before each iteration
	// to produce the override token.
	Prompt string `mapstructure:"prompt"`

	// ReviewEveryN inserts a whole reviewer cycle every N cycles; 0
	// disables the cadence.
	ReviewEveryN int `mapstructure:"review_every_n"`

	// Allowlist constrains selectable prompts. Empty means the workflow's
	// own prompts.
	Allowlist []string `mapstructure:"allowlist"`

	// Mode is router_default, router_first, or router_only.
	Mode string `mapstructure:"mode"`
}

// AgentConfig holds agent CLI routing settings.
type AgentConfig struct {
	// Default is the agent used when no role or prompt mapping matches:
	// auto, claude, or codex.
	Default string `mapstructure:"default"`

	// RoleMap and PromptMap route specific roles or prompts to a
	// specific agent.
	RoleMap   map[string]string `mapstructure:"role_map"`
	PromptMap map[string]string `mapstructure:"prompt_map"`

	// ClaudeCmd and CodexCmd override CLI discovery.
	ClaudeCmd string `mapstructure:"claude_cmd"`
	CodexCmd  string `mapstructure:"codex_cmd"`
}

// DefaultConfig returns a [Config] with the standard loop layout: prompts
// under prompts/, state under sync/, logs under logs/.
func DefaultConfig() *Config {
	return &Config{
		PromptsDir:       "prompts",
		SupervisorPrompt: "supervisor.md",
		MainPrompt:       "main.md",
		ReviewerPrompt:   "reviewer.md",
		Workflow:         "standard",
		Router: RouterConfig{
			Mode: "router_default",
		},
		Agent: AgentConfig{
			Default:  "auto",
			CodexCmd: "codex",
		},
		StateFile: "sync/state.json",
		LogsDir:   "logs",
		TmpDir:    "tmp",
		DocWhitelist: []string{
			"input.md",
			"galph_memory.md",
			"docs/fix_plan.md",
			"plans/**/*.md",
			"prompts/**/*.md",
			".gitignore",
			".gitmodules",
			".gitattributes",
		},
		TrackedOutputGlobs: []string{
			"tests/fixtures/**/*.npy",
			"tests/fixtures/**/*.npz",
			"tests/fixtures/**/*.json",
			"tests/fixtures/**/*.pkl",
		},
		TrackedOutputExtensions: []string{".npy", ".npz", ".json", ".pkl"},
		ReportExtensions: []string{
			".png", ".jpeg", ".npy", ".txt", ".md", ".json", ".log", ".py", ".c", ".h", ".sh",
		},
		FindingsFile: "docs/findings.md",
		InputFile:    "input.md",
	}
}
