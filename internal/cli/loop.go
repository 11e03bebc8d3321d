package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pairloop/internal/agent"
	"pairloop/internal/autocommit"
	"pairloop/internal/config"
	"pairloop/internal/engine"
	"pairloop/internal/gitbus"
	"pairloop/internal/logging"
	"pairloop/internal/router"
	"pairloop/internal/runner"
	"pairloop/internal/state"
	"pairloop/internal/stream"
	"pairloop/internal/workflow"
)

type loopOptions struct {
	syncLoops    int
	pollInterval int
	stateFile    string
	logDir       string
	branch       string
	noGit        bool

	agentName    string
	claudeCmd    string
	codexCmd     string
	agentRoles   string
	agentPrompts string
	streamJSON   bool

	workflowName  string
	workflowTable string

	promptSupervisor string
	promptMain       string
	promptReviewer   string

	useRouter          bool
	routerPrompt       string
	routerReviewEveryN int
	routerAllowlist    string
	routerMode         string

	autoCommitDocs     bool
	autoCommitOutputs  bool
	autoCommitReports  bool
	forceAddReports    bool
	reportExtensions   string
	reportPathGlobs    string
	maxReportFileBytes int64
	maxReportTotal     int64
	maxDocFileBytes    int64
}

func newLoopCommand(app *App) *cobra.Command {
	cfg := app.Config
	opts := &loopOptions{}

	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Run combined supervisor+engineer iterations",
		Long: `Run the combined loop: each iteration executes a supervisor (galph) turn
followed by an engineer (ralph) turn, stamping the shared state file
between turns and publishing it through git.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := runLoop(cmd.Context(), app, opts)
			if rc != 0 {
				return NewExitError(rc)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.syncLoops, "sync-loops", envInt("SYNC_LOOPS", 20), "Number of iterations to run")
	f.IntVar(&opts.pollInterval, "poll-interval", envInt("POLL_INTERVAL", 5), "Seconds to sleep between iterations")
	f.StringVar(&opts.stateFile, "state-file", envStr("STATE_FILE", cfg.StateFile), "Path to the shared state file")
	f.StringVar(&opts.logDir, "logdir", cfg.LogsDir, "Base directory for per-iteration logs")
	f.StringVar(&opts.branch, "branch", os.Getenv("ORCHESTRATION_BRANCH"), "Branch guard: refuse to run off this branch")
	f.BoolVar(&opts.noGit, "no-git", false, "Disable all git operations (local-only runs)")

	f.StringVar(&opts.agentName, "agent", envStr("ORCHESTRATOR_AGENT", cfg.Agent.Default), "Agent CLI: auto, claude, or codex (auto prefers Claude)")
	f.StringVar(&opts.claudeCmd, "claude-cmd", envStr("CLAUDE_CMD", cfg.Agent.ClaudeCmd), "Explicit Claude CLI path or name")
	f.StringVar(&opts.codexCmd, "codex-cmd", envStr("CODEX_CMD", cfg.Agent.CodexCmd), "Explicit Codex CLI path or name")
	f.StringVar(&opts.agentRoles, "agent-roles", "", "Per-role agent overrides, e.g. galph=claude,ralph=codex")
	f.StringVar(&opts.agentPrompts, "agent-prompts", "", "Per-prompt agent overrides, e.g. main=codex")
	f.BoolVar(&opts.streamJSON, "stream-json", false, "Run Claude in stream-json mode and render text locally")

	f.StringVar(&opts.workflowName, "workflow", envStr("ORCHESTRATION_WORKFLOW", cfg.Workflow), "Workflow name")
	f.StringVar(&opts.workflowTable, "workflow-table", cfg.WorkflowTable, "Optional YAML file defining custom workflows")

	f.StringVar(&opts.promptSupervisor, "prompt-supervisor", envStr("SUPERVISOR_PROMPT", cfg.SupervisorPrompt), "Supervisor prompt file")
	f.StringVar(&opts.promptMain, "prompt-main", envStr("LOOP_PROMPT", cfg.MainPrompt), "Engineer prompt file")
	f.StringVar(&opts.promptReviewer, "prompt-reviewer", envStr("REVIEWER_PROMPT", cfg.ReviewerPrompt), "Reviewer prompt file")

	f.BoolVar(&opts.useRouter, "use-router", cfg.Router.Enabled, "Consult the model router before each iteration")
	f.StringVar(&opts.routerPrompt, "router-prompt", envStr("ROUTER_PROMPT", cfg.Router.Prompt), "Router prompt file")
	f.IntVar(&opts.routerReviewEveryN, "router-review-every-n", envInt("ROUTER_REVIEW_EVERY_N", cfg.Router.ReviewEveryN), "Review cadence in cycles (0 disables)")
	f.StringVar(&opts.routerAllowlist, "router-allowlist", envStr("ROUTER_ALLOWLIST", strings.Join(cfg.Router.Allowlist, ",")), "Comma-separated allowlist of routable prompts")
	f.StringVar(&opts.routerMode, "router-mode", envStr("ROUTER_MODE", cfg.Router.Mode), "Router mode: router_default, router_first, or router_only")

	f.BoolVar(&opts.autoCommitDocs, "auto-commit-docs", true, "Auto-commit whitelisted doc/meta files after each iteration")
	f.BoolVar(&opts.autoCommitOutputs, "auto-commit-outputs", true, "Auto-commit modified tracked output files after each iteration")
	f.BoolVar(&opts.autoCommitReports, "auto-commit-reports", true, "Auto-commit report artifacts after each iteration")
	f.BoolVar(&opts.forceAddReports, "force-add-reports", true, "Force-add report files even if gitignored")
	f.StringVar(&opts.reportExtensions, "report-extensions", envStr("REPORT_EXTENSIONS", strings.Join(cfg.ReportExtensions, ",")), "Comma-separated report file extensions")
	f.StringVar(&opts.reportPathGlobs, "report-path-globs", os.Getenv("REPORT_PATH_GLOBS"), "Comma-separated glob allowlist for report paths")
	f.Int64Var(&opts.maxReportFileBytes, "max-report-file-bytes", envInt64("MAX_REPORT_FILE_BYTES", 5242880), "Per-file size cap for report auto-commit")
	f.Int64Var(&opts.maxReportTotal, "max-report-total-bytes", envInt64("MAX_REPORT_TOTAL_BYTES", 20971520), "Per-iteration total size cap for report auto-commit")
	f.Int64Var(&opts.maxDocFileBytes, "max-doc-file-bytes", envInt64("MAX_DOC_FILE_BYTES", 1048576), "Per-file size cap for doc auto-commit")

	return cmd
}

func runLoop(ctx context.Context, app *App, opts *loopOptions) int {
	cfg := app.Config
	printer := app.Printer

	mode, err := router.ParseMode(opts.routerMode)
	if err != nil {
		printer.Error("%v", err)
		return 2
	}

	wf, err := buildWorkflow(opts)
	if err != nil {
		printer.Error("%v", err)
		return 2
	}

	cliRoleMap, err := agent.ParseMap(opts.agentRoles, agent.NormalizeRoleKey)
	if err != nil {
		printer.Error("parsing --agent-roles: %v", err)
		return 2
	}
	cliPromptMap, err := agent.ParseMap(opts.agentPrompts, func(token string) string {
		return agent.CanonicalPromptKey(token, cfg.PromptsDir)
	})
	if err != nil {
		printer.Error("parsing --agent-prompts: %v", err)
		return 2
	}
	agentCfg := agent.Config{
		DefaultAgent: agent.Normalize(opts.agentName),
		RoleMap:      normalizeAgentMap(cfg.Agent.RoleMap),
		PromptMap:    normalizeAgentMap(cfg.Agent.PromptMap),
		PromptsDir:   cfg.PromptsDir,
	}

	var bus *gitbus.Bus
	if !opts.noGit {
		bus = gitbus.New(".")
	}
	branch := resolveBranchTarget(opts, bus)

	runOpts, err := runner.OptionsFromEnv()
	if err != nil {
		printer.Error("%v", err)
		return 2
	}
	if opts.streamJSON {
		runOpts.StdoutFilter = func(w io.Writer) io.Writer {
			return stream.NewTextFilter(w, os.Stderr)
		}
	}

	loopLogPath, err := runner.LogFile(cfg.TmpDir, "claudelog")
	if err != nil {
		printer.Error("creating loop log: %v", err)
		return 1
	}
	loopLog := logging.Multi{printer, logging.FileLogger{Path: loopLogPath}}

	if err := os.MkdirAll(filepath.Dir(opts.stateFile), 0o755); err != nil {
		printer.Error("creating state dir: %v", err)
		return 1
	}

	head := func() string { return "" }
	if bus != nil {
		head = bus.ShortHead
	}

	persist := func(st *state.OrchestrationState) error {
		if err := st.Write(opts.stateFile); err != nil {
			return err
		}
		if bus != nil {
			if err := bus.Add([]string{opts.stateFile}); err == nil {
				bus.Commit(fmt.Sprintf("[SYNC i=%d] step=%d status=%s", st.Iteration, st.StepIndex, st.Status))
			}
		}
		return nil
	}

	post := buildPostIteration(cfg, opts, bus)

	execFor := func(role engine.Role, logPath string, logger logging.Logger) engine.PromptExecutor {
		return func(promptPath string) (int, error) {
			sel, err := agent.Select(string(role), promptPath, agentCfg, cliRoleMap, cliPromptMap, opts.claudeCmd, opts.codexCmd)
			if err != nil {
				return 0, err
			}
			argv := sel.Cmd
			if opts.streamJSON && sel.Agent == agent.Claude {
				argv = agent.StreamArgv(argv)
			}
			printer.Section("%s turn: %s", role, filepath.Base(promptPath))
			printer.Subtle("log: %s", logPath)
			logger.Logf("[agent] role=%s agent=%s prompt=%s", role, sel.Agent, promptPath)
			return runner.Run(ctx, argv, promptPath, logPath, runOpts)
		}
	}

	mainPromptName := router.NormalizeToken(opts.promptMain)
	mainStem := strings.TrimSuffix(filepath.Base(mainPromptName), ".md")

	loop := &engine.Loop{
		StateFile:    opts.stateFile,
		Branch:       opts.branch,
		Iterations:   opts.syncLoops,
		PollInterval: time.Duration(opts.pollInterval) * time.Second,
		NoGit:        opts.noGit,
		Git:          bus,
		Out:          loopLog,
		PostIteration: post,
		NewIteration: func(st *state.OrchestrationState) engine.Iteration {
			printer.Banner("iteration %d (branch %s)", st.Iteration, branch)

			ts := time.Now().UTC().Format("20060102_150405")
			branchDir := strings.ReplaceAll(branch, "/", "-")
			galphLog := filepath.Join(opts.logDir, branchDir, "galph", fmt.Sprintf("iter-%05d_%s.log", st.Iteration, ts))
			ralphLog := filepath.Join(opts.logDir, branchDir, "ralph", fmt.Sprintf("iter-%05d_%s_%s.log", st.Iteration, ts, mainStem))
			galphLogger := logging.Multi{printer, logging.FileLogger{Path: galphLog}}
			ralphLogger := logging.Multi{printer, logging.FileLogger{Path: ralphLog}}

			routerOutput := ""
			var routerErr error
			if opts.useRouter && opts.routerPrompt != "" {
				out, err := runRouterPrompt(ctx, opts, agentCfg, cliRoleMap, cliPromptMap, cfg.PromptsDir, galphLogger)
				if err != nil {
					routerErr = fmt.Errorf("router prompt: %w", err)
				} else {
					routerOutput = out
				}
			}

			allowlist := splitCSV(opts.routerAllowlist)
			galphCtx := engine.RouterContext{
				PromptsDir:   cfg.PromptsDir,
				Workflow:     wf,
				Allowlist:    allowlist,
				Mode:         mode,
				RouterOutput: routerOutput,
				UseRouter:    opts.useRouter,
			}
			// router_only is a supervisor-side contract; the engineer keeps
			// the workflow fallback so a silent router cannot wedge its turn.
			ralphMode := mode
			if ralphMode == router.ModeOnly {
				ralphMode = router.ModeDefault
			}
			ralphCtx := galphCtx
			ralphCtx.Mode = ralphMode
			ralphCtx.RouterOutput = ""

			// A configured router that cannot run fails the iteration.
			// Degrading to table routing would hide a broken router from
			// the operator and from the state file.
			supervisorExec := execFor(engine.RoleSupervisor, galphLog, galphLogger)
			if routerErr != nil {
				supervisorExec = func(string) (int, error) { return 0, routerErr }
			}

			return engine.Iteration{
				SupervisorCtx:    galphCtx,
				EngineerCtx:      ralphCtx,
				SupervisorExec:   supervisorExec,
				EngineerExec:     execFor(engine.RoleEngineer, ralphLog, ralphLogger),
				SupervisorLogger: galphLogger,
				EngineerLogger:   ralphLogger,
				Persist:          persist,
				Head:             head,
			}
		},
	}

	rc := loop.Run()
	if rc == 0 {
		printer.Success("loop finished")
	}
	return rc
}

// buildWorkflow resolves the workflow table and applies the configured
// prompt overrides to the resolved steps.
func buildWorkflow(opts *loopOptions) (*workflow.Workflow, error) {
	var wf *workflow.Workflow
	var err error
	if opts.workflowTable != "" {
		table, terr := workflow.LoadTable(opts.workflowTable)
		if terr != nil {
			return nil, terr
		}
		wf, err = workflow.Resolve(opts.workflowName, table, opts.routerReviewEveryN)
	} else {
		wf, err = workflow.Get(opts.workflowName, opts.routerReviewEveryN)
	}
	if err != nil {
		return nil, err
	}

	for i := range wf.Steps {
		switch wf.Steps[i].Name {
		case "supervisor":
			if opts.promptSupervisor != "" {
				wf.Steps[i].Prompt = router.NormalizeToken(opts.promptSupervisor)
			}
		case "main":
			if opts.promptMain != "" {
				wf.Steps[i].Prompt = router.NormalizeToken(opts.promptMain)
			}
		}
	}
	if wf.ReviewPrompt != "" && opts.promptReviewer != "" {
		wf.ReviewPrompt = router.NormalizeToken(opts.promptReviewer)
	}
	return wf, nil
}

// runRouterPrompt executes the router prompt with the supervisor's agent and
// returns its raw stdout for [router.SelectPromptWithMode].
func runRouterPrompt(ctx context.Context, opts *loopOptions, agentCfg agent.Config, cliRoleMap, cliPromptMap map[string]agent.Agent, promptsDir string, logger logging.Logger) (string, error) {
	promptPath := router.ResolvePromptPath(opts.routerPrompt, promptsDir)
	if _, err := os.Stat(promptPath); err != nil {
		return "", fmt.Errorf("router prompt not found: %s", promptPath)
	}
	sel, err := agent.Select(string(engine.RoleSupervisor), promptPath, agentCfg, cliRoleMap, cliPromptMap, opts.claudeCmd, opts.codexCmd)
	if err != nil {
		return "", err
	}
	res, err := runner.CaptureRun(ctx, sel.Cmd, promptPath)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("router prompt exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	logger.Logf("[router] prompt output: %s", strings.TrimSpace(res.Stdout))
	return res.Stdout, nil
}

// buildPostIteration assembles the best-effort evidence autocommit pass that
// runs after every iteration.
func buildPostIteration(cfg *config.Config, opts *loopOptions, bus *gitbus.Bus) func(logging.Logger) {
	if bus == nil {
		return func(logging.Logger) {}
	}
	skip := reportSkipPredicate(opts.logDir, cfg.TmpDir)

	return func(logger logging.Logger) {
		if opts.autoCommitDocs {
			autocommit.Docs{
				WhitelistGlobs: cfg.DocWhitelist,
				MaxFileBytes:   opts.maxDocFileBytes,
				IgnorePaths:    []string{opts.stateFile},
			}.Run(bus, logger)
		}
		if opts.autoCommitOutputs {
			autocommit.TrackedOutputs{
				Globs:         cfg.TrackedOutputGlobs,
				Extensions:    cfg.TrackedOutputExtensions,
				MaxFileBytes:  opts.maxReportFileBytes,
				MaxTotalBytes: opts.maxReportTotal,
			}.Run(bus, logger)
		}
		if opts.autoCommitReports {
			autocommit.Reports{
				Extensions:    splitCSV(opts.reportExtensions),
				PathGlobs:     splitCSV(opts.reportPathGlobs),
				MaxFileBytes:  opts.maxReportFileBytes,
				MaxTotalBytes: opts.maxReportTotal,
				ForceAdd:      opts.forceAddReports,
				SkipPredicate: skip,
			}.Run(bus, logger)
		}
	}
}

// reportSkipPredicate excludes loop bookkeeping paths from report
// auto-commit: the log tree, the tmp dir, and any prefixes listed in
// .reportsignore (or REPORT_SKIP_CONFIG).
func reportSkipPredicate(logDir, tmpDir string) func(string) bool {
	prefixes := [][]string{}
	if parts := cleanParts(logDir); len(parts) > 0 {
		prefixes = append(prefixes, parts)
	}
	if parts := cleanParts(tmpDir); len(parts) > 0 {
		prefixes = append(prefixes, parts)
	}

	skipConfig := os.Getenv("REPORT_SKIP_CONFIG")
	if skipConfig == "" {
		skipConfig = ".reportsignore"
	}
	if data, err := os.ReadFile(skipConfig); err == nil {
		for _, rawLine := range strings.Split(string(data), "\n") {
			line, _, _ := strings.Cut(rawLine, "#")
			if parts := cleanParts(strings.TrimSpace(line)); len(parts) > 0 {
				prefixes = append(prefixes, parts)
			}
		}
	}

	return func(path string) bool {
		parts := cleanParts(path)
		for _, prefix := range prefixes {
			if hasPrefix(parts, prefix) {
				return true
			}
		}
		return false
	}
}

func cleanParts(path string) []string {
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(path), "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

func hasPrefix(parts, prefix []string) bool {
	if len(prefix) == 0 || len(parts) < len(prefix) {
		return false
	}
	for i := range prefix {
		if parts[i] != prefix[i] {
			return false
		}
	}
	return true
}

// resolveBranchTarget mirrors the loop's branch resolution for log paths.
// The loop itself re-runs the checkout guard before iterating.
func resolveBranchTarget(opts *loopOptions, bus *gitbus.Bus) string {
	if opts.noGit || bus == nil {
		return "local"
	}
	if opts.branch != "" {
		return opts.branch
	}
	if current := bus.CurrentBranch(); current != "" {
		return current
	}
	return "local"
}

func normalizeAgentMap(m map[string]string) map[string]agent.Agent {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]agent.Agent, len(m))
	for k, v := range m {
		out[k] = agent.Normalize(v)
	}
	return out
}

func splitCSV(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
