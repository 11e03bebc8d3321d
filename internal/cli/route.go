package cli

import (
	"os"

	"github.com/spf13/cobra"

	"pairloop/internal/router"
	"pairloop/internal/state"
	"pairloop/internal/workflow"
)

type routeOptions struct {
	stateFile    string
	promptsDir   string
	workflowName string
	reviewEveryN int
	allowlist    string
	printReason  bool
}

func newRouteCommand(app *App) *cobra.Command {
	cfg := app.Config
	opts := &routeOptions{}

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Print the prompt the workflow table selects for the current step",
		Long: `Resolve the deterministic route for the step recorded in the state file
and print the selected prompt name. Exit code 2 signals a routing error
such as an unknown workflow or a missing prompt file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := workflow.Get(opts.workflowName, opts.reviewEveryN)
			if err != nil {
				app.Printer.Error("%v", err)
				return NewExitError(2)
			}

			st := state.Read(opts.stateFile)
			decision, err := router.DeterministicRoute(wf, st.StepIndex, splitCSV(opts.allowlist), opts.promptsDir)
			if err != nil {
				app.Printer.Error("%v", err)
				return NewExitError(2)
			}

			if opts.printReason {
				cmd.PrintErrf("[router] %s: %s\n", decision.Source, decision.Reason)
			}
			cmd.Println(decision.SelectedPrompt)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.stateFile, "state-file", envStr("STATE_FILE", cfg.StateFile), "Path to the shared state file")
	f.StringVar(&opts.promptsDir, "prompts-dir", envStr("PROMPTS_DIR", cfg.PromptsDir), "Directory containing prompt files")
	f.StringVar(&opts.workflowName, "workflow", envStr("ORCHESTRATION_WORKFLOW", cfg.Workflow), "Workflow name")
	f.IntVar(&opts.reviewEveryN, "review-every-n", envInt("ROUTER_REVIEW_EVERY_N", 0), "Review cadence in cycles (0 disables)")
	f.StringVar(&opts.allowlist, "allowlist", os.Getenv("ROUTER_ALLOWLIST"), "Comma-separated allowlist of prompt names")
	f.BoolVar(&opts.printReason, "print-reason", false, "Print routing rationale to stderr")

	return cmd
}
