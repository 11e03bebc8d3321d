// Package cli wires the pairloop commands: the combined supervisor+engineer
// loop, the deterministic route inspector, and the repo hygiene checkers.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pairloop/internal/config"
	"pairloop/internal/output"
)

// App carries the dependencies shared by every command.
type App struct {
	Config  *config.Config
	Printer *output.Printer
}

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "pairloop",
		Short:         "Two-actor agentic development loop",
		Long:          "pairloop drives a supervisor (galph) and an engineer (ralph) through\nalternating prompt-driven turns, synchronized across machines via a\ngit-committed state file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newLoopCommand(app))
	root.AddCommand(newRouteCommand(app))
	root.AddCommand(newCheckInputCommand(app))
	root.AddCommand(newLintPlanCommand(app))

	return root
}

// Execute loads configuration, runs the root command against os.Args, and
// returns the process exit code.
func Execute() int {
	printer := output.New(os.Stdout)

	cfg, err := config.NewLoader().Load()
	if err != nil {
		printer.Error("loading config: %v", err)
		return 1
	}

	app := &App{Config: cfg, Printer: printer}
	root := NewRootCommand(app)

	if err := root.Execute(); err != nil {
		if code, ok := IsExitError(err); ok {
			return code
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}
