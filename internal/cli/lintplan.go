package cli

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
)

// checklistPattern matches a checklist line with a plan item ID, e.g.
// "- [ ] A1: wire the config loader".
var checklistPattern = regexp.MustCompile(`^- \[.\] ([A-Z][0-9]+):`)

type lintPlanOptions struct {
	inputFile      string
	implementation string
	maxInline      int
}

func newLintPlanCommand(app *App) *cobra.Command {
	cfg := app.Config
	opts := &lintPlanOptions{}

	cmd := &cobra.Command{
		Use:   "lint-plan",
		Short: "Enforce persistent planning for large inline checklists",
		Long: `Check that an input file with more than the allowed number of inline
checklist items references a persistent implementation plan carrying
the same item IDs.

Exit codes: 2 missing implementation plan, 3 IDs absent from the plan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputIDs := extractChecklistIDs(opts.inputFile)
			if len(inputIDs) <= opts.maxInline {
				cmd.Println("OK: inline checklist size within limit")
				return nil
			}

			implIDs := extractChecklistIDs(opts.implementation)
			if implIDs == nil {
				if _, err := os.Stat(opts.implementation); err != nil {
					cmd.PrintErrf("ERROR: expected persistent plan at %s\n", opts.implementation)
					return NewExitError(2)
				}
			}

			implSet := make(map[string]struct{}, len(implIDs))
			for _, id := range implIDs {
				implSet[id] = struct{}{}
			}
			var missing []string
			for _, id := range inputIDs {
				if _, ok := implSet[id]; !ok {
					missing = append(missing, id)
				}
			}
			if len(missing) > 0 {
				cmd.PrintErrf("ERROR: checklist IDs missing from implementation.md: %s\n", strings.Join(missing, ", "))
				return NewExitError(3)
			}

			cmd.Println("OK: input.md references persistent implementation plan IDs")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.inputFile, "input", cfg.InputFile, "Path to input.md")
	f.StringVar(&opts.implementation, "implementation", "", "Path to the initiative's implementation.md")
	f.IntVar(&opts.maxInline, "max-inline", 5, "Max inline checklist items allowed before a persistent plan is required")
	cobra.CheckErr(cmd.MarkFlagRequired("implementation"))

	return cmd
}

// extractChecklistIDs returns the plan item IDs found in a checklist file.
// A missing file yields nil.
func extractChecklistIDs(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		if m := checklistPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			ids = append(ids, m[1])
		}
	}
	return ids
}
