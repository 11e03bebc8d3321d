package cli

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
)

// findingIDPattern matches finding identifiers such as CLI-PERF-003.
var findingIDPattern = regexp.MustCompile(`\b[A-Z]+-[A-Z]+-\d+\b`)

type checkInputOptions struct {
	inputFile    string
	findingsFile string
}

func newCheckInputCommand(app *App) *cobra.Command {
	cfg := app.Config
	opts := &checkInputOptions{}

	cmd := &cobra.Command{
		Use:   "check-input",
		Short: "Verify input.md carries a populated Findings Applied section",
		Long: `Verify the supervisor's input file includes a "Findings Applied" section
listing finding IDs from the findings log, or an explicit
"No relevant findings" statement.

Exit codes: 2 missing input file, 3 missing section, 4 empty section.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(opts.inputFile)
			if err != nil {
				cmd.PrintErrf("ERROR: %s not found\n", opts.inputFile)
				return NewExitError(2)
			}
			content := string(data)

			if !strings.Contains(content, "Findings Applied") {
				cmd.PrintErrln("ERROR: input.md missing 'Findings Applied' section")
				return NewExitError(3)
			}

			ids := findingIDPattern.FindAllString(content, -1)
			if len(ids) == 0 && !strings.Contains(content, "No relevant findings") {
				cmd.PrintErrln("ERROR: 'Findings Applied' must list finding IDs or state 'No relevant findings'")
				return NewExitError(4)
			}

			cmd.Println("OK: 'Findings Applied' present and populated")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.inputFile, "input", cfg.InputFile, "Path to input.md")
	f.StringVar(&opts.findingsFile, "findings", cfg.FindingsFile, "Path to findings.md")

	return cmd
}
