// Package workflow defines the step tables that sequence supervisor and
// engineer turns.
//
// A workflow is a repeating cycle of prompt-bearing steps. Resolution from a
// step index to a step is a pure function ([ResolveStep]); the review cadence
// replaces every step of each Nth cycle with the reviewer prompt, as a
// whole-cycle override rather than a per-step one.
//
// Built-in workflows come from a static table keyed by name ([Get]). Custom
// tables can be loaded from a YAML file, see [LoadTable].
package workflow

import (
	"errors"
	"fmt"
)

// ErrUnknownWorkflow is returned by [Get] for a name with no definition.
// Callers should treat this as a configuration error, not a runtime one.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// ReviewerStepName is the step name reported when the review cadence
// overrides a cycle.
const ReviewerStepName = "reviewer"

// Step is one position in a workflow cycle: a name and the prompt file it
// routes to.
type Step struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// Workflow is an immutable repeating cycle of steps, optionally with a review
// cadence. Construct via [Get] or [FromDefinition]; never mutate.
type Workflow struct {
	Name  string
	Steps []Step

	// ReviewEveryNCycles replaces every step of each Nth cycle with
	// ReviewPrompt when > 0 and ReviewPrompt is set.
	ReviewEveryNCycles int
	ReviewPrompt       string
}

// CycleLen returns the number of steps in one full cycle.
func (w *Workflow) CycleLen() int {
	return len(w.Steps)
}

// Prompts returns every prompt the workflow can route to, in step order, with
// the review prompt last when configured. Used as the default allowlist.
func (w *Workflow) Prompts() []string {
	prompts := make([]string, 0, len(w.Steps)+1)
	for _, s := range w.Steps {
		prompts = append(prompts, s.Prompt)
	}
	if w.ReviewPrompt != "" {
		prompts = append(prompts, w.ReviewPrompt)
	}
	return prompts
}

// Get constructs the named built-in workflow. reviewEveryNCycles only takes
// effect for workflows that carry a review prompt.
//
// Built-ins:
//   - "standard": supervisor.md, main.md
//   - "standard2": supervisor2.md, main2.md
//   - "review_cadence": standard steps plus reviewer.md cadence
//   - "review_cadence2": standard2 steps plus reviewer.md cadence
func Get(name string, reviewEveryNCycles int) (*Workflow, error) {
	switch name {
	case "standard":
		return &Workflow{
			Name:  name,
			Steps: []Step{{Name: "supervisor", Prompt: "supervisor.md"}, {Name: "main", Prompt: "main.md"}},
		}, nil
	case "standard2":
		return &Workflow{
			Name:  name,
			Steps: []Step{{Name: "supervisor", Prompt: "supervisor2.md"}, {Name: "main", Prompt: "main2.md"}},
		}, nil
	case "review_cadence":
		return &Workflow{
			Name:               name,
			Steps:              []Step{{Name: "supervisor", Prompt: "supervisor.md"}, {Name: "main", Prompt: "main.md"}},
			ReviewEveryNCycles: reviewEveryNCycles,
			ReviewPrompt:       "reviewer.md",
		}, nil
	case "review_cadence2":
		return &Workflow{
			Name:               name,
			Steps:              []Step{{Name: "supervisor", Prompt: "supervisor2.md"}, {Name: "main", Prompt: "main2.md"}},
			ReviewEveryNCycles: reviewEveryNCycles,
			ReviewPrompt:       "reviewer.md",
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
}

// ResolveStep maps a zero-based step index to the step that governs it.
//
// The base step is steps[stepIndex mod cycleLen]. When the review cadence is
// active and (cycleIndex+1) is a multiple of ReviewEveryNCycles, every step of
// that cycle resolves to the review prompt instead. Both roles review in a
// review cycle; that is deliberate policy, not an off-by-one.
func ResolveStep(w *Workflow, stepIndex int) Step {
	baseIndex := stepIndex % w.CycleLen()
	cycleIndex := stepIndex / w.CycleLen()
	if w.ReviewEveryNCycles > 0 && w.ReviewPrompt != "" {
		if (cycleIndex+1)%w.ReviewEveryNCycles == 0 {
			return Step{Name: ReviewerStepName, Prompt: w.ReviewPrompt}
		}
	}
	return w.Steps[baseIndex]
}
