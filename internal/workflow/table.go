package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the YAML shape of a custom workflow entry.
//
// Example workflows file:
//
//	workflows:
//	  triage:
//	    steps:
//	      - name: triage
//	        prompt: triage.md
//	      - name: fix
//	        prompt: fix.md
//	    review_prompt: reviewer.md
type Definition struct {
	Steps        []Step `yaml:"steps"`
	ReviewPrompt string `yaml:"review_prompt"`
}

type tableFile struct {
	Workflows map[string]Definition `yaml:"workflows"`
}

// LoadTable reads a custom workflow table from a YAML file.
func LoadTable(path string) (map[string]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflows file: %w", err)
	}

	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse workflows file: %w", err)
	}
	return tf.Workflows, nil
}

// FromDefinition builds a [Workflow] from a custom definition. Definitions
// must carry at least one step, and every step needs a prompt.
func FromDefinition(name string, def Definition, reviewEveryNCycles int) (*Workflow, error) {
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", name)
	}
	for i, s := range def.Steps {
		if s.Prompt == "" {
			return nil, fmt.Errorf("workflow %q step %d has no prompt", name, i)
		}
	}

	w := &Workflow{
		Name:         name,
		Steps:        def.Steps,
		ReviewPrompt: def.ReviewPrompt,
	}
	if def.ReviewPrompt != "" {
		w.ReviewEveryNCycles = reviewEveryNCycles
	}
	return w, nil
}

// Resolve looks a workflow up by name, consulting the custom table first and
// the built-ins second. A nil or empty table behaves like [Get].
func Resolve(name string, table map[string]Definition, reviewEveryNCycles int) (*Workflow, error) {
	if def, ok := table[name]; ok {
		return FromDefinition(name, def, reviewEveryNCycles)
	}
	return Get(name, reviewEveryNCycles)
}
