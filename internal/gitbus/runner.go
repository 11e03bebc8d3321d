package gitbus

import (
	"bytes"
	"os/exec"
	"strings"
)

// CommandRunner executes git commands. The interface exists so the bus can
// be tested against a scripted runner without a real repository.
type CommandRunner interface {
	// Run executes a command in workDir and returns the trimmed stdout.
	// A non-zero exit returns a *CommandError wrapping the output.
	Run(workDir string, name string, args ...string) (string, error)
}

// ExecRunner is the default CommandRunner backed by exec.Command.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(workDir, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = err.Error()
		}
		return msg, &CommandError{
			Command: name,
			Args:    args,
			Output:  msg,
			Err:     err,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CommandError carries the output of a failed command.
type CommandError struct {
	Command string
	Args    []string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "command failed"
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
