package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CaptureResult holds the buffered output of a [CaptureRun] invocation.
type CaptureResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CaptureRun executes argv with stdin fed from stdinPath and buffers stdout
// and stderr instead of streaming them. Used for short helper invocations,
// such as running the router prompt, whose single-line output is parsed
// rather than watched.
func CaptureRun(ctx context.Context, argv []string, stdinPath string) (CaptureResult, error) {
	if len(argv) == 0 {
		return CaptureResult{}, errors.New("empty command")
	}

	stdin, err := openStdin(stdinPath)
	if err != nil {
		return CaptureResult{}, err
	}
	defer stdin.Close()

	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	result := CaptureResult{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("running %s: %w", argv[0], runErr)
	}
	return result, nil
}
