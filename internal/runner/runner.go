// Package runner executes child processes with tee'd output.
//
// [Run] is the workhorse: it launches an argv with stdin fed from a file,
// streams every output chunk to both the operator's terminal and an append
// log with no buffering delay, and layers heartbeat and timeout handling on
// top. Two I/O backends exist behind the same interface: plain pipes with
// separate stdout/stderr sinks, and a pseudo-terminal for CLIs that change
// behavior when they detect a terminal. [PTYMode] selects between them.
//
// [CaptureRun] is the buffered sibling used for short helper invocations
// whose output is consumed programmatically rather than streamed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// ExitTimeout is the distinguished exit code recorded when a child is killed
// for exceeding its timeout. Matches the timeout(1) convention.
const ExitTimeout = 124

// readChunkSize is the per-read buffer size for both I/O backends.
const readChunkSize = 4096

// defaultKillGrace is how long a timed-out child gets between SIGTERM and
// SIGKILL.
const defaultKillGrace = 5 * time.Second

// PTYMode selects the I/O backend.
type PTYMode int

const (
	// PTYAuto allocates a pseudo-terminal only when the orchestrator itself
	// is attached to one.
	PTYAuto PTYMode = iota

	// PTYAlways forces pseudo-terminal allocation.
	PTYAlways

	// PTYNever forces plain pipes.
	PTYNever
)

// ParsePTYMode parses the PAIRLOOP_PTY value.
func ParsePTYMode(value string) (PTYMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return PTYAuto, nil
	case "always", "true", "1":
		return PTYAlways, nil
	case "never", "false", "0":
		return PTYNever, nil
	}
	return PTYAuto, fmt.Errorf("unsupported PTY mode %q: use auto, always, or never", value)
}

// Options configures a single [Run] invocation.
type Options struct {
	// HeartbeatInterval enables "still running" progress lines when > 0.
	HeartbeatInterval time.Duration

	// Timeout kills the child (SIGTERM, then SIGKILL after KillGrace) when
	// > 0 and elapsed wall time exceeds it. The run returns [ExitTimeout].
	Timeout time.Duration

	// KillGrace is the SIGTERM-to-SIGKILL window. Zero means the default.
	KillGrace time.Duration

	// PTY selects the I/O backend.
	PTY PTYMode

	// Stdbuf wraps the argv in stdbuf(1) to unbuffer the child's own stdio.
	// Only meaningful with the pipe backend; a PTY already line-buffers.
	Stdbuf bool

	// Stdout and Stderr are the terminal-facing sinks. Nil means the
	// process's own stdout and stderr.
	Stdout io.Writer
	Stderr io.Writer

	// StdoutFilter, when set, wraps the stdout sink (terminal and log
	// together) so both see identical transformed bytes. Used to render
	// stream-json agent output as plain text.
	StdoutFilter func(io.Writer) io.Writer
}

// OptionsFromEnv builds Options from the PAIRLOOP_* environment variables:
// PAIRLOOP_HEARTBEAT_SECS, PAIRLOOP_TIMEOUT_SECS, PAIRLOOP_PTY, and
// PAIRLOOP_STDBUF. Unset variables leave the zero value in place except for
// the heartbeat, which defaults to 30 seconds.
func OptionsFromEnv() (Options, error) {
	opts := Options{HeartbeatInterval: 30 * time.Second}

	if v := os.Getenv("PAIRLOOP_HEARTBEAT_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid PAIRLOOP_HEARTBEAT_SECS %q: %w", v, err)
		}
		opts.HeartbeatInterval = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("PAIRLOOP_TIMEOUT_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("invalid PAIRLOOP_TIMEOUT_SECS %q: %w", v, err)
		}
		opts.Timeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("PAIRLOOP_PTY"); v != "" {
		mode, err := ParsePTYMode(v)
		if err != nil {
			return Options{}, err
		}
		opts.PTY = mode
	}
	switch strings.ToLower(os.Getenv("PAIRLOOP_STDBUF")) {
	case "1", "true", "yes":
		opts.Stdbuf = true
	}
	return opts, nil
}

// usePTY resolves the effective backend for this run.
func (o Options) usePTY() bool {
	switch o.PTY {
	case PTYAlways:
		return true
	case PTYNever:
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// teeRun carries the shared streaming state for one invocation. All sink
// writes go through emit under a single mutex so the log always matches the
// terminal byte-for-byte, in write order.
type teeRun struct {
	mu         sync.Mutex
	start      time.Time
	lastOutput time.Time
	lastBeat   time.Time

	outSink io.Writer
	errSink io.Writer

	heartbeatSink io.Writer
}

func (t *teeRun) emitOut(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outSink.Write(p)
	t.lastOutput = time.Now()
}

func (t *teeRun) emitErr(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errSink.Write(p)
	t.lastOutput = time.Now()
}

// maybeHeartbeat emits a progress line when the child has been silent for at
// least interval and the previous heartbeat is at least interval old.
func (t *teeRun) maybeHeartbeat(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if now.Sub(t.lastOutput) < interval || now.Sub(t.lastBeat) < interval {
		return
	}
	elapsed := int(now.Sub(t.start).Seconds())
	fmt.Fprintf(t.heartbeatSink, "still running (%ds elapsed)\n", elapsed)
	t.lastBeat = now
}

// Run executes argv with stdin fed from stdinPath (empty means /dev/null),
// streaming all output to both the terminal sinks and an append log at
// logPath. The first log entry is the invoked command line. Run returns the
// child's exit code, or [ExitTimeout] when the timeout fired.
func Run(ctx context.Context, argv []string, stdinPath, logPath string, opts Options) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty command")
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return 0, fmt.Errorf("creating log directory: %w", err)
	}
	flog, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("opening log file: %w", err)
	}
	defer flog.Close()

	if _, err := fmt.Fprintf(flog, "$ %s\n", strings.Join(argv, " ")); err != nil {
		return 0, fmt.Errorf("writing log header: %w", err)
	}

	stdin, err := openStdin(stdinPath)
	if err != nil {
		return 0, err
	}
	defer stdin.Close()

	usePTY := opts.usePTY()
	if opts.Stdbuf && !usePTY {
		argv = append([]string{"stdbuf", "-i0", "-o0", "-e0"}, argv...)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	tr := &teeRun{
		start:         time.Now(),
		lastOutput:    time.Now(),
		lastBeat:      time.Now(),
		outSink:       io.MultiWriter(stdout, flog),
		errSink:       io.MultiWriter(stderr, flog),
		heartbeatSink: io.MultiWriter(stdout, flog),
	}
	if opts.StdoutFilter != nil {
		tr.outSink = opts.StdoutFilter(tr.outSink)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var timedOut timeoutFlag
	stopTimeout := func() {}
	startTimeout := func(pid int) {
		if opts.Timeout <= 0 {
			return
		}
		grace := opts.KillGrace
		if grace == 0 {
			grace = defaultKillGrace
		}
		timer := time.AfterFunc(opts.Timeout, func() {
			timedOut.set()
			terminateGroup(pid, grace)
		})
		stopTimeout = func() { timer.Stop() }
	}

	stopHeartbeat := func() {}
	if opts.HeartbeatInterval > 0 {
		ticker := time.NewTicker(opts.HeartbeatInterval / 2)
		done := make(chan struct{})
		go func() {
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					tr.maybeHeartbeat(opts.HeartbeatInterval)
				}
			}
		}()
		stopHeartbeat = func() {
			ticker.Stop()
			close(done)
		}
	}
	defer stopHeartbeat()

	var waitErr error
	if usePTY {
		waitErr = runPTY(cmd, stdin, tr, startTimeout)
	} else {
		waitErr = runPipes(cmd, stdin, tr, startTimeout)
	}
	stopTimeout()

	// The filter may hold a final line without a trailing newline; drain it
	// so the terminal and log carry the child's complete output.
	if f, ok := tr.outSink.(interface{ Flush() }); ok {
		tr.mu.Lock()
		f.Flush()
		tr.mu.Unlock()
	}

	if timedOut.isSet() {
		tr.mu.Lock()
		fmt.Fprintf(tr.heartbeatSink, "timeout after %s, process killed\n", opts.Timeout)
		tr.mu.Unlock()
		return ExitTimeout, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("running %s: %w", argv[0], waitErr)
	}
	return 0, nil
}

// timeoutFlag is a mutex-guarded bool shared between the timeout callback and
// the main goroutine.
type timeoutFlag struct {
	mu  sync.Mutex
	hit bool
}

func (f *timeoutFlag) set() {
	f.mu.Lock()
	f.hit = true
	f.mu.Unlock()
}

func (f *timeoutFlag) isSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hit
}

// terminateGroup sends SIGTERM to the child's process group and escalates to
// SIGKILL if it is still alive after the grace window.
func terminateGroup(pid int, grace time.Duration) {
	syscall.Kill(-pid, syscall.SIGTERM)
	time.AfterFunc(grace, func() {
		syscall.Kill(-pid, syscall.SIGKILL)
	})
}

func openStdin(path string) (*os.File, error) {
	if path == "" {
		return os.Open(os.DevNull)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stdin source: %w", err)
	}
	return f, nil
}
