package runner

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// runPipes runs cmd with plain pipes, preserving separate stdout and stderr
// sinks. Each pipe is drained by its own goroutine in fixed-size chunks; the
// shared tee mutex serializes sink writes. The child runs in its own process
// group so timeout termination reaches grandchildren.
func runPipes(cmd *exec.Cmd, stdin *os.File, tr *teeRun, startTimeout func(pid int)) error {
	cmd.Stdin = stdin
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting process: %w", err)
	}
	startTimeout(cmd.Process.Pid)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		drain(outPipe, tr.emitOut)
	}()
	go func() {
		defer wg.Done()
		drain(errPipe, tr.emitErr)
	}()

	wg.Wait()
	return cmd.Wait()
}

// drain copies r to emit in chunks until EOF or a read error. Errors are
// swallowed: a closed pipe on child exit is the normal termination path.
func drain(r io.Reader, emit func([]byte)) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			emit(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
