package runner

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// asciiEOT is Ctrl-D. Sent after the stdin source is copied into the master
// so a line-reading child sees end of input.
const asciiEOT = 0x04

// runPTY runs cmd attached to a pseudo-terminal. Both child stdout and stderr
// land on the slave end, so the PTY backend has a single output channel; all
// chunks flow through the stdout sink. The stdin source is copied into the
// master followed by an EOT.
func runPTY(cmd *exec.Cmd, stdin *os.File, tr *teeRun, startTimeout func(pid int)) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("starting process on pty: %w", err)
	}
	defer ptmx.Close()
	startTimeout(cmd.Process.Pid)

	go func() {
		io.Copy(ptmx, stdin)
		ptmx.Write([]byte{asciiEOT})
	}()

	// Reading the master returns EIO once the child exits and the slave
	// side closes; that is the normal termination path, not an error.
	drain(ptmx, tr.emitOut)

	return cmd.Wait()
}
