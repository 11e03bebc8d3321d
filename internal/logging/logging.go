// Package logging defines the narrow logging port passed to collaborators.
//
// Turn execution, git synchronization, and autocommit all emit operator
// diagnostics; they receive a [Logger] rather than writing to stdout directly
// so the loop can tee diagnostics into per-iteration log files.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Logger receives operator-facing diagnostic lines.
type Logger interface {
	Log(msg string)
	Logf(format string, args ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Log(string)          {}
func (Nop) Logf(string, ...any) {}

// Writer logs to an io.Writer, one line per message.
type Writer struct {
	W io.Writer
}

func (w Writer) Log(msg string) {
	fmt.Fprintln(w.W, msg)
}

func (w Writer) Logf(format string, args ...any) {
	w.Log(fmt.Sprintf(format, args...))
}

// FileLogger appends timestamped lines to a file, creating parent
// directories on first use. Write failures are swallowed; diagnostics must
// never take down a turn.
type FileLogger struct {
	Path string
}

func (f FileLogger) Log(msg string) {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return
	}
	file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer file.Close()
	fmt.Fprintf(file, "[%s] %s\n", time.Now().Format("2006-01-02T15:04:05Z07:00"), msg)
}

func (f FileLogger) Logf(format string, args ...any) {
	f.Log(fmt.Sprintf(format, args...))
}

// Multi fans a message out to several loggers.
type Multi []Logger

func (m Multi) Log(msg string) {
	for _, l := range m {
		l.Log(msg)
	}
}

func (m Multi) Logf(format string, args ...any) {
	m.Log(fmt.Sprintf(format, args...))
}

// Capture is a test helper that records every logged line.
type Capture struct {
	Lines []string
}

func (c *Capture) Log(msg string) {
	c.Lines = append(c.Lines, msg)
}

func (c *Capture) Logf(format string, args ...any) {
	c.Log(fmt.Sprintf(format, args...))
}
