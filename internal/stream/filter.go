package stream

import (
	"bytes"
	"io"
	"strings"
)

// TextFilter is an [io.Writer] that accepts raw stream-json bytes and writes
// plain text to Out. Complete lines are processed as events; a trailing
// partial line is buffered until its newline arrives or [TextFilter.Flush]
// is called. Error events go to Err instead of Out.
type TextFilter struct {
	Out io.Writer
	Err io.Writer

	buf bytes.Buffer
}

// NewTextFilter builds a filter writing text to out and error messages to
// errw. A nil errw discards error events.
func NewTextFilter(out, errw io.Writer) *TextFilter {
	if errw == nil {
		errw = io.Discard
	}
	return &TextFilter{Out: out, Err: errw}
}

// Write buffers p and processes every complete line it contains. It always
// reports the full length as consumed; sink write errors are not propagated
// because the stream must keep flowing for the log's sake.
func (f *TextFilter) Write(p []byte) (int, error) {
	f.buf.Write(p)
	for {
		data := f.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx+1)
		f.buf.Read(line)
		f.processLine(line)
	}
	return len(p), nil
}

// Flush processes any buffered partial line. Call after the child exits so a
// final line without a trailing newline is not lost.
func (f *TextFilter) Flush() {
	if f.buf.Len() == 0 {
		return
	}
	line := f.buf.Bytes()
	f.buf.Reset()
	f.processLine(line)
}

func (f *TextFilter) processLine(raw []byte) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return
	}

	event, ok := ParseLine(trimmed)
	if !ok {
		// Not JSON, pass through unchanged.
		f.Out.Write(raw)
		return
	}

	if event.Type == "error" {
		if event.Error != nil && event.Error.Message != "" {
			io.WriteString(f.Err, event.Error.Message+"\n")
		}
		return
	}
	if text := event.ExtractText(); text != "" {
		io.WriteString(f.Out, text)
	}
}

// Render converts a complete stream-json document to plain text. Used when
// the output was captured rather than streamed.
func Render(raw string) string {
	var out strings.Builder
	f := NewTextFilter(&out, io.Discard)
	io.WriteString(f, raw)
	f.Flush()
	return out.String()
}
