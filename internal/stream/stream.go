// Package stream converts agent CLI stream-json output into plain text.
//
// Agent CLIs invoked with a streaming JSON output format emit one JSON event
// per line. Operators and logs want readable text, so [TextFilter] sits
// between the child's stdout and the terminal/log sinks: text deltas are
// unwrapped, error events are diverted to stderr, and anything that is not
// JSON passes through unchanged. The filter is best-effort by design; a
// malformed event must never break the stream.
package stream

import (
	"encoding/json"
)

// Event is one line of stream-json output. Only the fields the text filter
// cares about are modeled; unknown fields are ignored.
type Event struct {
	Type    string          `json:"type"`
	Delta   *Delta          `json:"delta,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
	Message *MessageContent `json:"message,omitempty"`
}

// Delta carries incremental text for content_block_delta events.
type Delta struct {
	Text string `json:"text,omitempty"`
}

// ErrorDetail carries the message of an error event.
type ErrorDetail struct {
	Message string `json:"message,omitempty"`
}

// MessageContent is the assistant-message shape some agent CLIs emit instead
// of raw deltas: a list of typed content blocks.
type MessageContent struct {
	Content []ContentBlock `json:"content,omitempty"`
}

// ContentBlock is a single block within a [MessageContent].
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ExtractText returns the displayable text of one event line, or "" when the
// event carries none.
func (e *Event) ExtractText() string {
	switch e.Type {
	case "content_block_delta":
		if e.Delta != nil {
			return e.Delta.Text
		}
	case "assistant":
		if e.Message != nil {
			var text string
			for _, block := range e.Message.Content {
				if block.Type == "text" {
					text += block.Text
				}
			}
			return text
		}
	}
	return ""
}

// ParseLine parses a single stream-json line. The boolean is false when the
// line is not JSON at all; such lines pass through the filter verbatim.
func ParseLine(line []byte) (*Event, bool) {
	var event Event
	if err := json.Unmarshal(line, &event); err != nil {
		return nil, false
	}
	return &event, true
}
