package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextFilter_ContentBlockDelta(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewTextFilter(&out, &errOut)

	f.Write([]byte(`{"type":"content_block_delta","delta":{"text":"Hello, "}}` + "\n"))
	f.Write([]byte(`{"type":"content_block_delta","delta":{"text":"world"}}` + "\n"))
	f.Flush()

	assert.Equal(t, "Hello, world", out.String())
	assert.Empty(t, errOut.String())
}

func TestTextFilter_AssistantMessage(t *testing.T) {
	var out bytes.Buffer
	f := NewTextFilter(&out, nil)

	f.Write([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"done"},{"type":"tool_use","name":"bash"}]}}` + "\n"))

	assert.Equal(t, "done", out.String())
}

func TestTextFilter_ErrorEventToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewTextFilter(&out, &errOut)

	f.Write([]byte(`{"type":"error","error":{"message":"rate limited"}}` + "\n"))

	assert.Empty(t, out.String())
	assert.Equal(t, "rate limited\n", errOut.String())
}

func TestTextFilter_NonJSONPassthrough(t *testing.T) {
	var out bytes.Buffer
	f := NewTextFilter(&out, nil)

	f.Write([]byte("plain progress line\n"))

	assert.Equal(t, "plain progress line\n", out.String())
}

func TestTextFilter_SplitWrites(t *testing.T) {
	var out bytes.Buffer
	f := NewTextFilter(&out, nil)

	// A single JSON line arriving across three writes.
	f.Write([]byte(`{"type":"content_bl`))
	f.Write([]byte(`ock_delta","delta":{"te`))
	f.Write([]byte(`xt":"chunked"}}` + "\n"))

	assert.Equal(t, "chunked", out.String())
}

func TestTextFilter_FlushPartialLine(t *testing.T) {
	var out bytes.Buffer
	f := NewTextFilter(&out, nil)

	f.Write([]byte(`{"type":"content_block_delta","delta":{"text":"tail"}}`))
	assert.Empty(t, out.String())

	f.Flush()
	assert.Equal(t, "tail", out.String())
}

func TestTextFilter_SkipsEventsWithoutText(t *testing.T) {
	var out bytes.Buffer
	f := NewTextFilter(&out, nil)

	f.Write([]byte(`{"type":"message_start"}` + "\n"))
	f.Write([]byte(`{"type":"content_block_delta"}` + "\n"))
	f.Write([]byte("\n"))

	assert.Empty(t, out.String())
}

func TestRender(t *testing.T) {
	raw := `{"type":"content_block_delta","delta":{"text":"a"}}` + "\n" +
		"raw line\n" +
		`{"type":"content_block_delta","delta":{"text":"b"}}` + "\n"

	assert.Equal(t, "araw line\nb", Render(raw))
}

func TestParseLine(t *testing.T) {
	event, ok := ParseLine([]byte(`{"type":"error","error":{"message":"boom"}}`))
	assert.True(t, ok)
	assert.Equal(t, "error", event.Type)
	assert.Equal(t, "boom", event.Error.Message)

	_, ok = ParseLine([]byte("not json"))
	assert.False(t, ok)
}
