package llmstream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sse string) []Event {
	t.Helper()
	d := NewDecoder(strings.NewReader(sse))
	var events []Event
	err := Collect(d, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestDecoderReasoningThenContent(t *testing.T) {
	sse := `data: {"choices":[{"delta":{"reasoning":"thi"}}]}

data: {"choices":[{"delta":{"reasoning":"nk"}}]}

data: {"choices":[{"delta":{"content":"answer"}}]}

data: [DONE]

`
	events := drain(t, sse)
	require.Len(t, events, 3)
	assert.Equal(t, Event{Type: Reasoning, Text: "thi"}, events[0])
	assert.Equal(t, Event{Type: Reasoning, Text: "nk"}, events[1])
	assert.Equal(t, Event{Type: Content, Text: "answer"}, events[2])
}

func TestDecoderReasoningContentFieldAlias(t *testing.T) {
	sse := "data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"hmm\"}}]}\n\ndata: [DONE]\n\n"
	events := drain(t, sse)
	require.Len(t, events, 1)
	assert.Equal(t, Reasoning, events[0].Type)
	assert.Equal(t, "hmm", events[0].Text)
}

func TestDecoderSkipsEmptyAndUnknownFields(t *testing.T) {
	sse := "data: {\"choices\":[{\"delta\":{\"content\":\"\",\"role\":\"assistant\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\ndata: [DONE]\n\n"
	events := drain(t, sse)
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Text)
}

func TestDecoderToleratesMalformedJSON(t *testing.T) {
	sse := "data: not json at all\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n"
	events := drain(t, sse)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Text)
}

func TestDecoderEndsOnReaderEOFWithoutDone(t *testing.T) {
	sse := "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n"
	events := drain(t, sse)
	require.Len(t, events, 1)
	assert.Equal(t, "partial", events[0].Text)
}

func TestDecoderHandlesChunkedReads(t *testing.T) {
	full := "data: {\"choices\":[{\"delta\":{\"content\":\"hello\"}}]}\n\ndata: [DONE]\n\n"
	r := &byteAtATimeReader{data: []byte(full)}
	d := NewDecoder(r)
	var events []Event
	require.NoError(t, Collect(d, func(ev Event) error {
		events = append(events, ev)
		return nil
	}))
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Text)
}

func TestDecoderPropagatesNonEOFReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := &failingReader{data: []byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n"), failErr: boom}
	d := NewDecoder(r)

	var events []Event
	err := Collect(d, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	require.Len(t, events, 1)
	require.ErrorIs(t, err, boom)
}

type failingReader struct {
	data    []byte
	pos     int
	failErr error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.pos < len(r.data) {
		n := copy(p, r.data[r.pos:])
		r.pos += n
		return n, nil
	}
	return 0, r.failErr
}

type byteAtATimeReader struct {
	data []byte
	pos  int
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
