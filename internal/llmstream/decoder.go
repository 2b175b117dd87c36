// Package llmstream decodes a server-sent-event byte stream from an LLM
// completion endpoint into a lazy, finite sequence of Content/Reasoning
// token events. The decoder never merges consecutive
// events, never drops a non-empty token, and never emits an empty string.
//
// No HTTP client lives here: callers supply whatever io.Reader produced
// the response body (the LLM HTTP client itself is out of scope).
package llmstream

import (
	"bytes"
	"errors"
	"io"

	"github.com/tidwall/gjson"

	"github.com/veilm/hnt/internal/logging"
)

// EventType distinguishes a reasoning delta from a content delta.
type EventType int

const (
	Content EventType = iota
	Reasoning
)

func (t EventType) String() string {
	if t == Reasoning {
		return "reasoning"
	}
	return "content"
}

// Event is one decoded token.
type Event struct {
	Type EventType
	Text string
}

// doneSentinel is the SSE payload that terminates the stream.
const doneSentinel = "[DONE]"

// Decoder pulls Content/Reasoning events out of an SSE byte stream.
type Decoder struct {
	r       io.Reader
	buf     bytes.Buffer
	chunk   []byte
	queue   []Event
	done    bool
	readEOF bool
	readErr error // set when the underlying reader fails with a non-EOF error
}

// NewDecoder wraps r, which must yield bytes in the `data: {json}\n\n`
// SSE framing.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, 4096)}
}

// Next returns the next decoded event. It returns io.EOF once the stream
// ends cleanly (either by the `data: [DONE]` sentinel or by the
// underlying reader reaching EOF). If the underlying reader instead
// failed with a non-EOF error, that error is returned once the queue and
// buffer are drained, so the caller can tell a dropped connection apart
// from a clean end and offer retry-or-abort (spec.md §4.3, §4.5 LLM_ERROR).
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.done {
			if d.readErr != nil {
				return Event{}, d.readErr
			}
			return Event{}, io.EOF
		}
		if !d.fill() {
			if d.readErr != nil {
				return Event{}, d.readErr
			}
			return Event{}, io.EOF
		}
	}
}

// fill reads one terminator-delimited block out of the buffer (refilling
// from the underlying reader as needed), decodes it into zero or more
// events pushed onto d.queue, and reports whether progress was made.
func (d *Decoder) fill() bool {
	for {
		if block, ok := d.extractBlock(); ok {
			d.decodeBlock(block)
			if len(d.queue) > 0 || d.done {
				return true
			}
			continue
		}
		if d.readEOF {
			d.done = true
			return false
		}
		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.buf.Write(d.chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Error().Err(err).Msg("llmstream: reading SSE stream")
				d.readErr = err
			}
			d.readEOF = true
		}
	}
}

// extractBlock removes and returns the first `\n\n`- or `\r\n\r\n`-terminated
// block from the buffer, if one is complete.
func (d *Decoder) extractBlock() ([]byte, bool) {
	data := d.buf.Bytes()
	sep := []byte("\n\n")
	idx := bytes.Index(data, sep)
	sepLen := 2
	if crIdx := bytes.Index(data, []byte("\r\n\r\n")); crIdx != -1 && (idx == -1 || crIdx < idx) {
		idx = crIdx
		sepLen = 4
	}
	if idx == -1 {
		return nil, false
	}
	block := make([]byte, idx)
	copy(block, data[:idx])
	d.buf.Next(idx + sepLen)
	return block, true
}

// decodeBlock splits a block into lines and emits events for every
// `data: ` line it contains.
func (d *Decoder) decodeBlock(block []byte) {
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		const prefix = "data: "
		if !bytes.HasPrefix(line, []byte(prefix)) {
			continue
		}
		payload := bytes.TrimSpace(line[len(prefix):])
		if string(payload) == doneSentinel {
			d.done = true
			return
		}
		if !gjson.ValidBytes(payload) {
			logging.Warn().Str("payload", string(payload)).Msg("llmstream: malformed SSE JSON, skipping")
			continue
		}
		delta := gjson.GetBytes(payload, "choices.0.delta")
		if !delta.Exists() {
			continue
		}
		if r := delta.Get("reasoning"); r.Exists() && r.String() != "" {
			d.queue = append(d.queue, Event{Type: Reasoning, Text: r.String()})
		} else if r := delta.Get("reasoning_content"); r.Exists() && r.String() != "" {
			d.queue = append(d.queue, Event{Type: Reasoning, Text: r.String()})
		}
		if c := delta.Get("content"); c.Exists() && c.String() != "" {
			d.queue = append(d.queue, Event{Type: Content, Text: c.String()})
		}
	}
}

// Collect drains the decoder, calling fn for every event, until EOF or fn
// returns an error.
func Collect(d *Decoder, fn func(Event) error) error {
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
