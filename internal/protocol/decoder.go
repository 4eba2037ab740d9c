package protocol

import (
	"bytes"
	"encoding/json"
)

// DefaultMaxLineSize bounds a single protocol line. Longer lines are dropped.
const DefaultMaxLineSize = 1024 * 1024

// DecodeLine parses one line of worker output.
// It returns false for anything that is not a recognized event: invalid JSON,
// a missing or unknown "event" discriminator, or a known kind that lacks the
// field it exists to carry (recording_complete without file, tool_call
// without a function name).
func DecodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return Event{}, false
	}

	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return Event{}, false
	}
	if !w.Event.Known() {
		return Event{}, false
	}

	ev := Event{
		Kind: w.Event,
		Raw:  append([]byte(nil), line...),
	}

	switch w.Event {
	case KindWakeWordDetected:
		ev.Transcript = w.Transcript
	case KindRecordingComplete:
		if w.File == "" {
			return Event{}, false
		}
		ev.File = w.File
	case KindTranscript, KindAssistantChunk, KindResponse:
		ev.Text = w.Text
	case KindToolCall:
		if w.Call == nil || w.Call.Function.Name == "" {
			return Event{}, false
		}
		ev.Call = &ToolCall{
			ID:   w.Call.ID,
			Type: w.Call.Type,
			Function: FunctionCall{
				Name:      w.Call.Function.Name,
				Arguments: argumentString(w.Call.Function.Arguments),
			},
		}
	case KindBootComplete:
		ev.OfflineMode = w.OfflineMode
	case KindOfflineMode:
		ev.OfflineMode = true
		ev.Reason = w.Reason
	case KindError:
		ev.Message = w.Message
	}

	return ev, true
}

// argumentString normalizes the arguments field. Backends are expected to send
// a JSON string; some send the object itself, which is kept as its raw text.
func argumentString(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// LineBuffer splits a byte stream into lines across arbitrary chunk
// boundaries. A partial trailing line is held until its newline arrives or
// Flush is called.
type LineBuffer struct {
	buf      []byte
	max      int
	dropping bool
}

// NewLineBuffer creates a LineBuffer that discards lines longer than limit bytes.
// A limit of 0 or less uses DefaultMaxLineSize.
func NewLineBuffer(limit int) *LineBuffer {
	if limit <= 0 {
		limit = DefaultMaxLineSize
	}
	return &LineBuffer{max: limit}
}

// Feed appends chunk and calls emit once per complete line, in order.
// The slice passed to emit is only valid for the duration of the call.
func (b *LineBuffer) Feed(chunk []byte, emit func(line []byte)) {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			b.append(chunk)
			return
		}
		b.append(chunk[:i])
		if !b.dropping {
			emit(bytes.TrimSuffix(b.buf, []byte("\r")))
		}
		b.buf = b.buf[:0]
		b.dropping = false
		chunk = chunk[i+1:]
	}
}

// Flush emits a buffered unterminated line, if any.
func (b *LineBuffer) Flush(emit func(line []byte)) {
	if len(b.buf) > 0 && !b.dropping {
		emit(bytes.TrimSuffix(b.buf, []byte("\r")))
	}
	b.buf = b.buf[:0]
	b.dropping = false
}

func (b *LineBuffer) append(p []byte) {
	if b.dropping {
		return
	}
	if len(b.buf)+len(p) > b.max {
		b.buf = b.buf[:0]
		b.dropping = true
		return
	}
	b.buf = append(b.buf, p...)
}

// Decoder turns raw stdout chunks into events, skipping noise.
type Decoder struct {
	lines *LineBuffer
}

// NewDecoder creates a Decoder with the default line size limit.
func NewDecoder() *Decoder {
	return &Decoder{lines: NewLineBuffer(0)}
}

// Feed consumes a chunk and returns the events completed by it.
func (d *Decoder) Feed(chunk []byte) []Event {
	var out []Event
	d.lines.Feed(chunk, func(line []byte) {
		if ev, ok := DecodeLine(line); ok {
			out = append(out, ev)
		}
	})
	return out
}

// Flush decodes a trailing line that had no newline.
func (d *Decoder) Flush() []Event {
	var out []Event
	d.lines.Flush(func(line []byte) {
		if ev, ok := DecodeLine(line); ok {
			out = append(out, ev)
		}
	})
	return out
}
