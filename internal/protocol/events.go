// Package protocol decodes the line-delimited JSON events that voice workers
// write to stdout. Each line is one standalone JSON object whose "event" field
// selects the variant. Anything that does not decode to a known variant is
// noise and is skipped without affecting later lines.
package protocol

import "encoding/json"

// Kind identifies the variant of an Event.
type Kind string

const (
	// KindWakeWordDetected is emitted by the wake worker when the wake phrase is heard.
	KindWakeWordDetected Kind = "wake_word_detected"
	// KindRecordingStarted is emitted by the record worker when capture begins.
	KindRecordingStarted Kind = "recording_started"
	// KindRecordingComplete carries the path of the captured audio file.
	KindRecordingComplete Kind = "recording_complete"
	// KindTranscript carries the user's transcribed utterance.
	KindTranscript Kind = "transcript"
	// KindAssistantChunk is a streamed fragment of the spoken response.
	KindAssistantChunk Kind = "assistant_chunk"
	// KindResponse is the complete spoken response.
	KindResponse Kind = "response"
	// KindToolCall is a function call requested by the response backend.
	KindToolCall Kind = "tool_call"
	// KindGoodbye signals disengage intent.
	KindGoodbye Kind = "goodbye"
	// KindBootComplete is emitted once the boot announcement has been spoken.
	KindBootComplete Kind = "boot_complete"
	// KindOfflineMode reports that the backend runs without cloud credentials.
	KindOfflineMode Kind = "offline_mode"
	// KindError is a structured diagnostic from a worker.
	KindError Kind = "error"
)

var knownKinds = map[Kind]bool{
	KindWakeWordDetected:  true,
	KindRecordingStarted:  true,
	KindRecordingComplete: true,
	KindTranscript:        true,
	KindAssistantChunk:    true,
	KindResponse:          true,
	KindToolCall:          true,
	KindGoodbye:           true,
	KindBootComplete:      true,
	KindOfflineMode:       true,
	KindError:             true,
}

// Known reports whether k is a recognized event kind.
func (k Kind) Known() bool {
	return knownKinds[k]
}

// FunctionCall is the function part of a tool call.
// Arguments is a JSON-encoded object kept exactly as the backend emitted it.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a structured request to execute a named action.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Event is a decoded protocol record. Only the fields belonging to Kind are set.
type Event struct {
	Kind Kind

	// Transcript is the text the wake worker heard (wake_word_detected).
	Transcript string
	// Text is set for transcript, assistant_chunk and response.
	Text string
	// File is the audio artifact path (recording_complete).
	File string
	// Call is set for tool_call.
	Call *ToolCall
	// OfflineMode is set by boot_complete when the backend has no credentials.
	OfflineMode bool
	// Reason explains offline_mode.
	Reason string
	// Message is the diagnostic text of an error event.
	Message string

	// Raw is a copy of the source line.
	Raw []byte
}

// wireEvent is the superset of all variant fields as they appear on the wire.
type wireEvent struct {
	Event       Kind          `json:"event"`
	Transcript  string        `json:"transcript"`
	Text        string        `json:"text"`
	File        string        `json:"file"`
	Call        *wireToolCall `json:"call"`
	OfflineMode bool          `json:"offline_mode"`
	Reason      string        `json:"reason"`
	Message     string        `json:"message"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}
