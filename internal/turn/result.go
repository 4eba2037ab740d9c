package turn

import (
	"strings"
	"time"

	"github.com/zjrosen/jarvis-voice/internal/protocol"
	"github.com/zjrosen/jarvis-voice/internal/tools"
)

// Phase is a step of a turn. Phases run in declaration order and never repeat.
type Phase string

const (
	PhaseBoot         Phase = "boot"
	PhaseRecording    Phase = "recording"
	PhaseTranscribing Phase = "transcribing"
	PhaseDispatching  Phase = "dispatching"
	PhaseDone         Phase = "done"
)

// Abort explains why a turn stopped early. The zero value means it did not.
type Abort string

const (
	AbortRecordingFailed Abort = "recording_failed"
	AbortInterrupted     Abort = "interrupted"
)

// Result is everything one turn produced. Every turn yields a Result, even
// when a phase failed.
type Result struct {
	ID          string
	SessionID   string
	StartedAt   time.Time
	CompletedAt time.Time

	Transcript string
	// Response is the spoken reply, assembled from chunks when the backend
	// does not send a final response event.
	Response  string
	ToolCalls []protocol.ToolCall
	Outcomes  []tools.Outcome

	// Terminate asks the wake loop to end the session.
	Terminate bool
	// OfflineMode is reported by the backend and does not change turn logic.
	OfflineMode bool
	Aborted     Abort
}

// Duration is the wall time of the turn.
func (r Result) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// ContainsDisengage reports whether text contains any phrase, ignoring case.
func ContainsDisengage(text string, phrases []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
