package testutil

import (
	"time"

	"github.com/zjrosen/jarvis-voice/internal/history"
)

// TurnOption customizes a fixture turn.
type TurnOption func(*history.Record)

// Session sets the session ID.
func Session(id string) TurnOption {
	return func(r *history.Record) { r.SessionID = id }
}

// Transcript sets the spoken text.
func Transcript(text string) TurnOption {
	return func(r *history.Record) { r.Transcript = text }
}

// Response sets the reply text.
func Response(text string) TurnOption {
	return func(r *history.Record) { r.Response = text }
}

// Tool appends a dispatched tool call.
func Tool(name, task, status string) TurnOption {
	return func(r *history.Record) {
		r.Tools = append(r.Tools, history.ToolRecord{Tool: name, Task: task, Status: status})
	}
}

// FailedTool appends a tool call that did not complete.
func FailedTool(name string, exitCode int, errText string) TurnOption {
	return func(r *history.Record) {
		r.Tools = append(r.Tools, history.ToolRecord{Tool: name, ExitCode: exitCode, Status: "failed", Error: errText})
	}
}

// Terminate marks the turn as ending the session.
func Terminate() TurnOption {
	return func(r *history.Record) { r.Terminate = true }
}

// Offline marks the turn as run without the assistant backend.
func Offline() TurnOption {
	return func(r *history.Record) { r.OfflineMode = true }
}

// Aborted marks the turn as aborted and clears its conversation text.
func Aborted(reason string) TurnOption {
	return func(r *history.Record) {
		r.Aborted = reason
		r.Transcript = ""
		r.Response = ""
	}
}

// StartedAt sets the start offset from the builder's base time.
func StartedAt(offset time.Duration) TurnOption {
	return func(r *history.Record) {
		d := r.Duration()
		r.StartedAt = r.StartedAt.Add(offset)
		r.CompletedAt = r.StartedAt.Add(d)
	}
}

// Took sets the turn's wall time.
func Took(d time.Duration) TurnOption {
	return func(r *history.Record) { r.CompletedAt = r.StartedAt.Add(d) }
}
