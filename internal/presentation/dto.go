// Package presentation renders turn history and tool definitions for the CLI.
package presentation

import (
	"time"

	"github.com/zjrosen/jarvis-voice/internal/history"
)

// TurnDTO is a stored turn as printed by `jarvis history`.
type TurnDTO struct {
	TurnID      string    `json:"turn_id"`
	SessionID   string    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Transcript  string    `json:"transcript,omitempty"`
	Response    string    `json:"response,omitempty"`
	Tools       []ToolDTO `json:"tools"` // always present
	Terminate   bool      `json:"terminate"`
	OfflineMode bool      `json:"offline_mode"`
	Aborted     string    `json:"aborted,omitempty"`
}

// ToolDTO is one dispatched tool call.
type ToolDTO struct {
	Tool     string `json:"tool"`
	Task     string `json:"task,omitempty"`
	ExitCode int    `json:"exit_code"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// FromRecord converts a history record to a DTO.
func FromRecord(r *history.Record) TurnDTO {
	tools := make([]ToolDTO, len(r.Tools))
	for i, t := range r.Tools {
		tools[i] = ToolDTO(t)
	}
	return TurnDTO{
		TurnID:      r.TurnID,
		SessionID:   r.SessionID,
		StartedAt:   r.StartedAt.UTC(),
		DurationMS:  r.Duration().Milliseconds(),
		Transcript:  r.Transcript,
		Response:    r.Response,
		Tools:       tools,
		Terminate:   r.Terminate,
		OfflineMode: r.OfflineMode,
		Aborted:     r.Aborted,
	}
}

// FromRecords converts records in order.
func FromRecords(recs []*history.Record) []TurnDTO {
	out := make([]TurnDTO, len(recs))
	for i, r := range recs {
		out[i] = FromRecord(r)
	}
	return out
}
