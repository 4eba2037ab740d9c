// Package history keeps a durable record of finished turns.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/zjrosen/jarvis-voice/internal/turn"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("history: record not found")

// ToolRecord is one dispatched tool call.
type ToolRecord struct {
	Tool     string `json:"tool"`
	Task     string `json:"task,omitempty"`
	ExitCode int    `json:"exit_code"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Record is a stored turn. ID is assigned by the repository on first save.
type Record struct {
	ID          int64
	TurnID      string
	SessionID   string
	Transcript  string
	Response    string
	Tools       []ToolRecord
	Terminate   bool
	OfflineMode bool
	Aborted     string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration is the wall time of the turn.
func (r *Record) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// ListFilter narrows List.
type ListFilter struct {
	// SessionID limits results to one session when set.
	SessionID string
	// Limit caps the number of records. Zero means no limit.
	Limit int
}

// Repository persists turn records. Implementations must be safe for use
// from the recorder goroutine and CLI commands at the same time.
type Repository interface {
	// Save inserts r when r.ID is zero and sets the ID, otherwise updates it.
	Save(ctx context.Context, r *Record) error
	// FindByTurnID returns ErrNotFound when the turn was never recorded.
	FindByTurnID(ctx context.Context, turnID string) (*Record, error)
	// List returns records newest first.
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
	// Prune deletes records that started before cutoff and returns how many.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// FromResult converts a finished turn into a Record.
func FromResult(res turn.Result) *Record {
	rec := &Record{
		TurnID:      res.ID,
		SessionID:   res.SessionID,
		Transcript:  res.Transcript,
		Response:    res.Response,
		Terminate:   res.Terminate,
		OfflineMode: res.OfflineMode,
		Aborted:     string(res.Aborted),
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
	}
	for _, out := range res.Outcomes {
		tr := ToolRecord{
			Tool:     out.Tool,
			Task:     out.Task,
			ExitCode: out.ExitCode,
			Status:   out.Status.String(),
		}
		if out.Err != nil {
			tr.Error = out.Err.Error()
		}
		rec.Tools = append(rec.Tools, tr)
	}
	return rec
}
