package sqlite

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/jarvis-voice/internal/history"
)

// TurnModel is a row of the turns table. Times are Unix milliseconds.
type TurnModel struct {
	ID          int64
	TurnID      string
	SessionID   string
	Transcript  *string // nullable
	Response    *string // nullable
	ToolCalls   *string // nullable, JSON encoded
	Terminate   bool
	OfflineMode bool
	Aborted     *string // nullable
	StartedAt   int64
	CompletedAt int64
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toTurnModel(r *history.Record) (*TurnModel, error) {
	m := &TurnModel{
		ID:          r.ID,
		TurnID:      r.TurnID,
		SessionID:   r.SessionID,
		Transcript:  nullable(r.Transcript),
		Response:    nullable(r.Response),
		Terminate:   r.Terminate,
		OfflineMode: r.OfflineMode,
		Aborted:     nullable(r.Aborted),
		StartedAt:   r.StartedAt.UnixMilli(),
		CompletedAt: r.CompletedAt.UnixMilli(),
	}
	if len(r.Tools) > 0 {
		data, err := json.Marshal(r.Tools)
		if err != nil {
			return nil, err
		}
		tools := string(data)
		m.ToolCalls = &tools
	}
	return m, nil
}

func (m *TurnModel) toRecord() (*history.Record, error) {
	r := &history.Record{
		ID:          m.ID,
		TurnID:      m.TurnID,
		SessionID:   m.SessionID,
		Transcript:  deref(m.Transcript),
		Response:    deref(m.Response),
		Terminate:   m.Terminate,
		OfflineMode: m.OfflineMode,
		Aborted:     deref(m.Aborted),
		StartedAt:   time.UnixMilli(m.StartedAt),
		CompletedAt: time.UnixMilli(m.CompletedAt),
	}
	if m.ToolCalls != nil {
		if err := json.Unmarshal([]byte(*m.ToolCalls), &r.Tools); err != nil {
			return nil, err
		}
	}
	return r, nil
}
