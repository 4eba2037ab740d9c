// Package testutil builds turn history fixtures for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/jarvis-voice/internal/history"
)

// Base is the default start time of fixture turns.
var Base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Builder accumulates fixture turns in insertion order.
type Builder struct {
	t     *testing.T
	base  time.Time
	turns []*history.Record
}

// NewBuilder creates a builder whose turns start at Base.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, base: Base}
}

// NewTurn returns a completed turn with sensible defaults.
func NewTurn(turnID string, opts ...TurnOption) *history.Record {
	return newTurn(Base, turnID, opts...)
}

func newTurn(base time.Time, turnID string, opts ...TurnOption) *history.Record {
	r := &history.Record{
		TurnID:      turnID,
		SessionID:   "s1",
		Transcript:  "run the build task",
		Response:    "Starting the build.",
		StartedAt:   base,
		CompletedAt: base.Add(3 * time.Second),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithTurn adds a turn with optional configuration.
func (b *Builder) WithTurn(turnID string, opts ...TurnOption) *Builder {
	b.turns = append(b.turns, newTurn(b.base, turnID, opts...))
	return b
}

// Build returns the accumulated turns.
func (b *Builder) Build() []*history.Record {
	return b.turns
}

// Save stores every accumulated turn in repo and returns them with IDs set.
func (b *Builder) Save(repo history.Repository) []*history.Record {
	b.t.Helper()
	for _, r := range b.turns {
		require.NoError(b.t, repo.Save(context.Background(), r), "saving turn %s", r.TurnID)
	}
	return b.turns
}

// TurnIDs lists the turn IDs of recs in order.
func TurnIDs(recs []*history.Record) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.TurnID)
	}
	return ids
}
