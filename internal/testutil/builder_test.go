package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewTurn_Defaults(t *testing.T) {
	r := NewTurn("turn-1")

	require.Equal(t, "turn-1", r.TurnID)
	require.Equal(t, "s1", r.SessionID)
	require.NotEmpty(t, r.Transcript)
	require.Equal(t, Base, r.StartedAt)
	require.Equal(t, 3*time.Second, r.Duration())
	require.Zero(t, r.ID)
}

func TestNewTurn_AllOptions(t *testing.T) {
	r := NewTurn("turn-1",
		Session("s9"),
		Transcript("deploy it"),
		Response("Deploying."),
		Tool("run_task", "deploy", "completed"),
		FailedTool("rm_rf", -1, "unknown tool"),
		Terminate(),
		Offline(),
		StartedAt(time.Hour),
		Took(2*time.Second),
	)

	require.Equal(t, "s9", r.SessionID)
	require.Equal(t, "deploy it", r.Transcript)
	require.Equal(t, "Deploying.", r.Response)
	require.Len(t, r.Tools, 2)
	require.Equal(t, "deploy", r.Tools[0].Task)
	require.Equal(t, "failed", r.Tools[1].Status)
	require.True(t, r.Terminate)
	require.True(t, r.OfflineMode)
	require.Equal(t, Base.Add(time.Hour), r.StartedAt)
	require.Equal(t, 2*time.Second, r.Duration())
}

func TestStartedAt_KeepsDuration(t *testing.T) {
	r := NewTurn("t", Took(5*time.Second), StartedAt(-time.Minute))

	require.Equal(t, Base.Add(-time.Minute), r.StartedAt)
	require.Equal(t, 5*time.Second, r.Duration())
}

func TestAborted_ClearsConversation(t *testing.T) {
	r := NewTurn("t", Aborted("interrupted"))

	require.Equal(t, "interrupted", r.Aborted)
	require.Empty(t, r.Transcript)
	require.Empty(t, r.Response)
}

func TestBuilder_KeepsInsertionOrder(t *testing.T) {
	turns := NewBuilder(t).
		WithTurn("a").
		WithTurn("b", Session("s2")).
		WithTurn("c").
		Build()

	require.Equal(t, []string{"a", "b", "c"}, TurnIDs(turns))
	require.Equal(t, "s2", turns[1].SessionID)
}
