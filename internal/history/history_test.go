package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/jarvis-voice/internal/pubsub"
	"github.com/zjrosen/jarvis-voice/internal/tools"
	"github.com/zjrosen/jarvis-voice/internal/turn"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Save(ctx context.Context, r *Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRepository) FindByTurnID(ctx context.Context, turnID string) (*Record, error) {
	args := m.Called(ctx, turnID)
	rec, _ := args.Get(0).(*Record)
	return rec, args.Error(1)
}

func (m *mockRepository) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	args := m.Called(ctx, filter)
	recs, _ := args.Get(0).([]*Record)
	return recs, args.Error(1)
}

func (m *mockRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func sampleResult() turn.Result {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return turn.Result{
		ID:          "turn-1",
		SessionID:   "session-1",
		StartedAt:   start,
		CompletedAt: start.Add(4 * time.Second),
		Transcript:  "run the build task",
		Response:    "Starting the build.",
		OfflineMode: true,
		Outcomes: []tools.Outcome{
			{Tool: tools.RunTask, Task: "build", ExitCode: 0, Status: worker.StatusCompleted},
			{Tool: "rm_rf", ExitCode: -1, Status: worker.StatusFailed, Err: tools.ErrUnknownTool},
		},
	}
}

func TestFromResult(t *testing.T) {
	rec := FromResult(sampleResult())

	require.Zero(t, rec.ID)
	require.Equal(t, "turn-1", rec.TurnID)
	require.Equal(t, "session-1", rec.SessionID)
	require.Equal(t, "run the build task", rec.Transcript)
	require.True(t, rec.OfflineMode)
	require.Empty(t, rec.Aborted)
	require.Equal(t, 4*time.Second, rec.Duration())
	require.Equal(t, []ToolRecord{
		{Tool: "run_task", Task: "build", ExitCode: 0, Status: "completed"},
		{Tool: "rm_rf", ExitCode: -1, Status: "failed", Error: tools.ErrUnknownTool.Error()},
	}, rec.Tools)
}

func TestFromResult_Aborted(t *testing.T) {
	res := sampleResult()
	res.Aborted = turn.AbortRecordingFailed
	res.Outcomes = nil

	rec := FromResult(res)
	require.Equal(t, "recording_failed", rec.Aborted)
	require.Empty(t, rec.Tools)
}

func TestRecorder_SavesPublishedResults(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Save", mock.Anything, mock.MatchedBy(func(r *Record) bool { return r.TurnID == "turn-1" })).
		Return(nil).Once()

	broker := pubsub.NewBroker[turn.Result]()
	ch := broker.Subscribe(context.Background())
	rec := NewRecorder(repo)

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background(), ch)
		close(done)
	}()

	broker.Publish(pubsub.TurnCompleted, sampleResult())
	require.Eventually(t, func() bool { return rec.Saved() == 1 }, time.Second, 5*time.Millisecond)

	broker.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "recorder did not stop when the broker closed")
	}
	repo.AssertExpectations(t)
}

func TestRecorder_SaveFailureIsCountedAndContinues(t *testing.T) {
	repo := &mockRepository{}
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()
	repo.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	rec := NewRecorder(repo)

	rec.Record(context.Background(), sampleResult())
	rec.Record(context.Background(), sampleResult())

	require.Equal(t, int64(1), rec.Failed())
	require.Equal(t, int64(1), rec.Saved())
	repo.AssertExpectations(t)
}
