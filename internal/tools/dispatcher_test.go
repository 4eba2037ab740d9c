package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/jarvis-voice/internal/console"
	"github.com/zjrosen/jarvis-voice/internal/protocol"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) RunInteractive(ctx context.Context, spec worker.Spec) (worker.Result, error) {
	args := m.Called(ctx, spec)
	return args.Get(0).(worker.Result), args.Error(1)
}

// recordingReporter keeps the tool notifications it receives.
type recordingReporter struct {
	console.Nop
	started  []string
	finished []error
}

func (r *recordingReporter) ToolStarted(_, task string) { r.started = append(r.started, task) }
func (r *recordingReporter) ToolFinished(_ string, _ int, err error) {
	r.finished = append(r.finished, err)
}

var taskSpec = worker.Spec{
	Name:    "task",
	Command: "node",
	Args:    []string{"bin/jarvis", "run", "--task", "{task}"},
}

func call(name, args string) protocol.ToolCall {
	return protocol.ToolCall{Function: protocol.FunctionCall{Name: name, Arguments: args}}
}

func forTask(task string) any {
	return mock.MatchedBy(func(s worker.Spec) bool {
		return len(s.Args) == 4 && s.Args[3] == task && s.Command == "node"
	})
}

var completed = worker.Result{ExitCode: 0, Status: worker.StatusCompleted}

func TestDispatch_RunTaskInvokesRunnerOnce(t *testing.T) {
	runner := &mockRunner{}
	runner.On("RunInteractive", mock.Anything, forTask("build")).Return(completed, nil).Once()
	rep := &recordingReporter{}
	d := NewDispatcher(runner, taskSpec, WithReporter(rep))

	out := d.Dispatch(context.Background(), call(RunTask, `{"task":"build"}`))

	require.True(t, out.OK(), "%v", out.Err)
	require.Equal(t, "build", out.Task)
	require.Equal(t, RunTask, out.Tool)
	require.Equal(t, worker.StatusCompleted, out.Status)
	require.Equal(t, []string{"build"}, rep.started)
	require.Equal(t, []error{nil}, rep.finished)
	runner.AssertExpectations(t)
}

func TestDispatch_LegacyNameIsAccepted(t *testing.T) {
	runner := &mockRunner{}
	runner.On("RunInteractive", mock.Anything, forTask("deploy")).Return(completed, nil).Once()
	d := NewDispatcher(runner, taskSpec)

	out := d.Dispatch(context.Background(), call(LegacyRunTask, `{"task":"deploy"}`))

	require.NoError(t, out.Err)
	require.Equal(t, LegacyRunTask, out.Tool)
	runner.AssertExpectations(t)
}

func TestDispatch_UnknownToolNeverExecutes(t *testing.T) {
	runner := &mockRunner{}
	d := NewDispatcher(runner, taskSpec)

	out := d.Dispatch(context.Background(), call("rm_rf", `{"task":"build"}`))

	require.ErrorIs(t, out.Err, ErrUnknownTool)
	require.Equal(t, -1, out.ExitCode)
	require.False(t, d.Known("rm_rf"))
	runner.AssertNotCalled(t, "RunInteractive", mock.Anything, mock.Anything)
}

func TestDispatch_InvalidArguments(t *testing.T) {
	tests := map[string]string{
		"not json":     `task=build`,
		"empty object": `{}`,
		"blank task":   `{"task":"   "}`,
		"wrong type":   `{"task":7}`,
		"empty string": ``,
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			runner := &mockRunner{}
			d := NewDispatcher(runner, taskSpec)

			out := d.Dispatch(context.Background(), call(RunTask, args))

			require.ErrorIs(t, out.Err, ErrInvalidArguments)
			runner.AssertNotCalled(t, "RunInteractive", mock.Anything, mock.Anything)
		})
	}
}

func TestDispatch_NonZeroExitIsFailure(t *testing.T) {
	runner := &mockRunner{}
	runner.On("RunInteractive", mock.Anything, forTask("test")).
		Return(worker.Result{ExitCode: 3, Status: worker.StatusFailed}, nil)
	d := NewDispatcher(runner, taskSpec)

	out := d.Dispatch(context.Background(), call(RunTask, `{"task":"test"}`))

	require.ErrorIs(t, out.Err, ErrTaskFailed)
	require.Equal(t, 3, out.ExitCode)
}

func TestDispatch_SpawnErrorIsFailure(t *testing.T) {
	runner := &mockRunner{}
	boom := errors.New("exec: \"node\": executable file not found in $PATH")
	runner.On("RunInteractive", mock.Anything, mock.Anything).
		Return(worker.Result{ExitCode: -1, Status: worker.StatusFailed}, boom)
	d := NewDispatcher(runner, taskSpec)

	out := d.Dispatch(context.Background(), call(RunTask, `{"task":"build"}`))

	require.ErrorIs(t, out.Err, boom)
}

func TestDispatch_CancelledRunIsReportedAsCanceled(t *testing.T) {
	runner := &mockRunner{}
	runner.On("RunInteractive", mock.Anything, mock.Anything).
		Return(worker.Result{ExitCode: -1, Status: worker.StatusCancelled}, nil)
	d := NewDispatcher(runner, taskSpec)

	out := d.Dispatch(context.Background(), call(RunTask, `{"task":"build"}`))

	require.ErrorIs(t, out.Err, context.Canceled)
}

func TestDispatchAll_FailuresAreIsolated(t *testing.T) {
	runner := &mockRunner{}
	runner.On("RunInteractive", mock.Anything, forTask("build")).Return(completed, nil).Once()
	d := NewDispatcher(runner, taskSpec)

	outs := d.DispatchAll(context.Background(), []protocol.ToolCall{
		call(RunTask, `{bad`),
		call("unknown", `{}`),
		call(RunTask, `{"task":"build"}`),
	})

	require.Len(t, outs, 3)
	require.ErrorIs(t, outs[0].Err, ErrInvalidArguments)
	require.ErrorIs(t, outs[1].Err, ErrUnknownTool)
	require.NoError(t, outs[2].Err)
	runner.AssertExpectations(t)
}

func TestDispatchAll_RunsSequentiallyInOrder(t *testing.T) {
	runner := &mockRunner{}
	var order []string
	runner.On("RunInteractive", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			order = append(order, args.Get(1).(worker.Spec).Args[3])
		}).
		Return(completed, nil)
	d := NewDispatcher(runner, taskSpec)

	outs := d.DispatchAll(context.Background(), []protocol.ToolCall{
		call(RunTask, `{"task":"a"}`),
		call(RunTask, `{"task":"b"}`),
		call(RunTask, `{"task":"c"}`),
	})

	require.Len(t, outs, 3)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDispatchAll_StopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &mockRunner{}
	runner.On("RunInteractive", mock.Anything, forTask("first")).
		Run(func(mock.Arguments) { cancel() }).
		Return(completed, nil).Once()
	d := NewDispatcher(runner, taskSpec)

	outs := d.DispatchAll(ctx, []protocol.ToolCall{
		call(RunTask, `{"task":"first"}`),
		call(RunTask, `{"task":"second"}`),
	})

	require.Len(t, outs, 1)
	runner.AssertExpectations(t)
}

func TestDispatch_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	runner := &mockRunner{}
	runner.On("RunInteractive", mock.Anything, mock.Anything).Return(completed, nil)
	d := NewDispatcher(runner, taskSpec, WithTracer(tp.Tracer("test")))

	d.Dispatch(context.Background(), call(RunTask, `{"task":"build"}`))
	d.Dispatch(context.Background(), call("nope", `{}`))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "tool.run_task", spans[0].Name())
	require.Equal(t, "tool.nope", spans[1].Name())
	require.Len(t, spans[1].Events(), 1)
}

func TestDefinitions_DescribeRunTask(t *testing.T) {
	raw, err := DefinitionsJSON()
	require.NoError(t, err)

	var defs []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string `json:"name"`
			Parameters struct {
				Type       string `json:"type"`
				Properties map[string]struct {
					Type string `json:"type"`
				} `json:"properties"`
				Required []string `json:"required"`
			} `json:"parameters"`
		} `json:"function"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &defs))
	require.Len(t, defs, 1)
	require.Equal(t, "function", defs[0].Type)
	require.Equal(t, RunTask, defs[0].Function.Name)
	require.Equal(t, "object", defs[0].Function.Parameters.Type)
	require.Equal(t, "string", defs[0].Function.Parameters.Properties["task"].Type)
	require.Equal(t, []string{"task"}, defs[0].Function.Parameters.Required)
}
