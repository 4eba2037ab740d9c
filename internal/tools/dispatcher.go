// Package tools executes tool calls requested by the response backend. Only
// whitelisted tools run; everything else is reported and skipped.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/jarvis-voice/internal/console"
	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/protocol"
	"github.com/zjrosen/jarvis-voice/internal/tracing"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

// Tool names.
const (
	RunTask = "run_task"
	// LegacyRunTask is the name older backends emit for RunTask.
	LegacyRunTask = "run_jarvis_task"
)

var (
	// ErrUnknownTool is reported for a tool name outside the whitelist.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is reported when a tool's arguments do not decode.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrTaskFailed is reported when the task runner exits unsuccessfully.
	ErrTaskFailed = errors.New("task runner failed")
)

// Runner runs a command attached to the terminal.
type Runner interface {
	RunInteractive(ctx context.Context, spec worker.Spec) (worker.Result, error)
}

// Outcome is the result of one tool call. Err is nil on success.
type Outcome struct {
	Tool     string
	CallID   string
	Task     string
	ExitCode int
	Status   worker.Status
	Err      error
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

type handler func(ctx context.Context, call protocol.ToolCall) Outcome

// Dispatcher validates tool calls against its whitelist and executes them.
type Dispatcher struct {
	runner   Runner
	taskSpec worker.Spec
	tracer   trace.Tracer
	reporter console.Reporter
	handlers map[string]handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTracer sets the tracer for tool spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithReporter shows tool progress on the console.
func WithReporter(r console.Reporter) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.reporter = r
		}
	}
}

// NewDispatcher creates a Dispatcher. taskSpec is the task runner command;
// its {task} placeholder is replaced per call.
func NewDispatcher(runner Runner, taskSpec worker.Spec, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		runner:   runner,
		taskSpec: taskSpec,
		tracer:   tracing.Noop(),
		reporter: console.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = map[string]handler{
		RunTask:       d.runTask,
		LegacyRunTask: d.runTask,
	}
	return d
}

// Known reports whether name is on the whitelist.
func (d *Dispatcher) Known(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

// Dispatch executes a single tool call. Failures are returned in the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, call protocol.ToolCall) Outcome {
	name := call.Function.Name
	ctx, span := d.tracer.Start(ctx, tracing.SpanPrefixTool+spanName(name),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrToolName, name))

	h, ok := d.handlers[name]
	if !ok {
		out := Outcome{Tool: name, CallID: call.ID, ExitCode: -1, Err: fmt.Errorf("%w: %q", ErrUnknownTool, name)}
		span.AddEvent(tracing.EventToolRejected)
		span.SetStatus(codes.Error, out.Err.Error())
		log.Warn(log.CatTool, "rejected tool call", "tool", name)
		d.reporter.ToolFinished(name, -1, out.Err)
		return out
	}

	out := h(ctx, call)
	out.Tool = name
	out.CallID = call.ID

	span.SetAttributes(
		attribute.String(tracing.AttrToolTask, out.Task),
		attribute.Int(tracing.AttrToolExitCode, out.ExitCode),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
		log.ErrorErr(log.CatTool, "tool call failed", out.Err, "tool", name, "task", out.Task)
	} else {
		span.SetStatus(codes.Ok, "")
		log.Info(log.CatTool, "tool call finished", "tool", name, "task", out.Task)
	}
	d.reporter.ToolFinished(name, out.ExitCode, out.Err)
	return out
}

// DispatchAll runs calls one after another in order. A failed call does not
// stop the rest; a cancelled context does.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []protocol.ToolCall) []Outcome {
	outcomes := make([]Outcome, 0, len(calls))
	for _, call := range calls {
		if ctx.Err() != nil {
			log.Info(log.CatTool, "skipping remaining tool calls", "remaining", len(calls)-len(outcomes))
			break
		}
		outcomes = append(outcomes, d.Dispatch(ctx, call))
	}
	return outcomes
}

func (d *Dispatcher) runTask(ctx context.Context, call protocol.ToolCall) Outcome {
	var args RunTaskArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return Outcome{ExitCode: -1, Err: fmt.Errorf("%w: %v", ErrInvalidArguments, err)}
	}
	task := strings.TrimSpace(args.Task)
	if task == "" {
		return Outcome{ExitCode: -1, Err: fmt.Errorf("%w: task is required", ErrInvalidArguments)}
	}

	d.reporter.ToolStarted(call.Function.Name, task)
	spec := d.taskSpec.Expand(map[string]string{"task": task})
	res, err := d.runner.RunInteractive(ctx, spec)
	out := Outcome{Task: task, ExitCode: res.ExitCode, Status: res.Status}
	switch {
	case err != nil:
		out.Err = fmt.Errorf("run task %q: %w", task, err)
	case res.Status == worker.StatusCancelled:
		out.Err = fmt.Errorf("run task %q: %w", task, context.Canceled)
	case !res.Succeeded():
		out.Err = fmt.Errorf("%w: %q %s with exit code %d", ErrTaskFailed, task, res.Status, res.ExitCode)
	}
	return out
}

// spanName keeps span names bounded for names from untrusted backends.
func spanName(name string) string {
	if len(name) > 64 {
		return name[:64]
	}
	if name == "" {
		return "unnamed"
	}
	return name
}
