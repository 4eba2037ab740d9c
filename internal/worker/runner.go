package worker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/protocol"
	"github.com/zjrosen/jarvis-voice/internal/session"
	"github.com/zjrosen/jarvis-voice/internal/tracing"
)

// ErrWorkerBusy is returned when a run is requested while another worker is alive.
var ErrWorkerBusy = session.ErrWorkerBusy

// EventHandler receives each decoded event as it arrives.
type EventHandler func(protocol.Event)

// Runner runs worker processes one at a time under a session. Only spawn
// failures are errors: non-zero exits, timeouts and cancellations are reported
// in the Result.
type Runner struct {
	state          *session.State
	tracer         trace.Tracer
	commandFactory CommandFactoryFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTracer sets the tracer for worker spans. A nil tracer keeps the no-op default.
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithRunnerCommandFactory substitutes process creation, for tests.
func WithRunnerCommandFactory(fn CommandFactoryFunc) RunnerOption {
	return func(r *Runner) {
		r.commandFactory = fn
	}
}

// NewRunner creates a Runner that claims state's worker slot for every run.
func NewRunner(state *session.State, opts ...RunnerOption) *Runner {
	r := &Runner{
		state:  state,
		tracer: tracing.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type runOptions struct {
	onEvent  EventHandler
	onStderr StderrHandler
	onLine   LineHandler
}

// RunOption configures a single run.
type RunOption func(*runOptions)

// WithEventHandler streams events to fn as they are decoded.
func WithEventHandler(fn EventHandler) RunOption {
	return func(o *runOptions) { o.onEvent = fn }
}

// WithStderrHandler streams stderr lines to fn.
func WithStderrHandler(fn StderrHandler) RunOption {
	return func(o *runOptions) { o.onStderr = fn }
}

// WithLineHandler streams raw stdout lines to fn, including lines that are not events.
func WithLineHandler(fn LineHandler) RunOption {
	return func(o *runOptions) { o.onLine = fn }
}

// Run starts the worker, streams its events and returns after it has exited
// and its output has been drained.
func (r *Runner) Run(ctx context.Context, spec Spec, opts ...RunOption) (Result, error) {
	res, _, err := r.run(ctx, spec, false, nil, opts)
	return res, err
}

// RunUntilEvent runs the worker until match accepts an event. The worker is
// then retired and reaped before RunUntilEvent returns true. If the worker
// exits first, the result is returned with false.
func (r *Runner) RunUntilEvent(ctx context.Context, spec Spec, match func(protocol.Event) bool, opts ...RunOption) (Result, bool, error) {
	return r.run(ctx, spec, false, match, opts)
}

// RunInteractive runs the worker attached to the terminal and waits for it to exit.
func (r *Runner) RunInteractive(ctx context.Context, spec Spec) (Result, error) {
	res, _, err := r.run(ctx, spec, true, nil, nil)
	return res, err
}

func (r *Runner) run(ctx context.Context, spec Spec, interactive bool, match func(protocol.Event) bool, opts []RunOption) (Result, bool, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	if ctx.Err() != nil {
		return Result{ExitCode: -1, Status: StatusCancelled}, false, nil
	}

	slot, err := r.state.Begin(spec.Name)
	if err != nil {
		return Result{ExitCode: -1, Status: StatusPending}, false, fmt.Errorf("run %s: %w", spec.Name, err)
	}
	defer slot.Release()

	ctx, span := r.tracer.Start(ctx, tracing.SpanPrefixWorker+spec.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()
	span.SetAttributes(
		attribute.String(tracing.AttrWorkerName, spec.Name),
		attribute.String(tracing.AttrWorkerCommand, spec.CommandLine()),
		attribute.Int64(tracing.AttrWorkerTimeout, spec.Timeout.Milliseconds()),
	)

	h, err := NewSpawnBuilder(ctx).
		FromSpec(spec).
		WithInteractive(interactive).
		WithStderrHandler(o.onStderr).
		WithLineHandler(o.onLine).
		WithCommandFactory(r.commandFactory).
		Build()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatWorker, "spawn failed", err, "worker", spec.Name, "command", spec.CommandLine())
		return Result{ExitCode: -1, Status: StatusFailed}, false, err
	}
	slot.Bind(h)
	span.SetAttributes(attribute.Int(tracing.AttrWorkerPID, h.PID()))

	var events []protocol.Event
	matched := false
	for ev := range h.Events() {
		events = append(events, ev)
		span.AddEvent(tracing.EventWorkerEvent, trace.WithAttributes(
			attribute.String(tracing.AttrEventKind, string(ev.Kind)),
		))
		if o.onEvent != nil {
			o.onEvent(ev)
		}
		if match != nil && match(ev) {
			matched = true
			_ = h.Cancel()
			break
		}
	}

	res := h.Wait()
	res.Events = events

	span.SetAttributes(
		attribute.String(tracing.AttrWorkerStatus, res.Status.String()),
		attribute.Int(tracing.AttrWorkerExitCode, res.ExitCode),
	)
	switch {
	case matched, res.Succeeded():
		span.SetStatus(codes.Ok, "")
	case res.Status == StatusCancelled:
		span.SetStatus(codes.Unset, "cancelled")
	default:
		span.SetStatus(codes.Error, fmt.Sprintf("%s exit %d", res.Status, res.ExitCode))
	}
	return res, matched, nil
}
