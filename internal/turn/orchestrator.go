// Package turn drives one conversational turn after a wake:
// boot announcement, recording, transcription with response, and tool dispatch.
package turn

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/jarvis-voice/internal/cachemanager"
	"github.com/zjrosen/jarvis-voice/internal/console"
	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/protocol"
	"github.com/zjrosen/jarvis-voice/internal/pubsub"
	"github.com/zjrosen/jarvis-voice/internal/tools"
	"github.com/zjrosen/jarvis-voice/internal/tracing"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

// Environment variables handed to workers.
const (
	// StatusEnv carries the status probe output to the boot worker.
	StatusEnv = "JARVIS_STATUS"
	// ToolsEnv carries the tool definitions JSON to the process worker.
	ToolsEnv = "JARVIS_TOOLS"
)

const statusKey = "status"

// Runner runs the turn's workers.
type Runner interface {
	Run(ctx context.Context, spec worker.Spec, opts ...worker.RunOption) (worker.Result, error)
	RunUntilEvent(ctx context.Context, spec worker.Spec, match func(protocol.Event) bool, opts ...worker.RunOption) (worker.Result, bool, error)
}

// Dispatcher executes tool calls in order.
type Dispatcher interface {
	DispatchAll(ctx context.Context, calls []protocol.ToolCall) []tools.Outcome
}

// Specs are the worker commands of a turn. A Boot spec without a command
// skips the boot phase; a nil Status disables the status probe.
type Specs struct {
	Boot    worker.Spec
	Record  worker.Spec
	Process worker.Spec // {file} is replaced with the recording path
	Status  *worker.Spec
}

// Orchestrator runs turns. RunTurn must not be called concurrently.
type Orchestrator struct {
	runner     Runner
	dispatcher Dispatcher
	specs      Specs

	sessionID string
	toolsJSON string
	tracer    trace.Tracer
	reporter  console.Reporter
	publisher pubsub.Publisher[Result]
	statusTTL time.Duration
	status    *cachemanager.ReadThroughCache[string, string]

	mu        sync.RWMutex
	disengage []string

	// offlineMu guards Result.OfflineMode, which both the stdout and the
	// stderr pump of a worker may set.
	offlineMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

func WithReporter(r console.Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithPublisher publishes every finished Result.
func WithPublisher(p pubsub.Publisher[Result]) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = id }
}

// WithToolsJSON passes tool definitions to the process worker.
func WithToolsJSON(defs string) Option {
	return func(o *Orchestrator) { o.toolsJSON = defs }
}

func WithDisengagePhrases(phrases []string) Option {
	return func(o *Orchestrator) { o.disengage = append([]string(nil), phrases...) }
}

// WithStatusCacheTTL reuses a successful status probe for ttl. Zero probes every turn.
func WithStatusCacheTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.statusTTL = ttl }
}

// New creates an Orchestrator. dispatcher may be nil, in which case tool
// calls are collected but not executed.
func New(runner Runner, dispatcher Dispatcher, specs Specs, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:     runner,
		dispatcher: dispatcher,
		specs:      specs,
		tracer:     tracing.Noop(),
		reporter:   console.Nop{},
		disengage:  []string{"goodbye", "disengage"},
	}
	for _, opt := range opts {
		opt(o)
	}
	if specs.Status != nil {
		cache := cachemanager.NewInMemoryCacheManager[string, string]("status_probe",
			cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)
		o.status = cachemanager.NewReadThroughCache[string, string](cache, o.probeStatus, o.statusTTL, o.statusTTL <= 0)
	}
	return o
}

// SetDisengagePhrases replaces the phrases that end the session. It takes
// effect from the next transcript.
func (o *Orchestrator) SetDisengagePhrases(phrases []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disengage = append([]string(nil), phrases...)
}

// DisengagePhrases returns a copy of the current phrases.
func (o *Orchestrator) DisengagePhrases() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.disengage...)
}

// RunTurn runs one turn to completion. Failures inside the turn are logged
// and reflected in the Result, never returned. Cancelling ctx skips the
// remaining phases and marks the turn interrupted.
func (o *Orchestrator) RunTurn(ctx context.Context) (res Result) {
	res = Result{
		ID:        uuid.NewString(),
		SessionID: o.sessionID,
		StartedAt: time.Now(),
	}
	ctx, span := o.tracer.Start(ctx, tracing.SpanTurn,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(tracing.AttrTurnID, res.ID),
			attribute.String(tracing.AttrSessionID, o.sessionID),
		),
	)
	defer func() { o.finish(span, &res) }()

	log.Info(log.CatTurn, "turn started", "turn", res.ID)

	if o.specs.Boot.Command != "" {
		o.boot(ctx, &res)
	}
	if ctx.Err() != nil {
		res.Aborted = AbortInterrupted
		return res
	}

	file, ok := o.record(ctx)
	if ctx.Err() != nil {
		res.Aborted = AbortInterrupted
		return res
	}
	if !ok {
		res.Aborted = AbortRecordingFailed
		return res
	}

	o.transcribe(ctx, file, &res)
	if ctx.Err() != nil {
		res.Aborted = AbortInterrupted
		return res
	}

	o.dispatch(ctx, &res)
	if ctx.Err() != nil {
		res.Aborted = AbortInterrupted
	}
	return res
}

func (o *Orchestrator) finish(span trace.Span, res *Result) {
	res.CompletedAt = time.Now()

	span.SetAttributes(
		attribute.String(tracing.AttrAborted, string(res.Aborted)),
		attribute.Bool(tracing.AttrTerminate, res.Terminate),
		attribute.Bool(tracing.AttrOffline, res.OfflineMode),
		attribute.Int(tracing.AttrToolCalls, len(res.ToolCalls)),
	)
	if res.Aborted != "" {
		span.SetStatus(codes.Error, string(res.Aborted))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	if res.Terminate {
		o.reporter.Goodbye()
	}
	log.Info(log.CatTurn, "turn finished",
		"turn", res.ID,
		"aborted", string(res.Aborted),
		"terminate", res.Terminate,
		"tool_calls", len(res.ToolCalls),
		"duration", res.Duration(),
	)

	if o.publisher != nil {
		typ := pubsub.TurnCompleted
		if res.Aborted != "" {
			typ = pubsub.TurnAborted
		}
		o.publisher.Publish(typ, *res)
	}
}

func (o *Orchestrator) startPhase(ctx context.Context, p Phase) (context.Context, trace.Span) {
	log.Debug(log.CatTurn, "phase", "phase", string(p))
	return o.tracer.Start(ctx, tracing.SpanPrefixPhase+string(p),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(tracing.AttrTurnPhase, string(p))),
	)
}

// stderr handles a worker's diagnostics. Backends report offline_mode and
// error events on stderr as well as stdout; those are applied to res when it
// is non-nil, everything else is debug-logged.
func (o *Orchestrator) stderr(p Phase, res *Result) worker.RunOption {
	return worker.WithStderrHandler(func(line string) {
		ev, ok := protocol.DecodeLine([]byte(line))
		switch {
		case ok && ev.Kind == protocol.KindOfflineMode && res != nil:
			o.markOffline(res, ev.Reason)
		case ok && ev.Kind == protocol.KindError:
			o.workerError(p, ev.Message)
		default:
			log.Debug(log.CatTurn, "worker stderr", "phase", string(p), "line", line)
		}
	})
}

func (o *Orchestrator) workerError(p Phase, msg string) {
	log.Error(log.CatTurn, "worker reported error", "phase", string(p), "message", msg)
	o.reporter.Error(msg)
}

func (o *Orchestrator) markOffline(res *Result, reason string) {
	o.offlineMu.Lock()
	defer o.offlineMu.Unlock()
	if res.OfflineMode {
		return
	}
	res.OfflineMode = true
	log.Info(log.CatTurn, "backend is offline", "reason", reason)
	o.reporter.Offline(reason)
}

// failed records an unsuccessful worker on span unless it was cancelled.
func failed(span trace.Span, r worker.Result) bool {
	if r.Succeeded() || r.Status == worker.StatusCancelled {
		return false
	}
	span.SetStatus(codes.Error, fmt.Sprintf("%s exit %d", r.Status, r.ExitCode))
	return true
}

func (o *Orchestrator) boot(ctx context.Context, res *Result) {
	ctx, span := o.startPhase(ctx, PhaseBoot)
	defer span.End()

	o.reporter.Booting()
	spec := o.specs.Boot
	if status, ok := o.statusLine(ctx); ok {
		spec = spec.WithEnv(StatusEnv + "=" + status)
	}

	r, err := o.runner.Run(ctx, spec, o.stderr(PhaseBoot, res), worker.WithEventHandler(func(ev protocol.Event) {
		switch ev.Kind {
		case protocol.KindBootComplete:
			if ev.OfflineMode {
				o.markOffline(res, "")
			}
		case protocol.KindOfflineMode:
			o.markOffline(res, ev.Reason)
		case protocol.KindError:
			o.workerError(PhaseBoot, ev.Message)
		}
	}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatTurn, "boot failed, continuing", err)
		return
	}
	if failed(span, r) {
		log.Warn(log.CatTurn, "boot worker failed, continuing", "status", r.Status.String(), "exit", r.ExitCode)
	}
}

func (o *Orchestrator) statusLine(ctx context.Context) (string, bool) {
	if o.status == nil {
		return "", false
	}
	status, err := o.status.Get(ctx, statusKey)
	if err != nil {
		log.Warn(log.CatTurn, "status probe failed", "error", err.Error())
		return "", false
	}
	return status, true
}

func (o *Orchestrator) probeStatus(ctx context.Context) (string, error) {
	var lines []string
	r, err := o.runner.Run(ctx, *o.specs.Status, o.stderr(PhaseBoot, nil), worker.WithLineHandler(func(line []byte) {
		lines = append(lines, string(line))
	}))
	if err != nil {
		return "", err
	}
	if !r.Succeeded() {
		return "", fmt.Errorf("status probe %s with exit code %d", r.Status, r.ExitCode)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func isRecordingComplete(ev protocol.Event) bool {
	return ev.Kind == protocol.KindRecordingComplete
}

// record returns the audio file path, or false when the recorder never produced one.
func (o *Orchestrator) record(ctx context.Context) (string, bool) {
	ctx, span := o.startPhase(ctx, PhaseRecording)
	defer span.End()

	o.reporter.Recording()
	r, matched, err := o.runner.RunUntilEvent(ctx, o.specs.Record, isRecordingComplete, o.stderr(PhaseRecording, nil),
		worker.WithEventHandler(func(ev protocol.Event) {
			if ev.Kind == protocol.KindError {
				o.workerError(PhaseRecording, ev.Message)
			}
		}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatTurn, "recording failed", err)
		return "", false
	}
	if !matched {
		span.SetStatus(codes.Error, "no recording")
		log.Warn(log.CatTurn, "recorder exited without a recording", "status", r.Status.String(), "exit", r.ExitCode)
		return "", false
	}

	file := r.Events[len(r.Events)-1].File
	span.SetAttributes(attribute.String(tracing.AttrAudioFile, file))
	return file, true
}

func (o *Orchestrator) transcribe(ctx context.Context, file string, res *Result) {
	ctx, span := o.startPhase(ctx, PhaseTranscribing)
	defer span.End()

	o.reporter.Processing()
	spec := o.specs.Process.Expand(map[string]string{"file": file})
	if o.toolsJSON != "" {
		spec = spec.WithEnv(ToolsEnv + "=" + o.toolsJSON)
	}
	phrases := o.DisengagePhrases()

	var chunks strings.Builder
	r, err := o.runner.Run(ctx, spec, o.stderr(PhaseTranscribing, res), worker.WithEventHandler(func(ev protocol.Event) {
		switch ev.Kind {
		case protocol.KindTranscript:
			res.Transcript = ev.Text
			o.reporter.Transcript(ev.Text)
			if ContainsDisengage(ev.Text, phrases) {
				res.Terminate = true
			}
		case protocol.KindAssistantChunk:
			chunks.WriteString(ev.Text)
			o.reporter.ResponseChunk(ev.Text)
		case protocol.KindResponse:
			res.Response = ev.Text
			o.reporter.Response(ev.Text)
		case protocol.KindToolCall:
			res.ToolCalls = append(res.ToolCalls, *ev.Call)
		case protocol.KindGoodbye:
			res.Terminate = true
		case protocol.KindOfflineMode:
			o.markOffline(res, ev.Reason)
		case protocol.KindError:
			o.workerError(PhaseTranscribing, ev.Message)
		}
	}))
	if res.Response == "" && chunks.Len() > 0 {
		res.Response = chunks.String()
		o.reporter.Response(res.Response)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatTurn, "processing failed", err)
		return
	}
	if failed(span, r) {
		log.Warn(log.CatTurn, "process worker failed", "status", r.Status.String(), "exit", r.ExitCode, "stderr", strings.Join(r.Stderr, "\n"))
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, res *Result) {
	if len(res.ToolCalls) == 0 || o.dispatcher == nil {
		return
	}
	ctx, span := o.startPhase(ctx, PhaseDispatching)
	defer span.End()

	res.Outcomes = o.dispatcher.DispatchAll(ctx, res.ToolCalls)
	for _, out := range res.Outcomes {
		if out.Err != nil {
			span.SetStatus(codes.Error, "tool call failed")
			break
		}
	}
}
