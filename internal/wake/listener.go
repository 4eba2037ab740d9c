// Package wake runs the wake-word loop: listen, hand off one turn per wake,
// and restart the wake worker with backoff when it exits on its own.
package wake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/jarvis-voice/internal/console"
	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/protocol"
	"github.com/zjrosen/jarvis-voice/internal/session"
	"github.com/zjrosen/jarvis-voice/internal/tracing"
	"github.com/zjrosen/jarvis-voice/internal/turn"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

// State is the listener's position in its loop.
type State int

const (
	StateIdle State = iota
	StateListening
	StateWakeDetected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateWakeDetected:
		return "wake_detected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runner runs the wake worker until it reports a wake.
type Runner interface {
	RunUntilEvent(ctx context.Context, spec worker.Spec, match func(protocol.Event) bool, opts ...worker.RunOption) (worker.Result, bool, error)
}

// TurnRunner runs one turn after a wake.
type TurnRunner interface {
	RunTurn(ctx context.Context) turn.Result
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Listener is the wake loop. Run must be called at most once.
type Listener struct {
	state  *session.State
	runner Runner
	turns  TurnRunner
	spec   worker.Spec
	phrase string

	reporter console.Reporter
	tracer   trace.Tracer
	ignore   []string
	backoff  *backoff.ExponentialBackOff
	sleep    SleepFunc

	mu      sync.RWMutex
	current State
	wakes   int
}

// Option configures a Listener.
type Option func(*Listener)

func WithReporter(r console.Reporter) Option {
	return func(l *Listener) {
		if r != nil {
			l.reporter = r
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(l *Listener) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithPhrase sets the phrase shown while listening.
func WithPhrase(phrase string) Option {
	return func(l *Listener) { l.phrase = phrase }
}

// WithStderrIgnore sets the informational stderr phrases that are not errors.
func WithStderrIgnore(phrases []string) Option {
	return func(l *Listener) { l.ignore = append([]string(nil), phrases...) }
}

// WithBackoff bounds the restart delay after the wake worker exits without a wake.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(l *Listener) {
		l.backoff.InitialInterval = initial
		l.backoff.MaxInterval = maxInterval
		l.backoff.Reset()
	}
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(l *Listener) { l.sleep = fn }
}

// New creates a Listener that claims worker slots from state.
func New(state *session.State, runner Runner, turns TurnRunner, spec worker.Spec, opts ...Option) *Listener {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 15 * time.Second
	bo.RandomizationFactor = 0.2
	bo.Reset()

	l := &Listener{
		state:    state,
		runner:   runner,
		turns:    turns,
		spec:     spec,
		reporter: console.Nop{},
		tracer:   tracing.Noop(),
		ignore:   []string{"listening for wake phrase"},
		backoff:  bo,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current loop state.
func (l *Listener) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Wakes returns how many wakes have been handed to a turn.
func (l *Listener) Wakes() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.wakes
}

func (l *Listener) set(s State) {
	l.mu.Lock()
	prev := l.current
	l.current = s
	if s == StateWakeDetected {
		l.wakes++
	}
	l.mu.Unlock()
	if prev != s {
		log.Debug(log.CatWake, "state", "from", prev.String(), "to", s.String())
	}
}

// Run loops until the session stops, ctx is cancelled or a turn asks to
// terminate, and leaves the session stopped. Stopping is not an error. Run
// only fails when the worker slot is held by someone else, which means the
// session is being misused.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer l.state.Stop()
	go func() {
		select {
		case <-l.state.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	defer l.set(StateStopped)

	for {
		if l.stopped(ctx) {
			return nil
		}

		l.set(StateListening)
		l.reporter.Listening(l.phrase)

		heard, detected, err := l.listen(ctx)
		switch {
		case l.stopped(ctx), errors.Is(err, session.ErrStopped):
			return nil
		case errors.Is(err, session.ErrWorkerBusy):
			return fmt.Errorf("wake listener: %w", err)
		case err != nil:
			l.reporter.Error(err.Error())
		}

		if !detected {
			delay := l.backoff.NextBackOff()
			log.Info(log.CatWake, "restarting wake worker", "delay", delay)
			if err := l.sleep(ctx, delay); err != nil {
				return nil
			}
			continue
		}

		l.set(StateWakeDetected)
		l.backoff.Reset()
		l.reporter.WakeDetected(heard)

		res := l.turns.RunTurn(ctx)
		if res.Terminate {
			log.Info(log.CatWake, "turn asked to end the session", "turn", res.ID)
			l.state.Stop()
			return nil
		}
	}
}

func (l *Listener) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || !l.state.Running()
}

func isWake(ev protocol.Event) bool {
	return ev.Kind == protocol.KindWakeWordDetected
}

// listen runs one wake worker and reports whether it heard the wake phrase.
func (l *Listener) listen(ctx context.Context) (string, bool, error) {
	ctx, span := l.tracer.Start(ctx, tracing.SpanWakeListen,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(tracing.AttrSessionID, l.state.ID())),
	)
	defer span.End()

	res, detected, err := l.runner.RunUntilEvent(ctx, l.spec, isWake,
		worker.WithStderrHandler(l.handleStderr))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, session.ErrStopped) {
			log.ErrorErr(log.CatWake, "wake worker failed to start", err)
		}
		return "", false, err
	}
	if !detected {
		if res.Status != worker.StatusCancelled {
			log.Warn(log.CatWake, "wake worker exited without a wake",
				"status", res.Status.String(), "exit", res.ExitCode)
		}
		return "", false, nil
	}

	heard := res.Events[len(res.Events)-1].Transcript
	span.AddEvent(tracing.EventWakeDetected)
	log.Info(log.CatWake, "wake phrase detected", "heard", heard)
	return heard, true, nil
}

// handleStderr drops informational lines and surfaces everything else.
func (l *Listener) handleStderr(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if l.informational(line) {
		log.Debug(log.CatWake, "wake worker", "line", line)
		return
	}
	log.Error(log.CatWake, "wake worker stderr", "line", line)
	l.reporter.Error(line)
}

func (l *Listener) informational(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range l.ignore {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
