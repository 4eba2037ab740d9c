// Package session holds the run flag of a voice session and its single worker
// slot. Every worker run must hold the slot, so at most one subprocess is alive
// at a time, and Stop tears down whichever worker holds it.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/zjrosen/jarvis-voice/internal/log"
)

var (
	// ErrWorkerBusy is returned by Begin while another worker holds the slot.
	ErrWorkerBusy = errors.New("session: a worker is already active")
	// ErrStopped is returned by Begin once the session has been stopped.
	ErrStopped = errors.New("session: stopped")
)

// Canceler is the part of a running worker the session needs to stop it.
type Canceler interface {
	Cancel() error
}

// State is the shared session state. It is safe for concurrent use; Stop in
// particular is expected to arrive from a signal goroutine mid-turn.
type State struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active *Slot

	stopOnce sync.Once
}

// New creates a running session whose context derives from parent.
func New(parent context.Context) *State {
	ctx, cancel := context.WithCancel(parent)
	return &State{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID identifies the session in logs, spans and history rows.
func (s *State) ID() string { return s.id }

// Context is cancelled when the session stops.
func (s *State) Context() context.Context { return s.ctx }

// Done is closed when the session stops.
func (s *State) Done() <-chan struct{} { return s.ctx.Done() }

// Running reports whether Stop has not been called yet.
func (s *State) Running() bool { return s.ctx.Err() == nil }

// Active returns the phase holding the worker slot, or "" when free.
func (s *State) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.phase
}

// Begin claims the worker slot for phase.
func (s *State) Begin(phase string) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, ErrStopped
	}
	if s.active != nil {
		return nil, ErrWorkerBusy
	}
	s.active = &Slot{state: s, phase: phase}
	return s.active, nil
}

// Stop cancels the session and the worker holding the slot. Calling it more
// than once, or concurrently, has the effect of calling it once.
func (s *State) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		var w Canceler
		phase := ""
		if s.active != nil {
			w = s.active.worker
			phase = s.active.phase
		}
		s.mu.Unlock()

		log.Info(log.CatWake, "session stopping", "session", s.id, "active", phase)
		if w != nil {
			if err := w.Cancel(); err != nil {
				log.ErrorErr(log.CatWorker, "cancel active worker", err, "phase", phase)
			}
		}
	})
}

// Slot is the right to run one worker. It must be released exactly once.
type Slot struct {
	state  *State
	phase  string
	worker Canceler
}

// Phase names the holder, e.g. "wake" or "record".
func (sl *Slot) Phase() string { return sl.phase }

// Bind attaches the running worker so Stop can cancel it. If the session was
// stopped before the worker started, the worker is cancelled immediately.
func (sl *Slot) Bind(w Canceler) {
	s := sl.state
	s.mu.Lock()
	sl.worker = w
	stopped := s.ctx.Err() != nil
	s.mu.Unlock()

	if stopped {
		_ = w.Cancel()
	}
}

// Release frees the slot. Releasing twice is a no-op.
func (sl *Slot) Release() {
	s := sl.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == sl {
		s.active = nil
	}
	sl.worker = nil
}
