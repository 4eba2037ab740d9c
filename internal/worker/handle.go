package worker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/protocol"
)

// errTimeout is the cancel cause recorded when Spec.Timeout elapses.
var errTimeout = errors.New("worker timed out")

const (
	// stderrTail is how many stderr lines a Result keeps.
	stderrTail = 50
	// killGrace is how long a terminated worker may take to close its pipes
	// before it is killed outright.
	killGrace = 2 * time.Second
	readChunk = 32 * 1024
)

// StderrHandler receives each stderr line of a worker.
type StderrHandler func(line string)

// LineHandler receives each raw stdout line, decoded or not. The slice is only
// valid during the call.
type LineHandler func(line []byte)

// Handle owns one running worker process. Events are decoded from stdout as
// they arrive; Wait returns once the process has exited and both pipes are
// drained.
type Handle struct {
	name        string
	cmd         *exec.Cmd
	stdout      io.ReadCloser
	stderr      io.ReadCloser
	interactive bool

	ctx        context.Context
	cancelFunc context.CancelCauseFunc
	// release frees the context resources once the worker is reaped.
	release func()

	events   chan protocol.Event
	onStderr StderrHandler
	onLine   LineHandler

	mu          sync.RWMutex
	status      Status
	stderrLines []string

	pumps  sync.WaitGroup
	done   chan struct{}
	result Result
}

func newHandle(ctx context.Context, cancel context.CancelCauseFunc, release func(), name string, cmd *exec.Cmd) *Handle {
	return &Handle{
		name:       name,
		cmd:        cmd,
		ctx:        ctx,
		cancelFunc: cancel,
		release:    release,
		status:     StatusPending,
		events:     make(chan protocol.Event, 64),
		done:       make(chan struct{}),
	}
}

// Name returns the phase name from the Spec.
func (h *Handle) Name() string { return h.name }

// Events yields decoded protocol events and is closed when stdout is drained.
// Interactive workers never produce events.
func (h *Handle) Events() <-chan protocol.Event { return h.events }

// Done is closed once the worker has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Status returns the current status.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// PID returns the OS process ID, or -1 if not started.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

// Cancel terminates the worker. The status is set before the context is
// cancelled so the reaper reports StatusCancelled. Cancelling a finished worker
// is a no-op.
func (h *Handle) Cancel() error {
	h.mu.Lock()
	if h.status.IsTerminal() {
		h.mu.Unlock()
		return nil
	}
	h.status = StatusCancelled
	h.mu.Unlock()
	h.cancelFunc(context.Canceled)
	return nil
}

// Wait blocks until the worker has been reaped and returns its result.
// Result.Events is left empty; the runner fills it from the events it consumed.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

func (h *Handle) start() {
	if h.interactive {
		close(h.events)
	} else {
		h.pumps.Add(2)
		go h.pumpStdout()
		go h.pumpStderr()
	}
	go h.reap()
}

// pumpStdout reads stdout in chunks so events are delivered as soon as their
// line is complete. It keeps draining after cancellation so the child never
// blocks on a full pipe; events decoded after that point are dropped.
func (h *Handle) pumpStdout() {
	defer h.pumps.Done()
	defer close(h.events)

	lines := protocol.NewLineBuffer(0)
	buf := make([]byte, readChunk)
	for {
		n, err := h.stdout.Read(buf)
		if n > 0 {
			lines.Feed(buf[:n], h.handleLine)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Debug(log.CatWorker, "stdout read error", "worker", h.name, "error", err)
			}
			break
		}
	}
	lines.Flush(h.handleLine)
}

func (h *Handle) handleLine(line []byte) {
	if h.onLine != nil {
		h.onLine(line)
	}
	ev, ok := protocol.DecodeLine(line)
	if !ok {
		if len(line) > 0 {
			log.Debug(log.CatProto, "ignoring non-event line", "worker", h.name, "line", string(line))
		}
		return
	}
	log.Debug(log.CatProto, "event", "worker", h.name, "kind", ev.Kind)

	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}

func (h *Handle) pumpStderr() {
	defer h.pumps.Done()

	scanner := bufio.NewScanner(h.stderr)
	scanner.Buffer(make([]byte, 0, 4096), protocol.DefaultMaxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		h.mu.Lock()
		h.stderrLines = append(h.stderrLines, line)
		if len(h.stderrLines) > stderrTail {
			h.stderrLines = h.stderrLines[len(h.stderrLines)-stderrTail:]
		}
		h.mu.Unlock()

		if h.onStderr != nil {
			h.onStderr(line)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug(log.CatWorker, "stderr scanner error", "worker", h.name, "error", err)
		_, _ = io.Copy(io.Discard, h.stderr)
	}
}

// reap waits for both pumps before calling cmd.Wait, which closes the pipes.
// On cancellation the process group has already been signalled by exec; if it
// does not let go of the pipes within killGrace it is killed and the pipes are
// closed under the pumps.
func (h *Handle) reap() {
	defer close(h.done)

	drained := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-h.ctx.Done():
		select {
		case <-drained:
		case <-time.After(killGrace):
			log.Warn(log.CatWorker, "worker ignored termination, killing", "worker", h.name, "pid", h.PID())
			forceKill(h.cmd)
			if h.stdout != nil {
				_ = h.stdout.Close()
			}
			if h.stderr != nil {
				_ = h.stderr.Close()
			}
			<-drained
		}
	}

	waitErr := h.cmd.Wait()
	ctxErr, cause := h.ctx.Err(), context.Cause(h.ctx)
	h.release()

	h.mu.Lock()
	defer h.mu.Unlock()

	res := Result{ExitCode: -1, Stderr: append([]string(nil), h.stderrLines...)}
	if h.cmd.ProcessState != nil {
		res.ExitCode = h.cmd.ProcessState.ExitCode()
	}

	switch {
	case h.status == StatusCancelled:
		res.Status = StatusCancelled
	case errors.Is(cause, errTimeout):
		res.Status = StatusTimedOut
	case ctxErr != nil:
		// parent context or session went away
		res.Status = StatusCancelled
	case waitErr != nil || res.ExitCode != 0:
		res.Status = StatusFailed
	default:
		res.Status = StatusCompleted
	}
	h.status = res.Status
	h.result = res

	log.Debug(log.CatWorker, "worker reaped",
		"worker", h.name, "status", res.Status, "exit", res.ExitCode)
}
