package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/zjrosen/jarvis-voice/internal/log"
)

// CommandFactoryFunc creates an exec.Cmd. Tests use it to substitute the
// executable without touching the Spec. The command must be created with
// exec.CommandContext so cancellation can reach it.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// SpawnBuilder provides a fluent API for starting a worker process.
type SpawnBuilder struct {
	ctx            context.Context
	name           string
	timeout        time.Duration
	execPath       string
	args           []string
	workDir        string
	env            []string
	interactive    bool
	onStderr       StderrHandler
	onLine         LineHandler
	commandFactory CommandFactoryFunc
}

// NewSpawnBuilder creates a SpawnBuilder bound to ctx. Cancelling ctx
// terminates the worker.
func NewSpawnBuilder(ctx context.Context) *SpawnBuilder {
	return &SpawnBuilder{ctx: ctx, name: "worker"}
}

// FromSpec copies command, arguments, environment, directory and timeout from s.
func (b *SpawnBuilder) FromSpec(s Spec) *SpawnBuilder {
	if s.Name != "" {
		b.name = s.Name
	}
	b.execPath = s.Command
	b.args = s.Args
	b.env = s.Env
	b.workDir = s.Dir
	b.timeout = s.Timeout
	return b
}

// WithExecutable sets the executable path and arguments.
func (b *SpawnBuilder) WithExecutable(path string, args []string) *SpawnBuilder {
	b.execPath = path
	b.args = args
	return b
}

// WithName sets the phase name used in logs.
func (b *SpawnBuilder) WithName(name string) *SpawnBuilder {
	b.name = name
	return b
}

// WithTimeout bounds the run. Zero or negative means no timeout.
func (b *SpawnBuilder) WithTimeout(d time.Duration) *SpawnBuilder {
	b.timeout = d
	return b
}

// WithEnv appends KEY=VALUE entries to the inherited environment.
func (b *SpawnBuilder) WithEnv(env []string) *SpawnBuilder {
	b.env = env
	return b
}

// WithInteractive makes the worker inherit stdin, stdout and stderr instead of
// having them piped. Interactive workers yield no events.
func (b *SpawnBuilder) WithInteractive(interactive bool) *SpawnBuilder {
	b.interactive = interactive
	return b
}

// WithStderrHandler sets a callback for each stderr line.
func (b *SpawnBuilder) WithStderrHandler(fn StderrHandler) *SpawnBuilder {
	b.onStderr = fn
	return b
}

// WithLineHandler sets a callback for each raw stdout line.
func (b *SpawnBuilder) WithLineHandler(fn LineHandler) *SpawnBuilder {
	b.onLine = fn
	return b
}

// WithCommandFactory sets a custom command factory for testing.
func (b *SpawnBuilder) WithCommandFactory(fn CommandFactoryFunc) *SpawnBuilder {
	b.commandFactory = fn
	return b
}

// Build creates the process, starts it and launches the stdout pump, the
// stderr pump and the reaper. On error every resource created so far is
// released.
func (b *SpawnBuilder) Build() (*Handle, error) {
	if b.execPath == "" {
		return nil, fmt.Errorf("spawn %s: executable path is required", b.name)
	}

	base, cancel := context.WithCancelCause(b.ctx)
	procCtx, stopTimer := context.Context(base), context.CancelFunc(func() {})
	if b.timeout > 0 {
		procCtx, stopTimer = context.WithTimeoutCause(base, b.timeout, errTimeout)
	}
	release := func() {
		stopTimer()
		cancel(nil)
	}

	var stdout, stderr io.ReadCloser
	cleanup := func() {
		release()
		if stdout != nil {
			_ = stdout.Close()
		}
		if stderr != nil {
			_ = stderr.Close()
		}
	}

	var cmd *exec.Cmd
	if b.commandFactory != nil {
		cmd = b.commandFactory(procCtx, b.execPath, b.args...)
	} else {
		// #nosec G204 -- command comes from the worker config
		cmd = exec.CommandContext(procCtx, b.execPath, b.args...)
	}
	cmd.Dir = b.workDir
	if len(b.env) > 0 {
		cmd.Env = append(os.Environ(), b.env...)
	}

	if b.interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		// A separate process group keeps terminal signals away from the
		// worker and lets cancellation reach its children.
		configureProcessGroup(cmd)

		var err error
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("spawn %s: stdout pipe: %w", b.name, err)
		}
		stderr, err = cmd.StderrPipe()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("spawn %s: stderr pipe: %w", b.name, err)
		}
	}
	cmd.WaitDelay = killGrace

	h := newHandle(procCtx, cancel, release, b.name, cmd)
	h.stdout = stdout
	h.stderr = stderr
	h.interactive = b.interactive
	h.onStderr = b.onStderr
	h.onLine = b.onLine

	log.Debug(log.CatWorker, "spawning worker",
		"worker", b.name, "exec", b.execPath, "args", b.args, "dir", b.workDir, "timeout", b.timeout)

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn %s: start %s: %w", b.name, b.execPath, err)
	}

	log.Debug(log.CatWorker, "worker started", "worker", b.name, "pid", cmd.Process.Pid)

	h.setStatus(StatusRunning)
	h.start()
	return h, nil
}
