package worker

import (
	"strings"
	"time"

	"github.com/zjrosen/jarvis-voice/internal/protocol"
)

// Spec describes one worker invocation. It is a value; Expand returns a copy.
type Spec struct {
	// Name is the phase the worker serves ("wake", "record", "boot", "process", "task").
	Name    string
	Command string
	Args    []string
	// Env entries are KEY=VALUE and are appended to the inherited environment.
	Env []string
	Dir string
	// Timeout bounds the run. Zero means unbounded.
	Timeout time.Duration
}

// Expand substitutes {key} placeholders in Args with vars[key].
// Unknown placeholders are left as they are.
func (s Spec) Expand(vars map[string]string) Spec {
	out := s
	out.Args = make([]string, len(s.Args))
	out.Env = append([]string(nil), s.Env...)

	if len(vars) == 0 {
		copy(out.Args, s.Args)
		return out
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	for i, a := range s.Args {
		out.Args[i] = r.Replace(a)
	}
	return out
}

// WithEnv returns a copy of s with extra environment entries.
func (s Spec) WithEnv(env ...string) Spec {
	out := s
	out.Args = append([]string(nil), s.Args...)
	out.Env = append(append([]string(nil), s.Env...), env...)
	return out
}

// CommandLine renders the command for logs.
func (s Spec) CommandLine() string {
	return strings.Join(append([]string{s.Command}, s.Args...), " ")
}

// Result is the outcome of a finished worker.
type Result struct {
	// ExitCode is the process exit code, or -1 when it was killed by a signal
	// or never started.
	ExitCode int
	Status   Status
	// Stderr holds the last stderr lines, oldest first.
	Stderr []string
	// Events are the protocol events decoded from stdout, in order.
	Events []protocol.Event
}

// Succeeded reports a clean zero exit.
func (r Result) Succeeded() bool {
	return r.Status == StatusCompleted && r.ExitCode == 0
}

// TimedOut reports whether the worker was killed by its timeout.
func (r Result) TimedOut() bool {
	return r.Status == StatusTimedOut
}
