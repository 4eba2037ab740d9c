// Package preflight verifies that the voice backend can start before the wake
// loop begins. A failed check is a StartupFailure: fatal, with remediation.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

// Runner runs the check command.
type Runner interface {
	Run(ctx context.Context, spec worker.Spec, opts ...worker.RunOption) (worker.Result, error)
}

// StartupFailure means required backend capabilities are absent.
type StartupFailure struct {
	// Missing lists modules named in the interpreter's import errors.
	Missing []string
	// Packages are the packages the user is told to install.
	Packages []string
	// Detail is the last diagnostic line of the check.
	Detail string
	Err    error
}

func (e *StartupFailure) Error() string {
	var sb strings.Builder
	sb.WriteString("missing voice dependencies")
	if len(e.Missing) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(e.Missing, ", "))
	} else if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *StartupFailure) Unwrap() error { return e.Err }

// Guidance is the remediation text shown to the user.
func (e *StartupFailure) Guidance() string {
	return Guidance(e.Packages)
}

// Guidance returns install instructions for packages.
func Guidance(packages []string) string {
	if len(packages) == 0 {
		return "Check that the configured python interpreter can run the voice workers."
	}
	return "Install the voice dependencies with:\n  pip install " + strings.Join(packages, " ")
}

// IsStartupFailure reports whether err is or wraps a StartupFailure.
func IsStartupFailure(err error) bool {
	var sf *StartupFailure
	return errors.As(err, &sf)
}

var missingModule = regexp.MustCompile(`No module named '([^']+)'`)

// Checker runs the dependency check command.
type Checker struct {
	runner   Runner
	spec     worker.Spec
	packages []string
}

// NewChecker creates a Checker for spec, naming packages in its guidance.
func NewChecker(runner Runner, spec worker.Spec, packages []string) *Checker {
	return &Checker{runner: runner, spec: spec, packages: packages}
}

// Check runs the check. It returns nil on success, a *StartupFailure when the
// backend is unusable, and the context error when interrupted.
func (c *Checker) Check(ctx context.Context) error {
	log.Debug(log.CatConfig, "running dependency check", "command", c.spec.CommandLine())

	res, err := c.runner.Run(ctx, c.spec)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return &StartupFailure{
			Packages: c.packages,
			Detail:   fmt.Sprintf("cannot run %s", c.spec.Command),
			Err:      err,
		}
	}
	if res.Succeeded() {
		log.Info(log.CatConfig, "dependency check passed")
		return nil
	}

	sf := &StartupFailure{
		Packages: c.packages,
		Err:      fmt.Errorf("dependency check %s with exit code %d", res.Status, res.ExitCode),
	}
	for _, line := range res.Stderr {
		if m := missingModule.FindStringSubmatch(line); m != nil {
			sf.Missing = append(sf.Missing, m[1])
		}
	}
	if n := len(res.Stderr); n > 0 {
		sf.Detail = strings.TrimSpace(res.Stderr[n-1])
	}
	log.Error(log.CatConfig, "dependency check failed", "status", res.Status.String(), "exit", res.ExitCode, "detail", sf.Detail)
	return sf
}
