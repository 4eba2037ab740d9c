// Package config provides configuration types and defaults for jarvis-voice.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/jarvis-voice/internal/log"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

// DefaultPython is used when neither python nor PYTHON_PATH is set.
const DefaultPython = "python3"

// Config holds all jarvis-voice configuration.
type Config struct {
	WakePhrase       string   `mapstructure:"wake_phrase" yaml:"wake_phrase"`
	DisengagePhrases []string `mapstructure:"disengage_phrases" yaml:"disengage_phrases"`
	// WakeStderrIgnore lists informational stderr phrases of the wake worker
	// that are not shown as errors. Matching is case-insensitive.
	WakeStderrIgnore []string `mapstructure:"wake_stderr_ignore" yaml:"wake_stderr_ignore"`

	// Python is the interpreter for workers without an explicit command.
	// PYTHON_PATH overrides it.
	Python string `mapstructure:"python" yaml:"python"`
	// WorkDir is the directory workers and the task runner run in.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir,omitempty"`

	Workers     WorkersConfig     `mapstructure:"workers" yaml:"workers"`
	TaskRunner  CommandConfig     `mapstructure:"task_runner" yaml:"task_runner"`
	StatusProbe StatusProbeConfig `mapstructure:"status_probe" yaml:"status_probe"`
	Preflight   PreflightConfig   `mapstructure:"preflight" yaml:"preflight"`
	Backoff     BackoffConfig     `mapstructure:"backoff" yaml:"backoff"`
	History     HistoryConfig     `mapstructure:"history" yaml:"history"`
	Console     ConsoleConfig     `mapstructure:"console" yaml:"console"`
	Tracing     TracingConfig     `mapstructure:"tracing" yaml:"tracing"`
}

// CommandConfig describes an external command. An empty Command means the
// configured Python interpreter.
type CommandConfig struct {
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WorkersConfig holds the four voice worker commands.
type WorkersConfig struct {
	Wake    CommandConfig `mapstructure:"wake" yaml:"wake"`
	Record  CommandConfig `mapstructure:"record" yaml:"record"`
	Boot    CommandConfig `mapstructure:"boot" yaml:"boot"`
	Process CommandConfig `mapstructure:"process" yaml:"process"`
}

// StatusProbeConfig configures the task runner status query spoken at boot.
type StatusProbeConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Command  string        `mapstructure:"command"`
	Args     []string      `mapstructure:"args"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// PreflightConfig configures the dependency check run before the loop.
type PreflightConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Packages are named in the remediation message.
	Packages []string `mapstructure:"packages"`
}

// BackoffConfig bounds the wake worker restart delay.
type BackoffConfig struct {
	Initial time.Duration `mapstructure:"initial"`
	Max     time.Duration `mapstructure:"max"`
}

// HistoryConfig configures the turn history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ConsoleConfig controls terminal output.
type ConsoleConfig struct {
	// Plain disables colors and styling.
	Plain bool `mapstructure:"plain" yaml:"plain"`
	// Width wraps spoken responses; 0 means no wrapping.
	Width int `mapstructure:"width" yaml:"width"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	Exporter string `mapstructure:"exporter" yaml:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/jarvis/traces/traces.jsonl
	FilePath string `mapstructure:"file_path" yaml:"file_path"`

	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// DefaultTracesFilePath returns ~/.config/jarvis/traces/traces.jsonl, or ""
// when the home directory is unknown.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "jarvis", "traces", "traces.jsonl")
}

// DefaultHistoryPath returns ~/.jarvis/history.db, or "" when the home
// directory is unknown.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jarvis", "history.db")
}

// Defaults returns a Config with the stock worker layout of a jarvis checkout.
func Defaults() Config {
	return Config{
		WakePhrase:       "hey jarvis",
		DisengagePhrases: []string{"goodbye", "disengage"},
		WakeStderrIgnore: []string{"listening for wake phrase"},
		Python:           DefaultPython,
		Workers: WorkersConfig{
			Wake: CommandConfig{
				Args: []string{"voice/voice_listener.py", "--wake-phrase", "{wake_phrase}"},
			},
			Record: CommandConfig{
				Args:    []string{"voice/voice_listener.py", "--record"},
				Timeout: 30 * time.Second,
			},
			Boot: CommandConfig{
				Args:    []string{"-c", BootScript},
				Timeout: 20 * time.Second,
			},
			Process: CommandConfig{
				Args:    []string{"-c", ProcessScript, "{file}"},
				Timeout: 2 * time.Minute,
			},
		},
		TaskRunner: CommandConfig{
			Command: "node",
			Args:    []string{"bin/jarvis", "run", "--task", "{task}"},
		},
		StatusProbe: StatusProbeConfig{
			Enabled:  true,
			Command:  "node",
			Args:     []string{"bin/jarvis", "status", "--json"},
			Timeout:  5 * time.Second,
			CacheTTL: 30 * time.Second,
		},
		Preflight: PreflightConfig{
			Enabled:  true,
			Args:     []string{"-c", PreflightScript},
			Timeout:  15 * time.Second,
			Packages: []string{"pyaudio", "faster-whisper", "openai", "elevenlabs", "numpy"},
		},
		Backoff: BackoffConfig{
			Initial: time.Second,
			Max:     15 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath(),
		},
		Console: ConsoleConfig{
			Width: 80,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Worker phase names. They double as slot names and span suffixes.
const (
	PhaseWake    = "wake"
	PhaseRecord  = "record"
	PhaseBoot    = "boot"
	PhaseProcess = "process"
	PhaseTask    = "task"
	PhaseStatus  = "status"
	PhaseCheck   = "preflight"
)

// Spec turns a command config into a worker spec for phase.
func (c Config) Spec(phase string, cc CommandConfig) worker.Spec {
	command := cc.Command
	if command == "" {
		command = c.PythonCommand()
	}
	return worker.Spec{
		Name:    phase,
		Command: command,
		Args:    append([]string(nil), cc.Args...),
		Dir:     c.WorkDir,
		Timeout: cc.Timeout,
	}
}

// PythonCommand returns the interpreter, falling back to DefaultPython.
func (c Config) PythonCommand() string {
	if c.Python == "" {
		return DefaultPython
	}
	return c.Python
}

// WakeSpec returns the wake worker spec with the wake phrase substituted.
func (c Config) WakeSpec() worker.Spec {
	return c.Spec(PhaseWake, c.Workers.Wake).Expand(map[string]string{"wake_phrase": c.WakePhrase})
}

// RecordSpec returns the record worker spec.
func (c Config) RecordSpec() worker.Spec { return c.Spec(PhaseRecord, c.Workers.Record) }

// BootSpec returns the boot worker spec.
func (c Config) BootSpec() worker.Spec { return c.Spec(PhaseBoot, c.Workers.Boot) }

// ProcessSpec returns the process worker spec; {file} is substituted per turn.
func (c Config) ProcessSpec() worker.Spec { return c.Spec(PhaseProcess, c.Workers.Process) }

// TaskSpec returns the task runner spec; {task} is substituted per call.
func (c Config) TaskSpec() worker.Spec { return c.Spec(PhaseTask, c.TaskRunner) }

// StatusSpec returns the status probe spec.
func (c Config) StatusSpec() worker.Spec {
	return c.Spec(PhaseStatus, CommandConfig{
		Command: c.StatusProbe.Command,
		Args:    c.StatusProbe.Args,
		Timeout: c.StatusProbe.Timeout,
	})
}

// PreflightSpec returns the dependency check spec.
func (c Config) PreflightSpec() worker.Spec {
	return c.Spec(PhaseCheck, CommandConfig{
		Command: c.Preflight.Command,
		Args:    c.Preflight.Args,
		Timeout: c.Preflight.Timeout,
	})
}

// Validate checks the configuration for errors.
func Validate(c Config) error {
	if c.WakePhrase == "" {
		return fmt.Errorf("wake_phrase is required")
	}
	for i, p := range c.DisengagePhrases {
		if p == "" {
			return fmt.Errorf("disengage_phrases[%d] must not be empty", i)
		}
	}

	workers := []struct {
		name string
		cc   CommandConfig
	}{
		{"workers.wake", c.Workers.Wake},
		{"workers.record", c.Workers.Record},
		{"workers.boot", c.Workers.Boot},
		{"workers.process", c.Workers.Process},
		{"task_runner", c.TaskRunner},
	}
	for _, w := range workers {
		if err := ValidateCommand(w.name, w.cc); err != nil {
			return err
		}
	}
	if !containsArg(c.TaskRunner.Args, "{task}") {
		return fmt.Errorf("task_runner.args must contain the {task} placeholder")
	}
	if !containsArg(c.Workers.Process.Args, "{file}") {
		return fmt.Errorf("workers.process.args must contain the {file} placeholder")
	}

	if c.StatusProbe.Enabled && c.StatusProbe.Command == "" {
		return fmt.Errorf("status_probe.command is required when the probe is enabled")
	}
	if c.StatusProbe.Timeout < 0 || c.StatusProbe.CacheTTL < 0 {
		return fmt.Errorf("status_probe durations must not be negative")
	}

	if c.Backoff.Initial <= 0 {
		return fmt.Errorf("backoff.initial must be positive, got %s", c.Backoff.Initial)
	}
	if c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("backoff.max (%s) must be at least backoff.initial (%s)", c.Backoff.Max, c.Backoff.Initial)
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if c.Console.Width < 0 {
		return fmt.Errorf("console.width must not be negative, got %d", c.Console.Width)
	}

	return ValidateTracing(c.Tracing)
}

// ValidateCommand checks one command section.
func ValidateCommand(name string, cc CommandConfig) error {
	if cc.Command == "" && len(cc.Args) == 0 {
		return fmt.Errorf("%s: command or args is required", name)
	}
	if cc.Timeout < 0 {
		return fmt.Errorf("%s.timeout must not be negative, got %s", name, cc.Timeout)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

func containsArg(args []string, placeholder string) bool {
	for _, a := range args {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
