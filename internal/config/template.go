package config

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# jarvis-voice configuration

# Phrase the wake worker listens for
wake_phrase: hey jarvis

# A transcript containing any of these (case-insensitive) ends the session
disengage_phrases:
  - goodbye
  - disengage

# Informational wake worker stderr lines that are not reported as errors
wake_stderr_ignore:
  - listening for wake phrase

# Interpreter for the voice workers (PYTHON_PATH overrides this)
python: python3

# Directory the workers and task runner run in (default: current directory)
# work_dir: /path/to/jarvis-cli

# Voice workers. An empty command runs the python interpreter with args.
# Placeholders: {wake_phrase} (wake), {file} (process)
# boot and process default to inline scripts driving voice/voice_chain.py
# (see "jarvis config show"); set args to use your own worker instead.
workers:
  wake:
    args: [voice/voice_listener.py, --wake-phrase, "{wake_phrase}"]
  record:
    args: [voice/voice_listener.py, --record]
    timeout: 30s
  boot:
    timeout: 20s
  process:
    timeout: 2m

# Command run for the run_task tool, attached to this terminal.
# {task} is replaced by the requested task name.
task_runner:
  command: node
  args: [bin/jarvis, run, --task, "{task}"]

# Status query whose output is handed to the boot worker in JARVIS_STATUS
status_probe:
  enabled: true
  command: node
  args: [bin/jarvis, status, --json]
  timeout: 5s
  cache_ttl: 30s  # reuse the last status for this long

# Dependency check run before the loop starts. The default args import
# pyaudio, faster_whisper and numpy; packages are named in the install hint.
preflight:
  enabled: true
  timeout: 15s
  packages: [pyaudio, faster-whisper, openai, elevenlabs, numpy]

# Delay before restarting a wake worker that exited without a wake event
backoff:
  initial: 1s
  max: 15s

# Finished turns are recorded here
history:
  enabled: true
  # path: ~/.jarvis/history.db

console:
  plain: false  # disable colors
  width: 80     # wrap spoken responses, 0 disables wrapping

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/jarvis/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}
