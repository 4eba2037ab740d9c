package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. JARVIS_WAKE_PHRASE.
const EnvPrefix = "JARVIS"

// ApplyDefaults registers Defaults() with v and binds environment variables.
// PYTHON_PATH is honoured for the interpreter alongside JARVIS_PYTHON.
func ApplyDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("wake_phrase", d.WakePhrase)
	v.SetDefault("disengage_phrases", d.DisengagePhrases)
	v.SetDefault("wake_stderr_ignore", d.WakeStderrIgnore)
	v.SetDefault("python", d.Python)
	v.SetDefault("work_dir", d.WorkDir)

	setCommandDefaults(v, "workers.wake", d.Workers.Wake)
	setCommandDefaults(v, "workers.record", d.Workers.Record)
	setCommandDefaults(v, "workers.boot", d.Workers.Boot)
	setCommandDefaults(v, "workers.process", d.Workers.Process)
	setCommandDefaults(v, "task_runner", d.TaskRunner)

	v.SetDefault("status_probe.enabled", d.StatusProbe.Enabled)
	v.SetDefault("status_probe.command", d.StatusProbe.Command)
	v.SetDefault("status_probe.args", d.StatusProbe.Args)
	v.SetDefault("status_probe.timeout", d.StatusProbe.Timeout)
	v.SetDefault("status_probe.cache_ttl", d.StatusProbe.CacheTTL)

	v.SetDefault("preflight.enabled", d.Preflight.Enabled)
	v.SetDefault("preflight.command", d.Preflight.Command)
	v.SetDefault("preflight.args", d.Preflight.Args)
	v.SetDefault("preflight.timeout", d.Preflight.Timeout)
	v.SetDefault("preflight.packages", d.Preflight.Packages)

	v.SetDefault("backoff.initial", d.Backoff.Initial)
	v.SetDefault("backoff.max", d.Backoff.Max)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)

	v.SetDefault("console.plain", d.Console.Plain)
	v.SetDefault("console.width", d.Console.Width)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("python", EnvPrefix+"_PYTHON", "PYTHON_PATH")
}

func setCommandDefaults(v *viper.Viper, key string, cc CommandConfig) {
	v.SetDefault(key+".command", cc.Command)
	v.SetDefault(key+".args", cc.Args)
	v.SetDefault(key+".timeout", cc.Timeout)
}

// Load decodes the effective configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}
