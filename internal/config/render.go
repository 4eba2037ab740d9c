package config

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Render returns c as YAML. Durations are written in Go duration syntax so
// the output can be pasted back into a config file.
func Render(c Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return buf.Bytes(), nil
}

func durationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// MarshalYAML implements yaml.Marshaler.
func (cc CommandConfig) MarshalYAML() (any, error) {
	return struct {
		Command string   `yaml:"command,omitempty"`
		Args    []string `yaml:"args,flow"`
		Timeout string   `yaml:"timeout,omitempty"`
	}{cc.Command, cc.Args, durationString(cc.Timeout)}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (s StatusProbeConfig) MarshalYAML() (any, error) {
	return struct {
		Enabled  bool     `yaml:"enabled"`
		Command  string   `yaml:"command,omitempty"`
		Args     []string `yaml:"args,flow"`
		Timeout  string   `yaml:"timeout,omitempty"`
		CacheTTL string   `yaml:"cache_ttl,omitempty"`
	}{s.Enabled, s.Command, s.Args, durationString(s.Timeout), durationString(s.CacheTTL)}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (p PreflightConfig) MarshalYAML() (any, error) {
	return struct {
		Enabled  bool     `yaml:"enabled"`
		Command  string   `yaml:"command,omitempty"`
		Args     []string `yaml:"args,flow"`
		Timeout  string   `yaml:"timeout,omitempty"`
		Packages []string `yaml:"packages,flow"`
	}{p.Enabled, p.Command, p.Args, durationString(p.Timeout), p.Packages}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (b BackoffConfig) MarshalYAML() (any, error) {
	return struct {
		Initial string `yaml:"initial"`
		Max     string `yaml:"max"`
	}{durationString(b.Initial), durationString(b.Max)}, nil
}
