// Package config handles domoutline configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Source   SourceConfig  `yaml:"source"`
	Outline  OutlineConfig `yaml:"outline"`
	State    StateConfig   `yaml:"state"`
	Serve    ServeConfig   `yaml:"serve"`
	Sinks    []SinkConfig  `yaml:"sinks"`
	LogLevel string        `yaml:"log_level"`
}

// SourceConfig selects the DOM to outline: a live page or an HTML file.
type SourceConfig struct {
	URL              string        `yaml:"url"`
	File             string        `yaml:"file"`
	Remote           string        `yaml:"remote"`
	Mode             string        `yaml:"mode"` // headless | headful | plain
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	Depth            int           `yaml:"depth"`
	Pierce           bool          `yaml:"pierce"`
}

// OutlineConfig tunes the view engine.
type OutlineConfig struct {
	ExpandedChildLimit int           `yaml:"expanded_child_limit"`
	InlineTextLimit    int           `yaml:"inline_text_limit"`
	CoalesceWindow     time.Duration `yaml:"coalesce_window"`
	BulkThreshold      int           `yaml:"bulk_threshold"`
	EmphasisDuration   time.Duration `yaml:"emphasis_duration"`
	ShowUAShadowRoots  bool          `yaml:"show_user_agent_shadow_roots"`
	Decorate           bool          `yaml:"decorate"`
	DecorationInterval time.Duration `yaml:"decoration_interval"`
}

// StateConfig locates the selection database. Empty disables persistence.
// Selections untouched for longer than Retention are pruned at startup.
type StateConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// ServeConfig for the HTTP front-end.
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// SinkConfig defines an update sink.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`  // for webhook
	Retries int    `yaml:"retries"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Source.Mode == "" {
		c.Source.Mode = "headless"
	}
	if c.Source.NavigateTimeout <= 0 {
		c.Source.NavigateTimeout = 30 * time.Second
	}
	if c.Source.Depth == 0 {
		c.Source.Depth = -1
	}
	if c.Outline.ExpandedChildLimit <= 0 {
		c.Outline.ExpandedChildLimit = 500
	}
	if c.Outline.InlineTextLimit <= 0 {
		c.Outline.InlineTextLimit = 80
	}
	if c.Outline.CoalesceWindow <= 0 {
		c.Outline.CoalesceWindow = 50 * time.Millisecond
	}
	if c.Outline.BulkThreshold <= 0 {
		c.Outline.BulkThreshold = 10
	}
	if c.Outline.EmphasisDuration <= 0 {
		c.Outline.EmphasisDuration = 2 * time.Second
	}
	if c.Outline.DecorationInterval <= 0 {
		c.Outline.DecorationInterval = 100 * time.Millisecond
	}
	if c.State.Retention <= 0 {
		c.State.Retention = 30 * 24 * time.Hour
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = "127.0.0.1:8790"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
}

// Validate rejects contradictory settings.
func (c *Config) Validate() error {
	if c.Source.URL != "" && c.Source.File != "" {
		return errors.New("config: source.url and source.file are exclusive")
	}
	switch c.Source.Mode {
	case "headless", "headful", "plain":
	default:
		return fmt.Errorf("config: unknown source.mode %q", c.Source.Mode)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
