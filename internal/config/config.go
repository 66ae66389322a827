// ABOUTME: Configuration loading and parsing for the roost orchestrator daemon.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete roostd configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
	Provider     ProviderConfig     `yaml:"provider"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// ServerConfig holds listener address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProviderConfig holds settings for the coding-assistant CLI backend.
type ProviderConfig struct {
	// Binary is the path to the CLI executable (default "claude").
	Binary string `yaml:"binary"`
	// Model passed to worker sessions.
	Model string `yaml:"model"`
	// JudgmentModel used for delegation routing calls (default "haiku").
	JudgmentModel string `yaml:"judgment_model"`
	// SessionDir overrides where session transcripts are looked up for the
	// activity probe. Empty means the provider default under $HOME.
	SessionDir string `yaml:"session_dir"`
}

// OrchestratorConfig holds timing and sizing knobs for the runtime core.
type OrchestratorConfig struct {
	OrphanPollInterval time.Duration `yaml:"-"`
	ActivityWindow     time.Duration `yaml:"-"`
	WatchdogWindow     time.Duration `yaml:"-"`
	PermissionTimeout  time.Duration `yaml:"-"`
	JudgmentTimeout    time.Duration `yaml:"-"`

	// DedupeMaxEntries caps the per-agent recent output hash set.
	DedupeMaxEntries int `yaml:"dedupe_max_entries"`
	// TaskTruncateLen bounds the stored CurrentTask text.
	TaskTruncateLen int `yaml:"task_truncate_len"`
	// ContextProbeInterval drives the periodic silent context-usage probe.
	// Zero disables the probe.
	ContextProbeInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling.
	OrphanPollIntervalRaw   string `yaml:"orphan_poll_interval"`
	ActivityWindowRaw       string `yaml:"activity_window"`
	WatchdogWindowRaw       string `yaml:"watchdog_window"`
	PermissionTimeoutRaw    string `yaml:"permission_timeout"`
	JudgmentTimeoutRaw      string `yaml:"judgment_timeout"`
	ContextProbeIntervalRaw string `yaml:"context_probe_interval"`
}

// Default returns a configuration populated with production defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:7433"},
		Database: DatabaseConfig{Path: ""},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Provider: ProviderConfig{
			Binary:        "claude",
			Model:         "sonnet",
			JudgmentModel: "haiku",
		},
		Orchestrator: OrchestratorConfig{
			OrphanPollInterval:   30 * time.Second,
			ActivityWindow:       45 * time.Second,
			WatchdogWindow:       90 * time.Second,
			PermissionTimeout:    5 * time.Minute,
			JudgmentTimeout:      30 * time.Second,
			ContextProbeInterval: 0,
			DedupeMaxEntries:     256,
			TaskTruncateLen:      120,
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config layered over the defaults. Environment variables in the format
// ${VAR_NAME} are expanded. Duration strings are parsed into time.Duration
// values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Provider.Binary == "" {
		return fmt.Errorf("provider.binary is required")
	}
	if c.Orchestrator.OrphanPollInterval <= 0 {
		return fmt.Errorf("orchestrator.orphan_poll_interval must be positive")
	}
	if c.Orchestrator.PermissionTimeout <= 0 {
		return fmt.Errorf("orchestrator.permission_timeout must be positive")
	}
	if c.Orchestrator.DedupeMaxEntries <= 0 {
		return fmt.Errorf("orchestrator.dedupe_max_entries must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Orchestrator.OrphanPollIntervalRaw, "orphan_poll_interval", &cfg.Orchestrator.OrphanPollInterval},
		{cfg.Orchestrator.ActivityWindowRaw, "activity_window", &cfg.Orchestrator.ActivityWindow},
		{cfg.Orchestrator.WatchdogWindowRaw, "watchdog_window", &cfg.Orchestrator.WatchdogWindow},
		{cfg.Orchestrator.PermissionTimeoutRaw, "permission_timeout", &cfg.Orchestrator.PermissionTimeout},
		{cfg.Orchestrator.JudgmentTimeoutRaw, "judgment_timeout", &cfg.Orchestrator.JudgmentTimeout},
		{cfg.Orchestrator.ContextProbeIntervalRaw, "context_probe_interval", &cfg.Orchestrator.ContextProbeInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
