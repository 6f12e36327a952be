// Package config loads guidekeeper configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// ErrInvalidPolicy is returned for an unknown run finalize policy.
var ErrInvalidPolicy = errors.New("invalid finalize policy")

// Finalize policies.
const (
	PolicyNoSuccess  = "no-success"
	PolicyAnyFailure = "any-failure"
)

// StateDir is the per-repository directory holding config and state.
const StateDir = ".guidekeeper"

// Config is the root configuration.
type Config struct {
	Guides    GuidesConfig    `koanf:"guides"`
	VCS       VCSConfig       `koanf:"vcs"`
	Agent     AgentConfig     `koanf:"agent"`
	Run       RunConfig       `koanf:"run"`
	Store     StoreConfig     `koanf:"store"`
	Secrets   SecretsConfig   `koanf:"secrets"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
}

// GuidesConfig controls guide discovery.
type GuidesConfig struct {
	// Filenames are consulted in order at each directory.
	Filenames []string `koanf:"filenames"`

	// Ignore patterns drop changed files before mapping.
	Ignore []string `koanf:"ignore"`
}

// VCSConfig controls the git collaborator.
type VCSConfig struct {
	Binary   string   `koanf:"binary"`
	Upstream string   `koanf:"upstream"`
	Timeout  Duration `koanf:"timeout"`
}

// AgentConfig controls the update agent subprocess.
type AgentConfig struct {
	Command      string   `koanf:"command"`
	Args         []string `koanf:"args"`
	Model        string   `koanf:"model"`
	APIKey       Secret   `koanf:"api_key"`
	Timeout      Duration `koanf:"timeout"`
	RateLimit    float64  `koanf:"rate_limit"`
	Burst        int      `koanf:"burst"`
	MaxDiffChars int      `koanf:"max_diff_chars"`
}

// RunConfig controls orchestration.
type RunConfig struct {
	Policy string `koanf:"policy"`
}

// StoreConfig controls run persistence.
type StoreConfig struct {
	// Path is relative to the repository root unless absolute.
	Path string `koanf:"path"`
}

// SecretsConfig controls diff scrubbing.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Engine        string `koanf:"engine"`
	AllowlistFile string `koanf:"allowlist_file"`
}

// LoggingConfig is the subset of logging settings exposed in the file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, func(string) bool { return false })
	return cfg
}

// applyDefaults fills unset values. present reports whether a key was
// supplied by the file or environment, which matters for settings whose
// zero value is meaningful.
func applyDefaults(cfg *Config, present func(key string) bool) {
	if len(cfg.Guides.Filenames) == 0 {
		cfg.Guides.Filenames = []string{"agents.md", "CLAUDE.md"}
	}
	if cfg.Guides.Ignore == nil && !present("guides.ignore") {
		cfg.Guides.Ignore = []string{"*.md"}
	}

	if cfg.VCS.Binary == "" {
		cfg.VCS.Binary = "git"
	}
	if cfg.VCS.Upstream == "" {
		cfg.VCS.Upstream = "origin/main"
	}
	if cfg.VCS.Timeout == 0 {
		cfg.VCS.Timeout = Duration(30 * time.Second)
	}

	if cfg.Agent.Command == "" {
		cfg.Agent.Command = "claude"
	}
	if cfg.Agent.Args == nil && !present("agent.args") {
		cfg.Agent.Args = []string{"-p", "--model", "{{model}}", "--permission-mode", "acceptEdits"}
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = "claude-sonnet-4-5"
	}
	if cfg.Agent.Timeout == 0 {
		cfg.Agent.Timeout = Duration(10 * time.Minute)
	}
	if !present("agent.rate_limit") {
		cfg.Agent.RateLimit = 2
	}
	if cfg.Agent.Burst == 0 {
		cfg.Agent.Burst = 4
	}
	if cfg.Agent.MaxDiffChars == 0 {
		cfg.Agent.MaxDiffChars = 320000
	}

	if cfg.Run.Policy == "" {
		cfg.Run.Policy = PolicyNoSuccess
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(StateDir, "state.db")
	}

	if !present("secrets.enabled") {
		cfg.Secrets.Enabled = true
	}
	if cfg.Secrets.Engine == "" {
		cfg.Secrets.Engine = "regex"
	}
	if cfg.Secrets.AllowlistFile == "" {
		cfg.Secrets.AllowlistFile = filepath.Join(StateDir, "allowlist.toml")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if !present("telemetry.insecure") {
		cfg.Telemetry.Insecure = true
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "guidekeeper"
	}
	if !present("telemetry.sample_rate") {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7717
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Guides.Filenames) == 0 {
		return fmt.Errorf("guides.filenames must not be empty")
	}
	for _, name := range c.Guides.Filenames {
		if name == "" || filepath.Base(name) != name {
			return fmt.Errorf("guides.filenames: %q must be a bare filename", name)
		}
	}
	switch c.Run.Policy {
	case PolicyNoSuccess, PolicyAnyFailure:
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidPolicy, c.Run.Policy, PolicyNoSuccess, PolicyAnyFailure)
	}
	if c.Agent.RateLimit < 0 {
		return fmt.Errorf("agent.rate_limit must be >= 0")
	}
	if c.Agent.MaxDiffChars < 0 {
		return fmt.Errorf("agent.max_diff_chars must be >= 0")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Secrets.Engine {
	case "", "regex", "gitleaks":
	default:
		return fmt.Errorf("secrets.engine must be regex or gitleaks, got %q", c.Secrets.Engine)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// ResolvePath makes a configured path absolute against the repository root.
func ResolvePath(repoRoot, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoRoot, p)
}
