package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix marks environment overrides.
	EnvPrefix = "GUIDEKEEPER_"

	// FileName is the config file inside StateDir.
	FileName = "config.yaml"
)

// DefaultPath returns the config file location for a repository.
func DefaultPath(repoRoot string) string {
	return filepath.Join(repoRoot, StateDir, FileName)
}

// Load reads configuration for a repository.
//
// Precedence, highest first:
//  1. Environment variables (GUIDEKEEPER_AGENT_MODEL -> agent.model)
//  2. The YAML file at configPath, or <repoRoot>/.guidekeeper/config.yaml
//  3. Default()
//
// A missing file is not an error.
func Load(repoRoot, configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultPath(repoRoot)
	}

	k := koanf.New(".")

	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg, k.Exists)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps GUIDEKEEPER_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Init writes the starter config file into the repository's state dir.
// An existing file is left alone unless force is set.
func Init(repoRoot string, force bool) (string, error) {
	path := DefaultPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", StateDir, err)
	}
	if _, err := os.Stat(path); err == nil && !force {
		return path, fs.ErrExist
	}
	if err := os.WriteFile(path, []byte(StarterYAML), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

// StarterYAML is the documented config written by Init.
const StarterYAML = `# guidekeeper configuration
guides:
  # checked in order at each directory; the first match is the guide
  filenames: [agents.md, CLAUDE.md]
  # changed files matching these globs never trigger updates
  ignore: ["*.md"]

vcs:
  upstream: origin/main
  timeout: 30s

agent:
  command: claude
  args: ["-p", "--model", "{{model}}", "--permission-mode", "acceptEdits"]
  model: claude-sonnet-4-5
  timeout: 10m
  rate_limit: 2
  burst: 4

run:
  # no-success: fail only when nothing succeeded
  # any-failure: fail when any guide failed
  policy: no-success

store:
  path: .guidekeeper/state.db

secrets:
  enabled: true
  engine: regex

logging:
  level: info
  format: console

server:
  host: localhost
  port: 7717
`
