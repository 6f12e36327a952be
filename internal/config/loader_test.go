package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
guides:
  filenames: [CLAUDE.md]
  ignore: []
agent:
  model: claude-opus-test
  args: ["--print"]
  timeout: 2m
  rate_limit: 0
run:
  policy: any-failure
secrets:
  enabled: false
`)

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"CLAUDE.md"}, cfg.Guides.Filenames)
	assert.Empty(t, cfg.Guides.Ignore)
	assert.Equal(t, "claude-opus-test", cfg.Agent.Model)
	assert.Equal(t, []string{"--print"}, cfg.Agent.Args)
	assert.Equal(t, 2*time.Minute, cfg.Agent.Timeout.Duration())
	assert.Equal(t, 0.0, cfg.Agent.RateLimit)
	assert.Equal(t, PolicyAnyFailure, cfg.Run.Policy)
	assert.False(t, cfg.Secrets.Enabled)

	// untouched sections keep defaults
	assert.Equal(t, "origin/main", cfg.VCS.Upstream)
	assert.Equal(t, 7717, cfg.Server.Port)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "agent:\n  model: from-file\n")

	t.Setenv("GUIDEKEEPER_AGENT_MODEL", "from-env")
	t.Setenv("GUIDEKEEPER_VCS_UPSTREAM", "upstream/trunk")
	t.Setenv("GUIDEKEEPER_SERVER_PORT", "9999")

	cfg, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Agent.Model)
	assert.Equal(t, "upstream/trunk", cfg.VCS.Upstream)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoad_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vcs:\n  upstream: origin/develop\n"), 0o644))

	cfg, err := Load(t.TempDir(), path)
	require.NoError(t, err)
	assert.Equal(t, "origin/develop", cfg.VCS.Upstream)
}

func TestLoad_InvalidYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "agent: [unclosed\n")
	_, err := Load(root, "")
	assert.Error(t, err)
}

func TestLoad_InvalidPolicy(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "run:\n  policy: maybe\n")
	_, err := Load(root, "")
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestLoad_FileTooLarge(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "# "+strings.Repeat("x", maxConfigFileSize+1)+"\n")
	_, err := Load(root, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "agent.max_diff_chars", envKey("GUIDEKEEPER_AGENT_MAX_DIFF_CHARS"))
	assert.Equal(t, "server.port", envKey("GUIDEKEEPER_SERVER_PORT"))
	assert.Equal(t, "debug", envKey("GUIDEKEEPER_DEBUG"))
}

func TestInit(t *testing.T) {
	root := t.TempDir()

	path, err := Init(root, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultPath(root), path)

	_, err = Init(root, false)
	assert.ErrorIs(t, err, fs.ErrExist)

	_, err = Init(root, true)
	require.NoError(t, err)

	// the starter file loads to the defaults
	cfg, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
