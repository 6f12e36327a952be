package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/services"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

// gitRepo creates a repository with a root guide, a nested guide and one
// commit.
func gitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	runGit(t, dir, "init", "-q", "-b", "main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test")
	runGit(t, dir, "config", "commit.gpgsign", "false")

	writeFile(t, dir, "agents.md", "# root\n\nRepository overview.\n")
	writeFile(t, dir, "api/agents.md", "# api\n")
	writeFile(t, dir, "api/server.go", "package api\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// execute runs the root command with args and returns everything it wrote.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestInit(t *testing.T) {
	dir := gitRepo(t)

	out, err := execute(t, "init", "-C", dir, "--force=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote ")
	assert.FileExists(t, filepath.Join(dir, ".guidekeeper", "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, ".guidekeeper", "state.db"))

	out, err = execute(t, "init", "-C", dir, "--force=false")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestInit_NotRepository(t *testing.T) {
	_, err := execute(t, "init", "-C", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, vcs.ErrNotRepository)
}

func TestUpdate_DryRun(t *testing.T) {
	dir := gitRepo(t)
	writeFile(t, dir, "api/server.go", "package api\n\nfunc Serve() {}\n")
	runGit(t, dir, "add", "api/server.go")

	out, err := execute(t, "plan", "-C", dir, "--scope", "staged", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Layer 0")
	assert.Contains(t, out, "api/agents.md")
	assert.Contains(t, out, "Layer 1")

	out, err = execute(t, "update", "staged", "-C", dir, "--dry-run", "--model", "test-model", "--policy", "")
	require.NoError(t, err)
	assert.Contains(t, out, "0 updated, 2 unchanged, 0 failed; 2/2 layers")

	out, err = execute(t, "runs", "list", "-C", dir, "--json", "--limit", "5")
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunSuccess, runs[0].Status)
	assert.Equal(t, "staged", runs[0].Scope)
	assert.Equal(t, "test-model", runs[0].Model)
	assert.Equal(t, "cli", runs[0].Meta["trigger"])
	assert.Equal(t, "true", runs[0].Meta["dry_run"])

	out, err = execute(t, "runs", "show", runs[0].ID, "-C", dir, "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "triggered by cli")
	assert.Contains(t, out, "api/agents.md")

	_, err = execute(t, "runs", "show", "missing", "-C", dir)
	assert.Error(t, err)
}

func TestUpdate_InvalidScope(t *testing.T) {
	dir := gitRepo(t)
	_, err := execute(t, "update", "tomorrow", "-C", dir, "--dry-run")
	assert.ErrorIs(t, err, vcs.ErrUnknownScope)
}

func TestTree(t *testing.T) {
	dir := gitRepo(t)

	out, err := execute(t, "tree", "-C", dir, "--json")
	require.NoError(t, err)
	var inv services.Inventory
	require.NoError(t, json.Unmarshal([]byte(out), &inv))
	assert.Equal(t, []string{"agents.md"}, inv.Roots)
	assert.Equal(t, services.Coverage{Total: 2, Active: 1, Draft: 1}, inv.Coverage)
}

type fakeRunner struct {
	report *orchestrator.Report
	err    error
}

func (f fakeRunner) Run(context.Context, orchestrator.RunOptions) (*orchestrator.Report, error) {
	return f.report, f.err
}

func TestExecuteRun(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report := func(status store.RunStatus) *orchestrator.Report {
		return &orchestrator.Report{
			RunID:      "run-1",
			Status:     status,
			StartedAt:  started,
			FinishedAt: started.Add(time.Second),
		}
	}
	fatal := errors.New("boom")

	tests := []struct {
		name    string
		runner  fakeRunner
		wantErr error
		printed bool
	}{
		{"success", fakeRunner{report: report(store.RunSuccess)}, nil, true},
		{"failed status", fakeRunner{report: report(store.RunFailed)}, errRunFailed, true},
		{"fatal with report", fakeRunner{report: report(store.RunFailed), err: fatal}, fatal, true},
		{"no report", fakeRunner{err: fatal}, fatal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&buf)

			err := executeRun(context.Background(), cmd, tt.runner, orchestrator.RunOptions{})
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.printed, bytes.Contains(buf.Bytes(), []byte("Run run-1")))
		})
	}
}
