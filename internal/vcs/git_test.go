package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gitRepo creates a repository with one commit using the git binary.
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

	writeFile(t, dir, "agents.md", "# root\n")
	writeFile(t, dir, "pkg/a.go", "package pkg\n")
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

func TestGit_Staged(t *testing.T) {
	dir := gitRepo(t)
	ctx := context.Background()
	g := NewGit(dir)

	writeFile(t, dir, "pkg/a.go", "package pkg\n\nfunc A() {}\n")
	writeFile(t, dir, "other/b.go", "package other\n")
	writeFile(t, dir, "unstaged.go", "package main\n")
	runGit(t, dir, "add", "pkg/a.go", "other/b.go")

	files, err := g.ChangedFiles(ctx, ScopeStaged)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pkg/a.go", "other/b.go"}, files)

	diff, err := g.Diff(ctx, ScopeStaged, "pkg")
	require.NoError(t, err)
	assert.Contains(t, diff, "+func A() {}")
	assert.NotContains(t, diff, "other/b.go")

	empty, err := g.Diff(ctx, ScopeStaged, "nothing-here")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestGit_NonASCIIPath(t *testing.T) {
	dir := gitRepo(t)
	ctx := context.Background()
	g := NewGit(dir)
	runGit(t, dir, "config", "core.quotepath", "true")

	writeFile(t, dir, "pkg/café.go", "package pkg\n")
	runGit(t, dir, "add", "pkg/café.go")

	files, err := g.ChangedFiles(ctx, ScopeStaged)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/café.go"}, files)

	patch, err := g.Diff(ctx, ScopeStaged, "")
	require.NoError(t, err)
	idx := ParsePatch(patch)
	assert.Equal(t, files, idx.Files())
	assert.Contains(t, idx.Scoped("pkg", nil), "+package pkg")
}

func TestGit_LastCommit(t *testing.T) {
	dir := gitRepo(t)
	ctx := context.Background()
	g := NewGit(dir)

	// root commit compares against the empty tree
	files, err := g.ChangedFiles(ctx, ScopeLastCommit)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"agents.md", "pkg/a.go"}, files)

	writeFile(t, dir, "pkg/c.go", "package pkg\n")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "second")

	files, err = g.ChangedFiles(ctx, ScopeLastCommit)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/c.go"}, files)
}

func TestGit_UpstreamMissing(t *testing.T) {
	dir := gitRepo(t)
	g := NewGit(dir, WithUpstream("origin/does-not-exist"))

	_, err := g.ChangedFiles(context.Background(), ScopeUpstream)
	assert.Error(t, err)
}

func TestGit_UnknownScope(t *testing.T) {
	g := NewGit(t.TempDir())
	_, err := g.ChangedFiles(context.Background(), Scope("weekly"))
	assert.ErrorIs(t, err, ErrUnknownScope)
}
