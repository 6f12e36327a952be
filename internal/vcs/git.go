package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// emptyTree is the well-known hash of git's empty tree, used as the parent
// of a root commit.
const emptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// VCS supplies change data for a scope.
type VCS interface {
	// ChangedFiles lists added, copied, modified and renamed files.
	ChangedFiles(ctx context.Context, scope Scope) ([]string, error)

	// Diff returns the patch for files under pathPrefix. An empty prefix
	// means the whole repository. No changes yields an empty string.
	Diff(ctx context.Context, scope Scope, pathPrefix string) (string, error)
}

// Git implements VCS by running the git binary in the repository root.
type Git struct {
	root     string
	binary   string
	upstream string
	timeout  time.Duration
}

// Option configures Git.
type Option func(*Git)

// WithBinary overrides the git executable.
func WithBinary(binary string) Option {
	return func(g *Git) {
		if binary != "" {
			g.binary = binary
		}
	}
}

// WithUpstream sets the ref the pr scope compares against.
func WithUpstream(ref string) Option {
	return func(g *Git) {
		if ref != "" {
			g.upstream = ref
		}
	}
}

// WithTimeout bounds every git invocation.
func WithTimeout(d time.Duration) Option {
	return func(g *Git) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGit returns a Git rooted at root.
func NewGit(root string, opts ...Option) *Git {
	g := &Git{
		root:     root,
		binary:   "git",
		upstream: "origin/main",
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Root returns the repository root the commands run in.
func (g *Git) Root() string {
	return g.root
}

// ChangedFiles runs git diff --name-only for the scope.
func (g *Git) ChangedFiles(ctx context.Context, scope Scope) ([]string, error) {
	rangeArgs, err := g.rangeArgs(ctx, scope)
	if err != nil {
		return nil, err
	}
	args := append([]string{"diff"}, rangeArgs...)
	args = append(args, "--name-only", "--diff-filter=ACMR", "-z")

	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, f := range strings.Split(out, "\x00") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// Diff runs git diff --patch for the scope, optionally limited to a path.
func (g *Git) Diff(ctx context.Context, scope Scope, pathPrefix string) (string, error) {
	rangeArgs, err := g.rangeArgs(ctx, scope)
	if err != nil {
		return "", err
	}
	args := append([]string{"--no-pager", "diff"}, rangeArgs...)
	args = append(args, "--patch", "--no-color", "--unified=3")
	if pathPrefix != "" && pathPrefix != "." {
		args = append(args, "--", pathPrefix)
	}
	return g.run(ctx, args...)
}

// rangeArgs maps a scope to the revision arguments of git diff.
func (g *Git) rangeArgs(ctx context.Context, scope Scope) ([]string, error) {
	switch scope {
	case ScopeStaged:
		return []string{"--cached"}, nil
	case ScopeLastCommit:
		if _, err := g.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD~1"); err != nil {
			// root commit: compare against the empty tree
			return []string{emptyTree, "HEAD"}, nil
		}
		return []string{"HEAD~1..HEAD"}, nil
	case ScopeUpstream:
		return []string{g.upstream + "...HEAD"}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	full := append([]string{"-c", "core.quotepath=false"}, args...)
	cmd := exec.CommandContext(timeoutCtx, g.binary, full...)
	cmd.Dir = g.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("git %s timeout after %v", args[0], g.timeout)
		}
		return "", fmt.Errorf("git %s failed: %w (output: %s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
