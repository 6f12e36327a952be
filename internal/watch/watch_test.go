package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/services"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

const (
	hashA = "1111111111111111111111111111111111111111"
	hashB = "2222222222222222222222222222222222222222"
	zero  = "0000000000000000000000000000000000000000"
)

func reflogLine(old, hash, msg string) string {
	return old + " " + hash + " Dev <dev@example.com> 1767225600 +0000\t" + msg + "\n"
}

func initRepo(t *testing.T, reflog string) (root, logsHead string) {
	t.Helper()
	root = t.TempDir()
	logsDir := filepath.Join(root, ".git", "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0o755))
	logsHead = filepath.Join(logsDir, "HEAD")
	require.NoError(t, os.WriteFile(logsHead, []byte(reflog), 0o644))
	return root, logsHead
}

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestParseReflogLine(t *testing.T) {
	c, ok := parseReflogLine(reflogLine(zero, hashA, "commit (initial): first"))
	require.True(t, ok)
	assert.Equal(t, hashA, c.Hash)
	assert.Equal(t, "commit (initial): first", c.Message)
	assert.Equal(t, int64(1767225600), c.Time.Unix())

	_, ok = parseReflogLine("garbage")
	assert.False(t, ok)
}

func TestIsCommit(t *testing.T) {
	assert.True(t, isCommit("commit: add handler"))
	assert.True(t, isCommit("commit (amend): fix typo"))
	assert.True(t, isCommit("commit (merge): Merge branch 'x'"))
	assert.False(t, isCommit("checkout: moving from main to feature"))
	assert.False(t, isCommit("reset: moving to HEAD~1"))
}

func TestDetectGitDir(t *testing.T) {
	tmp := t.TempDir()

	t.Run("main repository", func(t *testing.T) {
		gitDir := filepath.Join(tmp, "main", ".git")
		require.NoError(t, os.MkdirAll(gitDir, 0o755))

		got, err := DetectGitDir(filepath.Join(tmp, "main"))
		require.NoError(t, err)
		assert.Equal(t, gitDir, got)
	})

	t.Run("worktree with relative gitdir", func(t *testing.T) {
		wt := filepath.Join(tmp, "wt")
		require.NoError(t, os.MkdirAll(wt, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(wt, ".git"), []byte("gitdir: ../main/.git/worktrees/wt\n"), 0o644))

		got, err := DetectGitDir(wt)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmp, "main", ".git", "worktrees", "wt"), got)
	})

	t.Run("not a repository", func(t *testing.T) {
		_, err := DetectGitDir(filepath.Join(tmp, "nothing"))
		assert.ErrorIs(t, err, ErrNotGitRepo)
	})
}

func TestCommitDetector_Check(t *testing.T) {
	root, logsHead := initRepo(t, reflogLine(zero, hashA, "commit (initial): first"))

	d, err := NewCommitDetector(root)
	require.NoError(t, err)
	defer d.Stop()

	// existing history is not reported
	d.check()
	assert.Empty(t, d.commits)

	appendFile(t, logsHead, reflogLine(hashA, hashA, "checkout: moving from main to topic"))
	d.check()
	assert.Empty(t, d.commits)

	appendFile(t, logsHead, reflogLine(hashA, hashB, "commit: second"))
	d.check()
	d.check()
	require.Len(t, d.commits, 1)
	c := <-d.commits
	assert.Equal(t, hashB, c.Hash)
}

func TestCommitDetector_Fsnotify(t *testing.T) {
	root, logsHead := initRepo(t, reflogLine(zero, hashA, "commit (initial): first"))

	d, err := NewCommitDetector(root)
	require.NoError(t, err)
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Start(ctx))

	appendFile(t, logsHead, reflogLine(hashA, hashB, "commit: second"))

	select {
	case c := <-d.Commits():
		assert.Equal(t, hashB, c.Hash)
	case <-ctx.Done():
		t.Fatal("timeout waiting for commit")
	}
}

type chanSource struct {
	commits chan Commit
	errs    chan error
}

func (s chanSource) Commits() <-chan Commit { return s.commits }
func (s chanSource) Errors() <-chan error   { return s.errs }

// overlapRunner fails the test if two runs overlap.
type overlapRunner struct {
	mu      sync.Mutex
	running bool
	calls   []orchestrator.RunOptions
	t       *testing.T
}

func (r *overlapRunner) Run(ctx context.Context, opts orchestrator.RunOptions) (*orchestrator.Report, error) {
	r.mu.Lock()
	if r.running {
		r.t.Error("runs overlapped")
	}
	r.running = true
	r.calls = append(r.calls, opts)
	r.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return &orchestrator.Report{RunID: opts.Meta["commit"], Status: store.RunSuccess}, nil
}

func TestWatcher_SerialisesRuns(t *testing.T) {
	src := chanSource{commits: make(chan Commit, 4), errs: make(chan error, 1)}
	runner := &overlapRunner{t: t}

	var mu sync.Mutex
	var reported []string
	done := make(chan struct{})
	w := New(src, runner, Config{
		Model: "sonnet",
		OnReport: func(c Commit, r *orchestrator.Report, err error) {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, r.RunID)
			if len(reported) == 3 {
				close(done)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	src.errs <- errors.New("inotify overflow")
	for _, h := range []string{"a", "b", "c"} {
		src.commits <- Commit{Hash: h}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runs did not complete")
	}
	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, reported)
	for _, opts := range runner.calls {
		assert.Equal(t, vcs.ScopeLastCommit, opts.Scope)
		assert.Equal(t, "sonnet", opts.Model)
		assert.Equal(t, "watch", opts.Meta["trigger"])
	}
}

func TestWatcher_WithServicesRunner(t *testing.T) {
	reg := services.NewTestRegistry(t, services.TestOptions{
		Files: map[string]string{
			"agents.md":     "# root\n\nRoot.\n",
			"lib/agents.md": "# lib\n\nLib.\n",
			"lib/util.go":   "package lib\n",
		},
		Changed: []string{"lib/util.go"},
	})

	src := chanSource{commits: make(chan Commit, 1), errs: make(chan error)}
	reports := make(chan *orchestrator.Report, 1)
	w := New(src, reg.Runner(), Config{
		OnReport: func(_ Commit, r *orchestrator.Report, err error) {
			assert.NoError(t, err)
			reports <- r
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	src.commits <- Commit{Hash: hashB}
	select {
	case r := <-reports:
		require.NotNil(t, r)
		assert.Equal(t, store.RunSuccess, r.Status)
		run, err := reg.Store().GetRun(context.Background(), r.RunID)
		require.NoError(t, err)
		assert.Equal(t, "head", run.Scope)
		assert.Equal(t, hashB, run.Meta["commit"])
	case <-time.After(5 * time.Second):
		t.Fatal("no report")
	}
}
