package services

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/fyrsmithlabs/guidekeeper/internal/agent"
	"github.com/fyrsmithlabs/guidekeeper/internal/config"
	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/ignore"
	"github.com/fyrsmithlabs/guidekeeper/internal/logging"
	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/telemetry"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

// StaticVCS serves a fixed change list and a patch synthesised from it.
type StaticVCS struct {
	Files []string
	Err   error
}

func (s StaticVCS) ChangedFiles(context.Context, vcs.Scope) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]string(nil), s.Files...), nil
}

func (s StaticVCS) Diff(_ context.Context, _ vcs.Scope, prefix string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	var b strings.Builder
	for _, f := range s.Files {
		if prefix != "" && !strings.HasPrefix(f, prefix) {
			continue
		}
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n@@ -1 +1 @@\n-old\n+new\n", f, f, f, f)
	}
	return b.String(), nil
}

// TestOptions configures NewTestRegistry.
type TestOptions struct {
	// Files is the working tree.
	Files map[string]string

	// Changed is what every scope reports as changed.
	Changed []string

	// VCSErr makes every VCS call fail.
	VCSErr error

	// Updater defaults to one that appends a line to every guide it is given.
	Updater agent.Updater
}

// TestRegistry is a Registry over in-memory collaborators.
type TestRegistry struct {
	Registry

	Memory        *store.Memory
	Logger        *logging.TestLogger
	TestTelemetry *telemetry.TestTelemetry
	Files         *MemFS
}

// MemFS is a mutable in-memory file tree safe for concurrent use.
type MemFS struct {
	mu    sync.Mutex
	files fstest.MapFS
}

// NewMemFS creates a MemFS holding files.
func NewMemFS(files map[string]string) *MemFS {
	m := &MemFS{files: fstest.MapFS{}}
	for p, text := range files {
		m.files[p] = &fstest.MapFile{Data: []byte(text)}
	}
	return m
}

func (m *MemFS) Open(name string) (fs.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files.Open(name)
}

// Append adds text to the end of name, creating it if needed.
func (m *MemFS) Append(name, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var data []byte
	if f, ok := m.files[name]; ok {
		data = append(data, f.Data...)
	}
	m.files[name] = &fstest.MapFile{Data: append(data, text...)}
}

// NewTestRegistry builds a fully wired registry for tests.
func NewTestRegistry(tb testing.TB, opts TestOptions) *TestRegistry {
	tb.Helper()

	fsys := NewMemFS(opts.Files)
	reader := guides.NewFSReader(fsys)

	updater := opts.Updater
	if updater == nil {
		updater = agent.UpdaterFunc(func(_ context.Context, guidePath, _ string) (*agent.Result, error) {
			fsys.Append(guidePath, "\nUpdated.\n")
			return &agent.Result{Changed: true}, nil
		})
	}

	matcher, err := ignore.NewMatcher(ignore.DefaultPatterns)
	if err != nil {
		tb.Fatalf("ignore matcher: %v", err)
	}

	mem := store.NewMemory()
	logger := logging.NewTestLogger()
	tel := telemetry.NewTestTelemetry()
	v := StaticVCS{Files: opts.Changed, Err: opts.VCSErr}

	orch, err := orchestrator.New(orchestrator.Config{
		Planner: orchestrator.NewPlanner(v, guides.NewMapper(reader, guides.DefaultFilenames), matcher),
		Reader:  reader,
		Updater: updater,
		Store:   mem,
		Repo:    vcs.Meta{Root: "/src/demo", Branch: "main", SHA: "0123456789abcdef"},
		Logger:  logger.Logger,
		Tracer:  tel.Tracer("test"),
	})
	if err != nil {
		tb.Fatalf("orchestrator: %v", err)
	}

	return &TestRegistry{
		Registry: NewRegistry(Options{
			Config:       config.Default(),
			Repo:         vcs.Meta{Root: "/src/demo", Branch: "main", SHA: "0123456789abcdef"},
			Reader:       reader,
			Orchestrator: orch,
			Runner:       NewRunner(orch, logger.Logger),
			Store:        mem,
			Telemetry:    tel.Telemetry,
		}),
		Memory:        mem,
		Logger:        logger,
		TestTelemetry: tel,
		Files:         fsys,
	}
}

// BlockingUpdater holds every update until Release is called.
type BlockingUpdater struct {
	Started chan string
	release chan struct{}
}

// NewBlockingUpdater creates a BlockingUpdater.
func NewBlockingUpdater() *BlockingUpdater {
	return &BlockingUpdater{Started: make(chan string, 64), release: make(chan struct{})}
}

func (u *BlockingUpdater) Update(ctx context.Context, guidePath, _ string) (*agent.Result, error) {
	u.Started <- guidePath
	select {
	case <-u.release:
		return &agent.Result{Changed: true}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", agent.ErrAgentFailed, ctx.Err())
	}
}

// Release lets every pending and future update finish.
func (u *BlockingUpdater) Release() {
	close(u.release)
}
