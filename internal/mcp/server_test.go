package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/guidekeeper/internal/logging"
	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/secrets"
	"github.com/fyrsmithlabs/guidekeeper/internal/services"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

func repoFiles() map[string]string {
	return map[string]string{
		"agents.md":        "# root\n\nRoot guide.\n",
		"web/agents.md":    "# web\n\nFrontend.\n",
		"web/app.ts":       "export {}\n",
		"worker/CLAUDE.md": "# worker\n\nJobs.\n",
		"worker/job.go":    "package worker\n",
	}
}

type fixture struct {
	reg     *services.TestRegistry
	session *mcp.ClientSession
}

func newFixture(t *testing.T, opts services.TestOptions) *fixture {
	t.Helper()
	if opts.Files == nil {
		opts.Files = repoFiles()
	}
	reg := services.NewTestRegistry(t, opts)

	scrubber, err := secrets.New(nil, nil)
	require.NoError(t, err)
	server, err := NewServer(&Config{
		Name:   "guidekeeper-test",
		Logger: logging.NewNop(),
		Meter:  reg.TestTelemetry.Meter("test"),
	}, reg, scrubber)
	require.NoError(t, err)

	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return &fixture{reg: reg, session: cs}
}

func (f *fixture) call(t *testing.T, tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	return res
}

func structured[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, "tool returned an error: %v", res.Content)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestNewServer(t *testing.T) {
	reg := services.NewTestRegistry(t, services.TestOptions{})
	scrubber, err := secrets.New(nil, nil)
	require.NoError(t, err)

	t.Run("requires services", func(t *testing.T) {
		_, err := NewServer(nil, nil, scrubber)
		assert.Error(t, err)
	})

	t.Run("requires scrubber", func(t *testing.T) {
		_, err := NewServer(nil, reg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scrubber is required")
	})

	t.Run("defaults config", func(t *testing.T) {
		s, err := NewServer(nil, reg, scrubber)
		require.NoError(t, err)
		assert.NotNil(t, s.mcp)
	})
}

func TestListTools(t *testing.T) {
	f := newFixture(t, services.TestOptions{})

	res, err := f.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"guides_plan", "guides_update", "guides_runs"}, names)
}

func TestGuidesPlan(t *testing.T) {
	f := newFixture(t, services.TestOptions{Changed: []string{"web/app.ts", "worker/job.go"}})

	res := f.call(t, "guides_plan", map[string]any{"scope": "head"})
	out := structured[planOutput](t, res)

	assert.Equal(t, "head", out.Scope)
	assert.Equal(t, []string{"agents.md", "web/agents.md", "worker/CLAUDE.md"}, out.AffectedGuides)
	assert.Equal(t, [][]string{{"web/agents.md", "worker/CLAUDE.md"}, {"agents.md"}}, out.Layers)

	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "layer 0: web/agents.md, worker/CLAUDE.md")

	// planning dispatches nothing
	runs, err := f.reg.Store().ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestGuidesPlan_InvalidScope(t *testing.T) {
	f := newFixture(t, services.TestOptions{})

	res := f.call(t, "guides_plan", map[string]any{"scope": "someday"})
	assert.True(t, res.IsError)
}

func TestGuidesUpdate(t *testing.T) {
	f := newFixture(t, services.TestOptions{Changed: []string{"worker/job.go"}})

	res := f.call(t, "guides_update", map[string]any{"scope": "staged", "model": "opus"})
	out := structured[updateOutput](t, res)

	assert.Equal(t, string(store.RunSuccess), out.Status)
	assert.Equal(t, 2, out.Updated)
	assert.Equal(t, 2, out.LayersCompleted)
	require.Len(t, out.Outcomes, 2)
	assert.Equal(t, "worker/CLAUDE.md", out.Outcomes[0].Guide)
	assert.Equal(t, "agents.md", out.Outcomes[1].Guide)

	run, err := f.reg.Store().GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, "opus", run.Model)
	assert.Equal(t, "mcp", run.Meta["trigger"])
}

func TestGuidesUpdate_Busy(t *testing.T) {
	blocker := services.NewBlockingUpdater()
	f := newFixture(t, services.TestOptions{Changed: []string{"web/app.ts"}, Updater: blocker})

	_, err := f.reg.Runner().Start(context.Background(), orchestrator.RunOptions{Scope: vcs.ScopeStaged})
	require.NoError(t, err)
	<-blocker.Started

	res := f.call(t, "guides_update", map[string]any{})
	assert.True(t, res.IsError)

	blocker.Release()
	f.reg.Runner().Wait()
}

func TestGuidesRuns(t *testing.T) {
	f := newFixture(t, services.TestOptions{Changed: []string{"web/app.ts"}})

	first := structured[updateOutput](t, f.call(t, "guides_update", map[string]any{}))
	second := structured[updateOutput](t, f.call(t, "guides_update", map[string]any{"scope": "head"}))

	list := structured[runsOutput](t, f.call(t, "guides_runs", map[string]any{"limit": 1}))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, second.RunID, list.Runs[0].ID)
	assert.Empty(t, list.Outcomes)

	detail := structured[runsOutput](t, f.call(t, "guides_runs", map[string]any{"run_id": first.RunID}))
	require.Len(t, detail.Runs, 1)
	assert.Equal(t, "staged", detail.Runs[0].Scope)
	assert.NotEmpty(t, detail.Runs[0].FinishedAt)
	assert.Len(t, detail.Outcomes, 2)

	res := f.call(t, "guides_runs", map[string]any{"run_id": "missing"})
	assert.True(t, res.IsError)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.ErrRunInProgress, "busy"},
		{store.ErrRunNotFound, "not_found"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "cancelled"},
		{assert.AnError, "internal_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeError(tt.err))
	}
}
