package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends runs fn against each Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "state", "runs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
}

func TestStore_RunLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		id, err := s.CreateRun(ctx, NewRun{
			Scope:       "head",
			Model:       "sonnet",
			TotalLayers: 2,
			StartedAt:   start,
			Meta:        map[string]string{"branch": "main"},
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		run, err := s.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, RunRunning, run.Status)
		assert.Nil(t, run.FinishedAt)
		assert.Equal(t, "main", run.Meta["branch"])

		require.NoError(t, s.AppendGuideOutcome(ctx, GuideOutcome{
			RunID: id, GuidePath: "src/a/agents.md", LayerIndex: 0,
			Status: OutcomeUpdated, DiffSummary: "+x", Duration: 1500 * time.Millisecond,
		}))
		require.NoError(t, s.AppendGuideOutcome(ctx, GuideOutcome{
			RunID: id, GuidePath: "src/b/agents.md", LayerIndex: 0,
			Status: OutcomeFailed, Error: "boom",
		}))
		require.NoError(t, s.SaveLayerSummary(ctx, id, 0, LayerSummary{"src/a/agents.md": "+x"}))

		run, err = s.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, run.LayersCompleted)

		finish := start.Add(3 * time.Second)
		require.NoError(t, s.FinalizeRun(ctx, id, RunSuccess, Counts{
			TotalLayers: 2, LayersCompleted: 2, Updated: 1, Failed: 1,
		}, finish))

		run, err = s.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, RunSuccess, run.Status)
		require.NotNil(t, run.FinishedAt)
		assert.True(t, run.FinishedAt.Equal(finish))
		assert.Equal(t, int64(3000), run.DurationMS)
		assert.Equal(t, 1, run.GuidesUpdated)
		assert.Equal(t, 1, run.GuidesFailed)
		assert.False(t, run.Partial())

		outcomes, err := s.ListOutcomes(ctx, id)
		require.NoError(t, err)
		require.Len(t, outcomes, 2)
		assert.Equal(t, "src/a/agents.md", outcomes[0].GuidePath)
		assert.Equal(t, 1500*time.Millisecond, outcomes[0].Duration)
		assert.Equal(t, "boom", outcomes[1].Error)

		summary, err := s.LayerSummary(ctx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, LayerSummary{"src/a/agents.md": "+x"}, summary)

		empty, err := s.LayerSummary(ctx, id, 1)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestStore_GetRunNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		_, err := s.GetRun(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		var ids []string
		for i := 0; i < 3; i++ {
			id, err := s.CreateRun(ctx, NewRun{Scope: "staged", StartedAt: base.Add(time.Duration(i) * time.Minute)})
			require.NoError(t, err)
			ids = append(ids, id)
		}

		runs, err := s.ListRuns(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, ids[2], runs[0].ID)
		assert.Equal(t, ids[1], runs[1].ID)
	})
}

func TestStore_PartialRun(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, err := s.CreateRun(ctx, NewRun{Scope: "pr", TotalLayers: 3})
		require.NoError(t, err)
		require.NoError(t, s.FinalizeRun(ctx, id, RunFailed, Counts{TotalLayers: 3, LayersCompleted: 1}, time.Now()))

		run, err := s.GetRun(ctx, id)
		require.NoError(t, err)
		assert.True(t, run.Partial())
	})
}

func TestStore_GuideRegistry(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertGuide(ctx, Guide{Path: "src/agents.md", ParentPath: "agents.md", LastHash: "aa"}))
		require.NoError(t, s.UpsertGuide(ctx, Guide{Path: "agents.md"}))
		require.NoError(t, s.UpsertGuide(ctx, Guide{Path: "src/agents.md", ParentPath: "agents.md", LastHash: "bb", Status: "draft"}))

		guides, err := s.ListGuides(ctx)
		require.NoError(t, err)
		require.Len(t, guides, 2)
		assert.Equal(t, "agents.md", guides[0].Path)
		assert.Equal(t, "active", guides[0].Status)
		assert.Equal(t, "bb", guides[1].LastHash)
		assert.Equal(t, "draft", guides[1].Status)
	})
}

func TestStore_ConcurrentAppends(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, err := s.CreateRun(ctx, NewRun{Scope: "head", TotalLayers: 1})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.AppendGuideOutcome(ctx, GuideOutcome{
					RunID: id, GuidePath: filepath.ToSlash(filepath.Join("pkg", string(rune('a'+i)), "agents.md")),
					Status: OutcomeUnchanged,
				}))
			}(i)
		}
		wg.Wait()

		outcomes, err := s.ListOutcomes(ctx, id)
		require.NoError(t, err)
		assert.Len(t, outcomes, 16)
	})
}

func TestOpenSQLite_OpenError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) {
		return nil, errors.New("driver unavailable")
	}

	_, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver unavailable")
}

func TestMemory_AppendUnknownRun(t *testing.T) {
	err := NewMemory().AppendGuideOutcome(context.Background(), GuideOutcome{RunID: "missing"})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCounts(t *testing.T) {
	var c Counts
	c.Add(OutcomeUpdated)
	c.Add(OutcomeUnchanged)
	c.Add(OutcomeUnchanged)
	c.Add(OutcomeFailed)
	assert.Equal(t, Counts{Updated: 1, Unchanged: 2, Failed: 1}, c)
	assert.Equal(t, 3, c.Succeeded())
}
