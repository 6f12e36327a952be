package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
)

func TestBuildInventory(t *testing.T) {
	reg := NewTestRegistry(t, TestOptions{Files: demoFiles()})
	ctx := context.Background()

	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, reg.Memory.UpsertGuide(ctx, store.Guide{
		Path:      "api/agents.md",
		Status:    "active",
		LastHash:  "abc123",
		UpdatedAt: updated,
	}))

	inv, err := BuildInventory(ctx, reg.Reader(), guides.DefaultFilenames, reg.Memory)
	require.NoError(t, err)

	assert.Equal(t, []string{"agents.md"}, inv.Roots)
	assert.Equal(t, Coverage{Total: 3, Active: 2, Draft: 1}, inv.Coverage)

	root, ok := inv.Node("agents.md")
	require.True(t, ok)
	assert.Equal(t, 0, root.Depth)
	assert.Equal(t, []string{"api/agents.md", "docs/CLAUDE.md"}, root.Children)
	assert.Nil(t, root.UpdatedAt)

	api, ok := inv.Node("api/agents.md")
	require.True(t, ok)
	assert.Equal(t, "agents.md", api.Parent)
	assert.Equal(t, 1, api.Depth)
	assert.Equal(t, guides.StatusActive, api.Status)
	assert.Equal(t, "abc123", api.LastHash)
	require.NotNil(t, api.UpdatedAt)
	assert.True(t, updated.Equal(*api.UpdatedAt))

	docs, ok := inv.Node("docs/CLAUDE.md")
	require.True(t, ok)
	assert.Equal(t, guides.StatusDraft, docs.Status)

	_, ok = inv.Node("missing/agents.md")
	assert.False(t, ok)
}

func TestBuildInventory_NoRegistry(t *testing.T) {
	reg := NewTestRegistry(t, TestOptions{Files: map[string]string{"pkg/x.go": "package x\n"}})

	inv, err := BuildInventory(context.Background(), reg.Reader(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, inv.Guides)
	assert.Equal(t, Coverage{}, inv.Coverage)
}
