package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/guidekeeper/internal/secrets"
)

func TestBuild_Sections(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	out, err := b.Build(Context{
		Repo:      "guidekeeper",
		Branch:    "main",
		SHA:       "0123456789abcdef0123",
		GuidePath: "src/api/agents.md",
		Diff:      "diff --git a/src/api/h.go b/src/api/h.go\n+func H() {}\n",
		Guide:     "# API\n\nHandlers.\n",
		Children: []ChildUpdate{
			{Path: "src/api/v1/agents.md", Diff: "+new route"},
			{Path: "src/api/v2/agents.md", Diff: "  "},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Repository: guidekeeper | branch: main | sha: 0123456789ab")
	assert.Contains(t, out, "Guide: src/api/agents.md")
	assert.Contains(t, out, "Directory: src/api")
	assert.Contains(t, out, "DIFF (directory-scoped):\n```diff\ndiff --git a/src/api/h.go")
	assert.Contains(t, out, "CURRENT GUIDE:\n```markdown\n# API")
	assert.Contains(t, out, "CHILD GUIDE UPDATES:")
	assert.Contains(t, out, "### src/api/v1/agents.md\n```diff\n+new route\n```")
	assert.NotContains(t, out, "src/api/v2/agents.md")
	assert.Contains(t, out, NoChangesReply)
}

func TestBuild_EmptyInputs(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	out, err := b.Build(Context{GuidePath: "agents.md"})
	require.NoError(t, err)

	assert.Contains(t, out, "Repository: (unknown) | branch: (detached) | sha: (none)")
	assert.Contains(t, out, "Directory: .")
	assert.Contains(t, out, "(no code changes under this directory)")
	assert.Contains(t, out, "CURRENT GUIDE:\n(empty)")
	assert.NotContains(t, out, "CHILD GUIDE UPDATES")
}

func TestBuild_ScrubsDiffs(t *testing.T) {
	s, err := secrets.New(secrets.DefaultConfig(), nil)
	require.NoError(t, err)
	b, err := NewBuilder(WithScrubber(s))
	require.NoError(t, err)

	key := "AKIA" + "IOSFODNN7EXAMPLE"
	out, err := b.Build(Context{
		GuidePath: "infra/agents.md",
		Diff:      "+aws_key = " + key + "\n",
		Children:  []ChildUpdate{{Path: "infra/x/agents.md", Diff: "+id " + key}},
	})
	require.NoError(t, err)
	assert.NotContains(t, out, key)
	assert.Contains(t, out, "[REDACTED:")
}

func TestTrim(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	diff := strings.Join(lines, "\n")

	t.Run("under threshold", func(t *testing.T) {
		assert.Equal(t, diff, Trim(diff, len(diff), 2))
	})

	t.Run("over threshold", func(t *testing.T) {
		got := Trim(diff, 10, 2)
		assert.Equal(t, "line 0\nline 1\n... [6 lines trimmed] ...\nline 8\nline 9", got)
	})

	t.Run("too few lines to trim", func(t *testing.T) {
		assert.Equal(t, diff, Trim(diff, 10, 5))
	})
}

func TestBuild_TrimsLargeDiff(t *testing.T) {
	b, err := NewBuilder(WithMaxDiffChars(50), WithKeepLines(1))
	require.NoError(t, err)

	diff := strings.Repeat("+0123456789\n", 20)
	out, err := b.Build(Context{GuidePath: "a/agents.md", Diff: diff})
	require.NoError(t, err)
	assert.Contains(t, out, "lines trimmed] ...")
}
