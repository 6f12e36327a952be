package guides

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildForest(t *testing.T) {
	f := BuildForest([]string{
		"agents.md",
		"a/agents.md",
		"a/b/c/agents.md",
		"x/y/agents.md",
	})

	assert.Equal(t, map[string]string{
		"a/agents.md":     "agents.md",
		"a/b/c/agents.md": "a/agents.md",
		"x/y/agents.md":   "agents.md",
	}, f.Parents)
	assert.Equal(t, []string{"a/agents.md", "x/y/agents.md"}, f.Children["agents.md"])
	assert.Equal(t, []string{"agents.md"}, f.Roots())
	assert.ElementsMatch(t, []string{"a/b/c/agents.md", "x/y/agents.md"}, f.Leaves())
}

func TestBuildForest_ScopedToInputSet(t *testing.T) {
	// a/agents.md exists in the repository but is not affected
	f := BuildForest([]string{"a/b/agents.md", "a/c/agents.md"})

	assert.Empty(t, f.Parents)
	assert.Equal(t, []string{"a/b/agents.md", "a/c/agents.md"}, f.Roots())
}

func TestBuildForest_SiblingPrefixIsNotAncestor(t *testing.T) {
	f := BuildForest([]string{"ab/agents.md", "a/agents.md"})
	_, ok := f.Parent("ab/agents.md")
	assert.False(t, ok)
}

func TestBuildForest_Dedup(t *testing.T) {
	f := BuildForest([]string{"a/agents.md", "a/agents.md", "agents.md"})
	assert.Equal(t, []string{"a/agents.md", "agents.md"}, f.Guides)
}

func TestForest_Descendants(t *testing.T) {
	f := BuildForest([]string{"agents.md", "a/agents.md", "a/b/agents.md", "c/agents.md"})
	assert.Equal(t, []string{"a/agents.md", "a/b/agents.md", "c/agents.md"}, f.Descendants("agents.md"))
	assert.Empty(t, f.Descendants("c/agents.md"))
}

func TestForest_Acyclic(t *testing.T) {
	f := BuildForest(sampleGuides())
	for g := range f.Parents {
		seen := map[string]bool{g: true}
		cur := g
		for {
			p, ok := f.Parent(cur)
			if !ok {
				break
			}
			assert.False(t, seen[p], "cycle through %s", p)
			assert.Less(t, len(Dir(p)), len(Dir(cur))+1)
			seen[p] = true
			cur = p
		}
	}
}

func sampleGuides() []string {
	return []string{
		"agents.md",
		"a/agents.md",
		"a/b/agents.md",
		"a/b/c/agents.md",
		"a/b/c/d/agents.md",
		"a/e/agents.md",
		"f/agents.md",
		"f/g/h/agents.md",
		"f/g/i/CLAUDE.md",
		"j/k/agents.md",
		"j/k/l/agents.md",
		"m/agents.md",
	}
}
