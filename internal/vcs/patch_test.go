package vcs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const samplePatch = `diff --git a/a/b/main.go b/a/b/main.go
index 111..222 100644
--- a/a/b/main.go
+++ b/a/b/main.go
@@ -1 +1 @@
-package old
+package main
diff --git a/a/c/util.go b/a/c/util.go
new file mode 100644
--- /dev/null
+++ b/a/c/util.go
@@ -0,0 +1 @@
+package c
diff --git a/ab/x.go b/ab/x.go
--- a/ab/x.go
+++ b/ab/x.go
@@ -1 +1 @@
-x
+y
`

func TestParsePatch(t *testing.T) {
	idx := ParsePatch(samplePatch)

	assert.Equal(t, []string{"a/b/main.go", "a/c/util.go", "ab/x.go"}, idx.Files())
	assert.True(t, strings.HasPrefix(idx.File("a/c/util.go"), "diff --git a/a/c/util.go"))
	assert.Contains(t, idx.File("a/c/util.go"), "+package c")
	assert.NotContains(t, idx.File("a/b/main.go"), "package c")
}

func TestParsePatch_Empty(t *testing.T) {
	idx := ParsePatch("  \n")
	assert.Empty(t, idx.Files())
	assert.Equal(t, "", idx.Scoped(".", nil))
}

func TestPatchIndex_Scoped(t *testing.T) {
	idx := ParsePatch(samplePatch)

	a := idx.Scoped("a", nil)
	assert.Contains(t, a, "a/b/main.go")
	assert.Contains(t, a, "a/c/util.go")
	assert.NotContains(t, a, "ab/x.go", "sibling with shared prefix must not leak in")

	assert.Equal(t, idx.File("a/b/main.go"), idx.Scoped("a/b", nil))
	assert.Equal(t, "", idx.Scoped("zzz", nil))

	all := idx.Scoped(".", func(p string) bool { return p != "ab/x.go" })
	assert.Contains(t, all, "a/c/util.go")
	assert.NotContains(t, all, "ab/x.go")
}

func TestHeaderPath(t *testing.T) {
	assert.Equal(t, "dir/file.go", headerPath("diff --git a/dir/file.go b/dir/file.go"))
	assert.Equal(t, "new/name.go", headerPath("diff --git a/old/name.go b/new/name.go"))
	assert.Equal(t, "sp ace.go", headerPath(`diff --git "a/sp ace.go" "b/sp ace.go"`))
	assert.Equal(t, "pkg/café.go", headerPath(`diff --git "a/pkg/caf\303\251.go" "b/pkg/caf\303\251.go"`))
	assert.Equal(t, "tab\tname.go", headerPath(`diff --git "a/tab\tname.go" "b/tab\tname.go"`))
}

func TestParsePatch_QuotedPath(t *testing.T) {
	patch := "diff --git \"a/pkg/caf\\303\\251.go\" \"b/pkg/caf\\303\\251.go\"\n" +
		"--- \"a/pkg/caf\\303\\251.go\"\n+++ \"b/pkg/caf\\303\\251.go\"\n@@ -1 +1 @@\n-a\n+b\n"
	idx := ParsePatch(patch)

	assert.Equal(t, []string{"pkg/café.go"}, idx.Files())
	assert.Contains(t, idx.Scoped("pkg", func(p string) bool { return p == "pkg/café.go" }), "+b")
}

type mockVCS struct {
	mock.Mock
}

func (m *mockVCS) ChangedFiles(ctx context.Context, scope Scope) ([]string, error) {
	args := m.Called(ctx, scope)
	if files, ok := args.Get(0).([]string); ok {
		return files, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVCS) Diff(ctx context.Context, scope Scope, prefix string) (string, error) {
	args := m.Called(ctx, scope, prefix)
	return args.String(0), args.Error(1)
}

func TestSnapshot_CachesSuccess(t *testing.T) {
	ctx := context.Background()
	v := &mockVCS{}
	v.On("Diff", ctx, ScopeStaged, "").Return(samplePatch, nil).Once()

	s := NewSnapshot(v, ScopeStaged)
	first, err := s.Index(ctx)
	require.NoError(t, err)
	second, err := s.Index(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	v.AssertNumberOfCalls(t, "Diff", 1)
}

func TestSnapshot_RetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	v := &mockVCS{}
	v.On("Diff", ctx, ScopeLastCommit, "").Return("", errors.New("index.lock exists")).Once()
	v.On("Diff", ctx, ScopeLastCommit, "").Return(samplePatch, nil).Once()

	s := NewSnapshot(v, ScopeLastCommit)
	_, err := s.Index(ctx)
	require.Error(t, err)

	idx, err := s.Index(ctx)
	require.NoError(t, err)
	assert.Len(t, idx.Files(), 3)
	v.AssertExpectations(t)
}
