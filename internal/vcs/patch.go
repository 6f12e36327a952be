package vcs

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// PatchIndex splits a multi-file patch into per-file chunks so that
// directory-scoped diffs can be cut from one git invocation.
type PatchIndex struct {
	chunks map[string]string
	order  []string
}

// ParsePatch indexes patch by the post-image path of each file section.
func ParsePatch(patch string) *PatchIndex {
	idx := &PatchIndex{chunks: make(map[string]string)}
	if strings.TrimSpace(patch) == "" {
		return idx
	}

	var (
		current string
		buf     strings.Builder
	)
	flush := func() {
		if current == "" {
			return
		}
		if _, ok := idx.chunks[current]; !ok {
			idx.order = append(idx.order, current)
		}
		idx.chunks[current] += buf.String()
		buf.Reset()
	}

	for _, line := range strings.SplitAfter(patch, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			current = headerPath(strings.TrimRight(line, "\n"))
		}
		if current != "" {
			buf.WriteString(line)
		}
	}
	flush()
	return idx
}

// headerPath extracts the b/ side path from a "diff --git a/x b/x" header.
// Quoted paths use C-style escapes, with non-ASCII bytes in octal.
func headerPath(header string) string {
	rest := strings.TrimPrefix(header, "diff --git ")
	if strings.HasSuffix(rest, `"`) {
		if i := strings.LastIndex(rest, ` "b/`); i >= 0 {
			quoted := rest[i+1:]
			if p, err := strconv.Unquote(quoted); err == nil {
				return strings.TrimPrefix(p, "b/")
			}
			return strings.TrimPrefix(strings.Trim(quoted, `"`), "b/")
		}
	}
	if i := strings.LastIndex(rest, " b/"); i >= 0 {
		return rest[i+3:]
	}
	return rest
}

// Files returns the indexed file paths in patch order.
func (p *PatchIndex) Files() []string {
	return append([]string(nil), p.order...)
}

// File returns the chunk for a single path.
func (p *PatchIndex) File(path string) string {
	return p.chunks[path]
}

// Scoped returns the concatenated chunks of files under dir that pass keep.
// A nil keep accepts every file. Chunks are ordered by path.
func (p *PatchIndex) Scoped(dir string, keep func(path string) bool) string {
	var paths []string
	for _, f := range p.order {
		if !under(dir, f) {
			continue
		}
		if keep != nil && !keep(f) {
			continue
		}
		paths = append(paths, f)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, f := range paths {
		b.WriteString(p.chunks[f])
	}
	return b.String()
}

func under(dir, file string) bool {
	if dir == "" || dir == "." {
		return true
	}
	return strings.HasPrefix(file, strings.TrimSuffix(dir, "/")+"/")
}

// Snapshot fetches the full patch for a scope once and serves scoped diffs
// from the cached index. A failed fetch is not cached, so the next caller
// retries.
type Snapshot struct {
	vcs   VCS
	scope Scope

	mu    sync.Mutex
	index *PatchIndex
}

// NewSnapshot creates a lazily populated Snapshot.
func NewSnapshot(v VCS, scope Scope) *Snapshot {
	return &Snapshot{vcs: v, scope: scope}
}

// Index returns the cached patch index, fetching it on first use.
func (s *Snapshot) Index(ctx context.Context) (*PatchIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		return s.index, nil
	}
	patch, err := s.vcs.Diff(ctx, s.scope, "")
	if err != nil {
		return nil, err
	}
	s.index = ParsePatch(patch)
	return s.index, nil
}
