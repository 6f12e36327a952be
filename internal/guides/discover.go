package guides

import (
	"io/fs"
	"path"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// SkipFunc reports whether a path should be left out of a discovery walk.
type SkipFunc func(rel string, isDir bool) bool

// alwaysSkipped are directories never searched for guides.
var alwaysSkipped = map[string]bool{
	".git":         true,
	"node_modules": true,
	".guidekeeper": true,
}

// Discover walks fsys and returns every guide in the repository, sorted.
// At most one guide is returned per directory, chosen by filename priority.
func Discover(fsys fs.FS, filenames []string, skip SkipFunc) ([]string, error) {
	if len(filenames) == 0 {
		filenames = DefaultFilenames
	}
	rank := make(map[string]int, len(filenames))
	for i, name := range filenames {
		rank[name] = i
	}

	best := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			// unreadable subtree
			return fs.SkipDir
		}
		if d.IsDir() {
			if p != "." && (alwaysSkipped[d.Name()] || (skip != nil && skip(p, true))) {
				return fs.SkipDir
			}
			return nil
		}
		r, ok := rank[d.Name()]
		if !ok || !d.Type().IsRegular() {
			return nil
		}
		if skip != nil && skip(p, false) {
			return nil
		}
		dir := path.Dir(p)
		if cur, ok := best[dir]; !ok || r < rank[path.Base(cur)] {
			best[dir] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(best))
	for _, g := range best {
		set[g] = struct{}{}
	}
	return sortedKeys(set), nil
}

// Status is the lifecycle state of a guide.
type Status string

const (
	StatusActive Status = "active"
	StatusDraft  Status = "draft"
)

// Classify returns StatusDraft for guides that hold nothing beyond headings,
// HTML comments and rules.
func Classify(content string) Status {
	source := []byte(content)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch n.(type) {
		case *ast.Heading, *ast.HTMLBlock, *ast.ThematicBreak:
			continue
		}
		return StatusActive
	}
	return StatusDraft
}
