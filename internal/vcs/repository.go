package vcs

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrNotRepository indicates the path is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Meta describes the checked-out state of a repository.
type Meta struct {
	Root   string `json:"root"`
	Branch string `json:"branch,omitempty"`
	SHA    string `json:"sha,omitempty"`
	Remote string `json:"remote,omitempty"`
}

// ShortSHA returns the first 7 characters of the HEAD hash.
func (m Meta) ShortSHA() string {
	if len(m.SHA) > 7 {
		return m.SHA[:7]
	}
	return m.SHA
}

// Name is the repository name from the origin URL, or the root directory
// name when there is no origin.
func (m Meta) Name() string {
	if m.Remote != "" {
		u := strings.TrimSuffix(strings.TrimRight(m.Remote, "/"), ".git")
		if i := strings.LastIndexAny(u, "/:"); i >= 0 {
			u = u[i+1:]
		}
		if u != "" {
			return u
		}
	}
	if m.Root == "" {
		return ""
	}
	return path.Base(filepath.ToSlash(m.Root))
}

// Repository wraps a go-git repository discovered from any path inside it.
type Repository struct {
	repo *git.Repository
	root string
}

// Open finds the repository containing path.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no work tree", ErrNotRepository, path)
	}

	return &Repository{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the absolute work tree root.
func (r *Repository) Root() string {
	return r.root
}

// Meta reads branch, HEAD and origin URL. Missing pieces are left empty:
// an unborn HEAD or a repository without an origin is not an error.
func (r *Repository) Meta() Meta {
	m := Meta{Root: r.root}

	if head, err := r.repo.Head(); err == nil {
		m.SHA = head.Hash().String()
		if head.Name().IsBranch() {
			m.Branch = head.Name().Short()
		}
	}

	if remote, err := r.repo.Remote("origin"); err == nil {
		if urls := remote.Config().URLs; len(urls) > 0 {
			m.Remote = urls[0]
		}
	}

	return m
}
