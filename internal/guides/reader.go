package guides

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"
)

// DefaultFilenames is the ordered list of recognized guide filenames.
// The primary name comes first and legacy names follow.
var DefaultFilenames = []string{"agents.md", "CLAUDE.md"}

// ErrInvalidPath is returned for paths that escape the repository root.
var ErrInvalidPath = errors.New("path escapes repository root")

// Reader gives read access to files under the repository root.
type Reader interface {
	// Exists reports whether rel names a regular file.
	Exists(rel string) bool

	// Read returns the text of rel.
	Read(rel string) (string, error)
}

// FSReader implements Reader on top of an fs.FS rooted at the repository.
type FSReader struct {
	fsys fs.FS
}

// NewFSReader returns a Reader over fsys.
func NewFSReader(fsys fs.FS) *FSReader {
	return &FSReader{fsys: fsys}
}

// NewDirReader returns a Reader over the directory root on disk.
func NewDirReader(root string) *FSReader {
	return NewFSReader(os.DirFS(root))
}

// FS exposes the underlying filesystem.
func (r *FSReader) FS() fs.FS {
	return r.fsys
}

func (r *FSReader) Exists(rel string) bool {
	name, err := CleanPath(rel)
	if err != nil {
		return false
	}
	info, err := fs.Stat(r.fsys, name)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func (r *FSReader) Read(rel string) (string, error) {
	name, err := CleanPath(rel)
	if err != nil {
		return "", err
	}
	data, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CleanPath normalizes a repository-relative path to the form used for guide
// identifiers. Backslashes are treated as separators.
func CleanPath(rel string) (string, error) {
	p := path.Clean(strings.ReplaceAll(strings.TrimSpace(rel), "\\", "/"))
	p = strings.TrimPrefix(p, "./")
	if p == "" || p == "." {
		return ".", nil
	}
	if path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
		return "", ErrInvalidPath
	}
	return p, nil
}

// Dir returns the directory a guide covers. The root guide covers ".".
func Dir(guidePath string) string {
	return path.Dir(guidePath)
}

// Covers reports whether file lies under dir. The root dir covers everything.
func Covers(dir, file string) bool {
	if dir == "." || dir == "" {
		return true
	}
	return strings.HasPrefix(file, dir+"/")
}
