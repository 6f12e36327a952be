package guides

import (
	"path"
	"sort"
)

// Mapper finds the guides covering a set of changed files.
// It holds no state between calls.
type Mapper struct {
	reader    Reader
	filenames []string
}

// NewMapper creates a Mapper that consults filenames in priority order at
// each directory level. An empty list means DefaultFilenames.
func NewMapper(reader Reader, filenames []string) *Mapper {
	if len(filenames) == 0 {
		filenames = DefaultFilenames
	}
	names := make([]string, len(filenames))
	copy(names, filenames)
	return &Mapper{reader: reader, filenames: names}
}

// Filenames returns the candidate filenames in priority order.
func (m *Mapper) Filenames() []string {
	out := make([]string, len(m.filenames))
	copy(out, m.filenames)
	return out
}

// GuideAt returns the guide for dir, checking candidate filenames in order.
func (m *Mapper) GuideAt(dir string) (string, bool) {
	for _, name := range m.filenames {
		candidate := path.Join(dir, name)
		if m.reader.Exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Map returns the sorted set of guides whose directory is an ancestor of at
// least one changed file. Files missing on disk contribute nothing.
func (m *Mapper) Map(changedFiles []string) []string {
	found := make(map[string]struct{})
	checked := make(map[string]bool)

	for _, f := range changedFiles {
		file, err := CleanPath(f)
		if err != nil || file == "." {
			continue
		}
		if !m.reader.Exists(file) {
			continue
		}

		dir := path.Dir(file)
		for {
			if _, seen := checked[dir]; seen {
				// ancestors of a visited dir are already resolved
				break
			}
			guide, ok := m.GuideAt(dir)
			checked[dir] = ok
			if ok {
				found[guide] = struct{}{}
			}
			if dir == "." {
				break
			}
			dir = path.Dir(dir)
		}
	}

	return sortedKeys(found)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
