// Package ignore filters repository paths with gitignore-style glob patterns.
//
// It decides which changed files may trigger guide updates and which
// directories a guide discovery walk may enter.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultFile is the per-repository ignore file.
const DefaultFile = ".guidekeeperignore"

// DefaultPatterns excludes markdown so guide edits never trigger themselves.
var DefaultPatterns = []string{"*.md"}

// Matcher reports whether a repository-relative path is ignored.
type Matcher struct {
	patterns []string
}

// NewMatcher compiles patterns into a Matcher. Invalid globs are rejected.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		p := toGlob(raw)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", raw)
		}
		m.patterns = append(m.patterns, p)
	}
	m.patterns = deduplicate(m.patterns)
	return m, nil
}

// Load builds a Matcher from the configured patterns plus any patterns found
// in the ignore file at the repository root.
func Load(repoRoot string, patterns []string) (*Matcher, error) {
	all := append([]string(nil), patterns...)
	filePatterns, err := parseFile(filepath.Join(repoRoot, DefaultFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", DefaultFile, err)
	}
	all = append(all, filePatterns...)
	return NewMatcher(all)
}

// Patterns returns the compiled glob patterns.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Match reports whether rel is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if isDir {
			// directory patterns are stored with a /** suffix
			if ok, _ := doublestar.Match(p, rel+"/x"); ok && strings.HasSuffix(p, "/**") {
				return true
			}
		}
	}
	return false
}

// Filter returns the paths of files that are not ignored, preserving order.
func (m *Matcher) Filter(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if !m.Match(f, false) {
			out = append(out, f)
		}
	}
	return out
}

func parseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// toGlob converts a gitignore-style line to a doublestar pattern.
func toGlob(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return ""
	}
	anchored := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}
	if !anchored && !strings.Contains(strings.TrimSuffix(pattern, "/**"), "/") && !strings.HasPrefix(pattern, "**/") {
		pattern = "**/" + pattern
	}
	return pattern
}

func deduplicate(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
