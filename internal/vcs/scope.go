// Package vcs supplies changed files and diffs for a change scope.
//
// Changed files and patches come from the git CLI. Repository metadata
// (root, branch, HEAD) is read with go-git.
package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// Scope selects which changes a run considers.
type Scope string

const (
	// ScopeStaged is the index against HEAD.
	ScopeStaged Scope = "staged"

	// ScopeLastCommit is the last commit against its parent.
	ScopeLastCommit Scope = "head"

	// ScopeUpstream is HEAD against the merge base with the upstream ref.
	ScopeUpstream Scope = "pr"
)

// ErrUnknownScope is returned by ParseScope for unrecognized names.
var ErrUnknownScope = errors.New("unknown scope")

// Scopes lists every scope in CLI order.
var Scopes = []Scope{ScopeStaged, ScopeLastCommit, ScopeUpstream}

// ParseScope accepts the CLI names and their long aliases.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "staged", "":
		return ScopeStaged, nil
	case "head", "lastcommit", "last-commit":
		return ScopeLastCommit, nil
	case "pr", "upstream", "againstupstream", "against-upstream":
		return ScopeUpstream, nil
	}
	return "", fmt.Errorf("%w: %q (want staged, head or pr)", ErrUnknownScope, s)
}

func (s Scope) String() string {
	return string(s)
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	for _, known := range Scopes {
		if s == known {
			return true
		}
	}
	return false
}
