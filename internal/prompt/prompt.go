// Package prompt renders the update context for one guide into the text sent
// to the update agent.
package prompt

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/fyrsmithlabs/guidekeeper/internal/secrets"
)

// NoChangesReply is the agent reply that marks a deliberate no-op.
const NoChangesReply = "NO-CHANGES"

const (
	// DefaultMaxDiffChars is the diff size above which trimming applies.
	DefaultMaxDiffChars = 320000

	// DefaultKeepLines is how many lines are kept at each end of a trimmed diff.
	DefaultKeepLines = 1500
)

// ChildUpdate is one entry of the previous layer's summary.
type ChildUpdate struct {
	Path string
	Diff string
}

// Context is everything the agent needs to update one guide.
type Context struct {
	Repo      string
	Branch    string
	SHA       string
	GuidePath string
	Diff      string
	Guide     string
	Children  []ChildUpdate
}

// Builder renders Contexts.
type Builder struct {
	tmpl         *template.Template
	scrubber     secrets.Scrubber
	maxDiffChars int
	keepLines    int
}

// Option configures a Builder.
type Option func(*Builder)

// WithScrubber redacts secrets from diffs before rendering.
func WithScrubber(s secrets.Scrubber) Option {
	return func(b *Builder) {
		if s != nil {
			b.scrubber = s
		}
	}
}

// WithMaxDiffChars sets the trim threshold. Non-positive keeps the default.
func WithMaxDiffChars(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxDiffChars = n
		}
	}
}

// WithKeepLines sets how many lines survive at each end of a trimmed diff.
func WithKeepLines(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.keepLines = n
		}
	}
}

// NewBuilder parses the prompt template.
func NewBuilder(opts ...Option) (*Builder, error) {
	tmpl, err := template.New("update").Funcs(sprig.TxtFuncMap()).Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	b := &Builder{
		tmpl:         tmpl,
		scrubber:     secrets.Noop{},
		maxDiffChars: DefaultMaxDiffChars,
		keepLines:    DefaultKeepLines,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build renders the prompt for c.
func (b *Builder) Build(c Context) (string, error) {
	children := make([]ChildUpdate, 0, len(c.Children))
	for _, ch := range c.Children {
		if strings.TrimSpace(ch.Diff) == "" {
			continue
		}
		children = append(children, ChildUpdate{Path: ch.Path, Diff: b.scrub(ch.Diff)})
	}

	data := struct {
		Context
		Dir string
	}{Context: c, Dir: path.Dir(c.GuidePath)}
	data.Diff = b.scrub(Trim(c.Diff, b.maxDiffChars, b.keepLines))
	data.Children = children

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", c.GuidePath, err)
	}
	return buf.String(), nil
}

func (b *Builder) scrub(s string) string {
	if s == "" {
		return s
	}
	return b.scrubber.Scrub(s).Scrubbed
}

// Trim keeps the first and last keep lines of a diff longer than maxChars,
// replacing the middle with a marker. Shorter diffs are returned unchanged.
func Trim(diff string, maxChars, keep int) string {
	if maxChars <= 0 || len(diff) <= maxChars {
		return diff
	}
	lines := strings.Split(diff, "\n")
	if len(lines) <= 2*keep {
		return diff
	}
	trimmed := len(lines) - 2*keep
	out := make([]string, 0, 2*keep+1)
	out = append(out, lines[:keep]...)
	out = append(out, fmt.Sprintf("... [%d lines trimmed] ...", trimmed))
	out = append(out, lines[len(lines)-keep:]...)
	return strings.Join(out, "\n")
}
