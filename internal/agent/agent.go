// Package agent runs the external update agent that edits guide files.
package agent

import (
	"context"
	"errors"
)

// ErrAgentFailed wraps every failed update.
var ErrAgentFailed = errors.New("agent failed")

// Result describes a completed update call.
type Result struct {
	// Changed reports whether the guide file content differs afterwards.
	Changed bool

	// NoChanges is set when the agent explicitly declined to edit.
	NoChanges bool

	// Output is the tail of the agent's stdout.
	Output string
}

// Updater edits one guide given its context prompt. A non-nil error means
// the update failed; the guide may or may not have been touched.
type Updater interface {
	Update(ctx context.Context, guidePath, prompt string) (*Result, error)
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(ctx context.Context, guidePath, prompt string) (*Result, error)

func (f UpdaterFunc) Update(ctx context.Context, guidePath, prompt string) (*Result, error) {
	return f(ctx, guidePath, prompt)
}

type modelKey struct{}

// WithModel returns a context that asks updaters to use model for calls made
// with it. An empty model leaves ctx unchanged.
func WithModel(ctx context.Context, model string) context.Context {
	if model == "" {
		return ctx
	}
	return context.WithValue(ctx, modelKey{}, model)
}

// ModelFromContext returns the model set with WithModel, if any.
func ModelFromContext(ctx context.Context) (string, bool) {
	m, ok := ctx.Value(modelKey{}).(string)
	return m, ok && m != ""
}

// DryRun never touches files and reports every guide unchanged.
type DryRun struct{}

func (DryRun) Update(context.Context, string, string) (*Result, error) {
	return &Result{NoChanges: true}, nil
}
