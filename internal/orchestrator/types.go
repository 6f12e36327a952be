package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/guidekeeper/internal/config"
	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

// ErrFatalVCS marks a run aborted because changed files could not be listed.
var ErrFatalVCS = errors.New("version control unavailable")

// ChangeSet is the immutable input of one run.
type ChangeSet struct {
	Scope          vcs.Scope `json:"scope"`
	ChangedFiles   []string  `json:"changed_files"`
	AffectedGuides []string  `json:"affected_guides"`

	files map[string]struct{}
}

// NewChangeSet builds a ChangeSet. changed should already be filtered.
func NewChangeSet(scope vcs.Scope, changed, affected []string) *ChangeSet {
	cs := &ChangeSet{
		Scope:          scope,
		ChangedFiles:   append([]string(nil), changed...),
		AffectedGuides: append([]string(nil), affected...),
		files:          make(map[string]struct{}, len(changed)),
	}
	for _, f := range changed {
		cs.files[f] = struct{}{}
	}
	return cs
}

// Contains reports whether file is one of the changed files.
func (c *ChangeSet) Contains(file string) bool {
	_, ok := c.files[file]
	return ok
}

// Plan is a scheduled run.
type Plan struct {
	ChangeSet *ChangeSet     `json:"change_set"`
	Forest    *guides.Forest `json:"-"`
	Layers    [][]string     `json:"layers"`
}

// Empty reports whether there is nothing to update.
func (p *Plan) Empty() bool {
	return len(p.Layers) == 0
}

// GuideCount is the number of scheduled guides.
func (p *Plan) GuideCount() int {
	n := 0
	for _, l := range p.Layers {
		n += len(l)
	}
	return n
}

// Policy decides the final status of a run from its counts.
type Policy string

const (
	// PolicyNoSuccess fails a run only when guides failed and none succeeded.
	PolicyNoSuccess Policy = config.PolicyNoSuccess

	// PolicyAnyFailure fails a run when any guide failed.
	PolicyAnyFailure Policy = config.PolicyAnyFailure
)

// ParsePolicy validates a policy name. Empty selects PolicyNoSuccess.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return PolicyNoSuccess, nil
	case PolicyNoSuccess, PolicyAnyFailure:
		return Policy(s), nil
	}
	return "", fmt.Errorf("%w: %q", config.ErrInvalidPolicy, s)
}

// Decide returns the run status for c.
func (p Policy) Decide(c store.Counts) store.RunStatus {
	if c.Failed == 0 {
		return store.RunSuccess
	}
	if p == PolicyAnyFailure || c.Succeeded() == 0 {
		return store.RunFailed
	}
	return store.RunSuccess
}

// RunOptions parameterize one execution.
type RunOptions struct {
	Scope  vcs.Scope
	Model  string
	Policy Policy
	Meta   map[string]string

	// Sinks receive this run's events in addition to the orchestrator's.
	Sinks []Sink
}

// LayerReport is what happened in one layer.
type LayerReport struct {
	Index     int                  `json:"index"`
	Guides    []string             `json:"guides"`
	Outcomes  []store.GuideOutcome `json:"outcomes"`
	Skipped   bool                 `json:"skipped,omitempty"`
	DiffError string               `json:"diff_error,omitempty"`
	Counts    store.Counts         `json:"counts"`
	Duration  time.Duration        `json:"duration"`
}

// Report summarizes a finished run.
type Report struct {
	RunID      string          `json:"run_id"`
	Scope      vcs.Scope       `json:"scope"`
	Status     store.RunStatus `json:"status"`
	Counts     store.Counts    `json:"counts"`
	Layers     []LayerReport   `json:"layers"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Error      string          `json:"error,omitempty"`
}

// Partial reports whether the run stopped before its last layer.
func (r *Report) Partial() bool {
	return r.Counts.LayersCompleted < r.Counts.TotalLayers
}
