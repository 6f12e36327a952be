// Package store persists runs, per-guide outcomes, layer summaries and the
// guide registry.
//
// The orchestrator only writes through RunStateStore and never reads back
// mid-run. The read side serves the CLI, HTTP API and MCP tools.
package store

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// OutcomeStatus is the result of updating one guide.
type OutcomeStatus string

const (
	OutcomeUpdated   OutcomeStatus = "updated"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeFailed    OutcomeStatus = "failed"
)

// NewRun describes a run being created.
type NewRun struct {
	Scope       string
	Model       string
	TotalLayers int
	StartedAt   time.Time
	Meta        map[string]string
}

// Run is a persisted run record.
type Run struct {
	ID              string            `json:"id"`
	Scope           string            `json:"scope"`
	Model           string            `json:"model,omitempty"`
	Status          RunStatus         `json:"status"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
	TotalLayers     int               `json:"total_layers"`
	LayersCompleted int               `json:"layers_completed"`
	GuidesUpdated   int               `json:"guides_updated"`
	GuidesUnchanged int               `json:"guides_unchanged"`
	GuidesFailed    int               `json:"guides_failed"`
	DurationMS      int64             `json:"duration_ms"`
	Meta            map[string]string `json:"meta,omitempty"`
}

// Partial reports whether the run stopped before its last layer.
func (r *Run) Partial() bool {
	return r.Status != RunRunning && r.LayersCompleted < r.TotalLayers
}

// Counts are the aggregate figures written when a run is finalized.
type Counts struct {
	TotalLayers     int `json:"total_layers"`
	LayersCompleted int `json:"layers_completed"`
	Updated         int `json:"updated"`
	Unchanged       int `json:"unchanged"`
	Failed          int `json:"failed"`
}

// Succeeded is the number of guides that did not fail.
func (c Counts) Succeeded() int {
	return c.Updated + c.Unchanged
}

// Add tallies one outcome.
func (c *Counts) Add(status OutcomeStatus) {
	switch status {
	case OutcomeUpdated:
		c.Updated++
	case OutcomeUnchanged:
		c.Unchanged++
	case OutcomeFailed:
		c.Failed++
	}
}

// GuideOutcome is the immutable record of one guide in one run.
type GuideOutcome struct {
	RunID       string        `json:"run_id"`
	GuidePath   string        `json:"guide_path"`
	LayerIndex  int           `json:"layer_index"`
	Status      OutcomeStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	DiffSummary string        `json:"diff_summary,omitempty"`
	Duration    time.Duration `json:"duration"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// LayerSummary maps each guide changed in a layer to its diff.
type LayerSummary map[string]string

// Guide is a row of the guide registry.
type Guide struct {
	Path       string    `json:"path"`
	ParentPath string    `json:"parent_path,omitempty"`
	Status     string    `json:"status"`
	LastHash   string    `json:"last_hash,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
