package http

import (
	"github.com/fyrsmithlabs/guidekeeper/internal/services"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/telemetry"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Repository vcs.Meta               `json:"repository"`
	Coverage   services.Coverage      `json:"coverage"`
	ActiveRun  string                 `json:"active_run,omitempty"`
	LastRun    *store.Run             `json:"last_run,omitempty"`
	Telemetry  telemetry.HealthStatus `json:"telemetry"`
}

// PlanResponse is the response body for GET /api/v1/plan.
type PlanResponse struct {
	Scope          vcs.Scope  `json:"scope"`
	ChangedFiles   []string   `json:"changed_files"`
	AffectedGuides []string   `json:"affected_guides"`
	Layers         [][]string `json:"layers"`
}

// RunRequest is the request body for POST /api/v1/runs. Empty fields fall
// back to the configuration.
type RunRequest struct {
	Scope  string `json:"scope"`
	Model  string `json:"model"`
	Policy string `json:"policy"`
}

// RunStartedResponse is the response body for POST /api/v1/runs.
type RunStartedResponse struct {
	RunID  string `json:"run_id"`
	Events string `json:"events"`
}

// RunsResponse is the response body for GET /api/v1/runs.
type RunsResponse struct {
	Runs []store.Run `json:"runs"`
}

// RunResponse is the response body for GET /api/v1/runs/:id.
type RunResponse struct {
	Run      *store.Run           `json:"run"`
	Outcomes []store.GuideOutcome `json:"outcomes"`
}
