package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

const (
	defaultRunsLimit = 10
	maxRunsLimit     = 100
)

func (s *Server) registerTools() {
	s.registerPlanTool()
	s.registerUpdateTool()
	s.registerRunsTool()
}

// ===== PLAN =====

type planInput struct {
	Scope string `json:"scope,omitempty" jsonschema:"Change scope: staged (default), head or pr"`
}

type planOutput struct {
	Scope          string     `json:"scope"`
	ChangedFiles   []string   `json:"changed_files"`
	AffectedGuides []string   `json:"affected_guides"`
	Layers         [][]string `json:"layers"`
}

func (s *Server) registerPlanTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "guides_plan",
		Description: "Preview which directory guides a change scope would update, grouped into layers that run leaves first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args planInput) (*mcp.CallToolResult, planOutput, error) {
		var out planOutput
		err := s.instrument(ctx, "guides_plan", func() error {
			scope, err := vcs.ParseScope(args.Scope)
			if err != nil {
				return err
			}
			plan, err := s.services.Orchestrator().Planner().Plan(ctx, scope)
			if err != nil {
				return err
			}
			out = planOutput{
				Scope:          string(scope),
				ChangedFiles:   nonNil(plan.ChangeSet.ChangedFiles),
				AffectedGuides: nonNil(plan.ChangeSet.AffectedGuides),
				Layers:         plan.Layers,
			}
			if out.Layers == nil {
				out.Layers = [][]string{}
			}
			return nil
		})
		if err != nil {
			return nil, planOutput{}, err
		}
		return textResult(describePlan(out)), out, nil
	})
}

func describePlan(p planOutput) string {
	if len(p.Layers) == 0 {
		return fmt.Sprintf("No guides affected by %s changes.", p.Scope)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d guides in %d layers for %s changes:\n", len(p.AffectedGuides), len(p.Layers), p.Scope)
	for k, layer := range p.Layers {
		fmt.Fprintf(&b, "  layer %d: %s\n", k, strings.Join(layer, ", "))
	}
	return b.String()
}

// ===== UPDATE =====

type updateInput struct {
	Scope  string `json:"scope,omitempty" jsonschema:"Change scope: staged (default), head or pr"`
	Model  string `json:"model,omitempty" jsonschema:"Model passed to the update agent (defaults to the configured model)"`
	Policy string `json:"policy,omitempty" jsonschema:"Final status policy: no-success or any-failure"`
}

type outcomeOutput struct {
	Guide       string `json:"guide"`
	Layer       int    `json:"layer"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	DiffSummary string `json:"diff_summary,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

type updateOutput struct {
	RunID           string          `json:"run_id"`
	Status          string          `json:"status"`
	TotalLayers     int             `json:"total_layers"`
	LayersCompleted int             `json:"layers_completed"`
	Updated         int             `json:"updated"`
	Unchanged       int             `json:"unchanged"`
	Failed          int             `json:"failed"`
	Error           string          `json:"error,omitempty"`
	Outcomes        []outcomeOutput `json:"outcomes"`
}

func (s *Server) registerUpdateTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "guides_update",
		Description: "Update the directory guides affected by a change scope and wait for the run report. Fails if another run is in progress.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args updateInput) (*mcp.CallToolResult, updateOutput, error) {
		var out updateOutput
		err := s.instrument(ctx, "guides_update", func() error {
			scope, err := vcs.ParseScope(args.Scope)
			if err != nil {
				return err
			}
			opts := orchestrator.RunOptions{
				Scope: scope,
				Model: args.Model,
				Meta:  map[string]string{"trigger": "mcp"},
			}
			if opts.Model == "" {
				opts.Model = s.services.Config().Agent.Model
			}
			if args.Policy != "" {
				if opts.Policy, err = orchestrator.ParsePolicy(args.Policy); err != nil {
					return err
				}
			}

			report, err := s.services.Runner().Run(ctx, opts)
			if report == nil {
				return err
			}
			out = s.reportOutput(report)
			if err != nil && out.Error == "" {
				out.Error = err.Error()
			}
			return nil
		})
		if err != nil {
			return nil, updateOutput{}, err
		}
		return textResult(describeUpdate(out)), out, nil
	})
}

func (s *Server) reportOutput(r *orchestrator.Report) updateOutput {
	out := updateOutput{
		RunID:           r.RunID,
		Status:          string(r.Status),
		TotalLayers:     r.Counts.TotalLayers,
		LayersCompleted: r.Counts.LayersCompleted,
		Updated:         r.Counts.Updated,
		Unchanged:       r.Counts.Unchanged,
		Failed:          r.Counts.Failed,
		Error:           s.scrub(r.Error),
		Outcomes:        []outcomeOutput{},
	}
	for _, l := range r.Layers {
		for _, o := range l.Outcomes {
			out.Outcomes = append(out.Outcomes, s.outcome(o))
		}
	}
	return out
}

func describeUpdate(u updateOutput) string {
	msg := fmt.Sprintf("Run %s %s: %d updated, %d unchanged, %d failed (%d/%d layers).",
		u.RunID, u.Status, u.Updated, u.Unchanged, u.Failed, u.LayersCompleted, u.TotalLayers)
	if u.Error != "" {
		msg += " " + u.Error
	}
	return msg
}

// ===== RUNS =====

type runsInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"Show one run with its guide outcomes; omit to list recent runs"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum runs to list (default 10)"`
}

type runOutput struct {
	ID              string `json:"id"`
	Scope           string `json:"scope"`
	Model           string `json:"model,omitempty"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at"`
	FinishedAt      string `json:"finished_at,omitempty"`
	TotalLayers     int    `json:"total_layers"`
	LayersCompleted int    `json:"layers_completed"`
	Updated         int    `json:"updated"`
	Unchanged       int    `json:"unchanged"`
	Failed          int    `json:"failed"`
	DurationMS      int64  `json:"duration_ms"`
}

type runsOutput struct {
	Runs     []runOutput     `json:"runs"`
	Outcomes []outcomeOutput `json:"outcomes,omitempty"`
}

func (s *Server) registerRunsTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "guides_runs",
		Description: "List recent guide update runs, or show one run with its per-guide outcomes",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args runsInput) (*mcp.CallToolResult, runsOutput, error) {
		var out runsOutput
		err := s.instrument(ctx, "guides_runs", func() error {
			st := s.services.Store()
			if args.RunID != "" {
				run, err := st.GetRun(ctx, args.RunID)
				if err != nil {
					return err
				}
				outcomes, err := st.ListOutcomes(ctx, args.RunID)
				if err != nil {
					return err
				}
				out.Runs = []runOutput{toRunOutput(*run)}
				out.Outcomes = make([]outcomeOutput, 0, len(outcomes))
				for _, o := range outcomes {
					out.Outcomes = append(out.Outcomes, s.outcome(o))
				}
				return nil
			}

			limit := args.Limit
			if limit <= 0 {
				limit = defaultRunsLimit
			}
			runs, err := st.ListRuns(ctx, min(limit, maxRunsLimit))
			if err != nil {
				return err
			}
			out.Runs = make([]runOutput, 0, len(runs))
			for _, r := range runs {
				out.Runs = append(out.Runs, toRunOutput(r))
			}
			return nil
		})
		if err != nil {
			return nil, runsOutput{}, err
		}
		return textResult(describeRuns(out)), out, nil
	})
}

func toRunOutput(r store.Run) runOutput {
	out := runOutput{
		ID:              r.ID,
		Scope:           r.Scope,
		Model:           r.Model,
		Status:          string(r.Status),
		StartedAt:       r.StartedAt.UTC().Format(time.RFC3339),
		TotalLayers:     r.TotalLayers,
		LayersCompleted: r.LayersCompleted,
		Updated:         r.GuidesUpdated,
		Unchanged:       r.GuidesUnchanged,
		Failed:          r.GuidesFailed,
		DurationMS:      r.DurationMS,
	}
	if r.FinishedAt != nil {
		out.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func describeRuns(r runsOutput) string {
	if len(r.Runs) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	for _, run := range r.Runs {
		fmt.Fprintf(&b, "%s  %-7s  %-6s  %d updated, %d unchanged, %d failed\n",
			run.ID, run.Status, run.Scope, run.Updated, run.Unchanged, run.Failed)
	}
	for _, o := range r.Outcomes {
		fmt.Fprintf(&b, "  [%d] %s: %s\n", o.Layer, o.Guide, o.Status)
	}
	return b.String()
}

// ===== HELPERS =====

func (s *Server) outcome(o store.GuideOutcome) outcomeOutput {
	return outcomeOutput{
		Guide:       o.GuidePath,
		Layer:       o.LayerIndex,
		Status:      string(o.Status),
		Error:       s.scrub(o.Error),
		DiffSummary: s.scrub(o.DiffSummary),
		DurationMS:  o.Duration.Milliseconds(),
	}
}

func (s *Server) scrub(text string) string {
	if text == "" {
		return ""
	}
	return s.scrubber.Scrub(text).Scrubbed
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
