package orchestrator

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/ignore"
	"github.com/fyrsmithlabs/guidekeeper/internal/vcs"
)

// Planner maps a scope's changes onto scheduled guide layers.
type Planner struct {
	vcs     vcs.VCS
	mapper  *guides.Mapper
	matcher *ignore.Matcher
}

// NewPlanner creates a Planner. matcher may be nil to keep every file.
func NewPlanner(v vcs.VCS, mapper *guides.Mapper, matcher *ignore.Matcher) *Planner {
	return &Planner{vcs: v, mapper: mapper, matcher: matcher}
}

// VCS returns the collaborator the planner lists changes with.
func (p *Planner) VCS() vcs.VCS {
	return p.vcs
}

// Plan lists the scope's changed files and schedules the affected guides.
// Failure to list files is fatal and wraps ErrFatalVCS.
func (p *Planner) Plan(ctx context.Context, scope vcs.Scope) (*Plan, error) {
	files, err := p.vcs.ChangedFiles(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalVCS, err)
	}
	return p.PlanFiles(scope, files), nil
}

// PlanFiles schedules the guides covering files.
func (p *Planner) PlanFiles(scope vcs.Scope, files []string) *Plan {
	kept := files
	if p.matcher != nil {
		kept = p.matcher.Filter(files)
	}
	affected := p.mapper.Map(kept)
	forest := guides.BuildForest(affected)
	return &Plan{
		ChangeSet: NewChangeSet(scope, kept, affected),
		Forest:    forest,
		Layers:    guides.BuildLayers(forest),
	}
}
