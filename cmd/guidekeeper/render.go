package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/orchestrator"
	"github.com/fyrsmithlabs/guidekeeper/internal/services"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	layerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			MarginTop(1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	updatedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	unchangedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	draftStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))
)

func outcomeLabel(s store.OutcomeStatus) string {
	switch s {
	case store.OutcomeUpdated:
		return updatedStyle.Render("updated  ")
	case store.OutcomeFailed:
		return failedStyle.Render("failed   ")
	}
	return unchangedStyle.Render("unchanged")
}

func statusLabel(s store.RunStatus) string {
	switch s {
	case store.RunSuccess:
		return updatedStyle.Render(string(s))
	case store.RunFailed:
		return failedStyle.Render(string(s))
	}
	return draftStyle.Render(string(s))
}

// renderPlan writes the layers a plan would run.
func renderPlan(w io.Writer, plan *orchestrator.Plan) {
	cs := plan.ChangeSet
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Plan for %s changes", cs.Scope)))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d changed files, %d guides affected", len(cs.ChangedFiles), len(cs.AffectedGuides))))
	if plan.Empty() {
		fmt.Fprintln(w, "Nothing to update.")
		return
	}
	for k, layer := range plan.Layers {
		fmt.Fprintln(w, layerStyle.Render(fmt.Sprintf("Layer %d", k)))
		for _, g := range layer {
			fmt.Fprintf(w, "  %s\n", g)
		}
	}
}

// renderReport writes the per-layer result of a run.
func renderReport(w io.Writer, r *orchestrator.Report) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Run "+r.RunID), statusLabel(r.Status))
	for _, l := range r.Layers {
		title := fmt.Sprintf("Layer %d", l.Index)
		switch {
		case l.Skipped:
			title += " (skipped)"
		case l.DiffError != "":
			title += " (diff unavailable)"
		}
		fmt.Fprintln(w, layerStyle.Render(title))
		for _, o := range l.Outcomes {
			line := fmt.Sprintf("  %s %s %s", outcomeLabel(o.Status), o.GuidePath, dimStyle.Render(o.Duration.Round(time.Millisecond).String()))
			if o.Error != "" {
				line += "\n      " + failedStyle.Render(firstLine(o.Error))
			}
			fmt.Fprintln(w, line)
		}
	}

	c := r.Counts
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d updated, %d unchanged, %d failed; %d/%d layers in %s\n",
		c.Updated, c.Unchanged, c.Failed, c.LayersCompleted, c.TotalLayers,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintln(w, failedStyle.Render(r.Error))
	}
}

// renderTree writes the repository forest with coverage.
func renderTree(w io.Writer, inv *services.Inventory) {
	cov := inv.Coverage
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d guides (%d active, %d draft)", cov.Total, cov.Active, cov.Draft)))

	var walk func(path string)
	walk = func(path string) {
		n, ok := inv.Node(path)
		if !ok {
			return
		}
		line := strings.Repeat("  ", n.Depth) + n.Path
		if n.Status == guides.StatusDraft {
			line += " " + draftStyle.Render("draft")
		}
		if n.UpdatedAt != nil {
			line += " " + dimStyle.Render("updated "+n.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(w, line)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range inv.Roots {
		walk(r)
	}
}

// renderRuns writes one line per run.
func renderRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %s  %-6s  %s  %d updated, %d unchanged, %d failed",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Scope, statusLabel(r.Status),
			r.GuidesUpdated, r.GuidesUnchanged, r.GuidesFailed)
		if r.Partial() {
			line += " " + dimStyle.Render(fmt.Sprintf("(stopped after %d/%d layers)", r.LayersCompleted, r.TotalLayers))
		}
		fmt.Fprintln(w, line)
	}
}

// renderRun writes a stored run and its outcomes grouped by layer.
func renderRun(w io.Writer, r *store.Run, outcomes []store.GuideOutcome) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Run "+r.ID), statusLabel(r.Status))
	fmt.Fprintf(w, "scope %s, model %s, started %s\n", r.Scope, r.Model, r.StartedAt.Local().Format(time.RFC3339))
	if trigger := r.Meta["trigger"]; trigger != "" {
		fmt.Fprintln(w, dimStyle.Render("triggered by "+trigger))
	}

	layer := -1
	for _, o := range outcomes {
		if o.LayerIndex != layer {
			layer = o.LayerIndex
			fmt.Fprintln(w, layerStyle.Render(fmt.Sprintf("Layer %d", layer)))
		}
		fmt.Fprintf(w, "  %s %s\n", outcomeLabel(o.Status), o.GuidePath)
		if o.Error != "" {
			fmt.Fprintln(w, "      "+failedStyle.Render(firstLine(o.Error)))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d updated, %d unchanged, %d failed; %d/%d layers in %s\n",
		r.GuidesUpdated, r.GuidesUnchanged, r.GuidesFailed, r.LayersCompleted, r.TotalLayers,
		(time.Duration(r.DurationMS) * time.Millisecond).String())
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
