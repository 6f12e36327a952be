package orchestrator

import (
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/prompt"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
)

// guideDiff renders the change to a guide as a unified diff.
func guideDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return out
}

// childUpdates selects the summary entries nested under the guide's
// directory, sorted by path.
func childUpdates(prev store.LayerSummary, guidePath string) []prompt.ChildUpdate {
	if len(prev) == 0 {
		return nil
	}
	dir := guides.Dir(guidePath)
	var out []prompt.ChildUpdate
	for path, diff := range prev {
		if path == guidePath || diff == "" || !guides.Covers(dir, path) {
			continue
		}
		out = append(out, prompt.ChildUpdate{Path: path, Diff: diff})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
