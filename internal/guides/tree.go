package guides

import (
	"path"
	"sort"
)

// Forest holds parent and child links among a set of guides.
// The links only consider guides inside the set, so a guide whose nearest
// ancestor guide is outside the set is a root.
type Forest struct {
	// Guides is the sorted input set.
	Guides []string

	// Parents maps each guide to its parent. Roots are absent.
	Parents map[string]string

	// Children maps each parent to its sorted children.
	Children map[string][]string
}

// BuildForest links every guide to the nearest strict ancestor directory that
// holds another guide of the set.
func BuildForest(guides []string) *Forest {
	set := make(map[string]struct{}, len(guides))
	for _, g := range guides {
		set[g] = struct{}{}
	}
	sorted := sortedKeys(set)

	// one guide per directory; the lexicographically first wins on collision
	byDir := make(map[string]string, len(sorted))
	for _, g := range sorted {
		d := Dir(g)
		if _, ok := byDir[d]; !ok {
			byDir[d] = g
		}
	}

	f := &Forest{
		Guides:   sorted,
		Parents:  make(map[string]string),
		Children: make(map[string][]string),
	}

	for _, g := range sorted {
		parent, ok := nearestAncestor(Dir(g), byDir)
		if !ok {
			continue
		}
		f.Parents[g] = parent
		f.Children[parent] = append(f.Children[parent], g)
	}
	// children were appended in sorted order of g

	return f
}

func nearestAncestor(dir string, byDir map[string]string) (string, bool) {
	for dir != "." {
		dir = path.Dir(dir)
		if g, ok := byDir[dir]; ok {
			return g, true
		}
	}
	return "", false
}

// Parent returns the parent of guide, if any.
func (f *Forest) Parent(guide string) (string, bool) {
	p, ok := f.Parents[guide]
	return p, ok
}

// Roots returns the guides with no parent, sorted.
func (f *Forest) Roots() []string {
	var roots []string
	for _, g := range f.Guides {
		if _, ok := f.Parents[g]; !ok {
			roots = append(roots, g)
		}
	}
	return roots
}

// Leaves returns the guides that are nobody's parent, sorted.
func (f *Forest) Leaves() []string {
	var leaves []string
	for _, g := range f.Guides {
		if len(f.Children[g]) == 0 {
			leaves = append(leaves, g)
		}
	}
	return leaves
}

// Descendants returns every guide below guide in the forest, sorted.
func (f *Forest) Descendants(guide string) []string {
	var out []string
	stack := append([]string(nil), f.Children[guide]...)
	for len(stack) > 0 {
		g := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, g)
		stack = append(stack, f.Children[g]...)
	}
	sort.Strings(out)
	return out
}
