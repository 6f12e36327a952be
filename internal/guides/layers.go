package guides

import "sort"

// BuildLayers partitions the forest into bottom-up layers.
//
// Layer 0 is the set of leaves. Each following layer holds the parents of the
// previous layer whose children have all been placed, so a parent shared by
// branches of different depth lands after the deepest one. Guides are sorted
// lexicographically inside a layer. An empty forest yields no layers.
func BuildLayers(f *Forest) [][]string {
	if f == nil || len(f.Guides) == 0 {
		return nil
	}

	leaves := f.Leaves()
	layers := [][]string{leaves}

	visited := make(map[string]struct{}, len(f.Guides))
	for _, g := range leaves {
		visited[g] = struct{}{}
	}
	frontier := leaves

	for {
		next := make(map[string]struct{})
		for _, g := range frontier {
			p, ok := f.Parents[g]
			if !ok {
				continue
			}
			if _, done := visited[p]; done {
				continue
			}
			if !allVisited(f.Children[p], visited) {
				// a deeper child will bring p in later
				continue
			}
			next[p] = struct{}{}
		}
		if len(next) == 0 {
			break
		}

		layer := make([]string, 0, len(next))
		for p := range next {
			layer = append(layer, p)
		}
		sort.Strings(layer)

		for _, p := range layer {
			visited[p] = struct{}{}
		}
		layers = append(layers, layer)
		frontier = layer
	}

	return layers
}

func allVisited(guides []string, visited map[string]struct{}) bool {
	for _, g := range guides {
		if _, ok := visited[g]; !ok {
			return false
		}
	}
	return true
}

// LayerIndex returns a lookup from guide path to its layer index.
func LayerIndex(layers [][]string) map[string]int {
	idx := make(map[string]int)
	for k, layer := range layers {
		for _, g := range layer {
			idx[g] = k
		}
	}
	return idx
}
