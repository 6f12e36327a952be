package services

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/guidekeeper/internal/guides"
	"github.com/fyrsmithlabs/guidekeeper/internal/store"
)

// Coverage counts discovered guides by status.
type Coverage struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Draft  int `json:"draft"`
}

// Node is one guide of the repository forest.
type Node struct {
	Path      string        `json:"path"`
	Parent    string        `json:"parent,omitempty"`
	Children  []string      `json:"children,omitempty"`
	Depth     int           `json:"depth"`
	Status    guides.Status `json:"status"`
	LastHash  string        `json:"last_hash,omitempty"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

// Inventory is every guide in the repository linked into a forest.
type Inventory struct {
	Roots    []string `json:"roots"`
	Guides   []Node   `json:"guides"`
	Coverage Coverage `json:"coverage"`
}

// Node returns the node for path.
func (inv *Inventory) Node(path string) (Node, bool) {
	for _, n := range inv.Guides {
		if n.Path == path {
			return n, true
		}
	}
	return Node{}, false
}

// BuildInventory discovers guides under reader and joins them with the
// registry rows written by past runs. registry may be nil.
func BuildInventory(ctx context.Context, reader *guides.FSReader, filenames []string, registry store.GuideRegistry) (*Inventory, error) {
	paths, err := guides.Discover(reader.FS(), filenames, nil)
	if err != nil {
		return nil, fmt.Errorf("discover guides: %w", err)
	}

	known := map[string]store.Guide{}
	if registry != nil {
		rows, err := registry.ListGuides(ctx)
		if err != nil {
			return nil, fmt.Errorf("list guides: %w", err)
		}
		for _, g := range rows {
			known[g.Path] = g
		}
	}

	forest := guides.BuildForest(paths)
	inv := &Inventory{Roots: forest.Roots(), Guides: make([]Node, 0, len(paths))}
	for _, p := range forest.Guides {
		text, err := reader.Read(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		n := Node{
			Path:     p,
			Parent:   forest.Parents[p],
			Children: forest.Children[p],
			Depth:    depth(forest, p),
			Status:   guides.Classify(text),
		}
		if g, ok := known[p]; ok {
			n.LastHash = g.LastHash
			updated := g.UpdatedAt
			n.UpdatedAt = &updated
		}
		inv.Guides = append(inv.Guides, n)

		inv.Coverage.Total++
		if n.Status == guides.StatusDraft {
			inv.Coverage.Draft++
		} else {
			inv.Coverage.Active++
		}
	}
	return inv, nil
}

func depth(f *guides.Forest, g string) int {
	d := 0
	for {
		p, ok := f.Parent(g)
		if !ok {
			return d
		}
		d++
		g = p
	}
}
