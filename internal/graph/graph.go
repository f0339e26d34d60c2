// Package graph builds ephemeral dependency graphs over work items and
// runs the pure analyses the engine exposes: cycle checks, critical-path
// layering, and impact traversal. Graphs are rebuilt per query and never
// cached; work items mutate too frequently for a shared graph to stay valid.
package graph

import (
	"github.com/tillerhq/tiller/internal/domain"
)

// Graph holds an id-indexed node table plus forward and reverse adjacency.
// Forward edges run dependency -> dependent; Reverse lists an item's own
// declared dependencies restricted to in-scope nodes.
type Graph struct {
	Nodes   map[string]domain.WorkItem
	Forward map[string][]string
	Reverse map[string][]string

	// order preserves input ordering so traversals stay deterministic.
	order []string
}

// Build constructs a graph from the work items in scope. Dependency ids
// that reference items outside the scope are dropped: items can be deleted
// independently of their dependents, so dangling references are tolerated
// rather than reported.
func Build(items []domain.WorkItem) *Graph {
	g := &Graph{
		Nodes:   make(map[string]domain.WorkItem, len(items)),
		Forward: make(map[string][]string, len(items)),
		Reverse: make(map[string][]string, len(items)),
		order:   make([]string, 0, len(items)),
	}
	for _, item := range items {
		if _, ok := g.Nodes[item.ID]; ok {
			continue
		}
		g.Nodes[item.ID] = item
		g.order = append(g.order, item.ID)
	}
	for _, id := range g.order {
		for _, depID := range g.Nodes[id].Dependencies {
			if _, ok := g.Nodes[depID]; !ok {
				continue
			}
			g.Forward[depID] = append(g.Forward[depID], id)
			g.Reverse[id] = append(g.Reverse[id], depID)
		}
	}
	return g
}

// Len returns the number of in-scope nodes.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// IDs returns node ids in input order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
