package graph

// ItemRef is a compact work-item reference carried in impact results.
type ItemRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Impact describes everything upstream and downstream of a single item.
// ImpactScore is the plain cardinality of the downstream set; it is a
// prioritization hint, not a weighted metric.
type Impact struct {
	Blockers    []ItemRef `json:"blockers"`
	Impacted    []ItemRef `json:"impacted"`
	ImpactScore int       `json:"impact_score"`
}

// ImpactOf computes the transitive blocker set (reverse edges, DFS) and
// the transitive dependent set (forward edges, BFS) of one item. Both
// walks carry a visited set; no depth limit is needed because mutation
// paths keep the graph acyclic. An unknown id degrades to an empty
// impact with score zero.
func ImpactOf(g *Graph, itemID string) Impact {
	impact := Impact{
		Blockers: []ItemRef{},
		Impacted: []ItemRef{},
	}
	if g == nil {
		return impact
	}
	if _, ok := g.Nodes[itemID]; !ok {
		return impact
	}

	visited := map[string]struct{}{itemID: {}}
	var upstream func(id string)
	upstream = func(id string) {
		for _, depID := range g.Reverse[id] {
			if _, seen := visited[depID]; seen {
				continue
			}
			visited[depID] = struct{}{}
			impact.Blockers = append(impact.Blockers, refOf(g, depID))
			upstream(depID)
		}
	}
	upstream(itemID)

	seen := map[string]struct{}{itemID: {}}
	queue := append([]string(nil), g.Forward[itemID]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, ok := seen[current]; ok {
			continue
		}
		seen[current] = struct{}{}
		impact.Impacted = append(impact.Impacted, refOf(g, current))
		queue = append(queue, g.Forward[current]...)
	}

	impact.ImpactScore = len(impact.Impacted)
	return impact
}

// refOf builds an ItemRef from an in-scope node.
func refOf(g *Graph, id string) ItemRef {
	node := g.Nodes[id]
	return ItemRef{
		ID:     node.ID,
		Title:  node.Title,
		Status: string(node.Status),
	}
}
