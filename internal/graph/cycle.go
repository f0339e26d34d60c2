package graph

// WouldCreateCycle reports whether adding the edge fromID -> toID (toID
// depends on fromID) would close a cycle. That happens when fromID already
// reaches toID through the dependency relation, i.e. a forward path
// toID -> ... -> fromID exists, or when the edge is a self-dependency.
//
// The walk is an iterative DFS bounded by a visited set, so it runs in
// O(V+E) of toID's connected component. Callers must run this check
// synchronously with the dependency mutation; the read-side analyzers
// assume acyclic input and would not terminate correctly otherwise.
func WouldCreateCycle(g *Graph, fromID, toID string) bool {
	if fromID == toID {
		return true
	}
	if g == nil {
		return false
	}

	visited := make(map[string]struct{}, len(g.Nodes))
	stack := []string{toID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == fromID {
			return true
		}
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}
		stack = append(stack, g.Forward[current]...)
	}
	return false
}
