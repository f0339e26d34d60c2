package graph

// BlockedItem reports one item with unfinished direct dependencies.
type BlockedItem struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	UnmetDependencies []string `json:"unmet_dependencies"`
}

// Analysis is the result of one topological pass over a dependency graph.
type Analysis struct {
	CriticalPath     []string       `json:"critical_path"`
	Levels           map[string]int `json:"levels"`
	TopologicalOrder []string       `json:"topological_order"`
	ParallelTracks   [][]string     `json:"parallel_tracks"`
	BlockedItems     []BlockedItem  `json:"blocked_items"`
}

// Analyze runs Kahn's topological sort augmented with longest-path
// distances. The critical path is the predecessor chain ending at the
// first node (in processing order) that carries the maximum distance;
// that tie-break is part of the contract and keeps results deterministic
// for equal-length branches. Levels mirror distances and exist for
// topological layout, not correctness. An empty graph yields empty
// outputs rather than an error.
func Analyze(g *Graph) Analysis {
	analysis := Analysis{
		CriticalPath:     []string{},
		Levels:           map[string]int{},
		TopologicalOrder: []string{},
		ParallelTracks:   [][]string{},
		BlockedItems:     []BlockedItem{},
	}
	if g == nil || g.Len() == 0 {
		return analysis
	}

	inDegree := make(map[string]int, g.Len())
	distance := make(map[string]int, g.Len())
	predecessor := make(map[string]string, g.Len())
	for _, id := range g.order {
		inDegree[id] = len(g.Reverse[id])
		distance[id] = 0
	}

	queue := make([]string, 0, g.Len())
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	processed := make([]string, 0, g.Len())
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed = append(processed, current)

		for _, neighbor := range g.Forward[current] {
			if distance[current]+1 > distance[neighbor] {
				distance[neighbor] = distance[current] + 1
				predecessor[neighbor] = current
			}
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}
	analysis.TopologicalOrder = processed

	maxDistance := 0
	for _, id := range processed {
		if distance[id] > maxDistance {
			maxDistance = distance[id]
		}
	}
	endID := ""
	for _, id := range processed {
		if distance[id] == maxDistance {
			endID = id
			break
		}
	}
	if endID != "" {
		path := []string{}
		for id := endID; ; {
			path = append(path, id)
			prev, ok := predecessor[id]
			if !ok {
				break
			}
			id = prev
		}
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		analysis.CriticalPath = path
	}

	for _, id := range processed {
		analysis.Levels[id] = distance[id]
	}

	tracks := make([][]string, maxDistance+1)
	for _, id := range processed {
		level := distance[id]
		tracks[level] = append(tracks[level], id)
	}
	analysis.ParallelTracks = tracks

	for _, id := range g.order {
		unmet := []string{}
		for _, depID := range g.Reverse[id] {
			if dep, ok := g.Nodes[depID]; ok && !dep.IsDone() {
				unmet = append(unmet, depID)
			}
		}
		if len(unmet) > 0 {
			analysis.BlockedItems = append(analysis.BlockedItems, BlockedItem{
				ID:                id,
				Title:             g.Nodes[id].Title,
				UnmetDependencies: unmet,
			})
		}
	}

	return analysis
}
