package graph

import (
	"reflect"
	"testing"
	"time"

	"github.com/tillerhq/tiller/internal/domain"
)

// item builds a minimal work item for graph assembly.
func item(id string, status domain.Status, deps ...string) domain.WorkItem {
	return domain.WorkItem{
		ID:           id,
		ProjectID:    "p1",
		Title:        "item " + id,
		Status:       status,
		Dependencies: deps,
		CreatedAt:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestBuildDropsOrphanedDependencies(t *testing.T) {
	g := Build([]domain.WorkItem{
		item("a", domain.StatusTodo),
		item("b", domain.StatusTodo, "a", "ghost"),
	})

	if g.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", g.Len())
	}
	if !reflect.DeepEqual(g.Reverse["b"], []string{"a"}) {
		t.Fatalf("expected orphan dependency dropped, got %#v", g.Reverse["b"])
	}
	if !reflect.DeepEqual(g.Forward["a"], []string{"b"}) {
		t.Fatalf("unexpected forward edges %#v", g.Forward["a"])
	}
	if _, ok := g.Forward["ghost"]; ok {
		t.Fatal("ghost node must not appear in forward adjacency")
	}
}

func TestWouldCreateCycleSelfDependency(t *testing.T) {
	g := Build([]domain.WorkItem{item("a", domain.StatusTodo)})
	if !WouldCreateCycle(g, "a", "a") {
		t.Fatal("self-dependency must always be a cycle")
	}
}

func TestWouldCreateCycleOnChain(t *testing.T) {
	// c depends on b depends on a.
	g := Build([]domain.WorkItem{
		item("a", domain.StatusTodo),
		item("b", domain.StatusTodo, "a"),
		item("c", domain.StatusTodo, "b"),
	})

	// "a depends on c" closes the loop.
	if !WouldCreateCycle(g, "c", "a") {
		t.Fatal("expected cycle for back edge c -> a")
	}
	// "c depends on a" is a redundant but legal shortcut edge.
	if WouldCreateCycle(g, "a", "c") {
		t.Fatal("shortcut edge a -> c must not report a cycle")
	}
	// Unrelated new node never cycles.
	if WouldCreateCycle(g, "a", "zz") {
		t.Fatal("edge into unknown node must not report a cycle")
	}
}

func TestAnalyzeLinearChain(t *testing.T) {
	// D depends on C depends on B depends on A.
	g := Build([]domain.WorkItem{
		item("a", domain.StatusDone),
		item("b", domain.StatusTodo, "a"),
		item("c", domain.StatusTodo, "b"),
		item("d", domain.StatusTodo, "c"),
	})

	analysis := Analyze(g)
	if !reflect.DeepEqual(analysis.CriticalPath, []string{"a", "b", "c", "d"}) {
		t.Fatalf("unexpected critical path %#v", analysis.CriticalPath)
	}
	if analysis.Levels["d"] != 3 {
		t.Fatalf("expected level[d]=3, got %d", analysis.Levels["d"])
	}
	if len(analysis.TopologicalOrder) != 4 {
		t.Fatalf("expected full topological order, got %#v", analysis.TopologicalOrder)
	}
}

func TestAnalyzeDiamondTieBreak(t *testing.T) {
	// a -> b -> d and a -> c -> d.
	g := Build([]domain.WorkItem{
		item("a", domain.StatusTodo),
		item("b", domain.StatusTodo, "a"),
		item("c", domain.StatusTodo, "a"),
		item("d", domain.StatusTodo, "b", "c"),
	})

	analysis := Analyze(g)
	if len(analysis.CriticalPath) != 3 {
		t.Fatalf("expected 3-node critical path, got %#v", analysis.CriticalPath)
	}
	// Given fixed input ordering, the b branch is relaxed first and must win.
	if !reflect.DeepEqual(analysis.CriticalPath, []string{"a", "b", "d"}) {
		t.Fatalf("tie-break must be deterministic, got %#v", analysis.CriticalPath)
	}
	if !reflect.DeepEqual(analysis.ParallelTracks, [][]string{{"a"}, {"b", "c"}, {"d"}}) {
		t.Fatalf("unexpected parallel tracks %#v", analysis.ParallelTracks)
	}
}

func TestAnalyzeBlockedItems(t *testing.T) {
	g := Build([]domain.WorkItem{
		item("a", domain.StatusDone),
		item("b", domain.StatusProgress, "a"),
		item("c", domain.StatusTodo, "a", "b", "missing"),
	})

	analysis := Analyze(g)
	if len(analysis.BlockedItems) != 1 {
		t.Fatalf("expected exactly one blocked item, got %#v", analysis.BlockedItems)
	}
	blocked := analysis.BlockedItems[0]
	if blocked.ID != "c" {
		t.Fatalf("expected c blocked, got %q", blocked.ID)
	}
	// Done and missing dependencies are both satisfied; only b blocks.
	if !reflect.DeepEqual(blocked.UnmetDependencies, []string{"b"}) {
		t.Fatalf("unexpected unmet dependencies %#v", blocked.UnmetDependencies)
	}
}

func TestAnalyzeCyclicGraphDegradesGracefully(t *testing.T) {
	// Cycle checks run at mutation time, but stored data can still carry a
	// loop (manual edits, imports). Analyze must terminate and answer.
	g := Build([]domain.WorkItem{
		item("a", domain.StatusTodo, "b"),
		item("b", domain.StatusTodo, "a"),
		item("c", domain.StatusTodo, "b"),
	})

	analysis := Analyze(g)
	if len(analysis.TopologicalOrder) != 0 {
		t.Fatalf("cyclic nodes must not be ordered, got %#v", analysis.TopologicalOrder)
	}
	if len(analysis.CriticalPath) != 0 {
		t.Fatalf("expected empty critical path for cyclic graph, got %#v", analysis.CriticalPath)
	}
	// Blocked reporting is independent of the sort: every node waiting on an
	// unfinished dependency still shows up, including the cycle members.
	if len(analysis.BlockedItems) != 3 {
		t.Fatalf("expected all 3 items blocked, got %#v", analysis.BlockedItems)
	}
}

func TestAnalyzeEmptyGraph(t *testing.T) {
	analysis := Analyze(Build(nil))
	if len(analysis.CriticalPath) != 0 || len(analysis.BlockedItems) != 0 || len(analysis.TopologicalOrder) != 0 {
		t.Fatalf("empty scope must yield empty outputs, got %#v", analysis)
	}
}

func TestAnalyzeDisconnectedComponents(t *testing.T) {
	g := Build([]domain.WorkItem{
		item("a", domain.StatusTodo),
		item("b", domain.StatusTodo, "a"),
		item("x", domain.StatusTodo),
		item("y", domain.StatusTodo, "x"),
		item("z", domain.StatusTodo, "y"),
	})

	analysis := Analyze(g)
	if len(analysis.TopologicalOrder) != 5 {
		t.Fatalf("expected all components processed, got %#v", analysis.TopologicalOrder)
	}
	if !reflect.DeepEqual(analysis.CriticalPath, []string{"x", "y", "z"}) {
		t.Fatalf("expected longest chain from second component, got %#v", analysis.CriticalPath)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	items := []domain.WorkItem{
		item("a", domain.StatusTodo),
		item("b", domain.StatusTodo, "a"),
		item("c", domain.StatusTodo, "a"),
		item("d", domain.StatusTodo, "b", "c"),
	}
	first := Analyze(Build(items))
	second := Analyze(Build(items))
	if !reflect.DeepEqual(first.CriticalPath, second.CriticalPath) {
		t.Fatalf("critical path changed between identical builds: %#v vs %#v", first.CriticalPath, second.CriticalPath)
	}
	if !reflect.DeepEqual(first.BlockedItems, second.BlockedItems) {
		t.Fatalf("blocked items changed between identical builds: %#v vs %#v", first.BlockedItems, second.BlockedItems)
	}
}

func TestImpactOfLeafNode(t *testing.T) {
	g := Build([]domain.WorkItem{
		item("a", domain.StatusTodo),
		item("b", domain.StatusTodo, "a"),
	})

	impact := ImpactOf(g, "b")
	if len(impact.Impacted) != 0 || impact.ImpactScore != 0 {
		t.Fatalf("leaf node must have empty impact, got %#v", impact)
	}
	if len(impact.Blockers) != 1 || impact.Blockers[0].ID != "a" {
		t.Fatalf("unexpected blockers %#v", impact.Blockers)
	}
}

func TestImpactOfTransitiveClosure(t *testing.T) {
	// d -> c -> b -> a chain plus a second dependent of b.
	g := Build([]domain.WorkItem{
		item("a", domain.StatusTodo),
		item("b", domain.StatusProgress, "a"),
		item("c", domain.StatusTodo, "b"),
		item("d", domain.StatusTodo, "c"),
		item("e", domain.StatusTodo, "b"),
	})

	impact := ImpactOf(g, "b")
	if impact.ImpactScore != 3 {
		t.Fatalf("expected impact score 3, got %d", impact.ImpactScore)
	}
	gotImpacted := map[string]bool{}
	for _, ref := range impact.Impacted {
		gotImpacted[ref.ID] = true
	}
	if !gotImpacted["c"] || !gotImpacted["d"] || !gotImpacted["e"] {
		t.Fatalf("unexpected impacted set %#v", impact.Impacted)
	}
	if len(impact.Blockers) != 1 || impact.Blockers[0].ID != "a" {
		t.Fatalf("unexpected blockers %#v", impact.Blockers)
	}
}

func TestImpactOfUnknownItem(t *testing.T) {
	g := Build([]domain.WorkItem{item("a", domain.StatusTodo)})
	impact := ImpactOf(g, "nope")
	if impact.ImpactScore != 0 || len(impact.Blockers) != 0 || len(impact.Impacted) != 0 {
		t.Fatalf("unknown item must degrade to empty impact, got %#v", impact)
	}
}
