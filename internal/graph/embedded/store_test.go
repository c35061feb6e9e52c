package embedded

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/imyousuf/depgraph/internal/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fileNode(path string) *graph.Node {
	return &graph.Node{ID: graph.FileNodeID(path), Type: graph.NodeFile, Name: path, QualifiedName: path, FilePath: path}
}

func funcNode(name, path string) *graph.Node {
	k := graph.NewFunctionKey(name, path)
	return &graph.Node{ID: graph.FunctionNodeID(k), Type: graph.NodeFunction, Name: name, QualifiedName: k.String(), FilePath: path}
}

func callEdge(src, dst *graph.Node) *graph.Edge {
	return &graph.Edge{ID: graph.NewEdgeID(graph.EdgeCalls, src.ID, dst.ID), Type: graph.EdgeCalls, SourceID: src.ID, TargetID: dst.ID}
}

func mustAdd(t *testing.T, s *Store, nodes []*graph.Node, edges []*graph.Edge) {
	t.Helper()
	ctx := context.Background()
	for _, n := range nodes {
		if err := s.AddNode(ctx, n); err != nil {
			t.Fatalf("AddNode %s: %v", n.QualifiedName, err)
		}
	}
	for _, e := range edges {
		if err := s.AddEdge(ctx, e); err != nil {
			t.Fatalf("AddEdge %s: %v", e.ID, err)
		}
	}
}

func names(nodes []*graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.QualifiedName)
	}
	sort.Strings(out)
	return out
}

func TestAddGetNode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := funcNode("main", "app/main.py")
	node.Line = 10
	node.Properties = map[string]string{graph.PropSites: "1"}
	mustAdd(t, s, []*graph.Node{node}, nil)

	got, err := s.GetNode(ctx, node.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Name != "main" {
		t.Errorf("Name = %q, want %q", got.Name, "main")
	}
	if got.QualifiedName != "app/main.py::main" {
		t.Errorf("QualifiedName = %q, want %q", got.QualifiedName, "app/main.py::main")
	}
	if got.Line != 10 {
		t.Errorf("Line = %d, want 10", got.Line)
	}
	if got.Properties[graph.PropSites] != "1" {
		t.Errorf("Properties[sites] = %q, want %q", got.Properties[graph.PropSites], "1")
	}

	if _, err := s.GetNode(ctx, "missing"); err == nil {
		t.Error("GetNode(missing) should fail")
	}
}

func TestQueryNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAdd(t, s, []*graph.Node{
		fileNode("a.py"),
		fileNode("a.py2"),
		funcNode("helper", "a.py"),
		funcNode("helper", "b.py"),
		funcNode("run", "a.py"),
	}, nil)

	tests := []struct {
		name   string
		filter graph.NodeFilter
		want   []string
	}{
		{"by type", graph.NodeFilter{Type: graph.NodeFile}, []string{"a.py", "a.py2"}},
		{"by file", graph.NodeFilter{FilePath: "a.py"}, []string{"a.py", "a.py::helper", "a.py::run"}},
		{"by name", graph.NodeFilter{Name: "helper"}, []string{"a.py::helper", "b.py::helper"}},
		{"by name and file", graph.NodeFilter{Name: "helper", FilePath: "b.py"}, []string{"b.py::helper"}},
		{"pattern", graph.NodeFilter{Type: graph.NodeFunction, NamePattern: "h*"}, []string{"a.py::helper", "b.py::helper"}},
		{"all", graph.NodeFilter{}, []string{"a.py", "a.py2", "a.py::helper", "a.py::run", "b.py::helper"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryNodes(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryNodes: %v", err)
			}
			gotNames := names(got)
			if len(gotNames) != len(tt.want) {
				t.Fatalf("QueryNodes = %v, want %v", gotNames, tt.want)
			}
			for i := range gotNames {
				if gotNames[i] != tt.want[i] {
					t.Errorf("QueryNodes = %v, want %v", gotNames, tt.want)
					break
				}
			}
		})
	}
}

func TestGetNeighbors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	main := funcNode("main", "main.py")
	a := funcNode("a", "lib.py")
	b := funcNode("b", "lib.py")
	mustAdd(t, s, []*graph.Node{main, a, b}, []*graph.Edge{callEdge(main, a), callEdge(main, b), callEdge(a, b)})

	out, err := s.GetNeighbors(ctx, main.ID, graph.EdgeCalls, graph.Outgoing)
	if err != nil {
		t.Fatal(err)
	}
	if got := names(out); len(got) != 2 || got[0] != "lib.py::a" || got[1] != "lib.py::b" {
		t.Errorf("outgoing = %v", got)
	}

	in, err := s.GetNeighbors(ctx, b.ID, graph.EdgeCalls, graph.Incoming)
	if err != nil {
		t.Fatal(err)
	}
	if got := names(in); len(got) != 2 || got[0] != "lib.py::a" || got[1] != "main.py::main" {
		t.Errorf("incoming = %v", got)
	}

	both, err := s.GetNeighbors(ctx, a.ID, "", graph.Both)
	if err != nil {
		t.Fatal(err)
	}
	if got := names(both); len(got) != 2 {
		t.Errorf("both = %v, want 2 neighbors", got)
	}

	none, err := s.GetNeighbors(ctx, main.ID, graph.EdgeImports, graph.Outgoing)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("imports neighbors = %v, want none", names(none))
	}
}

func TestGetAndQueryEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fa, fb := fileNode("a.py"), fileNode("b.py")
	x, y := funcNode("x", "a.py"), funcNode("y", "b.py")
	imp := &graph.Edge{ID: graph.NewEdgeID(graph.EdgeImports, fa.ID, fb.ID), Type: graph.EdgeImports, SourceID: fa.ID, TargetID: fb.ID}
	mustAdd(t, s, []*graph.Node{fa, fb, x, y}, []*graph.Edge{imp, callEdge(x, y)})

	edges, err := s.GetEdges(ctx, fb.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0].Type != graph.EdgeImports {
		t.Errorf("GetEdges(b.py) = %v", edges)
	}

	calls, err := s.QueryEdges(ctx, graph.EdgeCalls)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Errorf("QueryEdges(Calls) = %d edges, want 1", len(calls))
	}
	all, err := s.QueryEdges(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("QueryEdges(all) = %d edges, want 2", len(all))
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	x, y := funcNode("x", "a.py"), funcNode("y", "a.py")
	mustAdd(t, s, []*graph.Node{fileNode("a.py"), x, y}, []*graph.Edge{callEdge(x, y)})

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NodeCount != 3 || stats.EdgeCount != 1 {
		t.Errorf("counts = %d nodes %d edges, want 3 and 1", stats.NodeCount, stats.EdgeCount)
	}
	if stats.NodesByType[graph.NodeFunction] != 2 {
		t.Errorf("functions = %d, want 2", stats.NodesByType[graph.NodeFunction])
	}
	if stats.EdgesByType[graph.EdgeCalls] != 1 {
		t.Errorf("calls = %d, want 1", stats.EdgesByType[graph.EdgeCalls])
	}
}

func TestInfoAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadInfo(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("LoadInfo on empty store: err = %v, want %v", err, ErrNoSnapshot)
	}
	info := graph.SnapshotInfo{RunID: "run-1", Root: "/repo", CreatedAt: time.Unix(1700000000, 0).UTC()}
	if err := s.SaveInfo(ctx, info); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-1" || got.Root != "/repo" || !got.CreatedAt.Equal(info.CreatedAt) {
		t.Errorf("LoadInfo = %+v", got)
	}

	mustAdd(t, s, []*graph.Node{fileNode("a.py")}, nil)
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	stats, _ := s.Stats(ctx)
	if stats.NodeCount != 0 {
		t.Errorf("NodeCount after Clear = %d, want 0", stats.NodeCount)
	}
	if _, err := s.LoadInfo(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("LoadInfo after Clear: err = %v", err)
	}
}

func TestPersistLoadSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := graph.New()
	for _, d := range [][2]string{{"main.py", "main"}, {"a.py", "helper"}, {"b.py", "helper"}} {
		if _, err := g.RegisterFunction(d[1], d[0], 1); err != nil {
			t.Fatal(err)
		}
	}
	g.Seal()
	if _, err := g.AddFileEdge("main.py", "a.py"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddCallEdge(graph.NewFunctionKey("main", "main.py"), "helper"); err != nil {
		t.Fatal(err)
	}
	snap := g.Snapshot()

	// Stale data from a previous run must not survive.
	mustAdd(t, s, []*graph.Node{fileNode("stale.py")}, nil)

	if err := graph.Persist(ctx, s, snap, graph.SnapshotInfo{RunID: "r", Root: "/repo"}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	got, err := graph.LoadSnapshot(ctx, s)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got.Stats != snap.Stats {
		t.Errorf("Stats = %+v, want %+v", got.Stats, snap.Stats)
	}
	for _, f := range got.Files {
		if f == "stale.py" {
			t.Error("stale file survived Persist")
		}
	}
	if len(got.CallEdges) != 2 || got.CallEdges[0].Candidates != 2 {
		t.Errorf("CallEdges = %+v", got.CallEdges)
	}

	info, err := s.LoadInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Stats.Functions != 3 {
		t.Errorf("info.Stats.Functions = %d, want 3", info.Stats.Functions)
	}
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewInMemoryStore()
	if err != nil {
		t.Fatalf("NewInMemoryStore: %v", err)
	}
	defer s.Close()
	mustAdd(t, s, []*graph.Node{fileNode("a.py")}, nil)
	if _, err := s.GetNode(context.Background(), graph.FileNodeID("a.py")); err != nil {
		t.Errorf("GetNode: %v", err)
	}
}
