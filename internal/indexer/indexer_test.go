package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/imyousuf/depgraph/internal/discover"
	"github.com/imyousuf/depgraph/internal/graph"
	"github.com/imyousuf/depgraph/internal/graph/embedded"
	"github.com/imyousuf/depgraph/internal/parser"
	"github.com/imyousuf/depgraph/internal/parser/python"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func setupTestIndexer(t *testing.T, root string, mutate func(*Config)) (*Indexer, graph.Store) {
	t.Helper()

	store, err := embedded.NewStore(filepath.Join(t.TempDir(), "testdb"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	registry := parser.NewRegistry()
	if err := python.Register(registry); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		Root:     root,
		Registry: registry,
		Store:    store,
		Discover: discover.Options{Exclude: []string{"vendor/**"}},
		Logger:   t.Logf,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	idx, err := NewIndexer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return idx, store
}

var sampleRepo = map[string]string{
	"main.py":         "import utils\n\ndef main():\n    utils.helper()\n",
	"utils.py":        "def helper():\n    pass\n",
	"vendor/third.py": "def vendored():\n    pass\n",
}

func TestIndexRepository(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleRepo)
	out := filepath.Join(t.TempDir(), "out", "graph.dot")
	idx, store := setupTestIndexer(t, root, func(c *Config) { c.Output = out })
	ctx := context.Background()

	run, err := idx.IndexRepository(ctx)
	if err != nil {
		t.Fatalf("IndexRepository: %v", err)
	}
	if run.ID == "" || run.Info.RunID != run.ID {
		t.Errorf("run id = %q, info run id = %q", run.ID, run.Info.RunID)
	}
	if got := run.Result.Graph.Files(); !slices.Equal(got, []string{"main.py", "utils.py"}) {
		t.Errorf("Files() = %v, vendor/ should be excluded", got)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NodeCount != 4 {
		t.Errorf("NodeCount = %d, want 4", stats.NodeCount)
	}
	if stats.EdgesByType[graph.EdgeImports] != 1 || stats.EdgesByType[graph.EdgeCalls] != 1 {
		t.Errorf("EdgesByType = %v", stats.EdgesByType)
	}

	info, err := store.LoadInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.RunID != run.ID || info.Stats.CallEdges != 1 {
		t.Errorf("info = %+v", info)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(data), "digraph CodeGraph {") {
		t.Errorf("output is not a DOT graph:\n%s", data)
	}

	s := idx.Stats()
	if s.Runs != 1 || s.LastRunID != run.ID || s.Graph.Functions != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestIndexRepositoryReplacesSnapshot(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py": "def old_func():\n    pass\n\ndef keep_func():\n    pass\n",
	})
	idx, store := setupTestIndexer(t, root, nil)
	ctx := context.Background()

	if _, err := idx.IndexRepository(ctx); err != nil {
		t.Fatal(err)
	}
	writeFiles(t, root, map[string]string{
		"a.py": "def keep_func():\n    new_func()\n\ndef new_func():\n    pass\n",
	})
	if _, err := idx.IndexRepository(ctx); err != nil {
		t.Fatal(err)
	}

	nodes, err := store.QueryNodes(ctx, graph.NodeFilter{Type: graph.NodeFunction})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"keep_func", "new_func"}) {
		t.Errorf("functions after re-index = %v", names)
	}
	if idx.Stats().Runs != 2 {
		t.Errorf("Runs = %d, want 2", idx.Stats().Runs)
	}
}

func TestIndexRepositoryJSONOutput(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleRepo)
	out := filepath.Join(t.TempDir(), "graph.json")
	idx, _ := setupTestIndexer(t, root, func(c *Config) {
		c.Output = out
		c.Format = graph.FormatJSON
		c.Store = nil
	})

	if _, err := idx.IndexRepository(context.Background()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"main.py::main"`) {
		t.Errorf("JSON output missing main.py::main:\n%s", data)
	}
	entries, err := os.ReadDir(filepath.Dir(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestNewIndexerRejectsBadRoot(t *testing.T) {
	registry := parser.NewRegistry()
	if _, err := NewIndexer(Config{Root: filepath.Join(t.TempDir(), "missing"), Registry: registry}); err == nil {
		t.Error("missing root should fail")
	}
	if _, err := NewIndexer(Config{Root: t.TempDir()}); err == nil {
		t.Error("missing registry should fail")
	}
}

func TestStalenessByModTime(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py": "def a():\n    pass\n",
		"b.py": "def b():\n    pass\n",
		"c.py": "def c():\n    pass\n",
	})
	idx, _ := setupTestIndexer(t, root, nil)
	ctx := context.Background()

	if _, err := idx.IndexRepository(ctx); err != nil {
		t.Fatal(err)
	}

	s, err := idx.Staleness(ctx)
	if err != nil {
		t.Fatalf("Staleness: %v", err)
	}
	if s.Method != CompareMtime || s.Stale() {
		t.Errorf("fresh snapshot: method=%s changes=%+v", s.Method, s.Changes)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(root, "a.py"), future, future); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "b.py")); err != nil {
		t.Fatal(err)
	}
	writeFiles(t, root, map[string]string{"d.py": "def d():\n    pass\n"})

	s, err = idx.Staleness(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Stale() {
		t.Fatal("expected a stale snapshot")
	}
	if !slices.Equal(s.Modified, []string{"a.py"}) {
		t.Errorf("Modified = %v", s.Modified)
	}
	if !slices.Equal(s.Deleted, []string{"b.py"}) {
		t.Errorf("Deleted = %v", s.Deleted)
	}
	if !slices.Equal(s.Added, []string{"d.py"}) {
		t.Errorf("Added = %v", s.Added)
	}
}

func TestStalenessWithoutSnapshot(t *testing.T) {
	idx, _ := setupTestIndexer(t, t.TempDir(), nil)
	if _, err := idx.Staleness(context.Background()); !errors.Is(err, embedded.ErrNoSnapshot) {
		t.Errorf("Staleness() error = %v, want ErrNoSnapshot", err)
	}
}

func TestStartReindexesOnChange(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, sampleRepo)

	runs := make(chan Run, 8)
	idx, _ := setupTestIndexer(t, root, func(c *Config) {
		c.QuietPeriod = 50 * time.Millisecond
		c.OnIndex = func(r Run) { runs <- r }
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- idx.Start(ctx) }()

	select {
	case <-runs:
	case <-ctx.Done():
		t.Fatal("initial run did not complete")
	}
	// Give the watcher time to initialize.
	time.Sleep(200 * time.Millisecond)

	writeFiles(t, root, map[string]string{"extra.py": "def extra():\n    helper()\n"})

	var second Run
	select {
	case second = <-runs:
	case <-ctx.Done():
		t.Fatal("change did not trigger a re-run")
	}
	if !second.Result.Graph.HasFile("extra.py") {
		t.Errorf("re-run missed extra.py: %v", second.Result.Graph.Files())
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() = %v", err)
	}
}
