package discover

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/imyousuf/depgraph/internal/parser"
	"github.com/imyousuf/depgraph/internal/parser/python"
)

func newTestRegistry(t *testing.T) *parser.Registry {
	t.Helper()
	r := parser.NewRegistry()
	if err := python.Register(r); err != nil {
		t.Fatal(err)
	}
	return r
}

// writeTree creates files (relative path -> content) under a temp root.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.py":                     "import pkg.mod\n",
		"pkg/__init__.py":             "",
		"pkg/mod.py":                  "def x(): pass\n",
		"README.md":                   "# docs\n",
		".hidden.py":                  "",
		".git/hooks/pre-commit.py":    "",
		"venv/lib/site.py":            "",
		"pkg/__pycache__/mod.py":      "",
		"generated/out.py":            "",
		"tests/test_mod.py":           "",
		"big.py":                      string(make([]byte, 2048)),
		".gitignore":                  "generated/\n",
		"lib/thing.egg-info/setup.py": "",
	})

	entries, err := Files(root, newTestRegistry(t), Options{
		Exclude:     []string{"tests/**"},
		MaxFileSize: 1024,
	})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	got := Paths(entries)
	want := []string{"main.py", "pkg/__init__.py", "pkg/mod.py"}
	if !slices.Equal(got, want) {
		t.Errorf("Files() = %v, want %v", got, want)
	}
	for _, e := range entries {
		if e.Language != parser.LangPython {
			t.Errorf("%s language = %q", e.Path, e.Language)
		}
	}
}

func TestFilesLanguageFilter(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": ""})
	entries, err := Files(root, newTestRegistry(t), Options{Languages: []string{"go"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Files() = %v, want none for an unregistered language", Paths(entries))
	}
}

func TestFilesRejectsBadRoot(t *testing.T) {
	root := writeTree(t, map[string]string{"file.py": ""})
	if _, err := Files(filepath.Join(root, "missing"), newTestRegistry(t), Options{}); err == nil {
		t.Error("missing root should fail")
	}
	if _, err := Files(filepath.Join(root, "file.py"), newTestRegistry(t), Options{}); err == nil {
		t.Error("file root should fail")
	}
}

func TestFilesRejectsBadGlob(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": ""})
	if _, err := Files(root, newTestRegistry(t), Options{Exclude: []string{"[unclosed"}}); err == nil {
		t.Error("invalid glob should fail")
	}
}

func TestMatcherMatch(t *testing.T) {
	root := writeTree(t, map[string]string{".gitignore": "*.gen.py\n"})
	m, err := NewMatcher(root, newTestRegistry(t), Options{Exclude: []string{"migrations/**"}})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		rel  string
		want bool
	}{
		{"app/models.py", true},
		{"app/models.gen.py", false},
		{"migrations/0001.py", false},
		{"app/.cache/x.py", false},
		{"node_modules/x.py", false},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		if _, got := m.Match(tt.rel); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
