package analyzer

import (
	"context"
	"slices"
	"testing"

	"github.com/imyousuf/depgraph/internal/parser"
	"github.com/imyousuf/depgraph/internal/parser/python"
)

func parsePython(t *testing.T, src string) *parser.Tree {
	t.Helper()
	g, err := python.NewGrammar()
	if err != nil {
		t.Fatalf("NewGrammar: %v", err)
	}
	tree, err := g.Parse(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	t.Cleanup(tree.Close)
	return tree
}

func TestExtractCallsWithoutBody(t *testing.T) {
	tree := parsePython(t, "def f():\n    g()\n")
	names, err := ExtractCalls(tree, Definition{Name: "f", Line: 1}, nil)
	if err != nil {
		t.Fatalf("ExtractCalls: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("ExtractCalls() = %v, want none", names)
	}
}

func TestExtractCallsAnnotationsAndDefaults(t *testing.T) {
	tree := parsePython(t, `def outer():
    def inner(a: make_type() = default(), b=other()) -> result_type():
        body_call()
    return inner
`)
	defs, err := CollectDefinitions(tree)
	if err != nil {
		t.Fatalf("CollectDefinitions: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("CollectDefinitions() = %d defs, want 2", len(defs))
	}

	outer, err := ExtractCalls(tree, defs[0], nil)
	if err != nil {
		t.Fatalf("ExtractCalls(outer): %v", err)
	}
	want := []string{"make_type", "default", "other", "result_type"}
	if !slices.Equal(outer, want) {
		t.Errorf("outer calls = %v, want %v", outer, want)
	}

	inner, err := ExtractCalls(tree, defs[1], nil)
	if err != nil {
		t.Fatalf("ExtractCalls(inner): %v", err)
	}
	if !slices.Equal(inner, []string{"body_call"}) {
		t.Errorf("inner calls = %v, want [body_call]", inner)
	}
}
