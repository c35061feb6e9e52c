package python

import (
	"context"
	"slices"
	"testing"

	"github.com/imyousuf/depgraph/internal/parser"
)

const testSource = `"""A test module for parsing."""

import os
import pkg.sub as sub
from pathlib import Path
from .utils import helper as h
from . import sibling

class Animal:
    def __init__(self, name):
        self.name = name

    def speak(self):
        return format_sound(self.name)

def create_animal(name):
    def validate(n):
        return len(n) > 0
    validate(name)
    return Animal(name)
`

func newTestTree(t *testing.T, src string) *parser.Tree {
	t.Helper()
	g, err := NewGrammar()
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

func captured(t *testing.T, tree *parser.Tree, kind parser.PatternKind, names ...string) []string {
	t.Helper()
	matches, err := tree.Query(tree.Root(), kind)
	if err != nil {
		t.Fatalf("Query(%s): %v", kind, err)
	}
	var out []string
	for _, m := range matches {
		for _, name := range names {
			for _, n := range m.Captures[name] {
				out = append(out, tree.Text(n))
			}
		}
	}
	slices.Sort(out)
	return out
}

func TestGrammarCompiles(t *testing.T) {
	g, err := NewGrammar()
	if err != nil {
		t.Fatalf("NewGrammar: %v", err)
	}
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if g.Language != parser.LangPython {
		t.Errorf("Language = %q, want %q", g.Language, parser.LangPython)
	}
	if g.ModuleExtension != ".py" || g.PackageInit != "__init__.py" {
		t.Errorf("module conventions = %q %q", g.ModuleExtension, g.PackageInit)
	}
}

func TestBuiltinsLoaded(t *testing.T) {
	g, err := NewGrammar()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"print", "len", "__import__", "super", "zip"} {
		if !slices.Contains(g.Builtins, name) {
			t.Errorf("builtin %q missing", name)
		}
	}
	if len(g.Builtins) != 69 {
		t.Errorf("len(Builtins) = %d, want 69", len(g.Builtins))
	}
}

func TestDefinitionsPattern(t *testing.T) {
	tree := newTestTree(t, testSource)
	got := captured(t, tree, parser.PatternDefinitions, parser.CaptureDefinitionName)
	want := []string{"__init__", "create_animal", "speak", "validate"}
	if !slices.Equal(got, want) {
		t.Errorf("definitions = %v, want %v", got, want)
	}

	matches, err := tree.Query(tree.Root(), parser.PatternDefinitions)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		def := m.First(parser.CaptureDefinition)
		if def == nil || def.Type() != "function_definition" {
			t.Errorf("match without a function_definition capture: %+v", m)
		}
	}
}

func TestImportsPattern(t *testing.T) {
	tree := newTestTree(t, testSource)
	got := captured(t, tree, parser.PatternImports, parser.CaptureImportModule)
	want := []string{"Path", "helper", "os", "pathlib", "pkg.sub", "sibling", "utils"}
	if !slices.Equal(got, want) {
		t.Errorf("imports = %v, want %v", got, want)
	}
}

func TestCallsPattern(t *testing.T) {
	tree := newTestTree(t, testSource)
	got := captured(t, tree, parser.PatternCalls, parser.CaptureCallName, parser.CaptureCallAttribute)
	want := []string{"Animal", "format_sound", "len", "validate"}
	if !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestCallTargetsPattern(t *testing.T) {
	tree := newTestTree(t, testSource)
	got := captured(t, tree, parser.PatternCalls, parser.CaptureCallTarget)
	want := []string{"Animal", "format_sound", "len", "validate"}
	if !slices.Equal(got, want) {
		t.Errorf("call targets = %v, want %v", got, want)
	}

	tree = newTestTree(t, "def f():\n    os.path.join(a, b)\n    self.save()\n    make()()\n")
	got = captured(t, tree, parser.PatternCalls, parser.CaptureCallTarget)
	want = []string{"make", "make()", "os.path.join", "self.save"}
	if !slices.Equal(got, want) {
		t.Errorf("call targets = %v, want %v", got, want)
	}
}

func TestRegister(t *testing.T) {
	r := parser.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	g, ok := r.ForPath("pkg/mod.py")
	if !ok || g.Language != parser.LangPython {
		t.Fatalf("ForPath(pkg/mod.py) = %v, %v", g, ok)
	}
	if _, ok := r.ForPath("README.md"); ok {
		t.Error("ForPath(README.md) should not resolve")
	}
}
