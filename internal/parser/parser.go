// Package parser wraps tree-sitter behind the small surface the analyzer
// needs: parse a file, then run one of a language's structural patterns
// over any node of the resulting tree.
package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Language represents a supported programming language.
type Language string

const (
	LangPython Language = "python"
)

// FileExtensions maps each language to its recognized file extensions.
var FileExtensions = map[Language][]string{
	LangPython: {".py"},
}

// PatternKind selects one of a grammar's structural patterns.
type PatternKind int

const (
	PatternDefinitions PatternKind = iota
	PatternImports
	PatternCalls
	numPatterns
)

func (k PatternKind) String() string {
	switch k {
	case PatternDefinitions:
		return "definitions"
	case PatternImports:
		return "imports"
	case PatternCalls:
		return "calls"
	default:
		return fmt.Sprintf("pattern(%d)", int(k))
	}
}

// Capture names every grammar's patterns must use.
const (
	CaptureDefinition     = "definition.function"
	CaptureDefinitionName = "definition.name"
	CaptureImportModule   = "import.module"
	CaptureCallName       = "call.name"
	CaptureCallAttribute  = "call.attribute"
	CaptureCallTarget     = "call.target"
)

// ErrNoPattern is returned when a grammar lacks the requested pattern.
var ErrNoPattern = errors.New("parser: grammar has no such pattern")

// Grammar is the per-language configuration: tree-sitter grammar, the
// structural patterns, and the conventions used to map module names to files.
// Queries are compiled once and shared; parsers are pooled, one per caller.
type Grammar struct {
	Language   Language
	Extensions []string

	// ModuleExtension is appended to a slash-joined module path to form a
	// candidate file, e.g. ".py".
	ModuleExtension string
	// PackageInit is the file that stands for a package directory, e.g. "__init__.py".
	PackageInit string
	// FunctionNodeType is the node type of a function definition.
	FunctionNodeType string
	// BodyField is the field name of a definition's body.
	BodyField string
	// NameField is the field name of a definition's name.
	NameField string
	// ClassNodeType is the node type of a class definition.
	ClassNodeType string
	// DecoratedNodeType wraps a decorated definition, which sits under
	// DefinitionField.
	DecoratedNodeType string
	DefinitionField   string

	// Builtins are call names never resolved to user functions.
	Builtins []string

	Patterns map[PatternKind][]byte
	Sitter   *sitter.Language

	queryOnce [numPatterns]sync.Once
	queries   [numPatterns]*sitter.Query
	queryErrs [numPatterns]error

	parsers sync.Pool
}

// Query returns the compiled query for kind (safe to share across goroutines).
func (g *Grammar) Query(kind PatternKind) (*sitter.Query, error) {
	if kind < 0 || kind >= numPatterns {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoPattern)
	}
	g.queryOnce[kind].Do(func() {
		src, ok := g.Patterns[kind]
		if !ok || len(src) == 0 {
			g.queryErrs[kind] = fmt.Errorf("%s %s: %w", g.Language, kind, ErrNoPattern)
			return
		}
		q, err := sitter.NewQuery(src, g.Sitter)
		if err != nil {
			g.queryErrs[kind] = fmt.Errorf("compiling %s %s query: %w", g.Language, kind, err)
			return
		}
		g.queries[kind] = q
	})
	return g.queries[kind], g.queryErrs[kind]
}

// Compile compiles every pattern up front so broken queries surface at startup.
func (g *Grammar) Compile() error {
	var errs []error
	for k := PatternKind(0); k < numPatterns; k++ {
		if _, err := g.Query(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Grammar) getParser() *sitter.Parser {
	if p, ok := g.parsers.Get().(*sitter.Parser); ok {
		return p
	}
	p := sitter.NewParser()
	p.SetLanguage(g.Sitter)
	return p
}

// Parse builds a syntax tree for content. The returned tree must be closed.
func (g *Grammar) Parse(ctx context.Context, content []byte) (*Tree, error) {
	p := g.getParser()
	defer g.parsers.Put(p)

	t, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s source: %w", g.Language, err)
	}
	return &Tree{Source: content, Grammar: g, tree: t}, nil
}

// Exclusions returns the builtin set adjusted by extra names to exclude and
// names to keep resolvable.
func (g *Grammar) Exclusions(extra, keep []string) map[string]struct{} {
	set := make(map[string]struct{}, len(g.Builtins)+len(extra))
	for _, n := range g.Builtins {
		set[n] = struct{}{}
	}
	for _, n := range extra {
		set[n] = struct{}{}
	}
	for _, n := range keep {
		delete(set, n)
	}
	return set
}

// Tree is a parsed file. A Tree is not safe for concurrent use.
type Tree struct {
	Source  []byte
	Grammar *Grammar
	tree    *sitter.Tree
}

// Root returns the root node.
func (t *Tree) Root() *sitter.Node { return t.tree.RootNode() }

// Text returns the source text of n.
func (t *Tree) Text(n *sitter.Node) string {
	return string(t.Source[n.StartByte():n.EndByte()])
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// Match is one occurrence of a pattern. Captures of the same occurrence are
// kept together, grouped by capture name.
type Match struct {
	Pattern  int
	Captures map[string][]*sitter.Node
}

// First returns the first node captured under name, or nil.
func (m Match) First(name string) *sitter.Node {
	if nodes := m.Captures[name]; len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// Query runs the pattern of the given kind over the subtree rooted at node.
func (t *Tree) Query(node *sitter.Node, kind PatternKind) ([]Match, error) {
	q, err := t.Grammar.Query(kind)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, node)

	var matches []Match
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, t.Source)
		if len(m.Captures) == 0 {
			continue
		}
		match := Match{Pattern: int(m.PatternIndex), Captures: make(map[string][]*sitter.Node, len(m.Captures))}
		for _, c := range m.Captures {
			name := q.CaptureNameForId(c.Index)
			match.Captures[name] = append(match.Captures[name], c.Node)
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// NodeLine returns the 1-based line on which n starts.
func NodeLine(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

// SameNode reports whether a and b are the same syntax node.
func SameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
