package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/imyousuf/depgraph/internal/parser"
)

// Definition is one function definition site found in a file.
type Definition struct {
	Name string
	Line int
	// Class is the enclosing class when the definition is a method.
	Class string
	// Node is the definition node itself; Body may be nil.
	Node *sitter.Node
	Body *sitter.Node
}

// CollectDefinitions returns every function definition in tree, at any
// nesting depth, in source order. It does not touch the graph.
func CollectDefinitions(tree *parser.Tree) ([]Definition, error) {
	matches, err := tree.Query(tree.Root(), parser.PatternDefinitions)
	if err != nil {
		return nil, err
	}
	defs := make([]Definition, 0, len(matches))
	for _, m := range matches {
		nameNode := m.First(parser.CaptureDefinitionName)
		defNode := m.First(parser.CaptureDefinition)
		if nameNode == nil || defNode == nil {
			continue
		}
		name := tree.Text(nameNode)
		if name == "" {
			continue
		}
		defs = append(defs, Definition{
			Name:  name,
			Line:  parser.NodeLine(defNode),
			Class: enclosingClass(tree, defNode),
			Node:  defNode,
			Body:  defNode.ChildByFieldName(tree.Grammar.BodyField),
		})
	}
	return defs, nil
}

// enclosingClass returns the name of the class whose body holds def, or ""
// when a function definition is reached first.
func enclosingClass(tree *parser.Tree, def *sitter.Node) string {
	g := tree.Grammar
	if g.ClassNodeType == "" {
		return ""
	}
	for p := def.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case g.FunctionNodeType:
			return ""
		case g.ClassNodeType:
			if name := p.ChildByFieldName(g.NameField); name != nil {
				return tree.Text(name)
			}
			return ""
		}
	}
	return ""
}
