package analyzer

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/imyousuf/depgraph/internal/parser"
)

// ExtractCalls returns the distinct call names in def's body, in source
// order, minus the names in exclude. A call belongs to the nearest function
// whose body contains it, so calls in a nested def's body are skipped here
// while calls in its default values or annotations stay with def.
func ExtractCalls(tree *parser.Tree, def Definition, exclude map[string]struct{}) ([]string, error) {
	if def.Body == nil {
		return nil, nil
	}
	matches, err := tree.Query(def.Body, parser.PatternCalls)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	add := func(n *sitter.Node) {
		if !parser.SameNode(owningFunction(n, tree.Grammar), def.Node) {
			return
		}
		name := tree.Text(n)
		if name == "" {
			return
		}
		if _, ok := exclude[name]; ok {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for _, m := range matches {
		for _, n := range m.Captures[parser.CaptureCallName] {
			add(n)
		}
		for _, n := range m.Captures[parser.CaptureCallAttribute] {
			add(n)
		}
	}
	return names, nil
}

// owningFunction returns the nearest function definition whose body
// contains n, or nil at module level.
func owningFunction(n *sitter.Node, g *parser.Grammar) *sitter.Node {
	prev := n
	for p := n.Parent(); p != nil; prev, p = p, p.Parent() {
		if p.Type() != g.FunctionNodeType {
			continue
		}
		if body := p.ChildByFieldName(g.BodyField); parser.SameNode(body, prev) {
			return p
		}
	}
	return nil
}
