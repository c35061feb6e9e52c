package analyzer

import (
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/imyousuf/depgraph/internal/graph"
	"github.com/imyousuf/depgraph/internal/parser"
)

// Outline builds the outline of one file: its imported modules, and its
// top-level classes (with their methods) and functions, each listing the
// callee text of every call in its body. A call is dropped when its leading
// name is in exclude.
func Outline(tree *parser.Tree, path string, exclude map[string]struct{}) (graph.FileStructure, error) {
	imports, err := ExtractImports(tree)
	if err != nil {
		return graph.FileStructure{}, err
	}
	slices.Sort(imports)
	out := graph.FileStructure{Filename: path, Imports: imports}

	g := tree.Grammar
	root := tree.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := unwrapDecorated(root.NamedChild(i), g)
		switch n.Type() {
		case g.ClassNodeType:
			s := graph.Structure{Type: graph.StructureClass, Name: nodeName(tree, n)}
			body := n.ChildByFieldName(g.BodyField)
			if body == nil {
				out.Structures = append(out.Structures, s)
				continue
			}
			for j := 0; j < int(body.NamedChildCount()); j++ {
				m := unwrapDecorated(body.NamedChild(j), g)
				if m.Type() != g.FunctionNodeType {
					continue
				}
				calls, err := callTargets(tree, m.ChildByFieldName(g.BodyField), exclude)
				if err != nil {
					return graph.FileStructure{}, err
				}
				s.Methods = append(s.Methods, graph.Method{Name: nodeName(tree, m), Calls: calls})
			}
			out.Structures = append(out.Structures, s)
		case g.FunctionNodeType:
			calls, err := callTargets(tree, n.ChildByFieldName(g.BodyField), exclude)
			if err != nil {
				return graph.FileStructure{}, err
			}
			out.Structures = append(out.Structures, graph.Structure{
				Type:  graph.StructureFunction,
				Name:  nodeName(tree, n),
				Calls: calls,
			})
		}
	}
	return out, nil
}

// callTargets returns the sorted, distinct callee texts under body, nested
// definitions included.
func callTargets(tree *parser.Tree, body *sitter.Node, exclude map[string]struct{}) ([]string, error) {
	if body == nil {
		return nil, nil
	}
	matches, err := tree.Query(body, parser.PatternCalls)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var calls []string
	for _, m := range matches {
		for _, n := range m.Captures[parser.CaptureCallTarget] {
			text := tree.Text(n)
			if text == "" {
				continue
			}
			if _, ok := exclude[leadingName(text)]; ok {
				continue
			}
			if _, ok := seen[text]; ok {
				continue
			}
			seen[text] = struct{}{}
			calls = append(calls, text)
		}
	}
	slices.Sort(calls)
	return calls, nil
}

// leadingName returns "os" for "os.path.join" and "make" for "make()".
func leadingName(callee string) string {
	head, _, _ := strings.Cut(callee, ".")
	head, _, _ = strings.Cut(head, "(")
	return head
}

func unwrapDecorated(n *sitter.Node, g *parser.Grammar) *sitter.Node {
	if g.DecoratedNodeType == "" || n.Type() != g.DecoratedNodeType {
		return n
	}
	if def := n.ChildByFieldName(g.DefinitionField); def != nil {
		return def
	}
	return n
}

func nodeName(tree *parser.Tree, n *sitter.Node) string {
	if name := n.ChildByFieldName(tree.Grammar.NameField); name != nil {
		return tree.Text(name)
	}
	return ""
}
