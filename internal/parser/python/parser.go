// Package python provides the Python grammar: tree-sitter language, the
// definition/import/call patterns, and the builtin names excluded from call
// resolution.
package python

import (
	"embed"
	"fmt"
	"sync"

	"github.com/smacker/go-tree-sitter/python"

	"github.com/imyousuf/depgraph/internal/parser"
)

//go:embed queries/*.scm builtins.yaml
var assets embed.FS

var patternFiles = map[parser.PatternKind]string{
	parser.PatternDefinitions: "queries/definitions.scm",
	parser.PatternImports:     "queries/imports.scm",
	parser.PatternCalls:       "queries/calls.scm",
}

var (
	grammarOnce sync.Once
	grammar     *parser.Grammar
	grammarErr  error
)

// NewGrammar returns the shared Python grammar. Its queries are compiled on
// first use.
func NewGrammar() (*parser.Grammar, error) {
	grammarOnce.Do(func() {
		grammar, grammarErr = load()
	})
	return grammar, grammarErr
}

func load() (*parser.Grammar, error) {
	patterns := make(map[parser.PatternKind][]byte, len(patternFiles))
	for kind, name := range patternFiles {
		data, err := assets.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		patterns[kind] = data
	}
	data, err := assets.ReadFile("builtins.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading builtins: %w", err)
	}
	builtins, err := parser.LoadBuiltins(data)
	if err != nil {
		return nil, err
	}

	return &parser.Grammar{
		Language:          parser.LangPython,
		Extensions:        parser.FileExtensions[parser.LangPython],
		ModuleExtension:   ".py",
		PackageInit:       "__init__.py",
		FunctionNodeType:  "function_definition",
		BodyField:         "body",
		NameField:         "name",
		ClassNodeType:     "class_definition",
		DecoratedNodeType: "decorated_definition",
		DefinitionField:   "definition",
		Builtins:          builtins,
		Patterns:          patterns,
		Sitter:            python.GetLanguage(),
	}, nil
}

// Register adds the Python grammar to r.
func Register(r *parser.Registry) error {
	g, err := NewGrammar()
	if err != nil {
		return err
	}
	r.Register(g)
	return nil
}
