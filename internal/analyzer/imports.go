package analyzer

import (
	"strings"

	"github.com/imyousuf/depgraph/internal/parser"
)

// ExtractImports returns the distinct module paths referenced by import
// statements in tree, in source order.
func ExtractImports(tree *parser.Tree) ([]string, error) {
	matches, err := tree.Query(tree.Root(), parser.PatternImports)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var modules []string
	for _, m := range matches {
		for _, n := range m.Captures[parser.CaptureImportModule] {
			mod := tree.Text(n)
			if mod == "" {
				continue
			}
			if _, ok := seen[mod]; ok {
				continue
			}
			seen[mod] = struct{}{}
			modules = append(modules, mod)
		}
	}
	return modules, nil
}

// ImportCandidates maps a dotted module path to the relative file paths
// that could define it: the module file and the package init file.
func ImportCandidates(module string, g *parser.Grammar) []string {
	module = strings.Trim(module, ".")
	if module == "" {
		return nil
	}
	base := strings.ReplaceAll(module, ".", "/")
	return []string{
		base + g.ModuleExtension,
		base + "/" + g.PackageInit,
	}
}

// fileIndex answers "which known files end with this path suffix". The
// match is textual: "mod.py" matches "pkg/mod.py" and also "foomod.py".
type fileIndex struct {
	files []string
}

func newFileIndex(files []string) *fileIndex {
	return &fileIndex{files: files}
}

func (ix *fileIndex) match(suffix string) []string {
	var out []string
	for _, f := range ix.files {
		if strings.HasSuffix(f, suffix) {
			out = append(out, f)
		}
	}
	return out
}

// resolveImports returns the known files that src imports, excluding src
// itself, deduplicated and in discovery order.
func resolveImports(tree *parser.Tree, src string, ix *fileIndex) ([]string, error) {
	modules, err := ExtractImports(tree)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var targets []string
	for _, mod := range modules {
		for _, cand := range ImportCandidates(mod, tree.Grammar) {
			for _, f := range ix.match(cand) {
				if f == src {
					continue
				}
				if _, ok := seen[f]; ok {
					continue
				}
				seen[f] = struct{}{}
				targets = append(targets, f)
			}
		}
	}
	return targets, nil
}
