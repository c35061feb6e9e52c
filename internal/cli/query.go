package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imyousuf/depgraph/internal/graph"
)

// queryFlags are shared by every query subcommand.
type queryFlags struct {
	root    string
	dbPath  string
	jsonOut bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.root, "root", "", "repository root (default from config)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "snapshot store path (default .depgraph/graph.db)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "output as JSON")
}

// withStore opens the snapshot store named by the flags and config, runs fn, and closes it.
func (f *queryFlags) withStore(fn func(graph.Store) error) error {
	cfg, root, err := loadConfig(f.root)
	if err != nil {
		return err
	}
	store, err := openStore(dbPathFor(cfg, root, f.dbPath))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// link is one neighbor of a queried node and the edge that reaches it.
type link struct {
	Node       *graph.Node `json:"node"`
	Candidates int         `json:"candidates,omitempty"`
}

func newQueryCmd() *cobra.Command {
	var (
		flags       queryFlags
		nodeType    string
		namePattern string
		filePath    string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the stored dependency graph",
		Long: `Query the snapshot written by the last 'analyze' or 'watch' run.

Without a subcommand, lists nodes matching the filters. Functions are
addressed as "path::name" or by bare name, which matches every function
with that name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withStore(func(store graph.Store) error {
				filter := graph.NodeFilter{
					Type:        graph.NodeType(nodeType),
					NamePattern: namePattern,
					FilePath:    filePath,
				}
				nodes, err := store.QueryNodes(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("query nodes: %w", err)
				}
				sortNodes(nodes)
				if flags.jsonOut {
					return writeJSON(cmd.OutOrStdout(), nodes)
				}
				printNodes(cmd.OutOrStdout(), nodes)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&nodeType, "type", "", "filter by node type (File or Function)")
	cmd.Flags().StringVar(&namePattern, "name", "", "filter by name pattern (glob)")
	cmd.Flags().StringVar(&filePath, "file", "", "filter by file path")

	cmd.AddCommand(newQueryNeighborsCmd("calls", "Functions called by a function", graph.EdgeCalls, graph.Outgoing))
	cmd.AddCommand(newQueryNeighborsCmd("callers", "Functions that call a function", graph.EdgeCalls, graph.Incoming))
	cmd.AddCommand(newQueryNeighborsCmd("imports", "Files imported by a file", graph.EdgeImports, graph.Outgoing))
	cmd.AddCommand(newQueryNeighborsCmd("importers", "Files that import a file", graph.EdgeImports, graph.Incoming))
	cmd.AddCommand(newQueryFunctionsCmd())
	cmd.AddCommand(newQueryUnusedCmd())

	return cmd
}

func newQueryNeighborsCmd(use, short string, edgeType graph.EdgeType, dir graph.Direction) *cobra.Command {
	var flags queryFlags
	arg := "<function>"
	if edgeType == graph.EdgeImports {
		arg = "<file>"
	}

	cmd := &cobra.Command{
		Use:   use + " " + arg,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withStore(func(store graph.Store) error {
				ctx := cmd.Context()
				var targets []*graph.Node
				var err error
				if edgeType == graph.EdgeImports {
					targets, err = resolveFile(ctx, store, args[0])
				} else {
					targets, err = resolveFunctions(ctx, store, args[0])
				}
				if err != nil {
					return err
				}
				if len(targets) == 0 {
					return fmt.Errorf("%q not found in the stored graph", args[0])
				}

				result := make(map[string][]link, len(targets))
				for _, t := range targets {
					links, err := neighbors(ctx, store, t.ID, edgeType, dir)
					if err != nil {
						return err
					}
					result[t.QualifiedName] = links
				}

				if flags.jsonOut {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				out := cmd.OutOrStdout()
				for _, t := range targets {
					links := result[t.QualifiedName]
					fmt.Fprintf(out, "%s (%d)\n", t.QualifiedName, len(links))
					for _, l := range links {
						fmt.Fprintf(out, "  %s%s\n", l.Node.QualifiedName, candidatesNote(l.Candidates))
					}
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newQueryFunctionsCmd() *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "functions <file>",
		Short: "List the functions defined in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withStore(func(store graph.Store) error {
				nodes, err := store.QueryNodes(cmd.Context(), graph.NodeFilter{
					Type:     graph.NodeFunction,
					FilePath: normalizePath(args[0]),
				})
				if err != nil {
					return fmt.Errorf("query nodes: %w", err)
				}
				sortNodes(nodes)
				if flags.jsonOut {
					return writeJSON(cmd.OutOrStdout(), nodes)
				}
				printNodes(cmd.OutOrStdout(), nodes)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newQueryUnusedCmd() *cobra.Command {
	var (
		flags         queryFlags
		includeTests  bool
		includeDunder bool
	)

	cmd := &cobra.Command{
		Use:   "unused",
		Short: "Find functions with no incoming calls",
		Long: `Find functions that no analyzed function calls.

Only calls between analyzed files count, so entry points, callbacks and
functions used from outside the repository are reported too. By default
"main", dunder methods and test functions are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withStore(func(store graph.Store) error {
				unused, err := findUnused(cmd.Context(), store, unusedOptions{
					includeTests:  includeTests,
					includeDunder: includeDunder,
				})
				if err != nil {
					return err
				}
				if flags.jsonOut {
					return writeJSON(cmd.OutOrStdout(), unused)
				}
				out := cmd.OutOrStdout()
				if len(unused) == 0 {
					fmt.Fprintln(out, "No unused functions found.")
					return nil
				}
				printNodes(out, unused)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&includeTests, "include-tests", false, "include functions defined in test files")
	cmd.Flags().BoolVar(&includeDunder, "include-dunder", false, "include __dunder__ methods")
	return cmd
}

// resolveFunctions finds the function nodes named by target, which is either
// a composite "path::name" key or a bare name.
func resolveFunctions(ctx context.Context, store graph.Store, target string) ([]*graph.Node, error) {
	if strings.Contains(target, graph.KeySeparator) {
		key, err := graph.ParseFunctionKey(target)
		if err != nil {
			return nil, err
		}
		key.File = normalizePath(key.File)
		n, err := store.GetNode(ctx, graph.FunctionNodeID(key))
		if err != nil {
			return nil, nil
		}
		return []*graph.Node{n}, nil
	}
	nodes, err := store.QueryNodes(ctx, graph.NodeFilter{Type: graph.NodeFunction, Name: target})
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	sortNodes(nodes)
	return nodes, nil
}

func resolveFile(ctx context.Context, store graph.Store, target string) ([]*graph.Node, error) {
	n, err := store.GetNode(ctx, graph.FileNodeID(normalizePath(target)))
	if err != nil {
		return nil, nil
	}
	return []*graph.Node{n}, nil
}

// neighbors returns the nodes one edgeType edge away from nodeID, sorted by
// qualified name.
func neighbors(ctx context.Context, store graph.Store, nodeID string, edgeType graph.EdgeType, dir graph.Direction) ([]link, error) {
	edges, err := store.GetEdges(ctx, nodeID, edgeType)
	if err != nil {
		return nil, fmt.Errorf("get edges: %w", err)
	}
	var links []link
	for _, e := range edges {
		var other string
		switch {
		case dir == graph.Outgoing && e.SourceID == nodeID:
			other = e.TargetID
		case dir == graph.Incoming && e.TargetID == nodeID:
			other = e.SourceID
		default:
			continue
		}
		n, err := store.GetNode(ctx, other)
		if err != nil {
			continue
		}
		candidates, _ := strconv.Atoi(e.Properties[graph.PropCandidates])
		links = append(links, link{Node: n, Candidates: candidates})
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].Node.QualifiedName < links[j].Node.QualifiedName
	})
	return links, nil
}

type unusedOptions struct {
	includeTests  bool
	includeDunder bool
}

// findUnused returns function nodes with no incoming Calls edge.
func findUnused(ctx context.Context, store graph.Store, opts unusedOptions) ([]*graph.Node, error) {
	funcs, err := store.QueryNodes(ctx, graph.NodeFilter{Type: graph.NodeFunction})
	if err != nil {
		return nil, fmt.Errorf("query functions: %w", err)
	}
	calls, err := store.QueryEdges(ctx, graph.EdgeCalls)
	if err != nil {
		return nil, fmt.Errorf("query call edges: %w", err)
	}
	called := make(map[string]struct{}, len(calls))
	for _, e := range calls {
		called[e.TargetID] = struct{}{}
	}

	var unused []*graph.Node
	for _, n := range funcs {
		if _, ok := called[n.ID]; ok {
			continue
		}
		if shouldSkipForUnused(n, opts) {
			continue
		}
		unused = append(unused, n)
	}
	sortNodes(unused)
	return unused, nil
}

func shouldSkipForUnused(n *graph.Node, opts unusedOptions) bool {
	if n.Name == "main" {
		return true
	}
	if !opts.includeDunder && isDunder(n.Name) {
		return true
	}
	if !opts.includeTests && (isTestFileByPath(n.FilePath) || isTestFuncByName(n.Name)) {
		return true
	}
	return false
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// isTestFileByPath matches pytest's default discovery patterns and conftest.py.
func isTestFileByPath(p string) bool {
	base := path.Base(p)
	if base == "conftest.py" {
		return true
	}
	name := strings.TrimSuffix(base, path.Ext(base))
	if strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test") {
		return true
	}
	for _, dir := range strings.Split(path.Dir(p), "/") {
		if dir == "tests" || dir == "test" {
			return true
		}
	}
	return false
}

func isTestFuncByName(name string) bool {
	return strings.HasPrefix(name, "test_") || name == "setUp" || name == "tearDown"
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean(strings.TrimPrefix(p, "./"))
}

func sortNodes(nodes []*graph.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].FilePath != nodes[j].FilePath {
			return nodes[i].FilePath < nodes[j].FilePath
		}
		if nodes[i].Line != nodes[j].Line {
			return nodes[i].Line < nodes[j].Line
		}
		return nodes[i].Name < nodes[j].Name
	})
}

func printNodes(out io.Writer, nodes []*graph.Node) {
	if len(nodes) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}
	fmt.Fprintf(out, "%-10s  %-30s  %s\n", "Type", "Name", "Location")
	fmt.Fprintf(out, "%-10s  %-30s  %s\n", "----------", "------------------------------", "--------")
	for _, n := range nodes {
		loc := n.FilePath
		if n.Line > 0 {
			loc = fmt.Sprintf("%s:%d", n.FilePath, n.Line)
		}
		fmt.Fprintf(out, "%-10s  %-30s  %s\n", n.Type, n.Name, loc)
	}
	fmt.Fprintf(out, "\n%d result(s)\n", len(nodes))
}

func candidatesNote(n int) string {
	if n > 1 {
		return fmt.Sprintf("  (ambiguous, %d candidates)", n)
	}
	return ""
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
