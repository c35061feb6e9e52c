// Package analyzer builds a dependency graph from source files in two
// phases. Phase 1 catalogs every function definition across all files and
// seals the catalog; phase 2 resolves imports and calls against it.
package analyzer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/imyousuf/depgraph/internal/graph"
	"github.com/imyousuf/depgraph/internal/parser"
)

// FileError records a file that could not be analyzed. The run continues
// without it. Phase is the graph phase that failed: a file failing while
// resolving dependencies keeps the file and functions it registered while
// collecting definitions, but contributes no edges and no outline.
type FileError struct {
	Path  string
	Phase graph.Phase
	Err   error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e FileError) Unwrap() error { return e.Err }

// Stats summarizes one analysis run.
type Stats struct {
	FilesAnalyzed       int           `json:"files_analyzed"`
	FilesFailed         int           `json:"files_failed"`
	FilesSkipped        int           `json:"files_skipped"`
	Functions           int           `json:"functions"`
	FileEdges           int           `json:"file_edges"`
	CallEdges           int           `json:"call_edges"`
	AmbiguousCalls      int           `json:"ambiguous_calls"`
	CallNamesResolved   int           `json:"call_names_resolved"`
	CallNamesUnresolved int           `json:"call_names_unresolved"`
	Duration            time.Duration `json:"duration"`
}

// Result is the outcome of Analyze.
type Result struct {
	Graph  *graph.Graph
	Errors []FileError
	// Structures holds one outline per resolved file, ordered by path.
	Structures []graph.FileStructure
	Stats      Stats
}

// Snapshot returns the graph contents with the per-file errors and outlines
// attached.
func (r *Result) Snapshot() *graph.Snapshot {
	snap := r.Graph.Snapshot()
	for _, fe := range r.Errors {
		snap.Errors = append(snap.Errors, graph.FileProblem{
			Path:  fe.Path,
			Error: fe.Err.Error(),
			Phase: fe.Phase.String(),
		})
	}
	snap.Structures = r.Structures
	return snap
}

// Options configures an Analyzer.
type Options struct {
	Workers       int
	Logger        *slog.Logger
	ExtraBuiltins []string
	KeepBuiltins  []string
}

// Option is a functional option for New.
type Option func(*Options)

// WithWorkers sets the number of files processed concurrently in each phase.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithExtraBuiltins adds names that are never resolved as call targets.
func WithExtraBuiltins(names ...string) Option {
	return func(o *Options) { o.ExtraBuiltins = append(o.ExtraBuiltins, names...) }
}

// WithKeptBuiltins removes names from the builtin exclusion list so they
// resolve like any other call.
func WithKeptBuiltins(names ...string) Option {
	return func(o *Options) { o.KeepBuiltins = append(o.KeepBuiltins, names...) }
}

// Analyzer runs the two-phase analysis.
type Analyzer struct {
	registry *parser.Registry
	opts     Options
}

// New creates an Analyzer for the languages in registry.
func New(registry *parser.Registry, opts ...Option) *Analyzer {
	o := Options{Workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Analyzer{registry: registry, opts: o}
}

// fileUnit carries one file through both phases. Its tree and definitions
// are kept from phase 1 so phase 2 does not re-parse.
type fileUnit struct {
	path    string
	grammar *parser.Grammar
	tree    *parser.Tree
	defs    []Definition
	keys    []graph.FunctionKey
	err     error
}

// pendingEdges are the edges one file contributes in phase 2.
type pendingEdges struct {
	imports []string
	calls   []pendingCall
	outline graph.FileStructure
	err     error
}

type pendingCall struct {
	src   graph.FunctionKey
	names []string
}

// AnalyzeDir analyzes paths relative to the directory root.
func (a *Analyzer) AnalyzeDir(ctx context.Context, root string, paths []string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", root)
	}
	return a.Analyze(ctx, os.DirFS(root), paths)
}

// Analyze builds the dependency graph for paths, which are slash-separated
// and relative to fsys. Files that cannot be read or parsed are reported in
// Result.Errors; only context cancellation aborts the run.
func (a *Analyzer) Analyze(ctx context.Context, fsys fs.FS, paths []string) (_ *Result, err error) {
	start := time.Now()
	paths = uniqueSorted(paths)
	log := a.opts.Logger

	ctx, span := startAnalyzeSpan(ctx, len(paths), a.opts.Workers)
	defer span.End()

	res := &Result{Graph: graph.New()}
	defer func() {
		res.Stats.Duration = time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			setAnalyzeSpanResult(span, res.Stats)
		}
		recordAnalyzeMetrics(ctx, res.Stats.Duration, res.Stats, err == nil)
	}()

	units := make([]*fileUnit, len(paths))
	defer func() {
		for _, u := range units {
			if u != nil && u.tree != nil {
				u.tree.Close()
			}
		}
	}()

	// Phase 1: parse and collect definitions in parallel, fold in file order.
	if err := a.forEach(ctx, len(paths), func(i int) {
		units[i] = a.collect(ctx, fsys, paths[i])
	}); err != nil {
		return nil, err
	}

	for _, u := range units {
		if u.grammar == nil {
			res.Stats.FilesSkipped++
			continue
		}
		if u.err != nil {
			log.Warn("skipping file", "path", u.path, "error", u.err)
			res.Errors = append(res.Errors, FileError{Path: u.path, Phase: graph.CollectingDefinitions, Err: u.err})
			continue
		}
		if err := res.Graph.RegisterFile(u.path); err != nil {
			return nil, fmt.Errorf("register %s: %w", u.path, err)
		}
		u.keys = make([]graph.FunctionKey, len(u.defs))
		for i, d := range u.defs {
			key, err := registerDefinition(res.Graph, u.path, d)
			if err != nil {
				return nil, fmt.Errorf("register %s in %s: %w", d.Name, u.path, err)
			}
			u.keys[i] = key
		}
		res.Stats.FilesAnalyzed++
		log.Debug("collected definitions", "path", u.path, "functions", len(u.defs))
	}
	res.Graph.Seal()

	// Phase 2: resolve against the sealed catalog, then apply edges in file order.
	ix := newFileIndex(res.Graph.Files())
	exclusions := make(map[*parser.Grammar]map[string]struct{})
	for _, g := range a.registry.All() {
		exclusions[g] = g.Exclusions(a.opts.ExtraBuiltins, a.opts.KeepBuiltins)
	}

	pending := make([]*pendingEdges, len(units))
	if err := a.forEach(ctx, len(units), func(i int) {
		u := units[i]
		if u.grammar == nil || u.err != nil {
			return
		}
		pending[i] = a.resolve(u, ix, exclusions[u.grammar])
	}); err != nil {
		return nil, err
	}

	for i, p := range pending {
		if p == nil {
			continue
		}
		u := units[i]
		if p.err != nil {
			log.Warn("resolution failed", "path", u.path, "error", p.err)
			res.Errors = append(res.Errors, FileError{Path: u.path, Phase: graph.ResolvingDependencies, Err: p.err})
			continue
		}
		res.Structures = append(res.Structures, p.outline)
		for _, dst := range p.imports {
			if _, err := res.Graph.AddFileEdge(u.path, dst); err != nil {
				return nil, fmt.Errorf("import edge %s -> %s: %w", u.path, dst, err)
			}
		}
		for _, c := range p.calls {
			for _, name := range c.names {
				n, err := res.Graph.AddCallEdge(c.src, name)
				if err != nil {
					return nil, fmt.Errorf("call edge %s -> %s: %w", c.src, name, err)
				}
				if n == 0 {
					res.Stats.CallNamesUnresolved++
				} else {
					res.Stats.CallNamesResolved++
				}
			}
		}
		log.Debug("resolved dependencies", "path", u.path, "imports", len(p.imports), "callers", len(p.calls))
	}

	gs := res.Graph.Stats()
	res.Stats.FilesFailed = len(res.Errors)
	res.Stats.Functions = gs.Functions
	res.Stats.FileEdges = gs.FileEdges
	res.Stats.CallEdges = gs.CallEdges
	res.Stats.AmbiguousCalls = gs.AmbiguousCalls

	log.Info("analysis complete",
		"files", res.Stats.FilesAnalyzed,
		"failed", res.Stats.FilesFailed,
		"functions", res.Stats.Functions,
		"file_edges", res.Stats.FileEdges,
		"call_edges", res.Stats.CallEdges,
		"duration", time.Since(start),
	)
	return res, nil
}

// forEach runs fn for 0..n-1 on at most Workers goroutines, stopping early
// when ctx is cancelled.
func (a *Analyzer) forEach(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *Analyzer) collect(ctx context.Context, fsys fs.FS, path string) *fileUnit {
	u := &fileUnit{path: path}
	g, ok := a.registry.ForPath(path)
	if !ok {
		return u
	}
	u.grammar = g

	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		u.err = fmt.Errorf("read: %w", err)
		return u
	}
	tree, err := g.Parse(ctx, content)
	if err != nil {
		u.err = err
		return u
	}
	u.tree = tree
	defs, err := CollectDefinitions(tree)
	if err != nil {
		u.err = fmt.Errorf("collect definitions: %w", err)
		return u
	}
	u.defs = defs
	return u
}

func (a *Analyzer) resolve(u *fileUnit, ix *fileIndex, exclude map[string]struct{}) *pendingEdges {
	p := &pendingEdges{}
	imports, err := resolveImports(u.tree, u.path, ix)
	if err != nil {
		p.err = fmt.Errorf("resolve imports: %w", err)
		return p
	}
	p.imports = imports

	for i, d := range u.defs {
		names, err := ExtractCalls(u.tree, d, exclude)
		if err != nil {
			p.err = fmt.Errorf("resolve calls in %s: %w", d.Name, err)
			return p
		}
		if len(names) > 0 {
			p.calls = append(p.calls, pendingCall{src: u.keys[i], names: names})
		}
	}

	outline, err := Outline(u.tree, u.path, exclude)
	if err != nil {
		p.err = fmt.Errorf("outline: %w", err)
		return p
	}
	p.outline = outline
	return p
}

func registerDefinition(g *graph.Graph, path string, d Definition) (graph.FunctionKey, error) {
	if d.Class != "" {
		return g.RegisterMethod(d.Name, d.Class, path, d.Line)
	}
	return g.RegisterFunction(d.Name, path, d.Line)
}

func uniqueSorted(paths []string) []string {
	out := slices.Clone(paths)
	slices.Sort(out)
	return slices.Compact(out)
}
