package graph

import (
	"errors"
	"slices"
	"sync"
)

// Phase is the lifecycle stage of a Graph.
type Phase int

const (
	// CollectingDefinitions accepts files and functions; edges are rejected.
	CollectingDefinitions Phase = iota
	// ResolvingDependencies accepts edges; the catalog is read-only.
	ResolvingDependencies
)

func (p Phase) String() string {
	switch p {
	case CollectingDefinitions:
		return "collecting-definitions"
	case ResolvingDependencies:
		return "resolving-dependencies"
	default:
		return "unknown"
	}
}

var (
	// ErrCatalogSealed is returned when a file or function is registered after Seal.
	ErrCatalogSealed = errors.New("graph: catalog is sealed")
	// ErrNotResolving is returned when an edge is added before Seal.
	ErrNotResolving = errors.New("graph: edges can only be added after the catalog is sealed")
	// ErrEmptyName is returned for an empty function name.
	ErrEmptyName = errors.New("graph: empty function name")
	// ErrEmptyPath is returned for an empty file path.
	ErrEmptyPath = errors.New("graph: empty file path")
)

// Function is one entry of the function table.
type Function struct {
	Key FunctionKey `json:"key"`
	// Line is the 1-based line of the first definition site.
	Line int `json:"line"`
	// Sites counts the definitions in the same file sharing this key.
	Sites int `json:"sites"`
	// Classes lists, sorted, the classes that define a method under this key.
	Classes []string `json:"classes,omitempty"`
}

// FileEdge records that Source imports Target.
type FileEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// CallEdge records that Source may call Target. Candidates is the number of
// functions the textual name resolved to when the edge was created; a value
// above one marks an over-approximated edge.
type CallEdge struct {
	Source     FunctionKey `json:"source"`
	Target     FunctionKey `json:"target"`
	Candidates int         `json:"candidates"`
}

// Ambiguous reports whether the edge is one of several candidates.
func (e CallEdge) Ambiguous() bool { return e.Candidates > 1 }

// Stats summarizes a Graph.
type Stats struct {
	Files          int `json:"files"`
	Functions      int `json:"functions"`
	FileEdges      int `json:"file_edges"`
	CallEdges      int `json:"call_edges"`
	AmbiguousCalls int `json:"ambiguous_calls"`
}

// Graph is the in-memory dependency graph built by a two-phase analysis. It
// starts in CollectingDefinitions, where files and functions are cataloged,
// and moves to ResolvingDependencies on Seal, after which only edges can be
// added. All methods are safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	phase Phase

	files     map[string]struct{}
	functions map[FunctionKey]*Function
	byFile    map[string]map[FunctionKey]struct{}
	nameIndex map[string]map[FunctionKey]struct{}

	fileEdges map[string]map[string]struct{}
	callEdges map[FunctionKey]map[FunctionKey]int
}

// New returns an empty Graph in the CollectingDefinitions phase.
func New() *Graph {
	return &Graph{
		files:     make(map[string]struct{}),
		functions: make(map[FunctionKey]*Function),
		byFile:    make(map[string]map[FunctionKey]struct{}),
		nameIndex: make(map[string]map[FunctionKey]struct{}),
		fileEdges: make(map[string]map[string]struct{}),
		callEdges: make(map[FunctionKey]map[FunctionKey]int),
	}
}

// Phase returns the current phase.
func (g *Graph) Phase() Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.phase
}

// RegisterFile adds path to the file set. Registering a known path is a no-op.
func (g *Graph) RegisterFile(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != CollectingDefinitions {
		return ErrCatalogSealed
	}
	g.files[path] = struct{}{}
	return nil
}

// RegisterFunction catalogs localName as defined in filePath at line and
// returns its key. The file is registered as a side effect. Registering the
// same key again only bumps its site count.
func (g *Graph) RegisterFunction(localName, filePath string, line int) (FunctionKey, error) {
	return g.register(localName, "", filePath, line)
}

// RegisterMethod is RegisterFunction for a definition inside class. The key
// is still the file and local name; the class is recorded on the entry.
func (g *Graph) RegisterMethod(localName, class, filePath string, line int) (FunctionKey, error) {
	return g.register(localName, class, filePath, line)
}

func (g *Graph) register(localName, class, filePath string, line int) (FunctionKey, error) {
	if localName == "" {
		return FunctionKey{}, ErrEmptyName
	}
	if filePath == "" {
		return FunctionKey{}, ErrEmptyPath
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != CollectingDefinitions {
		return FunctionKey{}, ErrCatalogSealed
	}

	g.files[filePath] = struct{}{}
	key := NewFunctionKey(localName, filePath)
	if fn, ok := g.functions[key]; ok {
		fn.Sites++
		if line > 0 && (fn.Line == 0 || line < fn.Line) {
			fn.Line = line
		}
		fn.addClass(class)
		return key, nil
	}

	fn := &Function{Key: key, Line: line, Sites: 1}
	fn.addClass(class)
	g.functions[key] = fn
	addToSet(g.byFile, filePath, key)
	addToSet(g.nameIndex, localName, key)
	return key, nil
}

func (fn *Function) addClass(class string) {
	if class == "" {
		return
	}
	i, found := slices.BinarySearch(fn.Classes, class)
	if !found {
		fn.Classes = slices.Insert(fn.Classes, i, class)
	}
}

// Seal ends the collecting phase. Calling it again has no effect.
func (g *Graph) Seal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = ResolvingDependencies
}

// AddFileEdge records that src imports dst. Unknown files and self-imports
// are ignored; the returned bool reports whether the edge now exists.
func (g *Graph) AddFileEdge(src, dst string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != ResolvingDependencies {
		return false, ErrNotResolving
	}
	if src == dst {
		return false, nil
	}
	if _, ok := g.files[src]; !ok {
		return false, nil
	}
	if _, ok := g.files[dst]; !ok {
		return false, nil
	}
	addToSet(g.fileEdges, src, dst)
	return true, nil
}

// AddCallEdge links src to every function whose local name is name and
// returns the number of candidates linked. An unknown source or name yields
// zero edges and no error.
func (g *Graph) AddCallEdge(src FunctionKey, name string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != ResolvingDependencies {
		return 0, ErrNotResolving
	}
	if _, ok := g.functions[src]; !ok {
		return 0, nil
	}
	targets := g.nameIndex[name]
	if len(targets) == 0 {
		return 0, nil
	}

	out, ok := g.callEdges[src]
	if !ok {
		out = make(map[FunctionKey]int, len(targets))
		g.callEdges[src] = out
	}
	n := len(targets)
	for dst := range targets {
		if prev, ok := out[dst]; ok && prev <= n {
			continue
		}
		out[dst] = n
	}
	return n, nil
}

func (fn *Function) clone() Function {
	out := *fn
	out.Classes = slices.Clone(fn.Classes)
	return out
}

// HasFile reports whether path is registered.
func (g *Graph) HasFile(path string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.files[path]
	return ok
}

// Function returns the table entry for key.
func (g *Graph) Function(key FunctionKey) (Function, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn, ok := g.functions[key]
	if !ok {
		return Function{}, false
	}
	return fn.clone(), true
}

// Files returns all registered files, sorted.
func (g *Graph) Files() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedStrings(g.files)
}

// Functions returns the function table sorted by key.
func (g *Graph) Functions() []Function {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Function, 0, len(g.functions))
	for _, fn := range g.functions {
		out = append(out, fn.clone())
	}
	slices.SortFunc(out, func(a, b Function) int { return compareKeys(a.Key, b.Key) })
	return out
}

// Lookup returns the keys registered under a local name, sorted.
func (g *Graph) Lookup(name string) []FunctionKey {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.nameIndex[name])
}

// FunctionsIn returns the keys defined in path, sorted.
func (g *Graph) FunctionsIn(path string) []FunctionKey {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.byFile[path])
}

// FileEdges returns all import edges sorted by source then target.
func (g *Graph) FileEdges() []FileEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []FileEdge
	for _, src := range sortedStrings(g.fileEdges) {
		for _, dst := range sortedStrings(g.fileEdges[src]) {
			out = append(out, FileEdge{Source: src, Target: dst})
		}
	}
	return out
}

// CallEdges returns all call edges sorted by source then target.
func (g *Graph) CallEdges() []CallEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []CallEdge
	for src, targets := range g.callEdges {
		for dst, n := range targets {
			out = append(out, CallEdge{Source: src, Target: dst, Candidates: n})
		}
	}
	slices.SortFunc(out, func(a, b CallEdge) int {
		if c := compareKeys(a.Source, b.Source); c != 0 {
			return c
		}
		return compareKeys(a.Target, b.Target)
	})
	return out
}

// Stats returns entity and edge counts.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Stats{Files: len(g.files), Functions: len(g.functions)}
	for _, targets := range g.fileEdges {
		s.FileEdges += len(targets)
	}
	for _, targets := range g.callEdges {
		s.CallEdges += len(targets)
		for _, n := range targets {
			if n > 1 {
				s.AmbiguousCalls++
			}
		}
	}
	return s
}

func addToSet[K comparable, V comparable](m map[K]map[V]struct{}, k K, v V) {
	set, ok := m[k]
	if !ok {
		set = make(map[V]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func sortedStrings[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func sortedKeys(set map[FunctionKey]struct{}) []FunctionKey {
	out := make([]FunctionKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.SortFunc(out, compareKeys)
	return out
}

func compareKeys(a, b FunctionKey) int {
	if a.File != b.File {
		if a.File < b.File {
			return -1
		}
		return 1
	}
	switch {
	case a.Name < b.Name:
		return -1
	case a.Name > b.Name:
		return 1
	}
	return 0
}
