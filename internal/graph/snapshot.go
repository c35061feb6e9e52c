package graph

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// FileProblem is a per-file failure carried alongside a snapshot.
type FileProblem struct {
	Path  string `json:"path"`
	Error string `json:"error"`
	// Phase names the analysis phase that failed. A file that fails while
	// resolving dependencies keeps its files and functions in the snapshot.
	Phase string `json:"phase,omitempty"`
}

// Snapshot is an immutable, sorted view of a Graph suitable for export and
// persistence.
type Snapshot struct {
	Files     []string      `json:"files"`
	Functions []Function    `json:"functions"`
	FileEdges []FileEdge    `json:"file_edges"`
	CallEdges []CallEdge    `json:"call_edges"`
	Errors    []FileProblem `json:"errors"`
	Stats     Stats         `json:"stats"`
	// Structures is the per-file outline of the analysis run. It is not
	// persisted and is only written by the structures format.
	Structures []FileStructure `json:"-"`
}

// Snapshot captures the current contents of g.
func (g *Graph) Snapshot() *Snapshot {
	return &Snapshot{
		Files:     g.Files(),
		Functions: g.Functions(),
		FileEdges: g.FileEdges(),
		CallEdges: g.CallEdges(),
		Errors:    []FileProblem{},
		Stats:     g.Stats(),
	}
}

// GraphData converts the snapshot into persisted nodes and edges.
func (s *Snapshot) GraphData() ([]*Node, []*Edge) {
	nodes := make([]*Node, 0, len(s.Files)+len(s.Functions))
	for _, f := range s.Files {
		nodes = append(nodes, &Node{
			ID:            FileNodeID(f),
			Type:          NodeFile,
			Name:          f,
			QualifiedName: f,
			FilePath:      f,
		})
	}
	for _, fn := range s.Functions {
		props := map[string]string{PropSites: strconv.Itoa(fn.Sites)}
		if len(fn.Classes) > 0 {
			props[PropClasses] = strings.Join(fn.Classes, ",")
		}
		nodes = append(nodes, &Node{
			ID:            FunctionNodeID(fn.Key),
			Type:          NodeFunction,
			Name:          fn.Key.Name,
			QualifiedName: fn.Key.String(),
			FilePath:      fn.Key.File,
			Line:          fn.Line,
			Properties:    props,
		})
	}

	edges := make([]*Edge, 0, len(s.FileEdges)+len(s.CallEdges))
	for _, e := range s.FileEdges {
		src, dst := FileNodeID(e.Source), FileNodeID(e.Target)
		edges = append(edges, &Edge{
			ID:       NewEdgeID(EdgeImports, src, dst),
			Type:     EdgeImports,
			SourceID: src,
			TargetID: dst,
		})
	}
	for _, e := range s.CallEdges {
		src, dst := FunctionNodeID(e.Source), FunctionNodeID(e.Target)
		edges = append(edges, &Edge{
			ID:         NewEdgeID(EdgeCalls, src, dst),
			Type:       EdgeCalls,
			SourceID:   src,
			TargetID:   dst,
			Properties: map[string]string{PropCandidates: strconv.Itoa(e.Candidates)},
		})
	}
	return nodes, edges
}

// SnapshotFromGraphData rebuilds a snapshot from persisted nodes and edges.
// Edges whose endpoints are missing from nodes are dropped.
func SnapshotFromGraphData(nodes []*Node, edges []*Edge) (*Snapshot, error) {
	s := &Snapshot{Errors: []FileProblem{}}
	files := make(map[string]string)
	funcs := make(map[string]FunctionKey)

	for _, n := range nodes {
		switch n.Type {
		case NodeFile:
			files[n.ID] = n.FilePath
			s.Files = append(s.Files, n.FilePath)
		case NodeFunction:
			key, err := ParseFunctionKey(n.QualifiedName)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", n.ID, err)
			}
			funcs[n.ID] = key
			sites := 1
			if v, ok := n.Properties[PropSites]; ok {
				if sites, err = strconv.Atoi(v); err != nil {
					return nil, fmt.Errorf("node %s: bad sites %q: %w", n.ID, v, err)
				}
			}
			var classes []string
			if v := n.Properties[PropClasses]; v != "" {
				classes = strings.Split(v, ",")
			}
			s.Functions = append(s.Functions, Function{Key: key, Line: n.Line, Sites: sites, Classes: classes})
		}
	}

	for _, e := range edges {
		switch e.Type {
		case EdgeImports:
			src, ok1 := files[e.SourceID]
			dst, ok2 := files[e.TargetID]
			if ok1 && ok2 {
				s.FileEdges = append(s.FileEdges, FileEdge{Source: src, Target: dst})
			}
		case EdgeCalls:
			src, ok1 := funcs[e.SourceID]
			dst, ok2 := funcs[e.TargetID]
			if !ok1 || !ok2 {
				continue
			}
			n := 1
			if v, ok := e.Properties[PropCandidates]; ok {
				var err error
				if n, err = strconv.Atoi(v); err != nil {
					return nil, fmt.Errorf("edge %s: bad candidates %q: %w", e.ID, v, err)
				}
			}
			s.CallEdges = append(s.CallEdges, CallEdge{Source: src, Target: dst, Candidates: n})
		}
	}

	s.sort()
	s.Stats = s.computeStats()
	return s, nil
}

func (s *Snapshot) sort() {
	slices.Sort(s.Files)
	slices.SortFunc(s.Functions, func(a, b Function) int { return compareKeys(a.Key, b.Key) })
	slices.SortFunc(s.FileEdges, func(a, b FileEdge) int {
		if a.Source != b.Source {
			if a.Source < b.Source {
				return -1
			}
			return 1
		}
		switch {
		case a.Target < b.Target:
			return -1
		case a.Target > b.Target:
			return 1
		}
		return 0
	})
	slices.SortFunc(s.CallEdges, func(a, b CallEdge) int {
		if c := compareKeys(a.Source, b.Source); c != 0 {
			return c
		}
		return compareKeys(a.Target, b.Target)
	})
}

func (s *Snapshot) computeStats() Stats {
	st := Stats{
		Files:     len(s.Files),
		Functions: len(s.Functions),
		FileEdges: len(s.FileEdges),
		CallEdges: len(s.CallEdges),
	}
	for _, e := range s.CallEdges {
		if e.Ambiguous() {
			st.AmbiguousCalls++
		}
	}
	return st
}
