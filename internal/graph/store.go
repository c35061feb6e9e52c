package graph

import (
	"context"
	"fmt"
	"time"
)

// Direction specifies the traversal direction for edge queries.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// NodeFilter specifies criteria for querying nodes.
type NodeFilter struct {
	Type        NodeType
	FilePath    string
	Name        string
	NamePattern string // glob pattern matched against Name
}

// SnapshotInfo describes the analysis run a persisted snapshot came from.
type SnapshotInfo struct {
	RunID     string    `json:"run_id"`
	Root      string    `json:"root"`
	CreatedAt time.Time `json:"created_at"`
	Commit    string    `json:"commit,omitempty"` // HEAD at analysis time, if the root is a git work tree
	Stats     Stats     `json:"stats"`
	Errors    int       `json:"errors"`
}

// Store persists one exported snapshot and answers neighbor queries over it.
type Store interface {
	// AddNode inserts or replaces a node.
	AddNode(ctx context.Context, node *Node) error

	// GetNode retrieves a single node by ID.
	GetNode(ctx context.Context, id string) (*Node, error)

	// QueryNodes returns all nodes matching the given filter.
	QueryNodes(ctx context.Context, filter NodeFilter) ([]*Node, error)

	// AddEdge inserts or replaces an edge.
	AddEdge(ctx context.Context, edge *Edge) error

	// GetEdges returns edges connected to nodeID with the given type.
	// If edgeType is empty, all edge types are returned.
	GetEdges(ctx context.Context, nodeID string, edgeType EdgeType) ([]*Edge, error)

	// QueryEdges returns every edge of the given type, or all edges if empty.
	QueryEdges(ctx context.Context, edgeType EdgeType) ([]*Edge, error)

	// GetNeighbors returns nodes connected to nodeID via edges of the given type
	// in the specified direction. If edgeType is empty, all edge types are traversed.
	GetNeighbors(ctx context.Context, nodeID string, edgeType EdgeType, direction Direction) ([]*Node, error)

	// SaveInfo records the metadata of the stored snapshot.
	SaveInfo(ctx context.Context, info SnapshotInfo) error

	// LoadInfo returns the metadata of the stored snapshot.
	LoadInfo(ctx context.Context) (*SnapshotInfo, error)

	// Stats returns aggregate statistics about the stored graph.
	Stats(ctx context.Context) (*GraphStats, error)

	// Clear drops everything in the store.
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Persist replaces the contents of store with snap.
func Persist(ctx context.Context, store Store, snap *Snapshot, info SnapshotInfo) error {
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	nodes, edges := snap.GraphData()
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := store.AddNode(ctx, n); err != nil {
			return fmt.Errorf("add node %s: %w", n.QualifiedName, err)
		}
	}
	for _, e := range edges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := store.AddEdge(ctx, e); err != nil {
			return fmt.Errorf("add edge %s: %w", e.ID, err)
		}
	}
	info.Stats = snap.Stats
	info.Errors = len(snap.Errors)
	if err := store.SaveInfo(ctx, info); err != nil {
		return fmt.Errorf("save snapshot info: %w", err)
	}
	return nil
}

// LoadSnapshot reads the stored snapshot back out of store.
func LoadSnapshot(ctx context.Context, store Store) (*Snapshot, error) {
	nodes, err := store.QueryNodes(ctx, NodeFilter{})
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	edges, err := store.QueryEdges(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	return SnapshotFromGraphData(nodes, edges)
}
