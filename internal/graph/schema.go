package graph

import (
	"crypto/sha256"
	"fmt"
)

// NodeType represents the kind of entity stored in a snapshot.
type NodeType string

const (
	NodeFile     NodeType = "File"
	NodeFunction NodeType = "Function"
)

// EdgeType represents a relationship between two nodes.
type EdgeType string

const (
	EdgeImports EdgeType = "Imports"
	EdgeCalls   EdgeType = "Calls"
)

// Property keys carried on persisted nodes and edges.
const (
	PropSites      = "sites"
	PropClasses    = "classes"
	PropCandidates = "candidates"
	PropLanguage   = "language"
)

// Node is the persisted form of a file or function.
type Node struct {
	ID            string            `json:"id"`
	Type          NodeType          `json:"type"`
	Name          string            `json:"name"`
	QualifiedName string            `json:"qualified_name"`
	FilePath      string            `json:"file_path"`
	Line          int               `json:"line"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// Edge is the persisted form of an import or call edge.
type Edge struct {
	ID         string            `json:"id"`
	Type       EdgeType          `json:"type"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Properties map[string]string `json:"properties,omitempty"`
}

// GraphStats holds aggregate statistics about a persisted snapshot.
type GraphStats struct {
	NodeCount   int64              `json:"node_count"`
	EdgeCount   int64              `json:"edge_count"`
	NodesByType map[NodeType]int64 `json:"nodes_by_type"`
	EdgesByType map[EdgeType]int64 `json:"edges_by_type"`
}

// NewNodeID generates a deterministic node ID from the type, file path, and name.
// The ID is a hex-encoded SHA-256 hash prefix to keep keys compact.
func NewNodeID(nodeType NodeType, filePath, name string) string {
	raw := fmt.Sprintf("%s:%s:%s", nodeType, filePath, name)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:12])
}

// FileNodeID returns the node ID of a file.
func FileNodeID(path string) string { return NewNodeID(NodeFile, path, path) }

// FunctionNodeID returns the node ID of a function.
func FunctionNodeID(key FunctionKey) string { return NewNodeID(NodeFunction, key.File, key.Name) }

// NewEdgeID derives an edge ID from its endpoints and type.
func NewEdgeID(edgeType EdgeType, sourceID, targetID string) string {
	h := sha256.Sum256([]byte(string(edgeType) + ":" + sourceID + ":" + targetID))
	return fmt.Sprintf("%x", h[:12])
}
