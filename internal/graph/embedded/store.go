package embedded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/imyousuf/depgraph/internal/graph"
)

// Key prefixes for the BadgerDB key scheme.
const (
	prefixNode           = "n:"
	prefixEdge           = "e:"
	prefixIdxType        = "idx:type:"
	prefixIdxFile        = "idx:file:"
	prefixIdxName        = "idx:name:"
	prefixIdxEdge        = "idx:edge:"
	prefixIdxReverseEdge = "idx:redge:"
	keyInfo              = "meta:info"
)

// ErrNoSnapshot is returned by LoadInfo when nothing has been persisted yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Store implements graph.Store on top of BadgerDB. It holds one snapshot at
// a time; graph.Persist clears it before writing.
type Store struct {
	db *badger.DB
}

var _ graph.Store = (*Store)(nil)

// NewStore opens (or creates) a BadgerDB-backed snapshot store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // suppress badger logs
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// NewInMemoryStore opens a store that lives only in memory.
func NewInMemoryStore() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger db: %w", err)
	}
	return &Store{db: db}, nil
}

func nodeKey(id string) []byte { return []byte(prefixNode + id) }

func edgeKey(id string) []byte { return []byte(prefixEdge + id) }

func indexTypeKey(nodeType graph.NodeType, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixIdxType, nodeType, id))
}

// File paths and names may contain ':', so a NUL byte ends them before the
// ID segment.
func indexFileKey(filePath, id string) []byte {
	return []byte(prefixIdxFile + filePath + "\x00" + id)
}

func indexNameKey(name, id string) []byte {
	return []byte(prefixIdxName + name + "\x00" + id)
}

func indexEdgeKey(sourceID string, edgeType graph.EdgeType, edgeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixIdxEdge, sourceID, edgeType, edgeID))
}

func indexReverseEdgeKey(targetID string, edgeType graph.EdgeType, edgeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixIdxReverseEdge, targetID, edgeType, edgeID))
}

func (s *Store) AddNode(_ context.Context, node *graph.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(nodeKey(node.ID), data); err != nil {
			return err
		}
		if err := txn.Set(indexTypeKey(node.Type, node.ID), nil); err != nil {
			return err
		}
		if node.FilePath != "" {
			if err := txn.Set(indexFileKey(node.FilePath, node.ID), nil); err != nil {
				return err
			}
		}
		if node.Name != "" {
			if err := txn.Set(indexNameKey(node.Name, node.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetNode(_ context.Context, id string) (*graph.Node, error) {
	var node *graph.Node
	err := s.db.View(func(txn *badger.Txn) error {
		n, err := getNodeInTxn(txn, id)
		node = n
		return err
	})
	return node, err
}

func getNodeInTxn(txn *badger.Txn, id string) (*graph.Node, error) {
	item, err := txn.Get(nodeKey(id))
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	var node graph.Node
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal node %s: %w", id, err)
	}
	return &node, nil
}

func (s *Store) QueryNodes(_ context.Context, filter graph.NodeFilter) ([]*graph.Node, error) {
	var results []*graph.Node
	err := s.db.View(func(txn *badger.Txn) error {
		var ids []string
		switch {
		case filter.Name != "":
			ids = scanIndexSuffix(txn, []byte(prefixIdxName+filter.Name+"\x00"))
		case filter.FilePath != "":
			ids = scanIndexSuffix(txn, []byte(prefixIdxFile+filter.FilePath+"\x00"))
		case filter.Type != "":
			ids = scanIndexPrefix(txn, []byte(fmt.Sprintf("%s%s:", prefixIdxType, filter.Type)))
		default:
			return scanAllNodes(txn, func(node *graph.Node) bool {
				if matchesFilter(node, filter) {
					results = append(results, node)
				}
				return true
			})
		}
		for _, id := range ids {
			node, err := getNodeInTxn(txn, id)
			if err != nil {
				continue // index entry for a missing node
			}
			if matchesFilter(node, filter) {
				results = append(results, node)
			}
		}
		return nil
	})
	return results, err
}

func (s *Store) AddEdge(_ context.Context, edge *graph.Edge) error {
	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("marshal edge: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(edgeKey(edge.ID), data); err != nil {
			return err
		}
		if err := txn.Set(indexEdgeKey(edge.SourceID, edge.Type, edge.ID), nil); err != nil {
			return err
		}
		return txn.Set(indexReverseEdgeKey(edge.TargetID, edge.Type, edge.ID), nil)
	})
}

func (s *Store) GetEdges(_ context.Context, nodeID string, edgeType graph.EdgeType) ([]*graph.Edge, error) {
	seen := make(map[string]struct{})
	var results []*graph.Edge
	err := s.db.View(func(txn *badger.Txn) error {
		fwd := scanIndexPrefix(txn, buildEdgeIndexPrefix(prefixIdxEdge, nodeID, edgeType))
		rev := scanIndexPrefix(txn, buildEdgeIndexPrefix(prefixIdxReverseEdge, nodeID, edgeType))
		for _, eid := range append(fwd, rev...) {
			if _, ok := seen[eid]; ok {
				continue
			}
			seen[eid] = struct{}{}
			e, err := getEdgeInTxn(txn, eid)
			if err != nil {
				continue
			}
			results = append(results, e)
		}
		return nil
	})
	return results, err
}

func (s *Store) QueryEdges(_ context.Context, edgeType graph.EdgeType) ([]*graph.Edge, error) {
	var results []*graph.Edge
	err := s.db.View(func(txn *badger.Txn) error {
		return scanAllEdges(txn, func(e *graph.Edge) bool {
			if edgeType == "" || e.Type == edgeType {
				results = append(results, e)
			}
			return true
		})
	})
	return results, err
}

func (s *Store) GetNeighbors(_ context.Context, nodeID string, edgeType graph.EdgeType, direction graph.Direction) ([]*graph.Node, error) {
	var results []*graph.Node
	err := s.db.View(func(txn *badger.Txn) error {
		seen := make(map[string]struct{})
		follow := func(prefix string, pick func(*graph.Edge) string) {
			for _, eid := range scanIndexPrefix(txn, buildEdgeIndexPrefix(prefix, nodeID, edgeType)) {
				e, err := getEdgeInTxn(txn, eid)
				if err != nil {
					continue
				}
				other := pick(e)
				if _, ok := seen[other]; ok {
					continue
				}
				seen[other] = struct{}{}
				n, err := getNodeInTxn(txn, other)
				if err != nil {
					continue
				}
				results = append(results, n)
			}
		}
		// Outgoing: nodeID is source, the neighbor is the target.
		if direction == graph.Outgoing || direction == graph.Both {
			follow(prefixIdxEdge, func(e *graph.Edge) string { return e.TargetID })
		}
		// Incoming: nodeID is target, the neighbor is the source.
		if direction == graph.Incoming || direction == graph.Both {
			follow(prefixIdxReverseEdge, func(e *graph.Edge) string { return e.SourceID })
		}
		return nil
	})
	return results, err
}

func (s *Store) SaveInfo(_ context.Context, info graph.SnapshotInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal snapshot info: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyInfo), data)
	})
}

func (s *Store) LoadInfo(_ context.Context) (*graph.SnapshotInfo, error) {
	var info graph.SnapshotInfo
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyInfo))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSnapshot
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Store) Stats(_ context.Context) (*graph.GraphStats, error) {
	stats := &graph.GraphStats{
		NodesByType: make(map[graph.NodeType]int64),
		EdgesByType: make(map[graph.EdgeType]int64),
	}
	err := s.db.View(func(txn *badger.Txn) error {
		if err := scanAllNodes(txn, func(node *graph.Node) bool {
			stats.NodeCount++
			stats.NodesByType[node.Type]++
			return true
		}); err != nil {
			return err
		}
		return scanAllEdges(txn, func(e *graph.Edge) bool {
			stats.EdgeCount++
			stats.EdgesByType[e.Type]++
			return true
		})
	})
	return stats, err
}

// Clear drops every key in the database.
func (s *Store) Clear(_ context.Context) error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("drop all: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- helpers ---

// buildEdgeIndexPrefix constructs the prefix for scanning edge indexes.
// If edgeType is empty, it scans all edge types for the given nodeID.
func buildEdgeIndexPrefix(prefix, nodeID string, edgeType graph.EdgeType) []byte {
	if edgeType == "" {
		return []byte(fmt.Sprintf("%s%s:", prefix, nodeID))
	}
	return []byte(fmt.Sprintf("%s%s:%s:", prefix, nodeID, edgeType))
}

// scanIndexPrefix scans all keys with the given prefix and extracts the trailing
// ID segment (the last colon-separated part).
func scanIndexPrefix(txn *badger.Txn, prefix []byte) []string {
	var ids []string
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.Valid(); it.Next() {
		key := string(it.Item().Key())
		if idx := strings.LastIndex(key, ":"); idx >= 0 && idx < len(key)-1 {
			ids = append(ids, key[idx+1:])
		}
	}
	return ids
}

// scanIndexSuffix returns everything after prefix for each key under it.
func scanIndexSuffix(txn *badger.Txn, prefix []byte) []string {
	var ids []string
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.Valid(); it.Next() {
		key := it.Item().Key()
		if len(key) > len(prefix) {
			ids = append(ids, string(key[len(prefix):]))
		}
	}
	return ids
}

// scanAllNodes iterates over all node entries and calls fn for each.
// Return false from fn to stop iteration.
func scanAllNodes(txn *badger.Txn, fn func(*graph.Node) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Prefix = []byte(prefixNode)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(opts.Prefix); it.Valid(); it.Next() {
		var node graph.Node
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		})
		if err != nil {
			return fmt.Errorf("unmarshal node %s: %w", it.Item().Key(), err)
		}
		if !fn(&node) {
			break
		}
	}
	return nil
}

// scanAllEdges iterates over all edge entries and calls fn for each.
func scanAllEdges(txn *badger.Txn, fn func(*graph.Edge) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Prefix = []byte(prefixEdge)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(opts.Prefix); it.Valid(); it.Next() {
		var edge graph.Edge
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &edge)
		})
		if err != nil {
			return fmt.Errorf("unmarshal edge %s: %w", it.Item().Key(), err)
		}
		if !fn(&edge) {
			break
		}
	}
	return nil
}

func getEdgeInTxn(txn *badger.Txn, id string) (*graph.Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if err != nil {
		return nil, fmt.Errorf("get edge %s: %w", id, err)
	}
	var edge graph.Edge
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &edge)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal edge %s: %w", id, err)
	}
	return &edge, nil
}

// matchesFilter checks whether a node matches all non-zero fields in the filter.
func matchesFilter(node *graph.Node, filter graph.NodeFilter) bool {
	if filter.Type != "" && node.Type != filter.Type {
		return false
	}
	if filter.FilePath != "" && node.FilePath != filter.FilePath {
		return false
	}
	if filter.Name != "" && node.Name != filter.Name {
		return false
	}
	if filter.NamePattern != "" {
		matched, err := filepath.Match(filter.NamePattern, node.Name)
		if err != nil || !matched {
			return false
		}
	}
	return true
}
