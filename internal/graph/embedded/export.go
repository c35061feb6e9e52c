package embedded

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/imyousuf/depgraph/internal/graph"
)

// dumpRecord is the JSON-lines format for Dump/Restore.
type dumpRecord struct {
	Kind string          `json:"kind"` // "node", "edge" or "info"
	Data json.RawMessage `json:"data"`
}

// Dump writes the stored snapshot to w in JSON-lines format: the snapshot
// info first (when present), then nodes, then edges.
func (s *Store) Dump(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	if info, err := s.LoadInfo(ctx); err == nil {
		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal info: %w", err)
		}
		if err := enc.Encode(dumpRecord{Kind: "info", Data: data}); err != nil {
			return fmt.Errorf("encode info: %w", err)
		}
	}
	return s.db.View(func(txn *badger.Txn) error {
		var encErr error
		if err := scanAllNodes(txn, func(node *graph.Node) bool {
			data, err := json.Marshal(node)
			if err != nil {
				encErr = fmt.Errorf("marshal node %s: %w", node.ID, err)
				return false
			}
			if err := enc.Encode(dumpRecord{Kind: "node", Data: data}); err != nil {
				encErr = fmt.Errorf("encode node: %w", err)
				return false
			}
			return true
		}); err != nil {
			return fmt.Errorf("dump nodes: %w", err)
		}
		if encErr != nil {
			return encErr
		}
		if err := scanAllEdges(txn, func(edge *graph.Edge) bool {
			data, err := json.Marshal(edge)
			if err != nil {
				encErr = fmt.Errorf("marshal edge %s: %w", edge.ID, err)
				return false
			}
			if err := enc.Encode(dumpRecord{Kind: "edge", Data: data}); err != nil {
				encErr = fmt.Errorf("encode edge: %w", err)
				return false
			}
			return true
		}); err != nil {
			return fmt.Errorf("dump edges: %w", err)
		}
		return encErr
	})
}

// Restore reads JSON-lines from r, clears the store, and inserts all records.
func (s *Store) Restore(ctx context.Context, r io.Reader) error {
	if err := s.Clear(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(r)
	// Increase buffer for potentially large lines.
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec dumpRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}

		switch rec.Kind {
		case "info":
			var info graph.SnapshotInfo
			if err := json.Unmarshal(rec.Data, &info); err != nil {
				return fmt.Errorf("unmarshal info: %w", err)
			}
			if err := s.SaveInfo(ctx, info); err != nil {
				return fmt.Errorf("restore info: %w", err)
			}
		case "node":
			var node graph.Node
			if err := json.Unmarshal(rec.Data, &node); err != nil {
				return fmt.Errorf("unmarshal node: %w", err)
			}
			if err := s.AddNode(ctx, &node); err != nil {
				return fmt.Errorf("restore node %s: %w", node.ID, err)
			}
		case "edge":
			var edge graph.Edge
			if err := json.Unmarshal(rec.Data, &edge); err != nil {
				return fmt.Errorf("unmarshal edge: %w", err)
			}
			if err := s.AddEdge(ctx, &edge); err != nil {
				return fmt.Errorf("restore edge %s: %w", edge.ID, err)
			}
		default:
			return fmt.Errorf("unknown record kind: %q", rec.Kind)
		}
	}

	return scanner.Err()
}
