package indexer

import (
	"context"
	"fmt"
	"sort"

	"github.com/imyousuf/depgraph/internal/discover"
	"github.com/imyousuf/depgraph/internal/gitutil"
	"github.com/imyousuf/depgraph/internal/graph"
)

// Comparison methods used by Staleness.
const (
	CompareGit   = "git"
	CompareMtime = "mtime"
)

// Staleness compares the stored snapshot with the repository as it is now.
type Staleness struct {
	Info   *graph.SnapshotInfo
	Method string
	Head   string // current HEAD, set when Method is CompareGit
	gitutil.Changes
}

// Stale reports whether any analyzable file changed since the snapshot.
func (s *Staleness) Stale() bool { return s.Len() > 0 }

// Staleness reports which analyzable files changed since the stored snapshot
// was taken. Git work trees are diffed against the snapshot's commit; other
// directories are compared by modification time.
func (idx *Indexer) Staleness(ctx context.Context) (*Staleness, error) {
	if idx.cfg.Store == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}
	info, err := idx.cfg.Store.LoadInfo(ctx)
	if err != nil {
		return nil, err
	}

	if info.Commit != "" && gitutil.IsRepo(idx.root) {
		changes, err := gitutil.ChangedSince(idx.root, info.Commit)
		if err == nil {
			head, _ := gitutil.Head(idx.root)
			return &Staleness{
				Info:   info,
				Method: CompareGit,
				Head:   head,
				Changes: gitutil.Changes{
					Added:    idx.analyzable(changes.Added),
					Modified: idx.analyzable(changes.Modified),
					Deleted:  idx.analyzable(changes.Deleted),
				},
			}, nil
		}
		// The commit may be gone after a rebase; fall back to mtimes.
		if idx.verbose {
			idx.log("Diff failed (%v), comparing modification times", err)
		}
	}

	nodes, err := idx.cfg.Store.QueryNodes(ctx, graph.NodeFilter{Type: graph.NodeFile})
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n.FilePath] = struct{}{}
	}

	entries, err := discover.Files(idx.root, idx.cfg.Registry, idx.cfg.Discover)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	s := &Staleness{Info: info, Method: CompareMtime}
	for _, e := range entries {
		if _, ok := known[e.Path]; !ok {
			s.Added = append(s.Added, e.Path)
		} else if e.ModTime.After(info.CreatedAt) {
			s.Modified = append(s.Modified, e.Path)
		}
		delete(known, e.Path)
	}
	for p := range known {
		s.Deleted = append(s.Deleted, p)
	}
	sort.Strings(s.Deleted)
	return s, nil
}

func (idx *Indexer) analyzable(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, ok := idx.matcher.Match(p); ok {
			out = append(out, p)
		}
	}
	return out
}
