package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/depgraph/internal/graph"
	"github.com/imyousuf/depgraph/internal/graph/embedded"
	"github.com/imyousuf/depgraph/internal/indexer"
)

func newStatusCmd() *cobra.Command {
	var (
		rootFlag   string
		dbPath     string
		storeStats bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored snapshot and whether it is stale",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := loadConfig(rootFlag)
			if err != nil {
				return err
			}
			store, err := openStore(dbPathFor(cfg, root, dbPath))
			if err != nil {
				return err
			}
			defer store.Close()

			registry, err := newRegistry()
			if err != nil {
				return err
			}
			idx, err := indexer.NewIndexer(indexer.Config{
				Root:     root,
				Registry: registry,
				Discover: discoverOptions(cfg),
				Store:    store,
				Logger:   logf,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			fmt.Fprintf(out, "Dependency Graph Status\n")
			fmt.Fprintf(out, "=======================\n\n")

			staleness, err := idx.Staleness(ctx)
			if errors.Is(err, embedded.ErrNoSnapshot) {
				fmt.Fprintf(out, "  No snapshot stored for %s.\n", root)
				fmt.Fprintf(out, "  Run 'depgraph analyze' to build one.\n")
				return nil
			}
			if err != nil {
				return fmt.Errorf("check staleness: %w", err)
			}

			info := staleness.Info
			fmt.Fprintf(out, "  Root:        %s\n", info.Root)
			fmt.Fprintf(out, "  Run:         %s\n", info.RunID)
			fmt.Fprintf(out, "  Analyzed:    %s (%s ago)\n", info.CreatedAt.Format(time.RFC3339), time.Since(info.CreatedAt).Round(time.Second))
			if info.Commit != "" {
				fmt.Fprintf(out, "  Commit:      %s\n", shortCommit(info.Commit))
			}
			if info.Errors > 0 {
				fmt.Fprintf(out, "  Errors:      %d file(s) could not be analyzed\n", info.Errors)
			}
			fmt.Fprintln(out)

			fmt.Fprintf(out, "  Files:           %d\n", info.Stats.Files)
			fmt.Fprintf(out, "  Functions:       %d\n", info.Stats.Functions)
			fmt.Fprintf(out, "  Import edges:    %d\n", info.Stats.FileEdges)
			fmt.Fprintf(out, "  Call edges:      %d (%d ambiguous)\n\n", info.Stats.CallEdges, info.Stats.AmbiguousCalls)

			if storeStats {
				stats, err := store.Stats(ctx)
				if err != nil {
					return fmt.Errorf("get stats: %w", err)
				}
				printStoreStats(out, stats)
			}

			printStaleness(out, staleness)
			return nil
		},
	}

	cmd.Flags().StringVar(&rootFlag, "root", "", "repository root (default from config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot store path (default .depgraph/graph.db)")
	cmd.Flags().BoolVar(&storeStats, "store-stats", false, "also print node and edge counts from the store")

	return cmd
}

func printStoreStats(out io.Writer, stats *graph.GraphStats) {
	fmt.Fprintf(out, "  Store nodes: %d\n", stats.NodeCount)
	fmt.Fprintf(out, "  Store edges: %d\n\n", stats.EdgeCount)
	if len(stats.NodesByType) > 0 {
		fmt.Fprintf(out, "  Nodes by type:\n")
		for _, nt := range sortedNodeTypes(stats.NodesByType) {
			fmt.Fprintf(out, "    %-20s %d\n", nt, stats.NodesByType[nt])
		}
		fmt.Fprintln(out)
	}
	if len(stats.EdgesByType) > 0 {
		fmt.Fprintf(out, "  Edges by type:\n")
		for _, et := range sortedEdgeTypes(stats.EdgesByType) {
			fmt.Fprintf(out, "    %-20s %d\n", et, stats.EdgesByType[et])
		}
		fmt.Fprintln(out)
	}
}

func printStaleness(out io.Writer, s *indexer.Staleness) {
	if !s.Stale() {
		fmt.Fprintf(out, "  Up to date (compared by %s).\n", s.Method)
		return
	}
	fmt.Fprintf(out, "  Stale: %d file(s) changed since the snapshot (compared by %s)\n", s.Len(), s.Method)
	if s.Method == indexer.CompareGit && s.Head != "" && s.Head != s.Info.Commit {
		fmt.Fprintf(out, "  HEAD moved: %s -> %s\n", shortCommit(s.Info.Commit), shortCommit(s.Head))
	}
	printPaths(out, "added", s.Added)
	printPaths(out, "modified", s.Modified)
	printPaths(out, "deleted", s.Deleted)
	fmt.Fprintf(out, "\n  Run 'depgraph analyze' to refresh.\n")
}

func printPaths(out io.Writer, label string, paths []string) {
	for _, p := range paths {
		fmt.Fprintf(out, "    %-9s %s\n", label, p)
	}
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

func sortedNodeTypes(m map[graph.NodeType]int64) []graph.NodeType {
	keys := make([]graph.NodeType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedEdgeTypes(m map[graph.EdgeType]int64) []graph.EdgeType {
	keys := make([]graph.EdgeType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
