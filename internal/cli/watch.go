package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/depgraph/internal/graph"
	"github.com/imyousuf/depgraph/internal/indexer"
)

func newWatchCmd() *cobra.Command {
	var (
		format  string
		output  string
		dbPath  string
		quiet   time.Duration
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Analyze the repository and re-analyze it whenever files change",
		Long: `Analyze the repository, then watch it for changes. Once changes have
settled for the quiet period, the whole repository is analyzed again and
the export file and snapshot store are replaced.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var override string
			if len(args) == 1 {
				override = args[0]
			}
			cfg, root, err := loadConfig(override)
			if err != nil {
				return err
			}
			if format == "" {
				format = cfg.Output.Format
			}
			f, err := graph.ParseFormat(format)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("output") {
				output = cfg.Output.Path
			}
			if !cmd.Flags().Changed("quiet") {
				quiet = cfg.Watch.QuietPeriod
			}
			if output == "-" {
				return fmt.Errorf("watch cannot export to stdout; use --output with a file path")
			}

			registry, err := newRegistry()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			icfg := indexer.Config{
				Root:        root,
				Registry:    registry,
				Discover:    discoverOptions(cfg),
				Analyzer:    analyzerOptions(cfg),
				Output:      output,
				Format:      f,
				QuietPeriod: quiet,
				Verbose:     verbose,
				Logger:      logf,
				OnIndex: func(run indexer.Run) {
					s := run.Result.Stats
					fmt.Fprintf(out, "[%s] %d files, %d functions, %d import edges, %d call edges (%s)\n",
						time.Now().Format("15:04:05"), s.FilesAnalyzed, s.Functions, s.FileEdges, s.CallEdges,
						s.Duration.Round(time.Millisecond))
				},
			}
			var dbLabel string
			if !noStore {
				dbLabel = dbPathFor(cfg, root, dbPath)
				store, err := openStore(dbLabel)
				if err != nil {
					return err
				}
				defer store.Close()
				icfg.Store = store
			}

			idx, err := indexer.NewIndexer(icfg)
			if err != nil {
				return err
			}

			// Set up signal handling.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					fmt.Fprintln(out, "\nShutting down...")
					cancel()
				case <-ctx.Done():
				}
			}()

			fmt.Fprintf(out, "Watching %s\n", root)
			if output != "" {
				fmt.Fprintf(out, "Export: %s (%s)\n", output, f)
			}
			if dbLabel != "" {
				fmt.Fprintf(out, "Graph database: %s\n", dbLabel)
			}

			if err := idx.Start(ctx); err != nil {
				return fmt.Errorf("indexer: %w", err)
			}

			stats := idx.Stats()
			fmt.Fprintf(out, "\nFinal stats:\n")
			fmt.Fprintf(out, "  Runs:          %d\n", stats.Runs)
			fmt.Fprintf(out, "  Files:         %d\n", stats.Graph.Files)
			fmt.Fprintf(out, "  Functions:     %d\n", stats.Graph.Functions)
			fmt.Fprintf(out, "  Import edges:  %d\n", stats.Graph.FileEdges)
			fmt.Fprintf(out, "  Call edges:    %d\n", stats.Graph.CallEdges)
			if len(stats.Errors) > 0 {
				fmt.Fprintf(out, "  Errors:        %d\n", len(stats.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "export format: dot, json, jsonl or structures (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "export file path rewritten on every run")
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot store path (default .depgraph/graph.db)")
	cmd.Flags().DurationVar(&quiet, "quiet", 0, "wait this long after the last change before re-analyzing (default from config)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not update the snapshot store")

	return cmd
}
