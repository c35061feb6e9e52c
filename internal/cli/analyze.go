package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/depgraph/internal/graph"
	"github.com/imyousuf/depgraph/internal/indexer"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		format  string
		output  string
		dbPath  string
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a repository and export its dependency graph",
		Long: `Analyze every supported source file under path (default: the configured
root) and export the file import graph and function call graph.

The graph is written to --output, or to stdout when no output path is
configured. The snapshot is also stored for 'query' and 'status' unless
--no-store is given.`,
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
			toStdout := output == "" || output == "-"

			registry, err := newRegistry()
			if err != nil {
				return err
			}
			icfg := indexer.Config{
				Root:     root,
				Registry: registry,
				Discover: discoverOptions(cfg),
				Analyzer: analyzerOptions(cfg),
				Format:   f,
				Verbose:  verbose,
				Logger:   logf,
			}
			if !toStdout {
				icfg.Output = output
			}
			if !noStore {
				store, err := openStore(dbPathFor(cfg, root, dbPath))
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
			run, err := idx.IndexRepository(cmd.Context())
			if err != nil {
				return fmt.Errorf("analyze %s: %w", root, err)
			}

			summary := cmd.OutOrStdout()
			if toStdout {
				if err := graph.Export(cmd.OutOrStdout(), run.Result.Snapshot(), f); err != nil {
					return fmt.Errorf("export: %w", err)
				}
				summary = cmd.ErrOrStderr()
			}
			printRunSummary(summary, run, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "export format: dot, json, jsonl or structures (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "export file path, or - for stdout")
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot store path (default .depgraph/graph.db)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "do not update the snapshot store")

	return cmd
}

func printRunSummary(out io.Writer, run *indexer.Run, output string) {
	s := run.Result.Stats
	fmt.Fprintln(out, headerStyle.Render("Analysis complete"))
	printKV(out, "Run", run.ID)
	printKV(out, "Root", run.Info.Root)
	printKV(out, "Files", fmt.Sprintf("%d analyzed, %d failed, %d skipped", s.FilesAnalyzed, s.FilesFailed, s.FilesSkipped))
	printKV(out, "Functions", fmt.Sprint(s.Functions))
	printKV(out, "Import edges", fmt.Sprint(s.FileEdges))
	printKV(out, "Call edges", fmt.Sprintf("%d (%d ambiguous)", s.CallEdges, s.AmbiguousCalls))
	printKV(out, "Duration", s.Duration.Round(time.Millisecond).String())
	if output != "" && output != "-" {
		printKV(out, "Output", output)
	}
	for _, fe := range run.Result.Errors {
		fmt.Fprintf(out, "    %s\n", warnStyle.Render("warning: "+fe.Error()))
	}
}
