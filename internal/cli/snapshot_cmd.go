package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	var (
		rootFlag string
		dbPath   string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the stored snapshot as JSON lines",
		Long: `Write the stored snapshot (run info, nodes and edges) as JSON lines.
The output can be loaded into another store with 'depgraph restore'.`,
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

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := store.Dump(cmd.Context(), w); err != nil {
				return fmt.Errorf("dump: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rootFlag, "root", "", "repository root (default from config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot store path (default .depgraph/graph.db)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")

	return cmd
}

func newRestoreCmd() *cobra.Command {
	var (
		rootFlag string
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the stored snapshot with a dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := loadConfig(rootFlag)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			store, err := openStore(dbPathFor(cfg, root, dbPath))
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Restore(cmd.Context(), r); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d nodes and %d edges\n", stats.NodeCount, stats.EdgeCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&rootFlag, "root", "", "repository root (default from config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "snapshot store path (default .depgraph/graph.db)")

	return cmd
}
