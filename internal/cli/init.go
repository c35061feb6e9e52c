package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/imyousuf/depgraph/internal/config"
	"github.com/imyousuf/depgraph/internal/discover"
)

func newInitCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a .depgraph/ project directory",
		Long: `Initialize a depgraph project in the given directory (default: current).

Creates a .depgraph/ directory containing:
  config.yaml    Project configuration

The snapshot store is created at .depgraph/graph.db on the first analyze.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			root, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve directory: %w", err)
			}
			if info, err := os.Stat(root); err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not a directory", root)
			}

			projectDir := filepath.Join(root, config.ProjectDirName)
			if _, err := os.Stat(projectDir); err == nil {
				return fmt.Errorf("%s already exists; project is already initialized", projectDir)
			}

			out := cmd.OutOrStdout()
			cfg := config.Default()

			if interactive {
				ok, err := runConfigForm(cfg)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Cancelled.")
					return nil
				}
			}

			configPath := filepath.Join(projectDir, config.ProjectConfigFile)
			if err := config.WriteConfig(cfg, configPath); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(out, "Created %s\n", configPath)

			if n, err := countSources(root, cfg); err == nil {
				fmt.Fprintf(out, "Found %d analyzable files\n", n)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Edit .depgraph/config.yaml (or run 'depgraph config edit')")
			fmt.Fprintln(out, "  2. Add to .gitignore:")
			fmt.Fprintln(out, "       .depgraph/graph.db/")
			fmt.Fprintln(out, "  3. Run 'depgraph analyze' to build the graph")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "edit the configuration with a form before writing it")

	return cmd
}

func countSources(root string, cfg *config.Config) (int, error) {
	registry, err := newRegistry()
	if err != nil {
		return 0, err
	}
	entries, err := discover.Files(root, registry, discoverOptions(cfg))
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
