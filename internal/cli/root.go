// Package cli implements the command-line interface for depgraph.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/imyousuf/depgraph/internal/telemetry"
)

var (
	cfgFile     string
	verbose     bool
	traceOut    bool
	metricsOut  bool
	telShutdown func(context.Context) error
)

// newRootCmd builds the base command and its subcommands.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "depgraph",
		Short: "depgraph - file and function dependency graphs for Python repositories",
		Long: `depgraph statically analyzes a repository and builds a dependency graph of
which files import which files and which functions call which functions.

Commands:
  init       Initialize a .depgraph/ project directory
  analyze    Analyze a repository and export its graph
  watch      Re-analyze the repository whenever it changes
  query      Query the stored snapshot
  status     Show the stored snapshot and whether it is stale
  serve      Serve analysis over HTTP
  dump       Write the stored snapshot as JSON lines
  restore    Replace the stored snapshot from a dump
  config     View or edit project configuration`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupRun,
	}

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .depgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&traceOut, "trace", false, "print OpenTelemetry spans to stderr")
	rootCmd.PersistentFlags().BoolVar(&metricsOut, "metrics", false, "print OpenTelemetry metrics to stderr on exit")

	// Bind flags to viper
	if err := viper.BindPFlag("config_file", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		panic(fmt.Sprintf("failed to bind config flag: %v", err))
	}

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDumpCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the root command and flushes telemetry, if enabled.
func Execute() error {
	err := newRootCmd().Execute()
	if terr := teardownRun(context.Background()); terr != nil && err == nil {
		err = fmt.Errorf("flush telemetry: %w", terr)
	}
	return err
}

// setupRun installs the logger and, when requested, telemetry providers.
func setupRun(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if !traceOut && !metricsOut {
		return nil
	}
	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "depgraph",
		ServiceVersion: Version,
		Traces:         traceOut,
		Metrics:        metricsOut,
		Writer:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	telShutdown = shutdown
	return nil
}

func teardownRun(ctx context.Context) error {
	if telShutdown == nil {
		return nil
	}
	err := telShutdown(ctx)
	telShutdown = nil
	return err
}
