package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/imyousuf/depgraph/internal/analyzer"
	"github.com/imyousuf/depgraph/internal/config"
	"github.com/imyousuf/depgraph/internal/discover"
	"github.com/imyousuf/depgraph/internal/graph/embedded"
	"github.com/imyousuf/depgraph/internal/parser"
	"github.com/imyousuf/depgraph/internal/parser/python"
)

// loadConfig loads, supplements and validates the project configuration.
// The repository's pyproject.toml contributes excludes and builtin overrides.
func loadConfig(rootOverride string) (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	root, err := cfg.ResolveRoot(rootOverride)
	if err != nil {
		return nil, "", fmt.Errorf("resolve root: %w", err)
	}
	if err := cfg.ApplyPyproject(root); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, root, nil
}

// newRegistry registers every supported language grammar.
func newRegistry() (*parser.Registry, error) {
	registry := parser.NewRegistry()
	if err := python.Register(registry); err != nil {
		return nil, fmt.Errorf("register python grammar: %w", err)
	}
	return registry, nil
}

func discoverOptions(cfg *config.Config) discover.Options {
	return discover.Options{
		Languages:   cfg.Languages,
		Exclude:     cfg.Exclude,
		MaxFileSize: cfg.MaxFileSize,
	}
}

func analyzerOptions(cfg *config.Config) []analyzer.Option {
	return []analyzer.Option{
		analyzer.WithWorkers(cfg.Workers),
		analyzer.WithLogger(slog.Default()),
		analyzer.WithExtraBuiltins(cfg.Builtins.Extra...),
		analyzer.WithKeptBuiltins(cfg.Builtins.Keep...),
	}
}

// dbPathFor returns the store path for root, defaulting to
// <root>/.depgraph/graph.db when neither flag nor config names one.
func dbPathFor(cfg *config.Config, root, flagValue string) string {
	if p := cfg.ResolveDBPath(flagValue); p != "" {
		return p
	}
	return filepath.Join(root, config.ProjectDirName, config.DefaultDBName)
}

func openStore(path string) (*embedded.Store, error) {
	store, err := embedded.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open graph store %s: %w", path, err)
	}
	return store, nil
}

// logf adapts the default slog logger to the printf-style logger the indexer takes.
func logf(format string, args ...any) {
	slog.Info(fmt.Sprintf(format, args...))
}
