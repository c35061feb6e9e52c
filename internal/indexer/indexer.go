// Package indexer runs whole-repository analyses and publishes their results
// to an export file and a snapshot store, once or on every change.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imyousuf/depgraph/internal/analyzer"
	"github.com/imyousuf/depgraph/internal/discover"
	"github.com/imyousuf/depgraph/internal/gitutil"
	"github.com/imyousuf/depgraph/internal/graph"
	"github.com/imyousuf/depgraph/internal/parser"
	"github.com/imyousuf/depgraph/internal/watcher"
)

const defaultQuietPeriod = 500 * time.Millisecond

// Config holds configuration for the Indexer.
type Config struct {
	Root     string
	Registry *parser.Registry
	Discover discover.Options
	Analyzer []analyzer.Option

	// Store, if set, receives every snapshot. It holds only the latest one.
	Store graph.Store
	// Output, if set, is rewritten with every snapshot in Format.
	Output string
	Format graph.Format

	// QuietPeriod is how long watch mode waits after the last change before
	// re-running the analysis.
	QuietPeriod time.Duration
	// OnIndex is called after every successful run.
	OnIndex func(run Run)

	Verbose bool
	Logger  func(format string, args ...any) // optional, defaults to fmt.Fprintf(os.Stderr, ...)
}

// Run describes one completed analysis.
type Run struct {
	ID     string
	Result *analyzer.Result
	Info   graph.SnapshotInfo
}

// IndexStats holds statistics about the indexing state.
type IndexStats struct {
	Runs          int           `json:"runs"`
	LastRunID     string        `json:"last_run_id,omitempty"`
	LastIndexTime time.Time     `json:"last_index_time"`
	LastDuration  time.Duration `json:"last_duration"`
	Graph         graph.Stats   `json:"graph"`
	Errors        []string      `json:"errors,omitempty"`
}

// Indexer orchestrates discovery, analysis and publication of snapshots.
type Indexer struct {
	cfg      Config
	root     string
	matcher  *discover.Matcher
	analyzer *analyzer.Analyzer
	verbose  bool
	log      func(format string, args ...any)

	mu   sync.Mutex
	runs int
	last *Run
}

// NewIndexer creates a new Indexer with the given configuration.
func NewIndexer(cfg Config) (*Indexer, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("parser registry is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", root)
	}
	matcher, err := discover.NewMatcher(root, cfg.Registry, cfg.Discover)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "" {
		cfg.Format = graph.FormatDOT
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = defaultQuietPeriod
	}

	logFn := cfg.Logger
	if logFn == nil {
		logFn = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	return &Indexer{
		cfg:      cfg,
		root:     root,
		matcher:  matcher,
		analyzer: analyzer.New(cfg.Registry, cfg.Analyzer...),
		verbose:  cfg.Verbose,
		log:      logFn,
	}, nil
}

// Root returns the absolute repository root.
func (idx *Indexer) Root() string { return idx.root }

// Store returns the snapshot store, which may be nil.
func (idx *Indexer) Store() graph.Store { return idx.cfg.Store }

// IndexRepository discovers and analyzes the whole repository, then publishes
// the snapshot to the configured output file and store.
func (idx *Indexer) IndexRepository(ctx context.Context) (*Run, error) {
	start := time.Now()
	if idx.verbose {
		idx.log("Scanning directory: %s", idx.root)
	}

	entries, err := discover.Files(idx.root, idx.cfg.Registry, idx.cfg.Discover)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	if idx.verbose {
		idx.log("  Found %d source files", len(entries))
	}

	res, err := idx.analyzer.AnalyzeDir(ctx, idx.root, discover.Paths(entries))
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	run := &Run{
		ID:     id,
		Result: res,
		Info:   graph.SnapshotInfo{RunID: id, Root: idx.root, CreatedAt: start},
	}
	if gitutil.IsRepo(idx.root) {
		if head, err := gitutil.Head(idx.root); err == nil {
			run.Info.Commit = head
		}
	}

	if err := idx.publish(ctx, run); err != nil {
		return nil, err
	}

	idx.mu.Lock()
	idx.runs++
	idx.last = run
	idx.mu.Unlock()

	if idx.verbose {
		s := res.Stats
		idx.log("  Analysis complete: %d files, %d functions, %d file edges, %d call edges in %s",
			s.FilesAnalyzed, s.Functions, s.FileEdges, s.CallEdges, time.Since(start))
	}
	for _, fe := range res.Errors {
		idx.log("Warning: %v", fe)
	}
	if idx.cfg.OnIndex != nil {
		idx.cfg.OnIndex(*run)
	}
	return run, nil
}

func (idx *Indexer) publish(ctx context.Context, run *Run) error {
	snap := run.Result.Snapshot()
	run.Info.Stats = snap.Stats
	run.Info.Errors = len(snap.Errors)
	if idx.cfg.Output != "" {
		if err := writeExport(idx.cfg.Output, snap, idx.cfg.Format); err != nil {
			return err
		}
		if idx.verbose {
			idx.log("  Wrote %s (%s)", idx.cfg.Output, idx.cfg.Format)
		}
	}
	if idx.cfg.Store != nil {
		if err := graph.Persist(ctx, idx.cfg.Store, snap, run.Info); err != nil {
			return fmt.Errorf("persist snapshot: %w", err)
		}
	}
	return nil
}

// writeExport replaces path atomically so readers never see a partial graph.
func writeExport(path string, snap *graph.Snapshot, format graph.Format) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := graph.Export(tmp, snap, format); err != nil {
		tmp.Close()
		return fmt.Errorf("export %s: %w", format, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// Start performs an initial full analysis, then watches the repository and
// re-runs the full analysis once changes settle. It blocks until the context
// is cancelled.
func (idx *Indexer) Start(ctx context.Context) error {
	if _, err := idx.IndexRepository(ctx); err != nil {
		return fmt.Errorf("initial index of %s: %w", idx.root, err)
	}

	w, err := watcher.NewWatcher(watcher.Config{Root: idx.root, Filter: idx.matcher})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	events, err := w.Start(ctx)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	if idx.verbose {
		idx.log("Watching %s for changes...", idx.root)
	}

	// Changes are coalesced: a burst of events yields one re-run.
	quiet := time.NewTimer(idx.cfg.QuietPeriod)
	quiet.Stop()
	defer quiet.Stop()
	changed := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			idx.log("Warning: watcher: %v", err)
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if idx.verbose {
				idx.log("  %s %s", evt.Op, evt.Path)
			}
			changed[evt.Path] = struct{}{}
			quiet.Reset(idx.cfg.QuietPeriod)
		case <-quiet.C:
			if idx.verbose {
				idx.log("Re-analyzing after %d changed files", len(changed))
			}
			clear(changed)
			if _, err := idx.IndexRepository(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				idx.log("Warning: re-index failed: %v", err)
			}
		}
	}
}

// Last returns the most recent run, or nil before the first one.
func (idx *Indexer) Last() *Run {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.last
}

// Stats returns current indexing statistics.
func (idx *Indexer) Stats() IndexStats {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	stats := IndexStats{Runs: idx.runs}
	if idx.last == nil {
		return stats
	}
	res := idx.last.Result
	stats.LastRunID = idx.last.ID
	stats.LastIndexTime = idx.last.Info.CreatedAt
	stats.LastDuration = res.Stats.Duration
	stats.Graph = res.Graph.Stats()
	for _, fe := range res.Errors {
		stats.Errors = append(stats.Errors, fe.Error())
	}
	return stats
}
