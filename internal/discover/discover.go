// Package discover finds analyzable source files in a repository.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/imyousuf/depgraph/internal/parser"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // slash-separated, relative to the repository root
	Language parser.Language
	Size     int64
	ModTime  time.Time
}

// Options narrows discovery.
type Options struct {
	// Languages restricts results to these languages; empty means all registered.
	Languages []string
	// Exclude holds glob patterns matched against the relative path.
	Exclude []string
	// MaxFileSize skips files larger than this many bytes; zero means no limit.
	MaxFileSize int64
}

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	"venv":          {},
	"env":           {},
	"build":         {},
	"dist":          {},
	"site-packages": {},
}

// Matcher decides whether a relative path is analyzable. It is shared by
// Files and the watcher so both agree on what belongs to the graph.
type Matcher struct {
	registry *parser.Registry
	exclude  []glob.Glob
	ignore   *ignore.GitIgnore
	maxSize  int64
}

// NewMatcher compiles the exclusion rules for root.
func NewMatcher(root string, registry *parser.Registry, opts Options) (*Matcher, error) {
	excl, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, err
	}
	return &Matcher{
		registry: registry.Restrict(opts.Languages),
		exclude:  excl,
		ignore:   loadGitignore(root),
		maxSize:  opts.MaxFileSize,
	}, nil
}

// SkipDir reports whether a directory (relative path) is never descended into.
func (m *Matcher) SkipDir(rel string) bool {
	name := path.Base(rel)
	if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".egg-info") {
		return true
	}
	return m.ignored(rel + "/")
}

// Match reports the language of a file (relative, slash-separated) or false
// if the file is not analyzable.
func (m *Matcher) Match(rel string) (parser.Language, bool) {
	if strings.HasPrefix(path.Base(rel), ".") {
		return "", false
	}
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if m.SkipDir(dir) {
			return "", false
		}
	}
	g, ok := m.registry.ForPath(rel)
	if !ok {
		return "", false
	}
	if m.ignored(rel) {
		return "", false
	}
	return g.Language, true
}

// TooLarge reports whether size exceeds the configured limit.
func (m *Matcher) TooLarge(size int64) bool {
	return m.maxSize > 0 && size > m.maxSize
}

func (m *Matcher) ignored(rel string) bool {
	if m.ignore != nil && m.ignore.MatchesPath(rel) {
		return true
	}
	trimmed := strings.TrimSuffix(rel, "/")
	for _, g := range m.exclude {
		if g.Match(trimmed) {
			return true
		}
	}
	return false
}

// Files discovers analyzable source files under root, sorted by path.
func Files(root string, registry *parser.Registry, opts Options) ([]FileEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", root)
	}
	m, err := NewMatcher(root, registry, opts)
	if err != nil {
		return nil, err
	}

	var results []FileEntry
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if m.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		// Skip symlinks and other non-regular files.
		if !d.Type().IsRegular() {
			return nil
		}

		lang, ok := m.Match(rel)
		if !ok {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if m.TooLarge(fi.Size()) {
			return nil
		}
		results = append(results, FileEntry{Path: rel, Language: lang, Size: fi.Size(), ModTime: fi.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
	return results, nil
}

// Paths returns the Path of each entry.
func Paths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		matcher, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		matchers = append(matchers, matcher)
	}
	return matchers, nil
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
