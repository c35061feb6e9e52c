// Package watcher reports debounced changes to analyzable files under a
// repository root.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/imyousuf/depgraph/internal/parser"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	Create EventOp = iota
	Write
	Remove
	Rename
)

// String returns the string representation of EventOp.
func (op EventOp) String() string {
	switch op {
	case Create:
		return "Create"
	case Write:
		return "Write"
	case Remove:
		return "Remove"
	case Rename:
		return "Rename"
	default:
		return "Unknown"
	}
}

// Event represents a change to one analyzable file.
type Event struct {
	Path string // slash-separated, relative to the root
	Op   EventOp
	Time time.Time
}

// Filter decides which paths are watched and reported. discover.Matcher
// satisfies it.
type Filter interface {
	SkipDir(rel string) bool
	Match(rel string) (parser.Language, bool)
}

// Config holds configuration for the file system watcher.
type Config struct {
	Root     string
	Filter   Filter
	Debounce time.Duration
}

const defaultDebounce = 100 * time.Millisecond

// Watcher watches a repository for changes and emits debounced events.
type Watcher struct {
	cfg    Config
	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	closed bool
	errs   chan error
}

// NewWatcher creates a new file system watcher with the given configuration.
func NewWatcher(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	cfg.Root = abs
	return &Watcher{cfg: cfg, errs: make(chan error, 16)}, nil
}

// Errors returns watcher errors. Errors are dropped when nobody reads them.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Start begins watching the root and returns a channel of debounced events.
// The channel is closed when ctx is cancelled or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	if err := w.addRecursive(w.cfg.Root); err != nil {
		fsw.Close()
		return nil, err
	}

	out := make(chan Event, 100)
	go w.eventLoop(ctx, fsw, out)
	return out, nil
}

// Close shuts down the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// rel converts an absolute path under the root to a slash-separated relative path.
func (w *Watcher) rel(path string) (string, bool) {
	r, err := filepath.Rel(w.cfg.Root, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.cfg.Root && w.cfg.Filter != nil {
			if r, ok := w.rel(path); ok && w.cfg.Filter.SkipDir(r) {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(path)
	})
}

// filesUnder lists the matching files below dir as relative paths.
func (w *Watcher) filesUnder(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		r, ok := w.rel(path)
		if !ok {
			return nil
		}
		if w.cfg.Filter != nil {
			if _, match := w.cfg.Filter.Match(r); !match {
				return nil
			}
		}
		files = append(files, r)
		return nil
	})
	return files
}

func (w *Watcher) report(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Event) {
	// Debounce state: map from path to pending event and timer.
	type pending struct {
		event Event
		timer *time.Timer
	}
	pendingEvents := make(map[string]*pending)
	var mu sync.Mutex
	var inflight sync.WaitGroup

	defer func() {
		mu.Lock()
		for path, p := range pendingEvents {
			if p.timer.Stop() {
				inflight.Done()
			}
			delete(pendingEvents, path)
		}
		mu.Unlock()
		inflight.Wait()
		close(out)
	}()

	emit := func(evt Event) {
		select {
		case out <- evt:
		case <-ctx.Done():
		}
	}

	// schedule debounces evt: the timer for its path restarts on every event.
	schedule := func(evt Event) {
		mu.Lock()
		defer mu.Unlock()
		if p, exists := pendingEvents[evt.Path]; exists {
			p.event = evt
			if p.timer.Stop() {
				p.timer.Reset(w.cfg.Debounce)
			}
			return
		}
		p := &pending{event: evt}
		inflight.Add(1)
		p.timer = time.AfterFunc(w.cfg.Debounce, func() {
			defer inflight.Done()
			mu.Lock()
			e := pendingEvents[evt.Path]
			delete(pendingEvents, evt.Path)
			mu.Unlock()
			if e != nil {
				emit(e.event)
			}
		})
		pendingEvents[evt.Path] = p
	}

	for {
		select {
		case <-ctx.Done():
			return

		case fsEvent, ok := <-fsw.Events:
			if !ok {
				return
			}

			op, valid := convertOp(fsEvent.Op)
			if !valid {
				continue
			}
			rel, ok := w.rel(fsEvent.Name)
			if !ok {
				continue
			}

			// A new directory is watched too, and files already in it are reported.
			if op == Create {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					if w.cfg.Filter != nil && w.cfg.Filter.SkipDir(rel) {
						continue
					}
					_ = w.addRecursive(fsEvent.Name)
					for _, f := range w.filesUnder(fsEvent.Name) {
						schedule(Event{Path: f, Op: Create, Time: time.Now()})
					}
					continue
				}
			}

			if w.cfg.Filter != nil {
				if _, match := w.cfg.Filter.Match(rel); !match {
					continue
				}
			}
			schedule(Event{Path: rel, Op: op, Time: time.Now()})

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func convertOp(op fsnotify.Op) (EventOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Create, true
	case op.Has(fsnotify.Write):
		return Write, true
	case op.Has(fsnotify.Remove):
		return Remove, true
	case op.Has(fsnotify.Rename):
		return Rename, true
	default:
		return 0, false
	}
}
