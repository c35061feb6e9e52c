package parser

import (
	"path"
	"sort"
	"strings"
	"sync"
)

// Registry manages the grammars of the supported languages.
type Registry struct {
	mu       sync.RWMutex
	grammars map[Language]*Grammar
	extIndex map[string]*Grammar
	order    []Language
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		grammars: make(map[Language]*Grammar),
		extIndex: make(map[string]*Grammar),
		order:    make([]Language, 0),
	}
}

// Register adds a grammar, indexing it by language and file extensions.
func (r *Registry) Register(g *Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.grammars[g.Language]; !exists {
		r.order = append(r.order, g.Language)
	}
	r.grammars[g.Language] = g
	for _, ext := range g.Extensions {
		r.extIndex[ext] = g
	}
}

// Get retrieves a grammar by language.
func (r *Registry) Get(lang Language) (*Grammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.grammars[lang]
	return g, ok
}

// GetByExtension retrieves a grammar by file extension (e.g. ".py").
func (r *Registry) GetByExtension(ext string) (*Grammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.extIndex[strings.ToLower(ext)]
	return g, ok
}

// ForPath returns the grammar for a slash-separated file path.
func (r *Registry) ForPath(p string) (*Grammar, bool) {
	return r.GetByExtension(path.Ext(p))
}

// All returns all registered grammars in registration order.
func (r *Registry) All() []*Grammar {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Grammar, len(r.order))
	for i, lang := range r.order {
		result[i] = r.grammars[lang]
	}
	return result
}

// Languages returns the registered languages in registration order.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Language(nil), r.order...)
}

// SupportedExtensions returns all file extensions that have a registered grammar, sorted.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extIndex))
	for ext := range r.extIndex {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Restrict returns a registry containing only the given languages. An empty
// list keeps every language.
func (r *Registry) Restrict(langs []string) *Registry {
	if len(langs) == 0 {
		return r
	}
	out := NewRegistry()
	for _, l := range langs {
		if g, ok := r.Get(Language(strings.ToLower(l))); ok {
			out.Register(g)
		}
	}
	return out
}
