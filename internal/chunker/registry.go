package chunker

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec defines the tree-sitter grammar and query for a language.
type LanguageSpec struct {
	Language *sitter.Language
	// Query is a tree-sitter S-expression query that captures top-level
	// definitions. It must use @chunk for the outer node and @name for the
	// identifier (optional).
	Query      string
	Extensions []string
}

// fallbackLanguages maps extensions without a registered grammar to a
// language name. These files are window-split rather than parsed.
var fallbackLanguages = map[string]string{
	"c":     "c",
	"h":     "c",
	"cpp":   "cpp",
	"cc":    "cpp",
	"hpp":   "cpp",
	"rb":    "ruby",
	"php":   "php",
	"swift": "swift",
	"kt":    "kotlin",
	"scala": "scala",
	"cs":    "csharp",
	"md":    "markdown",
	"txt":   "text",
}

// Registry maps file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*LanguageSpec // extension (without dot) → spec
	langs map[string]*LanguageSpec // language name → spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*LanguageSpec),
		langs: make(map[string]*LanguageSpec),
	}
}

// Register adds a language spec under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[name] = spec
	for _, ext := range spec.Extensions {
		r.specs[ext] = spec
	}
}

// Lookup returns the grammar spec for a file path based on its extension,
// or nil when the file has no registered grammar.
func (r *Registry) Lookup(path string) (spec *LanguageSpec, lang string) {
	ext := extOf(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[ext]
	if !ok {
		return nil, ""
	}
	for name, sp := range r.langs {
		if sp == s {
			return s, name
		}
	}
	return s, ext
}

// LanguageName returns the language for a file path, consulting grammars
// first and the fallback table second. Unknown extensions return "".
func (r *Registry) LanguageName(path string) string {
	if _, lang := r.Lookup(path); lang != "" {
		return lang
	}
	return fallbackLanguages[extOf(path)]
}

// Extensions returns every extension the chunker can handle: grammar-backed
// plus fallback-eligible.
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.specs)+len(fallbackLanguages))
	for ext := range r.specs {
		exts[ext] = true
	}
	for ext := range fallbackLanguages {
		exts[ext] = true
	}
	return exts
}

func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
