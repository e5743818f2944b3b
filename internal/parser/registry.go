package parser

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Content sampling limits used during parser selection.
const (
	SampleLines = 10
	SampleChars = 4096
)

// extensionFormats maps file extensions to their preferred format.
var extensionFormats = map[string]Format{
	".json":   FormatJSON,
	".ndjson": FormatJSON,
	".csv":    FormatCSV,
	".tsv":    FormatCSV,
	".log":    FormatText,
	".txt":    FormatText,
	".out":    FormatText,
	".err":    FormatText,
}

// Factory creates a fresh parser instance. Parsers are stateful, so each
// job gets its own instance; the registry keeps a prototype per format
// for detection and introspection only.
type Factory func() Parser

type registration struct {
	factory   Factory
	prototype Parser
}

// Registry holds parser factories sorted by priority descending.
// Mutation happens only during configuration changes; lookups take a
// read lock and work on a consistent snapshot.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns a registry with the built-in parsers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(func() Parser { return NewJSONParser() })
	r.Register(func() Parser { return NewCSVParser() })
	r.Register(func() Parser { return NewTextParser() })
	return r
}

// Register adds a parser factory, replacing any previous registration
// for the same format.
func (r *Registry) Register(f Factory) {
	proto := f()

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.entries {
		if reg.prototype.Format() == proto.Format() {
			r.entries[i] = registration{factory: f, prototype: proto}
			r.sortLocked()
			return
		}
	}
	r.entries = append(r.entries, registration{factory: f, prototype: proto})
	r.sortLocked()
}

// Unregister removes the parser for a format.
func (r *Registry) Unregister(format Format) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.entries {
		if reg.prototype.Format() == format {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *Registry) sortLocked() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].prototype.Priority() > r.entries[j].prototype.Priority()
	})
}

// ForFile selects a parser for the file and returns a fresh instance.
// Selection order: extension match verified by CanParse, then content
// detection by priority, then the text parser as fallback.
func (r *Registry) ForFile(fileName, sample string) (Parser, error) {
	r.mu.RLock()
	entries := make([]registration, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	if len(entries) == 0 {
		return nil, ErrNoParser
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if format, ok := extensionFormats[ext]; ok {
		for _, reg := range entries {
			if reg.prototype.Format() == format && reg.prototype.CanParse(fileName, sample) {
				return reg.factory(), nil
			}
		}
	}

	for _, reg := range entries {
		if reg.prototype.CanParse(fileName, sample) {
			return reg.factory(), nil
		}
	}

	for _, reg := range entries {
		if reg.prototype.Format() == FormatText {
			return reg.factory(), nil
		}
	}

	return nil, ErrNoParser
}

// ByFormat returns a fresh parser instance for the named format.
// Matching is case-insensitive.
func (r *Registry) ByFormat(name string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.entries {
		if strings.EqualFold(string(reg.prototype.Format()), name) {
			return reg.factory(), true
		}
	}
	return nil, false
}

// Formats returns the registered formats in priority order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]Format, 0, len(r.entries))
	for _, reg := range r.entries {
		formats = append(formats, reg.prototype.Format())
	}
	return formats
}

// Info describes a registered parser for introspection endpoints.
type Info struct {
	Format      Format `json:"format"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	MultiLine   bool   `json:"multiLine"`
}

// Infos returns metadata for all registered parsers in priority order.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.entries))
	for _, reg := range r.entries {
		infos = append(infos, Info{
			Format:      reg.prototype.Format(),
			Description: reg.prototype.Description(),
			Priority:    reg.prototype.Priority(),
			MultiLine:   reg.prototype.MultiLine(),
		})
	}
	return infos
}
