// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"context"
	"sync"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// StructureParser extracts a structural summary from source content.
//
// Implementations handle one language each and must be safe for
// concurrent use. A parser may return partial results alongside a nil
// error for source with recoverable syntax problems; a non-nil error
// means the parse produced nothing usable and the caller degrades to an
// empty structure.
type StructureParser interface {
	// Parse extracts declared classes, functions, and imports.
	//
	// Returned slices are always non-nil on success.
	Parse(ctx context.Context, content []byte) (*snapshot.Structure, error)

	// Language returns the language tag this parser handles, matching
	// the extension table's naming ("Python", "Go").
	Language() string

	// Extensions returns the file extensions this parser covers,
	// including the leading dot.
	Extensions() []string
}

// Registry maps languages and file extensions to structural parsers.
//
// # Thread Safety
//
// Fully thread-safe: registration takes a write lock, lookups a read
// lock.
type Registry struct {
	mu sync.RWMutex

	byLanguage  map[string]StructureParser
	byExtension map[string]StructureParser
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byLanguage:  make(map[string]StructureParser),
		byExtension: make(map[string]StructureParser),
	}
}

// Register adds a parser under its language and all its extensions,
// overwriting any previous registration.
func (r *Registry) Register(parser StructureParser) {
	if parser == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[parser.Language()] = parser
	for _, ext := range parser.Extensions() {
		r.byExtension[ext] = parser
	}
}

// GetByLanguage returns the parser registered for a language.
func (r *Registry) GetByLanguage(language string) (StructureParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byLanguage[language]
	return parser, ok
}

// GetByExtension returns the parser registered for an extension
// (including the leading dot).
func (r *Registry) GetByExtension(ext string) (StructureParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byExtension[ext]
	return parser, ok
}

// Languages lists the registered language tags.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	languages := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		languages = append(languages, lang)
	}
	return languages
}
