// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metadata derives per-file metadata from raw content: a language
// tag, line metrics, a structural summary for languages with a registered
// parser, and declared dependencies for recognized manifests.
//
// # Description
//
// Extraction is deterministic and total. Extract never returns an error:
// malformed source degrades to empty structural lists, oversized or
// non-UTF-8 content skips structural parsing, and unknown extensions get
// the "Unknown" language tag with line metrics only. Ingestion must never
// fail because of what a file contains.
//
// # Thread Safety
//
// An Extractor is safe for concurrent use. Each structural parse builds
// its own tree-sitter parser instance.
package metadata

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// DefaultMaxParseSize is the largest content size, in bytes, that still
// gets a structural parse. Larger files keep line metrics only.
const DefaultMaxParseSize = 10 * 1024 * 1024

// languageByExtension is the fixed extension → language table. Unknown
// extensions map to "Unknown".
var languageByExtension = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".jsx":   "React",
	".tsx":   "React TypeScript",
	".java":  "Java",
	".cpp":   "C++",
	".c":     "C",
	".go":    "Go",
	".rb":    "Ruby",
	".php":   "PHP",
	".rs":    "Rust",
	".swift": "Swift",
	".kt":    "Kotlin",
	".cs":    "C#",
	".html":  "HTML",
	".css":   "CSS",
	".scss":  "SCSS",
	".sql":   "SQL",
	".md":    "Markdown",
	".json":  "JSON",
	".yaml":  "YAML",
	".yml":   "YAML",
	".xml":   "XML",
	".sh":    "Shell",
	".bash":  "Shell",
}

// lineCommentLeaders maps a language to its line-comment prefix. Languages
// absent from the table have no line comments and count zero comment
// lines; unknown languages fall back to "#".
var lineCommentLeaders = map[string]string{
	"Python":           "#",
	"Ruby":             "#",
	"Shell":            "#",
	"YAML":             "#",
	"Go":               "//",
	"JavaScript":       "//",
	"TypeScript":       "//",
	"React":            "//",
	"React TypeScript": "//",
	"Java":             "//",
	"C":                "//",
	"C++":              "//",
	"C#":               "//",
	"Rust":             "//",
	"Swift":            "//",
	"Kotlin":           "//",
	"PHP":              "//",
	"SCSS":             "//",
	"SQL":              "--",
	"HTML":             "",
	"CSS":              "",
	"JSON":             "",
	"Markdown":         "",
	"XML":              "",
}

// DetectLanguage returns the language tag for a file path.
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(path.Ext(filePath))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "Unknown"
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxParseSize caps the content size eligible for structural parsing.
func WithMaxParseSize(bytes int64) Option {
	return func(e *Extractor) {
		if bytes > 0 {
			e.maxParseSize = bytes
		}
	}
}

// WithParser registers an additional structural parser.
func WithParser(p StructureParser) Option {
	return func(e *Extractor) {
		e.registry.Register(p)
	}
}

// Extractor derives FileMetadata from path and content.
type Extractor struct {
	registry     *Registry
	maxParseSize int64
}

// NewExtractor builds an Extractor with the Python and Go structural
// parsers registered.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		registry:     NewRegistry(),
		maxParseSize: DefaultMaxParseSize,
	}
	e.registry.Register(NewPythonParser())
	e.registry.Register(NewGoParser())

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract derives metadata for one file.
//
// # Description
//
// Always succeeds: the result carries the detected language, content
// size, sniffed MIME type, and line metrics. When a parser is registered
// for the language, a structural summary is attached; parse problems
// degrade to empty structural lists. When the file is a recognized
// dependency manifest, declared dependencies are attached.
//
// # Inputs
//
//	ctx      - Bounds structural parsing; a done context skips it.
//	filePath - Path relative to the codebase root.
//	content  - Full file content.
//
// # Outputs
//
//	*snapshot.FileMetadata - Best-effort metadata, never nil.
func (e *Extractor) Extract(ctx context.Context, filePath, content string) *snapshot.FileMetadata {
	language := DetectLanguage(filePath)

	meta := &snapshot.FileMetadata{
		Language:  language,
		SizeBytes: len(content),
		MimeType:  mimetype.Detect([]byte(content)).String(),
		Lines:     lineMetrics(language, content),
	}

	if parser, ok := e.registry.GetByLanguage(language); ok {
		meta.Structure = e.parseStructure(ctx, parser, filePath, content)
	}

	if deps := extractManifestDependencies(filePath, content); deps != nil {
		meta.Dependencies = deps
	}

	return meta
}

// parseStructure runs a structural parse, degrading every failure to the
// empty structure.
func (e *Extractor) parseStructure(ctx context.Context, parser StructureParser, filePath, content string) *snapshot.Structure {
	if int64(len(content)) > e.maxParseSize {
		slog.Debug("skipping structural parse of oversized file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
		return emptyStructure()
	}

	structure, err := parser.Parse(ctx, []byte(content))
	if err != nil {
		slog.Debug("structural parse degraded",
			slog.String("file", filePath),
			slog.String("language", parser.Language()),
			slog.String("error", err.Error()))
		return emptyStructure()
	}
	return structure
}

func emptyStructure() *snapshot.Structure {
	return &snapshot.Structure{
		Classes:   []string{},
		Functions: []string{},
		Imports:   []string{},
	}
}

// lineMetrics computes the line-level counts and lengths for content.
//
// Empty content yields all-zero metrics. Comment lines are those starting
// (after leading whitespace) with the language's line-comment leader.
func lineMetrics(language, content string) snapshot.LineMetrics {
	if content == "" {
		return snapshot.LineMetrics{}
	}

	leader, known := lineCommentLeaders[language]
	if !known {
		leader = "#"
	}

	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	var metrics snapshot.LineMetrics
	metrics.Total = len(lines)

	totalLen := 0
	for _, line := range lines {
		totalLen += len(line)
		if len(line) > metrics.MaxLineLength {
			metrics.MaxLineLength = len(line)
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			metrics.Blank++
		case leader != "" && strings.HasPrefix(trimmed, leader):
			metrics.Comment++
		default:
			metrics.Code++
		}
	}

	metrics.AvgLineLength = float64(totalLen) / float64(len(lines))
	return metrics
}
