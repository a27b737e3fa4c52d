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
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// PythonParser extracts declared classes, functions, and imports from
// Python source using tree-sitter.
//
// # Thread Safety
//
// Safe for concurrent use: every Parse call creates its own tree-sitter
// parser instance.
type PythonParser struct{}

// Compile-time interface check.
var _ StructureParser = (*PythonParser)(nil)

// NewPythonParser creates a Python structural parser.
func NewPythonParser() *PythonParser {
	return &PythonParser{}
}

// Language returns "Python", matching the extension table.
func (p *PythonParser) Language() string {
	return "Python"
}

// Extensions returns the extensions this parser covers.
func (p *PythonParser) Extensions() []string {
	return []string{".py"}
}

// Parse extracts the structural summary from Python source.
//
// The walk is recursive, so methods and nested functions land in the
// functions list alongside top-level definitions, and imports are picked
// up at any nesting depth. Syntax errors in the source do not fail the
// parse; whatever declarations tree-sitter recovered are returned.
func (p *PythonParser) Parse(ctx context.Context, content []byte) (*snapshot.Structure, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("python parse canceled: %w", err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("python parse: content is not valid UTF-8")
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("python parse: %w", err)
	}
	defer tree.Close()

	structure := emptyStructure()
	root := tree.RootNode()
	if root == nil {
		return structure, nil
	}

	p.walk(root, content, structure)
	return structure, nil
}

// walk visits every node, collecting declarations as it descends.
func (p *PythonParser) walk(node *sitter.Node, content []byte, out *snapshot.Structure) {
	switch node.Type() {
	case "class_definition":
		if name := fieldText(node, "name", content); name != "" {
			out.Classes = append(out.Classes, name)
		}
	case "function_definition":
		if name := fieldText(node, "name", content); name != "" {
			out.Functions = append(out.Functions, name)
		}
	case "import_statement":
		p.collectImport(node, content, out)
	case "import_from_statement":
		p.collectImportFrom(node, content, out)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walk(node.Child(i), content, out)
	}
}

// collectImport handles 'import foo' and 'import foo as bar'.
func (p *PythonParser) collectImport(node *sitter.Node, content []byte, out *snapshot.Structure) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			out.Imports = append(out.Imports, nodeText(child, content))
		case "aliased_import":
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				if grandchild.Type() == "dotted_name" {
					out.Imports = append(out.Imports, nodeText(grandchild, content))
					break
				}
			}
		}
	}
}

// collectImportFrom handles 'from x import y' in its variants, recording
// each imported name as "<module>.<name>".
func (p *PythonParser) collectImportFrom(node *sitter.Node, content []byte, out *snapshot.Structure) {
	var modulePath string
	var names []string
	sawImport := false

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "relative_import":
			modulePath = nodeText(child, content)
		case "dotted_name":
			if sawImport {
				names = append(names, nodeText(child, content))
			} else {
				modulePath = nodeText(child, content)
			}
		case "aliased_import":
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				if grandchild.Type() == "dotted_name" || grandchild.Type() == "identifier" {
					names = append(names, nodeText(grandchild, content))
					break
				}
			}
		case "wildcard_import":
			names = append(names, "*")
		case "identifier":
			if sawImport {
				names = append(names, nodeText(child, content))
			}
		}
	}

	for _, name := range names {
		out.Imports = append(out.Imports, modulePath+"."+name)
	}
}

// fieldText returns the text of a named field child, or "".
func fieldText(node *sitter.Node, field string, content []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return nodeText(child, content)
}

// nodeText returns the source text a node spans.
func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}
