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
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// GoParser extracts declared types, functions, and imports from Go
// source using tree-sitter.
//
// Declared type names (structs, interfaces, aliases) land in the
// structure's Classes list; functions and methods in Functions.
//
// # Thread Safety
//
// Safe for concurrent use: every Parse call creates its own tree-sitter
// parser instance.
type GoParser struct{}

// Compile-time interface check.
var _ StructureParser = (*GoParser)(nil)

// NewGoParser creates a Go structural parser.
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Language returns "Go", matching the extension table.
func (p *GoParser) Language() string {
	return "Go"
}

// Extensions returns the extensions this parser covers.
func (p *GoParser) Extensions() []string {
	return []string{".go"}
}

// Parse extracts the structural summary from Go source.
//
// Only top-level declarations are walked: Go nests nothing nameable
// inside function bodies. Syntax errors do not fail the parse; whatever
// declarations tree-sitter recovered are returned.
func (p *GoParser) Parse(ctx context.Context, content []byte) (*snapshot.Structure, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("go parse canceled: %w", err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("go parse: content is not valid UTF-8")
	}

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("go parse: %w", err)
	}
	defer tree.Close()

	structure := emptyStructure()
	root := tree.RootNode()
	if root == nil {
		return structure, nil
	}

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "import_declaration":
			p.collectImports(child, content, structure)
		case "function_declaration":
			if name := fieldText(child, "name", content); name != "" {
				structure.Functions = append(structure.Functions, name)
			}
		case "method_declaration":
			if name := fieldText(child, "name", content); name != "" {
				structure.Functions = append(structure.Functions, name)
			}
		case "type_declaration":
			p.collectTypes(child, content, structure)
		}
	}

	return structure, nil
}

// collectImports gathers paths from single and grouped import forms.
func (p *GoParser) collectImports(node *sitter.Node, content []byte, out *snapshot.Structure) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import_spec":
			p.collectImportSpec(child, content, out)
		case "import_spec_list":
			for j := 0; j < int(child.ChildCount()); j++ {
				spec := child.Child(j)
				if spec.Type() == "import_spec" {
					p.collectImportSpec(spec, content, out)
				}
			}
		}
	}
}

func (p *GoParser) collectImportSpec(node *sitter.Node, content []byte, out *snapshot.Structure) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "interpreted_string_literal" {
			path := strings.Trim(nodeText(child, content), "\"")
			if path != "" {
				out.Imports = append(out.Imports, path)
			}
		}
	}
}

// collectTypes gathers declared type names from a type declaration.
func (p *GoParser) collectTypes(node *sitter.Node, content []byte, out *snapshot.Structure) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "type_spec" && child.Type() != "type_alias" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			grandchild := child.Child(j)
			if grandchild.Type() == "type_identifier" {
				out.Classes = append(out.Classes, nodeText(grandchild, content))
				break
			}
		}
	}
}
