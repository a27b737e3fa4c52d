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
	"encoding/json"
	"path"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/AleutianDebug/services/code_ingest/snapshot"
)

// extractManifestDependencies parses a dependency manifest when the path
// names one, and returns nil otherwise. Parsing is best-effort: a
// malformed manifest yields nil, never an error.
func extractManifestDependencies(filePath, content string) []snapshot.Dependency {
	switch path.Base(filePath) {
	case "go.mod":
		return parseGoMod(content)
	case "requirements.txt":
		return parseRequirements(content)
	case "package.json":
		return parsePackageJSON(content)
	default:
		return nil
	}
}

// parseGoMod extracts require entries with the official module parser.
func parseGoMod(content string) []snapshot.Dependency {
	f, err := modfile.Parse("go.mod", []byte(content), nil)
	if err != nil {
		return nil
	}

	deps := make([]snapshot.Dependency, 0, len(f.Require))
	for _, req := range f.Require {
		deps = append(deps, snapshot.Dependency{
			Name:     req.Mod.Path,
			Version:  req.Mod.Version,
			Indirect: req.Indirect,
		})
	}
	return deps
}

// requirementSeparators are the pip version specifiers, longest first so
// two-character operators match before their one-character prefixes.
var requirementSeparators = []string{"==", ">=", "<=", "~=", "!=", ">", "<"}

// parseRequirements extracts entries from a pip requirements file.
//
// Comment, blank, and option lines (-r, --index-url, …) are skipped.
// Environment markers and extras are stripped from what remains.
func parseRequirements(content string) []snapshot.Dependency {
	var deps []snapshot.Dependency

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}

		// Drop environment markers: "pkg==1.0; python_version < '3.9'"
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}

		name := line
		version := ""
		for _, sep := range requirementSeparators {
			if idx := strings.Index(line, sep); idx >= 0 {
				name = strings.TrimSpace(line[:idx])
				version = strings.TrimSpace(line[idx+len(sep):])
				break
			}
		}

		// Strip extras: "uvicorn[standard]" → "uvicorn"
		if idx := strings.Index(name, "["); idx >= 0 {
			name = name[:idx]
		}

		if name != "" {
			deps = append(deps, snapshot.Dependency{Name: name, Version: version})
		}
	}
	return deps
}

// packageJSON is the subset of package.json this parser reads.
type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// parsePackageJSON extracts dependencies and devDependencies, sorted by
// name for deterministic output.
func parsePackageJSON(content string) []snapshot.Dependency {
	var pkg packageJSON
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return nil
	}

	merged := make(map[string]string, len(pkg.Dependencies)+len(pkg.DevDependencies))
	for name, version := range pkg.Dependencies {
		merged[name] = version
	}
	for name, version := range pkg.DevDependencies {
		merged[name] = version
	}
	if len(merged) == 0 {
		return nil
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make([]snapshot.Dependency, 0, len(names))
	for _, name := range names {
		deps = append(deps, snapshot.Dependency{Name: name, Version: merged[name]})
	}
	return deps
}
