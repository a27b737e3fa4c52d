// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns the conventional config location
// (~/.aleutian/ingestd.yaml), or "" when the home directory cannot be
// determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".aleutian", "ingestd.yaml")
}

// Load reads the configuration file at path, layered over defaults.
//
// Description:
//
//	Fields absent from the file keep their DefaultConfig() values. An
//	empty path means the conventional location; when nothing exists
//	there the defaults are returned as-is and nothing is written. An
//	explicit path that does not exist is an error.
//
// Inputs:
//
//	path - Config file path, or "" for the conventional location.
//
// Outputs:
//
//	Config - The effective configuration.
//	error - Non-nil for unreadable files, bad YAML, or invalid values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read the config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}

	cfg.Storage.Badger.Path = expandHome(cfg.Storage.Badger.Path)
	cfg.Storage.GCS.CredentialsFile = expandHome(cfg.Storage.GCS.CredentialsFile)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// expandHome expands a leading ~ to the user's home directory. Other
// paths are returned unchanged.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Validate checks for values the server cannot start with. Load calls
// this; main calls it again after flag overrides.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	switch c.Storage.Backend {
	case "badger":
		if !c.Storage.Badger.InMemory && c.Storage.Badger.Path == "" {
			return fmt.Errorf("storage backend badger requires a path")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage backend gcs requires a bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want badger or gcs)", c.Storage.Backend)
	}

	if r := c.Storage.Badger.GCDiscardRatio; r < 0 || r > 1 {
		return fmt.Errorf("badger gc_discard_ratio %v out of range", r)
	}
	return nil
}
