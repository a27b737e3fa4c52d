// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the ingestd YAML configuration.
package config

import (
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// Server: bind address and debug mode
	Server ServerConfig `yaml:"server"`

	// Logging: level, optional log directory, output format
	Logging LoggingConfig `yaml:"logging"`

	// Storage: durable backend selection plus tier tuning
	Storage StorageConfig `yaml:"storage"`

	// Session: working set bounds for hot sessions
	Session SessionConfig `yaml:"session"`

	// Ingest: payload filtering overrides
	Ingest IngestConfig `yaml:"ingest"`

	// Telemetry: trace and metric exporter selection
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host  string `yaml:"host"`  // e.g. 0.0.0.0
	Port  int    `yaml:"port"`  // e.g. 12215
	Debug bool   `yaml:"debug"` // gin debug mode + request logging
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Dir, when set, adds a daily JSON log file under this directory.
	Dir string `yaml:"dir,omitempty"`

	// JSON switches the stderr handler to JSON output.
	JSON bool `yaml:"json"`
}

type StorageConfig struct {
	// Backend can be "badger" (embedded, single node) or "gcs" (shared
	// bucket).
	Backend string `yaml:"backend"`

	Badger BadgerConfig `yaml:"badger"`
	GCS    GCSConfig    `yaml:"gcs"`
	Cache  CacheConfig  `yaml:"cache"`
}

type BadgerConfig struct {
	Path              string  `yaml:"path"`                // database directory
	InMemory          bool    `yaml:"in_memory"`           // no persistence; demo runs
	SyncWrites        bool    `yaml:"sync_writes"`         // fsync every write
	GCIntervalMinutes int     `yaml:"gc_interval_minutes"` // 0 disables value log GC
	GCDiscardRatio    float64 `yaml:"gc_discard_ratio"`
}

// GCInterval returns the value log GC interval.
func (c BadgerConfig) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalMinutes) * time.Minute
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

type CacheConfig struct {
	MaxEntries  int `yaml:"max_entries"`
	MaxMemoryMB int `yaml:"max_memory_mb"`
	TTLMinutes  int `yaml:"ttl_minutes"`

	// FileLimitKB is the per-file cache eligibility threshold. Files at
	// or above this size stay durable-only.
	FileLimitKB int `yaml:"file_limit_kb"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// MaxMemoryBytes returns the soft memory limit in bytes.
func (c CacheConfig) MaxMemoryBytes() int64 {
	return int64(c.MaxMemoryMB) << 20
}

// FileLimitBytes returns the per-file threshold in bytes.
func (c CacheConfig) FileLimitBytes() int {
	return c.FileLimitKB * 1024
}

type SessionConfig struct {
	WorkingSetSize       int `yaml:"working_set_size"`
	WorkingSetTTLMinutes int `yaml:"working_set_ttl_minutes"`
}

// WorkingSetTTL returns the working set entry lifetime.
func (c SessionConfig) WorkingSetTTL() time.Duration {
	return time.Duration(c.WorkingSetTTLMinutes) * time.Minute
}

type IngestConfig struct {
	// IgnorePatterns replaces the built-in ignore list when non-empty.
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`
}

type TelemetryConfig struct {
	// Enabled gates the whole OTel stack. Off means no exporters and no
	// /metrics route.
	Enabled bool `yaml:"enabled"`

	// TraceExporter can be "otlp", "stdout", or "none".
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter can be "prometheus", "stdout", or "none".
	MetricExporter string `yaml:"metric_exporter"`

	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Environment  string `yaml:"environment,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present:
// embedded badger under ~/.aleutian/ingestd, info logging to stderr,
// telemetry off.
func DefaultConfig() Config {
	badgerPath := "data/badger"
	if home, err := os.UserHomeDir(); err == nil {
		badgerPath = filepath.Join(home, ".aleutian", "ingestd", "badger")
	}

	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 12215,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Storage: StorageConfig{
			Backend: "badger",
			Badger: BadgerConfig{
				Path:              badgerPath,
				SyncWrites:        true,
				GCIntervalMinutes: 5,
				GCDiscardRatio:    0.5,
			},
			Cache: CacheConfig{
				MaxEntries:  4096,
				MaxMemoryMB: 256,
				TTLMinutes:  60,
				FileLimitKB: 512,
			},
		},
		Session: SessionConfig{
			WorkingSetSize:       256,
			WorkingSetTTLMinutes: 30,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			TraceExporter:  "otlp",
			MetricExporter: "prometheus",
		},
	}
}
