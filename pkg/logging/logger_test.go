// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"  Info  ", LevelInfo, false},
		{"", LevelInfo, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	defer logger.Close()

	if logger.Slog() == nil {
		t.Error("Slog() returned nil")
	}
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Error("logger.file is nil when LogDir specified")
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) == 0 {
		t.Error("No log file created in LogDir")
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir: tmpDir,
		Quiet:  true,
	})
	defer logger.Close()

	// Should use "aleutian" as default service name
	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "aleutian_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Expected log file with 'aleutian_' prefix")
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	// File handler setup is best-effort: an uncreatable directory must
	// not break the logger.
	logger := New(Config{
		LogDir: "/proc/nonexistent/deep/path/that/should/fail",
		Quiet:  true,
	})
	defer logger.Close()

	if logger.file != nil {
		t.Error("expected no file handle for invalid LogDir")
	}

	// Logging must still work.
	logger.Info("still alive")
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("expected LevelInfo, got %v", logger.config.Level)
	}
	if logger.config.Service != "ingestd" {
		t.Errorf("expected service 'ingestd', got %q", logger.config.Service)
	}
}

// =============================================================================
// Output Tests
// =============================================================================

// readLogFile returns the contents of the single log file in dir.
func readLogFile(t *testing.T, dir string) string {
	t.Helper()

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("No log file created")
	}

	content, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestLogger_FileContent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "file-test",
		Quiet:   true,
	})

	logger.Info("test message", "key", "value")
	logger.Close()

	content := readLogFile(t, tmpDir)

	// File logs are JSON with the service attribute applied.
	if !strings.Contains(content, "test message") {
		t.Error("Log file should contain 'test message'")
	}
	if !strings.Contains(content, "\"key\":\"value\"") {
		t.Error("Log file should contain key-value pair in JSON format")
	}
	if !strings.Contains(content, "\"service\":\"file-test\"") {
		t.Error("Log file should contain the service attribute")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:  LevelWarn, // Only Warn and Error
		LogDir: tmpDir,
		Quiet:  true,
	})

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")
	logger.Close()

	content := readLogFile(t, tmpDir)

	if strings.Contains(content, "debug line") || strings.Contains(content, "info line") {
		t.Error("Levels below Warn should be filtered out")
	}
	if !strings.Contains(content, "warn line") || !strings.Contains(content, "error line") {
		t.Error("Warn and Error lines should be present")
	}
}

func TestLogger_With(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir: tmpDir,
		Quiet:  true,
	})

	child := logger.With("request_id", "abc123")
	child.Info("request started")
	logger.Close()

	content := readLogFile(t, tmpDir)
	if !strings.Contains(content, "abc123") {
		t.Error("Child logger attributes should appear in output")
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})
	defer logger.Close()

	child := logger.With("child", true)
	if child.file != logger.file {
		t.Error("Child logger should share file handle")
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestLogger_Close_NoFile(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() without file returned %v", err)
	}
}

func TestLogger_Close_Twice(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})

	if err := logger.Close(); err != nil {
		t.Errorf("first Close() returned %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() returned %v", err)
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestLogger_ConcurrentUse(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir: tmpDir,
		Quiet:  true,
	})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Info("concurrent", "goroutine", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()
}

// =============================================================================
// Multi-Handler Tests
// =============================================================================

func TestMultiHandler_Handle(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf1, nil),
		slog.NewJSONHandler(&buf2, nil),
	}}

	logger := slog.New(h)
	logger.Info("fan out")

	if !strings.Contains(buf1.String(), "fan out") {
		t.Error("first handler did not receive the record")
	}
	if !strings.Contains(buf2.String(), "fan out") {
		t.Error("second handler did not receive the record")
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}

	// Enabled if any handler is enabled.
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected Enabled=true when one handler accepts Debug")
	}
}

func TestMultiHandler_LevelFiltering(t *testing.T) {
	var strict, loose bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&strict, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewJSONHandler(&loose, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}

	logger := slog.New(h)
	logger.Info("selective")

	if strings.Contains(strict.String(), "selective") {
		t.Error("Error-level handler should not receive Info records")
	}
	if !strings.Contains(loose.String(), "selective") {
		t.Error("Debug-level handler should receive Info records")
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf, nil),
	}}

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "test")})
	slog.New(withAttrs).Info("attributed")

	if !strings.Contains(buf.String(), "\"component\":\"test\"") {
		t.Error("expected attribute in output")
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := expandPath(tt.input); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
