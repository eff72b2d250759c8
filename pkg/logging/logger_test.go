// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func logFilePath(dir, service string) string {
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return filepath.Join(dir, name)
}

func TestFileLoggingWritesJSON(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Service: "behaviord",
		LogDir:  dir,
		Quiet:   true,
	})

	logger.Info("forecast served", "region", "us_il", "horizon", 7)
	logger.Warn("degraded forecast served", "region", "us_az")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(logFilePath(dir, "behaviord"))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		if entry["service"] != "behaviord" {
			t.Errorf("line %d missing service attribute: %v", lines, entry)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("log file has %d entries, want 2", lines)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Service: "probe",
		LogDir:  dir,
		Level:   slog.LevelWarn,
		Quiet:   true,
	})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Error("kept")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(logFilePath(dir, "probe"))
	if err != nil {
		t.Fatal(err)
	}
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("expected exactly one JSON entry, got %q", raw)
	}
	if entry["msg"] != "kept" {
		t.Errorf("surviving entry = %v, want the error line", entry)
	}
}

func TestWithSharesDestinations(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Service: "behaviord", LogDir: dir, Quiet: true})

	child := logger.With("region", "us_ny")
	child.Info("warm-up cycle")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(logFilePath(dir, "behaviord"))
	if err != nil {
		t.Fatal(err)
	}
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatal(err)
	}
	if entry["region"] != "us_ny" {
		t.Errorf("child attribute missing: %v", entry)
	}
}

func TestDefaultNeedsNoCleanup(t *testing.T) {
	logger := Default()
	logger.Info("hello")
	if err := logger.Close(); err != nil {
		t.Errorf("Close without a file must be a no-op, got %v", err)
	}
}

func TestSlogAccessor(t *testing.T) {
	logger := Default()
	if logger.Slog() == nil {
		t.Fatal("Slog() must expose the underlying logger")
	}
}
