// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestJournalAppendAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecasts.ndjson")
	j, err := Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		j.Append(Record{
			RegionID:     "us_il",
			CreatedAtISO: "2026-08-24T12:00:00Z",
			Fingerprint:  "abc",
			ResultDigest: "def",
			ModelName:    "naive_last",
			Horizon:      7,
		})
	}
	j.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if rec.RegionID != "us_il" || rec.Horizon != 7 {
			t.Fatalf("unexpected record %+v", rec)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("journal has %d lines, want 3", lines)
	}
}

func TestJournalBatchFlushOnTimer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecasts.ndjson")
	j, err := Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	// One record is below the batch size; the interval flush picks it up.
	j.Append(Record{RegionID: "us_az", Horizon: 1})

	deadline := time.Now().Add(2*flushInterval + time.Second)
	for time.Now().Before(deadline) {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("record never reached disk within the flush interval")
}

func TestNilJournalIsNoOp(t *testing.T) {
	j, err := Open("", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if j != nil {
		t.Fatal("empty path must disable journaling")
	}
	// All methods must be safe on the disabled journal.
	j.Append(Record{RegionID: "us_il"})
	if j.Dropped() != 0 {
		t.Fatal("disabled journal drops nothing")
	}
	j.Close()
}

func TestFromResult(t *testing.T) {
	created, _ := time.Parse(time.RFC3339, "2026-08-24T09:30:00Z")
	res := &datatypes.ForecastResult{
		RegionID:           "us_ny",
		CreatedAt:          created,
		HorizonDays:        14,
		ModelName:          "exp_smoothing_trend",
		RequestFingerprint: "fp",
		Digest:             "dg",
	}
	rec := FromResult(res)
	if rec.CreatedAtISO != "2026-08-24T09:30:00Z" {
		t.Errorf("CreatedAtISO = %s", rec.CreatedAtISO)
	}
	if rec.RegionID != "us_ny" || rec.Horizon != 14 ||
		rec.Fingerprint != "fp" || rec.ResultDigest != "dg" {
		t.Errorf("unexpected record %+v", rec)
	}
}
