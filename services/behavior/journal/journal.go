// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal appends one newline-delimited JSON record per
// completed forecast to a local file. Journaling is best effort: a
// full queue or a write error never blocks or fails a request.
package journal

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

const (
	// batchSize and flushInterval bound how much is lost on a crash:
	// records are fsynced every batchSize appends or every
	// flushInterval, whichever comes first.
	batchSize     = 16
	flushInterval = 2 * time.Second

	queueDepth = 256
)

// Record is one journal line.
type Record struct {
	RegionID     string `json:"region_id"`
	CreatedAtISO string `json:"created_at_iso"`
	Fingerprint  string `json:"fingerprint_hex"`
	ResultDigest string `json:"result_digest_hex"`
	ModelName    string `json:"model_name"`
	Horizon      int    `json:"horizon"`
}

// FromResult builds a journal record from a forecast result.
func FromResult(res *datatypes.ForecastResult) Record {
	return Record{
		RegionID:     res.RegionID,
		CreatedAtISO: res.CreatedAt.UTC().Format(time.RFC3339),
		Fingerprint:  res.RequestFingerprint,
		ResultDigest: res.Digest,
		ModelName:    res.ModelName,
		Horizon:      res.HorizonDays,
	}
}

// Journal is the append-only forecast log. A single writer goroutine
// owns the file; Append never blocks on disk.
type Journal struct {
	log *slog.Logger

	ch     chan Record
	done   chan struct{}
	closed sync.Once

	mu      sync.Mutex
	dropped int64
}

// Open starts a journal writer on path. An empty path returns a nil
// Journal, and all methods on a nil Journal are no-ops, so callers
// never need to branch on whether journaling is enabled.
func Open(path string, log *slog.Logger) (*Journal, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	j := &Journal{
		log:  log,
		ch:   make(chan Record, queueDepth),
		done: make(chan struct{}),
	}
	go j.run(f)
	return j, nil
}

// Append queues a record. Drops (and counts) the record if the queue
// is full; forecast latency is never traded for journal completeness.
func (j *Journal) Append(rec Record) {
	if j == nil {
		return
	}
	select {
	case j.ch <- rec:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
	}
}

// Dropped returns the count of records lost to a full queue.
func (j *Journal) Dropped() int64 {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Close flushes pending records and stops the writer.
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.closed.Do(func() {
		close(j.ch)
		<-j.done
	})
}

// run is the single writer loop: encode, buffer, fsync on batch or
// timer.
func (j *Journal) run(f *os.File) {
	defer close(j.done)
	defer f.Close()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	pending := 0
	flush := func() {
		if pending == 0 {
			return
		}
		if err := f.Sync(); err != nil {
			j.log.Warn("journal fsync failed", "error", err)
		}
		pending = 0
	}

	for {
		select {
		case rec, ok := <-j.ch:
			if !ok {
				flush()
				return
			}
			line, err := json.Marshal(rec)
			if err != nil {
				j.log.Warn("journal encode failed", "error", err, "region", rec.RegionID)
				continue
			}
			if _, err := f.Write(append(line, '\n')); err != nil {
				j.log.Warn("journal write failed", "error", err)
				continue
			}
			pending++
			if pending >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
