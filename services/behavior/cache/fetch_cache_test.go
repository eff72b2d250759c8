// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

func okFetch(id string) *datatypes.SourceFetch {
	return &datatypes.SourceFetch{SourceID: id, Status: datatypes.FetchOK}
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	c := New(DefaultOptions())
	var loads int64

	// 100 concurrent callers for one fingerprint share one load.
	var wg sync.WaitGroup
	results := make([]*datatypes.SourceFetch, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrFetch(context.Background(), "fp-1", time.Minute,
				func(ctx context.Context) *datatypes.SourceFetch {
					atomic.AddInt64(&loads, 1)
					time.Sleep(10 * time.Millisecond)
					return okFetch("market")
				})
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&loads); got != 1 {
		t.Fatalf("loads = %d, want exactly 1", got)
	}
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("caller %d observed a different result pointer", i)
		}
	}
}

func TestGetOrFetchRespectsTTL(t *testing.T) {
	c := New(DefaultOptions())
	var loads int64
	load := func(ctx context.Context) *datatypes.SourceFetch {
		atomic.AddInt64(&loads, 1)
		return okFetch("weather")
	}

	first := c.GetOrFetch(context.Background(), "fp-ttl", 20*time.Millisecond, load)
	second := c.GetOrFetch(context.Background(), "fp-ttl", 20*time.Millisecond, load)
	if first != second {
		t.Fatal("within the TTL the identical cached result must be returned")
	}
	if loads != 1 {
		t.Fatalf("loads = %d, want 1", loads)
	}

	time.Sleep(30 * time.Millisecond)
	_ = c.GetOrFetch(context.Background(), "fp-ttl", 20*time.Millisecond, load)
	if loads != 2 {
		t.Fatalf("loads after expiry = %d, want 2", loads)
	}
}

func TestNegativeCachingUsesErrorTTL(t *testing.T) {
	opts := DefaultOptions()
	opts.ErrorTTL = 15 * time.Millisecond
	c := New(opts)

	var loads int64
	load := func(ctx context.Context) *datatypes.SourceFetch {
		atomic.AddInt64(&loads, 1)
		return &datatypes.SourceFetch{
			SourceID:  "health",
			Status:    datatypes.FetchError,
			ErrorKind: datatypes.ErrKindUpstreamUnavailable,
		}
	}

	// The error result is held despite the long success TTL...
	_ = c.GetOrFetch(context.Background(), "fp-err", time.Hour, load)
	_ = c.GetOrFetch(context.Background(), "fp-err", time.Hour, load)
	if loads != 1 {
		t.Fatalf("loads = %d, want 1 (negative cache hit)", loads)
	}

	// ...but only for the short error TTL.
	time.Sleep(25 * time.Millisecond)
	_ = c.GetOrFetch(context.Background(), "fp-err", time.Hour, load)
	if loads != 2 {
		t.Fatalf("loads after error TTL = %d, want 2", loads)
	}
}

func TestLRUEviction(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxEntries = 4
	c := New(opts)

	for i := 0; i < 8; i++ {
		fp := fmt.Sprintf("fp-%d", i)
		_ = c.GetOrFetch(context.Background(), fp, time.Minute,
			func(ctx context.Context) *datatypes.SourceFetch { return okFetch(fp) })
	}

	stats := c.Stats()
	if stats.EntryCount > opts.MaxEntries {
		t.Fatalf("entry count = %d, must stay under %d", stats.EntryCount, opts.MaxEntries)
	}
	if stats.Evictions == 0 {
		t.Fatal("filling past the cap must evict")
	}

	// The oldest fingerprints are gone, the newest survive.
	if _, ok := c.Get("fp-0"); ok {
		t.Error("fp-0 should have been evicted")
	}
	if _, ok := c.Get("fp-7"); !ok {
		t.Error("fp-7 should still be cached")
	}
}

func TestInvalidate(t *testing.T) {
	c := New(DefaultOptions())
	_ = c.GetOrFetch(context.Background(), "fp-x", time.Minute,
		func(ctx context.Context) *datatypes.SourceFetch { return okFetch("market") })

	c.Invalidate("fp-x")
	if _, ok := c.Get("fp-x"); ok {
		t.Fatal("invalidated fingerprint must miss")
	}
}
