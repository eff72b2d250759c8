// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the process-local fetch cache keyed by source
// fingerprint, with per-fingerprint single-flight loading, per-source
// TTLs, short-lived negative caching, and LRU bounding.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

// LoadFunc performs the actual upstream fetch on a cache miss.
type LoadFunc func(ctx context.Context) *datatypes.SourceFetch

// Options bounds the cache.
type Options struct {
	// MaxEntries caps the total entry count across all fingerprints.
	MaxEntries int

	// DefaultTTL applies when a load result carries no per-source TTL.
	DefaultTTL time.Duration

	// ErrorTTL is the short negative-cache lifetime for error results,
	// long enough to absorb a stampede, short enough to recover fast.
	ErrorTTL time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries: 1024,
		DefaultTTL: 30 * time.Minute,
		ErrorTTL:   30 * time.Second,
	}
}

type entry struct {
	fetch      *datatypes.SourceFetch
	storedAt   time.Time
	ttl        time.Duration
	lruElement *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Stats is a snapshot of cache counters.
type Stats struct {
	EntryCount int   `json:"entry_count"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Loads      int64 `json:"loads"`
	Errors     int64 `json:"errors"`
	Evictions  int64 `json:"evictions"`
	MaxEntries int   `json:"max_entries"`
}

// FetchCache maps fetch fingerprints to time-stamped results.
//
// Guarantees, in order of importance:
//
//  1. At-most-one-in-flight: concurrent callers for one fingerprint
//     share a single load; everyone observes the same result, success
//     or error.
//  2. TTL: entries expire per the source TTL handed to GetOrFetch and
//     are lazily refreshed on next access.
//  3. Bounded size: LRU eviction keeps the entry count under MaxEntries.
//  4. Negative caching: error results are kept for ErrorTTL so a dead
//     upstream doesn't get hammered by every queued request.
//
// Within one TTL window, repeated gets return the identical cached
// *SourceFetch, so series bytes are identical by construction.
//
// Thread safety: safe for concurrent use. RWMutex over the entry map,
// singleflight for loads.
type FetchCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lru     *list.List
	flight  singleflight.Group
	opts    Options

	hits      int64
	misses    int64
	loads     int64
	errors    int64
	evictions int64
}

// New builds a FetchCache. Zero option fields get defaults.
func New(opts Options) *FetchCache {
	def := DefaultOptions()
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = def.MaxEntries
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = def.DefaultTTL
	}
	if opts.ErrorTTL <= 0 {
		opts.ErrorTTL = def.ErrorTTL
	}
	return &FetchCache{
		entries: make(map[string]*entry),
		lru:     list.New(),
		opts:    opts,
	}
}

// Get returns the cached fetch for a fingerprint if fresh.
func (c *FetchCache) Get(fingerprint string) (*datatypes.SourceFetch, bool) {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.entries[fingerprint]
	if !ok || e.expired(now) {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	fetch := e.fetch
	c.mu.RUnlock()

	c.touch(fingerprint)
	atomic.AddInt64(&c.hits, 1)
	return fetch, true
}

// GetOrFetch returns the cached result for a fingerprint, loading it at
// most once across all concurrent callers on a miss.
//
// ttl is the success lifetime for this source; error results always use
// the short negative-cache TTL instead. The returned SourceFetch is
// shared: callers must treat it as immutable.
func (c *FetchCache) GetOrFetch(ctx context.Context, fingerprint string, ttl time.Duration, load LoadFunc) *datatypes.SourceFetch {
	if fetch, ok := c.Get(fingerprint); ok {
		return fetch
	}

	v, _, _ := c.flight.Do(fingerprint, func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have stored
		// a fresh entry between our miss and the flight acquiring.
		if fetch, ok := c.Get(fingerprint); ok {
			return fetch, nil
		}
		atomic.AddInt64(&c.loads, 1)
		fetch := load(ctx)
		c.store(fingerprint, fetch, ttl)
		return fetch, nil
	})
	return v.(*datatypes.SourceFetch)
}

// store inserts a load result with the appropriate TTL.
func (c *FetchCache) store(fingerprint string, fetch *datatypes.SourceFetch, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}
	if fetch.Status == datatypes.FetchError {
		ttl = c.opts.ErrorTTL
		atomic.AddInt64(&c.errors, 1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[fingerprint]; ok && old.lruElement != nil {
		c.lru.Remove(old.lruElement)
	}
	c.evictIfNeededLocked()

	e := &entry{fetch: fetch, storedAt: time.Now(), ttl: ttl}
	e.lruElement = c.lru.PushFront(fingerprint)
	c.entries[fingerprint] = e
}

// Invalidate drops a fingerprint immediately.
func (c *FetchCache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fingerprint]; ok {
		if e.lruElement != nil {
			c.lru.Remove(e.lruElement)
		}
		delete(c.entries, fingerprint)
	}
}

// Stats returns a counter snapshot.
func (c *FetchCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		EntryCount: len(c.entries),
		Hits:       atomic.LoadInt64(&c.hits),
		Misses:     atomic.LoadInt64(&c.misses),
		Loads:      atomic.LoadInt64(&c.loads),
		Errors:     atomic.LoadInt64(&c.errors),
		Evictions:  atomic.LoadInt64(&c.evictions),
		MaxEntries: c.opts.MaxEntries,
	}
}

// touch moves a fingerprint to the LRU front.
func (c *FetchCache) touch(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fingerprint]; ok && e.lruElement != nil {
		c.lru.MoveToFront(e.lruElement)
	}
}

// evictIfNeededLocked drops entries from the LRU back until under the
// cap. Caller holds the write lock.
func (c *FetchCache) evictIfNeededLocked() {
	for len(c.entries) >= c.opts.MaxEntries {
		back := c.lru.Back()
		if back == nil {
			return
		}
		fp := back.Value.(string)
		c.lru.Remove(back)
		delete(c.entries, fp)
		atomic.AddInt64(&c.evictions, 1)
	}
}
