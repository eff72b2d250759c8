// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// FetchStatus is the tagged outcome of a single connector fetch.
type FetchStatus string

const (
	// FetchOK means the connector returned a non-empty daily series.
	FetchOK FetchStatus = "ok"

	// FetchEmpty means the connector ran but produced no observations
	// (including the missing-credentials case, which must not error the
	// pipeline).
	FetchEmpty FetchStatus = "empty"

	// FetchError means the connector exhausted its retry budget or hit a
	// non-retryable failure. Errors are recorded, never propagated.
	FetchError FetchStatus = "error"
)

// ErrorKind categorizes failures by behavior, not by Go type. Kinds are
// stable strings: they appear in API responses, logs, and journal records.
type ErrorKind string

const (
	ErrKindNone                 ErrorKind = ""
	ErrKindInvalidInput         ErrorKind = "invalid_input"
	ErrKindInvalidConfiguration ErrorKind = "invalid_configuration"
	ErrKindUpstreamUnavailable  ErrorKind = "upstream_unavailable"
	ErrKindMissingCredentials   ErrorKind = "missing_credentials"
	ErrKindRateLimited          ErrorKind = "rate_limited"
	ErrKindInsufficientOverlap  ErrorKind = "insufficient_overlap"
	ErrKindDeadlineExceeded     ErrorKind = "deadline_exceeded"
	ErrKindAllSourcesMissing    ErrorKind = "degraded_all_sources_missing"
	ErrKindConcurrencySaturated ErrorKind = "concurrency_saturated"
	ErrKindInternal             ErrorKind = "internal"
)

// SourceFetch is the result of one connector invocation for one region.
type SourceFetch struct {
	SourceID    string       `json:"source_id"`
	RegionID    string       `json:"region_id"`
	WindowDays  int          `json:"window_days"`
	Fingerprint string       `json:"fingerprint"`
	FetchedAt   time.Time    `json:"fetched_at"`
	Status      FetchStatus  `json:"status"`
	Series      *DailySeries `json:"series,omitempty"`
	ErrorKind   ErrorKind    `json:"error_kind,omitempty"`
}

// SourceFetchSummary is the per-source block embedded in API responses.
type SourceFetchSummary struct {
	SourceID    string      `json:"source_id"`
	Status      FetchStatus `json:"status"`
	Points      int         `json:"points"`
	ErrorKind   ErrorKind   `json:"error_kind,omitempty"`
	LastFetched time.Time   `json:"last_fetched"`
}

// Summary collapses a SourceFetch to its response form.
func (f *SourceFetch) Summary() SourceFetchSummary {
	points := 0
	if f.Series != nil {
		points = f.Series.Len()
	}
	return SourceFetchSummary{
		SourceID:    f.SourceID,
		Status:      f.Status,
		Points:      points,
		ErrorKind:   f.ErrorKind,
		LastFetched: f.FetchedAt,
	}
}

// Fingerprint computes the canonical cache key for a fetch.
//
// The hash covers the source id, the registry-ordered cache-key field
// values, and the window. Callers are responsible for passing exactly the
// fields the source's registry entry declares: a GLOBAL source passes
// none of the geo inputs, a REGIONAL source passes the rounded lat/lon.
func Fingerprint(sourceID string, keyFields []string, windowDays int) string {
	var b strings.Builder
	b.WriteString(sourceID)
	for _, f := range keyFields {
		b.WriteByte('|')
		b.WriteString(f)
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(windowDays))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
