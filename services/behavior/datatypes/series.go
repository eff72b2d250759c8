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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the canonical wire format for daily dates.
const DateLayout = "2006-01-02"

// DailySeries is a dense, contiguous, daily-indexed set of feature columns.
//
// The series covers [Start, Start+Len()-1 days] with no duplicate and no
// skipped dates. Missing observations are represented as NaN; after
// harmonization every remaining value must be finite. Column order is kept
// stable so two series built from the same inputs encode identically.
type DailySeries struct {
	Start    time.Time            `json:"start"`
	Features []string             `json:"features"`
	Columns  map[string][]float64 `json:"columns"`
}

// Missing is the in-memory marker for an absent observation.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Day truncates t to UTC midnight, the canonical daily grid.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDailySeries allocates an all-missing series of n days starting at start.
func NewDailySeries(start time.Time, days int, features ...string) *DailySeries {
	s := &DailySeries{
		Start:    Day(start),
		Features: append([]string(nil), features...),
		Columns:  make(map[string][]float64, len(features)),
	}
	for _, f := range features {
		col := make([]float64, days)
		for i := range col {
			col[i] = Missing()
		}
		s.Columns[f] = col
	}
	return s
}

// Len returns the number of days covered.
func (s *DailySeries) Len() int {
	for _, col := range s.Columns {
		return len(col)
	}
	return 0
}

// Date returns the date at row i.
func (s *DailySeries) Date(i int) time.Time {
	return s.Start.AddDate(0, 0, i)
}

// End returns the last covered date, or the zero time for an empty series.
func (s *DailySeries) End() time.Time {
	n := s.Len()
	if n == 0 {
		return time.Time{}
	}
	return s.Date(n - 1)
}

// Index returns the row for date d, or -1 when d is outside the range.
func (s *DailySeries) Index(d time.Time) int {
	i := int(Day(d).Sub(s.Start).Hours() / 24)
	if i < 0 || i >= s.Len() {
		return -1
	}
	return i
}

// Get returns the value of a feature at row i. Missing features and
// out-of-range rows read as the missing marker.
func (s *DailySeries) Get(feature string, i int) float64 {
	col, ok := s.Columns[feature]
	if !ok || i < 0 || i >= len(col) {
		return Missing()
	}
	return col[i]
}

// Set writes a value for a feature at row i. Out-of-range writes are
// dropped; callers build series through the harmonizer which sizes rows
// up front.
func (s *DailySeries) Set(feature string, i int, v float64) {
	col, ok := s.Columns[feature]
	if !ok || i < 0 || i >= len(col) {
		return
	}
	col[i] = v
}

// Clone returns a deep copy.
func (s *DailySeries) Clone() *DailySeries {
	out := &DailySeries{
		Start:    s.Start,
		Features: append([]string(nil), s.Features...),
		Columns:  make(map[string][]float64, len(s.Columns)),
	}
	for f, col := range s.Columns {
		out.Columns[f] = append([]float64(nil), col...)
	}
	return out
}

// Validate enforces the series invariants: consistent column lengths,
// declared features present, and (when strict) no NaN or infinite values.
func (s *DailySeries) Validate(strict bool) error {
	n := -1
	for f, col := range s.Columns {
		if n == -1 {
			n = len(col)
		}
		if len(col) != n {
			return fmt.Errorf("feature %q has %d rows, expected %d", f, len(col), n)
		}
	}
	for _, f := range s.Features {
		col, ok := s.Columns[f]
		if !ok {
			return fmt.Errorf("declared feature %q has no column", f)
		}
		if strict {
			for i, v := range col {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("feature %q row %d is not finite", f, i)
				}
			}
		}
	}
	return nil
}

// Digest returns a hex SHA-256 over the canonical encoding of the series.
//
// Two series with identical dates, features, and bit-identical values
// produce identical digests, which backs the determinism-under-cache and
// journal replay checks.
func (s *DailySeries) Digest() string {
	h := sha256.New()
	h.Write([]byte(s.Start.Format(DateLayout)))
	features := append([]string(nil), s.Features...)
	sort.Strings(features)
	var buf [8]byte
	for _, f := range features {
		h.Write([]byte{0})
		h.Write([]byte(f))
		for _, v := range s.Columns[f] {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
