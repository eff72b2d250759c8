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
	"testing"
	"time"
)

func day(s string) time.Time {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDailySeriesIndexing(t *testing.T) {
	s := NewDailySeries(day("2026-08-01"), 10, "a")

	tests := []struct {
		name string
		date time.Time
		want int
	}{
		{"first day", day("2026-08-01"), 0},
		{"last day", day("2026-08-10"), 9},
		{"before start", day("2026-07-31"), -1},
		{"after end", day("2026-08-11"), -1},
		{"mid range with time-of-day", day("2026-08-05").Add(13 * time.Hour), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Index(tt.date); got != tt.want {
				t.Errorf("Index(%v) = %d, want %d", tt.date, got, tt.want)
			}
		})
	}
}

func TestDailySeriesMissingByDefault(t *testing.T) {
	s := NewDailySeries(day("2026-08-01"), 3, "a")
	for i := 0; i < 3; i++ {
		if !IsMissing(s.Get("a", i)) {
			t.Fatalf("day %d should be missing before any Set", i)
		}
	}
	s.Set("a", 1, 0.7)
	if IsMissing(s.Get("a", 1)) {
		t.Fatal("day 1 should be present after Set")
	}
	if IsMissing(s.Get("a", 0)) != true || IsMissing(s.Get("a", 2)) != true {
		t.Fatal("neighboring days must stay missing")
	}
}

func TestDailySeriesDigestDeterministic(t *testing.T) {
	build := func() *DailySeries {
		s := NewDailySeries(day("2026-08-01"), 5, "b", "a")
		s.Set("a", 0, 0.25)
		s.Set("b", 4, 0.75)
		return s
	}
	if build().Digest() != build().Digest() {
		t.Fatal("identical series must digest identically")
	}

	changed := build()
	changed.Set("a", 0, 0.26)
	if changed.Digest() == build().Digest() {
		t.Fatal("value change must change the digest")
	}

	shifted := NewDailySeries(day("2026-08-02"), 5, "b", "a")
	shifted.Set("a", 0, 0.25)
	shifted.Set("b", 4, 0.75)
	if shifted.Digest() == build().Digest() {
		t.Fatal("start date change must change the digest")
	}
}

func TestDailySeriesClone(t *testing.T) {
	s := NewDailySeries(day("2026-08-01"), 3, "a")
	s.Set("a", 0, 0.5)
	c := s.Clone()
	c.Set("a", 0, 0.9)
	if s.Get("a", 0) != 0.5 {
		t.Fatal("mutating a clone must not touch the original")
	}
}
