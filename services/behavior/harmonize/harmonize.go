// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package harmonize aligns heterogeneous upstream series onto a common
// daily grid and normalizes every feature into a [0,1] sub-signal.
//
// The harmonizer never fails: per-source problems are reported as status
// flags, and downstream components decide whether to proceed.
package harmonize

import (
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

const (
	// maxInterpolateDays bounds linear interpolation of interior gaps.
	maxInterpolateDays = 7

	// minOverlap is the coverage fraction below which a source is
	// excluded as insufficient_overlap.
	minOverlap = 0.30
)

// Input is one source's contribution to a harmonization pass.
type Input struct {
	SourceID string
	Fetch    *datatypes.SourceFetch

	// ForwardFillDays is the source's fill budget: 2 for market-like
	// data (weekends carry Friday's close), 0 otherwise.
	ForwardFillDays int

	// Bounds optionally declares fixed normalization ranges per
	// feature. Features without a declared range fall back to robust
	// scaling over the observed window.
	Bounds map[string]Range
}

// SourceStatus is the per-source outcome flag.
type SourceStatus struct {
	SourceID string                `json:"source_id"`
	Status   datatypes.FetchStatus `json:"status"`
	Kind     datatypes.ErrorKind   `json:"error_kind,omitempty"`
	Coverage float64               `json:"coverage"`
	Included bool                  `json:"included"`
}

// Result is the full harmonization output.
type Result struct {
	Start time.Time
	Days  int

	// Aligned holds the per-source raw series on the common grid,
	// post-imputation, for included sources only.
	Aligned map[string]*datatypes.DailySeries

	// Normalized is the single matrix of [0,1] feature columns across
	// all included sources. Values may still be missing where gaps
	// exceeded the imputation budgets.
	Normalized *datatypes.DailySeries

	// Methods records how each feature was normalized.
	Methods map[string]Method

	// Statuses reports every input source, included or not.
	Statuses []SourceStatus

	// Completeness is the fraction of (day, feature) cells with a
	// value after imputation, across included sources.
	Completeness float64
}

// Included returns the status entries of sources that made it in.
func (r *Result) Included() []SourceStatus {
	out := make([]SourceStatus, 0, len(r.Statuses))
	for _, s := range r.Statuses {
		if s.Included {
			out = append(out, s)
		}
	}
	return out
}

// Harmonize aligns the inputs to a common daily range.
//
// The target range is the union of the provided series' ranges, trimmed
// to the trailing maxDays. Per source: forward-fill up to the source's
// budget, linearly interpolate interior gaps up to 7 days, leave longer
// gaps missing, and exclude sources covering less than 30% of the range.
func Harmonize(inputs []Input, maxDays int) *Result {
	res := &Result{
		Aligned: make(map[string]*datatypes.DailySeries),
		Methods: make(map[string]Method),
	}

	start, days := targetRange(inputs, maxDays)
	res.Start, res.Days = start, days
	if days == 0 {
		for _, in := range inputs {
			res.Statuses = append(res.Statuses, statusFor(in, 0, false))
		}
		return res
	}

	var cells, filled int
	for _, in := range inputs {
		if in.Fetch == nil || in.Fetch.Status != datatypes.FetchOK || in.Fetch.Series == nil {
			res.Statuses = append(res.Statuses, statusFor(in, 0, false))
			continue
		}

		aligned := align(in.Fetch.Series, start, days)
		for _, f := range aligned.Features {
			forwardFill(aligned.Columns[f], in.ForwardFillDays)
			interpolate(aligned.Columns[f], maxInterpolateDays)
		}

		cov := coverage(aligned)
		if cov < minOverlap {
			st := statusFor(in, cov, false)
			st.Kind = datatypes.ErrKindInsufficientOverlap
			res.Statuses = append(res.Statuses, st)
			continue
		}

		res.Aligned[in.SourceID] = aligned
		res.Statuses = append(res.Statuses, statusFor(in, cov, true))
		for _, col := range aligned.Columns {
			for _, v := range col {
				cells++
				if !datatypes.IsMissing(v) {
					filled++
				}
			}
		}
	}

	if cells > 0 {
		res.Completeness = float64(filled) / float64(cells)
	}
	res.Normalized = normalizeAll(res, inputs)
	return res
}

// targetRange computes the union of input date ranges, trimmed to the
// trailing maxDays.
func targetRange(inputs []Input, maxDays int) (time.Time, int) {
	var start, end time.Time
	for _, in := range inputs {
		if in.Fetch == nil || in.Fetch.Series == nil || in.Fetch.Series.Len() == 0 {
			continue
		}
		s := in.Fetch.Series
		if start.IsZero() || s.Start.Before(start) {
			start = s.Start
		}
		if e := s.End(); end.IsZero() || e.After(end) {
			end = e
		}
	}
	if start.IsZero() {
		return time.Time{}, 0
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if maxDays > 0 && days > maxDays {
		start = end.AddDate(0, 0, -(maxDays - 1))
		days = maxDays
	}
	return start, days
}

// align copies a series onto the target grid.
func align(s *datatypes.DailySeries, start time.Time, days int) *datatypes.DailySeries {
	out := datatypes.NewDailySeries(start, days, s.Features...)
	for i := 0; i < days; i++ {
		src := s.Index(out.Date(i))
		if src < 0 {
			continue
		}
		for _, f := range s.Features {
			out.Set(f, i, s.Get(f, src))
		}
	}
	return out
}

// forwardFill carries the last observation forward up to budget days.
func forwardFill(col []float64, budget int) {
	if budget <= 0 {
		return
	}
	carried := 0
	for i := 1; i < len(col); i++ {
		if !datatypes.IsMissing(col[i]) {
			carried = 0
			continue
		}
		if datatypes.IsMissing(col[i-1]) {
			continue
		}
		if carried >= budget {
			continue
		}
		col[i] = col[i-1]
		carried++
	}
}

// interpolate linearly fills interior gaps no longer than maxGap days.
// Leading and trailing runs have no anchor on one side and stay missing.
func interpolate(col []float64, maxGap int) {
	i := 0
	for i < len(col) {
		if !datatypes.IsMissing(col[i]) {
			i++
			continue
		}
		// Find the gap [i, j).
		j := i
		for j < len(col) && datatypes.IsMissing(col[j]) {
			j++
		}
		gap := j - i
		if i > 0 && j < len(col) && gap <= maxGap {
			lo, hi := col[i-1], col[j]
			for k := 0; k < gap; k++ {
				col[i+k] = lo + (hi-lo)*float64(k+1)/float64(gap+1)
			}
		}
		i = j
	}
}

// coverage is the fraction of days with at least one feature observed.
func coverage(s *datatypes.DailySeries) float64 {
	n := s.Len()
	if n == 0 {
		return 0
	}
	have := 0
	for i := 0; i < n; i++ {
		for _, f := range s.Features {
			if !datatypes.IsMissing(s.Get(f, i)) {
				have++
				break
			}
		}
	}
	return float64(have) / float64(n)
}

func statusFor(in Input, cov float64, included bool) SourceStatus {
	st := SourceStatus{SourceID: in.SourceID, Coverage: cov, Included: included}
	if in.Fetch != nil {
		st.Status = in.Fetch.Status
		st.Kind = in.Fetch.ErrorKind
	}
	return st
}
