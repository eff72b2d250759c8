// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package harmonize

import (
	"math"
	"sort"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

// NormKind names a normalization method.
type NormKind string

const (
	NormFixed  NormKind = "fixed"
	NormRobust NormKind = "robust"
)

// Range is a source-declared fixed normalization range for a feature.
// Invert flips the mapping so that high raw values come out low; used
// for signals where the raw scale runs opposite to stress.
type Range struct {
	Min    float64
	Max    float64
	Invert bool
}

// Method records how one feature column was normalized, so the output
// is reproducible from the recorded parameters.
type Method struct {
	Feature  string   `json:"feature"`
	Kind     NormKind `json:"kind"`
	Lo       float64  `json:"lo"`
	Hi       float64  `json:"hi"`
	Inverted bool     `json:"inverted,omitempty"`
}

// normalizeAll builds the combined [0,1] feature matrix from the
// included aligned series.
//
// Features with a declared fixed range use it directly. Everything
// else uses robust scaling over the observed window: the column is
// mapped over [Q1 - 1.5*IQR, Q3 + 1.5*IQR] so a single spike can't
// crush the rest of the history into a flat line. Constant columns
// come out at 0.5.
func normalizeAll(res *Result, inputs []Input) *datatypes.DailySeries {
	bounds := make(map[string]Range)
	var features []string
	for _, in := range inputs {
		aligned, ok := res.Aligned[in.SourceID]
		if !ok {
			continue
		}
		for _, f := range aligned.Features {
			features = append(features, f)
			if r, ok := in.Bounds[f]; ok {
				bounds[f] = r
			}
		}
	}
	out := datatypes.NewDailySeries(res.Start, res.Days, features...)
	if res.Days == 0 {
		return out
	}

	for _, aligned := range res.Aligned {
		for _, f := range aligned.Features {
			col := aligned.Columns[f]
			m := methodFor(f, col, bounds)
			res.Methods[f] = m
			dst := out.Columns[f]
			for i, v := range col {
				if datatypes.IsMissing(v) {
					continue
				}
				dst[i] = m.apply(v)
			}
		}
	}
	return out
}

// methodFor picks the normalization parameters for one column.
func methodFor(feature string, col []float64, bounds map[string]Range) Method {
	if r, ok := bounds[feature]; ok && r.Max > r.Min {
		return Method{Feature: feature, Kind: NormFixed, Lo: r.Min, Hi: r.Max, Inverted: r.Invert}
	}

	vals := observed(col)
	if len(vals) == 0 {
		return Method{Feature: feature, Kind: NormRobust, Lo: 0, Hi: 0}
	}
	q1, q3 := quartiles(vals)
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr
	return Method{Feature: feature, Kind: NormRobust, Lo: lo, Hi: hi}
}

// apply maps a raw value through the method, clipped to [0,1].
func (m Method) apply(v float64) float64 {
	if m.Hi <= m.Lo {
		// Constant column: neutral midpoint.
		return 0.5
	}
	x := (v - m.Lo) / (m.Hi - m.Lo)
	if m.Inverted {
		x = 1 - x
	}
	return math.Max(0, math.Min(1, x))
}

func observed(col []float64) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if !datatypes.IsMissing(v) {
			out = append(out, v)
		}
	}
	return out
}

// quartiles returns Q1 and Q3 via linear interpolation on the sorted
// sample.
func quartiles(vals []float64) (float64, float64) {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	return percentile(s, 0.25), percentile(s, 0.75)
}

func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	i := int(pos)
	frac := pos - float64(i)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}
