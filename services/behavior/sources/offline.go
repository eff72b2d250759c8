// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sources

import (
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

// SyntheticSeries deterministically fabricates a daily series for offline
// mode and air-gapped CI.
//
// The generator is keyed by (source_id, region_id, feature): the same key
// always yields bit-identical values, and REGIONAL keys differ between
// regions so the variance probe holds offline as well. The shape is a
// seasonal sine plus a slow trend plus seeded noise, kept inside the
// source's plausible raw range. No network access, ever.
func SyntheticSeries(def SourceDefinition, region datatypes.Region, windowDays int) *datatypes.DailySeries {
	s := datatypes.NewDailySeries(windowStart(windowDays), windowDays, def.Features...)
	for _, feature := range def.Features {
		seed := syntheticSeed(def, region, feature)
		rng := rand.New(rand.NewSource(int64(seed)))

		// Per-key personality: phase and level shift so two regions are
		// never just time-shifted copies of each other.
		phase := float64(seed%360) * math.Pi / 180
		level := 0.35 + 0.3*rng.Float64()
		trend := (rng.Float64() - 0.5) * 0.002

		for i := 0; i < windowDays; i++ {
			weekly := 0.12 * math.Sin(2*math.Pi*float64(i)/7+phase)
			annual := 0.1 * math.Sin(2*math.Pi*float64(i)/365.25+phase/2)
			noise := (rng.Float64() - 0.5) * 0.08
			v := level + weekly + annual + trend*float64(i) + noise
			s.Set(feature, i, clamp01(v))
		}
	}
	return s
}

// syntheticSeed hashes the generator key. GLOBAL sources drop the region
// from the key so all regions observe the same synthetic world signal,
// matching the classification contract.
func syntheticSeed(def SourceDefinition, region datatypes.Region, feature string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(def.ID))
	h.Write([]byte{'|'})
	switch def.Classification {
	case ClassGlobal:
	case ClassNational:
		h.Write([]byte(region.Country))
	default:
		h.Write([]byte(region.ID))
	}
	h.Write([]byte{'|'})
	h.Write([]byte(feature))
	return h.Sum64()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
