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
	"context"
	"fmt"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

// ProbeResult is the outcome of the variance probe for one source.
type ProbeResult struct {
	SourceID       string         `json:"source_id"`
	Classification Classification `json:"classification"`
	FingerprintsOK bool           `json:"fingerprints_ok"`
	SeriesDistinct bool           `json:"series_distinct"`
	Skipped        bool           `json:"skipped"`
	SkipReason     string         `json:"skip_reason,omitempty"`
}

// Violated reports whether the probe found a broken classification.
// The fingerprint check needs no network, so it counts even when the
// series comparison was skipped.
func (p ProbeResult) Violated() bool {
	return !p.FingerprintsOK || (!p.Skipped && !p.SeriesDistinct)
}

// VarianceProbe checks the REGIONAL classification contract: for two
// geographically distinct regions, every REGIONAL source must produce
// distinct cache fingerprints, and (when both fetches succeed) distinct
// series. GLOBAL and NATIONAL sources are checked the other way around:
// their fingerprints must NOT vary with geography.
//
// Sources that cannot fetch (missing credentials, upstream down) are
// reported as skipped rather than failed; the fingerprint half of the
// check still runs since it needs no network.
func VarianceProbe(ctx context.Context, reg *Registry, a, b datatypes.Region, windowDays int) []ProbeResult {
	results := make([]ProbeResult, 0, reg.Len())
	for _, conn := range reg.All() {
		def := conn.Definition()
		res := ProbeResult{SourceID: def.ID, Classification: def.Classification}

		fpA := FingerprintFor(def, FetchRequest{Region: a, WindowDays: windowDays})
		fpB := FingerprintFor(def, FetchRequest{Region: b, WindowDays: windowDays})
		switch def.Classification {
		case ClassRegional:
			res.FingerprintsOK = fpA != fpB
		default:
			// Same-country probe regions must share one fingerprint.
			res.FingerprintsOK = fpA == fpB
		}

		if def.Classification != ClassRegional {
			res.Skipped = true
			res.SkipReason = "series variance only enforced for REGIONAL sources"
			res.SeriesDistinct = true
			results = append(results, res)
			continue
		}

		fa := conn.Fetch(ctx, FetchRequest{Region: a, WindowDays: windowDays})
		fb := conn.Fetch(ctx, FetchRequest{Region: b, WindowDays: windowDays})
		if fa.Status != datatypes.FetchOK || fb.Status != datatypes.FetchOK {
			res.Skipped = true
			res.SkipReason = fmt.Sprintf("fetch status %s/%s", fa.Status, fb.Status)
			// Keep the fingerprint verdict; it needed no network.
			res.SeriesDistinct = true
			results = append(results, res)
			continue
		}
		res.SeriesDistinct = fa.Series.Digest() != fb.Series.Digest()
		results = append(results, res)
	}
	return results
}
