// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sources implements the upstream data connectors and their
// registry. Every connector exposes the same contract: given a region and
// a window, return a tagged SourceFetch (ok / empty / error) without ever
// propagating an upstream failure to the caller.
package sources

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

// Classification declares whether a source's output varies by region.
// It is an enforced contract, not documentation: the variance probe
// asserts that REGIONAL sources produce distinct series for distant
// regions, and the fingerprint builder consults it to decide which geo
// inputs enter the cache key.
type Classification string

const (
	ClassGlobal   Classification = "GLOBAL"
	ClassNational Classification = "NATIONAL"
	ClassRegional Classification = "REGIONAL"
)

// SourceDefinition is the immutable registry entry for one connector.
type SourceDefinition struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Category       string         `json:"category"`
	Classification Classification `json:"classification"`

	// RequiresKey marks sources that need a credential; KeyEnvVar names
	// the environment variable holding it. A source with RequiresKey and
	// no configured key returns empty/missing_credentials, never error.
	RequiresKey      bool   `json:"requires_key"`
	CanRunWithoutKey bool   `json:"can_run_without_key"`
	KeyEnvVar        string `json:"key_env_var,omitempty"`

	// GeoInputsUsed lists which of {lat, lon, country, region_id} the
	// connector actually consumes. CacheKeyFields is the ordered subset
	// that enters the fetch fingerprint.
	GeoInputsUsed  []string `json:"geo_inputs_used"`
	CacheKeyFields []string `json:"cache_key_fields"`

	// Features are the columns the connector emits on success.
	Features []string `json:"features"`

	// InvertForIndex marks activity-style signals (high value = calm)
	// that the index computer must invert into stress contributions.
	InvertForIndex bool `json:"invert_for_index"`

	// ExpectedVariance tags how much day-to-day movement is normal for
	// this source ("high", "moderate", "low"); surfaced in data_quality.
	ExpectedVariance string `json:"expected_variance"`

	// TTL is the cache lifetime for successful fetches.
	TTL time.Duration `json:"-"`

	Description string `json:"description"`
}

// FetchRequest carries the per-request inputs a connector needs.
type FetchRequest struct {
	Region     datatypes.Region
	WindowDays int
}

// Connector is the uniform capability every upstream provider implements.
type Connector interface {
	// Definition returns the connector's immutable registry entry.
	Definition() SourceDefinition

	// Fetch returns a tagged result. Implementations must honor ctx
	// cancellation, bound their own retries, and never panic or return
	// a Go error: failures are encoded in the SourceFetch itself.
	Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch
}

// FingerprintFor builds the canonical cache fingerprint for a definition
// and request, using exactly the definition's cache-key fields in order.
//
// Geo coordinates are rounded to two decimals (~1.1 km) so client-side
// jitter does not fragment the cache while distant regions still produce
// distinct keys.
func FingerprintFor(def SourceDefinition, req FetchRequest) string {
	fields := make([]string, 0, len(def.CacheKeyFields))
	for _, f := range def.CacheKeyFields {
		switch f {
		case "region_id":
			fields = append(fields, req.Region.ID)
		case "lat":
			fields = append(fields, strconv.FormatFloat(round2(req.Region.Lat), 'f', 2, 64))
		case "lon":
			fields = append(fields, strconv.FormatFloat(round2(req.Region.Lon), 'f', 2, 64))
		case "country":
			fields = append(fields, req.Region.Country)
		default:
			fields = append(fields, f)
		}
	}
	return datatypes.Fingerprint(def.ID, fields, req.WindowDays)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Deps bundles the shared collaborators injected into every connector.
type Deps struct {
	// Client is the shared retrying HTTP client. Nil only in offline mode.
	Client *Client

	// Offline switches connectors to the deterministic synthetic path,
	// which never touches the network.
	Offline bool

	// Keys maps credential env-var names to configured values.
	Keys map[string]string
}

// key returns the configured credential for a definition, if any.
func (d Deps) key(def SourceDefinition) (string, bool) {
	if def.KeyEnvVar == "" {
		return "", false
	}
	v, ok := d.Keys[def.KeyEnvVar]
	return v, ok && v != ""
}

// start resolves the common prologue shared by every connector: window
// validation, fingerprinting, the offline short-circuit, and the
// missing-credential policy. It returns a ready SourceFetch and true when
// the connector should return without calling upstream.
func start(def SourceDefinition, deps Deps, req FetchRequest) (*datatypes.SourceFetch, bool) {
	fetch := &datatypes.SourceFetch{
		SourceID:    def.ID,
		RegionID:    req.Region.ID,
		WindowDays:  req.WindowDays,
		Fingerprint: FingerprintFor(def, req),
		FetchedAt:   time.Now().UTC(),
	}
	if req.Region.ID == "" || req.WindowDays < 1 || req.WindowDays > 3650 {
		fetch.Status = datatypes.FetchError
		fetch.ErrorKind = datatypes.ErrKindInvalidInput
		return fetch, true
	}
	if deps.Offline {
		fetch.Status = datatypes.FetchOK
		fetch.Series = SyntheticSeries(def, req.Region, req.WindowDays)
		return fetch, true
	}
	if def.RequiresKey {
		if _, ok := deps.key(def); !ok && !def.CanRunWithoutKey {
			fetch.Status = datatypes.FetchEmpty
			fetch.ErrorKind = datatypes.ErrKindMissingCredentials
			return fetch, true
		}
	}
	return fetch, false
}

// finish folds a loader outcome into the fetch: nil series means empty,
// a load error is classified into an error kind, and a populated series
// flips the status to ok.
func finish(fetch *datatypes.SourceFetch, series *datatypes.DailySeries, err error) *datatypes.SourceFetch {
	if err != nil {
		fetch.Status = datatypes.FetchError
		fetch.ErrorKind = classify(err)
		return fetch
	}
	if series == nil || series.Len() == 0 {
		fetch.Status = datatypes.FetchEmpty
		return fetch
	}
	fetch.Status = datatypes.FetchOK
	fetch.Series = series
	return fetch
}

// classify maps loader errors onto the error taxonomy. Rate-limit errors
// are already retried inside the client, so by the time they surface here
// the source is effectively unavailable.
func classify(err error) datatypes.ErrorKind {
	if IsRateLimited(err) {
		return datatypes.ErrKindRateLimited
	}
	return datatypes.ErrKindUpstreamUnavailable
}

// windowStart returns the UTC day opening a window that ends today.
func windowStart(windowDays int) time.Time {
	return datatypes.Day(time.Now().UTC()).AddDate(0, 0, -(windowDays - 1))
}

// dailyFromPoints assembles a dense series from sparse (date, value)
// observations for a single feature. Dates outside the window are
// dropped; uncovered days stay missing for the harmonizer to handle.
func dailyFromPoints(feature string, windowDays int, points map[time.Time]float64) *datatypes.DailySeries {
	if len(points) == 0 {
		return nil
	}
	start := windowStart(windowDays)
	s := datatypes.NewDailySeries(start, windowDays, feature)
	for d, v := range points {
		if i := s.Index(d); i >= 0 {
			s.Set(feature, i, v)
		}
	}
	return s
}

// mergeColumns merges same-shaped single-feature series into one series.
func mergeColumns(windowDays int, parts ...*datatypes.DailySeries) *datatypes.DailySeries {
	var out *datatypes.DailySeries
	for _, p := range parts {
		if p == nil {
			continue
		}
		if out == nil {
			out = datatypes.NewDailySeries(windowStart(windowDays), windowDays)
		}
		for _, f := range p.Features {
			out.Features = append(out.Features, f)
			out.Columns[f] = append([]float64(nil), p.Columns[f]...)
		}
	}
	return out
}

// errStatus builds a decode/protocol error with enough context to log.
func errStatus(source string, code int) error {
	return fmt.Errorf("%s upstream returned status %d", source, code)
}
