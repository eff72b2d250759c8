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
	"errors"
	"testing"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

func TestFingerprintForRegionalSources(t *testing.T) {
	def := SourceDefinition{
		ID:             "weather",
		Classification: ClassRegional,
		CacheKeyFields: []string{"lat", "lon"},
	}

	fpIL := FingerprintFor(def, FetchRequest{Region: testRegionIL, WindowDays: 30})
	fpAZ := FingerprintFor(def, FetchRequest{Region: testRegionAZ, WindowDays: 30})
	if fpIL == fpAZ {
		t.Fatal("distinct geo inputs must produce distinct fingerprints")
	}

	// Sub-2-decimal jitter must not fragment the cache.
	jittered := testRegionIL
	jittered.Lat += 0.001
	jittered.Lon -= 0.004
	if fp := FingerprintFor(def, FetchRequest{Region: jittered, WindowDays: 30}); fp != fpIL {
		t.Fatal("coordinate jitter below the rounding grid must share a fingerprint")
	}

	// But a shift past the grid must not.
	moved := testRegionIL
	moved.Lat += 0.01
	if fp := FingerprintFor(def, FetchRequest{Region: moved, WindowDays: 30}); fp == fpIL {
		t.Fatal("a 0.01 degree shift must change the fingerprint")
	}
}

func TestFingerprintForGlobalSourcesIgnoreGeo(t *testing.T) {
	def := SourceDefinition{ID: "market", Classification: ClassGlobal}
	fpIL := FingerprintFor(def, FetchRequest{Region: testRegionIL, WindowDays: 30})
	fpAZ := FingerprintFor(def, FetchRequest{Region: testRegionAZ, WindowDays: 30})
	if fpIL != fpAZ {
		t.Fatal("GLOBAL fingerprints must not vary with region")
	}
	if fp := FingerprintFor(def, FetchRequest{Region: testRegionIL, WindowDays: 60}); fp == fpIL {
		t.Fatal("window change must change the fingerprint")
	}
}

func TestStartRejectsInvalidWindows(t *testing.T) {
	def := SourceDefinition{ID: "market", Classification: ClassGlobal}

	tests := []struct {
		name   string
		region datatypes.Region
		window int
		wantOK bool
	}{
		{"valid", testRegionIL, 30, true},
		{"window floor", testRegionIL, 1, true},
		{"window ceiling", testRegionIL, 3650, true},
		{"zero window", testRegionIL, 0, false},
		{"window too large", testRegionIL, 3651, false},
		{"empty region id", datatypes.Region{}, 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch, done := start(def, Deps{Offline: true}, FetchRequest{Region: tt.region, WindowDays: tt.window})
			if tt.wantOK {
				if fetch.Status != datatypes.FetchOK {
					t.Errorf("status = %s, want ok", fetch.Status)
				}
				return
			}
			if !done || fetch.Status != datatypes.FetchError || fetch.ErrorKind != datatypes.ErrKindInvalidInput {
				t.Errorf("got status=%s kind=%s done=%v, want error/invalid_input/true",
					fetch.Status, fetch.ErrorKind, done)
			}
		})
	}
}

func TestStartMissingCredentials(t *testing.T) {
	def := SourceDefinition{
		ID:             "sentiment",
		Classification: ClassNational,
		RequiresKey:    true,
		KeyEnvVar:      "SENTIMENT_API_KEY",
	}

	fetch, done := start(def, Deps{}, FetchRequest{Region: testRegionIL, WindowDays: 30})
	if !done || fetch.Status != datatypes.FetchEmpty || fetch.ErrorKind != datatypes.ErrKindMissingCredentials {
		t.Fatalf("keyless fetch = %s/%s, want empty/missing_credentials", fetch.Status, fetch.ErrorKind)
	}

	withKey := Deps{Keys: map[string]string{"SENTIMENT_API_KEY": "k"}}
	if _, done := start(def, withKey, FetchRequest{Region: testRegionIL, WindowDays: 30}); done {
		t.Fatal("configured key must let the fetch proceed")
	}
}

func TestFinishClassification(t *testing.T) {
	series := datatypes.NewDailySeries(time.Now(), 3, "a")
	series.Set("a", 0, 1)

	tests := []struct {
		name       string
		series     *datatypes.DailySeries
		err        error
		wantStatus datatypes.FetchStatus
		wantKind   datatypes.ErrorKind
	}{
		{"success", series, nil, datatypes.FetchOK, datatypes.ErrKindNone},
		{"nil series is empty", nil, nil, datatypes.FetchEmpty, datatypes.ErrKindNone},
		{"generic error", nil, errors.New("boom"), datatypes.FetchError, datatypes.ErrKindUpstreamUnavailable},
		{"rate limited", nil, ErrRateLimited, datatypes.FetchError, datatypes.ErrKindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch := &datatypes.SourceFetch{SourceID: "x"}
			got := finish(fetch, tt.series, tt.err)
			if got.Status != tt.wantStatus || got.ErrorKind != tt.wantKind {
				t.Errorf("finish() = %s/%s, want %s/%s",
					got.Status, got.ErrorKind, tt.wantStatus, tt.wantKind)
			}
		})
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	deps := Deps{Offline: true}
	_, err := NewRegistry(NewMarketConnector(deps), NewMarketConnector(deps))
	if err == nil {
		t.Fatal("duplicate source ids must fail registry construction")
	}
}

func TestDefaultRegistryOrder(t *testing.T) {
	registry, err := DefaultRegistry(Deps{Offline: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"market", "fuel", "sentiment", "weather", "drought",
		"storms", "mobility", "transit", "media", "search", "health",
	}
	defs := registry.Definitions()
	if len(defs) != len(want) {
		t.Fatalf("registry has %d sources, want %d", len(defs), len(want))
	}
	for i, def := range defs {
		if def.ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, def.ID, want[i])
		}
	}
}

func TestKeyEnvVarsMatchConnectorDeclarations(t *testing.T) {
	want := []string{
		"EIA_API_KEY", "SENTIMENT_API_KEY", "NOAA_API_KEY",
		"TRANSIT_API_KEY", "SEARCH_API_KEY", "HEALTH_API_KEY",
	}
	got := KeyEnvVars()
	if len(got) != len(want) {
		t.Fatalf("KeyEnvVars() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestVarianceProbeOffline(t *testing.T) {
	registry, err := DefaultRegistry(Deps{Offline: true})
	if err != nil {
		t.Fatal(err)
	}
	results := VarianceProbe(context.Background(), registry, testRegionIL, testRegionAZ, 30)
	if len(results) != registry.Len() {
		t.Fatalf("probe returned %d results, want %d", len(results), registry.Len())
	}
	for _, r := range results {
		if r.Violated() {
			t.Errorf("%s (%s): probe violation, fingerprints_ok=%v series_distinct=%v",
				r.SourceID, r.Classification, r.FingerprintsOK, r.SeriesDistinct)
		}
	}
}
