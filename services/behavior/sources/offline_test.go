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
	"testing"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

var (
	testRegionIL = datatypes.Region{ID: "us_il", Country: "US", Lat: 40.0, Lon: -89.0}
	testRegionAZ = datatypes.Region{ID: "us_az", Country: "US", Lat: 34.0, Lon: -112.0}
)

func TestSyntheticSeriesDeterministic(t *testing.T) {
	deps := Deps{Offline: true}
	registry, err := DefaultRegistry(deps)
	if err != nil {
		t.Fatal(err)
	}
	for _, conn := range registry.All() {
		def := conn.Definition()
		t.Run(def.ID, func(t *testing.T) {
			a := SyntheticSeries(def, testRegionIL, 30)
			b := SyntheticSeries(def, testRegionIL, 30)
			if a.Digest() != b.Digest() {
				t.Fatal("same key must generate bit-identical series")
			}
			if err := a.Validate(true); err != nil {
				t.Fatalf("synthetic series must be dense and finite: %v", err)
			}
		})
	}
}

func TestSyntheticSeriesClassificationContract(t *testing.T) {
	deps := Deps{Offline: true}
	registry, err := DefaultRegistry(deps)
	if err != nil {
		t.Fatal(err)
	}
	foreign := datatypes.Region{ID: "ca_on", Country: "CA", Lat: 44.0, Lon: -79.0}

	for _, conn := range registry.All() {
		def := conn.Definition()
		t.Run(def.ID, func(t *testing.T) {
			il := SyntheticSeries(def, testRegionIL, 30).Digest()
			az := SyntheticSeries(def, testRegionAZ, 30).Digest()
			ca := SyntheticSeries(def, foreign, 30).Digest()

			switch def.Classification {
			case ClassRegional:
				if il == az {
					t.Error("REGIONAL source must vary between distant regions")
				}
			case ClassNational:
				if il != az {
					t.Error("NATIONAL source must be identical within one country")
				}
				if il == ca {
					t.Error("NATIONAL source must vary between countries")
				}
			case ClassGlobal:
				if il != az || il != ca {
					t.Error("GLOBAL source must ignore geography entirely")
				}
			}
		})
	}
}

func TestOfflineFetchNeverTouchesNetwork(t *testing.T) {
	// Deps with a nil client: any network call would panic.
	deps := Deps{Offline: true}
	registry, err := DefaultRegistry(deps)
	if err != nil {
		t.Fatal(err)
	}
	for _, conn := range registry.All() {
		def := conn.Definition()
		fetch := conn.Fetch(context.Background(), FetchRequest{Region: testRegionIL, WindowDays: 30})
		if fetch.Status != datatypes.FetchOK {
			t.Errorf("%s: offline fetch status = %s, want ok", def.ID, fetch.Status)
		}
		if fetch.Series == nil || fetch.Series.Len() != 30 {
			t.Errorf("%s: offline fetch must return a full window", def.ID)
		}
	}
}
