// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/cache"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/config"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/observability"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sources"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		CacheMaxSize:          256,
		CacheTTLOverrides:     map[string]time.Duration{},
		MaxConcurrentUpstream: 8,
		MaxConcurrentRequests: 4,
		ForecastDeadline:      30 * time.Second,
		Offline:               true,
	}
}

// newOfflineEngine builds a fully wired engine with no network, no
// journal, and no sink.
func newOfflineEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	registry, err := sources.DefaultRegistry(sources.Deps{Offline: true})
	if err != nil {
		t.Fatal(err)
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	eng, err := New(testLogger(), cfg, registry,
		cache.New(cache.Options{MaxEntries: cfg.CacheMaxSize}),
		datatypes.DefaultRegions(), metrics, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func TestForecastOfflineEndToEnd(t *testing.T) {
	eng := newOfflineEngine(t, testConfig())

	req := datatypes.ForecastRequest{
		RegionID:        "us_il",
		Latitude:        40.0,
		Longitude:       -89.0,
		DaysBack:        30,
		ForecastHorizon: 7,
	}
	res, engErr := eng.Forecast(context.Background(), req)
	if engErr != nil {
		t.Fatalf("Forecast() error = %v", engErr)
	}

	if res.RegionID != "us_il" {
		t.Errorf("RegionID = %s", res.RegionID)
	}
	if len(res.Forecast) != 7 {
		t.Errorf("forecast length = %d, want 7", len(res.Forecast))
	}
	switch res.ModelName {
	case "exp_smoothing_seasonal", "exp_smoothing_trend", "naive_last":
	default:
		t.Errorf("unexpected model %q", res.ModelName)
	}
	if res.Degraded {
		t.Errorf("offline synthetic data must not degrade: %s", res.DegradedReason)
	}
	if res.RequestFingerprint == "" || res.Digest == "" {
		t.Error("fingerprint and digest must be populated")
	}
	if len(res.Sources) != 11 {
		t.Errorf("source summaries = %d, want 11", len(res.Sources))
	}
	for _, p := range res.Forecast {
		if p.Lower > p.Point || p.Point > p.Upper || p.Lower < 0 || p.Upper > 1 {
			t.Errorf("band violation: %+v", p)
		}
	}
}

func TestForecastDeterministicAcrossRuns(t *testing.T) {
	eng := newOfflineEngine(t, testConfig())
	req := datatypes.ForecastRequest{
		RegionID: "us_il", Latitude: 40, Longitude: -89,
		DaysBack: 30, ForecastHorizon: 7,
	}

	a, errA := eng.Forecast(context.Background(), req)
	b, errB := eng.Forecast(context.Background(), req)
	if errA != nil || errB != nil {
		t.Fatalf("errors: %v / %v", errA, errB)
	}
	if a.Digest != b.Digest {
		t.Fatal("same request within the cache TTL must digest identically")
	}
	if a.History.Digest() != b.History.Digest() {
		t.Fatal("history series must be byte-identical across cached runs")
	}
}

func TestForecastDistinctRegionsDiffer(t *testing.T) {
	eng := newOfflineEngine(t, testConfig())

	il, errIL := eng.Forecast(context.Background(), datatypes.ForecastRequest{
		RegionID: "us_il", Latitude: 40, Longitude: -89, DaysBack: 30,
	})
	az, errAZ := eng.Forecast(context.Background(), datatypes.ForecastRequest{
		RegionID: "us_az", Latitude: 34, Longitude: -112, DaysBack: 30,
	})
	if errIL != nil || errAZ != nil {
		t.Fatalf("errors: %v / %v", errIL, errAZ)
	}
	if il.RequestFingerprint == az.RequestFingerprint {
		t.Error("distinct regions must produce distinct request fingerprints")
	}
	if il.History.Digest() == az.History.Digest() {
		t.Error("distinct regions must produce distinct composite histories")
	}
}

func TestForecastInvalidInput(t *testing.T) {
	eng := newOfflineEngine(t, testConfig())

	tests := []struct {
		name string
		req  datatypes.ForecastRequest
	}{
		{"empty region id", datatypes.ForecastRequest{Latitude: 40, Longitude: -89}},
		{"reserved id", datatypes.ForecastRequest{RegionID: "None", Latitude: 40, Longitude: -89}},
		{"lat out of range", datatypes.ForecastRequest{RegionID: "x", Latitude: 91, Longitude: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, engErr := eng.Forecast(context.Background(), tt.req)
			if engErr == nil || engErr.Kind != datatypes.ErrKindInvalidInput {
				t.Errorf("error = %v, want invalid_input", engErr)
			}
		})
	}
}

func TestForecastKnownRegionNeedsNoGeo(t *testing.T) {
	eng := newOfflineEngine(t, testConfig())

	// Catalog regions resolve by id alone; the request geo is ignored.
	res, engErr := eng.Forecast(context.Background(), datatypes.ForecastRequest{
		RegionID: "us_tx", DaysBack: 14,
	})
	if engErr != nil {
		t.Fatalf("Forecast() error = %v", engErr)
	}
	if res.RegionID != "us_tx" {
		t.Errorf("RegionID = %s", res.RegionID)
	}
}

// stalledConnector never answers until the request context expires,
// standing in for a hung upstream.
type stalledConnector struct {
	def sources.SourceDefinition
}

func (c *stalledConnector) Definition() sources.SourceDefinition { return c.def }

func (c *stalledConnector) Fetch(ctx context.Context, req sources.FetchRequest) *datatypes.SourceFetch {
	<-ctx.Done()
	return &datatypes.SourceFetch{
		SourceID:    c.def.ID,
		RegionID:    req.Region.ID,
		WindowDays:  req.WindowDays,
		Fingerprint: sources.FingerprintFor(c.def, req),
		FetchedAt:   time.Now().UTC(),
		Status:      datatypes.FetchError,
		ErrorKind:   datatypes.ErrKindUpstreamUnavailable,
	}
}

func TestForecastDeadlineDegrades(t *testing.T) {
	deps := sources.Deps{Offline: true}
	registry, err := sources.NewRegistry(
		sources.NewMarketConnector(deps),
		sources.NewWeatherConnector(deps),
		&stalledConnector{def: sources.SourceDefinition{
			ID:             "stalled",
			Classification: sources.ClassGlobal,
		}},
	)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.ForecastDeadline = 150 * time.Millisecond
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	eng, err := New(testLogger(), cfg, registry,
		cache.New(cache.Options{MaxEntries: cfg.CacheMaxSize}),
		datatypes.DefaultRegions(), metrics, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, engErr := eng.Forecast(context.Background(), datatypes.ForecastRequest{
		RegionID: "us_il", DaysBack: 30, ForecastHorizon: 7,
	})
	if engErr != nil {
		t.Fatalf("deadline expiry must degrade, not fail: %v", engErr)
	}
	if !res.Degraded {
		t.Fatal("result must carry the degraded flag")
	}
	if res.DegradedReason != datatypes.ErrKindDeadlineExceeded {
		t.Errorf("degraded reason = %s, want deadline_exceeded", res.DegradedReason)
	}

	// The responsive sources still made it into the result.
	byID := make(map[string]datatypes.SourceFetchSummary)
	for _, s := range res.Sources {
		byID[s.SourceID] = s
	}
	for _, id := range []string{"market", "weather"} {
		if byID[id].Status != datatypes.FetchOK {
			t.Errorf("fast source %s status = %s, want ok", id, byID[id].Status)
		}
	}
	if byID["stalled"].Status != datatypes.FetchError {
		t.Errorf("stalled source status = %s, want error", byID["stalled"].Status)
	}
	if len(res.Forecast) != 7 {
		t.Errorf("forecast length = %d, want 7 despite degradation", len(res.Forecast))
	}
}

func TestForecastConcurrencySaturation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentRequests = 1
	eng := newOfflineEngine(t, cfg)

	// Hold the only slot.
	eng.requestSlots <- struct{}{}
	defer func() { <-eng.requestSlots }()

	_, engErr := eng.Forecast(context.Background(), datatypes.ForecastRequest{
		RegionID: "us_il", Latitude: 40, Longitude: -89,
	})
	if engErr == nil || engErr.Kind != datatypes.ErrKindConcurrencySaturated {
		t.Fatalf("error = %v, want concurrency_saturated", engErr)
	}
}

func TestForecastParallelRequests(t *testing.T) {
	eng := newOfflineEngine(t, testConfig())
	regions := []string{"us_il", "us_az", "us_ny", "us_tx"}

	var wg sync.WaitGroup
	errs := make([]*Error, len(regions))
	for i, id := range regions {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = eng.Forecast(context.Background(), datatypes.ForecastRequest{
				RegionID: id, DaysBack: 30,
			})
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("region %s: %v", regions[i], err)
		}
	}
}

func TestForecastDefaultWindowAndHorizon(t *testing.T) {
	eng := newOfflineEngine(t, testConfig())

	res, engErr := eng.Forecast(context.Background(), datatypes.ForecastRequest{RegionID: "us_ny"})
	if engErr != nil {
		t.Fatal(engErr)
	}
	if res.HorizonDays != defaultHorizon {
		t.Errorf("HorizonDays = %d, want default %d", res.HorizonDays, defaultHorizon)
	}
	if got := res.History.Len(); got != defaultDaysBack {
		t.Errorf("history length = %d, want default %d", got, defaultDaysBack)
	}
}
