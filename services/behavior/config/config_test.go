// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with clean env: %v", err)
	}
	if cfg.CacheMaxSize != 1024 {
		t.Errorf("CacheMaxSize = %d, want 1024", cfg.CacheMaxSize)
	}
	if cfg.MaxConcurrentUpstream != 8 {
		t.Errorf("MaxConcurrentUpstream = %d, want 8", cfg.MaxConcurrentUpstream)
	}
	if cfg.ForecastDeadline != 60*time.Second {
		t.Errorf("ForecastDeadline = %v, want 60s", cfg.ForecastDeadline)
	}
	if cfg.Offline {
		t.Error("Offline must default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_MAX_SIZE", "32")
	t.Setenv("MAX_CONCURRENT_UPSTREAM", "4")
	t.Setenv("FORECAST_DEADLINE_SECONDS", "15")
	t.Setenv("OFFLINE_MODE", "true")
	t.Setenv("JOURNAL_PATH", "/tmp/journal.ndjson")
	t.Setenv("LOG_DIR", "/tmp/behaviord-logs")
	t.Setenv("SENTIMENT_API_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheMaxSize != 32 || cfg.MaxConcurrentUpstream != 4 {
		t.Errorf("caps not applied: %+v", cfg)
	}
	if cfg.ForecastDeadline != 15*time.Second {
		t.Errorf("ForecastDeadline = %v, want 15s", cfg.ForecastDeadline)
	}
	if !cfg.Offline {
		t.Error("OFFLINE_MODE=true must enable offline")
	}
	if cfg.JournalPath != "/tmp/journal.ndjson" {
		t.Errorf("JournalPath = %s", cfg.JournalPath)
	}
	if cfg.LogDir != "/tmp/behaviord-logs" {
		t.Errorf("LogDir = %s", cfg.LogDir)
	}
	if cfg.APIKeys["SENTIMENT_API_KEY"] != "secret" {
		t.Error("configured api key must be forwarded")
	}
}

func TestLoadForwardsAllDeclaredKeys(t *testing.T) {
	t.Setenv("EIA_API_KEY", "fuel-key")
	t.Setenv("NOAA_API_KEY", "storms-key")
	t.Setenv("MEDIA_API_KEY", "nobody-declares-this")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKeys["EIA_API_KEY"] != "fuel-key" {
		t.Error("EIA_API_KEY must be forwarded to the fuel connector")
	}
	if cfg.APIKeys["NOAA_API_KEY"] != "storms-key" {
		t.Error("NOAA_API_KEY must be forwarded to the storms connector")
	}
	if _, ok := cfg.APIKeys["MEDIA_API_KEY"]; ok {
		t.Error("a variable no connector declares must not be forwarded")
	}
}

func TestLoadPerSourceTTLOverrides(t *testing.T) {
	t.Setenv("CACHE_TTL_MINUTES_MARKET", "5")
	t.Setenv("CACHE_TTL_MINUTES_WEATHER", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheTTLOverrides["market"] != 5*time.Minute {
		t.Errorf("market TTL = %v, want 5m", cfg.CacheTTLOverrides["market"])
	}
	if cfg.CacheTTLOverrides["weather"] != 120*time.Minute {
		t.Errorf("weather TTL = %v, want 120m", cfg.CacheTTLOverrides["weather"])
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric cache size", "CACHE_MAX_SIZE", "lots"},
		{"negative cache size", "CACHE_MAX_SIZE", "-1"},
		{"zero upstream cap", "MAX_CONCURRENT_UPSTREAM", "0"},
		{"zero deadline", "FORECAST_DEADLINE_SECONDS", "0"},
		{"bad ttl override", "CACHE_TTL_MINUTES_MARKET", "soon"},
		{"negative ttl override", "CACHE_TTL_MINUTES_MARKET", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s must fail", tt.key, tt.value)
			}
		})
	}
}

func TestOfflineModeSpellings(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		t.Setenv("OFFLINE_MODE", v)
		cfg, err := Load()
		if err != nil {
			t.Fatal(err)
		}
		if !cfg.Offline {
			t.Errorf("OFFLINE_MODE=%q should enable offline", v)
		}
	}
	t.Setenv("OFFLINE_MODE", "nope")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Offline {
		t.Error("unrecognized OFFLINE_MODE value must stay disabled")
	}
}
