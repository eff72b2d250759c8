// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the engine configuration from the environment.
// Every knob has a production default; Load only fails on values that
// parse but make no sense (negative caps, zero deadlines).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sources"
)

// Config is the fully resolved engine configuration.
type Config struct {
	Port string

	// CacheMaxSize caps fetch cache entries.
	CacheMaxSize int

	// CacheTTLOverrides maps source id to a TTL override, from
	// CACHE_TTL_MINUTES_<SOURCE> variables.
	CacheTTLOverrides map[string]time.Duration

	// MaxConcurrentUpstream caps simultaneous connector fetches within
	// one request.
	MaxConcurrentUpstream int

	// MaxConcurrentRequests caps forecasts in flight across the server.
	MaxConcurrentRequests int

	// ForecastDeadline is the end-to-end request deadline.
	ForecastDeadline time.Duration

	// Offline switches every connector to deterministic synthetic data.
	Offline bool

	// APIKeys maps env var name to its value for keyed sources.
	APIKeys map[string]string

	// JournalPath enables the forecast journal when non-empty.
	JournalPath string

	// LogDir enables file logging alongside stderr when non-empty.
	LogDir string

	// RegionsConfig optionally points at a YAML region catalog.
	RegionsConfig string

	// History sink (optional).
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// OTLPEndpoint enables trace export when non-empty.
	OTLPEndpoint string
}

const cacheTTLPrefix = "CACHE_TTL_MINUTES_"

// Load reads the environment into a validated Config.
func Load() (*Config, error) {
	var parseErr error
	envInt := func(name string, fallback int) int {
		v := os.Getenv(name)
		if v == "" {
			return fallback
		}
		n, err := strconv.Atoi(v)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("config: %s must be an integer, got %q", name, v)
		}
		return n
	}

	cfg := &Config{
		Port:                  envOr("PORT", "8090"),
		CacheMaxSize:          envInt("CACHE_MAX_SIZE", 1024),
		MaxConcurrentUpstream: envInt("MAX_CONCURRENT_UPSTREAM", 8),
		MaxConcurrentRequests: envInt("MAX_CONCURRENT_REQUESTS", 16),
		ForecastDeadline:      time.Duration(envInt("FORECAST_DEADLINE_SECONDS", 60)) * time.Second,
		Offline:               envBool("OFFLINE_MODE"),
		JournalPath:           os.Getenv("JOURNAL_PATH"),
		LogDir:                os.Getenv("LOG_DIR"),
		RegionsConfig:         os.Getenv("REGIONS_CONFIG"),
		InfluxURL:             os.Getenv("INFLUXDB_URL"),
		InfluxToken:           os.Getenv("INFLUXDB_TOKEN"),
		InfluxOrg:             envOr("INFLUXDB_ORG", "behavior"),
		InfluxBucket:          envOr("INFLUXDB_BUCKET", "behavior-index"),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CacheTTLOverrides:     make(map[string]time.Duration),
		APIKeys:               make(map[string]string),
	}

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, cacheTTLPrefix) {
			continue
		}
		minutes, err := strconv.Atoi(value)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("config: %s must be a positive integer, got %q", name, value)
		}
		source := strings.ToLower(strings.TrimPrefix(name, cacheTTLPrefix))
		cfg.CacheTTLOverrides[source] = time.Duration(minutes) * time.Minute
	}

	// The registry's KeyEnvVar declarations decide which credential
	// variables are forwarded; nothing else reaches the connectors.
	for _, name := range sources.KeyEnvVars() {
		if v := os.Getenv(name); v != "" {
			cfg.APIKeys[name] = v
		}
	}

	if parseErr != nil {
		return nil, parseErr
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CacheMaxSize <= 0 {
		return fmt.Errorf("config: CACHE_MAX_SIZE must be positive, got %d", c.CacheMaxSize)
	}
	if c.MaxConcurrentUpstream <= 0 {
		return fmt.Errorf("config: MAX_CONCURRENT_UPSTREAM must be positive, got %d", c.MaxConcurrentUpstream)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("config: MAX_CONCURRENT_REQUESTS must be positive, got %d", c.MaxConcurrentRequests)
	}
	if c.ForecastDeadline <= 0 {
		return fmt.Errorf("config: FORECAST_DEADLINE_SECONDS must be positive")
	}
	return nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envBool(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
