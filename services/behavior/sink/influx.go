// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink persists computed index history to InfluxDB so external
// dashboards can chart regions over time. The sink is optional and
// best effort: write failures are logged, never surfaced to requests.
package sink

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

const measurement = "behavior_index"

// HistorySink writes composite index history into an InfluxDB bucket.
type HistorySink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      *slog.Logger
}

// Config is the sink connection info, usually from the environment.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether the config names a reachable sink at all.
func (c Config) Enabled() bool { return c.URL != "" && c.Token != "" }

// New connects the history sink. Like the journal, a disabled config
// returns a nil sink, and all methods on a nil sink are no-ops.
func New(cfg Config, log *slog.Logger) *HistorySink {
	if !cfg.Enabled() {
		return nil
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &HistorySink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      log,
	}
}

// WriteResult persists the latest composite value and the parent
// sub-index breakdown as one point per forecast completion.
func (s *HistorySink) WriteResult(ctx context.Context, res *datatypes.ForecastResult) {
	if s == nil {
		return
	}
	fields := map[string]interface{}{
		"composite": res.Tree.Value,
		"degraded":  res.Degraded,
	}
	for _, p := range res.Tree.Children {
		if p.Present {
			fields[p.Name] = p.Value
		}
	}
	point := influxdb2.NewPoint(
		measurement,
		map[string]string{
			"region": res.RegionID,
			"model":  res.ModelName,
		},
		fields,
		res.CreatedAt,
	)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		s.log.Warn("history sink write failed", "error", err, "region", res.RegionID)
	}
}

// Healthy pings the sink; used by the /health endpoint.
func (s *HistorySink) Healthy(ctx context.Context) bool {
	if s == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	health, err := s.client.Health(ctx)
	return err == nil && health.Status == "pass"
}

// Close releases the client.
func (s *HistorySink) Close() {
	if s != nil {
		s.client.Close()
	}
}
