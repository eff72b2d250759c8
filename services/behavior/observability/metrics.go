// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability publishes forecast results as Prometheus gauges.
//
// # Description
//
// Every completed forecast updates a fixed family of gauges, all keyed by
// a mandatory region label:
//   - Composite index, parent and child sub-index values
//   - Renormalized contribution weights
//   - Per-source status and last-success timestamps
//   - Forecast model output counts and freshness timestamps
//   - Derived rate-of-change and volatility series
//
// # Cardinality
//
// Label values are never empty and never the literal "None"; Publish
// refuses such results outright rather than emitting junk series.
//
// # Thread Safety
//
// All operations are thread-safe. Publish additionally serializes on a
// per-publisher mutex to enforce freshness ordering.
package observability

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

const metricsNamespace = "behavior"

// =============================================================================
// Metric Definitions
// =============================================================================

// Metrics holds the full gauge family for forecast publication.
type Metrics struct {
	// BehaviorIndex is the latest composite value. Labels: region.
	BehaviorIndex *prometheus.GaugeVec

	// Degraded is 1 when the latest result fell back to the neutral
	// composite. Labels: region.
	Degraded *prometheus.GaugeVec

	// ParentValue is one series per parent sub-index. Labels: region, parent.
	ParentValue *prometheus.GaugeVec

	// ChildValue is one series per contributing child. Labels: region,
	// parent, child.
	ChildValue *prometheus.GaugeVec

	// Contribution is the renormalized child weight actually used.
	// Labels: region, parent, child.
	Contribution *prometheus.GaugeVec

	// SourceStatus is 1 for ok, 0 for empty or error. Labels: region, source.
	SourceStatus *prometheus.GaugeVec

	// SourceLastSuccess is the unix time of the last successful fetch.
	// Labels: region, source.
	SourceLastSuccess *prometheus.GaugeVec

	// ForecastPoints counts the points generated by the last run.
	// Labels: region, model.
	ForecastPoints *prometheus.GaugeVec

	// ForecastLastUpdated is the unix time of the last publish. Labels: region.
	ForecastLastUpdated *prometheus.GaugeVec

	// IndexDelta is the composite rate of change over a trailing window.
	// Labels: region, window (7d, 30d, 90d).
	IndexDelta *prometheus.GaugeVec

	// IndexVolatility30d is the 30-day std of the composite. Labels: region.
	IndexVolatility30d *prometheus.GaugeVec

	// CacheEntries, CacheHits, CacheEvictions expose fetch-cache state.
	CacheEntries   prometheus.Gauge
	CacheHits      prometheus.Gauge
	CacheEvictions prometheus.Gauge

	// mu guards lastPublished for the freshness check.
	mu            sync.Mutex
	lastPublished map[string]time.Time
}

// NewMetrics registers the gauge family on the given registerer. Use
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return auto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      name,
				Help:      help,
			},
			labels,
		)
	}
	plain := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		BehaviorIndex:       gauge("index", "Latest composite behavior index per region", "region"),
		Degraded:            gauge("index_degraded", "1 when the latest composite fell back to neutral", "region"),
		ParentValue:         gauge("parent_subindex_value", "Parent sub-index value", "region", "parent"),
		ChildValue:          gauge("child_subindex_value", "Child sub-index value", "region", "parent", "child"),
		Contribution:        gauge("subindex_contribution", "Renormalized child weight used in aggregation", "region", "parent", "child"),
		SourceStatus:        gauge("data_source_status", "1 ok, 0 empty or error", "region", "source"),
		SourceLastSuccess:   gauge("data_source_last_success_timestamp_seconds", "Unix time of last successful fetch", "region", "source"),
		ForecastPoints:      gauge("forecast_points_generated", "Points generated by the last forecast", "region", "model"),
		ForecastLastUpdated: gauge("forecast_last_updated_timestamp_seconds", "Unix time of last forecast publish", "region"),
		IndexDelta:          gauge("index_delta", "Composite change over a trailing window", "region", "window"),
		IndexVolatility30d:  gauge("index_volatility_30d", "30-day standard deviation of the composite", "region"),
		CacheEntries:        plain("fetch_cache_entries", "Current fetch cache entry count"),
		CacheHits:           plain("fetch_cache_hits_total", "Cumulative fetch cache hits"),
		CacheEvictions:      plain("fetch_cache_evictions_total", "Cumulative fetch cache evictions"),
		lastPublished:       make(map[string]time.Time),
	}
}

// =============================================================================
// Publication
// =============================================================================

// Publish writes one forecast result into the gauge family.
//
// completedAt is the request completion timestamp; a publish older than
// the region's last applied publish is dropped, so a slow request that
// finishes after a newer one cannot overwrite fresher values.
//
// Returns false when the publish was dropped (stale, or unusable region
// label).
func (m *Metrics) Publish(res *datatypes.ForecastResult, completedAt time.Time) bool {
	region := res.RegionID
	if !validLabel(region) {
		return false
	}

	m.mu.Lock()
	if last, ok := m.lastPublished[region]; ok && !completedAt.After(last) {
		m.mu.Unlock()
		return false
	}
	m.lastPublished[region] = completedAt

	m.BehaviorIndex.WithLabelValues(region).Set(res.Tree.Value)
	m.Degraded.WithLabelValues(region).Set(boolGauge(res.Degraded))

	for _, p := range res.Tree.Children {
		if !p.Present || !validLabel(p.Name) {
			continue
		}
		m.ParentValue.WithLabelValues(region, p.Name).Set(p.Value)
		for _, c := range p.Children {
			if !c.Present || !validLabel(c.Name) {
				continue
			}
			m.ChildValue.WithLabelValues(region, p.Name, c.Name).Set(c.Value)
		}
	}
	for _, contrib := range res.Contributions {
		if !validLabel(contrib.Parent) || !validLabel(contrib.Child) {
			continue
		}
		m.Contribution.WithLabelValues(region, contrib.Parent, contrib.Child).Set(contrib.Weight)
	}

	now := completedAt
	for _, src := range res.Sources {
		if !validLabel(src.SourceID) {
			continue
		}
		if src.Status == datatypes.FetchOK {
			m.SourceStatus.WithLabelValues(region, src.SourceID).Set(1)
			m.SourceLastSuccess.WithLabelValues(region, src.SourceID).Set(float64(now.Unix()))
		} else {
			m.SourceStatus.WithLabelValues(region, src.SourceID).Set(0)
		}
	}

	if validLabel(res.ModelName) {
		m.ForecastPoints.WithLabelValues(region, res.ModelName).Set(float64(len(res.Forecast)))
	}
	m.ForecastLastUpdated.WithLabelValues(region).Set(float64(now.Unix()))
	m.publishDerivedLocked(region, res.History)
	m.mu.Unlock()
	return true
}

// publishDerivedLocked emits the rate-of-change and volatility series
// from the composite history column. Caller holds mu.
func (m *Metrics) publishDerivedLocked(region string, history *datatypes.DailySeries) {
	if history == nil || len(history.Features) == 0 {
		return
	}
	col := history.Columns[history.Features[0]]
	vals := make([]float64, 0, len(col))
	for _, v := range col {
		if !datatypes.IsMissing(v) {
			vals = append(vals, v)
		}
	}
	n := len(vals)
	if n == 0 {
		return
	}

	for _, w := range []struct {
		name string
		days int
	}{{"7d", 7}, {"30d", 30}, {"90d", 90}} {
		if n > w.days {
			m.IndexDelta.WithLabelValues(region, w.name).Set(vals[n-1] - vals[n-1-w.days])
		}
	}
	if n >= 2 {
		window := vals
		if n > 30 {
			window = vals[n-30:]
		}
		m.IndexVolatility30d.WithLabelValues(region).Set(stddev(window))
	}
}

// RecordCacheStats refreshes the fetch-cache gauges.
func (m *Metrics) RecordCacheStats(entries int, hits, evictions int64) {
	m.CacheEntries.Set(float64(entries))
	m.CacheHits.Set(float64(hits))
	m.CacheEvictions.Set(float64(evictions))
}

// =============================================================================
// Helpers
// =============================================================================

// validLabel rejects the label values the cardinality contract forbids.
func validLabel(v string) bool {
	return v != "" && v != "None"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func stddev(vals []float64) float64 {
	n := len(vals)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
