// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates one forecast request end to end: fan out
// to every registered source through the fetch cache, harmonize,
// compute the behavior index, project it forward, then publish to
// metrics, journal, and the optional history sink.
//
// # Degradation policy
//
// Upstream problems never fail a request. A request fails only on bad
// input, saturation, or an internal computation error; everything else
// produces a result with the degraded flag and a reason.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/cache"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/config"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/forecast"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/harmonize"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/index"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/journal"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/observability"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sink"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sources"
)

const (
	defaultDaysBack = 365
	defaultHorizon  = 7

	// marketFillBudget is the forward-fill allowance for exchange-traded
	// signals, which legitimately go dark over weekends.
	marketFillBudget = 2
)

// Error is a request-scoped failure carrying its taxonomy kind.
type Error struct {
	Kind    datatypes.ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Engine is the forecast orchestrator. Build once with New, share
// across requests; all methods are safe for concurrent use.
type Engine struct {
	log      *slog.Logger
	cfg      *config.Config
	registry *sources.Registry
	cache    *cache.FetchCache
	tree     *index.Tree
	regions  *datatypes.RegionSet

	metrics *observability.Metrics
	journal *journal.Journal
	sink    *sink.HistorySink

	// requestSlots enforces the global forecast concurrency cap.
	requestSlots chan struct{}
}

// New assembles the engine. Tree construction validates the sub-index
// weights, so a misconfigured deployment fails here rather than serving
// a wrong composite.
func New(
	log *slog.Logger,
	cfg *config.Config,
	registry *sources.Registry,
	fetchCache *cache.FetchCache,
	regions *datatypes.RegionSet,
	metrics *observability.Metrics,
	jrnl *journal.Journal,
	historySink *sink.HistorySink,
) (*Engine, error) {
	inverted := make(map[string]bool)
	for _, def := range registry.Definitions() {
		if def.InvertForIndex {
			inverted[def.ID] = true
		}
	}
	tree, err := index.NewTree(index.ApplyInversion(index.DefaultSpecs(), inverted))
	if err != nil {
		return nil, err
	}

	return &Engine{
		log:          log,
		cfg:          cfg,
		registry:     registry,
		cache:        fetchCache,
		tree:         tree,
		regions:      regions,
		metrics:      metrics,
		journal:      jrnl,
		sink:         historySink,
		requestSlots: make(chan struct{}, cfg.MaxConcurrentRequests),
	}, nil
}

// Forecast runs one request. The returned *Error is nil on success,
// including degraded successes.
func (e *Engine) Forecast(ctx context.Context, req datatypes.ForecastRequest) (*datatypes.ForecastResult, *Error) {
	region, errResolve := e.resolveRegion(req)
	if errResolve != nil {
		return nil, errResolve
	}

	select {
	case e.requestSlots <- struct{}{}:
		defer func() { <-e.requestSlots }()
	default:
		return nil, &Error{
			Kind:    datatypes.ErrKindConcurrencySaturated,
			Message: "forecast concurrency limit reached, retry shortly",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ForecastDeadline)
	defer cancel()

	daysBack := req.DaysBack
	if daysBack == 0 {
		daysBack = defaultDaysBack
	}
	horizon := req.ForecastHorizon
	if horizon == 0 {
		horizon = defaultHorizon
	}

	started := time.Now().UTC()
	fetches := e.fanOut(ctx, region, daysBack)

	degraded := false
	var degradedReason datatypes.ErrorKind
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		degraded = true
		degradedReason = datatypes.ErrKindDeadlineExceeded
	}

	harmonized := harmonize.Harmonize(e.harmonizeInputs(fetches), daysBack)
	idx := e.tree.Compute(harmonized)
	if idx.AllMissing {
		degraded = true
		if degradedReason == "" {
			degradedReason = datatypes.ErrKindAllSourcesMissing
		}
	}

	proj, errProject := e.project(idx.Series, horizon)
	if errProject != nil {
		return nil, errProject
	}

	res := &datatypes.ForecastResult{
		RegionID:           region.ID,
		CreatedAt:          started,
		HorizonDays:        horizon,
		History:            idx.Series,
		Tree:               idx.Tree,
		Contributions:      idx.Contributions,
		Forecast:           proj.Points,
		ModelName:          proj.ModelName,
		ModelParams:        proj.ModelParams,
		DataQuality:        e.dataQuality(harmonized),
		Degraded:           degraded,
		DegradedReason:     degradedReason,
		RequestFingerprint: requestFingerprint(region, fetches, daysBack, horizon),
	}
	for _, f := range fetches {
		res.Sources = append(res.Sources, f.Summary())
	}
	res.ComputeDigest()

	e.publish(res)
	return res, nil
}

// resolveRegion maps a request to a validated region: catalog entry if
// the id is known, ad hoc from the request geo otherwise.
func (e *Engine) resolveRegion(req datatypes.ForecastRequest) (datatypes.Region, *Error) {
	if r, ok := e.regions.Get(req.RegionID); ok {
		return r, nil
	}
	r := datatypes.Region{
		ID:         req.RegionID,
		Name:       req.RegionName,
		Country:    "US",
		RegionType: "ad_hoc",
		Lat:        req.Latitude,
		Lon:        req.Longitude,
	}
	if err := r.Validate(); err != nil {
		return datatypes.Region{}, &Error{
			Kind:    datatypes.ErrKindInvalidInput,
			Message: err.Error(),
		}
	}
	return r, nil
}

// fanOut fetches every registered source through the cache, at most
// MaxConcurrentUpstream in flight, preserving registry order in the
// result slice.
func (e *Engine) fanOut(ctx context.Context, region datatypes.Region, daysBack int) []*datatypes.SourceFetch {
	connectors := e.registry.All()
	results := make([]*datatypes.SourceFetch, len(connectors))
	sem := make(chan struct{}, e.cfg.MaxConcurrentUpstream)

	var wg sync.WaitGroup
	for i, conn := range connectors {
		wg.Add(1)
		go func(i int, conn sources.Connector) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			def := conn.Definition()
			freq := sources.FetchRequest{Region: region, WindowDays: daysBack}
			fp := sources.FingerprintFor(def, freq)
			ttl := def.TTL
			if override, ok := e.cfg.CacheTTLOverrides[def.ID]; ok {
				ttl = override
			}
			results[i] = e.cache.GetOrFetch(ctx, fp, ttl, func(ctx context.Context) *datatypes.SourceFetch {
				return conn.Fetch(ctx, freq)
			})
		}(i, conn)
	}
	wg.Wait()
	return results
}

// harmonizeInputs attaches the per-source imputation and normalization
// policy to each fetch.
func (e *Engine) harmonizeInputs(fetches []*datatypes.SourceFetch) []harmonize.Input {
	defs := make(map[string]sources.SourceDefinition)
	for _, d := range e.registry.Definitions() {
		defs[d.ID] = d
	}
	inputs := make([]harmonize.Input, 0, len(fetches))
	for _, f := range fetches {
		if f == nil {
			continue
		}
		in := harmonize.Input{SourceID: f.SourceID, Fetch: f}
		if def, ok := defs[f.SourceID]; ok {
			if def.Category == "economic" {
				in.ForwardFillDays = marketFillBudget
			}
			in.Bounds = fixedBounds[def.ID]
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// fixedBounds declares the features with well-known raw scales. Every
// other feature gets robust scaling over the observed window.
var fixedBounds = map[string]map[string]harmonize.Range{
	"market": {
		// VIX: 10 is glassy calm, 60 is crisis.
		sources.FeatureMarketVolatility: {Min: 10, Max: 60},
	},
	"sentiment": {
		// Consumer sentiment index: high sentiment is low stress.
		sources.FeatureConsumerSentiment: {Min: 50, Max: 110, Invert: true},
	},
	"search": {
		// Trends interest is already 0-100.
		sources.FeatureSearchInterest: {Min: 0, Max: 100},
	},
}

// project runs the forecast model with a panic fence: the models are
// pure math, so any panic there is an internal error, not a request
// problem.
func (e *Engine) project(series *datatypes.DailySeries, horizon int) (proj *forecast.Projection, errOut *Error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("forecast model panic", "panic", r)
			proj = nil
			errOut = &Error{
				Kind:    datatypes.ErrKindInternal,
				Message: "forecast model failure",
			}
		}
	}()
	return forecast.Project(series, index.CompositeFeature, horizon), nil
}

// dataQuality summarizes coverage and regional signal availability.
func (e *Engine) dataQuality(h *harmonize.Result) datatypes.DataQuality {
	defs := make(map[string]sources.SourceDefinition)
	for _, d := range e.registry.Definitions() {
		defs[d.ID] = d
	}
	tag := "regional_sources_missing"
	for _, st := range h.Included() {
		if defs[st.SourceID].Classification == sources.ClassRegional {
			tag = "ok"
			break
		}
	}
	return datatypes.DataQuality{
		Completeness:        h.Completeness,
		RegionalVarianceTag: tag,
	}
}

// requestFingerprint identifies the full fetch input set: the region,
// window, horizon, and every per-source fingerprint in registry order.
func requestFingerprint(region datatypes.Region, fetches []*datatypes.SourceFetch, daysBack, horizon int) string {
	fields := []string{region.ID, fmt.Sprintf("h%d", horizon)}
	for _, f := range fetches {
		if f != nil {
			fields = append(fields, f.Fingerprint)
		}
	}
	return datatypes.Fingerprint("request", fields, daysBack)
}

// publish pushes the result to metrics, journal, and sink. All three
// are best effort and never affect the response.
func (e *Engine) publish(res *datatypes.ForecastResult) {
	completed := time.Now().UTC()
	if e.metrics != nil {
		e.metrics.Publish(res, completed)
		stats := e.cache.Stats()
		e.metrics.RecordCacheStats(stats.EntryCount, stats.Hits, stats.Evictions)
	}
	e.journal.Append(journal.FromResult(res))
	if e.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		go func() {
			defer cancel()
			e.sink.WriteResult(ctx, res)
		}()
	}
}

// Close flushes the journal and releases the sink.
func (e *Engine) Close() {
	e.journal.Close()
	e.sink.Close()
}
