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
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

const (
	marketChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history"
	marketSymbol   = "^VIX"

	// FeatureMarketVolatility is the raw daily VIX close.
	FeatureMarketVolatility = "market_volatility"
)

// --- Yahoo Finance chart decode ---

type yahooChartResponse struct {
	Chart struct {
		Result []yahooResult `json:"result"`
		Error  interface{}   `json:"error"`
	} `json:"chart"`
}

type yahooResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// MarketConnector reads equity-market volatility (VIX daily closes).
//
// GLOBAL: the same world index applies to every region, so lat/lon never
// enter the fingerprint and all regions share one cache entry per window.
type MarketConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewMarketConnector wires the market volatility source.
func NewMarketConnector(deps Deps) *MarketConnector {
	return &MarketConnector{
		def: SourceDefinition{
			ID:               "market",
			Name:             "Market Volatility",
			Category:         "economic",
			Classification:   ClassGlobal,
			RequiresKey:      false,
			CanRunWithoutKey: true,
			GeoInputsUsed:    nil,
			CacheKeyFields:   nil,
			Features:         []string{FeatureMarketVolatility},
			ExpectedVariance: "high",
			TTL:              5 * time.Minute,
			Description:      "Daily VIX close as an equity-market stress proxy.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *MarketConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *MarketConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req.WindowDays)
	return finish(fetch, series, err)
}

func (c *MarketConnector) load(ctx context.Context, windowDays int) (*datatypes.DailySeries, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -windowDays)
	url := fmt.Sprintf(marketChartURL, marketSymbol, start.Unix(), end.Unix())

	var chart yahooChartResponse
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, url, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("market: upstream error: %v", chart.Chart.Error)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}
	res := chart.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("market: incomplete indicators in chart response")
	}

	closes := res.Indicators.Quote[0].Close
	points := make(map[time.Time]float64, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == 0 {
			continue
		}
		points[datatypes.Day(time.Unix(ts, 0))] = closes[i]
	}
	return dailyFromPoints(FeatureMarketVolatility, windowDays, points), nil
}
