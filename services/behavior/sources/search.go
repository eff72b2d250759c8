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
	"net/url"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

const (
	searchTrendsURL = "https://serpapi.com/search.json?engine=google_trends&q=%s&data_type=TIMESERIES&date=today+%dm&api_key=%s"
	searchQuery     = "shortage,protest,layoffs"

	// FeatureSearchInterest is raw trends interest (0-100 scale).
	FeatureSearchInterest = "search_interest"
)

type trendsTimeseriesResponse struct {
	InterestOverTime struct {
		TimelineData []struct {
			Timestamp string `json:"timestamp"`
			Values    []struct {
				ExtractedValue float64 `json:"extracted_value"`
			} `json:"values"`
		} `json:"timeline_data"`
	} `json:"interest_over_time"`
}

// SearchConnector reads crisis-term search interest via a trends API.
// GLOBAL, keyed.
type SearchConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewSearchConnector wires the search interest source.
func NewSearchConnector(deps Deps) *SearchConnector {
	return &SearchConnector{
		def: SourceDefinition{
			ID:               "search",
			Name:             "Search Interest",
			Category:         "digital",
			Classification:   ClassGlobal,
			RequiresKey:      true,
			KeyEnvVar:        "SEARCH_API_KEY",
			Features:         []string{FeatureSearchInterest},
			ExpectedVariance: "moderate",
			TTL:              12 * time.Hour,
			Description:      "Crisis-term search interest from a Google Trends proxy API.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *SearchConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *SearchConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req.WindowDays)
	return finish(fetch, series, err)
}

func (c *SearchConnector) load(ctx context.Context, windowDays int) (*datatypes.DailySeries, error) {
	key, _ := c.deps.key(c.def)
	months := windowDays/30 + 1
	u := fmt.Sprintf(searchTrendsURL, url.QueryEscape(searchQuery), months, url.QueryEscape(key))

	var resp trendsTimeseriesResponse
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, u, &resp); err != nil {
		return nil, err
	}

	points := make(map[time.Time]float64, len(resp.InterestOverTime.TimelineData))
	for _, row := range resp.InterestOverTime.TimelineData {
		var unix int64
		if _, err := fmt.Sscanf(row.Timestamp, "%d", &unix); err != nil || len(row.Values) == 0 {
			continue
		}
		points[datatypes.Day(time.Unix(unix, 0))] = row.Values[0].ExtractedValue
	}
	return dailyFromPoints(FeatureSearchInterest, windowDays, points), nil
}
