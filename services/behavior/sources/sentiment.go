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
	// FRED hosts the UMich consumer sentiment index (UMCSENT, monthly).
	sentimentSeriesURL = "https://api.stlouisfed.org/fred/series/observations?series_id=UMCSENT&api_key=%s&file_type=json&observation_start=%s"

	// FeatureConsumerSentiment is the raw UMich sentiment index level.
	FeatureConsumerSentiment = "consumer_sentiment"
)

type fredObservations struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// SentimentConnector reads the consumer sentiment index from FRED.
// NATIONAL, monthly cadence; interior gaps are interpolated downstream.
type SentimentConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewSentimentConnector wires the consumer sentiment source.
func NewSentimentConnector(deps Deps) *SentimentConnector {
	return &SentimentConnector{
		def: SourceDefinition{
			ID:               "sentiment",
			Name:             "Consumer Sentiment",
			Category:         "economic",
			Classification:   ClassNational,
			RequiresKey:      true,
			KeyEnvVar:        "SENTIMENT_API_KEY",
			GeoInputsUsed:    []string{"country"},
			CacheKeyFields:   []string{"country"},
			Features:         []string{FeatureConsumerSentiment},
			ExpectedVariance: "low",
			TTL:              24 * time.Hour,
			Description:      "UMich consumer sentiment index via the FRED API.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *SentimentConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *SentimentConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req.WindowDays)
	return finish(fetch, series, err)
}

func (c *SentimentConnector) load(ctx context.Context, windowDays int) (*datatypes.DailySeries, error) {
	key, _ := c.deps.key(c.def)
	u := fmt.Sprintf(sentimentSeriesURL, url.QueryEscape(key),
		windowStart(windowDays).Format(datatypes.DateLayout))

	var resp fredObservations
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, u, &resp); err != nil {
		return nil, err
	}

	points := make(map[time.Time]float64, len(resp.Observations))
	for _, obs := range resp.Observations {
		// FRED encodes missing observations as ".".
		var v float64
		if _, err := fmt.Sscanf(obs.Value, "%f", &v); err != nil {
			continue
		}
		d, err := time.Parse(datatypes.DateLayout, obs.Date)
		if err != nil {
			continue
		}
		points[datatypes.Day(d)] = v
	}
	return dailyFromPoints(FeatureConsumerSentiment, windowDays, points), nil
}
