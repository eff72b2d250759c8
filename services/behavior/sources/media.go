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
	mediaTimelineURL = "https://api.gdeltproject.org/api/v2/doc/doc?query=%s&mode=timelinevol&format=json&timespan=%dd"
	mediaQuery       = "(protest OR unrest OR strike OR shortage)"

	// FeatureMediaAttention is the GDELT volume intensity for crisis
	// coverage, as a share of all monitored coverage.
	FeatureMediaAttention = "media_attention"
)

type gdeltTimelineResponse struct {
	Timeline []struct {
		Data []struct {
			Date  string  `json:"date"`
			Value float64 `json:"value"`
		} `json:"data"`
	} `json:"timeline"`
}

// MediaConnector reads crisis-coverage volume from the GDELT doc API.
// GLOBAL and keyless; all regions share one attention signal.
type MediaConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewMediaConnector wires the media attention source.
func NewMediaConnector(deps Deps) *MediaConnector {
	return &MediaConnector{
		def: SourceDefinition{
			ID:               "media",
			Name:             "Media Attention",
			Category:         "digital",
			Classification:   ClassGlobal,
			RequiresKey:      false,
			CanRunWithoutKey: true,
			Features:         []string{FeatureMediaAttention},
			ExpectedVariance: "high",
			TTL:              6 * time.Hour,
			Description:      "Crisis-coverage volume share from the GDELT doc API.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *MediaConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *MediaConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req.WindowDays)
	return finish(fetch, series, err)
}

func (c *MediaConnector) load(ctx context.Context, windowDays int) (*datatypes.DailySeries, error) {
	url := fmt.Sprintf(mediaTimelineURL, mediaQuery, windowDays)

	var resp gdeltTimelineResponse
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, url, &resp); err != nil {
		return nil, err
	}
	if len(resp.Timeline) == 0 {
		return nil, nil
	}

	points := make(map[time.Time]float64, len(resp.Timeline[0].Data))
	for _, row := range resp.Timeline[0].Data {
		// GDELT timeline dates look like 20240301T000000Z.
		d, err := time.Parse("20060102T150405Z", row.Date)
		if err != nil {
			continue
		}
		points[datatypes.Day(d)] = row.Value
	}
	return dailyFromPoints(FeatureMediaAttention, windowDays, points), nil
}
