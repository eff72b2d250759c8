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
	healthEpidataURL = "https://api.delphi.cmu.edu/epidata/covidcast/?signal=doctor-visits:smoothed_adj_cli&geo_type=nation&geo_values=us&time_type=day&time_values=%s-%s&api_key=%s"

	// FeatureHealthRiskProxy is the raw outpatient illness-visit share.
	FeatureHealthRiskProxy = "health_risk_proxy"
)

type epidataResponse struct {
	Epidata []struct {
		TimeValue int     `json:"time_value"`
		Value     float64 `json:"value"`
	} `json:"epidata"`
}

// HealthConnector reads an outpatient illness proxy from the Delphi
// epidata API. NATIONAL, keyed.
type HealthConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewHealthConnector wires the public-health proxy source.
func NewHealthConnector(deps Deps) *HealthConnector {
	return &HealthConnector{
		def: SourceDefinition{
			ID:               "health",
			Name:             "Health Risk Proxy",
			Category:         "public_health",
			Classification:   ClassNational,
			RequiresKey:      true,
			KeyEnvVar:        "HEALTH_API_KEY",
			GeoInputsUsed:    []string{"country"},
			CacheKeyFields:   []string{"country"},
			Features:         []string{FeatureHealthRiskProxy},
			ExpectedVariance: "low",
			TTL:              24 * time.Hour,
			Description:      "Outpatient illness-visit share from the Delphi epidata API.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *HealthConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *HealthConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req.WindowDays)
	return finish(fetch, series, err)
}

func (c *HealthConnector) load(ctx context.Context, windowDays int) (*datatypes.DailySeries, error) {
	key, _ := c.deps.key(c.def)
	end := datatypes.Day(time.Now().UTC())
	start := windowStart(windowDays)
	u := fmt.Sprintf(healthEpidataURL,
		start.Format("20060102"), end.Format("20060102"), url.QueryEscape(key))

	var resp epidataResponse
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, u, &resp); err != nil {
		return nil, err
	}

	points := make(map[time.Time]float64, len(resp.Epidata))
	for _, row := range resp.Epidata {
		d, err := time.Parse("20060102", fmt.Sprintf("%d", row.TimeValue))
		if err != nil {
			continue
		}
		points[datatypes.Day(d)] = row.Value
	}
	return dailyFromPoints(FeatureHealthRiskProxy, windowDays, points), nil
}
