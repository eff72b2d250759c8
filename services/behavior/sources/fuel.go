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
	fuelSeriesURL = "https://api.eia.gov/v2/petroleum/pri/gnd/data/?api_key=%s&frequency=weekly&data[0]=value&facets[product][]=EPMR&sort[0][column]=period&sort[0][direction]=desc&length=%d"

	// FeatureFuelStress is the raw retail gasoline price in USD/gal.
	FeatureFuelStress = "fuel_stress"
)

type eiaSeriesResponse struct {
	Response struct {
		Data []struct {
			Period string   `json:"period"`
			Value  *float64 `json:"value"`
		} `json:"data"`
	} `json:"response"`
}

// FuelConnector reads weekly retail gasoline prices from the EIA open
// data API. NATIONAL: one series per country, keyed by country only.
// Weekly observations land on their report day; the harmonizer's
// forward-fill budget spreads them across the week.
type FuelConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewFuelConnector wires the fuel price source.
func NewFuelConnector(deps Deps) *FuelConnector {
	return &FuelConnector{
		def: SourceDefinition{
			ID:               "fuel",
			Name:             "Fuel Price Stress",
			Category:         "economic",
			Classification:   ClassNational,
			RequiresKey:      true,
			KeyEnvVar:        "EIA_API_KEY",
			GeoInputsUsed:    []string{"country"},
			CacheKeyFields:   []string{"country"},
			Features:         []string{FeatureFuelStress},
			ExpectedVariance: "moderate",
			TTL:              24 * time.Hour,
			Description:      "Weekly retail gasoline price from the EIA open data API.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *FuelConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *FuelConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req.WindowDays)
	return finish(fetch, series, err)
}

func (c *FuelConnector) load(ctx context.Context, windowDays int) (*datatypes.DailySeries, error) {
	key, _ := c.deps.key(c.def)
	// Weekly cadence: one row per ~7 days of window, padded a little.
	rows := windowDays/7 + 4
	u := fmt.Sprintf(fuelSeriesURL, url.QueryEscape(key), rows)

	var resp eiaSeriesResponse
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, u, &resp); err != nil {
		return nil, err
	}

	points := make(map[time.Time]float64, len(resp.Response.Data))
	for _, row := range resp.Response.Data {
		if row.Value == nil {
			continue
		}
		d, err := time.Parse(datatypes.DateLayout, row.Period)
		if err != nil {
			continue
		}
		points[datatypes.Day(d)] = *row.Value
	}
	return dailyFromPoints(FeatureFuelStress, windowDays, points), nil
}
