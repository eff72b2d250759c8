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
	transitDeparturesURL = "https://transit.land/api/v2/rest/stops?lat=%.2f&lon=%.2f&radius=25000&served_by_route_type=1,3&include_departures=true&start=%s&end=%s&apikey=%s"

	// FeatureTransitActivity is raw scheduled-departure volume; an
	// activity signal, inverted by the index computer.
	FeatureTransitActivity = "transit_activity"
)

type transitlandResponse struct {
	Stops []struct {
		Departures []struct {
			ServiceDate string `json:"service_date"`
		} `json:"departures"`
	} `json:"stops"`
}

// TransitConnector counts scheduled transit departures near the region
// centroid via the Transitland REST API. REGIONAL, keyed.
type TransitConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewTransitConnector wires the transit activity source.
func NewTransitConnector(deps Deps) *TransitConnector {
	return &TransitConnector{
		def: SourceDefinition{
			ID:               "transit",
			Name:             "Transit Activity",
			Category:         "mobility",
			Classification:   ClassRegional,
			RequiresKey:      true,
			KeyEnvVar:        "TRANSIT_API_KEY",
			GeoInputsUsed:    []string{"lat", "lon"},
			CacheKeyFields:   []string{"lat", "lon"},
			Features:         []string{FeatureTransitActivity},
			InvertForIndex:   true,
			ExpectedVariance: "moderate",
			TTL:              12 * time.Hour,
			Description:      "Scheduled transit departures near the region centroid (Transitland).",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *TransitConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *TransitConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req)
	return finish(fetch, series, err)
}

func (c *TransitConnector) load(ctx context.Context, req FetchRequest) (*datatypes.DailySeries, error) {
	key, _ := c.deps.key(c.def)
	end := datatypes.Day(time.Now().UTC())
	start := windowStart(req.WindowDays)
	u := fmt.Sprintf(transitDeparturesURL,
		round2(req.Region.Lat), round2(req.Region.Lon),
		start.Format(datatypes.DateLayout), end.Format(datatypes.DateLayout),
		url.QueryEscape(key))

	var resp transitlandResponse
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, u, &resp); err != nil {
		return nil, err
	}

	points := make(map[time.Time]float64)
	for _, stop := range resp.Stops {
		for _, dep := range stop.Departures {
			d, err := time.Parse(datatypes.DateLayout, dep.ServiceDate)
			if err != nil {
				continue
			}
			points[datatypes.Day(d)]++
		}
	}
	return dailyFromPoints(FeatureTransitActivity, req.WindowDays, points), nil
}
