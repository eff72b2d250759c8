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
	// ohsome aggregates OSM edit activity inside a bbox over time.
	mobilityActivityURL = "https://api.ohsome.org/v1/users/count?bboxes=%.2f,%.2f,%.2f,%.2f&time=%s/%s/P1D&format=json"

	// FeatureOSMActivity is raw daily contributor counts near the
	// region centroid. High activity reads as normal life; the index
	// computer inverts it into a disruption contribution.
	FeatureOSMActivity = "osm_activity"

	mobilityBBoxDeg = 0.5
)

type ohsomeUsersResponse struct {
	Result []struct {
		FromTimestamp string  `json:"fromTimestamp"`
		Value         float64 `json:"value"`
	} `json:"result"`
}

// MobilityConnector proxies regional activity through OSM contributor
// counts around the region centroid (ohsome API). REGIONAL, keyless,
// and an activity-style signal: InvertForIndex is set.
type MobilityConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewMobilityConnector wires the OSM activity source.
func NewMobilityConnector(deps Deps) *MobilityConnector {
	return &MobilityConnector{
		def: SourceDefinition{
			ID:               "mobility",
			Name:             "OSM Activity",
			Category:         "mobility",
			Classification:   ClassRegional,
			RequiresKey:      false,
			CanRunWithoutKey: true,
			GeoInputsUsed:    []string{"lat", "lon"},
			CacheKeyFields:   []string{"lat", "lon"},
			Features:         []string{FeatureOSMActivity},
			InvertForIndex:   true,
			ExpectedVariance: "moderate",
			TTL:              12 * time.Hour,
			Description:      "Daily OSM contributor counts near the region centroid.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *MobilityConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *MobilityConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req)
	return finish(fetch, series, err)
}

func (c *MobilityConnector) load(ctx context.Context, req FetchRequest) (*datatypes.DailySeries, error) {
	end := datatypes.Day(time.Now().UTC())
	start := windowStart(req.WindowDays)
	lat, lon := round2(req.Region.Lat), round2(req.Region.Lon)
	url := fmt.Sprintf(mobilityActivityURL,
		lon-mobilityBBoxDeg, lat-mobilityBBoxDeg, lon+mobilityBBoxDeg, lat+mobilityBBoxDeg,
		start.Format(datatypes.DateLayout), end.Format(datatypes.DateLayout))

	var resp ohsomeUsersResponse
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, url, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	points := make(map[time.Time]float64, len(resp.Result))
	for _, row := range resp.Result {
		d, err := time.Parse(time.RFC3339, row.FromTimestamp)
		if err != nil {
			continue
		}
		points[datatypes.Day(d)] = row.Value
	}
	return dailyFromPoints(FeatureOSMActivity, req.WindowDays, points), nil
}
