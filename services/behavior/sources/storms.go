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
	"strings"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

const (
	stormsEventsURL = "https://www.ncdc.noaa.gov/cdo-web/api/v2/data?datasetid=STORM_EVENTS&startdate=%s&enddate=%s&latitude=%.2f&longitude=%.2f&limit=1000&token=%s"

	// FeatureStormSeverity counts severity-weighted storm events per day.
	FeatureStormSeverity = "storm_severity_stress"

	// FeatureFloodRisk counts flood-type events per day.
	FeatureFloodRisk = "flood_risk_stress"
)

type noaaEventsResponse struct {
	Results []struct {
		Date      string  `json:"date"`
		EventType string  `json:"datatype"`
		Value     float64 `json:"value"`
	} `json:"results"`
}

// StormsConnector reads severe-weather events from the NOAA CDO API.
// REGIONAL; requires a NOAA token.
type StormsConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewStormsConnector wires the storm events source.
func NewStormsConnector(deps Deps) *StormsConnector {
	return &StormsConnector{
		def: SourceDefinition{
			ID:               "storms",
			Name:             "Storm Events",
			Category:         "environmental",
			Classification:   ClassRegional,
			RequiresKey:      true,
			KeyEnvVar:        "NOAA_API_KEY",
			GeoInputsUsed:    []string{"lat", "lon"},
			CacheKeyFields:   []string{"lat", "lon"},
			Features:         []string{FeatureStormSeverity, FeatureFloodRisk},
			ExpectedVariance: "high",
			TTL:              6 * time.Hour,
			Description:      "Severity-weighted storm and flood events from NOAA CDO.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *StormsConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *StormsConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req)
	return finish(fetch, series, err)
}

func (c *StormsConnector) load(ctx context.Context, req FetchRequest) (*datatypes.DailySeries, error) {
	key, _ := c.deps.key(c.def)
	end := datatypes.Day(time.Now().UTC())
	start := windowStart(req.WindowDays)
	url := fmt.Sprintf(stormsEventsURL,
		start.Format(datatypes.DateLayout), end.Format(datatypes.DateLayout),
		round2(req.Region.Lat), round2(req.Region.Lon), key)

	var resp noaaEventsResponse
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, url, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		// A quiet window is a real observation: zero events every day.
		severity := datatypes.NewDailySeries(start, req.WindowDays, FeatureStormSeverity, FeatureFloodRisk)
		for i := 0; i < req.WindowDays; i++ {
			severity.Set(FeatureStormSeverity, i, 0)
			severity.Set(FeatureFloodRisk, i, 0)
		}
		return severity, nil
	}

	severity := make(map[time.Time]float64)
	flood := make(map[time.Time]float64)
	for _, ev := range resp.Results {
		// CDO timestamps look like 2024-03-01T00:00:00.
		d, err := time.Parse("2006-01-02T15:04:05", ev.Date)
		if err != nil {
			continue
		}
		day := datatypes.Day(d)
		w := eventSeverity(ev.EventType)
		severity[day] += w
		if isFloodEvent(ev.EventType) {
			flood[day]++
		}
	}
	// Days with no events scored zero, not missing.
	for i := 0; i < req.WindowDays; i++ {
		day := start.AddDate(0, 0, i)
		if _, ok := severity[day]; !ok {
			severity[day] = 0
		}
		if _, ok := flood[day]; !ok {
			flood[day] = 0
		}
	}
	return mergeColumns(req.WindowDays,
		dailyFromPoints(FeatureStormSeverity, req.WindowDays, severity),
		dailyFromPoints(FeatureFloodRisk, req.WindowDays, flood),
	), nil
}

// eventSeverity weights event types roughly by disruptive potential.
func eventSeverity(eventType string) float64 {
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "tornado"), strings.Contains(t, "hurricane"):
		return 5
	case strings.Contains(t, "flood"), strings.Contains(t, "blizzard"):
		return 3
	case strings.Contains(t, "thunderstorm"), strings.Contains(t, "hail"):
		return 2
	default:
		return 1
	}
}

func isFloodEvent(eventType string) bool {
	return strings.Contains(strings.ToLower(eventType), "flood")
}
