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
	"math"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

const (
	weatherArchiveURL = "https://archive-api.open-meteo.com/v1/archive?latitude=%.2f&longitude=%.2f&start_date=%s&end_date=%s&daily=temperature_2m_max,apparent_temperature_max,temperature_2m_min&timezone=UTC"

	// FeatureWeatherDiscomfort is degrees of apparent-temperature
	// deviation from a comfortable 18°C.
	FeatureWeatherDiscomfort = "weather_discomfort"

	// FeatureHeatwaveStress is the raw daily maximum temperature in °C.
	FeatureHeatwaveStress = "heatwave_stress"

	comfortTempC = 18.0
)

type openMeteoDaily struct {
	Daily struct {
		Time                   []string  `json:"time"`
		TemperatureMax         []float64 `json:"temperature_2m_max"`
		ApparentTemperatureMax []float64 `json:"apparent_temperature_max"`
		TemperatureMin         []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// WeatherConnector reads daily temperatures from the Open-Meteo archive.
//
// REGIONAL: lat/lon enter both the query and the fingerprint, so two
// distant regions always resolve to distinct cache entries and (weather
// being weather) distinct series.
type WeatherConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewWeatherConnector wires the weather source.
func NewWeatherConnector(deps Deps) *WeatherConnector {
	return &WeatherConnector{
		def: SourceDefinition{
			ID:               "weather",
			Name:             "Weather Discomfort",
			Category:         "environmental",
			Classification:   ClassRegional,
			RequiresKey:      false,
			CanRunWithoutKey: true,
			GeoInputsUsed:    []string{"lat", "lon"},
			CacheKeyFields:   []string{"lat", "lon"},
			Features:         []string{FeatureWeatherDiscomfort, FeatureHeatwaveStress},
			ExpectedVariance: "high",
			TTL:              30 * time.Minute,
			Description:      "Apparent-temperature discomfort and heat stress from the Open-Meteo archive.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *WeatherConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *WeatherConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req)
	return finish(fetch, series, err)
}

func (c *WeatherConnector) load(ctx context.Context, req FetchRequest) (*datatypes.DailySeries, error) {
	end := datatypes.Day(time.Now().UTC())
	start := windowStart(req.WindowDays)
	url := fmt.Sprintf(weatherArchiveURL,
		round2(req.Region.Lat), round2(req.Region.Lon),
		start.Format(datatypes.DateLayout), end.Format(datatypes.DateLayout))

	var resp openMeteoDaily
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, url, &resp); err != nil {
		return nil, err
	}
	if len(resp.Daily.Time) == 0 {
		return nil, nil
	}

	discomfort := make(map[time.Time]float64, len(resp.Daily.Time))
	heat := make(map[time.Time]float64, len(resp.Daily.Time))
	for i, ds := range resp.Daily.Time {
		d, err := time.Parse(datatypes.DateLayout, ds)
		if err != nil {
			continue
		}
		if i < len(resp.Daily.ApparentTemperatureMax) {
			discomfort[d] = math.Abs(resp.Daily.ApparentTemperatureMax[i] - comfortTempC)
		}
		if i < len(resp.Daily.TemperatureMax) {
			heat[d] = resp.Daily.TemperatureMax[i]
		}
	}
	return mergeColumns(req.WindowDays,
		dailyFromPoints(FeatureWeatherDiscomfort, req.WindowDays, discomfort),
		dailyFromPoints(FeatureHeatwaveStress, req.WindowDays, heat),
	), nil
}
