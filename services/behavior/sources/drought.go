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
	droughtArchiveURL = "https://archive-api.open-meteo.com/v1/archive?latitude=%.2f&longitude=%.2f&start_date=%s&end_date=%s&daily=precipitation_sum,et0_fao_evapotranspiration&timezone=UTC"

	// FeatureDroughtStress is a rolling water-balance deficit in mm:
	// 30-day evapotranspiration minus 30-day precipitation, floored at 0.
	FeatureDroughtStress = "drought_stress"

	droughtBalanceDays = 30
)

type openMeteoWaterBalance struct {
	Daily struct {
		Time             []string  `json:"time"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
		ET0              []float64 `json:"et0_fao_evapotranspiration"`
	} `json:"daily"`
}

// DroughtConnector derives a drought stress signal from the Open-Meteo
// archive's precipitation and reference evapotranspiration. REGIONAL.
type DroughtConnector struct {
	def  SourceDefinition
	deps Deps
}

// NewDroughtConnector wires the drought source.
func NewDroughtConnector(deps Deps) *DroughtConnector {
	return &DroughtConnector{
		def: SourceDefinition{
			ID:               "drought",
			Name:             "Drought Stress",
			Category:         "environmental",
			Classification:   ClassRegional,
			RequiresKey:      false,
			CanRunWithoutKey: true,
			GeoInputsUsed:    []string{"lat", "lon"},
			CacheKeyFields:   []string{"lat", "lon"},
			Features:         []string{FeatureDroughtStress},
			ExpectedVariance: "low",
			TTL:              24 * time.Hour,
			Description:      "30-day water-balance deficit from precipitation and ET0.",
		},
		deps: deps,
	}
}

// Definition returns the registry entry.
func (c *DroughtConnector) Definition() SourceDefinition { return c.def }

// Fetch implements the Connector contract.
func (c *DroughtConnector) Fetch(ctx context.Context, req FetchRequest) *datatypes.SourceFetch {
	fetch, done := start(c.def, c.deps, req)
	if done {
		return fetch
	}
	series, err := c.load(ctx, req)
	return finish(fetch, series, err)
}

func (c *DroughtConnector) load(ctx context.Context, req FetchRequest) (*datatypes.DailySeries, error) {
	end := datatypes.Day(time.Now().UTC())
	// Reach back an extra balance window so day 0 has full context.
	start := windowStart(req.WindowDays).AddDate(0, 0, -droughtBalanceDays)
	url := fmt.Sprintf(droughtArchiveURL,
		round2(req.Region.Lat), round2(req.Region.Lon),
		start.Format(datatypes.DateLayout), end.Format(datatypes.DateLayout))

	var resp openMeteoWaterBalance
	if err := c.deps.Client.GetJSON(ctx, c.def.ID, url, &resp); err != nil {
		return nil, err
	}
	n := len(resp.Daily.Time)
	if n == 0 {
		return nil, nil
	}

	// Rolling 30-day deficit over the raw archive rows.
	points := make(map[time.Time]float64, n)
	for i := 0; i < n; i++ {
		lo := i - droughtBalanceDays + 1
		if lo < 0 {
			lo = 0
		}
		var deficit float64
		for j := lo; j <= i; j++ {
			if j < len(resp.Daily.ET0) {
				deficit += resp.Daily.ET0[j]
			}
			if j < len(resp.Daily.PrecipitationSum) {
				deficit -= resp.Daily.PrecipitationSum[j]
			}
		}
		if deficit < 0 {
			deficit = 0
		}
		d, err := time.Parse(datatypes.DateLayout, resp.Daily.Time[i])
		if err != nil {
			continue
		}
		points[d] = deficit
	}
	return dailyFromPoints(FeatureDroughtStress, req.WindowDays, points), nil
}
