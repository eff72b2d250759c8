// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package forecast projects the composite behavior index forward with
// a model picked by history length. All projections are deterministic:
// the same history and horizon always produce the same band.
package forecast

import (
	"math"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

// Model names, reported verbatim in responses and journal records.
const (
	ModelSeasonal = "exp_smoothing_seasonal"
	ModelTrend    = "exp_smoothing_trend"
	ModelNaive    = "naive_last"
)

const (
	// seasonPeriod is the weekly cycle length in days.
	seasonPeriod = 7

	// minSeasonalDays and minTrendDays are the model-selection cutoffs.
	minSeasonalDays = 30
	minTrendDays    = 10

	// sigmaFloor keeps intervals from collapsing on flat histories.
	sigmaFloor = 0.02

	// z95 is the two-sided 95% normal quantile.
	z95 = 1.959964
)

// Smoothing constants. Fixed rather than fitted: the index is a bounded
// slow-moving composite and stable bands matter more than in-sample fit.
const (
	alphaLevel  = 0.4
	betaTrend   = 0.1
	gammaSeason = 0.3
)

// Projection is a completed forecast.
type Projection struct {
	Points      []datatypes.ForecastPoint
	ModelName   string
	ModelParams map[string]float64
}

// Project forecasts the named feature of a daily series horizon days
// past its end. Model selection by history length:
//
//	>= 30 days  seasonal exponential smoothing, weekly period
//	10-29 days  trend-only exponential smoothing
//	 < 10 days  naive last-value carry with a rolling-std band
//
// All outputs are clipped to [0,1] with lower <= point <= upper.
func Project(series *datatypes.DailySeries, feature string, horizon int) *Projection {
	hist := observedValues(series, feature)
	n := len(hist)

	var (
		points []float64
		sigma  float64
		proj   *Projection
	)
	switch {
	case n >= minSeasonalDays:
		points, sigma = holtWintersAdditive(hist, horizon)
		proj = &Projection{
			ModelName: ModelSeasonal,
			ModelParams: map[string]float64{
				"alpha": alphaLevel, "beta": betaTrend, "gamma": gammaSeason,
				"period": seasonPeriod,
			},
		}
	case n >= minTrendDays:
		points, sigma = holtLinear(hist, horizon)
		proj = &Projection{
			ModelName:   ModelTrend,
			ModelParams: map[string]float64{"alpha": alphaLevel, "beta": betaTrend},
		}
	default:
		points, sigma = naiveLast(hist, horizon)
		proj = &Projection{
			ModelName:   ModelNaive,
			ModelParams: map[string]float64{"window": float64(n)},
		}
	}

	proj.ModelParams["sigma"] = sigma
	proj.Points = band(series, points, sigma)
	return proj
}

// observedValues extracts the non-missing values of one column.
func observedValues(s *datatypes.DailySeries, feature string) []float64 {
	if s == nil {
		return nil
	}
	col, ok := s.Columns[feature]
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if !datatypes.IsMissing(v) {
			out = append(out, v)
		}
	}
	return out
}

// holtWintersAdditive runs additive level/trend/seasonal smoothing with
// a weekly period and returns the projected points plus the one-step
// residual std.
func holtWintersAdditive(hist []float64, horizon int) ([]float64, float64) {
	n := len(hist)
	season := initialSeason(hist)

	level := mean(hist[:seasonPeriod])
	trend := initialTrend(hist)

	var residuals []float64
	for i := 0; i < n; i++ {
		si := i % seasonPeriod
		pred := level + trend + season[si]
		residuals = append(residuals, hist[i]-pred)

		prevLevel := level
		level = alphaLevel*(hist[i]-season[si]) + (1-alphaLevel)*(level+trend)
		trend = betaTrend*(level-prevLevel) + (1-betaTrend)*trend
		season[si] = gammaSeason*(hist[i]-level) + (1-gammaSeason)*season[si]
	}

	out := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		si := (n + h - 1) % seasonPeriod
		out[h-1] = level + float64(h)*trend + season[si]
	}
	return out, stddev(residuals)
}

// holtLinear is trend-only exponential smoothing for mid-length history.
func holtLinear(hist []float64, horizon int) ([]float64, float64) {
	level := hist[0]
	trend := 0.0
	if len(hist) > 1 {
		trend = hist[1] - hist[0]
	}

	var residuals []float64
	for i := 1; i < len(hist); i++ {
		pred := level + trend
		residuals = append(residuals, hist[i]-pred)

		prevLevel := level
		level = alphaLevel*hist[i] + (1-alphaLevel)*(level+trend)
		trend = betaTrend*(level-prevLevel) + (1-betaTrend)*trend
	}

	out := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		out[h-1] = level + float64(h)*trend
	}
	return out, stddev(residuals)
}

// naiveLast carries the final observation forward. The band comes from
// the rolling std of the short history rather than residuals, since
// there is no model to produce residuals.
func naiveLast(hist []float64, horizon int) ([]float64, float64) {
	last := 0.5
	if len(hist) > 0 {
		last = hist[len(hist)-1]
	}
	out := make([]float64, horizon)
	for i := range out {
		out[i] = last
	}
	return out, stddev(hist)
}

// band assembles the dated forecast points with widening 95% intervals,
// clipped to [0,1].
func band(series *datatypes.DailySeries, points []float64, sigma float64) []datatypes.ForecastPoint {
	if sigma < sigmaFloor {
		sigma = sigmaFloor
	}
	// A series with no rows has no last observation to continue from;
	// anchor the projection at the request day instead.
	start := datatypes.Day(time.Now().UTC())
	if series.Len() > 0 {
		start = series.End().AddDate(0, 0, 1)
	}
	out := make([]datatypes.ForecastPoint, len(points))
	for i, p := range points {
		half := z95 * sigma * math.Sqrt(float64(i+1))
		point := clamp01(p)
		out[i] = datatypes.ForecastPoint{
			Date:  start.AddDate(0, 0, i).Format(datatypes.DateLayout),
			Point: point,
			Lower: clamp01(math.Min(point, p-half)),
			Upper: clamp01(math.Max(point, p+half)),
		}
	}
	return out
}

// initialSeason averages each weekday's offset from its week mean over
// the full weeks of history.
func initialSeason(hist []float64) []float64 {
	weeks := len(hist) / seasonPeriod
	season := make([]float64, seasonPeriod)
	counts := make([]int, seasonPeriod)
	for w := 0; w < weeks; w++ {
		week := hist[w*seasonPeriod : (w+1)*seasonPeriod]
		m := mean(week)
		for i, v := range week {
			season[i] += v - m
			counts[i]++
		}
	}
	for i := range season {
		if counts[i] > 0 {
			season[i] /= float64(counts[i])
		}
	}
	return season
}

// initialTrend is the average week-over-week daily change of the first
// two weeks.
func initialTrend(hist []float64) float64 {
	if len(hist) < 2*seasonPeriod {
		return 0
	}
	var sum float64
	for i := 0; i < seasonPeriod; i++ {
		sum += (hist[i+seasonPeriod] - hist[i]) / seasonPeriod
	}
	return sum / seasonPeriod
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
