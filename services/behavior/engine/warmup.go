// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"time"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
)

// StartWarmup runs a background loop that forecasts every catalog
// region on a fixed interval, keeping the fetch cache and the metric
// family warm so the first dashboard scrape after startup is not empty.
//
// Warm-up requests share the normal request slots, so a busy server
// simply skips a cycle instead of piling on. Returns immediately; the
// loop stops when ctx is canceled.
func (e *Engine) StartWarmup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		e.warmCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.warmCycle(ctx)
			}
		}
	}()
}

func (e *Engine) warmCycle(ctx context.Context) {
	for _, region := range e.regions.All() {
		if ctx.Err() != nil {
			return
		}
		req := datatypes.ForecastRequest{
			RegionID:  region.ID,
			Latitude:  region.Lat,
			Longitude: region.Lon,
		}
		if _, err := e.Forecast(ctx, req); err != nil {
			if err.Kind == datatypes.ErrKindConcurrencySaturated {
				e.log.Debug("warmup skipped, server busy", "region", region.ID)
				return
			}
			e.log.Warn("warmup forecast failed", "region", region.ID, "kind", err.Kind)
		}
	}
}
