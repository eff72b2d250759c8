// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/cache"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sink"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sources"
)

// HandleRegions serves GET /v1/regions: the immutable region catalog.
func HandleRegions(regions *datatypes.RegionSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"regions": regions.All()})
	}
}

// HandleSources serves GET /v1/sources: the registry entries in
// registration order, including classification and key requirements.
func HandleSources(registry *sources.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sources": registry.Definitions()})
	}
}

// HandleHealth serves GET /health with cache and sink status.
func HandleHealth(fetchCache *cache.FetchCache, historySink *sink.HistorySink) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := fetchCache.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"service":      "behavior-engine",
			"cache":        stats,
			"sink_healthy": historySink.Healthy(c.Request.Context()),
		})
	}
}
