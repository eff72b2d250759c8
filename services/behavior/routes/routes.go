// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/cache"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/engine"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/handlers"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sink"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sources"
)

// SetupRoutes wires the full HTTP surface onto a gin engine.
func SetupRoutes(
	router *gin.Engine,
	eng *engine.Engine,
	registry *sources.Registry,
	regions *datatypes.RegionSet,
	fetchCache *cache.FetchCache,
	historySink *sink.HistorySink,
) {
	router.GET("/health", handlers.HandleHealth(fetchCache, historySink))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	forecast := handlers.HandleForecast(eng)
	regionList := handlers.HandleRegions(regions)
	sourceList := handlers.HandleSources(registry)

	// Documented unversioned paths; /v1 aliases leave room to evolve
	// the response shape without breaking existing clients.
	router.POST("/forecast", forecast)
	router.GET("/regions", regionList)
	router.GET("/sources", sourceList)

	v1 := router.Group("/v1")
	{
		v1.POST("/forecast", forecast)
		v1.GET("/regions", regionList)
		v1.GET("/sources", sourceList)
	}
}
