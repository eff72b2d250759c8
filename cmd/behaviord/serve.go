// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/codethor0/human-behaviour-convergence-sub001/pkg/logging"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/cache"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/config"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/engine"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/journal"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/observability"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/routes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sink"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sources"
)

var warmupInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the forecast HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runServe())
	},
}

func init() {
	serveCmd.Flags().DurationVar(&warmupInterval, "warmup-interval", 15*time.Minute,
		"interval between background cache warm-up cycles (0 disables)")
}

func runServe() int {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("invalid configuration", "error", err)
		return exitBadConfig
	}

	log := logging.New(logging.Config{
		Service: "behaviord",
		JSON:    true,
		LogDir:  cfg.LogDir,
	})
	defer log.Close()
	logger := log.Slog()
	slog.SetDefault(logger)

	if cfg.OTLPEndpoint != "" {
		cleanup, err := initTracer(cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled, OTLP setup failed", "error", err)
		} else {
			defer cleanup(context.Background())
		}
	}

	regions := datatypes.DefaultRegions()
	if cfg.RegionsConfig != "" {
		regions, err = datatypes.LoadRegionSet(cfg.RegionsConfig)
		if err != nil {
			logger.Error("invalid region catalog", "path", cfg.RegionsConfig, "error", err)
			return exitBadConfig
		}
	}

	deps := sources.Deps{Offline: cfg.Offline, Keys: cfg.APIKeys}
	if !cfg.Offline {
		deps.Client = sources.NewClient(sources.DefaultClientConfig(), nil)
	}
	registry, err := sources.DefaultRegistry(deps)
	if err != nil {
		logger.Error("invalid source registry", "error", err)
		return exitBadConfig
	}

	fetchCache := cache.New(cache.Options{MaxEntries: cfg.CacheMaxSize})
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	jrnl, err := journal.Open(cfg.JournalPath, logger)
	if err != nil {
		logger.Error("cannot open forecast journal", "path", cfg.JournalPath, "error", err)
		return exitBadConfig
	}
	historySink := sink.New(sink.Config{
		URL:    cfg.InfluxURL,
		Token:  cfg.InfluxToken,
		Org:    cfg.InfluxOrg,
		Bucket: cfg.InfluxBucket,
	}, logger)

	eng, err := engine.New(logger, cfg, registry, fetchCache, regions, metrics, jrnl, historySink)
	if err != nil {
		logger.Error("invalid index configuration", "error", err)
		return exitBadConfig
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	eng.StartWarmup(ctx, warmupInterval)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("behavior-engine"))
	routes.SetupRoutes(router, eng, registry, regions, fetchCache, historySink)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logger.Info("behavior engine listening",
			"port", cfg.Port,
			"offline", cfg.Offline,
			"sources", registry.Len(),
			"regions", regions.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		return exitDeadline
	}
	return exitOK
}
