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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codethor0/human-behaviour-convergence-sub001/pkg/logging"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/config"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/datatypes"
	"github.com/codethor0/human-behaviour-convergence-sub001/services/behavior/sources"
)

var (
	probeRegionA string
	probeRegionB string
	probeWindow  int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Verify source classifications against two distant regions",
	Long: "Fetches every registered source for two geographically distant regions " +
		"and checks that REGIONAL sources vary by geography while GLOBAL and " +
		"NATIONAL sources do not. Exits non-zero on contract violations.",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runProbe())
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeRegionA, "region-a", "us_il", "first probe region id")
	probeCmd.Flags().StringVar(&probeRegionB, "region-b", "us_az", "second probe region id")
	probeCmd.Flags().IntVar(&probeWindow, "window-days", 30, "fetch window in days")
}

func runProbe() int {
	// Text logs on stderr; stdout carries only the JSON report.
	logger := logging.New(logging.Config{Service: "probe"})

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitBadConfig
	}

	regions := datatypes.DefaultRegions()
	if cfg.RegionsConfig != "" {
		regions, err = datatypes.LoadRegionSet(cfg.RegionsConfig)
		if err != nil {
			logger.Error("invalid region catalog", "error", err)
			return exitBadConfig
		}
	}
	regionA, okA := regions.Get(probeRegionA)
	regionB, okB := regions.Get(probeRegionB)
	if !okA || !okB {
		fmt.Fprintf(os.Stderr, "unknown probe region: %s / %s\n", probeRegionA, probeRegionB)
		return exitUsage
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

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ForecastDeadline)
	defer cancel()
	results := sources.VarianceProbe(ctx, registry, regionA, regionB, probeWindow)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)

	violations, skipped := 0, 0
	for _, r := range results {
		if r.Violated() {
			violations++
		}
		if r.Skipped {
			skipped++
		}
	}
	logger.Info("probe complete",
		"sources", len(results),
		"violations", violations,
		"skipped", skipped)

	if ctx.Err() == context.DeadlineExceeded {
		return exitDeadline
	}
	if violations > 0 {
		return exitUnavailable
	}
	if skipped == len(results) && !cfg.Offline {
		// Nothing could fetch at all: treat as upstream unavailability.
		return exitUnavailable
	}
	return exitOK
}
