// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// behaviord is the regional behavior forecasting daemon. `behaviord
// serve` runs the HTTP API; `behaviord probe` runs the source variance
// probe and exits.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes, sysexits-style where applicable.
const (
	exitOK          = 0
	exitBadConfig   = 2
	exitUsage       = 64
	exitUnavailable = 69
	exitDeadline    = 73
)

var rootCmd = &cobra.Command{
	Use:           "behaviord",
	Short:         "Regional behavior index and forecast engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, probeCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}
