// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command unearth is the CLI for spec extraction.
//
// It mines a source tree for features, stories, and scenarios without
// running the server:
//
//	unearth extract ./myproject              # summary to stdout
//	unearth extract ./myproject -f json      # full model as JSON
//	unearth browse ./myproject               # interactive TUI
//	unearth init                             # write a .unearth.yaml
//	unearth watch ./myproject                # re-extract on change
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "unearth",
	Short: "Extract a specification model from a source tree",
	Long: `Unearth statically analyzes a source tree and produces a specification
model: features derived from documented declarations, user stories grouped
from their methods, and scenarios mined from control flow.

Extraction is read-only and needs no running services. Per-project defaults
are read from a .unearth.yaml in the first root (see "unearth init").`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
