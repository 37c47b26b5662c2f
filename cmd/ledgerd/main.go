// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ledgerd starts the ledger insight API server.
//
// The server answers natural-language questions about a financial
// ledger. Each question runs through entity extraction, context
// ranking, a token-budgeted context window, reference resolution,
// LLM query generation, a four-stage security validator, and bounded
// read-only execution.
//
// Usage:
//
//	ledgerd serve
//	ledgerd serve --config /etc/ledgerd/ledgerd.yaml
//
// The model API key is read from OPENAI_API_KEY or the container
// secret, never from the config file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "ledgerd",
		Short: "Financial ledger insight API server",
		Long: "ledgerd serves the context-aware natural-language query pipeline " +
			"for the financial ledger.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default ~/.ledgerd/ledgerd.yaml)")

	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
