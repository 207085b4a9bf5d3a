// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the DriftMUSH CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driftmush",
		Short: "DriftMUSH - a plugin-driven MUSH server core",
		Long: `DriftMUSH runs the server core: it discovers plugin artifacts,
constructs them in dependency order, and dispatches connection and
domain events to every plugin capability.`,
	}

	cmd.AddCommand(NewCoreCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
