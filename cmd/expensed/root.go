// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the expensed CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expensed",
		Short: "Expenses - an expense approval service",
		Long: `Expensed runs the expense approval service: a DRAFT -> SUBMITTED ->
APPROVED/REJECTED workflow with optimistic concurrency, an append-only
audit log, and asynchronous notifications.`,
		Version: Version,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}
