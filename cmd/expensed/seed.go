// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tsugiyama-dev/EXPENSES/internal/auth"
	"github.com/tsugiyama-dev/EXPENSES/internal/config"
	"github.com/tsugiyama-dev/EXPENSES/internal/directory"
	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
	"github.com/tsugiyama-dev/EXPENSES/internal/store"
)

// seedUsers is the demo account set created by `expensed seed`.
var seedUsers = []struct {
	email    string
	password string
	roles    []expense.Role
}{
	{"alice@example.com", "alice-password", []expense.Role{expense.RoleApplicant}},
	{"bob@example.com", "bob-password", []expense.Role{expense.RoleApplicant}},
	{"carol@example.com", "carol-password", []expense.Role{expense.RoleApprover}},
	{"dave@example.com", "dave-password", []expense.Role{expense.RoleAdmin, expense.RoleApprover}},
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo user accounts",
		Long:  `Create a fixed set of demo users (applicants, an approver, an admin) for local development.`,
		RunE:  runSeed,
	}
	cmd.Flags().String("storage.dsn", "", "PostgreSQL DSN")
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Storage.DSN == "" {
		return oops.Code("CONFIG_INVALID").Errorf("storage.dsn is required")
	}

	ctx := cmd.Context()
	pool, err := store.Connect(ctx, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	hasher := auth.NewHasher(cfg.Security.PasswordHashCost)
	users := directory.NewStore(pool)

	for _, u := range seedUsers {
		hash, err := hasher.Hash(u.password)
		if err != nil {
			return err
		}
		id, err := users.Create(ctx, u.email, hash, u.roles)
		if err != nil {
			return oops.With("email", u.email).Wrap(err)
		}
		cmd.Printf("created user %d <%s>\n", id, u.email)
	}
	return nil
}
