// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package postgres implements the expense and audit stores on PostgreSQL
// via pgx/v5. Mutating methods participate in the transaction stored in
// context by Transactor.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts query execution over *pgxpool.Pool, pgx.Tx, and the pgxmock
// pool used in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// querierFrom returns the transaction stored in ctx, if any, falling back
// to the repository's own handle.
func querierFrom(ctx context.Context, db DB) DB {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}
