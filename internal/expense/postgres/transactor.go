// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"
)

// Transactor implements expense.Transactor. It stores the active pgx.Tx in
// context so that repository methods called inside fn share one transaction:
// either the conditional update and its audit row are both durable, or
// neither is.
type Transactor struct {
	db DB
}

// NewTransactor creates a Transactor backed by the given connection pool.
func NewTransactor(db DB) *Transactor {
	return &Transactor{db: db}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise it is rolled
// back and fn's error is returned unchanged so callers can classify it.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(storageError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(storageError(err))
	}
	return nil
}
