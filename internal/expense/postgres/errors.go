// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// storageError wraps a driver fault as expense.StorageError, marking
// transient faults retryable.
func storageError(err error) error {
	return &expense.StorageError{Retryable: isTransient(err), Err: err}
}

// isTransient reports whether the fault is worth retrying: cancellation,
// connection trouble, resource exhaustion, serialization failures, and
// deadlocks. Constraint violations and syntax errors are permanent.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch {
	case pgerrcode.IsConnectionException(pgErr.Code):
		return true
	case pgerrcode.IsInsufficientResources(pgErr.Code):
		return true
	case pgerrcode.IsOperatorIntervention(pgErr.Code):
		return true
	case pgErr.Code == pgerrcode.SerializationFailure,
		pgErr.Code == pgerrcode.DeadlockDetected:
		return true
	}
	return false
}
