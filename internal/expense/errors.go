// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package expense

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an expense does not exist.
var ErrNotFound = errors.New("expense not found")

// ErrVersionMismatch is the store-level signal that a version-conditional
// update matched no row. The lifecycle service classifies it into either
// InvalidTransitionError or ConflictError by re-reading the row.
var ErrVersionMismatch = errors.New("version mismatch")

// ErrUnauthenticated is returned when no actor identity could be resolved.
var ErrUnauthenticated = errors.New("unauthenticated")

// FieldError names one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports one or more invalid input fields.
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	fields := make([]string, len(e.Details))
	for i, d := range e.Details {
		fields[i] = d.Field
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// AuthorizationError reports a denied action. It is distinct from state and
// concurrency errors: the actor simply may not perform the action.
type AuthorizationError struct {
	Action Action
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized for %s: %s", e.Action, e.Reason)
}

// InvalidTransitionError reports an action attempted against an expense in a
// state with no matching edge in the state machine.
type InvalidTransitionError struct {
	From   Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an expense in status %s", e.Action, e.From)
}

// ConflictError reports a lost optimistic-concurrency race: the expected
// version no longer matched at commit time. Safe to retry after re-reading.
type ConflictError struct {
	ExpenseID       int64
	ExpectedVersion int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("expense %d was modified concurrently (expected version %d)", e.ExpenseID, e.ExpectedVersion)
}

// StorageError wraps an I/O fault from the store. Retryable is set for
// transient faults (cancellation, connection loss, serialization failures).
type StorageError struct {
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure (retryable=%t): %v", e.Retryable, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
