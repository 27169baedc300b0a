// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package expense

import "context"

// Repository persists expenses with version-conditional updates.
type Repository interface {
	// Insert persists a draft (status=DRAFT, version=0) and assigns its id.
	Insert(ctx context.Context, e *Expense) error

	// FindByID returns the full current state, including version.
	// Returns ErrNotFound (wrapped) when no row exists.
	FindByID(ctx context.Context, id int64) (*Expense, error)

	// Search returns one page of expenses matching the criteria. The sort
	// has already been validated against the closed field set.
	Search(ctx context.Context, criteria SearchCriteria, sort Sort, limit, offset int) ([]*Expense, error)

	// Count returns the total number of expenses matching the criteria.
	Count(ctx context.Context, criteria SearchCriteria) (int64, error)

	// UpdateVersioned applies the post-image only if the row's current
	// version equals expectedVersion; post.Version must be
	// expectedVersion+1. Returns ErrVersionMismatch (wrapped) when the
	// predicate matched no row.
	UpdateVersioned(ctx context.Context, post *Expense, expectedVersion int) error
}

// AuditLog is the append-only transition log.
type AuditLog interface {
	// Append inserts one immutable row. It must run inside the same
	// transaction as the corresponding expense mutation.
	Append(ctx context.Context, entry *AuditEntry) error

	// FindByExpense returns all rows for an expense ordered by
	// (created_at ASC, id ASC).
	FindByExpense(ctx context.Context, expenseID int64) ([]*AuditEntry, error)
}

// Transactor runs fn inside a database transaction. Repository methods
// called with the ctx passed to fn participate in that transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Directory resolves contact addresses for notification delivery. Staleness
// from caching only affects delivery timeliness, never correctness.
type Directory interface {
	// EmailOfUser returns the address of the given user.
	EmailOfUser(ctx context.Context, userID int64) (string, error)

	// AnyApproverEmail returns the address of some approver.
	AnyApproverEmail(ctx context.Context) (string, error)
}

// Publisher accepts committed domain events for asynchronous dispatch.
type Publisher interface {
	Publish(event Event)
}

// AccessPolicy is the pure authorization policy consulted by the lifecycle
// service. Identity and role predicates live here; state preconditions are
// enforced by the aggregate's transition methods.
type AccessPolicy interface {
	// CanCreate reports whether the actor may create expenses.
	CanCreate(actor Actor) bool

	// IsOwner reports whether the actor is the expense's applicant.
	IsOwner(actor Actor, e *Expense) bool

	// CanReview reports whether the actor may approve or reject.
	CanReview(actor Actor) bool

	// CanView reports whether the actor may read the expense and its audit log.
	CanView(actor Actor, e *Expense) bool

	// Restrict folds the actor's visibility into the criteria: actors
	// without the approver or admin role are pinned to their own expenses.
	Restrict(actor Actor, criteria *SearchCriteria)
}
