// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// AuditLogRepository implements expense.AuditLog using PostgreSQL. Rows are
// append-only; there is no update or delete path.
type AuditLogRepository struct {
	db DB
}

// NewAuditLogRepository creates a new PostgreSQL audit log repository.
func NewAuditLogRepository(db DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append inserts one immutable row and assigns its id. Callers run it inside
// the same transaction as the expense mutation it records.
func (r *AuditLogRepository) Append(ctx context.Context, entry *expense.AuditEntry) error {
	q := querierFrom(ctx, r.db)
	err := q.QueryRow(ctx, `
		INSERT INTO expense_audit_logs
			(expense_id, actor_id, action, before_status, after_status, note, trace_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, entry.ExpenseID, entry.ActorID, string(entry.Action),
		statusPtr(entry.BeforeStatus), string(entry.AfterStatus),
		entry.Note, entry.TraceID, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return oops.Code("AUDIT_APPEND_FAILED").With("expense_id", entry.ExpenseID).Wrap(storageError(err))
	}
	return nil
}

// FindByExpense returns all rows for an expense in transition order.
func (r *AuditLogRepository) FindByExpense(ctx context.Context, expenseID int64) ([]*expense.AuditEntry, error) {
	q := querierFrom(ctx, r.db)
	rows, err := q.Query(ctx, `
		SELECT id, expense_id, actor_id, action, before_status, after_status,
		       note, trace_id, created_at
		FROM expense_audit_logs
		WHERE expense_id = $1
		ORDER BY created_at ASC, id ASC
	`, expenseID)
	if err != nil {
		return nil, oops.Code("AUDIT_QUERY_FAILED").With("expense_id", expenseID).Wrap(storageError(err))
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

// statusPtr converts a nullable status to a nullable SQL parameter.
func statusPtr(s *expense.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func scanAuditEntries(rows pgx.Rows) ([]*expense.AuditEntry, error) {
	entries := make([]*expense.AuditEntry, 0)
	for rows.Next() {
		var entry expense.AuditEntry
		var action string
		var before *string
		var after string
		if err := rows.Scan(
			&entry.ID, &entry.ExpenseID, &entry.ActorID, &action, &before,
			&after, &entry.Note, &entry.TraceID, &entry.CreatedAt,
		); err != nil {
			return nil, oops.Code("AUDIT_SCAN_FAILED").Wrap(storageError(err))
		}
		entry.Action = expense.Action(action)
		if before != nil {
			s := expense.Status(*before)
			entry.BeforeStatus = &s
		}
		entry.AfterStatus = expense.Status(after)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_ITERATE_FAILED").Wrap(storageError(err))
	}
	return entries, nil
}

// Compile-time interface check.
var _ expense.AuditLog = (*AuditLogRepository)(nil)
