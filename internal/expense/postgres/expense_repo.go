// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

const expenseColumns = `id, applicant_id, title, amount, currency, status,
		 submitted_at, created_at, updated_at, version`

// ExpenseRepository implements expense.Repository using PostgreSQL with
// optimistic locking on the version column.
type ExpenseRepository struct {
	db DB
}

// NewExpenseRepository creates a new PostgreSQL expense repository.
func NewExpenseRepository(db DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// Insert persists a draft and assigns its id from the sequence.
func (r *ExpenseRepository) Insert(ctx context.Context, e *expense.Expense) error {
	q := querierFrom(ctx, r.db)
	err := q.QueryRow(ctx, `
		INSERT INTO expenses (applicant_id, title, amount, currency, status,
		                      submitted_at, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, e.ApplicantID, e.Title, e.Amount, e.Currency, string(e.Status),
		e.SubmittedAt, e.CreatedAt, e.UpdatedAt, e.Version).Scan(&e.ID)
	if err != nil {
		return oops.Code("EXPENSE_INSERT_FAILED").With("applicant_id", e.ApplicantID).Wrap(storageError(err))
	}
	return nil
}

// FindByID retrieves an expense by id, including its version.
func (r *ExpenseRepository) FindByID(ctx context.Context, id int64) (*expense.Expense, error) {
	q := querierFrom(ctx, r.db)
	row := q.QueryRow(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses WHERE id = $1
	`, id)
	e, err := scanExpenseRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("EXPENSE_NOT_FOUND").With("id", id).Wrap(expense.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("EXPENSE_GET_FAILED").With("id", id).Wrap(storageError(err))
	}
	return e, nil
}

// UpdateVersioned applies the complete post-image only when the persisted
// version still equals expectedVersion. The new version is written as a
// value, never as a SQL-side increment, so it cannot double-count.
func (r *ExpenseRepository) UpdateVersioned(ctx context.Context, post *expense.Expense, expectedVersion int) error {
	q := querierFrom(ctx, r.db)
	tag, err := q.Exec(ctx, `
		UPDATE expenses
		SET status = $1, submitted_at = $2, updated_at = $3, version = $4
		WHERE id = $5 AND version = $6
	`, string(post.Status), post.SubmittedAt, post.UpdatedAt, post.Version,
		post.ID, expectedVersion)
	if err != nil {
		return oops.Code("EXPENSE_UPDATE_FAILED").With("id", post.ID).Wrap(storageError(err))
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("EXPENSE_VERSION_MISMATCH").
			With("id", post.ID).With("expected_version", expectedVersion).
			Wrap(expense.ErrVersionMismatch)
	}
	return nil
}

// Search returns one page of matching expenses. The sort pair is mapped to
// literal column names through a closed switch; raw input never reaches the
// ORDER BY position.
func (r *ExpenseRepository) Search(ctx context.Context, criteria expense.SearchCriteria, sort expense.Sort, limit, offset int) ([]*expense.Expense, error) {
	where, args := searchPredicates(criteria)
	args = append(args, limit, offset)
	sql := fmt.Sprintf(`
		SELECT %s
		FROM expenses%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, expenseColumns, where, orderColumn(sort.Field), direction(sort.Desc), len(args)-1, len(args))

	q := querierFrom(ctx, r.db)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, oops.Code("EXPENSE_SEARCH_FAILED").Wrap(storageError(err))
	}
	defer rows.Close()

	return scanExpenses(rows)
}

// Count returns the total number of expenses matching the criteria.
func (r *ExpenseRepository) Count(ctx context.Context, criteria expense.SearchCriteria) (int64, error) {
	where, args := searchPredicates(criteria)
	q := querierFrom(ctx, r.db)
	var total int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM expenses`+where, args...).Scan(&total)
	if err != nil {
		return 0, oops.Code("EXPENSE_COUNT_FAILED").Wrap(storageError(err))
	}
	return total, nil
}

// searchPredicates builds the WHERE clause with numbered placeholders.
// Absent criteria fields are unrestricted.
func searchPredicates(c expense.SearchCriteria) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if c.ApplicantID != nil {
		add("applicant_id = $%d", *c.ApplicantID)
	}
	if c.Status != nil {
		add("status = $%d", string(*c.Status))
	}
	if c.Title != "" {
		add("title ILIKE '%%' || $%d || '%%'", c.Title)
	}
	if c.AmountMin != nil {
		add("amount >= $%d", *c.AmountMin)
	}
	if c.AmountMax != nil {
		add("amount <= $%d", *c.AmountMax)
	}
	if c.SubmittedFrom != nil {
		add("submitted_at >= $%d", *c.SubmittedFrom)
	}
	if c.SubmittedTo != nil {
		add("submitted_at <= $%d", *c.SubmittedTo)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderColumn maps a validated sort field to a literal column name. Unknown
// values fall back to created_at rather than reaching the query.
func orderColumn(f expense.SortField) string {
	switch f {
	case expense.SortUpdatedAt:
		return "updated_at"
	case expense.SortSubmittedAt:
		return "submitted_at"
	case expense.SortAmount:
		return "amount"
	case expense.SortID:
		return "id"
	default:
		return "created_at"
	}
}

func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

// expenseScanFields holds intermediate scan values for expense parsing.
type expenseScanFields struct {
	status string
}

func scanExpenseRow(row pgx.Row) (*expense.Expense, error) {
	var e expense.Expense
	var f expenseScanFields
	err := row.Scan(
		&e.ID, &e.ApplicantID, &e.Title, &e.Amount, &e.Currency, &f.status,
		&e.SubmittedAt, &e.CreatedAt, &e.UpdatedAt, &e.Version,
	)
	if err != nil {
		return nil, err
	}
	e.Status = expense.Status(f.status)
	return &e, nil
}

func scanExpenses(rows pgx.Rows) ([]*expense.Expense, error) {
	expenses := make([]*expense.Expense, 0)
	for rows.Next() {
		var e expense.Expense
		var f expenseScanFields
		if err := rows.Scan(
			&e.ID, &e.ApplicantID, &e.Title, &e.Amount, &e.Currency, &f.status,
			&e.SubmittedAt, &e.CreatedAt, &e.UpdatedAt, &e.Version,
		); err != nil {
			return nil, oops.Code("EXPENSE_SCAN_FAILED").Wrap(storageError(err))
		}
		e.Status = expense.Status(f.status)
		expenses = append(expenses, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("EXPENSE_ITERATE_FAILED").Wrap(storageError(err))
	}
	return expenses, nil
}

// Compile-time interface check.
var _ expense.Repository = (*ExpenseRepository)(nil)
