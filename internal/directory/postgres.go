// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// querier abstracts query execution for *pgxpool.Pool and the pgxmock pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements user lookups against PostgreSQL.
type Store struct {
	db querier
}

// NewStore creates a new PostgreSQL directory store.
func NewStore(db querier) *Store {
	return &Store{db: db}
}

// FindByEmail returns the user record with roles, for boundary
// authentication.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("email", email).Wrap(err)
	}

	rows, err := s.db.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, u.ID)
	if err != nil {
		return nil, oops.Code("USER_ROLES_FAILED").With("user_id", u.ID).Wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, oops.Code("USER_ROLES_SCAN_FAILED").Wrap(err)
		}
		u.Roles = append(u.Roles, expense.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_ROLES_ITERATE_FAILED").Wrap(err)
	}
	return &u, nil
}

// EmailOfUser returns the address of the given user.
func (s *Store) EmailOfUser(ctx context.Context, userID int64) (string, error) {
	var email string
	err := s.db.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("USER_NOT_FOUND").With("user_id", userID).Wrap(ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("USER_EMAIL_FAILED").With("user_id", userID).Wrap(err)
	}
	return email, nil
}

// AnyApproverEmail returns the address of some user bearing ROLE_APPROVER.
func (s *Store) AnyApproverEmail(ctx context.Context) (string, error) {
	var email string
	err := s.db.QueryRow(ctx, `
		SELECT u.email
		FROM users u
		JOIN user_roles r ON r.user_id = u.id
		WHERE r.role = $1
		ORDER BY u.id
		LIMIT 1
	`, string(expense.RoleApprover)).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("APPROVER_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("APPROVER_EMAIL_FAILED").Wrap(err)
	}
	return email, nil
}

// Create inserts a user with the given roles. Used by the seed command.
func (s *Store) Create(ctx context.Context, email, passwordHash string, roles []expense.Role) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, created_at)
		VALUES ($1, $2, now())
		RETURNING id
	`, email, passwordHash).Scan(&id)
	if err != nil {
		return 0, oops.Code("USER_CREATE_FAILED").With("email", email).Wrap(err)
	}
	for _, role := range roles {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		`, id, string(role)); err != nil {
			return 0, oops.Code("USER_ROLE_CREATE_FAILED").With("email", email).With("role", role).Wrap(err)
		}
	}
	return id, nil
}

// Compile-time interface check.
var _ expense.Directory = (*Store)(nil)
