// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package auth

import (
	"context"
	"net/http"

	"github.com/tsugiyama-dev/EXPENSES/internal/directory"
	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// UserStore looks up a user record for authentication.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*directory.User, error)
}

// BasicResolver resolves the actor from HTTP basic credentials. It exists so
// the service runs end to end without a session layer; swapping in a session
// or token resolver does not touch the core.
type BasicResolver struct {
	users  UserStore
	hasher *Hasher
}

// NewBasicResolver creates a resolver over the given user store.
func NewBasicResolver(users UserStore, hasher *Hasher) *BasicResolver {
	return &BasicResolver{users: users, hasher: hasher}
}

// Resolve returns the authenticated actor, or expense.ErrUnauthenticated.
func (r *BasicResolver) Resolve(req *http.Request) (expense.Actor, error) {
	email, password, ok := req.BasicAuth()
	if !ok {
		return expense.Actor{}, expense.ErrUnauthenticated
	}
	user, err := r.users.FindByEmail(req.Context(), email)
	if err != nil {
		return expense.Actor{}, expense.ErrUnauthenticated
	}
	if err := r.hasher.Verify(user.PasswordHash, password); err != nil {
		return expense.Actor{}, expense.ErrUnauthenticated
	}
	return expense.Actor{ID: user.ID, Roles: user.Roles}, nil
}
