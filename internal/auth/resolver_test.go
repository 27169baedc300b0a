// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package auth_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tsugiyama-dev/EXPENSES/internal/auth"
	"github.com/tsugiyama-dev/EXPENSES/internal/directory"
	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

type fakeUserStore struct {
	users map[string]*directory.User
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*directory.User, error) {
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, directory.ErrNotFound
}

func TestBasicResolver_Resolve(t *testing.T) {
	hasher := auth.NewHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("alice-password")
	require.NoError(t, err)

	store := &fakeUserStore{users: map[string]*directory.User{
		"alice@example.com": {
			ID: 7, Email: "alice@example.com", PasswordHash: hash,
			Roles: []expense.Role{expense.RoleApplicant},
		},
	}}
	resolver := auth.NewBasicResolver(store, hasher)

	t.Run("valid credentials resolve the actor", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/expenses", nil)
		req.SetBasicAuth("alice@example.com", "alice-password")

		actor, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, int64(7), actor.ID)
		assert.True(t, actor.HasRole(expense.RoleApplicant))
	})

	t.Run("missing credentials are unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/expenses", nil)
		_, err := resolver.Resolve(req)
		assert.ErrorIs(t, err, expense.ErrUnauthenticated)
	})

	t.Run("unknown user is unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/expenses", nil)
		req.SetBasicAuth("nobody@example.com", "x")
		_, err := resolver.Resolve(req)
		assert.ErrorIs(t, err, expense.ErrUnauthenticated)
	})

	t.Run("wrong password is unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/expenses", nil)
		req.SetBasicAuth("alice@example.com", "guess")
		_, err := resolver.Resolve(req)
		assert.ErrorIs(t, err, expense.ErrUnauthenticated)
	})
}
