// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package directory resolves user contact addresses and credentials. The
// core reads it for notification delivery only; a short-TTL cache may serve
// stale addresses without violating any invariant.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// User is a directory record. PasswordHash is consumed by the boundary
// authenticator only.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Roles        []expense.Role
	CreatedAt    time.Time
}

// anyApproverKey is the cache key for the approver address lookup.
const anyApproverKey = int64(-1)

// Cached decorates an expense.Directory with a TTL cache on address lookups.
type Cached struct {
	inner expense.Directory
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	email   string
	expires time.Time
}

// NewCached wraps inner with a cache of the given TTL. A nil clock uses
// time.Now.
func NewCached(inner expense.Directory, ttl time.Duration, clock func() time.Time) *Cached {
	if clock == nil {
		clock = time.Now
	}
	return &Cached{
		inner:   inner,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[int64]cacheEntry),
	}
}

// EmailOfUser returns the cached address when fresh, otherwise delegates.
// Lookup failures are not cached.
func (c *Cached) EmailOfUser(ctx context.Context, userID int64) (string, error) {
	if email, ok := c.get(userID); ok {
		return email, nil
	}
	email, err := c.inner.EmailOfUser(ctx, userID)
	if err != nil {
		return "", err
	}
	c.put(userID, email)
	return email, nil
}

// AnyApproverEmail returns some approver's address, cached under a
// sentinel key.
func (c *Cached) AnyApproverEmail(ctx context.Context) (string, error) {
	if email, ok := c.get(anyApproverKey); ok {
		return email, nil
	}
	email, err := c.inner.AnyApproverEmail(ctx)
	if err != nil {
		return "", err
	}
	c.put(anyApproverKey, email)
	return email, nil
}

func (c *Cached) get(key int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.clock().After(entry.expires) {
		return "", false
	}
	return entry.email, true
}

func (c *Cached) put(key int64, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{email: email, expires: c.clock().Add(c.ttl)}
}

// Compile-time interface check.
var _ expense.Directory = (*Cached)(nil)
