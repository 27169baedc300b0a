// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package expensetest provides in-memory doubles for the expense core's
// storage and messaging ports.
package expensetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// Store is an in-memory Repository, AuditLog, and Transactor. Transactions
// are emulated by snapshotting state on entry and restoring it when the
// closure fails, which preserves the atomicity the service relies on.
type Store struct {
	mu        sync.Mutex
	expenses  map[int64]expense.Expense
	audit     []expense.AuditEntry
	nextID    int64
	nextAudit int64

	InsertErr error
	UpdateErr error
	AppendErr error
	FindErr   error
	SearchErr error
	BeginErr  error
	CommitErr error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		expenses:  map[int64]expense.Expense{},
		nextID:    1,
		nextAudit: 1,
	}
}

// Seed inserts an expense as-is, keeping its id if set.
func (s *Store) Seed(e expense.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.nextID
	}
	if e.ID >= s.nextID {
		s.nextID = e.ID + 1
	}
	s.expenses[e.ID] = e
}

// Get returns a copy of the stored expense, or nil.
func (s *Store) Get(id int64) *expense.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return nil
	}
	return &e
}

// AuditEntries returns a copy of all audit rows in append order.
func (s *Store) AuditEntries() []expense.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]expense.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

func (s *Store) Insert(_ context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	e.ID = s.nextID
	s.nextID++
	s.expenses[e.ID] = *e
	return nil
}

func (s *Store) FindByID(_ context.Context, id int64) (*expense.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	e, ok := s.expenses[id]
	if !ok {
		return nil, fmt.Errorf("expense %d: %w", id, expense.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) UpdateVersioned(_ context.Context, post *expense.Expense, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	current, ok := s.expenses[post.ID]
	if !ok || current.Version != expectedVersion {
		return fmt.Errorf("expense %d at version %d: %w", post.ID, expectedVersion, expense.ErrVersionMismatch)
	}
	s.expenses[post.ID] = *post
	return nil
}

func (s *Store) Search(_ context.Context, criteria expense.SearchCriteria, srt expense.Sort, limit, offset int) ([]*expense.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	matched := s.matching(criteria)
	sortExpenses(matched, srt)
	if offset >= len(matched) {
		return []*expense.Expense{}, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	out := make([]*expense.Expense, len(matched))
	for i := range matched {
		e := matched[i]
		out[i] = &e
	}
	return out, nil
}

func (s *Store) Count(_ context.Context, criteria expense.SearchCriteria) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchErr != nil {
		return 0, s.SearchErr
	}
	return int64(len(s.matching(criteria))), nil
}

func (s *Store) matching(criteria expense.SearchCriteria) []expense.Expense {
	var out []expense.Expense
	for _, e := range s.expenses {
		if criteria.ApplicantID != nil && e.ApplicantID != *criteria.ApplicantID {
			continue
		}
		if criteria.Status != nil && e.Status != *criteria.Status {
			continue
		}
		if criteria.Title != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(criteria.Title)) {
			continue
		}
		if criteria.AmountMin != nil && e.Amount.LessThan(*criteria.AmountMin) {
			continue
		}
		if criteria.AmountMax != nil && e.Amount.GreaterThan(*criteria.AmountMax) {
			continue
		}
		if criteria.SubmittedFrom != nil && (e.SubmittedAt == nil || e.SubmittedAt.Before(*criteria.SubmittedFrom)) {
			continue
		}
		if criteria.SubmittedTo != nil && (e.SubmittedAt == nil || e.SubmittedAt.After(*criteria.SubmittedTo)) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func sortExpenses(items []expense.Expense, srt expense.Sort) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var less bool
		switch srt.Field {
		case expense.SortAmount:
			less = a.Amount.LessThan(b.Amount)
		case expense.SortUpdatedAt:
			less = a.UpdatedAt.Before(b.UpdatedAt)
		case expense.SortSubmittedAt:
			switch {
			case a.SubmittedAt == nil:
				less = b.SubmittedAt != nil
			case b.SubmittedAt == nil:
				less = false
			default:
				less = a.SubmittedAt.Before(*b.SubmittedAt)
			}
		case expense.SortID:
			less = a.ID < b.ID
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if srt.Desc {
			return !less && !equalOn(a, b, srt.Field)
		}
		return less
	})
}

func equalOn(a, b expense.Expense, field expense.SortField) bool {
	switch field {
	case expense.SortAmount:
		return a.Amount.Equal(b.Amount)
	case expense.SortUpdatedAt:
		return a.UpdatedAt.Equal(b.UpdatedAt)
	case expense.SortSubmittedAt:
		if a.SubmittedAt == nil || b.SubmittedAt == nil {
			return a.SubmittedAt == b.SubmittedAt
		}
		return a.SubmittedAt.Equal(*b.SubmittedAt)
	case expense.SortID:
		return a.ID == b.ID
	default:
		return a.CreatedAt.Equal(b.CreatedAt)
	}
}

func (s *Store) Append(_ context.Context, entry *expense.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	entry.ID = s.nextAudit
	s.nextAudit++
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *Store) FindByExpense(_ context.Context, expenseID int64) ([]*expense.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*expense.AuditEntry
	for i := range s.audit {
		if s.audit[i].ExpenseID == expenseID {
			entry := s.audit[i]
			out = append(out, &entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// InTransaction snapshots state, runs fn, and rolls the snapshot back when fn
// fails, so partial writes never survive.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.BeginErr != nil {
		return s.BeginErr
	}
	s.mu.Lock()
	savedExpenses := make(map[int64]expense.Expense, len(s.expenses))
	for id, e := range s.expenses {
		savedExpenses[id] = e
	}
	savedAudit := make([]expense.AuditEntry, len(s.audit))
	copy(savedAudit, s.audit)
	savedNextID, savedNextAudit := s.nextID, s.nextAudit
	s.mu.Unlock()

	err := fn(ctx)
	if err == nil && s.CommitErr != nil {
		err = s.CommitErr
	}
	if err != nil {
		s.mu.Lock()
		s.expenses = savedExpenses
		s.audit = savedAudit
		s.nextID, s.nextAudit = savedNextID, savedNextAudit
		s.mu.Unlock()
		return err
	}
	return nil
}

var (
	_ expense.Repository = (*Store)(nil)
	_ expense.AuditLog   = (*Store)(nil)
	_ expense.Transactor = (*Store)(nil)
)

// CaptureBus records published events synchronously.
type CaptureBus struct {
	mu     sync.Mutex
	events []expense.Event
}

func (b *CaptureBus) Publish(event expense.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Events returns a copy of everything published so far.
func (b *CaptureBus) Events() []expense.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]expense.Event, len(b.events))
	copy(out, b.events)
	return out
}

var _ expense.Publisher = (*CaptureBus)(nil)

// Directory is a fixed-map directory double.
type Directory struct {
	Emails   map[int64]string
	Approver string
	Err      error
}

func (d *Directory) EmailOfUser(_ context.Context, userID int64) (string, error) {
	if d.Err != nil {
		return "", d.Err
	}
	email, ok := d.Emails[userID]
	if !ok {
		return "", fmt.Errorf("user %d: %w", userID, expense.ErrNotFound)
	}
	return email, nil
}

func (d *Directory) AnyApproverEmail(_ context.Context) (string, error) {
	if d.Err != nil {
		return "", d.Err
	}
	if d.Approver == "" {
		return "", fmt.Errorf("no approver: %w", expense.ErrNotFound)
	}
	return d.Approver, nil
}

var _ expense.Directory = (*Directory)(nil)
