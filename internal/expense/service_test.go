// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package expense_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsugiyama-dev/EXPENSES/internal/access"
	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
	"github.com/tsugiyama-dev/EXPENSES/internal/expense/expensetest"
	"github.com/tsugiyama-dev/EXPENSES/internal/tracing"
)

var (
	applicant = expense.Actor{ID: 7, Roles: []expense.Role{expense.RoleApplicant}}
	approver  = expense.Actor{ID: 20, Roles: []expense.Role{expense.RoleApprover}}
	stranger  = expense.Actor{ID: 99, Roles: []expense.Role{expense.RoleApplicant}}
	admin     = expense.Actor{ID: 30, Roles: []expense.Role{expense.RoleAdmin}}
)

func newService(store *expensetest.Store, bus *expensetest.CaptureBus) *expense.Service {
	return expense.NewService(expense.ServiceConfig{
		Repo:   store,
		Audit:  store,
		Tx:     store,
		Bus:    bus,
		Policy: access.NewPolicy(),
		Clock:  func() time.Time { return now },
		Logger: slog.New(slog.DiscardHandler),
	})
}

func seedDraft(store *expensetest.Store) *expense.Expense {
	e, _ := expense.NewDraft(applicant.ID, "client dinner", decimal.NewFromInt(8000), "JPY", now)
	e.ID = 1
	store.Seed(*e)
	return e
}

func seedSubmitted(store *expensetest.Store) *expense.Expense {
	draft, _ := expense.NewDraft(applicant.ID, "client dinner", decimal.NewFromInt(8000), "JPY", now)
	draft.ID = 1
	submitted, _ := draft.Submitted(now)
	store.Seed(*submitted)
	return submitted
}

func TestService_Create(t *testing.T) {
	t.Run("persists a draft, an audit row, and publishes after commit", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		ctx := tracing.WithTraceID(context.Background(), "trace-1")

		created, err := svc.Create(ctx, applicant, expense.CreateInput{
			Title:  "conference ticket",
			Amount: decimal.NewFromInt(50000),
		})
		require.NoError(t, err)
		assert.Equal(t, expense.StatusDraft, created.Status)
		assert.Equal(t, 0, created.Version)
		assert.NotZero(t, created.ID)

		entries := store.AuditEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, expense.ActionCreate, entries[0].Action)
		assert.Nil(t, entries[0].BeforeStatus)
		assert.Equal(t, expense.StatusDraft, entries[0].AfterStatus)
		assert.Equal(t, "trace-1", entries[0].TraceID)

		events := bus.Events()
		require.Len(t, events, 1)
		assert.Equal(t, expense.EventTypeCreated, events[0].Type())
		assert.Equal(t, created.ID, events[0].Meta().ExpenseID)
		assert.Equal(t, "trace-1", events[0].Meta().TraceID)
	})

	t.Run("unauthenticated actor is denied before any write", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)

		_, err := svc.Create(context.Background(), expense.Actor{}, expense.CreateInput{
			Title:  "x",
			Amount: decimal.NewFromInt(1),
		})
		var authzErr *expense.AuthorizationError
		require.ErrorAs(t, err, &authzErr)
		assert.Empty(t, store.AuditEntries())
		assert.Empty(t, bus.Events())
	})

	t.Run("invalid input yields ValidationError and no write", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)

		_, err := svc.Create(context.Background(), applicant, expense.CreateInput{Amount: decimal.Zero})
		var verr *expense.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Empty(t, bus.Events())
	})

	t.Run("audit failure rolls back the draft and publishes nothing", func(t *testing.T) {
		store := expensetest.NewStore()
		store.AppendErr = errors.New("audit insert failed")
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)

		_, err := svc.Create(context.Background(), applicant, expense.CreateInput{
			Title:  "hotel",
			Amount: decimal.NewFromInt(12000),
		})
		require.Error(t, err)
		assert.Nil(t, store.Get(1))
		assert.Empty(t, bus.Events())
	})
}

func TestService_Submit(t *testing.T) {
	t.Run("applicant submits a draft", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		seedDraft(store)

		post, err := svc.Submit(context.Background(), 1, applicant)
		require.NoError(t, err)
		assert.Equal(t, expense.StatusSubmitted, post.Status)
		assert.Equal(t, 1, post.Version)
		require.NotNil(t, post.SubmittedAt)

		stored := store.Get(1)
		assert.Equal(t, expense.StatusSubmitted, stored.Status)

		entries := store.AuditEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, expense.ActionSubmit, entries[0].Action)
		require.NotNil(t, entries[0].BeforeStatus)
		assert.Equal(t, expense.StatusDraft, *entries[0].BeforeStatus)
		assert.Equal(t, expense.StatusSubmitted, entries[0].AfterStatus)

		events := bus.Events()
		require.Len(t, events, 1)
		submitted, ok := events[0].(expense.ExpenseSubmitted)
		require.True(t, ok)
		assert.Equal(t, applicant.ID, submitted.ApplicantID)
	})

	t.Run("only the applicant may submit", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		seedDraft(store)

		_, err := svc.Submit(context.Background(), 1, stranger)
		var authzErr *expense.AuthorizationError
		require.ErrorAs(t, err, &authzErr)
		assert.Equal(t, expense.ActionSubmit, authzErr.Action)
		assert.Equal(t, expense.StatusDraft, store.Get(1).Status)
		assert.Empty(t, bus.Events())
	})

	t.Run("submitting twice is an invalid transition", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		seedSubmitted(store)

		_, err := svc.Submit(context.Background(), 1, applicant)
		var terr *expense.InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, expense.StatusSubmitted, terr.From)
		assert.Empty(t, bus.Events())
	})

	t.Run("unknown expense is not found", func(t *testing.T) {
		store := expensetest.NewStore()
		svc := newService(store, &expensetest.CaptureBus{})

		_, err := svc.Submit(context.Background(), 42, applicant)
		assert.ErrorIs(t, err, expense.ErrNotFound)
	})
}

func TestService_Approve(t *testing.T) {
	t.Run("approver approves a submitted expense", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		pre := seedSubmitted(store)

		post, err := svc.Approve(context.Background(), 1, pre.Version, approver)
		require.NoError(t, err)
		assert.Equal(t, expense.StatusApproved, post.Status)
		assert.Equal(t, pre.Version+1, post.Version)

		events := bus.Events()
		require.Len(t, events, 1)
		approved, ok := events[0].(expense.ExpenseApproved)
		require.True(t, ok)
		assert.Equal(t, approver.ID, approved.ApproverID)
		assert.Equal(t, applicant.ID, approved.ApplicantID)
	})

	t.Run("applicant without approver role is denied", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		pre := seedSubmitted(store)

		_, err := svc.Approve(context.Background(), 1, pre.Version, applicant)
		var authzErr *expense.AuthorizationError
		require.ErrorAs(t, err, &authzErr)
		assert.Equal(t, expense.StatusSubmitted, store.Get(1).Status)
		assert.Empty(t, bus.Events())
	})

	t.Run("approving a draft is an invalid transition, not a conflict", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		seedDraft(store)

		// Wrong state and wrong version at once: the state error wins.
		_, err := svc.Approve(context.Background(), 1, 5, approver)
		var terr *expense.InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, expense.StatusDraft, terr.From)
		assert.Equal(t, expense.ActionApprove, terr.Action)
		assert.Empty(t, bus.Events())
	})

	t.Run("stale expected version is a conflict without any write", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		seedSubmitted(store)

		_, err := svc.Approve(context.Background(), 1, 0, approver)
		var conflictErr *expense.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, 0, conflictErr.ExpectedVersion)
		assert.Equal(t, expense.StatusSubmitted, store.Get(1).Status)
		assert.Empty(t, store.AuditEntries())
		assert.Empty(t, bus.Events())
	})
}

func TestService_Reject(t *testing.T) {
	t.Run("reject records the reason on the audit note and the event", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		pre := seedSubmitted(store)

		post, err := svc.Reject(context.Background(), 1, pre.Version, "no receipt attached", approver)
		require.NoError(t, err)
		assert.Equal(t, expense.StatusRejected, post.Status)

		entries := store.AuditEntries()
		require.Len(t, entries, 1)
		assert.Equal(t, expense.ActionReject, entries[0].Action)
		require.NotNil(t, entries[0].Note)
		assert.Equal(t, "no receipt attached", *entries[0].Note)

		events := bus.Events()
		require.Len(t, events, 1)
		rejected, ok := events[0].(expense.ExpenseRejected)
		require.True(t, ok)
		assert.Equal(t, "no receipt attached", rejected.Reason)
		assert.Equal(t, applicant.ID, rejected.ApplicantID)
	})

	t.Run("blank reason is rejected before any write", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		svc := newService(store, bus)
		pre := seedSubmitted(store)

		_, err := svc.Reject(context.Background(), 1, pre.Version, "   ", approver)
		var verr *expense.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "reason", verr.Details[0].Field)
		assert.Equal(t, expense.StatusSubmitted, store.Get(1).Status)
		assert.Empty(t, bus.Events())
	})
}

// staleRepo delegates to the store but serves a stale pre-image on the first
// read, emulating a competing writer that committed between this request's
// pre-read and its conditional update.
type staleRepo struct {
	*expensetest.Store
	stale *expense.Expense
	read  bool
}

func (r *staleRepo) FindByID(ctx context.Context, id int64) (*expense.Expense, error) {
	if !r.read {
		r.read = true
		snapshot := *r.stale
		return &snapshot, nil
	}
	return r.Store.FindByID(ctx, id)
}

func newStaleService(repo *staleRepo, bus *expensetest.CaptureBus) *expense.Service {
	return expense.NewService(expense.ServiceConfig{
		Repo: repo, Audit: repo.Store, Tx: repo.Store, Bus: bus,
		Policy: access.NewPolicy(),
		Clock:  func() time.Time { return now },
		Logger: slog.New(slog.DiscardHandler),
	})
}

func TestService_RaceClassification(t *testing.T) {
	t.Run("losing to a state-changing writer is an invalid transition", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		// The row is already SUBMITTED, but this request read it as a draft.
		seedSubmitted(store)
		stale, _ := expense.NewDraft(applicant.ID, "client dinner", decimal.NewFromInt(8000), "JPY", now)
		stale.ID = 1
		repo := &staleRepo{Store: store, stale: stale}
		svc := newStaleService(repo, bus)

		_, err := svc.Submit(context.Background(), 1, applicant)
		var terr *expense.InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, expense.StatusSubmitted, terr.From)
		assert.Empty(t, bus.Events())
		// The losing attempt left no audit row.
		assert.Empty(t, store.AuditEntries())
	})

	t.Run("losing to a same-state writer is a conflict", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		submitted := seedSubmitted(store)
		// A competing writer bumped the version; the row is still SUBMITTED.
		current := *submitted
		current.Version = submitted.Version + 1
		store.Seed(current)
		repo := &staleRepo{Store: store, stale: submitted}
		svc := newStaleService(repo, bus)

		_, err := svc.Approve(context.Background(), 1, submitted.Version, approver)
		var conflictErr *expense.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Empty(t, bus.Events())
	})

	t.Run("an approve race loser sees a conflict even when the winner reached a terminal state", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		submitted := seedSubmitted(store)
		// The winner approved first: the row is terminal with a newer version.
		current := *submitted
		current.Status = expense.StatusApproved
		current.Version = submitted.Version + 1
		store.Seed(current)
		repo := &staleRepo{Store: store, stale: submitted}
		svc := newStaleService(repo, bus)

		_, err := svc.Approve(context.Background(), 1, submitted.Version, approver)
		var conflictErr *expense.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, submitted.Version, conflictErr.ExpectedVersion)
		assert.Empty(t, bus.Events())
		assert.Empty(t, store.AuditEntries())
	})

	t.Run("a reject race loser sees a conflict even when the winner reached a terminal state", func(t *testing.T) {
		store := expensetest.NewStore()
		bus := &expensetest.CaptureBus{}
		submitted := seedSubmitted(store)
		current := *submitted
		current.Status = expense.StatusRejected
		current.Version = submitted.Version + 1
		store.Seed(current)
		repo := &staleRepo{Store: store, stale: submitted}
		svc := newStaleService(repo, bus)

		_, err := svc.Reject(context.Background(), 1, submitted.Version, "duplicate claim", approver)
		var conflictErr *expense.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Empty(t, bus.Events())
		assert.Empty(t, store.AuditEntries())
	})
}

func TestService_Search(t *testing.T) {
	seedMany := func(store *expensetest.Store) {
		for i := 1; i <= 7; i++ {
			owner := applicant.ID
			if i > 4 {
				owner = stranger.ID
			}
			e, _ := expense.NewDraft(owner, fmt.Sprintf("item %d", i), decimal.NewFromInt(int64(i*100)), "JPY", now.Add(time.Duration(i)*time.Minute))
			e.ID = int64(i)
			store.Seed(*e)
		}
	}

	t.Run("unauthenticated search is refused", func(t *testing.T) {
		svc := newService(expensetest.NewStore(), &expensetest.CaptureBus{})
		_, err := svc.Search(context.Background(), expense.Actor{}, expense.SearchCriteria{}, "", expense.Page{})
		assert.ErrorIs(t, err, expense.ErrUnauthenticated)
	})

	t.Run("applicants only see their own expenses", func(t *testing.T) {
		store := expensetest.NewStore()
		svc := newService(store, &expensetest.CaptureBus{})
		seedMany(store)

		// Even an explicit filter for someone else's expenses is overridden.
		other := stranger.ID
		res, err := svc.Search(context.Background(), applicant, expense.SearchCriteria{ApplicantID: &other}, "", expense.Page{})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Total)
		for _, e := range res.Items {
			assert.Equal(t, applicant.ID, e.ApplicantID)
		}
	})

	t.Run("approvers see everything with paging metadata", func(t *testing.T) {
		store := expensetest.NewStore()
		svc := newService(store, &expensetest.CaptureBus{})
		seedMany(store)

		res, err := svc.Search(context.Background(), approver, expense.SearchCriteria{}, "", expense.Page{Number: 1, Size: 5})
		require.NoError(t, err)
		assert.Equal(t, 7, res.Total)
		assert.Equal(t, 2, res.TotalPages)
		assert.Len(t, res.Items, 5)
		assert.Equal(t, []int{1, 2}, res.PageWindow)

		res2, err := svc.Search(context.Background(), approver, expense.SearchCriteria{}, "", expense.Page{Number: 2, Size: 5})
		require.NoError(t, err)
		assert.Len(t, res2.Items, 2)
	})

	t.Run("default sort is created_at descending", func(t *testing.T) {
		store := expensetest.NewStore()
		svc := newService(store, &expensetest.CaptureBus{})
		seedMany(store)

		res, err := svc.Search(context.Background(), admin, expense.SearchCriteria{}, "", expense.Page{Size: 10})
		require.NoError(t, err)
		require.Len(t, res.Items, 7)
		for i := 1; i < len(res.Items); i++ {
			assert.False(t, res.Items[i-1].CreatedAt.Before(res.Items[i].CreatedAt))
		}
	})

	t.Run("ascending amount sort is honoured", func(t *testing.T) {
		store := expensetest.NewStore()
		svc := newService(store, &expensetest.CaptureBus{})
		seedMany(store)

		res, err := svc.Search(context.Background(), admin, expense.SearchCriteria{}, "amount,asc", expense.Page{Size: 10})
		require.NoError(t, err)
		for i := 1; i < len(res.Items); i++ {
			assert.True(t, res.Items[i-1].Amount.LessThanOrEqual(res.Items[i].Amount))
		}
	})

	t.Run("a page past the end is empty but keeps the total", func(t *testing.T) {
		store := expensetest.NewStore()
		svc := newService(store, &expensetest.CaptureBus{})
		seedMany(store)

		res, err := svc.Search(context.Background(), admin, expense.SearchCriteria{}, "", expense.Page{Number: 9, Size: 5})
		require.NoError(t, err)
		assert.Empty(t, res.Items)
		assert.Equal(t, 7, res.Total)
		assert.Equal(t, 2, res.TotalPages)
	})
}

func TestService_GetAuditLog(t *testing.T) {
	store := expensetest.NewStore()
	bus := &expensetest.CaptureBus{}
	svc := newService(store, bus)
	seedDraft(store)

	_, err := svc.Submit(context.Background(), 1, applicant)
	require.NoError(t, err)

	t.Run("the applicant reads their own history", func(t *testing.T) {
		entries, err := svc.GetAuditLog(context.Background(), 1, applicant)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, expense.ActionSubmit, entries[0].Action)
	})

	t.Run("approvers and admins may read any history", func(t *testing.T) {
		_, err := svc.GetAuditLog(context.Background(), 1, approver)
		assert.NoError(t, err)
		_, err = svc.GetAuditLog(context.Background(), 1, admin)
		assert.NoError(t, err)
	})

	t.Run("other applicants are denied", func(t *testing.T) {
		_, err := svc.GetAuditLog(context.Background(), 1, stranger)
		var authzErr *expense.AuthorizationError
		require.ErrorAs(t, err, &authzErr)
		assert.Equal(t, expense.ActionView, authzErr.Action)
	})

	t.Run("unknown expense is not found", func(t *testing.T) {
		_, err := svc.GetAuditLog(context.Background(), 42, applicant)
		assert.ErrorIs(t, err, expense.ErrNotFound)
	})
}
