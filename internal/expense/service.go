// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package expense

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tsugiyama-dev/EXPENSES/internal/tracing"
)

// ServiceConfig holds dependencies for Service.
type ServiceConfig struct {
	Repo   Repository
	Audit  AuditLog
	Tx     Transactor
	Bus    Publisher
	Policy AccessPolicy

	// Clock overrides the wall-clock source; defaults to time.Now.
	Clock func() time.Time

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Service is the expense lifecycle engine. Every state-changing operation is
// one transaction spanning the conditional update and the audit append;
// domain events are buffered during the transaction and published only after
// commit.
type Service struct {
	repo   Repository
	audit  AuditLog
	tx     Transactor
	bus    Publisher
	policy AccessPolicy
	clock  func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

// NewService creates a Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   cfg.Repo,
		audit:  cfg.Audit,
		tx:     cfg.Tx,
		bus:    cfg.Bus,
		policy: cfg.Policy,
		clock:  clock,
		logger: logger,
		tracer: otel.Tracer("expense"),
	}
}

// CreateInput carries the caller-supplied fields for a new draft.
type CreateInput struct {
	Title    string
	Amount   decimal.Decimal
	Currency string
}

// Create validates the input, persists a draft at version 0, appends the
// CREATE audit row in the same transaction, and publishes ExpenseCreated
// after commit.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Expense, error) {
	ctx, span := s.tracer.Start(ctx, "expense.create")
	defer span.End()

	if !s.policy.CanCreate(actor) {
		return nil, &AuthorizationError{Action: ActionCreate, Reason: "authentication required"}
	}

	now := s.clock()
	draft, err := NewDraft(actor.ID, in.Title, in.Amount, in.Currency, now)
	if err != nil {
		return nil, err
	}

	traceID := tracing.FromContext(ctx)
	var pending []Event
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Insert(ctx, draft); err != nil {
			return oops.Wrapf(err, "insert draft")
		}
		entry := newAuditEntry(draft.ID, actor.ID, ActionCreate, nil, StatusDraft, nil, traceID, now)
		if err := s.audit.Append(ctx, entry); err != nil {
			return oops.Wrapf(err, "append audit row")
		}
		pending = append(pending, ExpenseCreated{EventMeta: s.eventMeta(draft.ID, actor.ID, traceID)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.flush(pending)

	span.SetAttributes(attribute.Int64("expense.id", draft.ID))
	s.logger.InfoContext(ctx, "expense created",
		"expense_id", draft.ID, "applicant_id", actor.ID, "amount", draft.Amount.String())
	return draft, nil
}

// Submit transitions a draft to SUBMITTED on behalf of its applicant. The
// pre-read is advisory; correctness rests on the version predicate.
func (s *Service) Submit(ctx context.Context, expenseID int64, actor Actor) (*Expense, error) {
	ctx, span := s.tracer.Start(ctx, "expense.submit",
		trace.WithAttributes(attribute.Int64("expense.id", expenseID)))
	defer span.End()

	pre, err := s.repo.FindByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !s.policy.IsOwner(actor, pre) {
		return nil, &AuthorizationError{Action: ActionSubmit, Reason: "only the applicant may submit"}
	}

	now := s.clock()
	post, err := pre.Submitted(now)
	if err != nil {
		return nil, err
	}

	traceID := tracing.FromContext(ctx)
	before := pre.Status
	var pending []Event
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateVersioned(ctx, post, pre.Version); err != nil {
			return err
		}
		entry := newAuditEntry(post.ID, actor.ID, ActionSubmit, &before, post.Status, nil, traceID, now)
		if err := s.audit.Append(ctx, entry); err != nil {
			return oops.Wrapf(err, "append audit row")
		}
		pending = append(pending, ExpenseSubmitted{
			EventMeta:   s.eventMeta(post.ID, actor.ID, traceID),
			ApplicantID: post.ApplicantID,
		})
		return nil
	})
	if err != nil {
		return nil, s.classifySubmit(ctx, err, expenseID, pre.Version)
	}
	s.flush(pending)

	s.logger.InfoContext(ctx, "expense submitted",
		"expense_id", post.ID, "applicant_id", actor.ID, "version", post.Version)
	return post, nil
}

// Approve transitions a submitted expense to APPROVED. The caller-supplied
// expectedVersion must equal the pre-read version; a mismatch there is a
// Conflict without any write.
func (s *Service) Approve(ctx context.Context, expenseID int64, expectedVersion int, actor Actor) (*Expense, error) {
	return s.review(ctx, expenseID, expectedVersion, actor, ActionApprove, nil)
}

// Reject transitions a submitted expense to REJECTED. A non-blank reason of
// at most 100 characters is required; it is recorded as the audit note and
// carried on the ExpenseRejected event.
func (s *Service) Reject(ctx context.Context, expenseID int64, expectedVersion int, reason string, actor Actor) (*Expense, error) {
	return s.review(ctx, expenseID, expectedVersion, actor, ActionReject, &reason)
}

// review is the shared approve/reject path; reason is non-nil for rejects.
func (s *Service) review(ctx context.Context, expenseID int64, expectedVersion int, actor Actor, action Action, reason *string) (*Expense, error) {
	ctx, span := s.tracer.Start(ctx, "expense."+string(action),
		trace.WithAttributes(attribute.Int64("expense.id", expenseID)))
	defer span.End()

	pre, err := s.repo.FindByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanReview(actor) {
		return nil, &AuthorizationError{Action: action, Reason: "requires approver role"}
	}
	if reason != nil {
		if err := ValidateReason(*reason); err != nil {
			return nil, err
		}
	}

	now := s.clock()
	var post *Expense
	if action == ActionApprove {
		post, err = pre.Approved(now)
	} else {
		post, err = pre.Rejected(now)
	}
	if err != nil {
		return nil, err
	}
	if expectedVersion != pre.Version {
		return nil, &ConflictError{ExpenseID: expenseID, ExpectedVersion: expectedVersion}
	}

	traceID := tracing.FromContext(ctx)
	before := pre.Status
	var pending []Event
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateVersioned(ctx, post, pre.Version); err != nil {
			return err
		}
		entry := newAuditEntry(post.ID, actor.ID, action, &before, post.Status, reason, traceID, now)
		if err := s.audit.Append(ctx, entry); err != nil {
			return oops.Wrapf(err, "append audit row")
		}
		meta := s.eventMeta(post.ID, actor.ID, traceID)
		if action == ActionApprove {
			pending = append(pending, ExpenseApproved{
				EventMeta:   meta,
				ApproverID:  actor.ID,
				ApplicantID: pre.ApplicantID,
			})
		} else {
			pending = append(pending, ExpenseRejected{
				EventMeta:   meta,
				RejectorID:  actor.ID,
				ApplicantID: pre.ApplicantID,
				Reason:      *reason,
			})
		}
		return nil
	})
	if err != nil {
		// The expected version was checked against the pre-read above, so a
		// mismatch here means a competing writer got in between: the caller
		// lost the race, whatever the row looks like now.
		if errors.Is(err, ErrVersionMismatch) {
			return nil, &ConflictError{ExpenseID: expenseID, ExpectedVersion: expectedVersion}
		}
		return nil, err
	}
	s.flush(pending)

	s.logger.InfoContext(ctx, "expense reviewed",
		"expense_id", post.ID, "action", action, "actor_id", actor.ID, "version", post.Version)
	return post, nil
}

// Search applies the actor's visibility restriction, normalises sort and
// paging, and returns one page plus the total under the same filter.
func (s *Service) Search(ctx context.Context, actor Actor, criteria SearchCriteria, rawSort string, page Page) (*PagedResult, error) {
	ctx, span := s.tracer.Start(ctx, "expense.search")
	defer span.End()

	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}
	s.policy.Restrict(actor, &criteria)

	sort := NormalizeSort(rawSort)
	page = page.Normalize()

	total, err := s.repo.Count(ctx, criteria)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Search(ctx, criteria, sort, page.Size, page.Offset())
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(page.Size) - 1) / int64(page.Size))
	return &PagedResult{
		Items:      items,
		Page:       page.Number,
		PageSize:   page.Size,
		Total:      int(total),
		TotalPages: totalPages,
		PageWindow: PageWindow(page.Number, totalPages, pageWindowWidth),
	}, nil
}

// GetAuditLog returns the transition history of an expense, subject to the
// VIEW predicate (owner, approver, or admin).
func (s *Service) GetAuditLog(ctx context.Context, expenseID int64, actor Actor) ([]*AuditEntry, error) {
	ctx, span := s.tracer.Start(ctx, "expense.audit_log",
		trace.WithAttributes(attribute.Int64("expense.id", expenseID)))
	defer span.End()

	e, err := s.repo.FindByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanView(actor, e) {
		return nil, &AuthorizationError{Action: ActionView, Reason: "not owner, approver, or admin"}
	}
	return s.audit.FindByExpense(ctx, expenseID)
}

// classifySubmit resolves a version mismatch on submit by re-reading the
// row: a row that already left DRAFT means the transition itself is illegal;
// a draft with a newer version means the caller simply lost the race. Only
// submit reclassifies this way; for approve and reject a mismatch is always
// a Conflict.
func (s *Service) classifySubmit(ctx context.Context, err error, expenseID int64, expectedVersion int) error {
	if !errors.Is(err, ErrVersionMismatch) {
		return err
	}
	fresh, ferr := s.repo.FindByID(ctx, expenseID)
	if ferr != nil {
		return ferr
	}
	if fresh.Status != StatusDraft {
		return &InvalidTransitionError{From: fresh.Status, Action: ActionSubmit}
	}
	return &ConflictError{ExpenseID: expenseID, ExpectedVersion: expectedVersion}
}

// flush hands committed events to the bus. Publication is asynchronous and
// never fails the caller.
func (s *Service) flush(events []Event) {
	if s.bus == nil {
		return
	}
	for _, evt := range events {
		s.bus.Publish(evt)
	}
}

func (s *Service) eventMeta(expenseID, actorID int64, traceID string) EventMeta {
	return EventMeta{
		ID:         ulid.Make(),
		ExpenseID:  expenseID,
		ActorID:    actorID,
		TraceID:    traceID,
		OccurredAt: s.clock(),
	}
}
