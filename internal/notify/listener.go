// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"

	"github.com/tsugiyama-dev/EXPENSES/internal/events"
	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// Listener mails the relevant party on each lifecycle transition: the
// approver on submission, the applicant on approval or rejection.
type Listener struct {
	mailer Mailer
	dir    expense.Directory
	logger *slog.Logger
}

// NewListener creates a notification listener.
func NewListener(mailer Mailer, dir expense.Directory, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{mailer: mailer, dir: dir, logger: logger}
}

// Register subscribes the listener to the bus.
func (l *Listener) Register(bus *events.Bus) {
	bus.Subscribe("notification", l.Handle,
		expense.EventTypeSubmitted,
		expense.EventTypeApproved,
		expense.EventTypeRejected,
	)
}

// Handle dispatches on the event type. Returned errors are logged and
// counted by the bus; delivery is best-effort.
func (l *Listener) Handle(ctx context.Context, event expense.Event) error {
	switch evt := event.(type) {
	case expense.ExpenseSubmitted:
		return l.notifySubmitted(ctx, evt)
	case expense.ExpenseApproved:
		return l.notifyApproved(ctx, evt)
	case expense.ExpenseRejected:
		return l.notifyRejected(ctx, evt)
	default:
		return nil
	}
}

func (l *Listener) notifySubmitted(ctx context.Context, evt expense.ExpenseSubmitted) error {
	to, err := l.dir.AnyApproverEmail(ctx)
	if err != nil {
		return oops.Wrapf(err, "resolve approver address")
	}
	body := fmt.Sprintf("expenseId=%d\ntraceId=%s\n", evt.ExpenseID, evt.TraceID)
	if err := l.mailer.Send(ctx, to, "[Expenses] expense submitted", body); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "submission notice sent", "expense_id", evt.ExpenseID, "to", to)
	return nil
}

func (l *Listener) notifyApproved(ctx context.Context, evt expense.ExpenseApproved) error {
	to, err := l.dir.EmailOfUser(ctx, evt.ApplicantID)
	if err != nil {
		return oops.Wrapf(err, "resolve applicant address")
	}
	body := fmt.Sprintf("expenseId=%d\ntraceId=%s\n", evt.ExpenseID, evt.TraceID)
	if err := l.mailer.Send(ctx, to, "[Expenses] expense approved", body); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "approval notice sent", "expense_id", evt.ExpenseID, "to", to)
	return nil
}

func (l *Listener) notifyRejected(ctx context.Context, evt expense.ExpenseRejected) error {
	to, err := l.dir.EmailOfUser(ctx, evt.ApplicantID)
	if err != nil {
		return oops.Wrapf(err, "resolve applicant address")
	}
	body := fmt.Sprintf("expenseId=%d\nreason=%s\ntraceId=%s\n", evt.ExpenseID, evt.Reason, evt.TraceID)
	if err := l.mailer.Send(ctx, to, "[Expenses] expense rejected", body); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "rejection notice sent", "expense_id", evt.ExpenseID, "to", to)
	return nil
}
