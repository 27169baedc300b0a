// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package expense

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType identifies the kind of domain event.
type EventType string

const (
	EventTypeCreated   EventType = "expense.created"
	EventTypeSubmitted EventType = "expense.submitted"
	EventTypeApproved  EventType = "expense.approved"
	EventTypeRejected  EventType = "expense.rejected"
)

// EventMeta carries the fields common to every domain event.
type EventMeta struct {
	ID         ulid.ULID
	ExpenseID  int64
	ActorID    int64
	TraceID    string
	OccurredAt time.Time
}

// Meta returns the shared event metadata.
func (m EventMeta) Meta() EventMeta { return m }

// Event is a value describing a committed state transition. Events outlive
// the publishing transaction; they are buffered during the transaction and
// flushed only on commit.
type Event interface {
	Type() EventType
	Meta() EventMeta
}

// ExpenseCreated is published when a draft is persisted.
type ExpenseCreated struct {
	EventMeta
}

func (ExpenseCreated) Type() EventType { return EventTypeCreated }

// ExpenseSubmitted is published when a draft is submitted for approval.
type ExpenseSubmitted struct {
	EventMeta
	ApplicantID int64
}

func (ExpenseSubmitted) Type() EventType { return EventTypeSubmitted }

// ExpenseApproved is published when a submitted expense is approved.
type ExpenseApproved struct {
	EventMeta
	ApproverID  int64
	ApplicantID int64
}

func (ExpenseApproved) Type() EventType { return EventTypeApproved }

// ExpenseRejected is published when a submitted expense is rejected.
type ExpenseRejected struct {
	EventMeta
	RejectorID  int64
	ApplicantID int64
	Reason      string
}

func (ExpenseRejected) Type() EventType { return EventTypeRejected }
