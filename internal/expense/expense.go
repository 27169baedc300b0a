// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package expense contains the expense lifecycle core: the aggregate, its
// state machine, the typed error taxonomy, domain events, and the service
// orchestrating persistence, auditing, and event publication.
package expense

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an expense.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
)

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Action is an operation attempted against an expense. Actions and statuses
// are disjoint closed sets; audit rows record actions, never statuses.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionSubmit  Action = "SUBMIT"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionView    Action = "VIEW"
)

// Role names recognized by the authorization policy.
type Role string

const (
	RoleApplicant Role = "ROLE_APPLICANT"
	RoleApprover  Role = "ROLE_APPROVER"
	RoleAdmin     Role = "ROLE_ADMIN"
)

// Actor is an already-authenticated identity plus its role set.
// Authentication itself happens at the boundary; the core only consumes
// the resolved identity.
type Actor struct {
	ID    int64
	Roles []Role
}

// HasRole reports whether the actor bears the given role.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DefaultCurrency is applied when a draft is created without one.
const DefaultCurrency = "JPY"

// MaxTitleLen bounds the title length; MaxReasonLen bounds rejection reasons.
const (
	MaxTitleLen  = 100
	MaxReasonLen = 100
)

// Expense is the aggregate root. Status, SubmittedAt, UpdatedAt, and Version
// only change through the transition methods below, which enforce the legal
// edges DRAFT -> SUBMITTED -> {APPROVED, REJECTED}.
type Expense struct {
	ID          int64
	ApplicantID int64
	Title       string
	Amount      decimal.Decimal
	Currency    string
	Status      Status
	SubmittedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int
}

// NewDraft validates the inputs and constructs a DRAFT expense at version 0.
// The id is assigned by the store on first persist.
func NewDraft(applicantID int64, title string, amount decimal.Decimal, currency string, now time.Time) (*Expense, error) {
	var details []FieldError
	if strings.TrimSpace(title) == "" {
		details = append(details, FieldError{Field: "title", Message: "title must not be blank"})
	} else if utf8.RuneCountInString(title) > MaxTitleLen {
		details = append(details, FieldError{Field: "title", Message: "title must be at most 100 characters"})
	}
	if !amount.IsPositive() {
		details = append(details, FieldError{Field: "amount", Message: "amount must be positive"})
	}
	if currency == "" {
		currency = DefaultCurrency
	} else if !validCurrencyCode(currency) {
		details = append(details, FieldError{Field: "currency", Message: "currency must be a 3-letter code"})
	}
	if len(details) > 0 {
		return nil, &ValidationError{Details: details}
	}

	return &Expense{
		ApplicantID: applicantID,
		Title:       title,
		Amount:      amount,
		Currency:    strings.ToUpper(currency),
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     0,
	}, nil
}

// validCurrencyCode accepts exactly three ASCII letters, ISO 4217 style.
func validCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// Submitted returns the post-image for a submission: SUBMITTED, submittedAt
// and updatedAt set to now, version incremented by exactly one. Fails with
// InvalidTransitionError unless the expense is currently a draft.
func (e *Expense) Submitted(now time.Time) (*Expense, error) {
	if e.Status != StatusDraft {
		return nil, &InvalidTransitionError{From: e.Status, Action: ActionSubmit}
	}
	post := *e
	post.Status = StatusSubmitted
	post.SubmittedAt = &now
	post.UpdatedAt = now
	post.Version = e.Version + 1
	return &post, nil
}

// Approved returns the post-image for an approval.
func (e *Expense) Approved(now time.Time) (*Expense, error) {
	if e.Status != StatusSubmitted {
		return nil, &InvalidTransitionError{From: e.Status, Action: ActionApprove}
	}
	post := *e
	post.Status = StatusApproved
	post.UpdatedAt = now
	post.Version = e.Version + 1
	return &post, nil
}

// Rejected returns the post-image for a rejection.
func (e *Expense) Rejected(now time.Time) (*Expense, error) {
	if e.Status != StatusSubmitted {
		return nil, &InvalidTransitionError{From: e.Status, Action: ActionReject}
	}
	post := *e
	post.Status = StatusRejected
	post.UpdatedAt = now
	post.Version = e.Version + 1
	return &post, nil
}

// LegalTransition reports whether (from, to) is an edge of the state machine.
// A nil from denotes creation.
func LegalTransition(from *Status, to Status) bool {
	if from == nil {
		return to == StatusDraft
	}
	switch *from {
	case StatusDraft:
		return to == StatusSubmitted
	case StatusSubmitted:
		return to == StatusApproved || to == StatusRejected
	}
	return false
}

// ValidateReason checks a rejection reason: required, non-blank, at most
// 100 characters.
func ValidateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return &ValidationError{Details: []FieldError{{Field: "reason", Message: "reason must not be blank"}}}
	}
	if utf8.RuneCountInString(reason) > MaxReasonLen {
		return &ValidationError{Details: []FieldError{{Field: "reason", Message: "reason must be at most 100 characters"}}}
	}
	return nil
}
