// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package expense

import "time"

// AuditEntry is one immutable row of the transition log. Rows are never
// updated or deleted; the sequence of AfterStatus values for one expense,
// ordered by (CreatedAt, ID), is the observable status history.
type AuditEntry struct {
	ID           int64
	ExpenseID    int64
	ActorID      int64
	Action       Action
	BeforeStatus *Status // nil for CREATE
	AfterStatus  Status
	Note         *string // required for REJECT, nil otherwise
	TraceID      string
	CreatedAt    time.Time
}

// newAuditEntry builds the audit row for one committed transition.
func newAuditEntry(expenseID, actorID int64, action Action, before *Status, after Status, note *string, traceID string, now time.Time) *AuditEntry {
	return &AuditEntry{
		ExpenseID:    expenseID,
		ActorID:      actorID,
		Action:       action,
		BeforeStatus: before,
		AfterStatus:  after,
		Note:         note,
		TraceID:      traceID,
		CreatedAt:    now,
	}
}
