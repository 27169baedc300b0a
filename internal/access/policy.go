// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package access implements the authorization policy for expense operations:
// pure, side-effect free predicates over (actor, roles, expense, action),
// plus the visibility restriction folded into every search.
package access

import (
	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// Policy decides which actors may perform which expense actions.
//
// Decision matrix:
//
//	CREATE  any authenticated actor
//	SUBMIT  actor is the applicant
//	APPROVE/REJECT  actor bears ROLE_APPROVER
//	VIEW    applicant, approver, or admin
//
// State preconditions (draft-only submit, submitted-only review) are
// enforced by the aggregate's transition methods and surface as
// InvalidTransition, keeping authorization failures distinct from state
// errors.
type Policy struct{}

// NewPolicy creates the default policy.
func NewPolicy() Policy { return Policy{} }

// CanCreate allows any authenticated actor to create drafts.
func (Policy) CanCreate(actor expense.Actor) bool {
	return actor.ID != 0
}

// IsOwner reports whether the actor is the expense's applicant.
func (Policy) IsOwner(actor expense.Actor, e *expense.Expense) bool {
	return actor.ID != 0 && actor.ID == e.ApplicantID
}

// CanReview reports whether the actor may approve or reject.
func (Policy) CanReview(actor expense.Actor) bool {
	return actor.HasRole(expense.RoleApprover)
}

// CanView allows the applicant, approvers, and admins.
func (Policy) CanView(actor expense.Actor, e *expense.Expense) bool {
	if actor.ID == 0 {
		return false
	}
	return actor.ID == e.ApplicantID ||
		actor.HasRole(expense.RoleApprover) ||
		actor.HasRole(expense.RoleAdmin)
}

// Restrict pins non-approver, non-admin actors to their own expenses. The
// restriction overrides any caller-supplied applicant filter.
func (Policy) Restrict(actor expense.Actor, criteria *expense.SearchCriteria) {
	if actor.HasRole(expense.RoleApprover) || actor.HasRole(expense.RoleAdmin) {
		return
	}
	id := actor.ID
	criteria.ApplicantID = &id
}

// Compile-time interface check.
var _ expense.AccessPolicy = Policy{}
