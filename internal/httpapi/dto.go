// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

func init() {
	// Amounts render as JSON numbers, matching the wire format of the API.
	decimal.MarshalJSONWithoutQuotes = true
}

type createRequest struct {
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type expenseResponse struct {
	ID          int64           `json:"id"`
	ApplicantID int64           `json:"applicantId"`
	Title       string          `json:"title"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	SubmittedAt *time.Time      `json:"submittedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Version     int             `json:"version"`
}

func toExpenseResponse(e *expense.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		ApplicantID: e.ApplicantID,
		Title:       e.Title,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Status:      string(e.Status),
		SubmittedAt: e.SubmittedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		Version:     e.Version,
	}
}

type pagedResponse struct {
	Items      []expenseResponse `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	Total      int               `json:"total"`
	TotalPages int               `json:"totalPages"`
	PageWindow []int             `json:"pageWindow"`
}

func toPagedResponse(res *expense.PagedResult) pagedResponse {
	items := make([]expenseResponse, len(res.Items))
	for i, e := range res.Items {
		items[i] = toExpenseResponse(e)
	}
	return pagedResponse{
		Items:      items,
		Page:       res.Page,
		PageSize:   res.PageSize,
		Total:      res.Total,
		TotalPages: res.TotalPages,
		PageWindow: res.PageWindow,
	}
}

type auditEntryResponse struct {
	ID           int64     `json:"id"`
	ExpenseID    int64     `json:"expenseId"`
	ActorID      int64     `json:"actorId"`
	Action       string    `json:"action"`
	BeforeStatus *string   `json:"beforeStatus"`
	AfterStatus  string    `json:"afterStatus"`
	Note         *string   `json:"note"`
	TraceID      string    `json:"traceId"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toAuditResponses(entries []*expense.AuditEntry) []auditEntryResponse {
	out := make([]auditEntryResponse, len(entries))
	for i, entry := range entries {
		var before *string
		if entry.BeforeStatus != nil {
			s := string(*entry.BeforeStatus)
			before = &s
		}
		out[i] = auditEntryResponse{
			ID:           entry.ID,
			ExpenseID:    entry.ExpenseID,
			ActorID:      entry.ActorID,
			Action:       string(entry.Action),
			BeforeStatus: before,
			AfterStatus:  string(entry.AfterStatus),
			Note:         entry.Note,
			TraceID:      entry.TraceID,
			CreatedAt:    entry.CreatedAt,
		}
	}
	return out
}
