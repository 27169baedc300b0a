// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package expense

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SearchCriteria restricts a search. Nil / zero fields are unrestricted.
type SearchCriteria struct {
	ApplicantID   *int64
	Status        *Status
	Title         string // case-insensitive substring match
	AmountMin     *decimal.Decimal
	AmountMax     *decimal.Decimal
	SubmittedFrom *time.Time // inclusive
	SubmittedTo   *time.Time // inclusive
}

// SortField is a column identifier validated against a closed set before any
// query composition; order-by positions never receive raw input.
type SortField string

const (
	SortCreatedAt   SortField = "created_at"
	SortUpdatedAt   SortField = "updated_at"
	SortSubmittedAt SortField = "submitted_at"
	SortAmount      SortField = "amount"
	SortID          SortField = "id"
)

var allowedSortFields = map[SortField]bool{
	SortCreatedAt:   true,
	SortUpdatedAt:   true,
	SortSubmittedAt: true,
	SortAmount:      true,
	SortID:          true,
}

// Sort is a validated (field, direction) pair.
type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort is applied to empty or malformed sort input.
var DefaultSort = Sort{Field: SortCreatedAt, Desc: true}

// NormalizeSort parses "field,direction" input and validates it against the
// closed field set. Malformed or unknown values are accepted and silently
// normalised to (created_at, DESC).
func NormalizeSort(raw string) Sort {
	if strings.TrimSpace(raw) == "" {
		return DefaultSort
	}
	parts := strings.Split(raw, ",")

	field := SortField(strings.TrimSpace(parts[0]))
	if !allowedSortFields[field] {
		field = SortCreatedAt
	}

	desc := true
	if len(parts) >= 2 && strings.EqualFold(strings.TrimSpace(parts[1]), "asc") {
		desc = false
	}
	return Sort{Field: field, Desc: desc}
}

// DefaultPageSize matches the original service's paging default.
const DefaultPageSize = 5

// Page is a 1-indexed page request.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps the page request to sane values.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	return p
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// PagedResult is one page of search results plus paging metadata.
type PagedResult struct {
	Items      []*Expense
	Page       int
	PageSize   int
	Total      int
	TotalPages int
	PageWindow []int
}

// pageWindowWidth is the maximum number of page links in the window.
const pageWindowWidth = 5

// PageWindow returns a contiguous slice of up to width page numbers centred
// on current, clipped to [1, totalPages]. For totalPages >= 1 the window
// always has length min(width, totalPages) and contains current.
func PageWindow(current, totalPages, width int) []int {
	if totalPages < 1 {
		return []int{}
	}
	var start, end int
	if totalPages < width {
		start, end = 1, totalPages
	} else {
		start = current - 2
		if start < 1 {
			start = 1
		}
		end = start + width - 1
		if end > totalPages {
			end = totalPages
		}
		if end == totalPages {
			start = end - width + 1
		}
	}
	window := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		window = append(window, p)
	}
	return window
}
