// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
	"github.com/tsugiyama-dev/EXPENSES/internal/tracing"
	"github.com/tsugiyama-dev/EXPENSES/pkg/errutil"
)

// Error codes exposed to clients; a closed set.
const (
	codeValidation       = "VALIDATION_ERROR"
	codeNotAuthorized    = "NOT_AUTHORIZED"
	codeNotFound         = "NOT_FOUND"
	codeInvalidTransit   = "INVALID_STATUS_TRANSITION"
	codeConcurrentModify = "CONCURRENT_MODIFICATION"
	codeInternal         = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Details []expense.FieldError `json:"details"`
	TraceID string               `json:"traceId"`
}

// writeError maps a domain error to its HTTP status and error body. Each
// error kind has exactly one mapping; unknown errors become 500 and are
// logged with their trace id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := tracing.FromContext(r.Context())

	var (
		validationErr *expense.ValidationError
		authzErr      *expense.AuthorizationError
		transitionErr *expense.InvalidTransitionError
		conflictErr   *expense.ConflictError
		storageErr    *expense.StorageError
	)

	switch {
	case errors.Is(err, expense.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Code: codeNotAuthorized, Message: "authentication required",
			Details: []expense.FieldError{}, TraceID: traceID,
		})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code: codeValidation, Message: "invalid input",
			Details: validationErr.Details, TraceID: traceID,
		})
	case errors.As(err, &authzErr):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Code: codeNotAuthorized, Message: authzErr.Error(),
			Details: []expense.FieldError{}, TraceID: traceID,
		})
	case errors.Is(err, expense.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code: codeNotFound, Message: "expense not found",
			Details: []expense.FieldError{}, TraceID: traceID,
		})
	case errors.As(err, &transitionErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code: codeInvalidTransit, Message: transitionErr.Error(),
			Details: []expense.FieldError{}, TraceID: traceID,
		})
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code: codeConcurrentModify, Message: "the expense was modified by another user",
			Details: []expense.FieldError{}, TraceID: traceID,
		})
	case errors.As(err, &storageErr):
		status := http.StatusInternalServerError
		if storageErr.Retryable {
			status = http.StatusServiceUnavailable
		}
		errutil.LogError(s.logger.With("trace_id", traceID), "storage failure", err)
		writeJSON(w, status, errorResponse{
			Code: codeInternal, Message: "storage failure",
			Details: []expense.FieldError{}, TraceID: traceID,
		})
	default:
		errutil.LogError(s.logger.With("trace_id", traceID), "unhandled error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code: codeInternal, Message: "internal error",
			Details: []expense.FieldError{}, TraceID: traceID,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client went away
	json.NewEncoder(w).Encode(body)
}

// validationFailure is a shortcut for handler-level input errors.
func validationFailure(field, message string) error {
	return &expense.ValidationError{Details: []expense.FieldError{{Field: field, Message: message}}}
}
