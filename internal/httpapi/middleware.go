// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tsugiyama-dev/EXPENSES/internal/tracing"
)

// TraceHeader is the correlation header read from and echoed on every
// request.
const TraceHeader = "X-Trace-Id"

// TraceID reads the X-Trace-Id header (generating a UUID when absent),
// stores it in the request context, and echoes it on the response. The id
// flows from here into audit rows, domain events, and log records.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(TraceHeader, traceID)
		ctx := tracing.WithTraceID(r.Context(), traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
