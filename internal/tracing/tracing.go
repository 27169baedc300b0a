// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package tracing carries the per-request trace id through context.
// The id originates from the X-Trace-Id header (or is generated) and is
// propagated into audit rows, domain events, and log records.
package tracing

import (
	"context"

	"github.com/google/uuid"
)

type traceIDKey struct{}

// WithTraceID returns a context carrying the given trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// FromContext returns the trace id stored in ctx, or "" if none is set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// Ensure returns ctx with a trace id set, generating a fresh UUID when the
// context does not already carry one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithTraceID(ctx, id), id
}
