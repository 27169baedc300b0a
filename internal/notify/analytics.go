// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsugiyama-dev/EXPENSES/internal/events"
	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

// Analytics counts lifecycle transitions. It subscribes to every event type
// and exposes counters on the metrics endpoint.
type Analytics struct {
	transitions *prometheus.CounterVec
	logger      *slog.Logger
}

// NewAnalytics creates the analytics listener and registers its metrics.
func NewAnalytics(reg prometheus.Registerer, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analytics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "expenses_transitions_total",
				Help: "Total number of committed expense transitions by event type",
			},
			[]string{"type"},
		),
		logger: logger,
	}
	reg.MustRegister(a.transitions)
	return a
}

// Register subscribes the listener to the bus.
func (a *Analytics) Register(bus *events.Bus) {
	bus.Subscribe("analytics", a.Handle,
		expense.EventTypeCreated,
		expense.EventTypeSubmitted,
		expense.EventTypeApproved,
		expense.EventTypeRejected,
	)
}

// Handle records the transition.
func (a *Analytics) Handle(ctx context.Context, event expense.Event) error {
	a.transitions.WithLabelValues(string(event.Type())).Inc()
	a.logger.DebugContext(ctx, "transition recorded",
		"event_type", event.Type(),
		"expense_id", event.Meta().ExpenseID,
	)
	return nil
}
