// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

package events

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expenses_events_published_total",
			Help: "Total number of domain events published by type",
		},
		[]string{"type"},
	)
	subscriberFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expenses_event_subscriber_failures_total",
			Help: "Total number of subscriber failures (errors, panics, timeouts)",
		},
		[]string{"subscriber"},
	)
	inlineDispatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "expenses_event_inline_dispatch_total",
			Help: "Total number of tasks run inline because the queue was saturated",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "expenses_event_queue_depth",
			Help: "Current depth of the event dispatch queue",
		},
	)
)

// RegisterMetrics registers the bus metrics with the given registerer.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(publishedTotal, subscriberFailures, inlineDispatchTotal, queueDepth)
}
