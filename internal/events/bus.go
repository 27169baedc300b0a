// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package events provides the in-process event bus: asynchronous dispatch on
// a bounded worker pool with per-subscriber isolation. Saturation falls back
// to inline execution on the publishing goroutine, so committed events are
// never silently dropped.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
	"github.com/tsugiyama-dev/EXPENSES/internal/tracing"
	"github.com/tsugiyama-dev/EXPENSES/pkg/errutil"
)

// Handler processes one domain event. Errors are logged and counted; they
// never reach the publisher.
type Handler func(ctx context.Context, event expense.Event) error

// Config sizes the worker pool. Zero values take the defaults, which match
// the reference deployment (core=5, max=10, queue=100).
type Config struct {
	CoreWorkers   int
	MaxWorkers    int
	QueueCapacity int

	// TaskTimeout bounds each subscriber invocation; exceeding it counts
	// as a subscriber failure. Zero means no deadline.
	TaskTimeout time.Duration

	Logger *slog.Logger
}

const (
	defaultCoreWorkers   = 5
	defaultMaxWorkers    = 10
	defaultQueueCapacity = 100
)

type subscriber struct {
	name    string
	handler Handler
}

type task struct {
	sub   subscriber
	event expense.Event
}

// Bus fans committed domain events out to subscribers registered by event
// type. Dispatch order across subscribers is unspecified; subscribers that
// need per-expense ordering must consult the audit log.
type Bus struct {
	mu   sync.RWMutex
	subs map[expense.EventType][]subscriber

	queue       chan task
	done        chan struct{}
	wg          sync.WaitGroup
	extra       atomic.Int64
	maxExtra    int64
	taskTimeout time.Duration
	logger      *slog.Logger
	closed      atomic.Bool
}

// New creates a Bus and starts its core workers.
func New(cfg Config) *Bus {
	if cfg.CoreWorkers <= 0 {
		cfg.CoreWorkers = defaultCoreWorkers
	}
	if cfg.MaxWorkers < cfg.CoreWorkers {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.MaxWorkers < cfg.CoreWorkers {
		cfg.MaxWorkers = cfg.CoreWorkers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bus{
		subs:        make(map[expense.EventType][]subscriber),
		queue:       make(chan task, cfg.QueueCapacity),
		done:        make(chan struct{}),
		maxExtra:    int64(cfg.MaxWorkers - cfg.CoreWorkers),
		taskTimeout: cfg.TaskTimeout,
		logger:      cfg.Logger,
	}
	for i := 0; i < cfg.CoreWorkers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Subscribe registers a handler for the given event types (exact match).
// The name identifies the subscriber in logs and metrics.
func (b *Bus) Subscribe(name string, h Handler, types ...expense.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], subscriber{name: name, handler: h})
	}
}

// Publish offers the event to every subscriber of its type and returns
// immediately. When the queue is full, an overflow worker is started up to
// the configured maximum; past that, the task runs inline on the publishing
// goroutine (back-pressure instead of loss).
func (b *Bus) Publish(event expense.Event) {
	b.mu.RLock()
	subs := b.subs[event.Type()]
	b.mu.RUnlock()

	publishedTotal.WithLabelValues(string(event.Type())).Inc()
	for _, sub := range subs {
		t := task{sub: sub, event: event}
		if b.closed.Load() {
			b.dispatch(t)
			continue
		}
		select {
		case b.queue <- t:
			// Close may have swapped the flag and finished draining between
			// the check above and this send, leaving the task stranded in a
			// queue no worker will ever read. Recover it here.
			select {
			case <-b.done:
				b.drainInline()
			default:
			}
		default:
			if b.spawnOverflow(t) {
				continue
			}
			inlineDispatchTotal.Inc()
			b.dispatch(t)
		}
	}
	queueDepth.Set(float64(len(b.queue)))
}

// drainInline empties the queue on the calling goroutine. Only used when a
// publish races Close: the workers may already be retired, so stranded tasks
// run here.
func (b *Bus) drainInline() {
	for {
		select {
		case t := <-b.queue:
			inlineDispatchTotal.Inc()
			b.dispatch(t)
		default:
			return
		}
	}
}

// spawnOverflow starts a temporary worker for t if the pool has headroom.
func (b *Bus) spawnOverflow(t task) bool {
	for {
		n := b.extra.Load()
		if n >= b.maxExtra {
			return false
		}
		if b.extra.CompareAndSwap(n, n+1) {
			break
		}
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.extra.Add(-1)
		b.dispatch(t)
		// Help drain the backlog before retiring.
		for {
			select {
			case t := <-b.queue:
				b.dispatch(t)
			default:
				return
			}
		}
	}()
	return true
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case t := <-b.queue:
			b.dispatch(t)
		case <-b.done:
			for {
				select {
				case t := <-b.queue:
					b.dispatch(t)
				default:
					return
				}
			}
		}
	}
}

// dispatch runs one subscriber invocation with its own deadline and trace
// context. Panics and errors are contained here.
func (b *Bus) dispatch(t task) {
	meta := t.event.Meta()
	ctx := tracing.WithTraceID(context.Background(), meta.TraceID)
	if b.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.taskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			subscriberFailures.WithLabelValues(t.sub.name).Inc()
			b.logger.ErrorContext(ctx, "event subscriber panicked",
				"subscriber", t.sub.name,
				"event_type", t.event.Type(),
				"event_id", meta.ID.String(),
				"panic", r,
			)
		}
	}()

	if err := t.sub.handler(ctx, t.event); err != nil {
		subscriberFailures.WithLabelValues(t.sub.name).Inc()
		errutil.LogError(b.logger.With(
			"subscriber", t.sub.name,
			"event_type", t.event.Type(),
			"event_id", meta.ID.String(),
			"trace_id", meta.TraceID,
		), "event subscriber failed", err)
	}
}

// Close stops the workers after draining queued tasks. Publishes after Close
// run inline. Returns ctx.Err() if the drain does not finish in time.
func (b *Bus) Close(ctx context.Context) error {
	if b.closed.Swap(true) {
		return nil
	}
	close(b.done)

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Compile-time interface check.
var _ expense.Publisher = (*Bus)(nil)
