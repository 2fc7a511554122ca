package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/observability"
)

// Handler runs one dequeued task to completion. Errors are the handler's own
// concern; the dispatcher only guards against panics so one task can never
// poison the loop.
type Handler func(ctx context.Context, item *Item)

// Dispatcher drains the queue set with fair per-user round-robin: each pass
// visits every owner with a non-empty queue and runs at most one of their
// tasks, so no user can monopolize the worker.
type Dispatcher struct {
	set     *Set
	handler Handler
	idle    time.Duration
	yield   time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over a queue set.
func NewDispatcher(set *Set, handler Handler, cfg config.DispatcherConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		set:     set,
		handler: handler,
		idle:    cfg.IdleSleep,
		yield:   cfg.PassYield,
		logger:  observability.WithComponent(log, "dispatcher"),
	}
}

// Run loops until the context is cancelled. Tasks run one at a time,
// serialized across the whole process.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started")
	defer d.logger.Info("dispatcher stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		owners := d.set.Owners()
		if len(owners) == 0 {
			if !sleepCtx(ctx, d.idle) {
				return
			}
			continue
		}

		for _, owner := range owners {
			if ctx.Err() != nil {
				return
			}
			item, ok := d.set.Dequeue(owner)
			if !ok {
				continue
			}
			d.runOne(ctx, item)
		}

		if !sleepCtx(ctx, d.yield) {
			return
		}
	}
}

// runOne executes a single task, containing any panic to that task.
func (d *Dispatcher) runOne(ctx context.Context, item *Item) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task handler panicked",
				slog.String("task_id", item.TaskID.String()),
				slog.Any("panic", r))
		}
	}()
	d.handler(ctx, item)
}

// sleepCtx sleeps for d or until the context is cancelled; reports whether
// the context is still alive.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
