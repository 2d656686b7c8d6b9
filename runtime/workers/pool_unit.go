package workers

import (
	"context"
	"log/slog"
	"time"

	"secret-santa/contract"
	"secret-santa/domain"
)

var _ contract.Worker = (*PoolUnitWorker)(nil)

// PoolUnitWorker handles the events of one shard, one at a time.
// All events of a given user land on the same shard, so they are handled in arrival order.
type PoolUnitWorker struct {
	shard   int
	events  <-chan domain.Event
	handler contract.EventHandler
	timeout time.Duration
	log     *slog.Logger
}

func NewPoolUnitWorker(
	shard int,
	events <-chan domain.Event,
	handler contract.EventHandler,
	timeout time.Duration,
	log *slog.Logger) *PoolUnitWorker {
	return &PoolUnitWorker{
		shard:   shard,
		events:  events,
		handler: handler,
		timeout: timeout,
		log:     log.With("shard", shard),
	}
}

func (w *PoolUnitWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.handle(ctx, evt)
		}
	}
}

func (w *PoolUnitWorker) handle(ctx context.Context, evt domain.Event) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := w.handler.Handle(ctx, evt); err != nil {
		w.log.Error("Event handling failed", "event", evt.EventID(), "user", evt.From().ID, "error", err)
		return
	}
	w.log.Debug("Event handled", "event", evt.EventID(), "user", evt.From().ID, "took", time.Since(start))
}
