package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"secret-santa/contract"
	"secret-santa/domain"
)

var _ contract.Worker = (*PollerWorker)(nil)

// Submitter accepts inbound events for processing.
type Submitter interface {
	Submit(ctx context.Context, event domain.Event) error
}

// PollerWorker pulls events from the transport and hands them to the orchestrator.
// Transport failures are retried with an exponential backoff, reset after each successful poll.
type PollerWorker struct {
	source    contract.EventSource
	submitter Submitter
	minDelay  time.Duration
	maxDelay  time.Duration
	log       *slog.Logger
}

func NewPollerWorker(
	source contract.EventSource,
	submitter Submitter,
	minDelay, maxDelay time.Duration,
	log *slog.Logger,
) *PollerWorker {
	return &PollerWorker{
		source:    source,
		submitter: submitter,
		minDelay:  minDelay,
		maxDelay:  maxDelay,
		log:       log,
	}
}

func (w *PollerWorker) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	if w.minDelay > 0 {
		b.InitialInterval = w.minDelay
	}
	if w.maxDelay > 0 {
		b.MaxInterval = w.maxDelay
	}

	for {
		events, err := w.source.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := b.NextBackOff()
			w.log.Warn("Polling failed, retrying", "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		b.Reset()

		for _, evt := range events {
			if err := w.submitter.Submit(ctx, evt); err != nil {
				return err
			}
		}
	}
}
