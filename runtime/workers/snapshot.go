package workers

import (
	"context"
	"log/slog"
	"time"

	"secret-santa/contract"
)

var _ contract.Worker = (*SnapshotWorker)(nil)

// Flusher persists pending state. force writes even when nothing changed.
type Flusher interface {
	Flush(force bool) error
}

// SnapshotWorker retries failed snapshots periodically and writes a last one on shutdown.
type SnapshotWorker struct {
	store    Flusher
	interval time.Duration
	log      *slog.Logger
}

func NewSnapshotWorker(store Flusher, interval time.Duration, log *slog.Logger) *SnapshotWorker {
	return &SnapshotWorker{store: store, interval: interval, log: log}
}

func (w *SnapshotWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := w.store.Flush(true); err != nil {
				w.log.Error("Final snapshot failed", "error", err)
			} else {
				w.log.Info("Final snapshot written")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := w.store.Flush(false); err != nil {
				w.log.Warn("Snapshot retry failed", "error", err)
			}
		}
	}
}
