// Package runtime moves inbound events from the transport to the conversation machine.
// It owns the deduplication window, the per-user ordering and the supervised workers,
// and contains no business rule.
package runtime

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"secret-santa/contract"
	"secret-santa/domain"
	"secret-santa/errors"
	"secret-santa/runtime/workers"
)

var _ contract.IOrchestrator = (*Orchestrator)(nil)

// Orchestrator admits each event once and routes it to the shard of its sender.
// One worker serves each shard, so events of a user are handled one after the other,
// while different users progress concurrently.
type Orchestrator struct {
	mu            sync.Mutex
	log           *slog.Logger
	supervisor    contract.ISupervisor
	handler       contract.EventHandler
	dedup         *Deduplicator
	shards        []chan domain.Event
	handleTimeout time.Duration
	extra         []contract.Worker
	started       bool
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, handler contract.EventHandler,
	dedup *Deduplicator, numWorkers, bufferSize int, handleTimeout time.Duration) *Orchestrator {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	shards := make([]chan domain.Event, numWorkers)
	for i := range shards {
		shards[i] = make(chan domain.Event, bufferSize)
	}
	return &Orchestrator{
		log:           log,
		supervisor:    supervisor,
		handler:       handler,
		dedup:         dedup,
		shards:        shards,
		handleTimeout: handleTimeout,
	}
}

// Add registers workers supervised alongside the event workers (poller, snapshots, heartbeat).
func (o *Orchestrator) Add(ws ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, ws...)
}

// Submit admits an event and queues it for its sender's worker.
// A redelivered event is dropped silently. Submit blocks while the shard is full;
// if ctx ends first the event is not queued and its id is released for redelivery.
func (o *Orchestrator) Submit(ctx context.Context, event domain.Event) error {
	if !o.dedup.Admit(event.EventID()) {
		o.log.Debug("Duplicate event dropped", "event", event.EventID(), "user", event.From().ID)
		return nil
	}
	shard := o.shards[o.shardOf(event.From().ID)]
	select {
	case <-ctx.Done():
		o.dedup.Forget(event.EventID())
		return ctx.Err()
	case shard <- event:
		return nil
	}
}

func (o *Orchestrator) shardOf(userID domain.UserID) int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(userID))
	h := fnv.New32a()
	_, _ = h.Write(buf[:])
	return int(h.Sum32() % uint32(len(o.shards)))
}

// Queues exposes the shard channels for sampling.
func (o *Orchestrator) Queues() []workers.NamedChannel {
	res := make([]workers.NamedChannel, len(o.shards))
	for i, ch := range o.shards {
		res[i] = workers.NamedChannel{Name: fmt.Sprintf("shard-%d", i), Channel: ch}
	}
	return res
}

// Start registers every worker and runs the supervisor until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("%w: orchestrator already started", errors.ErrConflict)
	}
	o.started = true
	for i, ch := range o.shards {
		o.supervisor.Add(workers.NewPoolUnitWorker(i, ch, o.handler, o.handleTimeout, o.log))
	}
	o.supervisor.Add(o.extra...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator", "shards", len(o.shards), "extra_workers", len(o.extra))
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised workers. Events still queued are dropped.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
