package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"secret-santa/contract"
	"secret-santa/domain/raffle"
	"secret-santa/infrastructure/grpc"
	"secret-santa/repositories"
	"secret-santa/runtime"
	"secret-santa/runtime/conversation"
	"secret-santa/runtime/workers"
	"secret-santa/services"
	"secret-santa/sink"
	"secret-santa/storage"
)

// Bot wires the store, the conversation machine and the supervised workers together.
// The transport is provided by the caller.
type Bot struct {
	Store        *storage.EntityStore
	Service      *services.SantaService
	Registry     *runtime.Registry
	Renderer     *conversation.Renderer
	Supervisor   *workers.Supervisor
	Orchestrator *runtime.Orchestrator
	Heartbeat    *workers.HeartbeatWorker
	log          *slog.Logger
}

// NewBot restores the last snapshot from repository and builds every component.
// The status server is started when config.Port is set, the gRPC health server when config.GrpcPort is.
func NewBot(
	config Config,
	notifier contract.Notifier,
	source contract.EventSource,
	repository repositories.ISnapshotRepository,
	botName string,
	log *slog.Logger,
) (*Bot, error) {
	snapshot, err := repository.Load()
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	store := storage.NewEntityStore(log, storage.WithRepository(repository))
	if err := store.Restore(snapshot); err != nil {
		return nil, fmt.Errorf("restoring snapshot: %w", err)
	}

	engine, err := raffle.NewEngine()
	if err != nil {
		return nil, err
	}
	renderer := conversation.NewRenderer(botName)
	dispatcher := sink.NewDispatcher(notifier, log, config.NotifyWorkers, config.DeliveryTimeout)
	service := services.NewSantaService(store, engine, dispatcher, renderer, time.Now, log)

	registry := runtime.NewRegistry()
	machine := conversation.NewMachine(service, notifier, renderer, registry, log)

	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(
		log, supervisor, machine,
		runtime.NewDeduplicator(config.DedupWindow, time.Now),
		config.NumberOfWorkers, config.BufferSize, config.HandleTimeout,
	)
	heartbeat := workers.NewHeartbeatWorker(log, config.HeartbeatInterval, store.Stats, orchestrator.Queues())

	orchestrator.Add(
		workers.NewPollerWorker(source, orchestrator, config.PollMinBackoff, config.PollMaxBackoff, log),
		workers.NewSnapshotWorker(store, config.SnapshotInterval, log),
		heartbeat,
	)

	if config.Port != 0 {
		orchestrator.Add(NewStatusServer(fmt.Sprintf("%s:%d", config.Host, config.Port), StatusSources{
			Stats:    store.Stats,
			Snapshot: store.Snapshot,
			Health:   heartbeat.Latest,
			Sessions: registry.Counts,
			Restarts: supervisor.Restarts,
		}, log))
	}
	if config.GrpcPort != 0 {
		ready := func() bool { return !store.Stats().Dirty }
		orchestrator.Add(grpc.NewHealthWorker(fmt.Sprintf("%s:%d", config.Host, config.GrpcPort),
			config.HeartbeatInterval, ready, log))
	}

	return &Bot{
		Store:        store,
		Service:      service,
		Registry:     registry,
		Renderer:     renderer,
		Supervisor:   supervisor,
		Orchestrator: orchestrator,
		Heartbeat:    heartbeat,
		log:          log,
	}, nil
}

// Run blocks until ctx is cancelled or Stop is called, then writes a last snapshot
// once every worker has returned.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Orchestrator.Start(ctx); err != nil {
		return err
	}
	if err := b.Store.Flush(true); err != nil {
		b.log.Error("Final snapshot failed", "error", err)
		return err
	}
	return nil
}

func (b *Bot) Stop() {
	b.Orchestrator.Stop()
}
