package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"

	"secret-santa/contract"
	"secret-santa/storage"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

// Health is what the bot reports about itself.
type Health struct {
	PID        int32             `json:"pid"`
	Status     string            `json:"status"`
	CPUPercent float64           `json:"cpu_percent"`
	RSSBytes   uint64            `json:"rss_bytes"`
	Goroutines int               `json:"goroutines"`
	Store      storage.Stats     `json:"store"`
	Queues     []ChannelCapacity `json:"queues"`
	At         time.Time         `json:"at"`
}

// HeartbeatWorker samples the process and the store periodically,
// logs the figures and keeps the latest sample for the status server.
type HeartbeatWorker struct {
	log      *slog.Logger
	interval time.Duration
	stats    func() storage.Stats
	queues   []NamedChannel
	latest   atomic.Pointer[Health]
}

func NewHeartbeatWorker(
	log *slog.Logger,
	interval time.Duration,
	stats func() storage.Stats,
	queues []NamedChannel,
) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:      log,
		interval: interval,
		stats:    stats,
		queues:   queues,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h, err := w.sample(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.latest.Store(&h)
			w.log.Debug("Heartbeat",
				"rooms", h.Store.Rooms,
				"participants", h.Store.Participants,
				"dirty", h.Store.Dirty,
				"cpu", h.CPUPercent,
				"rss", h.RSSBytes,
				"goroutines", h.Goroutines)
			if h.Store.Dirty {
				w.log.Warn("Store has unsaved changes")
			}
		}
	}
}

// Latest returns the last sample, nil before the first tick.
func (w *HeartbeatWorker) Latest() *Health {
	return w.latest.Load()
}

func (w *HeartbeatWorker) sample(p *process.Process) (Health, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return Health{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return Health{}, err
	}
	status, err := p.Status()
	if err != nil {
		return Health{}, err
	}
	return Health{
		PID:        p.Pid,
		Status:     status,
		CPUPercent: cpuPercent,
		RSSBytes:   memInfo.RSS,
		Goroutines: runtime.NumGoroutine(),
		Store:      w.stats(),
		Queues:     SampleChannels(w.queues),
		At:         time.Now().UTC(),
	}, nil
}
