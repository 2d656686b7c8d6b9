package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"secret-santa/domain"
	"secret-santa/mocks"
	"secret-santa/runtime/workers"
)

// slowHandler records the order of events per user and flags overlapping calls for the same user.
type slowHandler struct {
	mu       sync.Mutex
	busy     map[domain.UserID]bool
	seen     map[domain.UserID][]domain.EventID
	overlaps int
}

func newSlowHandler() *slowHandler {
	return &slowHandler{busy: map[domain.UserID]bool{}, seen: map[domain.UserID][]domain.EventID{}}
}

func (h *slowHandler) Handle(_ context.Context, evt domain.Event) error {
	user := evt.From().ID
	h.mu.Lock()
	if h.busy[user] {
		h.overlaps++
	}
	h.busy[user] = true
	h.mu.Unlock()

	time.Sleep(time.Millisecond)

	h.mu.Lock()
	h.busy[user] = false
	h.seen[user] = append(h.seen[user], evt.EventID())
	h.mu.Unlock()
	return nil
}

func (h *slowHandler) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ids := range h.seen {
		n += len(ids)
	}
	return n
}

func event(id domain.EventID, user domain.UserID) domain.Event {
	return domain.TextEvent{ID: id, Sender: domain.Sender{ID: user}, Text: "hi"}
}

func TestOrchestrator_Keeps_Per_User_Order(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	handler := newSlowHandler()
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), handler, NewDeduplicator(0, nil), 4, 16, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Start(ctx) }()

	// Given five users sending twenty events each
	for i := 0; i < 20; i++ {
		for user := domain.UserID(1); user <= 5; user++ {
			req.NoError(o.Submit(ctx, event(domain.EventID(int(user)*1000+i), user)))
		}
	}

	// Then every event is handled, in submission order per user, never twice at once
	req.Eventually(func() bool { return handler.total() == 100 }, 5*time.Second, 10*time.Millisecond)
	handler.mu.Lock()
	defer handler.mu.Unlock()
	req.Zero(handler.overlaps)
	for user, ids := range handler.seen {
		for i, id := range ids {
			req.Equal(domain.EventID(int(user)*1000+i), id)
		}
	}
}

func TestOrchestrator_Drops_Redelivered_Events(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	handler := mocks.NewMockEventHandler(ctrl)
	log := slog.Default()
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), handler, NewDeduplicator(time.Minute, nil), 2, 8, time.Second)

	// Expect a single handling
	handled := make(chan struct{}, 2)
	handler.EXPECT().Handle(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.Event) error {
			handled <- struct{}{}
			return nil
		}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = o.Start(ctx) }()

	// When the transport delivers the same event twice
	req.NoError(o.Submit(ctx, event(42, 1)))
	req.NoError(o.Submit(ctx, event(42, 1)))

	<-handled
	select {
	case <-handled:
		req.Fail("event handled twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOrchestrator_Submit_Honors_Context(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), newSlowHandler(), NewDeduplicator(0, nil), 1, 1, time.Second)

	// Given nobody consumes the single slot
	req.NoError(o.Submit(context.Background(), event(1, 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req.ErrorIs(o.Submit(ctx, event(2, 1)), context.DeadlineExceeded)
}

func TestOrchestrator_Cancelled_Submit_Allows_Redelivery(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	dedup := NewDeduplicator(time.Minute, nil)
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), newSlowHandler(), dedup, 1, 1, time.Second)

	// Given an event that could not be queued before its context ended
	req.NoError(o.Submit(context.Background(), event(1, 1)))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req.ErrorIs(o.Submit(ctx, event(2, 1)), context.DeadlineExceeded)
	req.Equal(1, dedup.Len())

	// When the shard drains and the same update is delivered again
	req.Equal(domain.EventID(1), (<-o.shards[0]).EventID())
	req.NoError(o.Submit(context.Background(), event(2, 1)))

	// Then it is queued this time
	req.Equal(domain.EventID(2), (<-o.shards[0]).EventID())
}

func TestOrchestrator_Same_User_Same_Shard(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	o := NewOrchestrator(log, workers.NewSupervisor(log, 0), newSlowHandler(), NewDeduplicator(0, nil), 8, 1, time.Second)

	for user := domain.UserID(1); user < 100; user++ {
		shard := o.shardOf(user)
		req.Equal(shard, o.shardOf(user))
		req.Less(shard, 8)
	}
	req.Len(o.Queues(), 8)
}
