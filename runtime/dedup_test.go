package runtime

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secret-santa/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestDeduplicator_Admit_Once(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)}
	dedup := NewDeduplicator(5*time.Minute, clock.Now)

	req.True(dedup.Admit(1))
	req.False(dedup.Admit(1))
	req.True(dedup.Admit(2))

	// Still refused at the very edge of the window
	clock.Advance(5 * time.Minute)
	req.False(dedup.Admit(1))
}

func TestDeduplicator_Evicts_After_Window(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)}
	dedup := NewDeduplicator(5*time.Minute, clock.Now)

	// Given two ids admitted one minute apart
	req.True(dedup.Admit(1))
	clock.Advance(time.Minute)
	req.True(dedup.Admit(2))

	// When the first one falls out of the window
	clock.Advance(4*time.Minute + time.Second)

	// Then only the second is still remembered
	req.True(dedup.Admit(1))
	req.False(dedup.Admit(2))
	req.Equal(2, dedup.Len())
}

func TestDeduplicator_Forget(t *testing.T) {
	req := require.New(t)
	dedup := NewDeduplicator(time.Minute, nil)

	req.True(dedup.Admit(1))
	req.True(dedup.Admit(2))

	dedup.Forget(1)
	dedup.Forget(42)

	req.Equal(1, dedup.Len())
	req.True(dedup.Admit(1))
	req.False(dedup.Admit(2))
}

func TestDeduplicator_Clock_Going_Backwards(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)}
	dedup := NewDeduplicator(time.Minute, clock.Now)

	req.True(dedup.Admit(1))
	clock.Advance(-time.Hour)
	req.False(dedup.Admit(1))
}

func TestDeduplicator_Concurrent_Admission(t *testing.T) {
	req := require.New(t)
	dedup := NewDeduplicator(time.Minute, nil)
	var admitted atomic.Int64
	var wg sync.WaitGroup

	// When 50 goroutines race on 100 ids each
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range 100 {
				if dedup.Admit(domain.EventID(id)) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// Then each id was admitted exactly once
	req.Equal(int64(100), admitted.Load())
}
