package runtime

import (
	"container/list"
	"sync"
	"time"

	"secret-santa/domain"
)

const DefaultDedupWindow = 5 * time.Minute

type seenEvent struct {
	id         domain.EventID
	admittedAt time.Time
}

// Deduplicator remembers admitted event ids for a fixed window.
// Entries are kept in admission order, so eviction only ever pops from the front
// and can never drop an id that is still inside the window.
type Deduplicator struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seen   map[domain.EventID]*list.Element
	order  *list.List
}

func NewDeduplicator(window time.Duration, now func() time.Time) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Deduplicator{
		window: window,
		now:    now,
		seen:   make(map[domain.EventID]*list.Element),
		order:  list.New(),
	}
}

// Admit returns true the first time id is seen within the window.
func (d *Deduplicator) Admit(id domain.EventID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.evict(now)
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = d.order.PushBack(seenEvent{id: id, admittedAt: now})
	return true
}

// Forget releases id so that a redelivery is admitted again.
func (d *Deduplicator) Forget(id domain.EventID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

// Len is the number of ids currently remembered.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduplicator) evict(now time.Time) {
	for front := d.order.Front(); front != nil; front = d.order.Front() {
		entry := front.Value.(seenEvent)
		// Clock going backwards must not evict anything.
		if now.Sub(entry.admittedAt) <= d.window {
			return
		}
		d.order.Remove(front)
		delete(d.seen, entry.id)
	}
}
