package test

import (
	"context"
	"strings"
	"sync"
	"time"

	"secret-santa/contract"
	"secret-santa/domain"
)

var (
	_ contract.Notifier    = (*Chat)(nil)
	_ contract.EventSource = (*Chat)(nil)
)

// Chat stands in for the messenger: tests push updates into it and read back what the bot showed.
type Chat struct {
	mu      sync.Mutex
	pending []domain.Event
	wake    chan struct{}
	seen    map[domain.UserID][]domain.Message
	acks    int
	seq     domain.EventID
	onSend  func(domain.UserID, domain.Message)
}

func NewChat(onSend func(domain.UserID, domain.Message)) *Chat {
	return &Chat{
		wake:   make(chan struct{}, 1),
		seen:   map[domain.UserID][]domain.Message{},
		onSend: onSend,
	}
}

// Poll hands out every pending update, waiting a little when there is none.
func (c *Chat) Poll(ctx context.Context) ([]domain.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.wake:
	case <-time.After(50 * time.Millisecond):
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.pending
	c.pending = nil
	return batch, nil
}

func (c *Chat) SendText(_ context.Context, userID domain.UserID, msg domain.Message) (domain.MessageRef, error) {
	return c.record(userID, msg), nil
}

func (c *Chat) EditText(_ context.Context, ref domain.MessageRef, msg domain.Message) error {
	c.record(domain.UserID(ref.ChatID), msg)
	return nil
}

func (c *Chat) AcknowledgeInteraction(context.Context, string, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks++
	return nil
}

// Text queues a typed message and returns its event.
func (c *Chat) Text(from domain.Sender, text string) domain.Event {
	c.mu.Lock()
	c.seq++
	event := domain.TextEvent{ID: c.seq, Sender: from, Text: text}
	c.mu.Unlock()
	c.Deliver(event)
	return event
}

// Press queues a button press on the last message the user received.
func (c *Chat) Press(from domain.Sender, payload string) domain.Event {
	c.mu.Lock()
	c.seq++
	event := domain.InteractionEvent{
		ID:            c.seq,
		Sender:        from,
		InteractionID: "cb",
		Payload:       payload,
		Origin:        &domain.MessageRef{ChatID: int64(from.ID), MessageID: int64(len(c.seen[from.ID]))},
	}
	c.mu.Unlock()
	c.Deliver(event)
	return event
}

// Deliver queues events as they are, redeliveries included.
func (c *Chat) Deliver(events ...domain.Event) {
	c.mu.Lock()
	c.pending = append(c.pending, events...)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Count returns how many messages the user received so far.
func (c *Chat) Count(userID domain.UserID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen[userID])
}

// Since returns the texts the user received after the first n messages.
func (c *Chat) Since(userID domain.UserID, n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.seen[userID]
	if n > len(msgs) {
		return nil
	}
	texts := make([]string, 0, len(msgs)-n)
	for _, m := range msgs[n:] {
		texts = append(texts, m.Text)
	}
	return texts
}

// Received tells whether one of the texts after the first n contains part.
func (c *Chat) Received(userID domain.UserID, n int, part string) bool {
	for _, text := range c.Since(userID, n) {
		if strings.Contains(text, part) {
			return true
		}
	}
	return false
}

func (c *Chat) record(userID domain.UserID, msg domain.Message) domain.MessageRef {
	c.mu.Lock()
	c.seen[userID] = append(c.seen[userID], msg)
	ref := domain.MessageRef{ChatID: int64(userID), MessageID: int64(len(c.seen[userID]))}
	c.mu.Unlock()
	if c.onSend != nil {
		c.onSend(userID, msg)
	}
	return ref
}
