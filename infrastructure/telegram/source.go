package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"secret-santa/contract"
	"secret-santa/domain"
)

var _ contract.EventSource = (*Source)(nil)

type updatesFetcher interface {
	GetUpdates(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]Update, error)
}

// Source long polls updates and translates them into domain events.
// The offset moves past every fetched update, so Telegram drops them on the next poll.
// Poll is not safe for concurrent use.
type Source struct {
	fetcher updatesFetcher
	offset  int64
	limit   int
	timeout time.Duration
	log     *slog.Logger
}

func NewSource(fetcher updatesFetcher, limit int, timeout time.Duration, log *slog.Logger) *Source {
	return &Source{fetcher: fetcher, limit: limit, timeout: timeout, log: log}
}

func (s *Source) Poll(ctx context.Context) ([]domain.Event, error) {
	updates, err := s.fetcher.GetUpdates(ctx, s.offset, s.limit, s.timeout)
	if err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(updates))
	for _, u := range updates {
		if u.UpdateID >= s.offset {
			s.offset = u.UpdateID + 1
		}
		evt, ok := toEvent(u)
		if !ok {
			s.log.Debug("Update ignored", "update", u.UpdateID)
			continue
		}
		events = append(events, evt)
	}
	return events, nil
}

// toEvent keeps private text messages and button presses from humans.
func toEvent(u Update) (domain.Event, bool) {
	id := domain.EventID(u.UpdateID)
	switch {
	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.From.IsBot || m.Chat.Type != "private" || m.Text == "" {
			return nil, false
		}
		return domain.TextEvent{ID: id, Sender: toSender(*m.From), Text: m.Text}, true
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From.IsBot {
			return nil, false
		}
		evt := domain.InteractionEvent{
			ID:            id,
			Sender:        toSender(q.From),
			InteractionID: q.ID,
			Payload:       q.Data,
		}
		if q.Message != nil {
			evt.Origin = &domain.MessageRef{ChatID: q.Message.Chat.ID, MessageID: q.Message.MessageID}
		}
		return evt, true
	default:
		return nil, false
	}
}

func toSender(u User) domain.Sender {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = fmt.Sprintf("User_%d", u.ID)
	}
	return domain.Sender{ID: domain.UserID(u.ID), DisplayName: name, Handle: u.Username}
}
