package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"secret-santa/domain"
	"secret-santa/domain/raffle"
	"secret-santa/errors"
	"secret-santa/mocks"
	"secret-santa/sink"
	"secret-santa/storage"
)

var (
	now      = time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC)
	giftDate = time.Date(2025, time.December, 25, 0, 0, 0, 0, time.UTC)
)

type plainComposer struct{}

func (plainComposer) RecipientNotice(room domain.Room, recipient domain.Participant) domain.Message {
	return domain.Message{Text: fmt.Sprintf("%s: %d", room.Title, recipient.UserID)}
}

func (plainComposer) RoomDeletedNotice(room domain.Room) domain.Message {
	return domain.Message{Text: room.Title + " deleted"}
}

func newService(t *testing.T, notifier *mocks.MockNotifier) *SantaService {
	t.Helper()
	log := slog.Default()
	clock := func() time.Time { return now }
	engine, err := raffle.NewEngine()
	require.NoError(t, err)
	store := storage.NewEntityStore(log, storage.WithClock(clock))
	dispatcher := sink.NewDispatcher(notifier, log, 4, time.Second)
	return NewSantaService(store, engine, dispatcher, plainComposer{}, clock, log)
}

func member(t *testing.T, id domain.UserID) domain.Participant {
	t.Helper()
	p, err := domain.NewParticipant(id, fmt.Sprintf("User %d", id), "", "", "", time.Time{})
	require.NoError(t, err)
	return p
}

func TestSantaService_RunRaffle_Notifies_Each_Giver(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	svc := newService(t, notifier)
	room, err := svc.CreateRoom("Office 2024", member(t, 1), 1000, giftDate)
	req.NoError(err)
	req.NoError(svc.JoinRoom(room.ID, member(t, 2)))
	req.NoError(svc.JoinRoom(room.ID, member(t, 3)))

	// Expect one private message per giver, never about themselves
	var mu sync.Mutex
	received := map[domain.UserID]string{}
	notifier.EXPECT().SendText(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, userID domain.UserID, msg domain.Message) (domain.MessageRef, error) {
			mu.Lock()
			defer mu.Unlock()
			received[userID] = msg.Text
			return domain.MessageRef{}, nil
		}).Times(3)

	// When the organizer runs the raffle
	drawn, report, err := svc.RunRaffle(context.Background(), room.ID, 1)

	// Then
	req.NoError(err)
	req.True(drawn.AssignmentDone)
	req.Equal(3, report.Delivered)
	for giver, text := range received {
		req.NotEqual(fmt.Sprintf("Office 2024: %d", giver), text)
	}

	// And a second raffle fails without notifying anybody
	_, _, err = svc.RunRaffle(context.Background(), room.ID, 1)
	req.ErrorIs(err, errors.ErrAssignmentAlreadyDone)
}

func TestSantaService_RunRaffle_Reports_Failed_Deliveries(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	svc := newService(t, notifier)
	room, err := svc.CreateRoom("Office 2024", member(t, 1), 1000, giftDate)
	req.NoError(err)
	req.NoError(svc.JoinRoom(room.ID, member(t, 2)))

	notifier.EXPECT().SendText(gomock.Any(), domain.UserID(1), gomock.Any()).Return(domain.MessageRef{}, nil)
	notifier.EXPECT().SendText(gomock.Any(), domain.UserID(2), gomock.Any()).Return(domain.MessageRef{}, errors.ErrRateLimited)

	drawn, report, err := svc.RunRaffle(context.Background(), room.ID, 1)

	// The draw stands even though one participant was not reached
	req.NoError(err)
	req.True(drawn.AssignmentDone)
	req.Equal(1, report.Delivered)
	req.Contains(report.Failed, domain.UserID(2))
}

type blankComposer struct{ plainComposer }

func (blankComposer) RecipientNotice(domain.Room, domain.Participant) domain.Message {
	return domain.Message{}
}

func TestSantaService_RunRaffle_Kept_When_Notices_Cannot_Be_Built(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	log := slog.Default()
	clock := func() time.Time { return now }
	engine, err := raffle.NewEngine()
	req.NoError(err)
	store := storage.NewEntityStore(log, storage.WithClock(clock))
	svc := NewSantaService(store, engine, sink.NewDispatcher(notifier, log, 4, time.Second), blankComposer{}, clock, log)
	room, err := svc.CreateRoom("Office 2024", member(t, 1), 1000, giftDate)
	req.NoError(err)
	req.NoError(svc.JoinRoom(room.ID, member(t, 2)))

	// Expect nothing to be sent
	notifier.EXPECT().SendText(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// When the raffle runs but its notices are empty
	drawn, report, err := svc.RunRaffle(context.Background(), room.ID, 1)

	// Then the draw stands with an empty report
	req.NoError(err)
	req.True(drawn.AssignmentDone)
	req.Zero(report.Delivered)
	req.Empty(report.Failed)
	stored, err := svc.Room(room.ID)
	req.NoError(err)
	req.True(stored.AssignmentDone)
}

func TestSantaService_DeleteRoom_Notifies_Others(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	svc := newService(t, notifier)
	room, err := svc.CreateRoom("Office 2024", member(t, 1), 1000, giftDate)
	req.NoError(err)
	for i := 2; i <= 5; i++ {
		req.NoError(svc.JoinRoom(room.ID, member(t, domain.UserID(i))))
	}

	// Given a participant cannot delete
	_, _, err = svc.DeleteRoom(context.Background(), room.ID, 2)
	req.ErrorIs(err, errors.ErrNotAuthorized)

	// Expect the four other participants to be told
	notifier.EXPECT().SendText(gomock.Any(), gomock.Not(domain.UserID(1)), domain.Message{Text: "Office 2024 deleted"}).
		Return(domain.MessageRef{}, nil).Times(4)

	deleted, report, err := svc.DeleteRoom(context.Background(), room.ID, 1)
	req.NoError(err)
	req.Equal(room.ID, deleted.ID)
	req.Equal(4, report.Delivered)
	_, err = svc.Room(room.ID)
	req.ErrorIs(err, errors.ErrRoomNotFound)
}
