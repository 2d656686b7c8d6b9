package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"secret-santa/domain"
	"secret-santa/sink"
	"secret-santa/storage"
)

type ISantaService interface {
	CreateRoom(title string, admin domain.Participant, budget domain.Budget, giftDate time.Time) (domain.Room, error)
	JoinRoom(roomID domain.RoomID, participant domain.Participant) error
	LeaveRoom(roomID domain.RoomID, userID domain.UserID) error
	DeleteRoom(ctx context.Context, roomID domain.RoomID, requesterID domain.UserID) (domain.Room, sink.Report, error)
	UpdateProfile(roomID domain.RoomID, userID domain.UserID, field domain.ProfileField, value string) error
	RunRaffle(ctx context.Context, roomID domain.RoomID, requesterID domain.UserID) (domain.Room, sink.Report, error)
	RefreshHandle(userID domain.UserID, handle string)

	Room(roomID domain.RoomID) (domain.Room, error)
	RoomByCode(code string) (domain.Room, error)
	RoomsOf(userID domain.UserID) []domain.Room
	ActiveRoom(userID domain.UserID) (domain.Room, error)
	SetActiveRoom(userID domain.UserID, roomID domain.RoomID) error
	Now() time.Time
}

// Composer builds the messages pushed to participants outside of their own conversation.
type Composer interface {
	RecipientNotice(room domain.Room, recipient domain.Participant) domain.Message
	RoomDeletedNotice(room domain.Room) domain.Message
}

// Broadcaster fans a message out to many users.
type Broadcaster interface {
	NotifyAll(ctx context.Context, recipients []domain.UserID, messageFor func(domain.UserID) domain.Message) (sink.Report, error)
}

// SantaService runs every use case of the bot. Store mutations and their snapshot
// are committed first; notifications are sent afterwards, outside the store lock.
type SantaService struct {
	store      *storage.EntityStore
	engine     storage.Assigner
	dispatcher Broadcaster
	composer   Composer
	now        func() time.Time
	log        *slog.Logger
}

func NewSantaService(
	store *storage.EntityStore,
	engine storage.Assigner,
	dispatcher Broadcaster,
	composer Composer,
	now func() time.Time,
	log *slog.Logger,
) *SantaService {
	if now == nil {
		now = time.Now
	}
	return &SantaService{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		composer:   composer,
		now:        now,
		log:        log,
	}
}

func (s *SantaService) CreateRoom(title string, admin domain.Participant, budget domain.Budget, giftDate time.Time) (domain.Room, error) {
	return s.store.CreateRoom(title, admin, budget, giftDate)
}

func (s *SantaService) JoinRoom(roomID domain.RoomID, participant domain.Participant) error {
	return s.store.JoinRoom(roomID, participant)
}

func (s *SantaService) LeaveRoom(roomID domain.RoomID, userID domain.UserID) error {
	return s.store.LeaveRoom(roomID, userID)
}

// DeleteRoom removes the room then tells every other former participant.
func (s *SantaService) DeleteRoom(ctx context.Context, roomID domain.RoomID, requesterID domain.UserID) (domain.Room, sink.Report, error) {
	deleted, err := s.store.DeleteRoom(roomID, requesterID)
	if err != nil {
		return domain.Room{}, sink.Report{}, err
	}
	others := lo.Without(deleted.MemberIDs(), requesterID)
	if len(others) == 0 {
		return deleted, sink.Report{}, nil
	}
	notice := s.composer.RoomDeletedNotice(deleted)
	report, err := s.dispatcher.NotifyAll(ctx, others, func(domain.UserID) domain.Message {
		return notice
	})
	if err != nil {
		// The room is gone whatever happened to the notices.
		s.log.Error("Room deletion notices not sent", "room", roomID, "error", err)
	}
	return deleted, report, nil
}

func (s *SantaService) UpdateProfile(roomID domain.RoomID, userID domain.UserID, field domain.ProfileField, value string) error {
	return s.store.UpdateProfile(roomID, userID, field, value)
}

// RunRaffle draws the room and privately tells each giver who they offer a gift to.
// The report counts successful deliveries; failed ones do not undo the draw.
func (s *SantaService) RunRaffle(ctx context.Context, roomID domain.RoomID, requesterID domain.UserID) (domain.Room, sink.Report, error) {
	room, err := s.store.RunAssignment(roomID, requesterID, s.engine)
	if err != nil {
		return domain.Room{}, sink.Report{}, err
	}
	report, err := s.dispatcher.NotifyAll(ctx, room.MemberIDs(), func(giver domain.UserID) domain.Message {
		recipient, err := room.RecipientOf(giver)
		if err != nil {
			return domain.Message{}
		}
		return s.composer.RecipientNotice(room, recipient)
	})
	if err != nil {
		// The draw is committed; givers can still open their recipient from the menu.
		s.log.Error("Raffle notices not sent", "room", roomID, "error", err)
		return room, sink.Report{}, nil
	}
	s.log.Info("Raffle notifications", "room", roomID, "delivered", report.Delivered, "total", report.Total())
	return room, report, nil
}

func (s *SantaService) RefreshHandle(userID domain.UserID, handle string) {
	s.store.RefreshHandle(userID, handle)
}

func (s *SantaService) Room(roomID domain.RoomID) (domain.Room, error) {
	return s.store.Room(roomID)
}

func (s *SantaService) RoomByCode(code string) (domain.Room, error) {
	return s.store.RoomByCode(code)
}

func (s *SantaService) RoomsOf(userID domain.UserID) []domain.Room {
	return s.store.RoomsOf(userID)
}

func (s *SantaService) ActiveRoom(userID domain.UserID) (domain.Room, error) {
	return s.store.ActiveRoom(userID)
}

func (s *SantaService) SetActiveRoom(userID domain.UserID, roomID domain.RoomID) error {
	return s.store.SetActiveRoom(userID, roomID)
}

func (s *SantaService) Now() time.Time {
	return s.now()
}
