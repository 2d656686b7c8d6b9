// Package storage owns every room and participant held by the bot.
//
// EntityStore is the only writer of that state. All mutations take a single
// exclusive lock and, once the mutation completed, write the snapshot under the
// same lock so a persisted document never reflects a half applied change.
// Readers get deep copies and never see the store's maps.
package storage

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"secret-santa/domain"
	"secret-santa/errors"
	"secret-santa/repositories"
)

const (
	roomIDLen   = 8
	joinCodeLen = 6
	// Collisions on 8 or 6 hex characters are rare; after this many the id space is considered exhausted.
	maxIDAttempts = 32
)

// Assigner computes a derangement over ids.
type Assigner interface {
	Assign(ids []domain.UserID) (map[domain.UserID]domain.UserID, error)
}

// Stats summarizes the store for status endpoints.
type Stats struct {
	Rooms        int  `json:"rooms"`
	ActiveRooms  int  `json:"active_rooms"`
	Drawn        int  `json:"drawn"`
	Participants int  `json:"participants"`
	Dirty        bool `json:"dirty"`
}

type Option func(*EntityStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *EntityStore) { s.now = now }
}

// WithIDGenerators replaces the room id and join code generators.
func WithIDGenerators(roomID func() domain.RoomID, joinCode func() domain.JoinCode) Option {
	return func(s *EntityStore) {
		s.newRoomID = roomID
		s.newJoinCode = joinCode
	}
}

// WithRepository persists a snapshot after every mutation.
func WithRepository(repository repositories.ISnapshotRepository) Option {
	return func(s *EntityStore) { s.repository = repository }
}

type EntityStore struct {
	mu          sync.Mutex
	rooms       map[domain.RoomID]*domain.Room
	joinCodes   map[domain.JoinCode]domain.RoomID
	activeRooms map[domain.UserID]domain.RoomID
	// dirty is set when the last snapshot write failed.
	dirty bool

	now         func() time.Time
	newRoomID   func() domain.RoomID
	newJoinCode func() domain.JoinCode
	repository  repositories.ISnapshotRepository
	log         *slog.Logger
}

func NewEntityStore(log *slog.Logger, opts ...Option) *EntityStore {
	s := &EntityStore{
		rooms:       make(map[domain.RoomID]*domain.Room),
		joinCodes:   make(map[domain.JoinCode]domain.RoomID),
		activeRooms: make(map[domain.UserID]domain.RoomID),
		now:         time.Now,
		newRoomID:   randomRoomID,
		newJoinCode: randomJoinCode,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomRoomID() domain.RoomID {
	return domain.RoomID(uuid.NewString()[:roomIDLen])
}

func randomJoinCode() domain.JoinCode {
	return domain.JoinCode(strings.ToUpper(uuid.NewString()[:joinCodeLen]))
}

// CreateRoom opens a room whose organizer is admin, and focuses the organizer on it.
func (s *EntityStore) CreateRoom(title string, admin domain.Participant, budget domain.Budget, giftDate time.Time) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.uniqueRoomID()
	if err != nil {
		return domain.Room{}, err
	}
	code, err := s.uniqueJoinCode()
	if err != nil {
		return domain.Room{}, err
	}
	spec := domain.RoomSpec{Title: title, Budget: budget, GiftDate: giftDate}
	room, err := domain.NewRoom(id, code, spec, admin, s.now())
	if err != nil {
		return domain.Room{}, err
	}
	s.rooms[id] = room
	s.joinCodes[code] = id
	s.activeRooms[admin.UserID] = id
	s.persist()
	s.log.Info("Room created", "room", id, "admin", admin.UserID)
	return room.Clone(), nil
}

// JoinRoom registers participant in the room and focuses them on it.
func (s *EntityStore) JoinRoom(roomID domain.RoomID, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return errors.ErrRoomNotFound
	}
	if err := room.Join(participant, s.now()); err != nil {
		return err
	}
	s.activeRooms[participant.UserID] = roomID
	s.persist()
	s.log.Info("Participant joined", "room", roomID, "user", participant.UserID)
	return nil
}

// LeaveRoom removes a non-organizer from the room.
func (s *EntityStore) LeaveRoom(roomID domain.RoomID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return errors.ErrRoomNotFound
	}
	if err := room.Leave(userID); err != nil {
		return err
	}
	if s.activeRooms[userID] == roomID {
		s.refocus(userID)
	}
	s.persist()
	s.log.Info("Participant left", "room", roomID, "user", userID)
	return nil
}

// DeleteRoom removes the room, its participants and every index entry pointing at it.
// The deleted room is returned so that its former members can be told.
func (s *EntityStore) DeleteRoom(roomID domain.RoomID, requesterID domain.UserID) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if !room.IsAdmin(requesterID) {
		return domain.Room{}, errors.ErrNotAuthorized
	}
	deleted := room.Clone()
	delete(s.rooms, roomID)
	delete(s.joinCodes, room.JoinCode)
	for userID := range room.Participants {
		if s.activeRooms[userID] == roomID {
			s.refocus(userID)
		}
	}
	s.persist()
	s.log.Info("Room deleted", "room", roomID, "participants", len(deleted.Participants))
	return deleted, nil
}

// UpdateProfile edits one profile field of userID in the room.
func (s *EntityStore) UpdateProfile(roomID domain.RoomID, userID domain.UserID, field domain.ProfileField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return errors.ErrRoomNotFound
	}
	if err := room.UpdateProfile(userID, field, value); err != nil {
		return err
	}
	s.persist()
	return nil
}

// RunAssignment draws recipients for the room. Only the organizer may do it, and only once.
// The draw executes under the store lock, so two requests for the same room cannot both succeed.
func (s *EntityStore) RunAssignment(roomID domain.RoomID, requesterID domain.UserID, engine Assigner) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if !room.IsAdmin(requesterID) {
		return domain.Room{}, errors.ErrNotAuthorized
	}
	if room.AssignmentDone {
		return domain.Room{}, errors.ErrAssignmentAlreadyDone
	}
	assignment, err := engine.Assign(room.MemberIDs())
	if err != nil {
		return domain.Room{}, err
	}
	if err := room.ApplyAssignment(assignment); err != nil {
		return domain.Room{}, err
	}
	s.persist()
	s.log.Info("Assignment done", "room", roomID, "participants", len(room.Participants))
	return room.Clone(), nil
}

// RefreshHandle updates the public alias of userID in every room they belong to.
func (s *EntityStore) RefreshHandle(userID domain.UserID, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, room := range s.rooms {
		if room.RefreshHandle(userID, handle) {
			changed = true
		}
	}
	if changed {
		s.persist()
	}
}

func (s *EntityStore) Room(roomID domain.RoomID) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	return room.Clone(), nil
}

// RoomByCode resolves a join code, case insensitively.
func (s *EntityStore) RoomByCode(code string) (domain.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Room{}, errors.ErrInvalidJoinCode
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok := s.joinCodes[domain.JoinCode(code)]
	if !ok {
		return domain.Room{}, errors.ErrJoinCodeNotFound
	}
	return s.rooms[roomID].Clone(), nil
}

// RoomsOf lists the rooms userID belongs to, oldest first.
func (s *EntityStore) RoomsOf(userID domain.UserID) []domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Map(s.membership(userID), func(room *domain.Room, _ int) domain.Room {
		return room.Clone()
	})
}

// ActiveRoom returns the room userID is focused on.
// A missing or stale cursor is rebuilt from membership.
func (s *EntityStore) ActiveRoom(userID domain.UserID) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if roomID, ok := s.activeRooms[userID]; ok {
		if room, ok := s.rooms[roomID]; ok && room.Has(userID) {
			return room.Clone(), nil
		}
	}
	roomID, ok := s.refocus(userID)
	if !ok {
		return domain.Room{}, errors.ErrNoActiveRoom
	}
	return s.rooms[roomID].Clone(), nil
}

// SetActiveRoom focuses userID on a room they belong to.
func (s *EntityStore) SetActiveRoom(userID domain.UserID, roomID domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return errors.ErrRoomNotFound
	}
	if !room.Has(userID) {
		return errors.ErrParticipantNotFound
	}
	if s.activeRooms[userID] == roomID {
		return nil
	}
	s.activeRooms[userID] = roomID
	s.persist()
	return nil
}

func (s *EntityStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Rooms: len(s.rooms), Dirty: s.dirty}
	for _, room := range s.rooms {
		stats.Participants += len(room.Participants)
		if room.Active {
			stats.ActiveRooms++
		}
		if room.AssignmentDone {
			stats.Drawn++
		}
	}
	return stats
}

// Snapshot captures rooms and the active room index.
func (s *EntityStore) Snapshot() repositories.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Restore replaces the whole state with snapshot.
// Active room entries pointing at unknown rooms or rooms the user left are dropped.
func (s *EntityStore) Restore(snapshot repositories.Snapshot) error {
	rooms := make(map[domain.RoomID]*domain.Room, len(snapshot.Rooms))
	joinCodes := make(map[domain.JoinCode]domain.RoomID, len(snapshot.Rooms))
	for _, record := range snapshot.Rooms {
		room, err := repositories.ToRoom(record)
		if err != nil {
			return err
		}
		if _, dup := rooms[room.ID]; dup {
			return fmt.Errorf("%w: duplicate room %s", errors.ErrSnapshotCorrupt, room.ID)
		}
		if _, dup := joinCodes[room.JoinCode]; dup {
			return fmt.Errorf("%w: duplicate join code %s", errors.ErrSnapshotCorrupt, room.JoinCode)
		}
		rooms[room.ID] = room
		joinCodes[room.JoinCode] = room.ID
	}
	activeRooms := make(map[domain.UserID]domain.RoomID, len(snapshot.ActiveRooms))
	for rawUserID, rawRoomID := range snapshot.ActiveRooms {
		userID, roomID := domain.UserID(rawUserID), domain.RoomID(rawRoomID)
		if room, ok := rooms[roomID]; ok && room.Has(userID) {
			activeRooms[userID] = roomID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = rooms
	s.joinCodes = joinCodes
	s.activeRooms = activeRooms
	s.dirty = false
	s.log.Info("State restored", "rooms", len(rooms), "active_rooms", len(activeRooms))
	return nil
}

// Flush writes the snapshot if the last write failed, or unconditionally when force is set.
func (s *EntityStore) Flush(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repository == nil || (!force && !s.dirty) {
		return nil
	}
	if err := s.repository.Save(s.snapshot()); err != nil {
		s.dirty = true
		return err
	}
	s.dirty = false
	return nil
}

// persist must be called with the lock held, after the mutation completed.
// A failed write leaves the in-memory change in place; the periodic flush retries it.
func (s *EntityStore) persist() {
	if s.repository == nil {
		return
	}
	if err := s.repository.Save(s.snapshot()); err != nil {
		s.dirty = true
		s.log.Error("Snapshot failed, will retry on next flush", "error", err)
		return
	}
	s.dirty = false
}

func (s *EntityStore) snapshot() repositories.Snapshot {
	rooms := lo.Values(s.rooms)
	slices.SortFunc(rooms, func(a, b *domain.Room) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return repositories.Snapshot{
		Rooms: lo.Map(rooms, func(room *domain.Room, _ int) repositories.RoomRecord {
			return repositories.FromRoom(*room)
		}),
		ActiveRooms: lo.MapEntries(s.activeRooms, func(userID domain.UserID, roomID domain.RoomID) (int64, string) {
			return int64(userID), string(roomID)
		}),
	}
}

// membership lists the rooms of userID by creation time.
func (s *EntityStore) membership(userID domain.UserID) []*domain.Room {
	rooms := lo.Filter(lo.Values(s.rooms), func(room *domain.Room, _ int) bool {
		return room.Has(userID)
	})
	slices.SortFunc(rooms, func(a, b *domain.Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return rooms
}

// refocus points userID at their most recent remaining room, or clears the cursor.
func (s *EntityStore) refocus(userID domain.UserID) (domain.RoomID, bool) {
	rooms := s.membership(userID)
	if len(rooms) == 0 {
		delete(s.activeRooms, userID)
		return "", false
	}
	roomID := rooms[len(rooms)-1].ID
	s.activeRooms[userID] = roomID
	return roomID, true
}

func (s *EntityStore) uniqueRoomID() (domain.RoomID, error) {
	for range maxIDAttempts {
		if id := s.newRoomID(); !s.roomExists(id) {
			return id, nil
		}
	}
	return "", errors.ErrIDSpaceExhausted
}

func (s *EntityStore) roomExists(id domain.RoomID) bool {
	_, ok := s.rooms[id]
	return ok
}

func (s *EntityStore) uniqueJoinCode() (domain.JoinCode, error) {
	for range maxIDAttempts {
		code := s.newJoinCode()
		if _, taken := s.joinCodes[code]; !taken {
			return code, nil
		}
	}
	return "", errors.ErrIDSpaceExhausted
}
