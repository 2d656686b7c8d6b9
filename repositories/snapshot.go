//go:generate go run go.uber.org/mock/mockgen -source=snapshot.go -destination=../mocks/mock_snapshot_repository.go -package=mocks
package repositories

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"secret-santa/domain"
	"secret-santa/errors"
)

// ISnapshotRepository persists the whole entity state in one go.
// Load returns an empty snapshot when nothing was saved yet.
type ISnapshotRepository interface {
	Save(snapshot Snapshot) error
	Load() (Snapshot, error)
}

// Snapshot is the persisted document: every room with its participants,
// and the active room of each user.
type Snapshot struct {
	Rooms       []RoomRecord     `cbor:"rooms" json:"rooms"`
	ActiveRooms map[int64]string `cbor:"active_rooms" json:"active_rooms"`
}

type RoomRecord struct {
	ID             string              `cbor:"id" json:"id"`
	Title          string              `cbor:"title" json:"title"`
	AdminID        int64               `cbor:"admin_id" json:"admin_id"`
	Budget         int                 `cbor:"budget" json:"budget"`
	GiftDate       string              `cbor:"gift_date" json:"gift_date"`
	AssignmentDone bool                `cbor:"assignment_done" json:"assignment_done"`
	Active         bool                `cbor:"active" json:"active"`
	JoinCode       string              `cbor:"join_code" json:"join_code"`
	CreatedAt      int64               `cbor:"created_at" json:"created_at"`
	Participants   []ParticipantRecord `cbor:"participants" json:"participants"`
}

type ParticipantRecord struct {
	UserID       int64  `cbor:"user_id" json:"user_id"`
	DisplayName  string `cbor:"display_name" json:"display_name"`
	Handle       string `cbor:"handle,omitempty" json:"handle,omitempty"`
	Wishlist     string `cbor:"wishlist" json:"wishlist"`
	AntiWishlist string `cbor:"anti_wishlist" json:"anti_wishlist"`
	TargetID     *int64 `cbor:"target_id,omitempty" json:"target_id,omitempty"`
	JoinedAt     int64  `cbor:"joined_at" json:"joined_at"`
}

// FromRoom converts a room into its persisted form.
// Participants keep the room's join order.
func FromRoom(room domain.Room) RoomRecord {
	return RoomRecord{
		ID:             string(room.ID),
		Title:          room.Title,
		AdminID:        int64(room.AdminID),
		Budget:         int(room.Budget),
		GiftDate:       domain.FormatDate(room.GiftDate),
		AssignmentDone: room.AssignmentDone,
		Active:         room.Active,
		JoinCode:       string(room.JoinCode),
		CreatedAt:      room.CreatedAt.UnixNano(),
		Participants:   lo.Map(room.Members(), fromParticipant),
	}
}

func fromParticipant(p domain.Participant, _ int) ParticipantRecord {
	var target *int64
	if p.TargetID != nil {
		target = lo.ToPtr(int64(*p.TargetID))
	}
	return ParticipantRecord{
		UserID:       int64(p.UserID),
		DisplayName:  p.DisplayName,
		Handle:       p.Handle,
		Wishlist:     p.Wishlist,
		AntiWishlist: p.AntiWishlist,
		TargetID:     target,
		JoinedAt:     p.JoinedAt.UnixNano(),
	}
}

// ToRoom rebuilds a room and checks the invariants a hand edited
// or truncated document could break.
func ToRoom(record RoomRecord) (*domain.Room, error) {
	giftDate, err := domain.ParseGiftDate(record.GiftDate)
	if err != nil {
		return nil, fmt.Errorf("%w: room %s: gift date %q", errors.ErrSnapshotCorrupt, record.ID, record.GiftDate)
	}
	room := &domain.Room{
		ID:             domain.RoomID(record.ID),
		Title:          record.Title,
		AdminID:        domain.UserID(record.AdminID),
		Budget:         domain.Budget(record.Budget),
		GiftDate:       giftDate,
		AssignmentDone: record.AssignmentDone,
		Active:         record.Active,
		JoinCode:       domain.JoinCode(record.JoinCode),
		CreatedAt:      time.Unix(0, record.CreatedAt).UTC(),
		Participants:   make(map[domain.UserID]*domain.Participant, len(record.Participants)),
	}
	for _, pr := range record.Participants {
		p := toParticipant(pr)
		if room.Has(p.UserID) {
			return nil, fmt.Errorf("%w: room %s: duplicate participant %d", errors.ErrSnapshotCorrupt, record.ID, pr.UserID)
		}
		room.Participants[p.UserID] = &p
	}
	if !room.Has(room.AdminID) {
		return nil, fmt.Errorf("%w: room %s: organizer is not a participant", errors.ErrSnapshotCorrupt, record.ID)
	}
	for _, p := range room.Participants {
		if p.TargetID != nil && !room.Has(*p.TargetID) {
			return nil, fmt.Errorf("%w: room %s: dangling recipient of %d", errors.ErrSnapshotCorrupt, record.ID, p.UserID)
		}
	}
	return room, nil
}

func toParticipant(record ParticipantRecord) domain.Participant {
	var target *domain.UserID
	if record.TargetID != nil {
		target = lo.ToPtr(domain.UserID(*record.TargetID))
	}
	return domain.Participant{
		UserID:       domain.UserID(record.UserID),
		DisplayName:  record.DisplayName,
		Handle:       record.Handle,
		Wishlist:     record.Wishlist,
		AntiWishlist: record.AntiWishlist,
		TargetID:     target,
		JoinedAt:     time.Unix(0, record.JoinedAt).UTC(),
	}
}
