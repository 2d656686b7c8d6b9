package domain

import (
	stderrors "errors"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"secret-santa/errors"
)

type (
	RoomID   string
	JoinCode string
)

const MaxTitleLen = 64

var validate = validator.New()

// RoomSpec is what an organizer chooses when creating a room.
type RoomSpec struct {
	Title    string    `validate:"required,max=64"`
	Budget   Budget    `validate:"oneof=500 750 1000 1250 1500 2500"`
	GiftDate time.Time `validate:"required"`
}

// Validate checks the settings against the field rules and maps failures to domain errors.
func (s RoomSpec) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return err
	}
	switch fe := fieldErrors[0]; fe.Field() {
	case "Budget":
		return errors.ErrInvalidBudget
	case "GiftDate":
		return errors.ErrInvalidDate
	default:
		if fe.Tag() == "max" {
			return errors.ErrFieldTooLong
		}
		return errors.ErrEmptyField
	}
}

// Room is one gift exchange with its own roster.
type Room struct {
	ID             RoomID
	Title          string
	AdminID        UserID
	Budget         Budget
	GiftDate       time.Time
	Participants   map[UserID]*Participant
	AssignmentDone bool
	Active         bool
	JoinCode       JoinCode
	CreatedAt      time.Time
}

// NewRoom builds an active room with its organizer already registered.
func NewRoom(id RoomID, code JoinCode, spec RoomSpec, admin Participant, now time.Time) (*Room, error) {
	spec.Title = strings.TrimSpace(spec.Title)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if DatePassed(spec.GiftDate, now) {
		return nil, errors.ErrInvalidDate
	}
	admin.TargetID = nil
	if admin.JoinedAt.IsZero() {
		admin.JoinedAt = now.UTC()
	}
	return &Room{
		ID:           id,
		Title:        spec.Title,
		AdminID:      admin.UserID,
		Budget:       spec.Budget,
		GiftDate:     CalendarDay(spec.GiftDate),
		Participants: map[UserID]*Participant{admin.UserID: &admin},
		Active:       true,
		JoinCode:     code,
		CreatedAt:    now.UTC(),
	}, nil
}

// IsAdmin reports whether userID organizes the room.
func (r *Room) IsAdmin(userID UserID) bool {
	return r.AdminID == userID
}

// Has reports membership.
func (r *Room) Has(userID UserID) bool {
	_, ok := r.Participants[userID]
	return ok
}

// Join registers a new participant.
// The exchange date check comes first: once the day has come, joining is refused for good.
func (r *Room) Join(p Participant, now time.Time) error {
	if DatePassed(r.GiftDate, now) {
		return errors.ErrExchangeDatePassed
	}
	if !r.Active {
		return errors.ErrRoomInactive
	}
	if r.Has(p.UserID) {
		return errors.ErrAlreadyJoined
	}
	p.TargetID = nil
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now.UTC()
	}
	r.Participants[p.UserID] = &p
	return nil
}

// Leave removes a non-organizer participant. After the draw every giver
// holds a recipient, so nobody may leave anymore.
func (r *Room) Leave(userID UserID) error {
	if r.IsAdmin(userID) {
		return errors.ErrAdminCannotLeave
	}
	if !r.Has(userID) {
		return errors.ErrParticipantNotFound
	}
	if r.AssignmentDone {
		return errors.ErrAssignmentAlreadyDone
	}
	delete(r.Participants, userID)
	return nil
}

// UpdateProfile edits one field of a participant's profile before the draw.
func (r *Room) UpdateProfile(userID UserID, field ProfileField, value string) error {
	p, ok := r.Participants[userID]
	if !ok {
		return errors.ErrParticipantNotFound
	}
	if r.AssignmentDone {
		return errors.ErrAssignmentAlreadyDone
	}
	updated := p.clone()
	if err := updated.Set(field, value); err != nil {
		return err
	}
	r.Participants[userID] = &updated
	return nil
}

// RefreshHandle keeps the public alias in sync with the transport.
// It is not a profile field and may change after the draw.
func (r *Room) RefreshHandle(userID UserID, handle string) bool {
	p, ok := r.Participants[userID]
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if !ok || handle == "" || p.Handle == handle {
		return false
	}
	p.Handle = handle
	return true
}

// Members lists participants by join order.
func (r *Room) Members() []Participant {
	members := lo.MapToSlice(r.Participants, func(_ UserID, p *Participant) Participant {
		return p.clone()
	})
	slices.SortFunc(members, func(a, b Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		default:
			return 0
		}
	})
	return members
}

// MemberIDs lists participant ids by join order.
func (r *Room) MemberIDs() []UserID {
	return lo.Map(r.Members(), func(p Participant, _ int) UserID {
		return p.UserID
	})
}

// ApplyAssignment records the draw. The mapping must be a derangement of the current roster.
func (r *Room) ApplyAssignment(assignment map[UserID]UserID) error {
	if r.AssignmentDone {
		return errors.ErrAssignmentAlreadyDone
	}
	if len(r.Participants) < 2 {
		return errors.ErrInsufficientParticipants
	}
	if !IsDerangement(r.MemberIDs(), assignment) {
		return errors.ErrInvalidAssignment
	}
	for giver, recipient := range assignment {
		target := recipient
		r.Participants[giver].TargetID = &target
	}
	r.AssignmentDone = true
	return nil
}

// RecipientOf returns the participant userID has to offer a gift to.
func (r *Room) RecipientOf(userID UserID) (Participant, error) {
	if !r.AssignmentDone {
		return Participant{}, errors.ErrAssignmentNotDone
	}
	giver, ok := r.Participants[userID]
	if !ok {
		return Participant{}, errors.ErrParticipantNotFound
	}
	if giver.TargetID == nil {
		// Joined after the draw.
		return Participant{}, errors.ErrAssignmentNotDone
	}
	target, ok := r.Participants[*giver.TargetID]
	if !ok {
		return Participant{}, errors.ErrParticipantNotFound
	}
	return target.clone(), nil
}

// Clone deep-copies the room so callers never share maps with the store.
func (r *Room) Clone() Room {
	c := *r
	c.Participants = make(map[UserID]*Participant, len(r.Participants))
	for id, p := range r.Participants {
		cp := p.clone()
		c.Participants[id] = &cp
	}
	return c
}

// IsDerangement reports whether assignment is a bijection over ids with no fixed point.
func IsDerangement(ids []UserID, assignment map[UserID]UserID) bool {
	if len(assignment) != len(ids) {
		return false
	}
	members := lo.SliceToMap(ids, func(id UserID) (UserID, struct{}) {
		return id, struct{}{}
	})
	if len(members) != len(ids) {
		return false
	}
	seen := make(map[UserID]struct{}, len(ids))
	for _, giver := range ids {
		recipient, ok := assignment[giver]
		if !ok || recipient == giver {
			return false
		}
		if _, ok := members[recipient]; !ok {
			return false
		}
		if _, dup := seen[recipient]; dup {
			return false
		}
		seen[recipient] = struct{}{}
	}
	return true
}
