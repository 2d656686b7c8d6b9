package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secret-santa/errors"
)

var now = time.Date(2024, time.December, 1, 12, 0, 0, 0, time.UTC)

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	admin, err := NewParticipant(1, "Alice", "@alice", "books", "socks", now)
	require.NoError(t, err)
	room, err := NewRoom("abcd1234", "ABC123", RoomSpec{
		Title:    "Office 2024",
		Budget:   1000,
		GiftDate: time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC),
	}, admin, now)
	require.NoError(t, err)
	return room
}

func join(t *testing.T, room *Room, id UserID, name string, at time.Time) {
	t.Helper()
	p, err := NewParticipant(id, name, "", "", "", at)
	require.NoError(t, err)
	require.NoError(t, room.Join(p, at))
}

func TestNewRoom_Registers_Admin(t *testing.T) {
	req := require.New(t)

	// When a room is created
	room := newTestRoom(t)

	// Then it is active, not drawn, and its organizer is a participant
	req.True(room.Active)
	req.False(room.AssignmentDone)
	req.True(room.IsAdmin(1))
	req.True(room.Has(1))
	req.Equal("alice", room.Participants[1].Handle)
	req.Equal(Budget(1000), room.Budget)
}

func TestNewRoom_Rejects_Invalid_Spec(t *testing.T) {
	req := require.New(t)
	admin, err := NewParticipant(1, "Alice", "", "", "", now)
	req.NoError(err)
	future := now.AddDate(0, 0, 10)

	cases := []struct {
		name string
		spec RoomSpec
		want error
	}{
		{"empty title", RoomSpec{Title: "  ", Budget: 500, GiftDate: future}, errors.ErrEmptyField},
		{"long title", RoomSpec{Title: string(make([]byte, MaxTitleLen+1)), Budget: 500, GiftDate: future}, errors.ErrFieldTooLong},
		{"budget", RoomSpec{Title: "x", Budget: 600, GiftDate: future}, errors.ErrInvalidBudget},
		{"no date", RoomSpec{Title: "x", Budget: 500}, errors.ErrInvalidDate},
		{"today", RoomSpec{Title: "x", Budget: 500, GiftDate: now}, errors.ErrInvalidDate},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewRoom("id", "CODE", c.spec, admin, now)
			req.ErrorIs(err, c.want)
		})
	}
}

func TestRoom_Join(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	// When a second user joins
	join(t, room, 2, "Bob", now.Add(time.Minute))

	// Then
	req.Len(room.Participants, 2)
	req.Equal([]UserID{1, 2}, room.MemberIDs())

	// And joining twice is refused
	bob, err := NewParticipant(2, "Bob", "", "", "", now)
	req.NoError(err)
	req.ErrorIs(room.Join(bob, now), errors.ErrAlreadyJoined)
}

func TestRoom_Join_Date_Passed_Takes_Precedence(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)
	room.Active = false
	carol, err := NewParticipant(3, "Carol", "", "", "", now)
	req.NoError(err)

	// When the exchange day has come on an inactive room
	err = room.Join(carol, room.GiftDate.Add(time.Hour))

	// Then the date is reported first
	req.ErrorIs(err, errors.ErrExchangeDatePassed)

	// And before the date the inactive flag is reported
	req.ErrorIs(room.Join(carol, now), errors.ErrRoomInactive)
}

func TestRoom_Leave(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)
	join(t, room, 2, "Bob", now)

	req.ErrorIs(room.Leave(1), errors.ErrAdminCannotLeave)
	req.ErrorIs(room.Leave(3), errors.ErrParticipantNotFound)
	req.NoError(room.Leave(2))
	req.False(room.Has(2))
}

func TestRoom_Leave_After_Draw(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)
	join(t, room, 2, "Bob", now)
	join(t, room, 3, "Carol", now)
	req.NoError(room.ApplyAssignment(map[UserID]UserID{1: 2, 2: 3, 3: 1}))

	// When a giver tries to leave once everybody holds a recipient
	err := room.Leave(2)

	// Then the room is unchanged
	req.ErrorIs(err, errors.ErrAssignmentAlreadyDone)
	req.True(room.Has(2))
	recipient, err := room.RecipientOf(1)
	req.NoError(err)
	req.Equal(UserID(2), recipient.UserID)
}

func TestRoom_UpdateProfile(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	req.NoError(room.UpdateProfile(1, FieldWishlist, "  a scarf "))
	req.Equal("a scarf", room.Participants[1].Wishlist)
	req.ErrorIs(room.UpdateProfile(1, FieldName, " "), errors.ErrEmptyField)
	req.Equal("Alice", room.Participants[1].DisplayName)
	req.ErrorIs(room.UpdateProfile(9, FieldName, "Zed"), errors.ErrParticipantNotFound)

	// Given the draw is done
	join(t, room, 2, "Bob", now)
	req.NoError(room.ApplyAssignment(map[UserID]UserID{1: 2, 2: 1}))

	// Then profiles are frozen
	req.ErrorIs(room.UpdateProfile(1, FieldWishlist, "tea"), errors.ErrAssignmentAlreadyDone)
}

func TestRoom_ApplyAssignment(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	req.ErrorIs(room.ApplyAssignment(map[UserID]UserID{}), errors.ErrInsufficientParticipants)

	join(t, room, 2, "Bob", now.Add(time.Second))
	join(t, room, 3, "Carol", now.Add(2*time.Second))

	// A fixed point is refused
	req.ErrorIs(room.ApplyAssignment(map[UserID]UserID{1: 1, 2: 3, 3: 2}), errors.ErrInvalidAssignment)
	// A non bijection is refused
	req.ErrorIs(room.ApplyAssignment(map[UserID]UserID{1: 2, 2: 1, 3: 1}), errors.ErrInvalidAssignment)
	req.False(room.AssignmentDone)

	req.NoError(room.ApplyAssignment(map[UserID]UserID{1: 2, 2: 3, 3: 1}))
	req.True(room.AssignmentDone)

	target, err := room.RecipientOf(3)
	req.NoError(err)
	req.Equal("Alice", target.DisplayName)

	req.ErrorIs(room.ApplyAssignment(map[UserID]UserID{1: 3, 2: 1, 3: 2}), errors.ErrAssignmentAlreadyDone)
}

func TestRoom_RecipientOf_Before_Draw(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	_, err := room.RecipientOf(1)
	req.ErrorIs(err, errors.ErrAssignmentNotDone)
}

func TestRoom_Clone_Does_Not_Share_State(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)
	join(t, room, 2, "Bob", now)
	req.NoError(room.ApplyAssignment(map[UserID]UserID{1: 2, 2: 1}))

	// When the clone is modified
	c := room.Clone()
	c.Participants[1].DisplayName = "Mallory"
	*c.Participants[1].TargetID = 99
	delete(c.Participants, 2)

	// Then the original is untouched
	req.Equal("Alice", room.Participants[1].DisplayName)
	req.Equal(UserID(2), *room.Participants[1].TargetID)
	req.True(room.Has(2))
}

func TestRoom_RefreshHandle(t *testing.T) {
	req := require.New(t)
	room := newTestRoom(t)

	req.False(room.RefreshHandle(1, "@alice"))
	req.True(room.RefreshHandle(1, "alice_new"))
	req.Equal("alice_new", room.Participants[1].Handle)
	req.False(room.RefreshHandle(1, ""))
	req.False(room.RefreshHandle(42, "ghost"))
}

func TestParseGiftDate(t *testing.T) {
	req := require.New(t)

	d, err := ParseGiftDate(" 25.12.2024 ")
	req.NoError(err)
	req.Equal(time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC), d)
	req.Equal("25.12.2024", FormatDate(d))

	for _, raw := range []string{"2024-12-25", "32.12.2024", "", "25/12/2024"} {
		_, err := ParseGiftDate(raw)
		req.ErrorIs(err, errors.ErrInvalidDate, raw)
	}
}

func TestDatePassed(t *testing.T) {
	req := require.New(t)
	gift := time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC)

	req.False(DatePassed(gift, time.Date(2024, time.December, 24, 23, 59, 0, 0, time.UTC)))
	req.True(DatePassed(gift, time.Date(2024, time.December, 25, 0, 0, 1, 0, time.UTC)))
	req.True(DatePassed(gift, time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)))
}

func TestParseBudget(t *testing.T) {
	req := require.New(t)

	b, err := ParseBudget("1500")
	req.NoError(err)
	req.Equal(Budget(1500), b)
	req.Equal("1500 RUB", b.String())

	for _, raw := range []string{"1000000", "abc", "", "-500"} {
		_, err := ParseBudget(raw)
		req.ErrorIs(err, errors.ErrInvalidBudget, raw)
	}
}
