// Package conversation drives the multi-step dialogs of each user.
//
// Every user is in exactly one State. A State is a closed set of types;
// transitions are looked up in a table keyed by (state kind, action), and
// anything absent from the table re-prompts the user instead of failing.
// Drafts live only in the State until the final confirmation, which performs
// a single store mutation.
package conversation

import (
	"time"

	"secret-santa/domain"
)

type Kind string

const (
	KindMainMenu           Kind = "main_menu"
	KindCreatingRoom       Kind = "creating_room"
	KindJoiningByCode      Kind = "joining_by_code"
	KindJoiningRoom        Kind = "joining_room"
	KindRegisteringProfile Kind = "registering_profile"
	KindConfirmingProfile  Kind = "confirming_profile"
	KindEditingProfile     Kind = "editing_profile"
	KindSwitchingRoom      Kind = "switching_room"
	KindManagingRoom       Kind = "managing_room"
)

type Step string

const (
	StepTitle    Step = "title"
	StepBudget   Step = "budget"
	StepDate     Step = "date"
	StepConfirm  Step = "confirm"
	StepName     Step = "name"
	StepWish     Step = "wish"
	StepAntiWish Step = "anti_wish"
)

// State is one of the types below.
type State interface {
	Kind() Kind
}

type MainMenu struct{}

type CreatingRoom struct {
	Step  Step
	Draft RoomDraft
}

type JoiningByCode struct{}

// JoiningRoom waits for the user to accept or decline the invitation.
type JoiningRoom struct {
	RoomID domain.RoomID
}

type RegisteringProfile struct {
	Target Target
	Step   Step
	Draft  ProfileDraft
}

// ConfirmingProfile shows the draft. Editing is set while the user retypes one field.
type ConfirmingProfile struct {
	Target  Target
	Draft   ProfileDraft
	Editing domain.ProfileField
}

type EditingProfile struct {
	RoomID domain.RoomID
	Field  domain.ProfileField
}

type SwitchingRoom struct{}

// ManagingRoom is the organizer's panel. Deleting asks for a confirmation first.
type ManagingRoom struct {
	RoomID   domain.RoomID
	Deleting bool
}

func (MainMenu) Kind() Kind           { return KindMainMenu }
func (CreatingRoom) Kind() Kind       { return KindCreatingRoom }
func (JoiningByCode) Kind() Kind      { return KindJoiningByCode }
func (JoiningRoom) Kind() Kind        { return KindJoiningRoom }
func (RegisteringProfile) Kind() Kind { return KindRegisteringProfile }
func (ConfirmingProfile) Kind() Kind  { return KindConfirmingProfile }
func (EditingProfile) Kind() Kind     { return KindEditingProfile }
func (SwitchingRoom) Kind() Kind      { return KindSwitchingRoom }
func (ManagingRoom) Kind() Kind       { return KindManagingRoom }

// RoomDraft holds what an organizer typed so far.
type RoomDraft struct {
	Title    string
	Budget   domain.Budget
	GiftDate time.Time
}

type ProfileDraft struct {
	Name         string
	Wishlist     string
	AntiWishlist string
}

func (d *ProfileDraft) Set(field domain.ProfileField, value string) error {
	p := domain.Participant{DisplayName: d.Name, Wishlist: d.Wishlist, AntiWishlist: d.AntiWishlist}
	if err := p.Set(field, value); err != nil {
		return err
	}
	d.Name, d.Wishlist, d.AntiWishlist = p.DisplayName, p.Wishlist, p.AntiWishlist
	return nil
}

func (d ProfileDraft) Participant(sender domain.Sender) (domain.Participant, error) {
	return domain.NewParticipant(sender.ID, d.Name, sender.Handle, d.Wishlist, d.AntiWishlist, time.Time{})
}

// Target tells what a confirmed profile is for: joining RoomID,
// or creating the room described by NewRoom with the user as organizer.
type Target struct {
	RoomID  domain.RoomID
	NewRoom *RoomDraft
}

func (t Target) Creating() bool {
	return t.NewRoom != nil
}
