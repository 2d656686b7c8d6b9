// Package domain contains core concepts of the gift exchange.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"strings"
	"time"

	"secret-santa/errors"
)

// UserID is the stable identity given by the chat transport.
type UserID int64

func (u UserID) String() string {
	return fmt.Sprintf("%d", int64(u))
}

// ProfileField names the editable parts of a gift profile.
type ProfileField string

const (
	FieldName         ProfileField = "name"
	FieldWishlist     ProfileField = "wish"
	FieldAntiWishlist ProfileField = "anti_wish"
)

const (
	MaxNameLen     = 128
	MaxWishlistLen = 1024
)

// ParseProfileField maps a raw field tag to a ProfileField.
func ParseProfileField(raw string) (ProfileField, error) {
	switch f := ProfileField(raw); f {
	case FieldName, FieldWishlist, FieldAntiWishlist:
		return f, nil
	default:
		return "", errors.ErrUnknownField
	}
}

// Participant is a registered member of one room.
// TargetID is a reference to another participant of the same room, never an ownership edge.
type Participant struct {
	UserID       UserID
	DisplayName  string
	Handle       string
	Wishlist     string
	AntiWishlist string
	TargetID     *UserID
	JoinedAt     time.Time
}

// NewParticipant validates a gift profile and builds the participant.
func NewParticipant(id UserID, name, handle, wishlist, antiWishlist string, joinedAt time.Time) (Participant, error) {
	p := Participant{
		UserID:       id,
		Handle:       strings.TrimPrefix(strings.TrimSpace(handle), "@"),
		Wishlist:     strings.TrimSpace(wishlist),
		AntiWishlist: strings.TrimSpace(antiWishlist),
		JoinedAt:     joinedAt.UTC(),
	}
	if err := p.Set(FieldName, name); err != nil {
		return Participant{}, err
	}
	if len(p.Wishlist) > MaxWishlistLen || len(p.AntiWishlist) > MaxWishlistLen {
		return Participant{}, errors.ErrFieldTooLong
	}
	return p, nil
}

// Set writes one profile field. The name can never be blank.
func (p *Participant) Set(field ProfileField, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case FieldName:
		if value == "" {
			return errors.ErrEmptyField
		}
		if len(value) > MaxNameLen {
			return errors.ErrFieldTooLong
		}
		p.DisplayName = value
	case FieldWishlist:
		if len(value) > MaxWishlistLen {
			return errors.ErrFieldTooLong
		}
		p.Wishlist = value
	case FieldAntiWishlist:
		if len(value) > MaxWishlistLen {
			return errors.ErrFieldTooLong
		}
		p.AntiWishlist = value
	default:
		return errors.ErrUnknownField
	}
	return nil
}

func (p Participant) clone() Participant {
	if p.TargetID != nil {
		target := *p.TargetID
		p.TargetID = &target
	}
	return p
}
